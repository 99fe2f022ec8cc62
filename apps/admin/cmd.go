package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/elimu/core/system"
	"github.com/trezcool/elimu/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errEmptyPassword = errors.New("password cannot be empty")
)

// migrateFunc runs a goose command against the application database.
type migrateFunc func(ctx context.Context, command string, args ...string) error

type commandLine struct {
	usrRepo     user.Repository
	migrate     migrateFunc
	backups     *system.BackupManager
	logs        *system.LogViewer
	maintenance *system.Maintenance
	updater     *system.Updater
}

// execute runs the command named by args (without the program name).
func (cli *commandLine) execute(ctx context.Context, args []string, out io.Writer) error {
	root := cli.rootCommand()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	return root.ExecuteContext(ctx)
}

func (cli *commandLine) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "admin",
		Short:         "Back-office administration of the school database and server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		cli.migrateCommand(),
		cli.addUserCommand(),
		cli.resetPasswordCommand(),
		cli.backupCommand(),
		cli.maintenanceCommand(),
		cli.logsCommand(),
		cli.updateCommand(),
	)
	return cmd
}

func (cli *commandLine) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a migration command (up, up-by-one, up-to, down, down-to, redo, reset, status, version, create, fix)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.migrate(cmd.Context(), args[0], args[1:]...)
		},
	}
}

func (cli *commandLine) addUserCommand() *cobra.Command {
	var name, uname, email string
	var isAdmin bool
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user, or update the user holding the username or email; the password is prompted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pwd, err := promptPassword(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			usr, err := cli.addUser(cmd.Context(), name, uname, email, pwd, isAdmin)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %q saved (%s)\n", usr.Username, usr.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Full name")
	cmd.Flags().StringVar(&uname, "username", "", "Username")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "Grant every role, owner included")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (cli *commandLine) resetPasswordCommand() *cobra.Command {
	var uname string
	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password; the new password is prompted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pwd, err := promptPassword(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return cli.resetPassword(cmd.Context(), uname, pwd)
		},
	}
	cmd.Flags().StringVar(&uname, "username", "", "The user's username or email")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func promptPassword(out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(out)
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	if len(pwd) == 0 {
		return "", errEmptyPassword
	}
	return string(pwd), nil
}

func (cli *commandLine) backupCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "backup", Short: "Manage database backups"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create",
			Short: "Dump the database into a new backup archive",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				b, err := cli.backups.Create(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "backup %s created (%d bytes)\n", b.Name, b.Size)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List backup archives, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				list, err := cli.backups.List()
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tSIZE\tCREATED")
				for _, b := range list {
					fmt.Fprintf(w, "%s\t%d\t%s\n", b.Name, b.Size, b.CreatedAt.Format(system.LogTimeLayout))
				}
				return w.Flush()
			},
		},
		&cobra.Command{
			Use:   "delete NAME",
			Short: "Delete a backup archive",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := cli.backups.Delete(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "backup %s deleted\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

func (cli *commandLine) maintenanceCommand() *cobra.Command {
	var message string
	var retryAfter int
	on := &cobra.Command{
		Use:   "on",
		Short: "Turn maintenance mode on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			state, err := cli.maintenance.Enable(message, retryAfter)
			if err != nil {
				return err
			}
			printMaintenance(cmd.OutOrStdout(), state)
			return nil
		},
	}
	on.Flags().StringVar(&message, "message", "", "Message shown to users")
	on.Flags().IntVar(&retryAfter, "retry-after", 0, "Seconds clients should wait before retrying")

	cmd := &cobra.Command{Use: "maintenance", Short: "Toggle maintenance mode"}
	cmd.AddCommand(
		on,
		&cobra.Command{
			Use:   "off",
			Short: "Turn maintenance mode off",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := cli.maintenance.Disable(); err != nil {
					return err
				}
				printMaintenance(cmd.OutOrStdout(), system.MaintenanceState{})
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show whether maintenance mode is on",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				state, err := cli.maintenance.Status()
				if err != nil {
					return err
				}
				printMaintenance(cmd.OutOrStdout(), state)
				return nil
			},
		},
	)
	return cmd
}

func printMaintenance(out io.Writer, state system.MaintenanceState) {
	if !state.Enabled {
		fmt.Fprintln(out, "maintenance mode is off")
		return
	}
	fmt.Fprintf(out, "maintenance mode is on: %s\n", state.Message)
}

func (cli *commandLine) logsCommand() *cobra.Command {
	var limit int
	var level string
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the latest log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := cli.logs.Read(limit, level)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, entry := range list {
				fmt.Fprintf(out, "[%s] %s.%s: %s\n",
					entry.Timestamp.Format(system.LogTimeLayout), entry.Env, strings.ToUpper(entry.Level), entry.Message)
				if entry.Context != "" {
					fmt.Fprintln(out, entry.Context)
				}
			}
			return nil
		},
	}
	show.Flags().IntVar(&limit, "limit", 50, "Number of entries")
	show.Flags().StringVar(&level, "level", "", "Only show entries of this level")

	cmd := &cobra.Command{Use: "logs", Short: "Inspect the application log"}
	cmd.AddCommand(
		show,
		&cobra.Command{
			Use:   "clear",
			Short: "Truncate the application log",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := cli.logs.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "logs cleared")
				return nil
			},
		},
	)
	return cmd
}

func (cli *commandLine) updateCommand() *cobra.Command {
	var channel string
	releases := &cobra.Command{
		Use:   "releases",
		Short: "List the releases of a channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if channel == "" {
				state, err := cli.updater.State()
				if err != nil {
					return err
				}
				channel = state.Channel
			}
			list, err := cli.updater.Releases(channel)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tCHANNEL\tRELEASED\tNOTES")
			for _, r := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Version, r.Channel, r.ReleasedAt.Format("2006-01-02"), r.Notes)
			}
			return w.Flush()
		},
	}
	releases.Flags().StringVar(&channel, "channel", "", "Update channel (defaults to the current one)")

	cmd := &cobra.Command{Use: "update", Short: "Check and install releases of the update channel"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "check",
			Short: "Compare the installed version with the latest release",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				info, err := cli.updater.Check(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "installed %s on channel %s\n", info.CurrentVersion, info.Channel)
				if info.UpdateAvailable {
					fmt.Fprintf(out, "update available: %s\n", info.LatestVersion)
				} else {
					fmt.Fprintln(out, "up to date")
				}
				return nil
			},
		},
		releases,
		&cobra.Command{
			Use:   "channel NAME",
			Short: "Switch the update channel (" + strings.Join(system.Channels, ", ") + ")",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				state, err := cli.updater.SetChannel(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "update channel set to %s\n", state.Channel)
				return nil
			},
		},
		&cobra.Command{
			Use:   "install [VERSION]",
			Short: "Install a release of the current channel, the latest one by default",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var version string
				if len(args) > 0 {
					version = args[0]
				}
				state, err := cli.updater.Install(cmd.Context(), version)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %s installed\n", state.InstalledVersion)
				return nil
			},
		},
	)
	return cmd
}
