package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/system"
	logsvc "github.com/trezcool/elimu/services/logger"
	"github.com/trezcool/elimu/storage/database"
	sqlxrepos "github.com/trezcool/elimu/storage/database/sqlx"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	conf := core.NewConfig()

	logger, err := logsvc.NewRollbarLogger(os.Stderr, conf)
	if err != nil {
		return err
	}
	logger.Enable(!conf.Debug)
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// set up DB
	db, err := database.Open(ctx, conf)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	cli := commandLine{
		usrRepo: sqlxrepos.NewUserRepository(db),
		migrate: func(ctx context.Context, command string, args ...string) error {
			return database.Migrate(ctx, db, command, args...)
		},
	}
	if cli.backups, err = system.NewBackupManager(conf, system.NewExecRunner(), logger); err != nil {
		return err
	}
	if cli.logs, err = system.NewLogViewer(conf.System.LogFile); err != nil {
		return err
	}
	if cli.maintenance, err = system.NewMaintenance(conf.System.MaintenanceFile); err != nil {
		return err
	}
	if cli.updater, err = system.NewUpdater(conf, logger); err != nil {
		return err
	}
	return cli.execute(ctx, os.Args[1:], os.Stdout)
}
