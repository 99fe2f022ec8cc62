package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName          string
		Build            string
		Env              string
		Debug            bool
		TestMode         bool
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		RollbarToken     string
		SendgridApiKey   string
		SendgridSandbox  bool
		Timezone         *time.Location

		Server   ServerConfig
		Database DatabaseConfig
		System   SystemConfig
	}

	ServerConfig struct {
		Host                      string
		DebugHost                 string
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		PasswordResetTimeoutDelta time.Duration
		ShutdownTimeout           time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	SystemConfig struct {
		BackupDir       string
		BackupSources   []string
		PGDumpPath      string
		LogFile         string
		MaintenanceFile string
		UpdateStateFile string
		UpdateChannel   string
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

// NewConfig loads the configuration for the environment named by $ENV (DEV by default).
// Values are read from "<ENV>_<KEY>" environment variables, optionally seeded by config/.env.<env>.
func NewConfig() *Config {
	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetEnvPrefix(env)

	// defaults
	v.SetDefault("appName", "Elimu")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("secretKey", "z9!k2c$w+1n@x7q(5ve)h&u0j3g-8m=p4s*r6t#fbla_yodi")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "Elimu <noreply@localhost>")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("sendgridSandbox", false)
	v.SetDefault("timezone", "Africa/Nairobi")

	v.SetDefault("serverHost", "0.0.0.0:8000")
	v.SetDefault("serverDebugHost", "0.0.0.0:4000")
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("shutdownTimeout", 5*time.Second)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbName", "elimu")
	v.SetDefault("dbUser", "elimu")
	v.SetDefault("dbPassword", "elimu")
	v.SetDefault("dbAdminUser", "postgres")
	v.SetDefault("dbAdminPassword", "postgres")
	v.SetDefault("dbDisableTLS", true)

	v.SetDefault("backupDir", "storage/backups")
	v.SetDefault("backupSources", []string{"storage/uploads"})
	v.SetDefault("pgDumpPath", "pg_dump")
	v.SetDefault("logFile", "storage/logs/elimu.log")
	v.SetDefault("maintenanceFile", "storage/maintenance.json")
	v.SetDefault("updateStateFile", "storage/update.json")
	v.SetDefault("updateChannel", "stable")

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	from, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}
	tz, err := time.LoadLocation(v.GetString("timezone"))
	if err != nil {
		log.Printf("config.timezone: %v; falling back to UTC", err)
		tz = time.UTC
	}

	return &Config{
		AppName:          v.GetString("appName"),
		Build:            v.GetString("build"),
		Env:              env,
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		DefaultFromEmail: *from,
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		SendgridSandbox:  v.GetBool("sendgridSandbox"),
		Timezone:         tz,
		Server: ServerConfig{
			Host:                      v.GetString("serverHost"),
			DebugHost:                 v.GetString("serverDebugHost"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
			PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
			ShutdownTimeout:           v.GetDuration("shutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
		},
		System: SystemConfig{
			BackupDir:       v.GetString("backupDir"),
			BackupSources:   v.GetStringSlice("backupSources"),
			PGDumpPath:      v.GetString("pgDumpPath"),
			LogFile:         v.GetString("logFile"),
			MaintenanceFile: v.GetString("maintenanceFile"),
			UpdateStateFile: v.GetString("updateStateFile"),
			UpdateChannel:   v.GetString("updateChannel"),
		},
	}
}

// NewTestConfig returns a Config suitable for unit tests; nothing is read from the environment.
func NewTestConfig() *Config {
	dir := os.TempDir()
	return &Config{
		AppName:          "Elimu",
		Build:            "test",
		Env:              "TEST",
		Debug:            true,
		TestMode:         true,
		SecretKey:        "secret",
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: mail.Address{Name: "Elimu", Address: "noreply@test.test"},
		Timezone:         time.UTC,
		Server: ServerConfig{
			JWTExpirationDelta:        7 * 24 * time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
			ShutdownTimeout:           time.Second,
		},
		System: SystemConfig{
			BackupDir:       filepath.Join(dir, "elimu-backups"),
			PGDumpPath:      "pg_dump",
			LogFile:         filepath.Join(dir, "elimu-test.log"),
			MaintenanceFile: filepath.Join(dir, "elimu-maintenance.json"),
			UpdateStateFile: filepath.Join(dir, "elimu-update.json"),
			UpdateChannel:   "stable",
		},
	}
}

func (c *Config) String() string {
	return fmt.Sprintf("%s (%s, build %s)", c.AppName, c.Env, c.Build)
}
