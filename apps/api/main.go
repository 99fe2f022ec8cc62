package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"os"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/elimu/apps/api/echo"
	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/activity"
	"github.com/trezcool/elimu/core/billing"
	"github.com/trezcool/elimu/core/curriculum"
	"github.com/trezcool/elimu/core/enrollment"
	"github.com/trezcool/elimu/core/profile"
	"github.com/trezcool/elimu/core/report"
	"github.com/trezcool/elimu/core/schedule"
	"github.com/trezcool/elimu/core/system"
	"github.com/trezcool/elimu/core/user"
	emailsvc "github.com/trezcool/elimu/services/email"
	logsvc "github.com/trezcool/elimu/services/logger"
	"github.com/trezcool/elimu/storage/database"
	boiledrepos "github.com/trezcool/elimu/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/elimu/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger, err := logsvc.NewRollbarLogger(os.Stdout, conf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setting up logger: %v\n", err)
		os.Exit(1)
	}
	logger.Enable(!conf.Debug)
	defer func() { _ = logger.Close() }()

	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	logger.Info(fmt.Sprintf("Application initializing : %s", conf))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	profile.InitValidators(validate, translator)
	billing.InitValidators(validate, translator)
	enrollment.InitValidators(validate, translator)
	schedule.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)
	user.LoadCommonPasswords(logger)

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	// set up repositories & services
	userRepo := sqlxrepos.NewUserRepository(db)
	activityRepo := sqlxrepos.NewActivityRepository(db)
	curriculumRepo := sqlxrepos.NewCurriculumRepository(db)
	profileRepo := sqlxrepos.NewProfileRepository(db)
	billingRepo := sqlxrepos.NewBillingRepository(db)
	enrollmentRepo := sqlxrepos.NewEnrollmentRepository(db)
	scheduleRepo := sqlxrepos.NewScheduleRepository(db)

	userSvc := user.NewService(userRepo, mailSvc, conf)
	activitySvc := activity.NewService(activityRepo)
	curriculumSvc := curriculum.NewService(db, curriculumRepo, activitySvc, validate, conf)
	profileSvc := profile.NewService(db, profileRepo, curriculumRepo, activitySvc, validate, conf)
	billingSvc := billing.NewService(db, billingRepo, profileRepo, activitySvc, mailSvc, validate, logger, conf)
	enrollmentSvc := enrollment.NewService(
		db, enrollmentRepo, curriculumRepo, profileRepo, billingRepo, activitySvc, validate, conf,
	)
	scheduleSvc := schedule.NewService(db, scheduleRepo, curriculumRepo, profileRepo, activitySvc, validate, conf)
	reportSvc := report.NewService(boiledrepos.NewReportRepository(db), conf)

	// set up system utilities
	backups, err := system.NewBackupManager(conf, system.NewExecRunner(), logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up backups: %v", err), err)
	}
	logs, err := system.NewLogViewer(conf.System.LogFile)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up log viewer: %v", err), err)
	}
	maintenance, err := system.NewMaintenance(conf.System.MaintenanceFile)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up maintenance mode: %v", err), err)
	}
	updater, err := system.NewUpdater(conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up updater: %v", err), err)
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:          conf,
		Logger:        logger,
		Validate:      validate,
		Translator:    translator,
		UserSvc:       userSvc,
		ProfileSvc:    profileSvc,
		CurriculumSvc: curriculumSvc,
		EnrollmentSvc: enrollmentSvc,
		ScheduleSvc:   scheduleSvc,
		BillingSvc:    billingSvc,
		ActivitySvc:   activitySvc,
		ReportSvc:     reportSvc,
		Backups:       backups,
		Logs:          logs,
		Maintenance:   maintenance,
		Updater:       updater,
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

const dbSetupTimeout = time.Minute

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbSetupTimeout)
	defer cancel()

	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(ctx, db, "up"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
