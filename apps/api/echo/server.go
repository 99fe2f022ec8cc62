package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

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
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		UserSvc       user.Service
		ProfileSvc    profile.Service
		CurriculumSvc curriculum.Service
		EnrollmentSvc enrollment.Service
		ScheduleSvc   schedule.Service
		BillingSvc    billing.Service
		ActivitySvc   activity.Service
		ReportSvc     report.Service

		Backups     *system.BackupManager
		Logs        *system.LogViewer
		Maintenance *system.Maintenance
		Updater     *system.Updater

		// DisableReqLogs silences the request logger (tests).
		DisableReqLogs bool
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(ctx context.Context) error
		Close() error
	}

	server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug && !conf.TestMode

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	auth := chainMiddleware(
		middleware.JWTWithConfig(jwtConfig(conf)),
		actorMiddleware,
		maintenanceMiddleware(s.deps.Maintenance),
	)

	registerUserAPI(v1, auth, s.deps)
	registerProfileAPI(v1, auth, s.deps)
	registerCurriculumAPI(v1, auth, s.deps)
	registerEnrollmentAPI(v1, auth, s.deps)
	registerScheduleAPI(v1, auth, s.deps)
	registerBillingAPI(v1, auth, s.deps)
	registerReportAPI(v1, auth, s.deps)
	registerSystemAPI(v1, auth, s.deps)
}

func (s *server) Start() {
	s.deps.Logger.Info("API listening on " + s.deps.Conf.Server.Host)
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- errors.Wrap(err, "starting server")
	}
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// signalShutdown asks main to gracefully stop the server.
func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}

// chainMiddleware runs mws in order, the first one being the outermost.
func chainMiddleware(mws ...echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
