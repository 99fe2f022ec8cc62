// Package testutil wires the in-memory repositories and the domain services together for tests.
package testutil

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/activity"
	"github.com/trezcool/elimu/core/billing"
	"github.com/trezcool/elimu/core/curriculum"
	"github.com/trezcool/elimu/core/enrollment"
	"github.com/trezcool/elimu/core/profile"
	"github.com/trezcool/elimu/core/report"
	"github.com/trezcool/elimu/core/schedule"
	"github.com/trezcool/elimu/core/user"
	"github.com/trezcool/elimu/services/email"
	"github.com/trezcool/elimu/services/logger"
	"github.com/trezcool/elimu/storage/database/dummy"
)

type App struct {
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	Mail       *emailsvc.ConsoleServiceMock
	DB         *dummydb.DB

	UserRepo       user.Repository
	ActivityRepo   activity.Repository
	CurriculumRepo curriculum.Repository
	ProfileRepo    profile.Repository
	BillingRepo    billing.Repository
	EnrollmentRepo enrollment.Repository
	ScheduleRepo   schedule.Repository

	UserSvc       user.Service
	ActivitySvc   activity.Service
	CurriculumSvc curriculum.Service
	ProfileSvc    profile.Service
	BillingSvc    billing.Service
	EnrollmentSvc enrollment.Service
	ScheduleSvc   schedule.Service
	ReportSvc     report.Service
}

// NewConfig returns a test config whose system files live under a temporary directory.
func NewConfig(t *testing.T) *core.Config {
	dir := t.TempDir()
	conf := core.NewTestConfig()
	conf.System.BackupDir = filepath.Join(dir, "backups")
	conf.System.LogFile = filepath.Join(dir, "elimu.log")
	conf.System.MaintenanceFile = filepath.Join(dir, "maintenance.json")
	conf.System.UpdateStateFile = filepath.Join(dir, "update.json")
	return conf
}

// NewLogger returns a console-only logger writing to io.Discard.
func NewLogger(t *testing.T, conf *core.Config) core.Logger {
	logConf := *conf
	logConf.System.LogFile = ""
	logger, err := logsvc.NewRollbarLogger(io.Discard, &logConf)
	require.NoError(t, err)
	return logger
}

func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// NewValidator registers the validations of every domain package.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	profile.InitValidators(validate, translator)
	billing.InitValidators(validate, translator)
	enrollment.InitValidators(validate, translator)
	schedule.InitValidators(validate, translator)
	return validate, translator
}

func NewApp(t *testing.T) *App {
	db, err := dummydb.Open()
	require.NoError(t, err)

	conf := NewConfig(t)
	logger := NewLogger(t, conf)
	core.ParseEmailTemplates(conf, logger)
	validate, translator := NewValidator()

	app := &App{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		Mail:       emailsvc.NewConsoleServiceMock(conf, logger),
		DB:         db,

		UserRepo:       dummydb.NewUserRepository(db),
		ActivityRepo:   dummydb.NewActivityRepository(db),
		CurriculumRepo: dummydb.NewCurriculumRepository(db),
		ProfileRepo:    dummydb.NewProfileRepository(db),
		BillingRepo:    dummydb.NewBillingRepository(db),
		EnrollmentRepo: dummydb.NewEnrollmentRepository(db),
		ScheduleRepo:   dummydb.NewScheduleRepository(db),
	}

	// in-memory repositories need no transaction: services get a nil core.DB
	app.UserSvc = user.NewService(app.UserRepo, app.Mail, conf)
	app.ActivitySvc = activity.NewService(app.ActivityRepo)
	app.CurriculumSvc = curriculum.NewService(nil, app.CurriculumRepo, app.ActivitySvc, validate, conf)
	app.ProfileSvc = profile.NewService(nil, app.ProfileRepo, app.CurriculumRepo, app.ActivitySvc, validate, conf)
	app.BillingSvc = billing.NewService(nil, app.BillingRepo, app.ProfileRepo, app.ActivitySvc, app.Mail, validate, logger, conf)
	app.EnrollmentSvc = enrollment.NewService(
		nil, app.EnrollmentRepo, app.CurriculumRepo, app.ProfileRepo, app.BillingRepo, app.ActivitySvc, validate, conf,
	)
	app.ScheduleSvc = schedule.NewService(nil, app.ScheduleRepo, app.CurriculumRepo, app.ProfileRepo, app.ActivitySvc, validate, conf)
	app.ReportSvc = report.NewService(dummydb.NewReportRepository(db), conf)
	return app
}

func Ptr[T any](v T) *T { return &v }

// AssertFieldError checks that err is a validation error on field caused by want (when not nil).
func AssertFieldError(t *testing.T, err error, field string, want error) bool {
	t.Helper()
	var vErr *core.ValidationError
	if !assert.ErrorAs(t, err, &vErr) {
		return false
	}
	if want != nil && !assert.Equal(t, want, vErr.Err) {
		return false
	}
	for _, fe := range vErr.Fields {
		if fe.Field == field {
			return true
		}
	}
	return assert.Fail(t, "missing field error", "no error on %q in %+v", field, vErr.Fields)
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func CreateCurriculum(t *testing.T, repo curriculum.Repository, name, code string) curriculum.Curriculum {
	now := time.Now().UTC()
	c, err := repo.CreateCurriculum(context.Background(), curriculum.Curriculum{
		Name: name, Code: code, IsActive: true, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err, "createCurriculum()")
	return c
}

func CreateSubject(t *testing.T, repo curriculum.Repository, curriculumID int, name, code string) curriculum.Subject {
	now := time.Now().UTC()
	s, err := repo.CreateSubject(context.Background(), curriculum.Subject{
		CurriculumID: curriculumID, Name: name, Code: code, Credits: 1, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err, "createSubject()")
	return s
}

func CreateAcademicYear(t *testing.T, repo curriculum.Repository, name string, start, end time.Time, current bool) curriculum.AcademicYear {
	now := time.Now().UTC()
	ay, err := repo.CreateAcademicYear(context.Background(), curriculum.AcademicYear{
		Name: name, StartDate: start, EndDate: end, IsCurrent: current, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err, "createAcademicYear()")
	return ay
}

func CreateParent(t *testing.T, repo profile.Repository, first, last, email string) profile.ParentProfile {
	now := time.Now().UTC()
	p, err := repo.CreateParent(context.Background(), profile.ParentProfile{
		FirstName: first, LastName: last, Email: email, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err, "createParent()")
	return p
}

func CreateChild(t *testing.T, repo profile.Repository, parentID int, first, last string) profile.ChildProfile {
	now := time.Now().UTC()
	c, err := repo.CreateChild(context.Background(), profile.ChildProfile{
		ParentID: parentID, FirstName: first, LastName: last, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err, "createChild()")
	return c
}

// CreateTeacher creates a teacher assigned to subjectIDs.
func CreateTeacher(t *testing.T, repo profile.Repository, first, last string, userID *string, subjectIDs ...int) profile.TeacherProfile {
	ctx := context.Background()
	now := time.Now().UTC()
	tp, err := repo.CreateTeacher(ctx, profile.TeacherProfile{
		UserID: userID, FirstName: first, LastName: last, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err, "createTeacher()")
	require.NoError(t, repo.SetTeacherSubjects(ctx, tp.ID, subjectIDs), "createTeacher()")
	tp, err = repo.GetTeacher(ctx, tp.ID)
	require.NoError(t, err, "createTeacher()")
	return tp
}

func CreateRoom(t *testing.T, repo schedule.Repository, name string, active bool) schedule.Room {
	now := time.Now().UTC()
	r, err := repo.CreateRoom(context.Background(), schedule.Room{
		Name: name, Capacity: 30, IsActive: active, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err, "createRoom()")
	return r
}
