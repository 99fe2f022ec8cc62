package curriculum

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/activity"
)

var (
	// errors
	ErrCurriculumNotFound   = errors.New("curriculum not found")
	ErrSubjectNotFound      = errors.New("subject not found")
	ErrAcademicYearNotFound = errors.New("academic year not found")
	ErrNoCurrentYear        = errors.New("no current academic year")
	ErrCodeExists           = errors.New("this code is already in use")
	ErrNameExists           = errors.New("this name is already in use")
	ErrInUse                = errors.New("this record is still referenced and cannot be deleted")

	errEndBeforeStart = errors.New("end date must be after start date")
)

type (
	Repository interface {
		CreateCurriculum(ctx context.Context, c Curriculum, exec ...core.DBExecutor) (Curriculum, error)
		GetCurriculum(ctx context.Context, id int, exec ...core.DBExecutor) (Curriculum, error)
		QueryCurricula(ctx context.Context, filter CurriculumFilter, exec ...core.DBExecutor) ([]Curriculum, error)
		UpdateCurriculum(ctx context.Context, c Curriculum, exec ...core.DBExecutor) (Curriculum, error)
		DeleteCurriculum(ctx context.Context, id int, exec ...core.DBExecutor) error

		CreateSubject(ctx context.Context, s Subject, exec ...core.DBExecutor) (Subject, error)
		GetSubject(ctx context.Context, id int, exec ...core.DBExecutor) (Subject, error)
		QuerySubjects(ctx context.Context, filter SubjectFilter, exec ...core.DBExecutor) ([]Subject, error)
		UpdateSubject(ctx context.Context, s Subject, exec ...core.DBExecutor) (Subject, error)
		DeleteSubject(ctx context.Context, id int, exec ...core.DBExecutor) error

		CreateAcademicYear(ctx context.Context, ay AcademicYear, exec ...core.DBExecutor) (AcademicYear, error)
		GetAcademicYear(ctx context.Context, id int, exec ...core.DBExecutor) (AcademicYear, error)
		// GetCurrentAcademicYear returns ErrNoCurrentYear when no year is flagged current.
		GetCurrentAcademicYear(ctx context.Context, exec ...core.DBExecutor) (AcademicYear, error)
		QueryAcademicYears(ctx context.Context, exec ...core.DBExecutor) ([]AcademicYear, error)
		UpdateAcademicYear(ctx context.Context, ay AcademicYear, exec ...core.DBExecutor) (AcademicYear, error)
		// ClearCurrentAcademicYear unflags every year but exceptID.
		ClearCurrentAcademicYear(ctx context.Context, exceptID int, exec ...core.DBExecutor) error
		DeleteAcademicYear(ctx context.Context, id int, exec ...core.DBExecutor) error
	}

	Service interface {
		CreateCurriculum(ctx context.Context, data CurriculumData) (Curriculum, error)
		GetCurriculum(ctx context.Context, id int) (Curriculum, error)
		QueryCurricula(ctx context.Context, filter CurriculumFilter) ([]Curriculum, error)
		UpdateCurriculum(ctx context.Context, id int, data CurriculumData) (Curriculum, error)
		DeleteCurriculum(ctx context.Context, id int) error

		CreateSubject(ctx context.Context, data SubjectData) (Subject, error)
		GetSubject(ctx context.Context, id int) (Subject, error)
		QuerySubjects(ctx context.Context, filter SubjectFilter) ([]Subject, error)
		// SubjectsOf lists the subjects offered by a curriculum.
		SubjectsOf(ctx context.Context, curriculumID int) ([]Subject, error)
		UpdateSubject(ctx context.Context, id int, data SubjectData) (Subject, error)
		DeleteSubject(ctx context.Context, id int) error

		CreateAcademicYear(ctx context.Context, data AcademicYearData) (AcademicYear, error)
		GetAcademicYear(ctx context.Context, id int) (AcademicYear, error)
		CurrentAcademicYear(ctx context.Context) (AcademicYear, error)
		QueryAcademicYears(ctx context.Context) ([]AcademicYear, error)
		UpdateAcademicYear(ctx context.Context, id int, data AcademicYearData) (AcademicYear, error)
		DeleteAcademicYear(ctx context.Context, id int) error
	}

	service struct {
		db       core.DB
		repo     Repository
		activity activity.Recorder
		validate *validator.Validate
		conf     *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, recorder activity.Recorder, validate *validator.Validate, conf *core.Config) Service {
	return &service{db: db, repo: repo, activity: recorder, validate: validate, conf: conf}
}

func now() time.Time { return time.Now().UTC() }

func (svc *service) CreateCurriculum(ctx context.Context, data CurriculumData) (Curriculum, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return Curriculum{}, err
	}

	c := Curriculum{
		Name:        data.Name,
		Code:        data.Code,
		Description: data.Description,
		IsActive:    data.IsActive == nil || *data.IsActive,
		CreatedAt:   now(),
		UpdatedAt:   now(),
	}
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) (err error) {
		if c, err = svc.repo.CreateCurriculum(ctx, c, tx); err != nil {
			return uniqueFieldError(err, "creating curriculum")
		}
		entry := activity.Created(SubjectTypeCurriculum, c.ID, fmt.Sprintf("Created curriculum %s (%s)", c.Name, c.Code), c)
		return svc.activity.Record(ctx, entry, tx)
	})
	return c, err
}

func (svc *service) GetCurriculum(ctx context.Context, id int) (Curriculum, error) {
	return svc.repo.GetCurriculum(ctx, id)
}

func (svc *service) QueryCurricula(ctx context.Context, filter CurriculumFilter) ([]Curriculum, error) {
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryCurricula(ctx, filter)
}

func (svc *service) UpdateCurriculum(ctx context.Context, id int, data CurriculumData) (Curriculum, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return Curriculum{}, err
	}

	var c Curriculum
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		orig, err := svc.repo.GetCurriculum(ctx, id, tx)
		if err != nil {
			return err
		}
		c = orig
		c.Name = data.Name
		c.Code = data.Code
		c.Description = data.Description
		if data.IsActive != nil {
			c.IsActive = *data.IsActive
		}
		c.UpdatedAt = now()
		if c, err = svc.repo.UpdateCurriculum(ctx, c, tx); err != nil {
			return uniqueFieldError(err, "updating curriculum")
		}
		return svc.activity.Record(ctx, activity.Updated(SubjectTypeCurriculum, c.ID, "", orig, c), tx)
	})
	return c, err
}

func (svc *service) DeleteCurriculum(ctx context.Context, id int) error {
	return core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		c, err := svc.repo.GetCurriculum(ctx, id, tx)
		if err != nil {
			return err
		}
		if err = svc.repo.DeleteCurriculum(ctx, id, tx); err != nil {
			return err
		}
		return svc.activity.Record(ctx, activity.Deleted(SubjectTypeCurriculum, id, c), tx)
	})
}

func (svc *service) CreateSubject(ctx context.Context, data SubjectData) (Subject, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return Subject{}, err
	}

	s := Subject{
		CurriculumID: data.CurriculumID,
		Name:         data.Name,
		Code:         data.Code,
		Description:  data.Description,
		Credits:      data.Credits,
		CreatedAt:    now(),
		UpdatedAt:    now(),
	}
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) (err error) {
		if err = svc.checkCurriculum(ctx, s.CurriculumID, tx); err != nil {
			return err
		}
		if s, err = svc.repo.CreateSubject(ctx, s, tx); err != nil {
			return uniqueFieldError(err, "creating subject")
		}
		entry := activity.Created(SubjectTypeSubject, s.ID, fmt.Sprintf("Created subject %s (%s)", s.Name, s.Code), s)
		return svc.activity.Record(ctx, entry, tx)
	})
	return s, err
}

func (svc *service) GetSubject(ctx context.Context, id int) (Subject, error) {
	return svc.repo.GetSubject(ctx, id)
}

func (svc *service) QuerySubjects(ctx context.Context, filter SubjectFilter) ([]Subject, error) {
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QuerySubjects(ctx, filter)
}

func (svc *service) SubjectsOf(ctx context.Context, curriculumID int) ([]Subject, error) {
	if _, err := svc.repo.GetCurriculum(ctx, curriculumID); err != nil {
		return nil, err
	}
	return svc.repo.QuerySubjects(ctx, SubjectFilter{CurriculumID: curriculumID})
}

func (svc *service) UpdateSubject(ctx context.Context, id int, data SubjectData) (Subject, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return Subject{}, err
	}

	var s Subject
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		orig, err := svc.repo.GetSubject(ctx, id, tx)
		if err != nil {
			return err
		}
		if data.CurriculumID != orig.CurriculumID {
			if err = svc.checkCurriculum(ctx, data.CurriculumID, tx); err != nil {
				return err
			}
		}
		s = orig
		s.CurriculumID = data.CurriculumID
		s.Name = data.Name
		s.Code = data.Code
		s.Description = data.Description
		s.Credits = data.Credits
		s.UpdatedAt = now()
		if s, err = svc.repo.UpdateSubject(ctx, s, tx); err != nil {
			return uniqueFieldError(err, "updating subject")
		}
		return svc.activity.Record(ctx, activity.Updated(SubjectTypeSubject, s.ID, "", orig, s), tx)
	})
	return s, err
}

func (svc *service) DeleteSubject(ctx context.Context, id int) error {
	return core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		s, err := svc.repo.GetSubject(ctx, id, tx)
		if err != nil {
			return err
		}
		if err = svc.repo.DeleteSubject(ctx, id, tx); err != nil {
			return err
		}
		return svc.activity.Record(ctx, activity.Deleted(SubjectTypeSubject, id, s), tx)
	})
}

func (svc *service) checkCurriculum(ctx context.Context, id int, exec core.DBExecutor) error {
	if _, err := svc.repo.GetCurriculum(ctx, id, exec); err != nil {
		if errors.Cause(err) == ErrCurriculumNotFound {
			return core.NewFieldError("curriculum_id", ErrCurriculumNotFound)
		}
		return errors.Wrap(err, "finding curriculum")
	}
	return nil
}

func (svc *service) parseAcademicYear(data AcademicYearData) (start, end time.Time, err error) {
	if err = svc.validate.Struct(data); err != nil {
		return
	}
	if start, err = core.ParseDate(data.StartDate, time.UTC); err != nil {
		return
	}
	if end, err = core.ParseDate(data.EndDate, time.UTC); err != nil {
		return
	}
	if !end.After(start) {
		err = core.NewFieldError("end_date", errEndBeforeStart)
	}
	return
}

func (svc *service) CreateAcademicYear(ctx context.Context, data AcademicYearData) (AcademicYear, error) {
	data.Name = core.CleanString(data.Name)
	start, end, err := svc.parseAcademicYear(data)
	if err != nil {
		return AcademicYear{}, err
	}

	ay := AcademicYear{
		Name:      data.Name,
		StartDate: start,
		EndDate:   end,
		IsCurrent: data.IsCurrent,
		CreatedAt: now(),
		UpdatedAt: now(),
	}
	err = core.InTx(ctx, svc.db, func(tx core.DBExecutor) (err error) {
		if ay, err = svc.repo.CreateAcademicYear(ctx, ay, tx); err != nil {
			return uniqueFieldError(err, "creating academic year")
		}
		if ay.IsCurrent {
			if err = svc.repo.ClearCurrentAcademicYear(ctx, ay.ID, tx); err != nil {
				return errors.Wrap(err, "clearing current academic year")
			}
		}
		entry := activity.Created(SubjectTypeAcademicYear, ay.ID, "Created academic year "+ay.Name, ay)
		return svc.activity.Record(ctx, entry, tx)
	})
	return ay, err
}

func (svc *service) GetAcademicYear(ctx context.Context, id int) (AcademicYear, error) {
	return svc.repo.GetAcademicYear(ctx, id)
}

func (svc *service) CurrentAcademicYear(ctx context.Context) (AcademicYear, error) {
	return svc.repo.GetCurrentAcademicYear(ctx)
}

func (svc *service) QueryAcademicYears(ctx context.Context) ([]AcademicYear, error) {
	return svc.repo.QueryAcademicYears(ctx)
}

func (svc *service) UpdateAcademicYear(ctx context.Context, id int, data AcademicYearData) (AcademicYear, error) {
	data.Name = core.CleanString(data.Name)
	start, end, err := svc.parseAcademicYear(data)
	if err != nil {
		return AcademicYear{}, err
	}

	var ay AcademicYear
	err = core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		orig, err := svc.repo.GetAcademicYear(ctx, id, tx)
		if err != nil {
			return err
		}
		ay = orig
		ay.Name = data.Name
		ay.StartDate = start
		ay.EndDate = end
		ay.IsCurrent = data.IsCurrent
		ay.UpdatedAt = now()
		if ay, err = svc.repo.UpdateAcademicYear(ctx, ay, tx); err != nil {
			return uniqueFieldError(err, "updating academic year")
		}
		if ay.IsCurrent && !orig.IsCurrent {
			if err = svc.repo.ClearCurrentAcademicYear(ctx, ay.ID, tx); err != nil {
				return errors.Wrap(err, "clearing current academic year")
			}
		}
		return svc.activity.Record(ctx, activity.Updated(SubjectTypeAcademicYear, ay.ID, "", orig, ay), tx)
	})
	return ay, err
}

func (svc *service) DeleteAcademicYear(ctx context.Context, id int) error {
	return core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		ay, err := svc.repo.GetAcademicYear(ctx, id, tx)
		if err != nil {
			return err
		}
		if err = svc.repo.DeleteAcademicYear(ctx, id, tx); err != nil {
			return err
		}
		return svc.activity.Record(ctx, activity.Deleted(SubjectTypeAcademicYear, id, ay), tx)
	})
}

// uniqueFieldError turns repository uniqueness errors into field errors.
func uniqueFieldError(err error, action string) error {
	switch errors.Cause(err) {
	case ErrCodeExists:
		return core.NewFieldError("code", ErrCodeExists)
	case ErrNameExists:
		return core.NewFieldError("name", ErrNameExists)
	}
	if core.IsValidationError(err) {
		return err
	}
	return errors.Wrap(err, action)
}
