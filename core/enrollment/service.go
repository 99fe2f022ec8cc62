package enrollment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/strmangle"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/activity"
	"github.com/trezcool/elimu/core/billing"
	"github.com/trezcool/elimu/core/curriculum"
	"github.com/trezcool/elimu/core/profile"
)

var (
	// errors
	ErrNotFound                  = errors.New("enrollment not found")
	ErrSubjectEnrollmentNotFound = errors.New("subject enrollment not found")
	ErrDuplicate                 = errors.New("this student is already enrolled in this curriculum for this academic year")
	ErrSubjectNotOffered         = errors.New("subject is not offered by the curriculum or is already enrolled")
	ErrSubjectEnrolled           = errors.New("subject is already enrolled")
	ErrCurriculumLocked          = errors.New("the curriculum cannot change while subjects are enrolled")
)

// NowFunc is overridden in tests.
var NowFunc = time.Now

type (
	Repository interface {
		// ExistsForTriple reports whether a live enrollment other than excludeID holds the triple.
		ExistsForTriple(ctx context.Context, childID, curriculumID, academicYearID, excludeID int, exec ...core.DBExecutor) (bool, error)
		// CreateEnrollment returns ErrDuplicate when the triple is already enrolled.
		CreateEnrollment(ctx context.Context, e ProgramEnrollment, exec ...core.DBExecutor) (ProgramEnrollment, error)
		GetEnrollment(ctx context.Context, id int, exec ...core.DBExecutor) (ProgramEnrollment, error)
		QueryEnrollments(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]ProgramEnrollment, error)
		// UpdateEnrollment returns ErrDuplicate when the new triple is already enrolled.
		UpdateEnrollment(ctx context.Context, e ProgramEnrollment, exec ...core.DBExecutor) (ProgramEnrollment, error)
		SoftDeleteEnrollment(ctx context.Context, id int, at time.Time, exec ...core.DBExecutor) error

		QuerySubjectEnrollments(ctx context.Context, enrollmentID int, exec ...core.DBExecutor) ([]SubjectEnrollment, error)
		// CreateSubjectEnrollments returns ErrSubjectEnrolled when one of the subjects is already enrolled.
		CreateSubjectEnrollments(ctx context.Context, enrollmentID int, subjectIDs []int, at time.Time, exec ...core.DBExecutor) ([]SubjectEnrollment, error)
		DeleteSubjectEnrollment(ctx context.Context, enrollmentID, id int, exec ...core.DBExecutor) (SubjectEnrollment, error)
	}

	Service interface {
		Create(ctx context.Context, data EnrollmentData) (ProgramEnrollment, error)
		Get(ctx context.Context, id int) (ProgramEnrollment, error)
		Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]ProgramEnrollment, error)
		Update(ctx context.Context, id int, data EnrollmentData) (ProgramEnrollment, error)
		Delete(ctx context.Context, id int) error

		Subjects(ctx context.Context, id int) ([]SubjectEnrollment, error)
		// AvailableSubjects lists the curriculum subjects not yet enrolled under the enrollment.
		AvailableSubjects(ctx context.Context, id int) ([]curriculum.Subject, error)
		AddSubjects(ctx context.Context, id int, data SubjectsData) ([]SubjectEnrollment, error)
		// RemoveSubject deletes one subject enrollment; the program enrollment and its other subjects are kept.
		RemoveSubject(ctx context.Context, id, subjectEnrollmentID int) error
	}

	service struct {
		db        core.DB
		repo      Repository
		curricula curriculum.Repository
		profiles  profile.Repository
		billing   billing.Repository
		activity  activity.Recorder
		validate  *validator.Validate
		conf      *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(
	db core.DB,
	repo Repository,
	curricula curriculum.Repository,
	profiles profile.Repository,
	billingRepo billing.Repository,
	recorder activity.Recorder,
	validate *validator.Validate,
	conf *core.Config,
) Service {
	return &service{
		db:        db,
		repo:      repo,
		curricula: curricula,
		profiles:  profiles,
		billing:   billingRepo,
		activity:  recorder,
		validate:  validate,
		conf:      conf,
	}
}

// checkReferences makes sure every entity referenced by data exists.
func (svc *service) checkReferences(ctx context.Context, data EnrollmentData, exec core.DBExecutor) error {
	if _, err := svc.profiles.GetChild(ctx, data.ChildProfileID, exec); err != nil {
		if errors.Cause(err) == profile.ErrChildNotFound {
			return core.NewFieldError("child_profile_id", profile.ErrChildNotFound)
		}
		return errors.Wrap(err, "finding student")
	}
	if _, err := svc.curricula.GetCurriculum(ctx, data.CurriculumID, exec); err != nil {
		if errors.Cause(err) == curriculum.ErrCurriculumNotFound {
			return core.NewFieldError("curriculum_id", curriculum.ErrCurriculumNotFound)
		}
		return errors.Wrap(err, "finding curriculum")
	}
	if _, err := svc.curricula.GetAcademicYear(ctx, data.AcademicYearID, exec); err != nil {
		if errors.Cause(err) == curriculum.ErrAcademicYearNotFound {
			return core.NewFieldError("academic_year_id", curriculum.ErrAcademicYearNotFound)
		}
		return errors.Wrap(err, "finding academic year")
	}
	if data.PaymentPlanID != nil {
		if _, err := svc.billing.GetPaymentPlan(ctx, *data.PaymentPlanID, exec); err != nil {
			if errors.Cause(err) == billing.ErrPlanNotFound {
				return core.NewFieldError("payment_plan_id", billing.ErrPlanNotFound)
			}
			return errors.Wrap(err, "finding payment plan")
		}
	}
	return nil
}

// checkDuplicate rejects a triple already held by another live enrollment.
// The database unique index stays the final arbiter for concurrent requests.
func (svc *service) checkDuplicate(ctx context.Context, data EnrollmentData, excludeID int, exec core.DBExecutor) error {
	exists, err := svc.repo.ExistsForTriple(ctx, data.ChildProfileID, data.CurriculumID, data.AcademicYearID, excludeID, exec)
	if err != nil {
		return errors.Wrap(err, "checking duplicate enrollment")
	}
	if exists {
		return duplicateError()
	}
	return nil
}

func duplicateError() error {
	return core.NewFieldError("child_profile_id", ErrDuplicate)
}

func (svc *service) enrollmentDate(data EnrollmentData) time.Time {
	if data.EnrollmentDate != "" {
		if d, err := core.ParseDate(data.EnrollmentDate, time.UTC); err == nil {
			return d
		}
	}
	now := NowFunc().In(svc.conf.Timezone)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (svc *service) Create(ctx context.Context, data EnrollmentData) (ProgramEnrollment, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return ProgramEnrollment{}, err
	}

	now := NowFunc().UTC()
	e := ProgramEnrollment{
		ChildProfileID: data.ChildProfileID,
		CurriculumID:   data.CurriculumID,
		AcademicYearID: data.AcademicYearID,
		Status:         data.Status,
		PaymentPlanID:  data.PaymentPlanID,
		EnrollmentDate: svc.enrollmentDate(data),
		Notes:          data.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if e.Status == "" {
		e.Status = StatusPending
	}

	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) (err error) {
		if err = svc.checkReferences(ctx, data, tx); err != nil {
			return err
		}
		if err = svc.checkDuplicate(ctx, data, 0, tx); err != nil {
			return err
		}
		if e, err = svc.repo.CreateEnrollment(ctx, e, tx); err != nil {
			if errors.Cause(err) == ErrDuplicate {
				return duplicateError()
			}
			return errors.Wrap(err, "creating enrollment")
		}
		desc := fmt.Sprintf("Enrolled student #%d in curriculum #%d for academic year #%d (%s)",
			e.ChildProfileID, e.CurriculumID, e.AcademicYearID, e.Status)
		return svc.activity.Record(ctx, activity.Created(SubjectTypeProgramEnrollment, e.ID, desc, e), tx)
	})
	if err != nil {
		return ProgramEnrollment{}, err
	}
	return e, nil
}

func (svc *service) Get(ctx context.Context, id int) (ProgramEnrollment, error) {
	return svc.repo.GetEnrollment(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]ProgramEnrollment, error) {
	if status := core.CleanString(filter.Status, true /* lower */); status != "" {
		filter.Status = strmangle.TitleCase(status)
	}
	ordering = core.CleanOrderings(ordering, "enrollment_date", "status", "created_at", "updated_at")
	return svc.repo.QueryEnrollments(ctx, filter, ordering)
}

func (svc *service) Update(ctx context.Context, id int, data EnrollmentData) (ProgramEnrollment, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return ProgramEnrollment{}, err
	}

	var e ProgramEnrollment
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		orig, err := svc.repo.GetEnrollment(ctx, id, tx)
		if err != nil {
			return err
		}
		if err = svc.checkReferences(ctx, data, tx); err != nil {
			return err
		}
		if err = svc.checkDuplicate(ctx, data, orig.ID, tx); err != nil {
			return err
		}
		if data.CurriculumID != orig.CurriculumID {
			// subject enrollments belong to the curriculum
			enrolled, err := svc.repo.QuerySubjectEnrollments(ctx, orig.ID, tx)
			if err != nil {
				return errors.Wrap(err, "querying subject enrollments")
			}
			if len(enrolled) > 0 {
				return core.NewFieldError("curriculum_id", ErrCurriculumLocked)
			}
		}

		e = orig
		e.ChildProfileID = data.ChildProfileID
		e.CurriculumID = data.CurriculumID
		e.AcademicYearID = data.AcademicYearID
		if data.Status != "" {
			e.Status = data.Status
		}
		e.PaymentPlanID = data.PaymentPlanID
		if data.EnrollmentDate != "" {
			e.EnrollmentDate = svc.enrollmentDate(data)
		}
		e.Notes = data.Notes
		e.UpdatedAt = NowFunc().UTC()
		if e, err = svc.repo.UpdateEnrollment(ctx, e, tx); err != nil {
			if errors.Cause(err) == ErrDuplicate {
				return duplicateError()
			}
			return errors.Wrap(err, "updating enrollment")
		}
		return svc.activity.Record(ctx, activity.Updated(SubjectTypeProgramEnrollment, e.ID, "", orig, e), tx)
	})
	if err != nil {
		return ProgramEnrollment{}, err
	}
	return e, nil
}

func (svc *service) Delete(ctx context.Context, id int) error {
	return core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		e, err := svc.repo.GetEnrollment(ctx, id, tx)
		if err != nil {
			return err
		}
		if err = svc.repo.SoftDeleteEnrollment(ctx, id, NowFunc().UTC(), tx); err != nil {
			return errors.Wrap(err, "deleting enrollment")
		}
		return svc.activity.Record(ctx, activity.Deleted(SubjectTypeProgramEnrollment, id, e), tx)
	})
}

func (svc *service) Subjects(ctx context.Context, id int) ([]SubjectEnrollment, error) {
	if _, err := svc.repo.GetEnrollment(ctx, id); err != nil {
		return nil, err
	}
	return svc.repo.QuerySubjectEnrollments(ctx, id)
}

func (svc *service) availableSubjects(ctx context.Context, e ProgramEnrollment, exec core.DBExecutor) ([]curriculum.Subject, error) {
	offered, err := svc.curricula.QuerySubjects(ctx, curriculum.SubjectFilter{CurriculumID: e.CurriculumID}, exec)
	if err != nil {
		return nil, errors.Wrap(err, "querying curriculum subjects")
	}
	enrolled, err := svc.repo.QuerySubjectEnrollments(ctx, e.ID, exec)
	if err != nil {
		return nil, errors.Wrap(err, "querying subject enrollments")
	}
	return AvailableSubjects(offered, enrolled), nil
}

func (svc *service) AvailableSubjects(ctx context.Context, id int) ([]curriculum.Subject, error) {
	e, err := svc.repo.GetEnrollment(ctx, id)
	if err != nil {
		return nil, err
	}
	return svc.availableSubjects(ctx, e, nil)
}

func (svc *service) AddSubjects(ctx context.Context, id int, data SubjectsData) ([]SubjectEnrollment, error) {
	if err := svc.validate.Struct(data); err != nil {
		return nil, err
	}

	var added []SubjectEnrollment
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		e, err := svc.repo.GetEnrollment(ctx, id, tx)
		if err != nil {
			return err
		}
		available, err := svc.availableSubjects(ctx, e, tx)
		if err != nil {
			return err
		}
		availableIDs := make([]int, 0, len(available))
		for _, s := range available {
			availableIDs = append(availableIDs, s.ID)
		}
		subjectIDs := make([]int, 0, len(data.SubjectIDs))
		for _, sid := range data.SubjectIDs {
			if core.ContainsInt(subjectIDs, sid) {
				continue
			}
			if !core.ContainsInt(availableIDs, sid) {
				return core.NewValidationError(ErrSubjectNotOffered, core.FieldError{
					Field: "subject_ids",
					Error: fmt.Sprintf("subject %d is not offered by this curriculum or is already enrolled", sid),
				})
			}
			subjectIDs = append(subjectIDs, sid)
		}

		if added, err = svc.repo.CreateSubjectEnrollments(ctx, e.ID, subjectIDs, NowFunc().UTC(), tx); err != nil {
			if errors.Cause(err) == ErrSubjectEnrolled {
				return core.NewFieldError("subject_ids", ErrSubjectEnrolled)
			}
			return errors.Wrap(err, "creating subject enrollments")
		}
		for _, se := range added {
			desc := fmt.Sprintf("Enrolled subject #%d under enrollment #%d", se.SubjectID, e.ID)
			if err = svc.activity.Record(ctx, activity.Created(SubjectTypeSubjectEnrollment, se.ID, desc, se), tx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

func (svc *service) RemoveSubject(ctx context.Context, id, subjectEnrollmentID int) error {
	return core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if _, err := svc.repo.GetEnrollment(ctx, id, tx); err != nil {
			return err
		}
		se, err := svc.repo.DeleteSubjectEnrollment(ctx, id, subjectEnrollmentID, tx)
		if err != nil {
			return err
		}
		return svc.activity.Record(ctx, activity.Deleted(SubjectTypeSubjectEnrollment, se.ID, se), tx)
	})
}
