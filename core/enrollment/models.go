package enrollment

import (
	"time"

	"github.com/volatiletech/strmangle"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/curriculum"
)

const (
	SubjectTypeProgramEnrollment = "program_enrollment"
	SubjectTypeSubjectEnrollment = "subject_enrollment"
)

// Statuses
const (
	StatusPending   = "Pending"
	StatusActive    = "Active"
	StatusCompleted = "Completed"
	StatusCancelled = "Cancelled"
)

var Statuses = []string{StatusPending, StatusActive, StatusCompleted, StatusCancelled}

// ProgramEnrollment registers a student in a curriculum for an academic year.
// At most one live enrollment exists per (student, curriculum, academic year).
type ProgramEnrollment struct {
	ID             int        `json:"id" db:"id"`
	ChildProfileID int        `json:"child_profile_id" db:"child_profile_id"`
	CurriculumID   int        `json:"curriculum_id" db:"curriculum_id"`
	AcademicYearID int        `json:"academic_year_id" db:"academic_year_id"`
	Status         string     `json:"status" db:"status"`
	PaymentPlanID  *int       `json:"payment_plan_id" db:"payment_plan_id"`
	EnrollmentDate time.Time  `json:"enrollment_date" db:"enrollment_date"`
	Notes          string     `json:"notes" db:"notes"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt      *time.Time `json:"-" db:"deleted_at"`
}

type SubjectEnrollment struct {
	ID                  int       `json:"id" db:"id"`
	ProgramEnrollmentID int       `json:"program_enrollment_id" db:"program_enrollment_id"`
	SubjectID           int       `json:"subject_id" db:"subject_id"`
	EnrolledAt          time.Time `json:"enrolled_at" db:"enrolled_at"`
}

// EnrollmentData is the payload accepted to create or edit a ProgramEnrollment.
type EnrollmentData struct {
	ChildProfileID int    `json:"child_profile_id" validate:"required"`
	CurriculumID   int    `json:"curriculum_id" validate:"required"`
	AcademicYearID int    `json:"academic_year_id" validate:"required"`
	Status         string `json:"status" validate:"omitempty,enrollment_status"`
	PaymentPlanID  *int   `json:"payment_plan_id"`
	EnrollmentDate string `json:"enrollment_date" validate:"omitempty,ymd"`
	Notes          string `json:"notes"`
}

func (d *EnrollmentData) Clean() {
	if status := core.CleanString(d.Status, true /* lower */); status != "" {
		d.Status = strmangle.TitleCase(status) // "active" -> "Active"
	}
	d.EnrollmentDate = core.CleanString(d.EnrollmentDate)
	d.Notes = core.CleanString(d.Notes)
}

type SubjectsData struct {
	SubjectIDs []int `json:"subject_ids" validate:"required,min=1"`
}

type QueryFilter struct {
	ChildProfileID int    `query:"child_profile_id"`
	CurriculumID   int    `query:"curriculum_id"`
	AcademicYearID int    `query:"academic_year_id"`
	Status         string `query:"status"`
}

// AvailableSubjects returns the curriculum subjects the enrollment is not yet registered for, keeping their order.
func AvailableSubjects(offered []curriculum.Subject, enrolled []SubjectEnrollment) []curriculum.Subject {
	taken := make(map[int]struct{}, len(enrolled))
	for _, se := range enrolled {
		taken[se.SubjectID] = struct{}{}
	}
	available := make([]curriculum.Subject, 0, len(offered))
	for _, s := range offered {
		if _, ok := taken[s.ID]; !ok {
			available = append(available, s)
		}
	}
	return available
}
