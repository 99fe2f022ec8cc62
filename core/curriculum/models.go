package curriculum

import (
	"strings"
	"time"

	"github.com/trezcool/elimu/core"
)

// SubjectType is the audit subject type of each model.
const (
	SubjectTypeCurriculum   = "curriculum"
	SubjectTypeSubject      = "subject"
	SubjectTypeAcademicYear = "academic_year"
)

type Curriculum struct {
	ID          int       `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Code        string    `json:"code" db:"code"`
	Description string    `json:"description" db:"description"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

type Subject struct {
	ID           int       `json:"id" db:"id"`
	CurriculumID int       `json:"curriculum_id" db:"curriculum_id"`
	Name         string    `json:"name" db:"name"`
	Code         string    `json:"code" db:"code"`
	Description  string    `json:"description" db:"description"`
	Credits      int       `json:"credits" db:"credits"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type AcademicYear struct {
	ID        int       `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	StartDate time.Time `json:"start_date" db:"start_date"`
	EndDate   time.Time `json:"end_date" db:"end_date"`
	IsCurrent bool      `json:"is_current" db:"is_current"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Contains reports whether t falls on a day of the academic year.
func (ay AcademicYear) Contains(t time.Time) bool {
	day := core.StartOfDay(t)
	return !day.Before(core.StartOfDay(ay.StartDate)) && !day.After(core.StartOfDay(ay.EndDate))
}

// CurriculumData is the payload accepted to create or replace a Curriculum.
type CurriculumData struct {
	Name        string `json:"name" validate:"required,max=255"`
	Code        string `json:"code" validate:"required,max=50,alphanum_"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active"`
}

func (d *CurriculumData) Clean() {
	d.Name = core.CleanString(d.Name)
	d.Code = strings.ToUpper(core.CleanString(d.Code))
	d.Description = core.CleanString(d.Description)
}

type SubjectData struct {
	CurriculumID int    `json:"curriculum_id" validate:"required"`
	Name         string `json:"name" validate:"required,max=255"`
	Code         string `json:"code" validate:"required,max=50,alphanum_"`
	Description  string `json:"description"`
	Credits      int    `json:"credits" validate:"gte=0"`
}

func (d *SubjectData) Clean() {
	d.Name = core.CleanString(d.Name)
	d.Code = strings.ToUpper(core.CleanString(d.Code))
	d.Description = core.CleanString(d.Description)
}

type AcademicYearData struct {
	Name      string `json:"name" validate:"required,max=50"`
	StartDate string `json:"start_date" validate:"required,ymd"`
	EndDate   string `json:"end_date" validate:"required,ymd"`
	IsCurrent bool   `json:"is_current"`
}

type CurriculumFilter struct {
	Search   string `query:"search"`
	IsActive *bool  `query:"is_active"`
}

type SubjectFilter struct {
	Search       string `query:"search"`
	CurriculumID int    `query:"curriculum_id"`
	IDs          []int  `query:"-"`
}
