package profile

import (
	"encoding/json"
	"strings"
	"time"
	"unicode"

	"github.com/trezcool/elimu/core"
)

const (
	SubjectTypeChild   = "child_profile"
	SubjectTypeParent  = "parent_profile"
	SubjectTypeClient  = "client_profile"
	SubjectTypeTeacher = "teacher_profile"
)

// Genders
const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

var Genders = []string{GenderMale, GenderFemale, GenderOther}

// NowFunc is overridden in tests.
var NowFunc = time.Now

type ParentProfile struct {
	ID        int       `json:"id" db:"id"`
	UserID    *string   `json:"user_id" db:"user_id"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	Email     string    `json:"email" db:"email"`
	Phone     string    `json:"phone" db:"phone"`
	Address   string    `json:"address" db:"address"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (p ParentProfile) FullName() string { return fullName(p.FirstName, p.LastName) }

type ClientProfile struct {
	ID        int       `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Phone     string    `json:"phone" db:"phone"`
	Address   string    `json:"address" db:"address"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ChildProfile is a student.
type ChildProfile struct {
	ID        int        `json:"id" db:"id"`
	UserID    *string    `json:"user_id" db:"user_id"`
	ParentID  int        `json:"parent_id" db:"parent_id"`
	ClientID  *int       `json:"client_id" db:"client_id"`
	FirstName string     `json:"first_name" db:"first_name"`
	LastName  string     `json:"last_name" db:"last_name"`
	BirthDate *time.Time `json:"birth_date" db:"birth_date"`
	Gender    string     `json:"gender" db:"gender"`
	Notes     string     `json:"notes" db:"notes"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

func (c ChildProfile) FullName() string { return fullName(c.FirstName, c.LastName) }

// Initials returns the uppercased first letters of the first and last names: "Amani Otieno" -> "AO".
func (c ChildProfile) Initials() string {
	var b strings.Builder
	for _, name := range []string{c.FirstName, c.LastName} {
		for _, r := range strings.TrimSpace(name) {
			b.WriteRune(unicode.ToUpper(r))
			break
		}
	}
	return b.String()
}

// Age returns the age in whole years at now; ok is false when the birth date is unknown.
func (c ChildProfile) Age(now time.Time) (age int, ok bool) {
	if c.BirthDate == nil {
		return 0, false
	}
	bd := c.BirthDate.In(now.Location())
	age = now.Year() - bd.Year()
	if now.Month() < bd.Month() || (now.Month() == bd.Month() && now.Day() < bd.Day()) {
		age--
	}
	if age < 0 {
		age = 0
	}
	return age, true
}

// MarshalJSON adds the derived attributes.
func (c ChildProfile) MarshalJSON() ([]byte, error) {
	type child ChildProfile
	var age *int
	if a, ok := c.Age(NowFunc()); ok {
		age = &a
	}
	return json.Marshal(struct {
		child
		FullName string `json:"full_name"`
		Initials string `json:"initials"`
		Age      *int   `json:"age"`
	}{child(c), c.FullName(), c.Initials(), age})
}

type TeacherProfile struct {
	ID             int       `json:"id" db:"id"`
	UserID         *string   `json:"user_id" db:"user_id"`
	FirstName      string    `json:"first_name" db:"first_name"`
	LastName       string    `json:"last_name" db:"last_name"`
	Email          string    `json:"email" db:"email"`
	Phone          string    `json:"phone" db:"phone"`
	Specialization string    `json:"specialization" db:"specialization"`
	SubjectIDs     []int     `json:"subject_ids" db:"-"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

func (t TeacherProfile) FullName() string { return fullName(t.FirstName, t.LastName) }

// Teaches reports whether the subject is assigned to the teacher.
func (t TeacherProfile) Teaches(subjectID int) bool {
	return core.ContainsInt(t.SubjectIDs, subjectID)
}

func fullName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

type ParentData struct {
	UserID    *string `json:"user_id" validate:"omitempty,uuid"`
	FirstName string  `json:"first_name" validate:"required,max=100"`
	LastName  string  `json:"last_name" validate:"required,max=100"`
	Email     string  `json:"email" validate:"omitempty,email"`
	Phone     string  `json:"phone" validate:"max=30"`
	Address   string  `json:"address"`
}

func (d *ParentData) Clean() {
	d.FirstName = core.CleanString(d.FirstName)
	d.LastName = core.CleanString(d.LastName)
	d.Email = core.CleanString(d.Email, true /* lower */)
	d.Phone = core.CleanString(d.Phone)
	d.Address = core.CleanString(d.Address)
}

type ClientData struct {
	Name    string `json:"name" validate:"required,max=255"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone" validate:"max=30"`
	Address string `json:"address"`
}

func (d *ClientData) Clean() {
	d.Name = core.CleanString(d.Name)
	d.Email = core.CleanString(d.Email, true /* lower */)
	d.Phone = core.CleanString(d.Phone)
	d.Address = core.CleanString(d.Address)
}

type ChildData struct {
	UserID    *string `json:"user_id" validate:"omitempty,uuid"`
	ParentID  int     `json:"parent_id" validate:"required"`
	ClientID  *int    `json:"client_id"`
	FirstName string  `json:"first_name" validate:"required,max=100"`
	LastName  string  `json:"last_name" validate:"required,max=100"`
	BirthDate string  `json:"birth_date" validate:"omitempty,ymd"`
	Gender    string  `json:"gender" validate:"omitempty,gender"`
	Notes     string  `json:"notes"`
}

func (d *ChildData) Clean() {
	d.FirstName = core.CleanString(d.FirstName)
	d.LastName = core.CleanString(d.LastName)
	d.BirthDate = core.CleanString(d.BirthDate)
	d.Gender = core.CleanString(d.Gender, true /* lower */)
	d.Notes = strings.TrimSpace(d.Notes)
}

type TeacherData struct {
	UserID         *string `json:"user_id" validate:"omitempty,uuid"`
	FirstName      string  `json:"first_name" validate:"required,max=100"`
	LastName       string  `json:"last_name" validate:"required,max=100"`
	Email          string  `json:"email" validate:"omitempty,email"`
	Phone          string  `json:"phone" validate:"max=30"`
	Specialization string  `json:"specialization" validate:"max=255"`
	SubjectIDs     []int   `json:"subject_ids"`
}

func (d *TeacherData) Clean() {
	d.FirstName = core.CleanString(d.FirstName)
	d.LastName = core.CleanString(d.LastName)
	d.Email = core.CleanString(d.Email, true /* lower */)
	d.Phone = core.CleanString(d.Phone)
	d.Specialization = core.CleanString(d.Specialization)
}

type QueryFilter struct {
	Search   string `query:"search"`
	ParentID int    `query:"parent_id"`
	ClientID int    `query:"client_id"`
	UserID   string `query:"user_id"`
}
