package schedule

import (
	"time"

	"github.com/trezcool/elimu/core"
)

const (
	SubjectTypeRoom          = "room"
	SubjectTypeSession       = "session"
	SubjectTypeAttendance    = "attendance"
	SubjectTypeTimetableSlot = "timetable_slot"
	SubjectTypeExam          = "exam"
	SubjectTypeExamResult    = "exam_result"
	SubjectTypeEvent         = "event"
)

// Session types
const (
	TypeLecture   = "lecture"
	TypePractical = "practical"
	TypeTutorial  = "tutorial"
	TypeLab       = "lab"
	TypeSeminar   = "seminar"
)

// Attendance statuses
const (
	AttendancePresent = "present"
	AttendanceAbsent  = "absent"
	AttendanceLate    = "late"
	AttendanceExcused = "excused"
)

// Event audiences
const (
	AudienceAll      = "all"
	AudienceStudents = "students"
	AudienceParents  = "parents"
	AudienceTeachers = "teachers"
)

var (
	SessionTypes       = []string{TypeLecture, TypePractical, TypeTutorial, TypeLab, TypeSeminar}
	AttendanceStatuses = []string{AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceExcused}
	Audiences          = []string{AudienceAll, AudienceStudents, AudienceParents, AudienceTeachers}
)

// NowFunc is overridden in tests.
var NowFunc = time.Now

type Room struct {
	ID        int       `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Capacity  int       `json:"capacity" db:"capacity"`
	Location  string    `json:"location" db:"location"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Session is one scheduled class meeting; it occupies [StartTime, EndTime).
type Session struct {
	ID               int       `json:"id" db:"id"`
	SubjectID        int       `json:"subject_id" db:"subject_id"`
	TeacherProfileID int       `json:"teacher_profile_id" db:"teacher_profile_id"`
	RoomID           *int      `json:"room_id" db:"room_id"`
	Type             string    `json:"type" db:"type"`
	StartTime        time.Time `json:"start_time" db:"start_time"`
	EndTime          time.Time `json:"end_time" db:"end_time"`
	OnlineLink       string    `json:"online_link" db:"online_link"`
	Description      string    `json:"description" db:"description"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Overlaps reports whether two half-open intervals [aStart, aEnd) and [bStart, bEnd) intersect.
// Back-to-back intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

func (s Session) Overlaps(other Session) bool {
	return Overlaps(s.StartTime, s.EndTime, other.StartTime, other.EndTime)
}

type Attendance struct {
	ID             int       `json:"id" db:"id"`
	SessionID      int       `json:"session_id" db:"session_id"`
	ChildProfileID int       `json:"child_profile_id" db:"child_profile_id"`
	Status         string    `json:"status" db:"status"`
	Remarks        string    `json:"remarks" db:"remarks"`
	RecordedAt     time.Time `json:"recorded_at" db:"recorded_at"`
}

// TimetableSlot is a recurring weekly entry; Weekday follows time.Weekday (0 = Sunday).
type TimetableSlot struct {
	ID               int       `json:"id" db:"id"`
	SubjectID        int       `json:"subject_id" db:"subject_id"`
	TeacherProfileID int       `json:"teacher_profile_id" db:"teacher_profile_id"`
	RoomID           *int      `json:"room_id" db:"room_id"`
	AcademicYearID   int       `json:"academic_year_id" db:"academic_year_id"`
	Weekday          int       `json:"weekday" db:"weekday"`
	StartTime        string    `json:"start_time" db:"start_time"` // HH:MM
	EndTime          string    `json:"end_time" db:"end_time"`     // HH:MM
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

type Exam struct {
	ID               int       `json:"id" db:"id"`
	SubjectID        int       `json:"subject_id" db:"subject_id"`
	TeacherProfileID *int      `json:"teacher_profile_id" db:"teacher_profile_id"`
	RoomID           *int      `json:"room_id" db:"room_id"`
	Title            string    `json:"title" db:"title"`
	ExamDate         time.Time `json:"exam_date" db:"exam_date"`
	DurationMinutes  int       `json:"duration_minutes" db:"duration_minutes"`
	TotalMarks       float64   `json:"total_marks" db:"total_marks"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

type ExamResult struct {
	ID             int       `json:"id" db:"id"`
	ExamID         int       `json:"exam_id" db:"exam_id"`
	ChildProfileID int       `json:"child_profile_id" db:"child_profile_id"`
	Marks          float64   `json:"marks" db:"marks"`
	Grade          string    `json:"grade" db:"grade"`
	Remarks        string    `json:"remarks" db:"remarks"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Grade maps a percentage to a letter grade.
func Grade(marks, total float64) string {
	if total <= 0 {
		return ""
	}
	switch pct := marks / total * 100; {
	case pct >= 80:
		return "A"
	case pct >= 70:
		return "B"
	case pct >= 60:
		return "C"
	case pct >= 50:
		return "D"
	default:
		return "E"
	}
}

type Event struct {
	ID          int       `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	StartTime   time.Time `json:"start_time" db:"start_time"`
	EndTime     time.Time `json:"end_time" db:"end_time"`
	Location    string    `json:"location" db:"location"`
	Audience    string    `json:"audience" db:"audience"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

type RoomData struct {
	Name     string `json:"name" validate:"required,max=100"`
	Capacity int    `json:"capacity" validate:"gte=0"`
	Location string `json:"location" validate:"max=255"`
	IsActive *bool  `json:"is_active"`
}

func (d *RoomData) Clean() {
	d.Name = core.CleanString(d.Name)
	d.Location = core.CleanString(d.Location)
}

// SessionData is the scheduling form: a date plus start and end clock times, in the school's timezone.
type SessionData struct {
	SubjectID int    `json:"subject_id" validate:"required"`
	RoomID    *int   `json:"room_id"`
	Type      string `json:"type" validate:"required,session_type"`
	Date      string `json:"date" validate:"required,ymd"`
	StartTime string `json:"start_time" validate:"required,hhmm"`
	EndTime   string `json:"end_time" validate:"required,hhmm"`
	// TeacherProfileID lets admins schedule on behalf of a teacher; teachers always schedule for themselves.
	TeacherProfileID *int   `json:"teacher_profile_id"`
	OnlineLink       string `json:"online_link" validate:"omitempty,url"`
	Description      string `json:"description"`
}

func (d *SessionData) Clean() {
	d.Type = core.CleanString(d.Type, true /* lower */)
	d.Date = core.CleanString(d.Date)
	d.StartTime = core.CleanString(d.StartTime)
	d.EndTime = core.CleanString(d.EndTime)
	d.OnlineLink = core.CleanString(d.OnlineLink)
	d.Description = core.CleanString(d.Description)
}

type AttendanceRecord struct {
	ChildProfileID int    `json:"child_profile_id" validate:"required"`
	Status         string `json:"status" validate:"required,attendance_status"`
	Remarks        string `json:"remarks"`
}

type AttendanceData struct {
	Records []AttendanceRecord `json:"records" validate:"required,min=1,dive"`
}

type TimetableSlotData struct {
	SubjectID        int    `json:"subject_id" validate:"required"`
	TeacherProfileID int    `json:"teacher_profile_id" validate:"required"`
	RoomID           *int   `json:"room_id"`
	AcademicYearID   int    `json:"academic_year_id" validate:"required"`
	Weekday          int    `json:"weekday" validate:"gte=0,lte=6"`
	StartTime        string `json:"start_time" validate:"required,hhmm"`
	EndTime          string `json:"end_time" validate:"required,hhmm"`
}

type ExamData struct {
	SubjectID        int     `json:"subject_id" validate:"required"`
	TeacherProfileID *int    `json:"teacher_profile_id"`
	RoomID           *int    `json:"room_id"`
	Title            string  `json:"title" validate:"required,max=255"`
	Date             string  `json:"date" validate:"required,ymd"`
	StartTime        string  `json:"start_time" validate:"required,hhmm"`
	DurationMinutes  int     `json:"duration_minutes" validate:"gt=0"`
	TotalMarks       float64 `json:"total_marks" validate:"gt=0"`
}

type ExamResultRecord struct {
	ChildProfileID int     `json:"child_profile_id" validate:"required"`
	Marks          float64 `json:"marks" validate:"gte=0"`
	Grade          string  `json:"grade" validate:"max=5"`
	Remarks        string  `json:"remarks"`
}

type ExamResultsData struct {
	Results []ExamResultRecord `json:"results" validate:"required,min=1,dive"`
}

type EventData struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description"`
	StartDate   string `json:"start_date" validate:"required,ymd"`
	StartTime   string `json:"start_time" validate:"omitempty,hhmm"`
	EndDate     string `json:"end_date" validate:"required,ymd"`
	EndTime     string `json:"end_time" validate:"omitempty,hhmm"`
	Location    string `json:"location" validate:"max=255"`
	Audience    string `json:"audience" validate:"omitempty,audience"`
}

type SessionFilter struct {
	SubjectID        int       `query:"subject_id"`
	TeacherProfileID int       `query:"teacher_profile_id"`
	RoomID           int       `query:"room_id"`
	Type             string    `query:"type"`
	From             time.Time `query:"from"`
	To               time.Time `query:"to"`
}

type SlotFilter struct {
	AcademicYearID   int  `query:"academic_year_id"`
	TeacherProfileID int  `query:"teacher_profile_id"`
	SubjectID        int  `query:"subject_id"`
	RoomID           int  `query:"room_id"`
	Weekday          *int `query:"weekday"`
}

type ExamFilter struct {
	SubjectID int       `query:"subject_id"`
	From      time.Time `query:"from"`
	To        time.Time `query:"to"`
}

type EventFilter struct {
	Audience string    `query:"audience"`
	From     time.Time `query:"from"`
	To       time.Time `query:"to"`
}
