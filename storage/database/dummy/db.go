// Package dummydb provides in-memory repositories, used by tests and by the API when no database is configured.
// They enforce the same uniqueness and overlap rules as the postgres schema; transaction executors are ignored.
package dummydb

import (
	"sort"
	"strings"
	"sync"

	"github.com/trezcool/elimu/core/activity"
	"github.com/trezcool/elimu/core/billing"
	"github.com/trezcool/elimu/core/curriculum"
	"github.com/trezcool/elimu/core/enrollment"
	"github.com/trezcool/elimu/core/profile"
	"github.com/trezcool/elimu/core/schedule"
	"github.com/trezcool/elimu/core/user"
)

type DB struct {
	sync.RWMutex
	pks map[string]int

	users map[string]*user.User
	logs  []activity.Log

	curricula     map[int]*curriculum.Curriculum
	subjects      map[int]*curriculum.Subject
	academicYears map[int]*curriculum.AcademicYear

	parents         map[int]*profile.ParentProfile
	clients         map[int]*profile.ClientProfile
	children        map[int]*profile.ChildProfile
	teachers        map[int]*profile.TeacherProfile
	teacherSubjects map[int][]int

	enrollments        map[int]*enrollment.ProgramEnrollment
	subjectEnrollments map[int]*enrollment.SubjectEnrollment

	rooms       map[int]*schedule.Room
	sessions    map[int]*schedule.Session
	attendances map[int]*schedule.Attendance
	slots       map[int]*schedule.TimetableSlot
	exams       map[int]*schedule.Exam
	examResults map[int]*schedule.ExamResult
	events      map[int]*schedule.Event

	plans        map[int]*billing.PaymentPlan
	invoices     map[int]*billing.Invoice
	invoiceItems map[int][]billing.InvoiceItem
	payments     map[int]*billing.Payment
}

func Open() (*DB, error) {
	db := &DB{
		pks:                make(map[string]int),
		users:              make(map[string]*user.User),
		curricula:          make(map[int]*curriculum.Curriculum),
		subjects:           make(map[int]*curriculum.Subject),
		academicYears:      make(map[int]*curriculum.AcademicYear),
		parents:            make(map[int]*profile.ParentProfile),
		clients:            make(map[int]*profile.ClientProfile),
		children:           make(map[int]*profile.ChildProfile),
		teachers:           make(map[int]*profile.TeacherProfile),
		teacherSubjects:    make(map[int][]int),
		enrollments:        make(map[int]*enrollment.ProgramEnrollment),
		subjectEnrollments: make(map[int]*enrollment.SubjectEnrollment),
		rooms:              make(map[int]*schedule.Room),
		sessions:           make(map[int]*schedule.Session),
		attendances:        make(map[int]*schedule.Attendance),
		slots:              make(map[int]*schedule.TimetableSlot),
		exams:              make(map[int]*schedule.Exam),
		examResults:        make(map[int]*schedule.ExamResult),
		events:             make(map[int]*schedule.Event),
		plans:              make(map[int]*billing.PaymentPlan),
		invoices:           make(map[int]*billing.Invoice),
		invoiceItems:       make(map[int][]billing.InvoiceItem),
		payments:           make(map[int]*billing.Payment),
	}
	return db, nil
}

// nextPK must be called with the write lock held.
func (db *DB) nextPK(table string) int {
	db.pks[table]++
	return db.pks[table]
}

// rows copies the values of table in primary key order.
func rows[T any](table map[int]*T) []T {
	ids := make([]int, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	list := make([]T, 0, len(ids))
	for _, id := range ids {
		list = append(list, *table[id])
	}
	return list
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func intPtrEquals(p *int, v int) bool {
	return p != nil && *p == v
}

func strPtrEquals(p *string, v string) bool {
	return p != nil && *p == v
}
