package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/schedule"
)

type scheduleRepository struct {
	db *DB
}

var _ schedule.Repository = (*scheduleRepository)(nil) // interface compliance check

func NewScheduleRepository(db *DB) schedule.Repository {
	return &scheduleRepository{db: db}
}

// deleteSession drops the session with its attendance; the write lock must be held.
func deleteSession(db *DB, id int) {
	delete(db.sessions, id)
	for attID, a := range db.attendances {
		if a.SessionID == id {
			delete(db.attendances, attID)
		}
	}
}

// deleteExam drops the exam with its results; the write lock must be held.
func deleteExam(db *DB, id int) {
	delete(db.exams, id)
	for resID, r := range db.examResults {
		if r.ExamID == id {
			delete(db.examResults, resID)
		}
	}
}

func inRange(t, from, to time.Time) bool {
	return (from.IsZero() || !t.Before(from)) && (to.IsZero() || t.Before(to))
}

func (repo *scheduleRepository) checkRefs(subjectID int, teacherID *int, roomID *int) error {
	if _, ok := repo.db.subjects[subjectID]; !ok {
		return core.NewFieldError("subject_id", errReferencedMissing)
	}
	if teacherID != nil {
		if _, ok := repo.db.teachers[*teacherID]; !ok {
			return core.NewFieldError("teacher_profile_id", errReferencedMissing)
		}
	}
	if roomID != nil {
		if _, ok := repo.db.rooms[*roomID]; !ok {
			return core.NewFieldError("room_id", errReferencedMissing)
		}
	}
	return nil
}

// rooms

func (repo *scheduleRepository) roomNameTaken(r schedule.Room) bool {
	for _, other := range repo.db.rooms {
		if other.ID != r.ID && other.Name == r.Name {
			return true
		}
	}
	return false
}

func (repo *scheduleRepository) CreateRoom(_ context.Context, r schedule.Room, _ ...core.DBExecutor) (schedule.Room, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.roomNameTaken(r) {
		return schedule.Room{}, core.NewFieldError("name", schedule.ErrRoomNameExists)
	}
	r.ID = repo.db.nextPK("rooms")
	repo.db.rooms[r.ID] = &r
	return r, nil
}

func (repo *scheduleRepository) GetRoom(_ context.Context, id int, _ ...core.DBExecutor) (schedule.Room, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if r, ok := repo.db.rooms[id]; ok {
		return *r, nil
	}
	return schedule.Room{}, schedule.ErrRoomNotFound
}

func (repo *scheduleRepository) QueryRooms(_ context.Context, activeOnly bool, _ ...core.DBExecutor) ([]schedule.Room, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	list := make([]schedule.Room, 0)
	for _, r := range rows(repo.db.rooms) {
		if !activeOnly || r.IsActive {
			list = append(list, r)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (repo *scheduleRepository) UpdateRoom(_ context.Context, r schedule.Room, _ ...core.DBExecutor) (schedule.Room, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.rooms[r.ID]; !ok {
		return schedule.Room{}, schedule.ErrRoomNotFound
	}
	if repo.roomNameTaken(r) {
		return schedule.Room{}, core.NewFieldError("name", schedule.ErrRoomNameExists)
	}
	repo.db.rooms[r.ID] = &r
	return r, nil
}

func (repo *scheduleRepository) DeleteRoom(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.rooms[id]; !ok {
		return schedule.ErrRoomNotFound
	}
	delete(repo.db.rooms, id)
	for _, s := range repo.db.sessions {
		if intPtrEquals(s.RoomID, id) {
			s.RoomID = nil
		}
	}
	for _, s := range repo.db.slots {
		if intPtrEquals(s.RoomID, id) {
			s.RoomID = nil
		}
	}
	for _, e := range repo.db.exams {
		if intPtrEquals(e.RoomID, id) {
			e.RoomID = nil
		}
	}
	return nil
}

// sessions

func (repo *scheduleRepository) conflicts(roomID int, start, end time.Time, excludeID int) []schedule.Session {
	list := make([]schedule.Session, 0)
	for _, s := range rows(repo.db.sessions) {
		if s.ID != excludeID && intPtrEquals(s.RoomID, roomID) && schedule.Overlaps(s.StartTime, s.EndTime, start, end) {
			list = append(list, s)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].StartTime.Before(list[j].StartTime) })
	return list
}

func (repo *scheduleRepository) checkSession(s schedule.Session) error {
	teacherID := s.TeacherProfileID
	if err := repo.checkRefs(s.SubjectID, &teacherID, s.RoomID); err != nil {
		return err
	}
	if s.RoomID != nil && len(repo.conflicts(*s.RoomID, s.StartTime, s.EndTime, s.ID)) > 0 {
		return schedule.ErrRoomConflict
	}
	return nil
}

func (repo *scheduleRepository) CreateSession(_ context.Context, s schedule.Session, _ ...core.DBExecutor) (schedule.Session, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if err := repo.checkSession(s); err != nil {
		return schedule.Session{}, err
	}
	s.ID = repo.db.nextPK("sessions")
	repo.db.sessions[s.ID] = &s
	return s, nil
}

func (repo *scheduleRepository) GetSession(_ context.Context, id int, _ ...core.DBExecutor) (schedule.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.sessions[id]; ok {
		return *s, nil
	}
	return schedule.Session{}, schedule.ErrSessionNotFound
}

func (repo *scheduleRepository) QuerySessions(_ context.Context, filter schedule.SessionFilter, _ ...core.DBExecutor) ([]schedule.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	list := make([]schedule.Session, 0)
	for _, s := range rows(repo.db.sessions) {
		switch {
		case filter.SubjectID != 0 && s.SubjectID != filter.SubjectID:
			continue
		case filter.TeacherProfileID != 0 && s.TeacherProfileID != filter.TeacherProfileID:
			continue
		case filter.RoomID != 0 && !intPtrEquals(s.RoomID, filter.RoomID):
			continue
		case filter.Type != "" && s.Type != filter.Type:
			continue
		case !inRange(s.StartTime, filter.From, filter.To):
			continue
		}
		list = append(list, s)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].StartTime.Before(list[j].StartTime) })
	return list, nil
}

func (repo *scheduleRepository) UpdateSession(_ context.Context, s schedule.Session, _ ...core.DBExecutor) (schedule.Session, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.sessions[s.ID]; !ok {
		return schedule.Session{}, schedule.ErrSessionNotFound
	}
	if err := repo.checkSession(s); err != nil {
		return schedule.Session{}, err
	}
	repo.db.sessions[s.ID] = &s
	return s, nil
}

func (repo *scheduleRepository) DeleteSession(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.sessions[id]; !ok {
		return schedule.ErrSessionNotFound
	}
	deleteSession(repo.db, id)
	return nil
}

func (repo *scheduleRepository) FindRoomConflicts(_ context.Context, roomID int, start, end time.Time, excludeID int, _ ...core.DBExecutor) ([]schedule.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.conflicts(roomID, start, end, excludeID), nil
}

// attendance

func (repo *scheduleRepository) UpsertAttendance(_ context.Context, a schedule.Attendance, _ ...core.DBExecutor) (schedule.Attendance, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.sessions[a.SessionID]; !ok {
		return schedule.Attendance{}, core.NewFieldError("session_id", errReferencedMissing)
	}
	if _, ok := repo.db.children[a.ChildProfileID]; !ok {
		return schedule.Attendance{}, core.NewFieldError("child_profile_id", errReferencedMissing)
	}

	a.RecordedAt = a.RecordedAt.UTC()
	for _, existing := range repo.db.attendances {
		if existing.SessionID == a.SessionID && existing.ChildProfileID == a.ChildProfileID {
			a.ID = existing.ID
			*existing = a
			return a, nil
		}
	}
	a.ID = repo.db.nextPK("attendances")
	repo.db.attendances[a.ID] = &a
	return a, nil
}

func (repo *scheduleRepository) QueryAttendance(_ context.Context, sessionID int, _ ...core.DBExecutor) ([]schedule.Attendance, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	list := make([]schedule.Attendance, 0)
	for _, a := range rows(repo.db.attendances) {
		if a.SessionID == sessionID {
			list = append(list, a)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].ChildProfileID < list[j].ChildProfileID })
	return list, nil
}

// timetable

func (repo *scheduleRepository) checkSlot(s schedule.TimetableSlot) error {
	teacherID := s.TeacherProfileID
	if err := repo.checkRefs(s.SubjectID, &teacherID, s.RoomID); err != nil {
		return err
	}
	if _, ok := repo.db.academicYears[s.AcademicYearID]; !ok {
		return core.NewFieldError("academic_year_id", errReferencedMissing)
	}
	return nil
}

func (repo *scheduleRepository) CreateSlot(_ context.Context, s schedule.TimetableSlot, _ ...core.DBExecutor) (schedule.TimetableSlot, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if err := repo.checkSlot(s); err != nil {
		return schedule.TimetableSlot{}, err
	}
	s.ID = repo.db.nextPK("timetable_slots")
	repo.db.slots[s.ID] = &s
	return s, nil
}

func (repo *scheduleRepository) GetSlot(_ context.Context, id int, _ ...core.DBExecutor) (schedule.TimetableSlot, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.slots[id]; ok {
		return *s, nil
	}
	return schedule.TimetableSlot{}, schedule.ErrSlotNotFound
}

func (repo *scheduleRepository) QuerySlots(_ context.Context, filter schedule.SlotFilter, _ ...core.DBExecutor) ([]schedule.TimetableSlot, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	list := make([]schedule.TimetableSlot, 0)
	for _, s := range rows(repo.db.slots) {
		switch {
		case filter.AcademicYearID != 0 && s.AcademicYearID != filter.AcademicYearID:
			continue
		case filter.TeacherProfileID != 0 && s.TeacherProfileID != filter.TeacherProfileID:
			continue
		case filter.SubjectID != 0 && s.SubjectID != filter.SubjectID:
			continue
		case filter.RoomID != 0 && !intPtrEquals(s.RoomID, filter.RoomID):
			continue
		case filter.Weekday != nil && s.Weekday != *filter.Weekday:
			continue
		}
		list = append(list, s)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Weekday != list[j].Weekday {
			return list[i].Weekday < list[j].Weekday
		}
		return strings.Compare(list[i].StartTime, list[j].StartTime) < 0
	})
	return list, nil
}

func (repo *scheduleRepository) UpdateSlot(_ context.Context, s schedule.TimetableSlot, _ ...core.DBExecutor) (schedule.TimetableSlot, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.slots[s.ID]; !ok {
		return schedule.TimetableSlot{}, schedule.ErrSlotNotFound
	}
	if err := repo.checkSlot(s); err != nil {
		return schedule.TimetableSlot{}, err
	}
	repo.db.slots[s.ID] = &s
	return s, nil
}

func (repo *scheduleRepository) DeleteSlot(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.slots[id]; !ok {
		return schedule.ErrSlotNotFound
	}
	delete(repo.db.slots, id)
	return nil
}

// exams

func (repo *scheduleRepository) CreateExam(_ context.Context, e schedule.Exam, _ ...core.DBExecutor) (schedule.Exam, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if err := repo.checkRefs(e.SubjectID, e.TeacherProfileID, e.RoomID); err != nil {
		return schedule.Exam{}, err
	}
	e.ID = repo.db.nextPK("exams")
	repo.db.exams[e.ID] = &e
	return e, nil
}

func (repo *scheduleRepository) GetExam(_ context.Context, id int, _ ...core.DBExecutor) (schedule.Exam, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if e, ok := repo.db.exams[id]; ok {
		return *e, nil
	}
	return schedule.Exam{}, schedule.ErrExamNotFound
}

func (repo *scheduleRepository) QueryExams(_ context.Context, filter schedule.ExamFilter, _ ...core.DBExecutor) ([]schedule.Exam, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	list := make([]schedule.Exam, 0)
	for _, e := range rows(repo.db.exams) {
		if filter.SubjectID != 0 && e.SubjectID != filter.SubjectID {
			continue
		}
		if !inRange(e.ExamDate, filter.From, filter.To) {
			continue
		}
		list = append(list, e)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].ExamDate.Before(list[j].ExamDate) })
	return list, nil
}

func (repo *scheduleRepository) UpdateExam(_ context.Context, e schedule.Exam, _ ...core.DBExecutor) (schedule.Exam, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.exams[e.ID]; !ok {
		return schedule.Exam{}, schedule.ErrExamNotFound
	}
	if err := repo.checkRefs(e.SubjectID, e.TeacherProfileID, e.RoomID); err != nil {
		return schedule.Exam{}, err
	}
	repo.db.exams[e.ID] = &e
	return e, nil
}

func (repo *scheduleRepository) DeleteExam(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.exams[id]; !ok {
		return schedule.ErrExamNotFound
	}
	deleteExam(repo.db, id)
	return nil
}

func (repo *scheduleRepository) UpsertExamResult(_ context.Context, r schedule.ExamResult, _ ...core.DBExecutor) (schedule.ExamResult, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.exams[r.ExamID]; !ok {
		return schedule.ExamResult{}, core.NewFieldError("exam_id", errReferencedMissing)
	}
	if _, ok := repo.db.children[r.ChildProfileID]; !ok {
		return schedule.ExamResult{}, core.NewFieldError("child_profile_id", errReferencedMissing)
	}

	for _, existing := range repo.db.examResults {
		if existing.ExamID == r.ExamID && existing.ChildProfileID == r.ChildProfileID {
			r.ID = existing.ID
			r.CreatedAt = existing.CreatedAt
			*existing = r
			return r, nil
		}
	}
	r.ID = repo.db.nextPK("exam_results")
	repo.db.examResults[r.ID] = &r
	return r, nil
}

func (repo *scheduleRepository) QueryExamResults(_ context.Context, examID int, _ ...core.DBExecutor) ([]schedule.ExamResult, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	list := make([]schedule.ExamResult, 0)
	for _, r := range rows(repo.db.examResults) {
		if r.ExamID == examID {
			list = append(list, r)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].ChildProfileID < list[j].ChildProfileID })
	return list, nil
}

// events

func (repo *scheduleRepository) CreateEvent(_ context.Context, e schedule.Event, _ ...core.DBExecutor) (schedule.Event, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	e.ID = repo.db.nextPK("events")
	repo.db.events[e.ID] = &e
	return e, nil
}

func (repo *scheduleRepository) GetEvent(_ context.Context, id int, _ ...core.DBExecutor) (schedule.Event, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if e, ok := repo.db.events[id]; ok {
		return *e, nil
	}
	return schedule.Event{}, schedule.ErrEventNotFound
}

func (repo *scheduleRepository) QueryEvents(_ context.Context, filter schedule.EventFilter, _ ...core.DBExecutor) ([]schedule.Event, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	list := make([]schedule.Event, 0)
	for _, e := range rows(repo.db.events) {
		switch {
		case filter.Audience != "" && e.Audience != filter.Audience && e.Audience != schedule.AudienceAll:
			continue
		case !filter.From.IsZero() && e.EndTime.Before(filter.From):
			continue
		case !filter.To.IsZero() && !e.StartTime.Before(filter.To):
			continue
		}
		list = append(list, e)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].StartTime.Before(list[j].StartTime) })
	return list, nil
}

func (repo *scheduleRepository) UpdateEvent(_ context.Context, e schedule.Event, _ ...core.DBExecutor) (schedule.Event, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.events[e.ID]; !ok {
		return schedule.Event{}, schedule.ErrEventNotFound
	}
	repo.db.events[e.ID] = &e
	return e, nil
}

func (repo *scheduleRepository) DeleteEvent(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.events[id]; !ok {
		return schedule.ErrEventNotFound
	}
	delete(repo.db.events, id)
	return nil
}
