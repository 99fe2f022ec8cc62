package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/schedule"
)

type scheduleRepository struct {
	base
}

var _ schedule.Repository = (*scheduleRepository)(nil) // interface compliance check

func NewScheduleRepository(db core.DBExecutor) schedule.Repository {
	return &scheduleRepository{base{db: db}}
}

// trapScheduleErr maps the room overlap exclusion constraint to schedule.ErrRoomConflict.
func trapScheduleErr(err, notFound error, table, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	switch code, _ := pqError(err); code {
	case codeExclusionViolation:
		return schedule.ErrRoomConflict
	case codeUniqueViolation:
		return core.NewFieldError("name", schedule.ErrRoomNameExists)
	case codeForeignKeyViolation:
		return foreignKeyError(err, table)
	}
	if err == notFound {
		return err
	}
	return errors.Wrap(err, msg)
}

func timeRange(q *query, column string, from, to time.Time) {
	if !from.IsZero() {
		q.where(column+" >= ?", from.UTC())
	}
	if !to.IsZero() {
		q.where(column+" < ?", to.UTC())
	}
}

// rooms

func (repo *scheduleRepository) CreateRoom(ctx context.Context, r schedule.Room, exec ...core.DBExecutor) (schedule.Room, error) {
	id, err := insert(ctx, repo.getExec(exec), `
		INSERT INTO rooms (name, capacity, location, is_active, created_at, updated_at)
		VALUES (:name, :capacity, :location, :is_active, :created_at, :updated_at)
		RETURNING id`,
		r)
	if err != nil {
		return schedule.Room{}, trapScheduleErr(err, schedule.ErrRoomNotFound, "rooms", "inserting room")
	}
	r.ID = id
	return r, nil
}

func (repo *scheduleRepository) GetRoom(ctx context.Context, id int, exec ...core.DBExecutor) (schedule.Room, error) {
	var r schedule.Room
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &r, "SELECT * FROM rooms WHERE id = $1", id); err != nil {
		return schedule.Room{}, trapScheduleErr(err, schedule.ErrRoomNotFound, "rooms", "finding room")
	}
	return r, nil
}

func (repo *scheduleRepository) QueryRooms(ctx context.Context, activeOnly bool, exec ...core.DBExecutor) ([]schedule.Room, error) {
	stmt := "SELECT * FROM rooms ORDER BY name"
	if activeOnly {
		stmt = "SELECT * FROM rooms WHERE is_active ORDER BY name"
	}
	list := make([]schedule.Room, 0)
	err := sqlx.SelectContext(ctx, repo.getExec(exec), &list, stmt)
	return list, errors.Wrap(err, "querying rooms")
}

func (repo *scheduleRepository) UpdateRoom(ctx context.Context, r schedule.Room, exec ...core.DBExecutor) (schedule.Room, error) {
	err := update(ctx, repo.getExec(exec), `
		UPDATE rooms SET name = :name, capacity = :capacity, location = :location, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`,
		r, schedule.ErrRoomNotFound)
	if err != nil {
		return schedule.Room{}, trapScheduleErr(err, schedule.ErrRoomNotFound, "rooms", "updating room")
	}
	return r, nil
}

func (repo *scheduleRepository) DeleteRoom(ctx context.Context, id int, exec ...core.DBExecutor) error {
	err := remove(ctx, repo.getExec(exec), "DELETE FROM rooms WHERE id = $1", id, schedule.ErrRoomNotFound)
	if err != nil {
		return trapScheduleErr(err, schedule.ErrRoomNotFound, "", "deleting room")
	}
	return nil
}

// sessions

func (repo *scheduleRepository) CreateSession(ctx context.Context, s schedule.Session, exec ...core.DBExecutor) (schedule.Session, error) {
	id, err := insert(ctx, repo.getExec(exec), `
		INSERT INTO sessions (
			subject_id, teacher_profile_id, room_id, type, start_time, end_time, online_link, description, created_at, updated_at
		) VALUES (
			:subject_id, :teacher_profile_id, :room_id, :type, :start_time, :end_time, :online_link, :description, :created_at, :updated_at
		) RETURNING id`,
		s)
	if err != nil {
		return schedule.Session{}, trapScheduleErr(err, schedule.ErrSessionNotFound, "sessions", "inserting session")
	}
	s.ID = id
	return s, nil
}

func (repo *scheduleRepository) GetSession(ctx context.Context, id int, exec ...core.DBExecutor) (schedule.Session, error) {
	var s schedule.Session
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &s, "SELECT * FROM sessions WHERE id = $1", id); err != nil {
		return schedule.Session{}, trapScheduleErr(err, schedule.ErrSessionNotFound, "sessions", "finding session")
	}
	return s, nil
}

func (repo *scheduleRepository) QuerySessions(ctx context.Context, filter schedule.SessionFilter, exec ...core.DBExecutor) ([]schedule.Session, error) {
	var q query
	if filter.SubjectID != 0 {
		q.where("subject_id = ?", filter.SubjectID)
	}
	if filter.TeacherProfileID != 0 {
		q.where("teacher_profile_id = ?", filter.TeacherProfileID)
	}
	if filter.RoomID != 0 {
		q.where("room_id = ?", filter.RoomID)
	}
	if filter.Type != "" {
		q.where("type = ?", filter.Type)
	}
	timeRange(&q, "start_time", filter.From, filter.To)
	stmt, args, err := q.build("SELECT * FROM sessions", "ORDER BY start_time, id")
	if err != nil {
		return nil, err
	}

	list := make([]schedule.Session, 0)
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &list, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}
	return list, nil
}

func (repo *scheduleRepository) UpdateSession(ctx context.Context, s schedule.Session, exec ...core.DBExecutor) (schedule.Session, error) {
	err := update(ctx, repo.getExec(exec), `
		UPDATE sessions SET
			subject_id = :subject_id, teacher_profile_id = :teacher_profile_id, room_id = :room_id, type = :type,
			start_time = :start_time, end_time = :end_time, online_link = :online_link, description = :description,
			updated_at = :updated_at
		WHERE id = :id`,
		s, schedule.ErrSessionNotFound)
	if err != nil {
		return schedule.Session{}, trapScheduleErr(err, schedule.ErrSessionNotFound, "sessions", "updating session")
	}
	return s, nil
}

func (repo *scheduleRepository) DeleteSession(ctx context.Context, id int, exec ...core.DBExecutor) error {
	err := remove(ctx, repo.getExec(exec), "DELETE FROM sessions WHERE id = $1", id, schedule.ErrSessionNotFound)
	if err != nil {
		return trapScheduleErr(err, schedule.ErrSessionNotFound, "", "deleting session")
	}
	return nil
}

func (repo *scheduleRepository) FindRoomConflicts(ctx context.Context, roomID int, start, end time.Time, excludeID int, exec ...core.DBExecutor) ([]schedule.Session, error) {
	list := make([]schedule.Session, 0)
	err := sqlx.SelectContext(ctx, repo.getExec(exec), &list, `
		SELECT * FROM sessions
		WHERE room_id = $1 AND start_time < $3 AND end_time > $2 AND id <> $4
		ORDER BY start_time`,
		roomID, start.UTC(), end.UTC(), excludeID)
	return list, errors.Wrap(err, "finding room conflicts")
}

// attendance

func (repo *scheduleRepository) UpsertAttendance(ctx context.Context, a schedule.Attendance, exec ...core.DBExecutor) (schedule.Attendance, error) {
	var saved schedule.Attendance
	err := sqlx.GetContext(ctx, repo.getExec(exec), &saved, `
		INSERT INTO attendances (session_id, child_profile_id, status, remarks, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, child_profile_id)
		DO UPDATE SET status = EXCLUDED.status, remarks = EXCLUDED.remarks, recorded_at = EXCLUDED.recorded_at
		RETURNING *`,
		a.SessionID, a.ChildProfileID, a.Status, a.Remarks, a.RecordedAt.UTC())
	if err != nil {
		return schedule.Attendance{}, trapScheduleErr(err, schedule.ErrSessionNotFound, "attendances", "recording attendance")
	}
	return saved, nil
}

func (repo *scheduleRepository) QueryAttendance(ctx context.Context, sessionID int, exec ...core.DBExecutor) ([]schedule.Attendance, error) {
	list := make([]schedule.Attendance, 0)
	err := sqlx.SelectContext(ctx, repo.getExec(exec), &list,
		"SELECT * FROM attendances WHERE session_id = $1 ORDER BY child_profile_id", sessionID)
	return list, errors.Wrap(err, "querying attendance")
}

// timetable

func (repo *scheduleRepository) CreateSlot(ctx context.Context, s schedule.TimetableSlot, exec ...core.DBExecutor) (schedule.TimetableSlot, error) {
	id, err := insert(ctx, repo.getExec(exec), `
		INSERT INTO timetable_slots (
			subject_id, teacher_profile_id, room_id, academic_year_id, weekday, start_time, end_time, created_at, updated_at
		) VALUES (
			:subject_id, :teacher_profile_id, :room_id, :academic_year_id, :weekday, :start_time, :end_time, :created_at, :updated_at
		) RETURNING id`,
		s)
	if err != nil {
		return schedule.TimetableSlot{}, trapScheduleErr(err, schedule.ErrSlotNotFound, "timetable_slots", "inserting timetable slot")
	}
	s.ID = id
	return s, nil
}

func (repo *scheduleRepository) GetSlot(ctx context.Context, id int, exec ...core.DBExecutor) (schedule.TimetableSlot, error) {
	var s schedule.TimetableSlot
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &s, "SELECT * FROM timetable_slots WHERE id = $1", id); err != nil {
		return schedule.TimetableSlot{}, trapScheduleErr(err, schedule.ErrSlotNotFound, "timetable_slots", "finding timetable slot")
	}
	return s, nil
}

func (repo *scheduleRepository) QuerySlots(ctx context.Context, filter schedule.SlotFilter, exec ...core.DBExecutor) ([]schedule.TimetableSlot, error) {
	var q query
	if filter.AcademicYearID != 0 {
		q.where("academic_year_id = ?", filter.AcademicYearID)
	}
	if filter.TeacherProfileID != 0 {
		q.where("teacher_profile_id = ?", filter.TeacherProfileID)
	}
	if filter.SubjectID != 0 {
		q.where("subject_id = ?", filter.SubjectID)
	}
	if filter.RoomID != 0 {
		q.where("room_id = ?", filter.RoomID)
	}
	if filter.Weekday != nil {
		q.where("weekday = ?", *filter.Weekday)
	}
	stmt, args, err := q.build("SELECT * FROM timetable_slots", "ORDER BY weekday, start_time, id")
	if err != nil {
		return nil, err
	}

	list := make([]schedule.TimetableSlot, 0)
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &list, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "querying timetable")
	}
	return list, nil
}

func (repo *scheduleRepository) UpdateSlot(ctx context.Context, s schedule.TimetableSlot, exec ...core.DBExecutor) (schedule.TimetableSlot, error) {
	err := update(ctx, repo.getExec(exec), `
		UPDATE timetable_slots SET
			subject_id = :subject_id, teacher_profile_id = :teacher_profile_id, room_id = :room_id,
			academic_year_id = :academic_year_id, weekday = :weekday, start_time = :start_time, end_time = :end_time,
			updated_at = :updated_at
		WHERE id = :id`,
		s, schedule.ErrSlotNotFound)
	if err != nil {
		return schedule.TimetableSlot{}, trapScheduleErr(err, schedule.ErrSlotNotFound, "timetable_slots", "updating timetable slot")
	}
	return s, nil
}

func (repo *scheduleRepository) DeleteSlot(ctx context.Context, id int, exec ...core.DBExecutor) error {
	err := remove(ctx, repo.getExec(exec), "DELETE FROM timetable_slots WHERE id = $1", id, schedule.ErrSlotNotFound)
	if err != nil {
		return trapScheduleErr(err, schedule.ErrSlotNotFound, "", "deleting timetable slot")
	}
	return nil
}

// exams

func (repo *scheduleRepository) CreateExam(ctx context.Context, e schedule.Exam, exec ...core.DBExecutor) (schedule.Exam, error) {
	id, err := insert(ctx, repo.getExec(exec), `
		INSERT INTO exams (
			subject_id, teacher_profile_id, room_id, title, exam_date, duration_minutes, total_marks, created_at, updated_at
		) VALUES (
			:subject_id, :teacher_profile_id, :room_id, :title, :exam_date, :duration_minutes, :total_marks, :created_at, :updated_at
		) RETURNING id`,
		e)
	if err != nil {
		return schedule.Exam{}, trapScheduleErr(err, schedule.ErrExamNotFound, "exams", "inserting exam")
	}
	e.ID = id
	return e, nil
}

func (repo *scheduleRepository) GetExam(ctx context.Context, id int, exec ...core.DBExecutor) (schedule.Exam, error) {
	var e schedule.Exam
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &e, "SELECT * FROM exams WHERE id = $1", id); err != nil {
		return schedule.Exam{}, trapScheduleErr(err, schedule.ErrExamNotFound, "exams", "finding exam")
	}
	return e, nil
}

func (repo *scheduleRepository) QueryExams(ctx context.Context, filter schedule.ExamFilter, exec ...core.DBExecutor) ([]schedule.Exam, error) {
	var q query
	if filter.SubjectID != 0 {
		q.where("subject_id = ?", filter.SubjectID)
	}
	timeRange(&q, "exam_date", filter.From, filter.To)
	stmt, args, err := q.build("SELECT * FROM exams", "ORDER BY exam_date, id")
	if err != nil {
		return nil, err
	}

	list := make([]schedule.Exam, 0)
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &list, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "querying exams")
	}
	return list, nil
}

func (repo *scheduleRepository) UpdateExam(ctx context.Context, e schedule.Exam, exec ...core.DBExecutor) (schedule.Exam, error) {
	err := update(ctx, repo.getExec(exec), `
		UPDATE exams SET
			subject_id = :subject_id, teacher_profile_id = :teacher_profile_id, room_id = :room_id, title = :title,
			exam_date = :exam_date, duration_minutes = :duration_minutes, total_marks = :total_marks, updated_at = :updated_at
		WHERE id = :id`,
		e, schedule.ErrExamNotFound)
	if err != nil {
		return schedule.Exam{}, trapScheduleErr(err, schedule.ErrExamNotFound, "exams", "updating exam")
	}
	return e, nil
}

func (repo *scheduleRepository) DeleteExam(ctx context.Context, id int, exec ...core.DBExecutor) error {
	err := remove(ctx, repo.getExec(exec), "DELETE FROM exams WHERE id = $1", id, schedule.ErrExamNotFound)
	if err != nil {
		return trapScheduleErr(err, schedule.ErrExamNotFound, "", "deleting exam")
	}
	return nil
}

func (repo *scheduleRepository) UpsertExamResult(ctx context.Context, r schedule.ExamResult, exec ...core.DBExecutor) (schedule.ExamResult, error) {
	var saved schedule.ExamResult
	err := sqlx.GetContext(ctx, repo.getExec(exec), &saved, `
		INSERT INTO exam_results (exam_id, child_profile_id, marks, grade, remarks, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (exam_id, child_profile_id)
		DO UPDATE SET marks = EXCLUDED.marks, grade = EXCLUDED.grade, remarks = EXCLUDED.remarks, updated_at = EXCLUDED.updated_at
		RETURNING *`,
		r.ExamID, r.ChildProfileID, r.Marks, r.Grade, r.Remarks, r.UpdatedAt.UTC())
	if err != nil {
		return schedule.ExamResult{}, trapScheduleErr(err, schedule.ErrExamNotFound, "exam_results", "recording exam result")
	}
	return saved, nil
}

func (repo *scheduleRepository) QueryExamResults(ctx context.Context, examID int, exec ...core.DBExecutor) ([]schedule.ExamResult, error) {
	list := make([]schedule.ExamResult, 0)
	err := sqlx.SelectContext(ctx, repo.getExec(exec), &list,
		"SELECT * FROM exam_results WHERE exam_id = $1 ORDER BY marks DESC, child_profile_id", examID)
	return list, errors.Wrap(err, "querying exam results")
}

// events

func (repo *scheduleRepository) CreateEvent(ctx context.Context, e schedule.Event, exec ...core.DBExecutor) (schedule.Event, error) {
	id, err := insert(ctx, repo.getExec(exec), `
		INSERT INTO events (title, description, start_time, end_time, location, audience, created_at, updated_at)
		VALUES (:title, :description, :start_time, :end_time, :location, :audience, :created_at, :updated_at)
		RETURNING id`,
		e)
	if err != nil {
		return schedule.Event{}, trapScheduleErr(err, schedule.ErrEventNotFound, "events", "inserting event")
	}
	e.ID = id
	return e, nil
}

func (repo *scheduleRepository) GetEvent(ctx context.Context, id int, exec ...core.DBExecutor) (schedule.Event, error) {
	var e schedule.Event
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &e, "SELECT * FROM events WHERE id = $1", id); err != nil {
		return schedule.Event{}, trapScheduleErr(err, schedule.ErrEventNotFound, "events", "finding event")
	}
	return e, nil
}

func (repo *scheduleRepository) QueryEvents(ctx context.Context, filter schedule.EventFilter, exec ...core.DBExecutor) ([]schedule.Event, error) {
	var q query
	if filter.Audience != "" {
		q.where("audience IN (?)", []string{filter.Audience, schedule.AudienceAll})
	}
	// events still running at From are kept
	if !filter.From.IsZero() {
		q.where("end_time >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		q.where("start_time < ?", filter.To.UTC())
	}
	stmt, args, err := q.build("SELECT * FROM events", "ORDER BY start_time, id")
	if err != nil {
		return nil, err
	}

	list := make([]schedule.Event, 0)
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &list, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "querying events")
	}
	return list, nil
}

func (repo *scheduleRepository) UpdateEvent(ctx context.Context, e schedule.Event, exec ...core.DBExecutor) (schedule.Event, error) {
	err := update(ctx, repo.getExec(exec), `
		UPDATE events SET
			title = :title, description = :description, start_time = :start_time, end_time = :end_time,
			location = :location, audience = :audience, updated_at = :updated_at
		WHERE id = :id`,
		e, schedule.ErrEventNotFound)
	if err != nil {
		return schedule.Event{}, trapScheduleErr(err, schedule.ErrEventNotFound, "events", "updating event")
	}
	return e, nil
}

func (repo *scheduleRepository) DeleteEvent(ctx context.Context, id int, exec ...core.DBExecutor) error {
	err := remove(ctx, repo.getExec(exec), "DELETE FROM events WHERE id = $1", id, schedule.ErrEventNotFound)
	if err != nil {
		return trapScheduleErr(err, schedule.ErrEventNotFound, "", "deleting event")
	}
	return nil
}
