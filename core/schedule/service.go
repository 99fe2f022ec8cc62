package schedule

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/activity"
	"github.com/trezcool/elimu/core/curriculum"
	"github.com/trezcool/elimu/core/profile"
)

var (
	// errors
	ErrRoomNotFound       = errors.New("room not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSlotNotFound       = errors.New("timetable slot not found")
	ErrExamNotFound       = errors.New("exam not found")
	ErrEventNotFound      = errors.New("event not found")
	ErrRoomNameExists     = errors.New("a room with this name already exists")
	ErrRoomInactive       = errors.New("this room is not available")
	ErrRoomConflict       = errors.New("the room is already booked for this time slot")
	ErrSubjectNotAssigned = errors.New("you are not assigned to this subject")
	ErrDateInPast         = errors.New("the date cannot be in the past")
	ErrEndBeforeStart     = errors.New("end time must be after start time")
	ErrSlotConflict       = errors.New("the room is already taken by another timetable slot")

	errInvalidTime = errors.New("invalid time")
)

type (
	Repository interface {
		CreateRoom(ctx context.Context, r Room, exec ...core.DBExecutor) (Room, error)
		GetRoom(ctx context.Context, id int, exec ...core.DBExecutor) (Room, error)
		QueryRooms(ctx context.Context, activeOnly bool, exec ...core.DBExecutor) ([]Room, error)
		UpdateRoom(ctx context.Context, r Room, exec ...core.DBExecutor) (Room, error)
		DeleteRoom(ctx context.Context, id int, exec ...core.DBExecutor) error

		// CreateSession returns ErrRoomConflict when the room is already booked over the session's interval.
		CreateSession(ctx context.Context, s Session, exec ...core.DBExecutor) (Session, error)
		GetSession(ctx context.Context, id int, exec ...core.DBExecutor) (Session, error)
		QuerySessions(ctx context.Context, filter SessionFilter, exec ...core.DBExecutor) ([]Session, error)
		// UpdateSession returns ErrRoomConflict when the room is already booked over the session's interval.
		UpdateSession(ctx context.Context, s Session, exec ...core.DBExecutor) (Session, error)
		DeleteSession(ctx context.Context, id int, exec ...core.DBExecutor) error
		// FindRoomConflicts lists the sessions of roomID overlapping [start, end), except excludeID.
		FindRoomConflicts(ctx context.Context, roomID int, start, end time.Time, excludeID int, exec ...core.DBExecutor) ([]Session, error)

		// UpsertAttendance creates or replaces the attendance of a student to a session.
		UpsertAttendance(ctx context.Context, a Attendance, exec ...core.DBExecutor) (Attendance, error)
		QueryAttendance(ctx context.Context, sessionID int, exec ...core.DBExecutor) ([]Attendance, error)

		CreateSlot(ctx context.Context, s TimetableSlot, exec ...core.DBExecutor) (TimetableSlot, error)
		GetSlot(ctx context.Context, id int, exec ...core.DBExecutor) (TimetableSlot, error)
		QuerySlots(ctx context.Context, filter SlotFilter, exec ...core.DBExecutor) ([]TimetableSlot, error)
		UpdateSlot(ctx context.Context, s TimetableSlot, exec ...core.DBExecutor) (TimetableSlot, error)
		DeleteSlot(ctx context.Context, id int, exec ...core.DBExecutor) error

		CreateExam(ctx context.Context, e Exam, exec ...core.DBExecutor) (Exam, error)
		GetExam(ctx context.Context, id int, exec ...core.DBExecutor) (Exam, error)
		QueryExams(ctx context.Context, filter ExamFilter, exec ...core.DBExecutor) ([]Exam, error)
		UpdateExam(ctx context.Context, e Exam, exec ...core.DBExecutor) (Exam, error)
		DeleteExam(ctx context.Context, id int, exec ...core.DBExecutor) error
		UpsertExamResult(ctx context.Context, r ExamResult, exec ...core.DBExecutor) (ExamResult, error)
		QueryExamResults(ctx context.Context, examID int, exec ...core.DBExecutor) ([]ExamResult, error)

		CreateEvent(ctx context.Context, e Event, exec ...core.DBExecutor) (Event, error)
		GetEvent(ctx context.Context, id int, exec ...core.DBExecutor) (Event, error)
		QueryEvents(ctx context.Context, filter EventFilter, exec ...core.DBExecutor) ([]Event, error)
		UpdateEvent(ctx context.Context, e Event, exec ...core.DBExecutor) (Event, error)
		DeleteEvent(ctx context.Context, id int, exec ...core.DBExecutor) error
	}

	Service interface {
		CreateRoom(ctx context.Context, data RoomData) (Room, error)
		GetRoom(ctx context.Context, id int) (Room, error)
		QueryRooms(ctx context.Context, activeOnly bool) ([]Room, error)
		UpdateRoom(ctx context.Context, id int, data RoomData) (Room, error)
		DeleteRoom(ctx context.Context, id int) error

		// CreateSession schedules a session taught by teacher.
		CreateSession(ctx context.Context, teacher profile.TeacherProfile, data SessionData) (Session, error)
		GetSession(ctx context.Context, id int) (Session, error)
		QuerySessions(ctx context.Context, filter SessionFilter) ([]Session, error)
		// UpdateSession edits a session of teacher; sessions of other teachers are reported as not found.
		UpdateSession(ctx context.Context, teacher profile.TeacherProfile, id int, data SessionData) (Session, error)
		DeleteSession(ctx context.Context, teacher profile.TeacherProfile, id int) error

		RecordAttendance(ctx context.Context, sessionID int, data AttendanceData) ([]Attendance, error)
		Attendance(ctx context.Context, sessionID int) ([]Attendance, error)

		CreateSlot(ctx context.Context, data TimetableSlotData) (TimetableSlot, error)
		GetSlot(ctx context.Context, id int) (TimetableSlot, error)
		Timetable(ctx context.Context, filter SlotFilter) ([]TimetableSlot, error)
		UpdateSlot(ctx context.Context, id int, data TimetableSlotData) (TimetableSlot, error)
		DeleteSlot(ctx context.Context, id int) error

		CreateExam(ctx context.Context, data ExamData) (Exam, error)
		GetExam(ctx context.Context, id int) (Exam, error)
		QueryExams(ctx context.Context, filter ExamFilter) ([]Exam, error)
		UpdateExam(ctx context.Context, id int, data ExamData) (Exam, error)
		DeleteExam(ctx context.Context, id int) error
		RecordExamResults(ctx context.Context, examID int, data ExamResultsData) ([]ExamResult, error)
		ExamResults(ctx context.Context, examID int) ([]ExamResult, error)

		CreateEvent(ctx context.Context, data EventData) (Event, error)
		GetEvent(ctx context.Context, id int) (Event, error)
		QueryEvents(ctx context.Context, filter EventFilter) ([]Event, error)
		UpdateEvent(ctx context.Context, id int, data EventData) (Event, error)
		DeleteEvent(ctx context.Context, id int) error
	}

	service struct {
		db        core.DB
		repo      Repository
		curricula curriculum.Repository
		profiles  profile.Repository
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
	recorder activity.Recorder,
	validate *validator.Validate,
	conf *core.Config,
) Service {
	return &service{
		db:        db,
		repo:      repo,
		curricula: curricula,
		profiles:  profiles,
		activity:  recorder,
		validate:  validate,
		conf:      conf,
	}
}

func now() time.Time { return NowFunc().UTC() }

func (svc *service) location() *time.Location {
	if svc.conf.Timezone == nil {
		return time.UTC
	}
	return svc.conf.Timezone
}

// today is midnight of the current day in the school's timezone.
func (svc *service) today() time.Time {
	return core.StartOfDay(NowFunc().In(svc.location()))
}

// rooms

func (svc *service) CreateRoom(ctx context.Context, data RoomData) (Room, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return Room{}, err
	}

	r := Room{
		Name:      data.Name,
		Capacity:  data.Capacity,
		Location:  data.Location,
		IsActive:  data.IsActive == nil || *data.IsActive,
		CreatedAt: now(),
		UpdatedAt: now(),
	}
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) (err error) {
		if r, err = svc.repo.CreateRoom(ctx, r, tx); err != nil {
			if errors.Cause(err) == ErrRoomNameExists {
				return core.NewFieldError("name", ErrRoomNameExists)
			}
			return errors.Wrap(err, "creating room")
		}
		return svc.activity.Record(ctx, activity.Created(SubjectTypeRoom, r.ID, "Created room "+r.Name, r), tx)
	})
	return r, err
}

func (svc *service) GetRoom(ctx context.Context, id int) (Room, error) {
	return svc.repo.GetRoom(ctx, id)
}

func (svc *service) QueryRooms(ctx context.Context, activeOnly bool) ([]Room, error) {
	return svc.repo.QueryRooms(ctx, activeOnly)
}

func (svc *service) UpdateRoom(ctx context.Context, id int, data RoomData) (Room, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return Room{}, err
	}

	var r Room
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		orig, err := svc.repo.GetRoom(ctx, id, tx)
		if err != nil {
			return err
		}
		r = orig
		r.Name = data.Name
		r.Capacity = data.Capacity
		r.Location = data.Location
		if data.IsActive != nil {
			r.IsActive = *data.IsActive
		}
		r.UpdatedAt = now()
		if r, err = svc.repo.UpdateRoom(ctx, r, tx); err != nil {
			if errors.Cause(err) == ErrRoomNameExists {
				return core.NewFieldError("name", ErrRoomNameExists)
			}
			return errors.Wrap(err, "updating room")
		}
		return svc.activity.Record(ctx, activity.Updated(SubjectTypeRoom, r.ID, "", orig, r), tx)
	})
	return r, err
}

func (svc *service) DeleteRoom(ctx context.Context, id int) error {
	return core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		r, err := svc.repo.GetRoom(ctx, id, tx)
		if err != nil {
			return err
		}
		if err = svc.repo.DeleteRoom(ctx, id, tx); err != nil {
			return err
		}
		return svc.activity.Record(ctx, activity.Deleted(SubjectTypeRoom, id, r), tx)
	})
}

// checkRoom makes sure the room exists, is active and is free over [start, end) except for excludeID.
func (svc *service) checkRoom(ctx context.Context, roomID int, start, end time.Time, excludeID int, exec core.DBExecutor) (Room, error) {
	room, err := svc.repo.GetRoom(ctx, roomID, exec)
	if err != nil {
		if errors.Cause(err) == ErrRoomNotFound {
			return Room{}, core.NewFieldError("room_id", ErrRoomNotFound)
		}
		return Room{}, errors.Wrap(err, "finding room")
	}
	if !room.IsActive {
		return Room{}, core.NewFieldError("room_id", ErrRoomInactive)
	}
	conflicts, err := svc.repo.FindRoomConflicts(ctx, roomID, start, end, excludeID, exec)
	if err != nil {
		return Room{}, errors.Wrap(err, "finding room conflicts")
	}
	if len(conflicts) > 0 {
		return Room{}, core.NewFieldError("room_id", ErrRoomConflict)
	}
	return room, nil
}
