package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/activity"
	"github.com/trezcool/elimu/core/curriculum"
	"github.com/trezcool/elimu/core/profile"
)

func (svc *service) buildSlot(ctx context.Context, data TimetableSlotData, selfID int, exec core.DBExecutor) (TimetableSlot, error) {
	data.StartTime = core.CleanString(data.StartTime)
	data.EndTime = core.CleanString(data.EndTime)
	if err := svc.validate.Struct(data); err != nil {
		return TimetableSlot{}, err
	}
	start, _ := time.Parse(core.ClockLayout, data.StartTime)
	end, _ := time.Parse(core.ClockLayout, data.EndTime)
	if !end.After(start) {
		return TimetableSlot{}, core.NewFieldError("end_time", ErrEndBeforeStart)
	}

	teacher, err := svc.profiles.GetTeacher(ctx, data.TeacherProfileID, exec)
	if err != nil {
		if errors.Cause(err) == profile.ErrTeacherNotFound {
			return TimetableSlot{}, core.NewFieldError("teacher_profile_id", profile.ErrTeacherNotFound)
		}
		return TimetableSlot{}, errors.Wrap(err, "finding teacher")
	}
	if !teacher.Teaches(data.SubjectID) {
		return TimetableSlot{}, core.NewFieldError("subject_id", errors.New("the teacher is not assigned to this subject"))
	}
	if _, err = svc.curricula.GetAcademicYear(ctx, data.AcademicYearID, exec); err != nil {
		if errors.Cause(err) == curriculum.ErrAcademicYearNotFound {
			return TimetableSlot{}, core.NewFieldError("academic_year_id", curriculum.ErrAcademicYearNotFound)
		}
		return TimetableSlot{}, errors.Wrap(err, "finding academic year")
	}

	if data.RoomID != nil {
		if _, err = svc.repo.GetRoom(ctx, *data.RoomID, exec); err != nil {
			if errors.Cause(err) == ErrRoomNotFound {
				return TimetableSlot{}, core.NewFieldError("room_id", ErrRoomNotFound)
			}
			return TimetableSlot{}, errors.Wrap(err, "finding room")
		}
		weekday := data.Weekday
		slots, err := svc.repo.QuerySlots(ctx, SlotFilter{
			AcademicYearID: data.AcademicYearID,
			RoomID:         *data.RoomID,
			Weekday:        &weekday,
		}, exec)
		if err != nil {
			return TimetableSlot{}, errors.Wrap(err, "querying timetable slots")
		}
		for _, other := range slots {
			// HH:MM strings compare chronologically
			if other.ID != selfID && data.StartTime < other.EndTime && data.EndTime > other.StartTime {
				return TimetableSlot{}, core.NewFieldError("room_id", ErrSlotConflict)
			}
		}
	}

	return TimetableSlot{
		SubjectID:        data.SubjectID,
		TeacherProfileID: data.TeacherProfileID,
		RoomID:           data.RoomID,
		AcademicYearID:   data.AcademicYearID,
		Weekday:          data.Weekday,
		StartTime:        data.StartTime,
		EndTime:          data.EndTime,
	}, nil
}

func describeSlot(s TimetableSlot) string {
	return fmt.Sprintf("%s %s-%s", time.Weekday(s.Weekday), s.StartTime, s.EndTime)
}

func (svc *service) CreateSlot(ctx context.Context, data TimetableSlotData) (TimetableSlot, error) {
	var s TimetableSlot
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) (err error) {
		if s, err = svc.buildSlot(ctx, data, 0, tx); err != nil {
			return err
		}
		s.CreatedAt = now()
		s.UpdatedAt = now()
		if s, err = svc.repo.CreateSlot(ctx, s, tx); err != nil {
			return errors.Wrap(err, "creating timetable slot")
		}
		desc := "Added timetable slot " + describeSlot(s)
		return svc.activity.Record(ctx, activity.Created(SubjectTypeTimetableSlot, s.ID, desc, s), tx)
	})
	if err != nil {
		return TimetableSlot{}, err
	}
	return s, nil
}

func (svc *service) GetSlot(ctx context.Context, id int) (TimetableSlot, error) {
	return svc.repo.GetSlot(ctx, id)
}

func (svc *service) Timetable(ctx context.Context, filter SlotFilter) ([]TimetableSlot, error) {
	if filter.AcademicYearID == 0 {
		if ay, err := svc.curricula.GetCurrentAcademicYear(ctx); err == nil {
			filter.AcademicYearID = ay.ID
		} else if errors.Cause(err) != curriculum.ErrNoCurrentYear {
			return nil, errors.Wrap(err, "finding current academic year")
		}
	}
	return svc.repo.QuerySlots(ctx, filter)
}

func (svc *service) UpdateSlot(ctx context.Context, id int, data TimetableSlotData) (TimetableSlot, error) {
	var s TimetableSlot
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		orig, err := svc.repo.GetSlot(ctx, id, tx)
		if err != nil {
			return err
		}
		if s, err = svc.buildSlot(ctx, data, orig.ID, tx); err != nil {
			return err
		}
		s.ID = orig.ID
		s.CreatedAt = orig.CreatedAt
		s.UpdatedAt = now()
		if s, err = svc.repo.UpdateSlot(ctx, s, tx); err != nil {
			return errors.Wrap(err, "updating timetable slot")
		}
		return svc.activity.Record(ctx, activity.Updated(SubjectTypeTimetableSlot, s.ID, "", orig, s), tx)
	})
	if err != nil {
		return TimetableSlot{}, err
	}
	return s, nil
}

func (svc *service) DeleteSlot(ctx context.Context, id int) error {
	return core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		s, err := svc.repo.GetSlot(ctx, id, tx)
		if err != nil {
			return err
		}
		if err = svc.repo.DeleteSlot(ctx, id, tx); err != nil {
			return err
		}
		return svc.activity.Record(ctx, activity.Deleted(SubjectTypeTimetableSlot, id, s), tx)
	})
}
