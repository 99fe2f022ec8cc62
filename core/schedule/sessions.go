package schedule

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/activity"
	"github.com/trezcool/elimu/core/curriculum"
	"github.com/trezcool/elimu/core/profile"
)

// buildSession validates data for teacher and returns the resulting session; selfID is excluded from room conflicts.
// Nothing is persisted when an error is returned.
func (svc *service) buildSession(
	ctx context.Context,
	teacher profile.TeacherProfile,
	data SessionData,
	selfID int,
	exec core.DBExecutor,
) (Session, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return Session{}, err
	}
	if !teacher.Teaches(data.SubjectID) {
		return Session{}, core.NewFieldError("subject_id", ErrSubjectNotAssigned)
	}

	loc := svc.location()
	date, err := core.ParseDate(data.Date, loc)
	if err != nil {
		return Session{}, core.NewFieldError("date", errors.New("invalid date"))
	}
	if date.Before(svc.today()) {
		return Session{}, core.NewFieldError("date", ErrDateInPast)
	}
	start, err := core.CombineDateClock(data.Date, data.StartTime, loc)
	if err != nil {
		return Session{}, core.NewFieldError("start_time", errInvalidTime)
	}
	end, err := core.CombineDateClock(data.Date, data.EndTime, loc)
	if err != nil {
		return Session{}, core.NewFieldError("end_time", errInvalidTime)
	}
	if !end.After(start) {
		return Session{}, core.NewFieldError("end_time", ErrEndBeforeStart)
	}

	if _, err = svc.curricula.GetSubject(ctx, data.SubjectID, exec); err != nil {
		if errors.Cause(err) == curriculum.ErrSubjectNotFound {
			return Session{}, core.NewFieldError("subject_id", curriculum.ErrSubjectNotFound)
		}
		return Session{}, errors.Wrap(err, "finding subject")
	}
	if data.RoomID != nil {
		if _, err = svc.checkRoom(ctx, *data.RoomID, start, end, selfID, exec); err != nil {
			return Session{}, err
		}
	}

	return Session{
		SubjectID:        data.SubjectID,
		TeacherProfileID: teacher.ID,
		RoomID:           data.RoomID,
		Type:             data.Type,
		StartTime:        start.UTC(),
		EndTime:          end.UTC(),
		OnlineLink:       data.OnlineLink,
		Description:      data.Description,
	}, nil
}

func (svc *service) CreateSession(ctx context.Context, teacher profile.TeacherProfile, data SessionData) (Session, error) {
	var s Session
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) (err error) {
		if s, err = svc.buildSession(ctx, teacher, data, 0, tx); err != nil {
			return err
		}
		s.CreatedAt = now()
		s.UpdatedAt = now()
		if s, err = svc.repo.CreateSession(ctx, s, tx); err != nil {
			if errors.Cause(err) == ErrRoomConflict {
				return core.NewFieldError("room_id", ErrRoomConflict)
			}
			return errors.Wrap(err, "creating session")
		}
		desc, err := svc.describeSession(ctx, s, tx)
		if err != nil {
			return err
		}
		entry := activity.Created(SubjectTypeSession, s.ID, "Scheduled "+desc, s)
		return svc.activity.Record(ctx, entry, tx)
	})
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

func (svc *service) GetSession(ctx context.Context, id int) (Session, error) {
	return svc.repo.GetSession(ctx, id)
}

func (svc *service) QuerySessions(ctx context.Context, filter SessionFilter) ([]Session, error) {
	filter.Type = core.CleanString(filter.Type, true /* lower */)
	return svc.repo.QuerySessions(ctx, filter)
}

func (svc *service) UpdateSession(ctx context.Context, teacher profile.TeacherProfile, id int, data SessionData) (Session, error) {
	var s Session
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		orig, err := svc.repo.GetSession(ctx, id, tx)
		if err != nil {
			return err
		}
		if orig.TeacherProfileID != teacher.ID {
			return ErrSessionNotFound
		}
		if s, err = svc.buildSession(ctx, teacher, data, orig.ID, tx); err != nil {
			return err
		}
		s.ID = orig.ID
		s.CreatedAt = orig.CreatedAt
		s.UpdatedAt = now()
		if s, err = svc.repo.UpdateSession(ctx, s, tx); err != nil {
			if errors.Cause(err) == ErrRoomConflict {
				return core.NewFieldError("room_id", ErrRoomConflict)
			}
			return errors.Wrap(err, "updating session")
		}

		entry := activity.Updated(SubjectTypeSession, s.ID, "", orig, s)
		if entry.Description, err = svc.describeSessionChanges(ctx, orig, s, tx); err != nil {
			return err
		}
		entry.Properties.Diff = activity.TextDiff(orig.Description, s.Description)
		return svc.activity.Record(ctx, entry, tx)
	})
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

func (svc *service) DeleteSession(ctx context.Context, teacher profile.TeacherProfile, id int) error {
	return core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		s, err := svc.repo.GetSession(ctx, id, tx)
		if err != nil {
			return err
		}
		if s.TeacherProfileID != teacher.ID {
			return ErrSessionNotFound
		}
		if err = svc.repo.DeleteSession(ctx, id, tx); err != nil {
			return err
		}
		return svc.activity.Record(ctx, activity.Deleted(SubjectTypeSession, id, s), tx)
	})
}

// describeSession renders e.g. "lecture session for Mathematics on 2024-05-06 from 10:00 to 11:00 in Room 5".
func (svc *service) describeSession(ctx context.Context, s Session, exec core.DBExecutor) (string, error) {
	subject, err := svc.curricula.GetSubject(ctx, s.SubjectID, exec)
	if err != nil {
		return "", errors.Wrap(err, "finding subject")
	}
	room, err := svc.roomName(ctx, s.RoomID, exec)
	if err != nil {
		return "", err
	}
	desc := fmt.Sprintf("%s session for %s on %s", s.Type, subject.Name, svc.formatSchedule(s))
	if room != "" {
		desc += " in " + room
	}
	if s.OnlineLink != "" {
		desc += " (online: " + s.OnlineLink + ")"
	}
	return desc, nil
}

// describeSessionChanges lists the changes between old and new among subject, room, schedule, link and description.
func (svc *service) describeSessionChanges(ctx context.Context, old, new Session, exec core.DBExecutor) (string, error) {
	var changes []string
	if old.SubjectID != new.SubjectID {
		oldSubj, err := svc.curricula.GetSubject(ctx, old.SubjectID, exec)
		if err != nil && errors.Cause(err) != curriculum.ErrSubjectNotFound {
			return "", errors.Wrap(err, "finding subject")
		}
		newSubj, err := svc.curricula.GetSubject(ctx, new.SubjectID, exec)
		if err != nil {
			return "", errors.Wrap(err, "finding subject")
		}
		changes = append(changes, fmt.Sprintf("subject: %s -> %s", orNone(oldSubj.Name), newSubj.Name))
	}
	if !sameRoom(old.RoomID, new.RoomID) {
		oldRoom, err := svc.roomName(ctx, old.RoomID, exec)
		if err != nil {
			return "", err
		}
		newRoom, err := svc.roomName(ctx, new.RoomID, exec)
		if err != nil {
			return "", err
		}
		changes = append(changes, fmt.Sprintf("room: %s -> %s", orNone(oldRoom), orNone(newRoom)))
	}
	if old.Type != new.Type {
		changes = append(changes, fmt.Sprintf("type: %s -> %s", old.Type, new.Type))
	}
	if !old.StartTime.Equal(new.StartTime) || !old.EndTime.Equal(new.EndTime) {
		changes = append(changes, fmt.Sprintf("schedule: %s -> %s", svc.formatSchedule(old), svc.formatSchedule(new)))
	}
	if old.OnlineLink != new.OnlineLink {
		changes = append(changes, fmt.Sprintf("link: %s -> %s", orNone(old.OnlineLink), orNone(new.OnlineLink)))
	}
	if old.Description != new.Description {
		changes = append(changes, "description updated")
	}

	if len(changes) == 0 {
		return fmt.Sprintf("Session #%d saved without changes", new.ID), nil
	}
	return fmt.Sprintf("Updated session #%d: %s", new.ID, strings.Join(changes, "; ")), nil
}

func (svc *service) formatSchedule(s Session) string {
	loc := svc.location()
	start, end := s.StartTime.In(loc), s.EndTime.In(loc)
	return fmt.Sprintf("%s from %s to %s", start.Format(core.DateLayout), start.Format(core.ClockLayout), end.Format(core.ClockLayout))
}

func (svc *service) roomName(ctx context.Context, roomID *int, exec core.DBExecutor) (string, error) {
	if roomID == nil {
		return "", nil
	}
	room, err := svc.repo.GetRoom(ctx, *roomID, exec)
	if err != nil {
		if errors.Cause(err) == ErrRoomNotFound {
			return fmt.Sprintf("room #%d", *roomID), nil
		}
		return "", errors.Wrap(err, "finding room")
	}
	return room.Name, nil
}

func sameRoom(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

// attendance

func (svc *service) RecordAttendance(ctx context.Context, sessionID int, data AttendanceData) ([]Attendance, error) {
	for i := range data.Records {
		data.Records[i].Status = core.CleanString(data.Records[i].Status, true /* lower */)
		data.Records[i].Remarks = core.CleanString(data.Records[i].Remarks)
	}
	if err := svc.validate.Struct(data); err != nil {
		return nil, err
	}

	var saved []Attendance
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		s, err := svc.repo.GetSession(ctx, sessionID, tx)
		if err != nil {
			return err
		}
		for _, rec := range data.Records {
			if _, err = svc.profiles.GetChild(ctx, rec.ChildProfileID, tx); err != nil {
				if errors.Cause(err) == profile.ErrChildNotFound {
					return core.NewValidationError(profile.ErrChildNotFound, core.FieldError{
						Field: "records",
						Error: fmt.Sprintf("student %d not found", rec.ChildProfileID),
					})
				}
				return errors.Wrap(err, "finding student")
			}
			a, err := svc.repo.UpsertAttendance(ctx, Attendance{
				SessionID:      s.ID,
				ChildProfileID: rec.ChildProfileID,
				Status:         rec.Status,
				Remarks:        rec.Remarks,
				RecordedAt:     now(),
			}, tx)
			if err != nil {
				return errors.Wrap(err, "saving attendance")
			}
			saved = append(saved, a)
		}
		desc := fmt.Sprintf("Recorded attendance of %d student(s) for session #%d", len(saved), s.ID)
		return svc.activity.Record(ctx, activity.Entry{
			Action:      activity.ActionUpdated,
			Description: desc,
			SubjectType: SubjectTypeSession,
			SubjectID:   fmt.Sprint(s.ID),
			Properties:  activity.Properties{Attributes: map[string]interface{}{"attendance": activity.SnapshotList(saved)}},
		}, tx)
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (svc *service) Attendance(ctx context.Context, sessionID int) ([]Attendance, error) {
	if _, err := svc.repo.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return svc.repo.QueryAttendance(ctx, sessionID)
}
