package schedule

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/activity"
	"github.com/trezcool/elimu/core/curriculum"
	"github.com/trezcool/elimu/core/profile"
)

var errMarksAboveTotal = errors.New("marks cannot exceed the exam's total marks")

func (svc *service) buildExam(ctx context.Context, data ExamData, isNew bool, exec core.DBExecutor) (Exam, error) {
	data.Title = core.CleanString(data.Title)
	if err := svc.validate.Struct(data); err != nil {
		return Exam{}, err
	}
	date, err := core.CombineDateClock(data.Date, data.StartTime, svc.location())
	if err != nil {
		return Exam{}, core.NewFieldError("start_time", errInvalidTime)
	}
	if isNew && date.Before(svc.today()) {
		return Exam{}, core.NewFieldError("date", ErrDateInPast)
	}

	if _, err = svc.curricula.GetSubject(ctx, data.SubjectID, exec); err != nil {
		if errors.Cause(err) == curriculum.ErrSubjectNotFound {
			return Exam{}, core.NewFieldError("subject_id", curriculum.ErrSubjectNotFound)
		}
		return Exam{}, errors.Wrap(err, "finding subject")
	}
	if data.TeacherProfileID != nil {
		if _, err = svc.profiles.GetTeacher(ctx, *data.TeacherProfileID, exec); err != nil {
			if errors.Cause(err) == profile.ErrTeacherNotFound {
				return Exam{}, core.NewFieldError("teacher_profile_id", profile.ErrTeacherNotFound)
			}
			return Exam{}, errors.Wrap(err, "finding teacher")
		}
	}
	if data.RoomID != nil {
		if _, err = svc.repo.GetRoom(ctx, *data.RoomID, exec); err != nil {
			if errors.Cause(err) == ErrRoomNotFound {
				return Exam{}, core.NewFieldError("room_id", ErrRoomNotFound)
			}
			return Exam{}, errors.Wrap(err, "finding room")
		}
	}

	return Exam{
		SubjectID:        data.SubjectID,
		TeacherProfileID: data.TeacherProfileID,
		RoomID:           data.RoomID,
		Title:            data.Title,
		ExamDate:         date.UTC(),
		DurationMinutes:  data.DurationMinutes,
		TotalMarks:       data.TotalMarks,
	}, nil
}

func (svc *service) CreateExam(ctx context.Context, data ExamData) (Exam, error) {
	var e Exam
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) (err error) {
		if e, err = svc.buildExam(ctx, data, true, tx); err != nil {
			return err
		}
		e.CreatedAt = now()
		e.UpdatedAt = now()
		if e, err = svc.repo.CreateExam(ctx, e, tx); err != nil {
			return errors.Wrap(err, "creating exam")
		}
		desc := fmt.Sprintf("Scheduled exam %q on %s", e.Title, e.ExamDate.In(svc.location()).Format(core.DateLayout))
		return svc.activity.Record(ctx, activity.Created(SubjectTypeExam, e.ID, desc, e), tx)
	})
	if err != nil {
		return Exam{}, err
	}
	return e, nil
}

func (svc *service) GetExam(ctx context.Context, id int) (Exam, error) {
	return svc.repo.GetExam(ctx, id)
}

func (svc *service) QueryExams(ctx context.Context, filter ExamFilter) ([]Exam, error) {
	return svc.repo.QueryExams(ctx, filter)
}

func (svc *service) UpdateExam(ctx context.Context, id int, data ExamData) (Exam, error) {
	var e Exam
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		orig, err := svc.repo.GetExam(ctx, id, tx)
		if err != nil {
			return err
		}
		if e, err = svc.buildExam(ctx, data, false, tx); err != nil {
			return err
		}
		e.ID = orig.ID
		e.CreatedAt = orig.CreatedAt
		e.UpdatedAt = now()
		if e, err = svc.repo.UpdateExam(ctx, e, tx); err != nil {
			return errors.Wrap(err, "updating exam")
		}
		return svc.activity.Record(ctx, activity.Updated(SubjectTypeExam, e.ID, "", orig, e), tx)
	})
	if err != nil {
		return Exam{}, err
	}
	return e, nil
}

func (svc *service) DeleteExam(ctx context.Context, id int) error {
	return core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		e, err := svc.repo.GetExam(ctx, id, tx)
		if err != nil {
			return err
		}
		if err = svc.repo.DeleteExam(ctx, id, tx); err != nil {
			return err
		}
		return svc.activity.Record(ctx, activity.Deleted(SubjectTypeExam, id, e), tx)
	})
}

// RecordExamResults upserts results; an empty grade is derived from the marks.
func (svc *service) RecordExamResults(ctx context.Context, examID int, data ExamResultsData) ([]ExamResult, error) {
	for i := range data.Results {
		data.Results[i].Grade = core.CleanString(data.Results[i].Grade)
		data.Results[i].Remarks = core.CleanString(data.Results[i].Remarks)
	}
	if err := svc.validate.Struct(data); err != nil {
		return nil, err
	}

	var saved []ExamResult
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		exam, err := svc.repo.GetExam(ctx, examID, tx)
		if err != nil {
			return err
		}
		for _, rec := range data.Results {
			if rec.Marks > exam.TotalMarks {
				return core.NewFieldError("results", errMarksAboveTotal)
			}
			if _, err = svc.profiles.GetChild(ctx, rec.ChildProfileID, tx); err != nil {
				if errors.Cause(err) == profile.ErrChildNotFound {
					return core.NewValidationError(profile.ErrChildNotFound, core.FieldError{
						Field: "results",
						Error: fmt.Sprintf("student %d not found", rec.ChildProfileID),
					})
				}
				return errors.Wrap(err, "finding student")
			}
			grade := rec.Grade
			if grade == "" {
				grade = Grade(rec.Marks, exam.TotalMarks)
			}
			r, err := svc.repo.UpsertExamResult(ctx, ExamResult{
				ExamID:         exam.ID,
				ChildProfileID: rec.ChildProfileID,
				Marks:          rec.Marks,
				Grade:          grade,
				Remarks:        rec.Remarks,
				CreatedAt:      now(),
				UpdatedAt:      now(),
			}, tx)
			if err != nil {
				return errors.Wrap(err, "saving exam result")
			}
			saved = append(saved, r)
		}
		desc := fmt.Sprintf("Recorded %d result(s) for exam %q", len(saved), exam.Title)
		return svc.activity.Record(ctx, activity.Entry{
			Action:      activity.ActionUpdated,
			Description: desc,
			SubjectType: SubjectTypeExam,
			SubjectID:   fmt.Sprint(exam.ID),
			Properties:  activity.Properties{Attributes: map[string]interface{}{"results": activity.SnapshotList(saved)}},
		}, tx)
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (svc *service) ExamResults(ctx context.Context, examID int) ([]ExamResult, error) {
	if _, err := svc.repo.GetExam(ctx, examID); err != nil {
		return nil, err
	}
	return svc.repo.QueryExamResults(ctx, examID)
}
