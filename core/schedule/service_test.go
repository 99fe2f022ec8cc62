package schedule_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elimu/core/activity"
	"github.com/trezcool/elimu/core/curriculum"
	"github.com/trezcool/elimu/core/profile"
	"github.com/trezcool/elimu/core/schedule"
	testutil "github.com/trezcool/elimu/tests"
)

type fixture struct {
	app     *testutil.App
	maths   curriculum.Subject
	art     curriculum.Subject
	teacher profile.TeacherProfile
	room    schedule.Room
	year    curriculum.AcademicYear
}

func newFixture(t *testing.T) fixture {
	schedule.NowFunc = func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { schedule.NowFunc = time.Now })

	app := testutil.NewApp(t)
	c := testutil.CreateCurriculum(t, app.CurriculumRepo, "Primary", "PRIM")
	maths := testutil.CreateSubject(t, app.CurriculumRepo, c.ID, "Mathematics", "MATH")
	return fixture{
		app:     app,
		maths:   maths,
		art:     testutil.CreateSubject(t, app.CurriculumRepo, c.ID, "Art", "ART"),
		teacher: testutil.CreateTeacher(t, app.ProfileRepo, "Ada", "Lovelace", nil, maths.ID),
		room:    testutil.CreateRoom(t, app.ScheduleRepo, "Room 5", true),
		year: testutil.CreateAcademicYear(t, app.CurriculumRepo, "2024",
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), true),
	}
}

func (f fixture) session(date, start, end string) schedule.SessionData {
	roomID := f.room.ID
	return schedule.SessionData{
		SubjectID: f.maths.ID,
		RoomID:    &roomID,
		Type:      schedule.TypeLecture,
		Date:      date,
		StartTime: start,
		EndTime:   end,
	}
}

func TestService_CreateSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.app.ScheduleSvc.CreateSession(ctx, f.teacher, f.session("2024-05-06", "10:00", "11:00"))
	require.NoError(t, err)
	assert.Equal(t, f.teacher.ID, s.TeacherProfileID)
	assert.Equal(t, time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC), s.StartTime)
	assert.Equal(t, time.Date(2024, 5, 6, 11, 0, 0, 0, time.UTC), s.EndTime)

	logs, err := f.app.ActivitySvc.Query(ctx, activity.QueryFilter{SubjectType: schedule.SubjectTypeSession})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Scheduled lecture session for Mathematics on 2024-05-06 from 10:00 to 11:00 in Room 5", logs[0].Description)

	tests := []struct {
		name      string
		data      schedule.SessionData
		wantField string
		wantErr   error
	}{
		{
			name:      "room already booked",
			data:      f.session("2024-05-06", "10:30", "11:30"),
			wantField: "room_id",
			wantErr:   schedule.ErrRoomConflict,
		},
		{
			name:      "date in the past",
			data:      f.session("2024-04-30", "10:00", "11:00"),
			wantField: "date",
			wantErr:   schedule.ErrDateInPast,
		},
		{
			name:      "end before start",
			data:      f.session("2024-05-07", "11:00", "10:00"),
			wantField: "end_time",
			wantErr:   schedule.ErrEndBeforeStart,
		},
		{
			name: "subject not assigned",
			data: func() schedule.SessionData {
				d := f.session("2024-05-07", "10:00", "11:00")
				d.SubjectID = f.art.ID
				return d
			}(),
			wantField: "subject_id",
			wantErr:   schedule.ErrSubjectNotAssigned,
		},
		{
			name: "unknown room",
			data: func() schedule.SessionData {
				d := f.session("2024-05-07", "10:00", "11:00")
				d.RoomID = testutil.Ptr(999)
				return d
			}(),
			wantField: "room_id",
			wantErr:   schedule.ErrRoomNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.app.ScheduleSvc.CreateSession(ctx, f.teacher, tt.data)
			testutil.AssertFieldError(t, err, tt.wantField, tt.wantErr)
		})
	}

	t.Run("back to back sessions", func(t *testing.T) {
		_, err := f.app.ScheduleSvc.CreateSession(ctx, f.teacher, f.session("2024-05-06", "11:00", "12:00"))
		assert.NoError(t, err)
		_, err = f.app.ScheduleSvc.CreateSession(ctx, f.teacher, f.session("2024-05-06", "09:00", "10:00"))
		assert.NoError(t, err)
	})

	t.Run("today is allowed", func(t *testing.T) {
		_, err := f.app.ScheduleSvc.CreateSession(ctx, f.teacher, f.session("2024-05-01", "14:00", "15:00"))
		assert.NoError(t, err)
	})

	t.Run("no room", func(t *testing.T) {
		d := f.session("2024-05-06", "10:00", "11:00")
		d.RoomID = nil
		d.OnlineLink = "https://meet.test/abc"
		_, err := f.app.ScheduleSvc.CreateSession(ctx, f.teacher, d)
		assert.NoError(t, err)
	})

	t.Run("inactive room", func(t *testing.T) {
		closed := testutil.CreateRoom(t, f.app.ScheduleRepo, "Closed", false)
		d := f.session("2024-05-08", "10:00", "11:00")
		d.RoomID = &closed.ID
		_, err := f.app.ScheduleSvc.CreateSession(ctx, f.teacher, d)
		testutil.AssertFieldError(t, err, "room_id", schedule.ErrRoomInactive)
	})
}

func TestService_UpdateSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.app.ScheduleSvc.CreateSession(ctx, f.teacher, f.session("2024-05-06", "10:00", "11:00"))
	require.NoError(t, err)
	other, err := f.app.ScheduleSvc.CreateSession(ctx, f.teacher, f.session("2024-05-06", "13:00", "14:00"))
	require.NoError(t, err)

	t.Run("own interval is not a conflict", func(t *testing.T) {
		d := f.session("2024-05-06", "10:00", "11:30")
		d.Description = "chapter 3"
		updated, err := f.app.ScheduleSvc.UpdateSession(ctx, f.teacher, s.ID, d)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 5, 6, 11, 30, 0, 0, time.UTC), updated.EndTime)

		logs, err := f.app.ActivitySvc.Query(ctx, activity.QueryFilter{SubjectType: schedule.SubjectTypeSession, Action: activity.ActionUpdated})
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Contains(t, logs[0].Description, "schedule: 2024-05-06 from 10:00 to 11:00 -> 2024-05-06 from 10:00 to 11:30")
		assert.Contains(t, logs[0].Description, "description updated")
		assert.Contains(t, logs[0].Properties.Diff, "+chapter 3")
	})

	t.Run("moving onto another session", func(t *testing.T) {
		_, err := f.app.ScheduleSvc.UpdateSession(ctx, f.teacher, s.ID, f.session("2024-05-06", "12:30", "13:30"))
		testutil.AssertFieldError(t, err, "room_id", schedule.ErrRoomConflict)
	})

	t.Run("moving into the past", func(t *testing.T) {
		_, err := f.app.ScheduleSvc.UpdateSession(ctx, f.teacher, s.ID, f.session("2024-04-01", "10:00", "11:00"))
		testutil.AssertFieldError(t, err, "date", schedule.ErrDateInPast)
	})

	t.Run("other teacher", func(t *testing.T) {
		intruder := testutil.CreateTeacher(t, f.app.ProfileRepo, "Eve", "Intruder", nil, f.maths.ID)
		_, err := f.app.ScheduleSvc.UpdateSession(ctx, intruder, other.ID, f.session("2024-05-07", "10:00", "11:00"))
		assert.ErrorIs(t, err, schedule.ErrSessionNotFound)
		assert.ErrorIs(t, f.app.ScheduleSvc.DeleteSession(ctx, intruder, other.ID), schedule.ErrSessionNotFound)
	})

	require.NoError(t, f.app.ScheduleSvc.DeleteSession(ctx, f.teacher, other.ID))
	_, err = f.app.ScheduleSvc.GetSession(ctx, other.ID)
	assert.ErrorIs(t, err, schedule.ErrSessionNotFound)
}

func TestService_Attendance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent := testutil.CreateParent(t, f.app.ProfileRepo, "Jane", "Doe", "")
	child := testutil.CreateChild(t, f.app.ProfileRepo, parent.ID, "Tom", "Doe")

	s, err := f.app.ScheduleSvc.CreateSession(ctx, f.teacher, f.session("2024-05-06", "10:00", "11:00"))
	require.NoError(t, err)

	_, err = f.app.ScheduleSvc.RecordAttendance(ctx, s.ID, schedule.AttendanceData{Records: []schedule.AttendanceRecord{
		{ChildProfileID: child.ID, Status: "Absent"},
	}})
	require.NoError(t, err)
	saved, err := f.app.ScheduleSvc.RecordAttendance(ctx, s.ID, schedule.AttendanceData{Records: []schedule.AttendanceRecord{
		{ChildProfileID: child.ID, Status: "late", Remarks: "bus"},
	}})
	require.NoError(t, err)
	require.Len(t, saved, 1)

	list, err := f.app.ScheduleSvc.Attendance(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, schedule.AttendanceLate, list[0].Status)
	assert.Equal(t, "bus", list[0].Remarks)

	_, err = f.app.ScheduleSvc.RecordAttendance(ctx, s.ID, schedule.AttendanceData{Records: []schedule.AttendanceRecord{
		{ChildProfileID: 999, Status: "present"},
	}})
	testutil.AssertFieldError(t, err, "records", profile.ErrChildNotFound)

	_, err = f.app.ScheduleSvc.RecordAttendance(ctx, s.ID, schedule.AttendanceData{Records: []schedule.AttendanceRecord{
		{ChildProfileID: child.ID, Status: "asleep"},
	}})
	assert.Error(t, err)
}

func TestService_Timetable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := func(weekday int, start, end string) schedule.TimetableSlotData {
		return schedule.TimetableSlotData{
			SubjectID:        f.maths.ID,
			TeacherProfileID: f.teacher.ID,
			RoomID:           &f.room.ID,
			AcademicYearID:   f.year.ID,
			Weekday:          weekday,
			StartTime:        start,
			EndTime:          end,
		}
	}

	tuesday, err := f.app.ScheduleSvc.CreateSlot(ctx, slot(2, "08:00", "09:00"))
	require.NoError(t, err)
	monday, err := f.app.ScheduleSvc.CreateSlot(ctx, slot(1, "10:00", "11:00"))
	require.NoError(t, err)
	early, err := f.app.ScheduleSvc.CreateSlot(ctx, slot(1, "09:00", "10:00"))
	require.NoError(t, err)

	_, err = f.app.ScheduleSvc.CreateSlot(ctx, slot(1, "10:30", "11:30"))
	testutil.AssertFieldError(t, err, "room_id", schedule.ErrSlotConflict)

	notAssigned := slot(3, "10:00", "11:00")
	notAssigned.SubjectID = f.art.ID
	_, err = f.app.ScheduleSvc.CreateSlot(ctx, notAssigned)
	testutil.AssertFieldError(t, err, "subject_id", nil)

	// the current year is used when none is given
	slots, err := f.app.ScheduleSvc.Timetable(ctx, schedule.SlotFilter{})
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, []int{early.ID, monday.ID, tuesday.ID}, []int{slots[0].ID, slots[1].ID, slots[2].ID})

	_, err = f.app.ScheduleSvc.UpdateSlot(ctx, monday.ID, slot(1, "10:00", "11:30"))
	assert.NoError(t, err)
}

func TestService_Exams(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent := testutil.CreateParent(t, f.app.ProfileRepo, "Jane", "Doe", "")
	child := testutil.CreateChild(t, f.app.ProfileRepo, parent.ID, "Tom", "Doe")

	data := schedule.ExamData{
		SubjectID: f.maths.ID, Title: "Mid-term", Date: "2024-06-10", StartTime: "09:00", DurationMinutes: 90, TotalMarks: 50,
	}
	exam, err := f.app.ScheduleSvc.CreateExam(ctx, data)
	require.NoError(t, err)

	past := data
	past.Date = "2024-04-10"
	_, err = f.app.ScheduleSvc.CreateExam(ctx, past)
	testutil.AssertFieldError(t, err, "date", schedule.ErrDateInPast)

	// editing a past exam is allowed
	_, err = f.app.ScheduleSvc.UpdateExam(ctx, exam.ID, past)
	assert.NoError(t, err)

	results, err := f.app.ScheduleSvc.RecordExamResults(ctx, exam.ID, schedule.ExamResultsData{Results: []schedule.ExamResultRecord{
		{ChildProfileID: child.ID, Marks: 41},
	}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "A", results[0].Grade)

	_, err = f.app.ScheduleSvc.RecordExamResults(ctx, exam.ID, schedule.ExamResultsData{Results: []schedule.ExamResultRecord{
		{ChildProfileID: child.ID, Marks: 51},
	}})
	testutil.AssertFieldError(t, err, "results", nil)
}

func TestService_Events(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.app.ScheduleSvc.CreateEvent(ctx, schedule.EventData{Title: "Sports day", StartDate: "2024-06-01", EndDate: "2024-06-01"})
	require.NoError(t, err)
	assert.Equal(t, schedule.AudienceAll, e.Audience)
	assert.Equal(t, time.Date(2024, 6, 1, 23, 59, 0, 0, time.UTC), e.EndTime)

	_, err = f.app.ScheduleSvc.CreateEvent(ctx, schedule.EventData{
		Title: "Staff meeting", StartDate: "2024-06-03", StartTime: "15:00", EndDate: "2024-06-03", EndTime: "16:00", Audience: "Teachers",
	})
	require.NoError(t, err)

	_, err = f.app.ScheduleSvc.CreateEvent(ctx, schedule.EventData{Title: "Bad", StartDate: "2024-06-03", EndDate: "2024-06-02"})
	testutil.AssertFieldError(t, err, "end_date", schedule.ErrEndBeforeStart)

	events, err := f.app.ScheduleSvc.QueryEvents(ctx, schedule.EventFilter{Audience: "parents"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, e.ID, events[0].ID)

	events, err = f.app.ScheduleSvc.QueryEvents(ctx, schedule.EventFilter{Audience: "teachers"})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
