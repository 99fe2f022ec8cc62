package enrollment_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/activity"
	"github.com/trezcool/elimu/core/curriculum"
	"github.com/trezcool/elimu/core/enrollment"
	"github.com/trezcool/elimu/core/profile"
	testutil "github.com/trezcool/elimu/tests"
)

type fixture struct {
	app      *testutil.App
	child    profile.ChildProfile
	other    profile.ChildProfile
	curr     curriculum.Curriculum
	year     curriculum.AcademicYear
	nextYear curriculum.AcademicYear
	subjects []curriculum.Subject
}

func newFixture(t *testing.T) fixture {
	app := testutil.NewApp(t)
	parent := testutil.CreateParent(t, app.ProfileRepo, "Jane", "Doe", "jane@test.test")
	curr := testutil.CreateCurriculum(t, app.CurriculumRepo, "Primary", "PRIM")
	return fixture{
		app:      app,
		child:    testutil.CreateChild(t, app.ProfileRepo, parent.ID, "Tom", "Doe"),
		other:    testutil.CreateChild(t, app.ProfileRepo, parent.ID, "Ann", "Doe"),
		curr:     curr,
		year:     testutil.CreateAcademicYear(t, app.CurriculumRepo, "2024", date(2024, 1, 1), date(2024, 12, 31), true),
		nextYear: testutil.CreateAcademicYear(t, app.CurriculumRepo, "2025", date(2025, 1, 1), date(2025, 12, 31), false),
		subjects: []curriculum.Subject{
			testutil.CreateSubject(t, app.CurriculumRepo, curr.ID, "Maths", "MATH"),
			testutil.CreateSubject(t, app.CurriculumRepo, curr.ID, "English", "ENG"),
			testutil.CreateSubject(t, app.CurriculumRepo, curr.ID, "Science", "SCI"),
		},
	}
}

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func (f fixture) data(childID, yearID int) enrollment.EnrollmentData {
	return enrollment.EnrollmentData{ChildProfileID: childID, CurriculumID: f.curr.ID, AcademicYearID: yearID}
}

func TestService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enrollment.NowFunc = func() time.Time { return time.Date(2024, 9, 2, 22, 30, 0, 0, time.UTC) }
	defer func() { enrollment.NowFunc = time.Now }()

	e, err := f.app.EnrollmentSvc.Create(ctx, f.data(f.child.ID, f.year.ID))
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusPending, e.Status)
	assert.Equal(t, date(2024, 9, 2), e.EnrollmentDate)

	t.Run("duplicate triple", func(t *testing.T) {
		_, err := f.app.EnrollmentSvc.Create(ctx, f.data(f.child.ID, f.year.ID))
		testutil.AssertFieldError(t, err, "child_profile_id", enrollment.ErrDuplicate)
	})

	t.Run("same student another year", func(t *testing.T) {
		data := f.data(f.child.ID, f.nextYear.ID)
		data.Status = "active"
		data.EnrollmentDate = "2025-01-06"
		e, err := f.app.EnrollmentSvc.Create(ctx, data)
		require.NoError(t, err)
		assert.Equal(t, enrollment.StatusActive, e.Status)
		assert.Equal(t, date(2025, 1, 6), e.EnrollmentDate)
	})

	t.Run("unknown references", func(t *testing.T) {
		_, err := f.app.EnrollmentSvc.Create(ctx, f.data(999, f.year.ID))
		testutil.AssertFieldError(t, err, "child_profile_id", profile.ErrChildNotFound)

		_, err = f.app.EnrollmentSvc.Create(ctx, f.data(f.other.ID, 999))
		testutil.AssertFieldError(t, err, "academic_year_id", curriculum.ErrAcademicYearNotFound)

		data := f.data(f.other.ID, f.year.ID)
		data.PaymentPlanID = testutil.Ptr(999)
		_, err = f.app.EnrollmentSvc.Create(ctx, data)
		testutil.AssertFieldError(t, err, "payment_plan_id", nil)
	})

	t.Run("invalid status", func(t *testing.T) {
		data := f.data(f.other.ID, f.year.ID)
		data.Status = "graduated"
		_, err := f.app.EnrollmentSvc.Create(ctx, data)
		assert.Error(t, err)
	})

	logs, err := f.app.ActivitySvc.Query(ctx, activity.QueryFilter{SubjectType: enrollment.SubjectTypeProgramEnrollment})
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestService_Update(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.app.EnrollmentSvc.Create(ctx, f.data(f.child.ID, f.year.ID))
	require.NoError(t, err)
	other, err := f.app.EnrollmentSvc.Create(ctx, f.data(f.other.ID, f.year.ID))
	require.NoError(t, err)

	t.Run("editing keeps its own triple", func(t *testing.T) {
		data := f.data(f.child.ID, f.year.ID)
		data.Status = "Active"
		data.Notes = "paid upfront"
		updated, err := f.app.EnrollmentSvc.Update(ctx, e.ID, data)
		require.NoError(t, err)
		assert.Equal(t, enrollment.StatusActive, updated.Status)
		assert.Equal(t, "paid upfront", updated.Notes)
		assert.Equal(t, e.EnrollmentDate, updated.EnrollmentDate)
	})

	t.Run("moving onto another triple", func(t *testing.T) {
		_, err := f.app.EnrollmentSvc.Update(ctx, other.ID, f.data(f.child.ID, f.year.ID))
		testutil.AssertFieldError(t, err, "child_profile_id", enrollment.ErrDuplicate)
	})

	t.Run("soft deleted frees the triple", func(t *testing.T) {
		require.NoError(t, f.app.EnrollmentSvc.Delete(ctx, other.ID))
		_, err := f.app.EnrollmentSvc.Get(ctx, other.ID)
		assert.ErrorIs(t, err, enrollment.ErrNotFound)

		_, err = f.app.EnrollmentSvc.Create(ctx, f.data(f.other.ID, f.year.ID))
		assert.NoError(t, err)
	})

	_, err = f.app.EnrollmentSvc.Update(ctx, 999, f.data(f.child.ID, f.year.ID))
	assert.ErrorIs(t, err, enrollment.ErrNotFound)
}

func TestService_Update_curriculum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	secondary := testutil.CreateCurriculum(t, f.app.CurriculumRepo, "Secondary", "SEC")
	latin := testutil.CreateSubject(t, f.app.CurriculumRepo, secondary.ID, "Latin", "LAT")

	e, err := f.app.EnrollmentSvc.Create(ctx, f.data(f.child.ID, f.year.ID))
	require.NoError(t, err)
	added, err := f.app.EnrollmentSvc.AddSubjects(ctx, e.ID, enrollment.SubjectsData{SubjectIDs: []int{f.subjects[0].ID}})
	require.NoError(t, err)
	require.Len(t, added, 1)

	move := f.data(f.child.ID, f.year.ID)
	move.CurriculumID = secondary.ID

	t.Run("locked while subjects are enrolled", func(t *testing.T) {
		_, err := f.app.EnrollmentSvc.Update(ctx, e.ID, move)
		testutil.AssertFieldError(t, err, "curriculum_id", enrollment.ErrCurriculumLocked)

		got, err := f.app.EnrollmentSvc.Get(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, f.curr.ID, got.CurriculumID)
	})

	t.Run("free once the subjects are removed", func(t *testing.T) {
		require.NoError(t, f.app.EnrollmentSvc.RemoveSubject(ctx, e.ID, added[0].ID))

		updated, err := f.app.EnrollmentSvc.Update(ctx, e.ID, move)
		require.NoError(t, err)
		assert.Equal(t, secondary.ID, updated.CurriculumID)

		available, err := f.app.EnrollmentSvc.AvailableSubjects(ctx, e.ID)
		require.NoError(t, err)
		require.Len(t, available, 1)
		assert.Equal(t, latin.ID, available[0].ID)
	})
}

func TestService_Query(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	create := func(childID, yearID int, day string, status string) enrollment.ProgramEnrollment {
		data := f.data(childID, yearID)
		data.EnrollmentDate = day
		data.Status = status
		e, err := f.app.EnrollmentSvc.Create(ctx, data)
		require.NoError(t, err)
		return e
	}
	e1 := create(f.child.ID, f.year.ID, "2024-01-10", "active")
	e2 := create(f.other.ID, f.year.ID, "2024-02-10", "pending")
	e3 := create(f.child.ID, f.nextYear.ID, "2025-01-10", "pending")

	ids := func(list []enrollment.ProgramEnrollment) []int {
		out := make([]int, 0, len(list))
		for _, e := range list {
			out = append(out, e.ID)
		}
		return out
	}

	tests := []struct {
		name     string
		filter   enrollment.QueryFilter
		ordering []core.DBOrdering
		want     []int
	}{
		{name: "latest first", want: []int{e3.ID, e2.ID, e1.ID}},
		{name: "by student", filter: enrollment.QueryFilter{ChildProfileID: f.child.ID}, want: []int{e3.ID, e1.ID}},
		{name: "by year", filter: enrollment.QueryFilter{AcademicYearID: f.year.ID}, want: []int{e2.ID, e1.ID}},
		{name: "by status", filter: enrollment.QueryFilter{Status: "PENDING"}, want: []int{e3.ID, e2.ID}},
		{
			name:     "oldest first",
			ordering: []core.DBOrdering{{Field: "enrollment_date", Ascending: true}},
			want:     []int{e1.ID, e2.ID, e3.ID},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.app.EnrollmentSvc.Query(ctx, tt.filter, tt.ordering)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestService_Subjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	maths, english, science := f.subjects[0], f.subjects[1], f.subjects[2]
	foreign := testutil.CreateSubject(t, f.app.CurriculumRepo, testutil.CreateCurriculum(t, f.app.CurriculumRepo, "Sec", "SEC").ID, "Latin", "LAT")

	e, err := f.app.EnrollmentSvc.Create(ctx, f.data(f.child.ID, f.year.ID))
	require.NoError(t, err)

	available, err := f.app.EnrollmentSvc.AvailableSubjects(ctx, e.ID)
	require.NoError(t, err)
	assert.Len(t, available, 3)

	added, err := f.app.EnrollmentSvc.AddSubjects(ctx, e.ID, enrollment.SubjectsData{SubjectIDs: []int{maths.ID, english.ID, maths.ID}})
	require.NoError(t, err)
	require.Len(t, added, 2)

	available, err = f.app.EnrollmentSvc.AvailableSubjects(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, science.ID, available[0].ID)

	t.Run("already enrolled", func(t *testing.T) {
		_, err := f.app.EnrollmentSvc.AddSubjects(ctx, e.ID, enrollment.SubjectsData{SubjectIDs: []int{maths.ID}})
		testutil.AssertFieldError(t, err, "subject_ids", enrollment.ErrSubjectNotOffered)
	})

	t.Run("not offered by the curriculum", func(t *testing.T) {
		_, err := f.app.EnrollmentSvc.AddSubjects(ctx, e.ID, enrollment.SubjectsData{SubjectIDs: []int{foreign.ID}})
		testutil.AssertFieldError(t, err, "subject_ids", enrollment.ErrSubjectNotOffered)
	})

	t.Run("empty selection", func(t *testing.T) {
		_, err := f.app.EnrollmentSvc.AddSubjects(ctx, e.ID, enrollment.SubjectsData{})
		assert.Error(t, err)
	})

	t.Run("remove keeps the enrollment and its other subjects", func(t *testing.T) {
		require.NoError(t, f.app.EnrollmentSvc.RemoveSubject(ctx, e.ID, added[0].ID))

		_, err := f.app.EnrollmentSvc.Get(ctx, e.ID)
		require.NoError(t, err)
		subjects, err := f.app.EnrollmentSvc.Subjects(ctx, e.ID)
		require.NoError(t, err)
		require.Len(t, subjects, 1)
		assert.Equal(t, english.ID, subjects[0].SubjectID)

		err = f.app.EnrollmentSvc.RemoveSubject(ctx, e.ID, added[0].ID)
		assert.ErrorIs(t, err, enrollment.ErrSubjectEnrollmentNotFound)
	})
}

func TestAvailableSubjects(t *testing.T) {
	offered := []curriculum.Subject{{ID: 1}, {ID: 2}, {ID: 3}}
	enrolled := []enrollment.SubjectEnrollment{{SubjectID: 2}}

	got := enrollment.AvailableSubjects(offered, enrolled)
	assert.Equal(t, []curriculum.Subject{{ID: 1}, {ID: 3}}, got)
	assert.Empty(t, enrollment.AvailableSubjects(nil, enrolled))
}
