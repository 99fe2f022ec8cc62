package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elimu/core/billing"
	"github.com/trezcool/elimu/core/enrollment"
	"github.com/trezcool/elimu/core/report"
	"github.com/trezcool/elimu/core/schedule"
	testutil "github.com/trezcool/elimu/tests"
)

func TestService_Dashboard(t *testing.T) {
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC) // Wednesday
	report.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { report.NowFunc = time.Now })

	app := testutil.NewApp(t)
	ctx := context.Background()

	parent := testutil.CreateParent(t, app.ProfileRepo, "Jane", "Doe", "")
	tom := testutil.CreateChild(t, app.ProfileRepo, parent.ID, "Tom", "Doe")
	ann := testutil.CreateChild(t, app.ProfileRepo, parent.ID, "Ann", "Doe")
	c := testutil.CreateCurriculum(t, app.CurriculumRepo, "Primary", "PRIM")
	maths := testutil.CreateSubject(t, app.CurriculumRepo, c.ID, "Mathematics", "MATH")
	year := testutil.CreateAcademicYear(t, app.CurriculumRepo, "2024", now.AddDate(0, -4, 0), now.AddDate(0, 6, 0), true)
	teacher := testutil.CreateTeacher(t, app.ProfileRepo, "Ada", "Lovelace", nil, maths.ID)

	enroll := func(childID int, status string) {
		_, err := app.EnrollmentRepo.CreateEnrollment(ctx, enrollment.ProgramEnrollment{
			ChildProfileID: childID, CurriculumID: c.ID, AcademicYearID: year.ID, Status: status,
			EnrollmentDate: now, CreatedAt: now, UpdatedAt: now,
		})
		require.NoError(t, err)
	}
	enroll(tom.ID, enrollment.StatusActive)
	enroll(ann.ID, enrollment.StatusPending)

	session := func(start time.Time) {
		_, err := app.ScheduleRepo.CreateSession(ctx, schedule.Session{
			SubjectID: maths.ID, TeacherProfileID: teacher.ID, Type: schedule.TypeLecture,
			StartTime: start, EndTime: start.Add(time.Hour), CreatedAt: now, UpdatedAt: now,
		})
		require.NoError(t, err)
	}
	session(time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC)) // monday, first instant of the week
	session(time.Date(2024, 5, 19, 22, 0, 0, 0, time.UTC))
	session(time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)) // next week
	session(time.Date(2024, 5, 12, 23, 0, 0, 0, time.UTC))

	pay := func(amount int64, status string, paidAt, due *time.Time) {
		_, err := app.BillingRepo.CreatePayment(ctx, billing.Payment{
			ChildProfileID: tom.ID, Amount: amount, Method: billing.MethodCash, Status: status,
			PaidAt: paidAt, DueDate: due, CreatedAt: now, UpdatedAt: now,
		})
		require.NoError(t, err)
	}
	thisMonth := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	lastMonth := time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC)
	pastDue := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	upcoming := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	pay(10000, billing.PaymentCompleted, &thisMonth, &pastDue)
	pay(2500, billing.PaymentCompleted, &thisMonth, nil)
	pay(7000, billing.PaymentCompleted, &lastMonth, nil)
	pay(3000, billing.PaymentPending, nil, &pastDue)
	pay(4000, billing.PaymentPending, nil, &upcoming)
	pay(900, billing.PaymentFailed, nil, nil)

	dash, err := app.ReportSvc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, dash.Students)
	assert.Equal(t, 1, dash.Parents)
	assert.Equal(t, 1, dash.Teachers)
	assert.Equal(t, 1, dash.ActiveEnrollments)
	assert.Equal(t, map[string]int{enrollment.StatusActive: 1, enrollment.StatusPending: 1}, dash.EnrollmentsByStatus)
	assert.Equal(t, 2, dash.SessionsThisWeek)
	assert.Equal(t, int64(12500), dash.RevenueThisMonth)
	assert.Equal(t, 1, dash.OverduePayments)
	assert.Equal(t, int64(7000), dash.OutstandingAmount)
}

func TestService_Dashboard_Empty(t *testing.T) {
	app := testutil.NewApp(t)
	dash, err := app.ReportSvc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Zero(t, dash.Students)
	assert.Zero(t, dash.RevenueThisMonth)
	assert.Empty(t, dash.EnrollmentsByStatus)
}
