package boiledrepos

import (
	"context"

	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/report"
)

// $1, $2: week bounds; $3, $4: month bounds; $5: now
const dashboardQuery = `
	SELECT
		(SELECT COUNT(*) FROM child_profiles) AS students,
		(SELECT COUNT(*) FROM parent_profiles) AS parents,
		(SELECT COUNT(*) FROM teacher_profiles) AS teachers,
		(SELECT COUNT(*) FROM program_enrollments WHERE deleted_at IS NULL AND status = 'Active') AS active_enrollments,
		(SELECT COUNT(*) FROM sessions WHERE start_time >= $1 AND start_time < $2) AS sessions_this_week,
		(SELECT COALESCE(SUM(amount), 0) FROM payments
			WHERE status = 'completed' AND paid_at >= $3 AND paid_at < $4) AS revenue_this_month,
		(SELECT COUNT(*) FROM payments
			WHERE status <> 'completed' AND due_date IS NOT NULL AND due_date < $5) AS overdue_payments,
		(SELECT COALESCE(SUM(amount), 0) FROM payments WHERE status IN ('pending', 'overdue')) AS outstanding_amount`

const enrollmentsByStatusQuery = `
	SELECT status, COUNT(*) AS count
	FROM program_enrollments
	WHERE deleted_at IS NULL
	GROUP BY status`

type statusCount struct {
	Status string `boil:"status"`
	Count  int    `boil:"count"`
}

type reportRepository struct {
	exec core.DBExecutor
}

var _ report.Repository = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(exec core.DBExecutor) report.Repository {
	return &reportRepository{exec: exec}
}

func (repo reportRepository) Dashboard(ctx context.Context, period report.Period) (report.Dashboard, error) {
	var dash report.Dashboard
	err := queries.Raw(dashboardQuery,
		period.WeekStart.UTC(), period.WeekEnd.UTC(),
		period.MonthStart.UTC(), period.MonthEnd.UTC(),
		period.Now.UTC(),
	).Bind(ctx, repo.exec, &dash)
	if err != nil {
		return report.Dashboard{}, errors.Wrap(err, "querying dashboard figures")
	}

	var counts []statusCount
	if err = queries.Raw(enrollmentsByStatusQuery).Bind(ctx, repo.exec, &counts); err != nil {
		return report.Dashboard{}, errors.Wrap(err, "counting enrollments by status")
	}
	dash.EnrollmentsByStatus = make(map[string]int, len(counts))
	for _, c := range counts {
		dash.EnrollmentsByStatus[c.Status] = c.Count
	}
	return dash, nil
}
