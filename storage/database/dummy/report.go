package dummydb

import (
	"context"

	"github.com/trezcool/elimu/core/billing"
	"github.com/trezcool/elimu/core/enrollment"
	"github.com/trezcool/elimu/core/report"
)

type reportRepository struct {
	db *DB
}

var _ report.Repository = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(db *DB) report.Repository {
	return &reportRepository{db: db}
}

func (repo *reportRepository) Dashboard(_ context.Context, period report.Period) (report.Dashboard, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	dash := report.Dashboard{
		Students:            len(repo.db.children),
		Parents:             len(repo.db.parents),
		Teachers:            len(repo.db.teachers),
		EnrollmentsByStatus: make(map[string]int),
	}
	for _, e := range repo.db.enrollments {
		if e.DeletedAt != nil {
			continue
		}
		dash.EnrollmentsByStatus[e.Status]++
		if e.Status == enrollment.StatusActive {
			dash.ActiveEnrollments++
		}
	}
	for _, s := range repo.db.sessions {
		if inRange(s.StartTime, period.WeekStart, period.WeekEnd) {
			dash.SessionsThisWeek++
		}
	}
	for _, p := range repo.db.payments {
		if p.Status == billing.PaymentCompleted && p.PaidAt != nil && inRange(*p.PaidAt, period.MonthStart, period.MonthEnd) {
			dash.RevenueThisMonth += p.Amount
		}
		if p.IsOverdue(period.Now) {
			dash.OverduePayments++
		}
		if p.Status == billing.PaymentPending || p.Status == billing.PaymentOverdue {
			dash.OutstandingAmount += p.Amount
		}
	}
	return dash, nil
}
