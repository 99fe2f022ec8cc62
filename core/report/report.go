// Package report computes the read-only figures shown on the admin dashboard.
package report

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
)

// NowFunc is overridden in tests.
var NowFunc = time.Now

type Dashboard struct {
	Students            int            `json:"students" boil:"students"`
	Parents             int            `json:"parents" boil:"parents"`
	Teachers            int            `json:"teachers" boil:"teachers"`
	ActiveEnrollments   int            `json:"active_enrollments" boil:"active_enrollments"`
	SessionsThisWeek    int            `json:"sessions_this_week" boil:"sessions_this_week"`
	RevenueThisMonth    int64          `json:"revenue_this_month" boil:"revenue_this_month"`
	OverduePayments     int            `json:"overdue_payments" boil:"overdue_payments"`
	OutstandingAmount   int64          `json:"outstanding_amount" boil:"outstanding_amount"`
	EnrollmentsByStatus map[string]int `json:"enrollments_by_status" boil:"-"`
}

// Period bounds the figures of a dashboard: [WeekStart, WeekEnd) and [MonthStart, MonthEnd).
type Period struct {
	Now        time.Time
	WeekStart  time.Time
	WeekEnd    time.Time
	MonthStart time.Time
	MonthEnd   time.Time
}

// PeriodAt returns the week (starting Monday) and month around now, in now's location.
func PeriodAt(now time.Time) Period {
	day := core.StartOfDay(now)
	offset := (int(day.Weekday()) + 6) % 7 // days since Monday
	weekStart := day.AddDate(0, 0, -offset)
	monthStart := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
	return Period{
		Now:        now,
		WeekStart:  weekStart,
		WeekEnd:    weekStart.AddDate(0, 0, 7),
		MonthStart: monthStart,
		MonthEnd:   monthStart.AddDate(0, 1, 0),
	}
}

type (
	Repository interface {
		Dashboard(ctx context.Context, period Period) (Dashboard, error)
	}

	Service interface {
		Dashboard(ctx context.Context) (Dashboard, error)
	}

	service struct {
		repo Repository
		conf *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, conf *core.Config) Service {
	return &service{repo: repo, conf: conf}
}

func (svc *service) Dashboard(ctx context.Context) (Dashboard, error) {
	loc := svc.conf.Timezone
	if loc == nil {
		loc = time.UTC
	}
	dash, err := svc.repo.Dashboard(ctx, PeriodAt(NowFunc().In(loc)))
	return dash, errors.Wrap(err, "computing dashboard")
}
