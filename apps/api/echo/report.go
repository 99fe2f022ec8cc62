package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core/activity"
	"github.com/trezcool/elimu/core/report"
)

type reportApi struct {
	svc      report.Service
	activity activity.Service
}

func registerReportAPI(g *echo.Group, auth echo.MiddlewareFunc, deps ServerDeps) {
	api := reportApi{svc: deps.ReportSvc, activity: deps.ActivitySvc}

	g.GET("/dashboard", api.dashboard, auth, adminMiddleware())
	g.GET("/activity", api.queryActivity, auth, adminMiddleware())
}

func (api *reportApi) dashboard(ctx echo.Context) error {
	dash, err := api.svc.Dashboard(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

func (api *reportApi) queryActivity(ctx echo.Context) error {
	q := newQueryParams(ctx, nil)
	filter := activity.QueryFilter{
		SubjectType: q.String("subject_type"),
		SubjectID:   q.String("subject_id"),
		CauserID:    q.String("causer_id"),
		Action:      q.String("action"),
		Limit:       q.Int("limit"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	list, err := api.activity.Query(ctx.Request().Context(), filter)
	return listResponse(ctx, list, err, "activity log")
}
