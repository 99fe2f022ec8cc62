package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core/enrollment"
)

type enrollmentApi struct {
	svc enrollment.Service
}

func registerEnrollmentAPI(g *echo.Group, auth echo.MiddlewareFunc, deps ServerDeps) {
	api := enrollmentApi{svc: deps.EnrollmentSvc}
	admin := adminMiddleware()

	eg := g.Group("/enrollments", auth, staffMiddleware)
	eg.GET("", api.query)
	crud[enrollment.ProgramEnrollment, enrollment.EnrollmentData]{
		name:    "enrollment",
		create:  api.svc.Create,
		get:     api.svc.Get,
		update:  api.svc.Update,
		destroy: api.svc.Delete,
	}.register(eg, admin)

	eg.GET("/:id/subjects", api.subjects)
	eg.POST("/:id/subjects", api.addSubjects, admin)
	eg.DELETE("/:id/subjects/:seid", api.removeSubject, admin)
	eg.GET("/:id/available-subjects", api.availableSubjects)
}

func (api *enrollmentApi) query(ctx echo.Context) error {
	q := newQueryParams(ctx, nil)
	filter := enrollment.QueryFilter{
		ChildProfileID: q.Int("child_profile_id"),
		CurriculumID:   q.Int("curriculum_id"),
		AcademicYearID: q.Int("academic_year_id"),
		Status:         q.String("status"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	list, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	return listResponse(ctx, list, err, "enrollments")
}

func (api *enrollmentApi) subjects(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	list, err := api.svc.Subjects(ctx.Request().Context(), id)
	return listResponse(ctx, list, err, "enrolled subjects")
}

func (api *enrollmentApi) availableSubjects(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	list, err := api.svc.AvailableSubjects(ctx.Request().Context(), id)
	return listResponse(ctx, list, err, "available subjects")
}

func (api *enrollmentApi) addSubjects(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var data enrollment.SubjectsData
	if err = bindBody(ctx, &data, "SubjectsData"); err != nil {
		return err
	}
	list, err := api.svc.AddSubjects(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "adding subjects")
	}
	return ctx.JSON(http.StatusCreated, list)
}

func (api *enrollmentApi) removeSubject(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	seID, err := pathID(ctx, "seid")
	if err != nil {
		return err
	}
	if err = api.svc.RemoveSubject(ctx.Request().Context(), id, seID); err != nil {
		return errors.Wrap(err, "removing subject")
	}
	return ctx.NoContent(http.StatusNoContent)
}
