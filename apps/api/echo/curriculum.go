package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core/billing"
	"github.com/trezcool/elimu/core/curriculum"
)

type curriculumApi struct {
	svc     curriculum.Service
	billing billing.Service
}

func registerCurriculumAPI(g *echo.Group, auth echo.MiddlewareFunc, deps ServerDeps) {
	api := curriculumApi{svc: deps.CurriculumSvc, billing: deps.BillingSvc}
	admin := adminMiddleware()

	cg := g.Group("/curricula", auth)
	cg.GET("", api.queryCurricula)
	cg.GET("/:id/subjects", api.subjectsOf)
	cg.GET("/:id/payment-plans", api.plansOf)
	crud[curriculum.Curriculum, curriculum.CurriculumData]{
		name:    "curriculum",
		create:  api.svc.CreateCurriculum,
		get:     api.svc.GetCurriculum,
		update:  api.svc.UpdateCurriculum,
		destroy: api.svc.DeleteCurriculum,
	}.register(cg, admin)

	sg := g.Group("/subjects", auth)
	sg.GET("", api.querySubjects)
	crud[curriculum.Subject, curriculum.SubjectData]{
		name:    "subject",
		create:  api.svc.CreateSubject,
		get:     api.svc.GetSubject,
		update:  api.svc.UpdateSubject,
		destroy: api.svc.DeleteSubject,
	}.register(sg, admin)

	yg := g.Group("/academic-years", auth)
	yg.GET("", api.queryAcademicYears)
	yg.GET("/current", api.currentAcademicYear)
	crud[curriculum.AcademicYear, curriculum.AcademicYearData]{
		name:    "academic year",
		create:  api.svc.CreateAcademicYear,
		get:     api.svc.GetAcademicYear,
		update:  api.svc.UpdateAcademicYear,
		destroy: api.svc.DeleteAcademicYear,
	}.register(yg, admin)
}

func (api *curriculumApi) queryCurricula(ctx echo.Context) error {
	q := newQueryParams(ctx, nil)
	filter := curriculum.CurriculumFilter{
		Search:   q.String("search"),
		IsActive: q.Bool("is_active"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	list, err := api.svc.QueryCurricula(ctx.Request().Context(), filter)
	return listResponse(ctx, list, err, "curricula")
}

func (api *curriculumApi) subjectsOf(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	list, err := api.svc.SubjectsOf(ctx.Request().Context(), id)
	return listResponse(ctx, list, err, "subjects of curriculum")
}

// plansOf lists the active payment plans an enrollment in the curriculum may use.
func (api *curriculumApi) plansOf(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	if _, err = api.svc.GetCurriculum(reqCtx, id); err != nil {
		return errors.Wrap(err, "retrieving curriculum")
	}
	return listResponse(ctx, api.billing.ActivePlansFor(reqCtx, id), nil, "payment plans")
}

func (api *curriculumApi) querySubjects(ctx echo.Context) error {
	q := newQueryParams(ctx, nil)
	filter := curriculum.SubjectFilter{
		Search:       q.String("search"),
		CurriculumID: q.Int("curriculum_id"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	list, err := api.svc.QuerySubjects(ctx.Request().Context(), filter)
	return listResponse(ctx, list, err, "subjects")
}

func (api *curriculumApi) queryAcademicYears(ctx echo.Context) error {
	list, err := api.svc.QueryAcademicYears(ctx.Request().Context())
	return listResponse(ctx, list, err, "academic years")
}

func (api *curriculumApi) currentAcademicYear(ctx echo.Context) error {
	ay, err := api.svc.CurrentAcademicYear(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "retrieving current academic year")
	}
	return ctx.JSON(http.StatusOK, ay)
}
