package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/elimu/core/profile"
)

type profileApi struct {
	svc profile.Service
}

func registerProfileAPI(g *echo.Group, auth echo.MiddlewareFunc, deps ServerDeps) {
	api := profileApi{svc: deps.ProfileSvc}
	pg := g.Group("/profiles", auth, staffMiddleware)
	admin := adminMiddleware()

	parents := pg.Group("/parents")
	parents.GET("", api.queryParents)
	parents.GET("/:id/children", api.childrenOf)
	crud[profile.ParentProfile, profile.ParentData]{
		name:    "parent",
		create:  api.svc.CreateParent,
		get:     api.svc.GetParent,
		update:  api.svc.UpdateParent,
		destroy: api.svc.DeleteParent,
	}.register(parents, admin)

	clients := pg.Group("/clients")
	clients.GET("", api.queryClients)
	crud[profile.ClientProfile, profile.ClientData]{
		name:    "client",
		create:  api.svc.CreateClient,
		get:     api.svc.GetClient,
		update:  api.svc.UpdateClient,
		destroy: api.svc.DeleteClient,
	}.register(clients, admin)

	children := pg.Group("/children")
	children.GET("", api.queryChildren)
	crud[profile.ChildProfile, profile.ChildData]{
		name:    "student",
		create:  api.svc.CreateChild,
		get:     api.svc.GetChild,
		update:  api.svc.UpdateChild,
		destroy: api.svc.DeleteChild,
	}.register(children, admin)

	teachers := pg.Group("/teachers")
	teachers.GET("", api.queryTeachers)
	crud[profile.TeacherProfile, profile.TeacherData]{
		name:    "teacher",
		create:  api.svc.CreateTeacher,
		get:     api.svc.GetTeacher,
		update:  api.svc.UpdateTeacher,
		destroy: api.svc.DeleteTeacher,
	}.register(teachers, admin)
}

func (api *profileApi) filter(ctx echo.Context) (profile.QueryFilter, error) {
	q := newQueryParams(ctx, nil)
	filter := profile.QueryFilter{
		Search:   q.String("search"),
		ParentID: q.Int("parent_id"),
		ClientID: q.Int("client_id"),
		UserID:   q.String("user_id"),
	}
	return filter, q.Err()
}

func (api *profileApi) queryParents(ctx echo.Context) error {
	filter, err := api.filter(ctx)
	if err != nil {
		return err
	}
	list, err := api.svc.QueryParents(ctx.Request().Context(), filter)
	return listResponse(ctx, list, err, "parents")
}

func (api *profileApi) childrenOf(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	list, err := api.svc.ChildrenOf(ctx.Request().Context(), id)
	return listResponse(ctx, list, err, "children of parent")
}

func (api *profileApi) queryClients(ctx echo.Context) error {
	filter, err := api.filter(ctx)
	if err != nil {
		return err
	}
	list, err := api.svc.QueryClients(ctx.Request().Context(), filter)
	return listResponse(ctx, list, err, "clients")
}

func (api *profileApi) queryChildren(ctx echo.Context) error {
	filter, err := api.filter(ctx)
	if err != nil {
		return err
	}
	list, err := api.svc.QueryChildren(ctx.Request().Context(), filter)
	return listResponse(ctx, list, err, "students")
}

func (api *profileApi) queryTeachers(ctx echo.Context) error {
	filter, err := api.filter(ctx)
	if err != nil {
		return err
	}
	list, err := api.svc.QueryTeachers(ctx.Request().Context(), filter)
	return listResponse(ctx, list, err, "teachers")
}
