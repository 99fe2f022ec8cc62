package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// crud serves the create/retrieve/update/destroy endpoints of a resource addressed by an integer ":id".
// T is the resource, D the payload accepted on create and update.
type crud[T any, D any] struct {
	name    string
	create  func(ctx context.Context, data D) (T, error)
	get     func(ctx context.Context, id int) (T, error)
	update  func(ctx context.Context, id int, data D) (T, error)
	destroy func(ctx context.Context, id int) error
}

func (c crud[T, D]) createHandler(ctx echo.Context) error {
	var data D
	if err := bindBody(ctx, &data, c.name+" data"); err != nil {
		return err
	}
	obj, err := c.create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating "+c.name)
	}
	return ctx.JSON(http.StatusCreated, obj)
}

func (c crud[T, D]) retrieveHandler(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	obj, err := c.get(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "retrieving "+c.name)
	}
	return ctx.JSON(http.StatusOK, obj)
}

func (c crud[T, D]) updateHandler(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var data D
	if err = bindBody(ctx, &data, c.name+" data"); err != nil {
		return err
	}
	obj, err := c.update(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating "+c.name)
	}
	return ctx.JSON(http.StatusOK, obj)
}

func (c crud[T, D]) destroyHandler(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err = c.destroy(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting "+c.name)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// register mounts the detail endpoints under g; writes go through the write middlewares.
func (c crud[T, D]) register(g *echo.Group, write ...echo.MiddlewareFunc) {
	if c.create != nil {
		g.POST("", c.createHandler, write...)
	}
	if c.get != nil {
		g.GET("/:id", c.retrieveHandler)
	}
	if c.update != nil {
		g.PUT("/:id", c.updateHandler, write...)
	}
	if c.destroy != nil {
		g.DELETE("/:id", c.destroyHandler, write...)
	}
}

// listResponse renders list, never as JSON null.
func listResponse[T any](ctx echo.Context, list []T, err error, what string) error {
	if err != nil {
		return errors.Wrap(err, "querying "+what)
	}
	if list == nil {
		list = []T{}
	}
	return ctx.JSON(http.StatusOK, list)
}
