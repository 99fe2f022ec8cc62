package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core/system"
)

type systemApi struct {
	backups     *system.BackupManager
	logs        *system.LogViewer
	maintenance *system.Maintenance
	updater     *system.Updater
}

type (
	MaintenanceRequest struct {
		Message    string `json:"message"`
		RetryAfter int    `json:"retry_after"`
	}

	ChannelRequest struct {
		Channel string `json:"channel"`
	}

	InstallRequest struct {
		Version string `json:"version"`
	}
)

func registerSystemAPI(g *echo.Group, auth echo.MiddlewareFunc, deps ServerDeps) {
	api := systemApi{
		backups:     deps.Backups,
		logs:        deps.Logs,
		maintenance: deps.Maintenance,
		updater:     deps.Updater,
	}

	sg := g.Group("/system", auth, adminMiddleware())

	if api.backups != nil {
		sg.GET("/backups", api.listBackups)
		sg.POST("/backups", api.createBackup)
		sg.GET("/backups/:name", api.downloadBackup)
		sg.DELETE("/backups/:name", api.deleteBackup)
	}

	if api.logs != nil {
		sg.GET("/logs", api.readLogs)
		sg.DELETE("/logs", api.clearLogs)
	}

	if api.maintenance != nil {
		sg.GET("/maintenance", api.maintenanceStatus)
		sg.POST("/maintenance", api.enableMaintenance)
		sg.DELETE("/maintenance", api.disableMaintenance)
	}

	if api.updater != nil {
		sg.GET("/updates", api.checkUpdates)
		sg.GET("/updates/releases", api.releases)
		sg.PUT("/updates/channel", api.setChannel)
		sg.POST("/updates/install", api.install)
	}
}

// backups

func (api *systemApi) listBackups(ctx echo.Context) error {
	list, err := api.backups.List()
	return listResponse(ctx, list, err, "backups")
}

func (api *systemApi) createBackup(ctx echo.Context) error {
	b, err := api.backups.Create(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "creating backup")
	}
	return ctx.JSON(http.StatusCreated, b)
}

func (api *systemApi) downloadBackup(ctx echo.Context) error {
	name := ctx.Param("name")
	path, err := api.backups.Path(name)
	if err != nil {
		return errors.Wrap(err, "finding backup")
	}
	return ctx.Attachment(path, name)
}

func (api *systemApi) deleteBackup(ctx echo.Context) error {
	if err := api.backups.Delete(ctx.Param("name")); err != nil {
		return errors.Wrap(err, "deleting backup")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// logs

func (api *systemApi) readLogs(ctx echo.Context) error {
	q := newQueryParams(ctx, nil)
	limit, level := q.Int("limit"), q.String("level")
	if err := q.Err(); err != nil {
		return err
	}
	list, err := api.logs.Read(limit, level)
	return listResponse(ctx, list, err, "logs")
}

func (api *systemApi) clearLogs(ctx echo.Context) error {
	if err := api.logs.Clear(); err != nil {
		return errors.Wrap(err, "clearing logs")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// maintenance

func (api *systemApi) maintenanceStatus(ctx echo.Context) error {
	state, err := api.maintenance.Status()
	if err != nil {
		return errors.Wrap(err, "reading maintenance status")
	}
	return ctx.JSON(http.StatusOK, state)
}

func (api *systemApi) enableMaintenance(ctx echo.Context) error {
	var data MaintenanceRequest
	if err := bindBody(ctx, &data, "MaintenanceRequest"); err != nil {
		return err
	}
	state, err := api.maintenance.Enable(data.Message, data.RetryAfter)
	if err != nil {
		return errors.Wrap(err, "enabling maintenance")
	}
	return ctx.JSON(http.StatusOK, state)
}

func (api *systemApi) disableMaintenance(ctx echo.Context) error {
	if err := api.maintenance.Disable(); err != nil {
		return errors.Wrap(err, "disabling maintenance")
	}
	return ctx.JSON(http.StatusOK, system.MaintenanceState{})
}

// updates

func (api *systemApi) checkUpdates(ctx echo.Context) error {
	info, err := api.updater.Check(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "checking for updates")
	}
	return ctx.JSON(http.StatusOK, info)
}

func (api *systemApi) releases(ctx echo.Context) error {
	channel := newQueryParams(ctx, nil).String("channel")
	if channel == "" {
		state, err := api.updater.State()
		if err != nil {
			return errors.Wrap(err, "reading update state")
		}
		channel = state.Channel
	}
	list, err := api.updater.Releases(channel)
	return listResponse(ctx, list, err, "releases")
}

func (api *systemApi) setChannel(ctx echo.Context) error {
	var data ChannelRequest
	if err := bindBody(ctx, &data, "ChannelRequest"); err != nil {
		return err
	}
	state, err := api.updater.SetChannel(data.Channel)
	if err != nil {
		return errors.Wrap(err, "setting update channel")
	}
	return ctx.JSON(http.StatusOK, state)
}

func (api *systemApi) install(ctx echo.Context) error {
	var data InstallRequest
	if err := bindBody(ctx, &data, "InstallRequest"); err != nil {
		return err
	}
	state, err := api.updater.Install(ctx.Request().Context(), data.Version)
	if err != nil {
		return errors.Wrap(err, "installing update")
	}
	return ctx.JSON(http.StatusOK, state)
}
