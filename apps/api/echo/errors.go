package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/billing"
	"github.com/trezcool/elimu/core/curriculum"
	"github.com/trezcool/elimu/core/enrollment"
	"github.com/trezcool/elimu/core/profile"
	"github.com/trezcool/elimu/core/schedule"
	"github.com/trezcool/elimu/core/system"
	"github.com/trezcool/elimu/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// errorStatuses maps domain errors that are not validation errors to their HTTP status.
var errorStatuses = []struct {
	err  error
	code int
}{
	{user.ErrNotFound, http.StatusNotFound},
	{profile.ErrChildNotFound, http.StatusNotFound},
	{profile.ErrParentNotFound, http.StatusNotFound},
	{profile.ErrClientNotFound, http.StatusNotFound},
	{profile.ErrTeacherNotFound, http.StatusNotFound},
	{curriculum.ErrCurriculumNotFound, http.StatusNotFound},
	{curriculum.ErrSubjectNotFound, http.StatusNotFound},
	{curriculum.ErrAcademicYearNotFound, http.StatusNotFound},
	{curriculum.ErrNoCurrentYear, http.StatusNotFound},
	{curriculum.ErrInUse, http.StatusConflict},
	{enrollment.ErrNotFound, http.StatusNotFound},
	{enrollment.ErrSubjectEnrollmentNotFound, http.StatusNotFound},
	{schedule.ErrRoomNotFound, http.StatusNotFound},
	{schedule.ErrSessionNotFound, http.StatusNotFound},
	{schedule.ErrSlotNotFound, http.StatusNotFound},
	{schedule.ErrExamNotFound, http.StatusNotFound},
	{schedule.ErrEventNotFound, http.StatusNotFound},
	{billing.ErrPlanNotFound, http.StatusNotFound},
	{billing.ErrInvoiceNotFound, http.StatusNotFound},
	{billing.ErrPaymentNotFound, http.StatusNotFound},
	{system.ErrBackupNotFound, http.StatusNotFound},
	{system.ErrUnknownChannel, http.StatusBadRequest},
}

func domainErrorStatus(err error) (int, bool) {
	for _, es := range errorStatuses {
		if errors.Is(err, es.err) {
			return es.code, true
		}
	}
	return 0, false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		var vErr *core.ValidationError
		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			code = http.StatusBadRequest
			message = core.TranslateValidationErrors(origErr, translator)
		default:
			if errors.As(err, &vErr) {
				if len(vErr.Fields) > 0 {
					fldErrs := make(map[string]string, len(vErr.Fields))
					for _, fErr := range vErr.Fields {
						fldErrs[fErr.Field] = fErr.Error
					}
					message = fldErrs
				} else {
					message = vErr.Error()
				}
				code = http.StatusBadRequest
				break
			}
			if status, ok := domainErrorStatus(err); ok {
				code = status
				message = errors.Cause(err).Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.Username = claims.Username
				usr.Email = claims.Email
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
