package apperror

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// statusCodes names the echo errors raised before a handler runs.
var statusCodes = map[int]string{
	http.StatusBadRequest:            "bad_request",
	http.StatusNotFound:              "not_found",
	http.StatusMethodNotAllowed:      "method_not_allowed",
	http.StatusRequestEntityTooLarge: "payload_too_large",
	http.StatusUnsupportedMediaType:  "unsupported_media_type",
}

// HTTPErrorHandler returns an Echo error handler rendering
// {"error":{"code","message","details"}}.
func HTTPErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		appErr := toError(err)
		if appErr.HTTPStatus >= 500 {
			log.Error("request error",
				slog.Int("status", appErr.HTTPStatus),
				slog.String("path", c.Request().URL.Path),
				slog.String("tenant", c.Request().Header.Get("X-Tenant-ID")),
				slog.String("error", err.Error()),
			)
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(appErr.HTTPStatus)
			return
		}
		body := map[string]any{
			"code":    appErr.Code,
			"message": appErr.Message,
		}
		if len(appErr.Details) > 0 {
			body["details"] = appErr.Details
		}
		_ = c.JSON(appErr.HTTPStatus, map[string]any{"error": body})
	}
}

// toError resolves err to the application error it is rendered as. Echo's
// own errors keep their status; anything unknown is internal.
func toError(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code, ok := statusCodes[he.Code]
		if !ok {
			code = ErrInternal.Code
			if he.Code < 500 {
				code = "http_error"
			}
		}
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		return New(he.Code, code, msg)
	}
	return ErrInternal
}
