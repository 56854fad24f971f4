package handler

import (
    "errors"
    "log/slog"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/referral-tracker/internal/logger"
    "github.com/iliyamo/referral-tracker/internal/repository"
    "github.com/iliyamo/referral-tracker/internal/validator"
)

// statusFor maps repository sentinels to HTTP status codes.
func statusFor(err error) int {
    switch {
    case errors.Is(err, repository.ErrNotFound):
        return http.StatusNotFound
    case errors.Is(err, repository.ErrUnauthenticated):
        return http.StatusUnauthorized
    case errors.Is(err, repository.ErrForbidden):
        return http.StatusForbidden
    case errors.Is(err, repository.ErrConflict):
        return http.StatusConflict
    case errors.Is(err, repository.ErrInvalidToken),
        errors.Is(err, repository.ErrValidation),
        errors.Is(err, repository.ErrIndexedFieldChanged):
        return http.StatusBadRequest
    default:
        return http.StatusInternalServerError
    }
}

// fail writes err as {"error": ...}, plus "fields" for input validation
// failures. Server errors are logged and their
// text is not sent to the client.
func fail(c echo.Context, log *slog.Logger, op string, err error) error {
    status := statusFor(err)
    if status == http.StatusInternalServerError {
        logger.WithContext(c.Request().Context(), log).Error(op+" failed", slog.String("error", err.Error()))
        return c.JSON(status, echo.Map{"error": op + " failed"})
    }
    var verr *validator.ValidationError
    if errors.As(err, &verr) {
        return c.JSON(status, echo.Map{"error": err.Error(), "fields": verr.Fields()})
    }
    return c.JSON(status, echo.Map{"error": err.Error()})
}
