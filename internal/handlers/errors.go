package handlers

import (
	"errors"
	"net/http"

	"github.com/dimitrije/teamfocus-api/internal/apperr"
	"github.com/go-playground/validator/v10"
	"github.com/m1z23r/drift/pkg/drift"
)

var validate = validator.New()

// bind decodes the body into req and runs its validate tags. It writes the
// 400 itself and reports whether the handler should continue.
func bind(c *drift.Context, req any) bool {
	if err := c.BindJSON(req); err != nil {
		c.BadRequest("invalid request body")
		return false
	}
	if err := validate.Struct(req); err != nil {
		c.BadRequest(validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		switch fe.Tag() {
		case "required":
			return fe.Field() + " is required"
		case "email":
			return fe.Field() + " must be a valid email"
		case "url":
			return fe.Field() + " must be a valid url"
		case "min":
			return fe.Field() + " must be at least " + fe.Param() + " characters"
		case "max":
			return fe.Field() + " must be at most " + fe.Param() + " characters"
		}
		return fe.Field() + " is invalid"
	}
	return "invalid request"
}

var notFoundMessages = map[apperr.NotFoundReason]string{
	apperr.RoomMissing:    "room not found",
	apperr.MessageMissing: "message not found",
	apperr.UserMissing:    "user not found",
	apperr.NoticeMissing:  "notice not found",
}

func unavailable(c *drift.Context, msg string) {
	_ = c.JSON(http.StatusServiceUnavailable, map[string]string{"error": msg})
}

// writeError maps the service error taxonomy onto HTTP statuses. fallback is
// the 500 message for anything unrecognized.
func writeError(c *drift.Context, err error, fallback string) {
	var validationErr *apperr.ValidationError
	var notFound *apperr.NotFoundError

	switch {
	case errors.As(err, &validationErr):
		c.BadRequest(validationErr.Msg)
	case errors.Is(err, apperr.ErrInvalidInvite):
		c.BadRequest("invalid invite code")
	case errors.Is(err, apperr.ErrInvalidCredentials):
		c.Unauthorized("invalid credentials")
	case errors.Is(err, apperr.ErrUnauthorized):
		c.Unauthorized("not authorized")
	case errors.Is(err, apperr.ErrNotAdmin):
		c.Forbidden("admin role required")
	case errors.As(err, &notFound):
		msg, ok := notFoundMessages[notFound.Reason]
		if !ok {
			msg = "not found"
		}
		c.NotFound(msg)
	case errors.Is(err, apperr.ErrNetworkFailure):
		unavailable(c, "service temporarily unavailable")
	default:
		c.InternalServerError(fallback)
	}
}
