package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ignite/waitlist-engine/internal/pkg/httputil"
	"github.com/ignite/waitlist-engine/internal/pkg/logger"
	"github.com/ignite/waitlist-engine/internal/service/waitlist"
	"github.com/ignite/waitlist-engine/internal/token"
)

// Error types returned in the "errorType" field.
const (
	errValidation         = "VALIDATION_ERROR"
	errRateLimit          = "RATE_LIMIT_EXCEEDED"
	errTokenValidation    = "TOKEN_VALIDATION_ERROR"
	errMissingToken       = "MISSING_TOKEN"
	errUserNotFound       = "USER_NOT_FOUND"
	errServiceUnavailable = "SERVICE_UNAVAILABLE"
	errDatabase           = "DATABASE_ERROR"
	errSave               = "SAVE_ERROR"
	errPersistence        = "PERSISTENCE_ERROR"
	errInternal           = "INTERNAL_ERROR"
)

type rateLimitResponse struct {
	httputil.ErrorResponse
	RetryAfterSeconds int `json:"retryAfterSeconds"`
}

// respondServiceError maps a waitlist service error onto the HTTP envelope.
// 5xx responses never carry the internal error text.
func respondServiceError(w http.ResponseWriter, err error) {
	var (
		verr *waitlist.ValidationError
		rerr *waitlist.RateLimitError
		terr *token.TokenError
		nerr *waitlist.NotFoundError
		perr *waitlist.PersistenceError
	)

	switch {
	case errors.As(err, &verr):
		httputil.ErrorWithDetails(w, http.StatusBadRequest, errValidation, verr.Message,
			[]httputil.FieldError{{Field: verr.Field, Rule: "invalid", Message: verr.Message}})

	case errors.As(err, &rerr):
		secs := rerr.RetryAfterSeconds()
		msg := "Too many signup attempts. Please try again later."
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rerr.Remaining))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		httputil.JSON(w, http.StatusTooManyRequests, rateLimitResponse{
			ErrorResponse:     httputil.ErrorResponse{Error: msg, ErrorType: errRateLimit, Message: msg},
			RetryAfterSeconds: secs,
		})

	case errors.Is(err, waitlist.ErrMissingToken):
		httputil.BadRequest(w, errMissingToken, "A confirmation token is required.")

	case errors.As(err, &terr):
		msg := "This confirmation link is invalid."
		if terr.Reason == token.ReasonExpired {
			msg = "This confirmation link has expired. Sign up again to get a new one."
		}
		httputil.ErrorWithDetails(w, http.StatusBadRequest, errTokenValidation, msg, map[string]string{"reason": string(terr.Reason)})

	case errors.As(err, &nerr):
		httputil.NotFound(w, errUserNotFound, "We couldn't find that email on the waitlist.")

	case errors.Is(err, waitlist.ErrTokensUnavailable):
		logger.Error("confirmation requested but tokens are not configured")
		httputil.Error(w, http.StatusServiceUnavailable, errServiceUnavailable, "Email confirmation is temporarily unavailable.")

	case errors.As(err, &perr):
		respondSafeError(w, http.StatusInternalServerError, persistenceCode(perr.Op), err,
			"We couldn't save your request. Please try again shortly.")

	default:
		respondSafeError(w, http.StatusInternalServerError, errInternal, err,
			"Something went wrong on our end. Please try again shortly.")
	}
}

func persistenceCode(op string) string {
	switch op {
	case waitlist.OpRead:
		return errDatabase
	case waitlist.OpSave:
		return errSave
	default:
		return errPersistence
	}
}

func respondDecodeError(w http.ResponseWriter, err error) {
	var derr *httputil.DecodeError
	if errors.As(err, &derr) {
		if len(derr.Fields) > 0 {
			httputil.ErrorWithDetails(w, http.StatusBadRequest, errValidation, derr.Message, derr.Fields)
			return
		}
		httputil.BadRequest(w, errValidation, derr.Message)
		return
	}
	httputil.BadRequest(w, errValidation, "request body is invalid")
}

// respondSafeError logs the full internal error and sends a sanitized
// JSON error response to the client.
func respondSafeError(w http.ResponseWriter, code int, errorType string, internalErr error, publicMsg string) {
	if internalErr != nil {
		logger.Error("request failed", "status", code, "errorType", errorType, "error", internalErr)
	}
	httputil.Error(w, code, errorType, publicMsg)
}
