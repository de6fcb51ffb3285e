package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"github.com/subjectdesk/subjectdesk/internal/api/models"
	"github.com/subjectdesk/subjectdesk/internal/api/response"
	"github.com/subjectdesk/subjectdesk/internal/request"
)

// cannotConfirm is the single answer for every unconfirmable (type, email, token).
const cannotConfirm = "this request cannot be confirmed; it may have expired, been replaced or already been confirmed"

// RequestService submits and confirms data-subject requests.
type RequestService interface {
	Request(ctx context.Context, sub request.Submission) (request.Identity, error)
	Confirm(ctx context.Context, email string, t request.Type, token string) (request.Outcome, error)
}

// RequestsHandler handles data-subject request endpoints.
type RequestsHandler struct {
	service  RequestService
	tokenTTL time.Duration
	clock    clock.Clock
	logger   zerolog.Logger
}

// NewRequestsHandler creates a new RequestsHandler. tokenTTL is reported to
// callers as the confirmation deadline; non-positive omits it. A nil clk uses
// the wall clock.
func NewRequestsHandler(service RequestService, tokenTTL time.Duration, clk clock.Clock, logger zerolog.Logger) *RequestsHandler {
	if clk == nil {
		clk = clock.WallClock
	}
	return &RequestsHandler{
		service:  service,
		tokenTTL: tokenTTL,
		clock:    clk,
		logger:   logger,
	}
}

// Submit handles POST /v1/requests.
func (h *RequestsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var input models.SubmitRequestInput
	if err := response.Decode(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	t, err := request.ParseType(input.Type)
	if err != nil {
		response.BadRequest(w, r, "unsupported request type", []models.FieldError{
			{Field: "type", Message: "must be one of delete, rectify, complaint", Code: "INVALID_ENUM"},
		})
		return
	}

	sub := request.Submission{
		IdentityID: GetAccountID(r.Context()),
		Email:      strings.TrimSpace(input.Email),
		Type:       t,
		Data:       input.Data,
	}
	if sub.IdentityID == "" && sub.Email == "" {
		response.BadRequest(w, r, "email is required", []models.FieldError{
			{Field: "email", Message: "required for unauthenticated requests", Code: "REQUIRED"},
		})
		return
	}

	_, err = h.service.Request(r.Context(), sub)
	switch {
	case err == nil:
	case errors.Is(err, request.ErrInvalidType):
		response.BadRequest(w, r, "unsupported request type", nil)
		return
	case errors.Is(err, request.ErrMissingData):
		response.BadRequest(w, r, "required information missing", []models.FieldError{
			{Field: "data", Message: "required for " + string(t) + " requests", Code: "REQUIRED"},
		})
		return
	case errors.Is(err, request.ErrIdentityNotFound):
		response.NotFound(w, r, "no account is registered for this address")
		return
	case errors.Is(err, request.ErrForbidden):
		response.Forbidden(w, r, "the last administrator cannot request deletion")
		return
	case errors.Is(err, request.ErrNotificationFailed):
		response.BadGateway(w, r, "the confirmation email could not be sent, try again later")
		return
	default:
		h.logger.Error().Err(err).Str("request_type", string(t)).Msg("failed to submit request")
		response.InternalError(w, r, "failed to submit request")
		return
	}

	out := models.SubmitRequestResponse{
		Type:   string(t),
		Status: models.SubmissionStatusPending,
	}
	if h.tokenTTL > 0 {
		out.ExpiresAt = models.Timestamp(h.clock.Now().Add(h.tokenTTL))
	}
	response.Accepted(w, r, out)
}

// ConfirmLink handles GET /v1/requests/confirm, the link sent by email.
func (h *RequestsHandler) ConfirmLink(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.confirm(w, r, q.Get("type"), q.Get("email"), q.Get("key"))
}

// Confirm handles POST /v1/requests/confirmations.
func (h *RequestsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var input models.ConfirmRequestInput
	if err := response.Decode(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	h.confirm(w, r, input.Type, input.Email, input.Token)
}

func (h *RequestsHandler) confirm(w http.ResponseWriter, r *http.Request, rawType, email, token string) {
	var fieldErrs []models.FieldError
	if strings.TrimSpace(email) == "" {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "email", Message: "required", Code: "REQUIRED"})
	}
	if token == "" {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "token", Message: "required", Code: "REQUIRED"})
	}
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "confirmation requires email and token", fieldErrs)
		return
	}

	t, err := request.ParseType(rawType)
	if err != nil {
		response.NotFound(w, r, cannotConfirm)
		return
	}

	outcome, err := h.service.Confirm(r.Context(), email, t, token)
	if err != nil {
		if request.IsUnconfirmable(err) {
			response.NotFound(w, r, cannotConfirm)
			return
		}
		h.logger.Error().Err(err).Str("request_type", string(t)).Msg("failed to confirm request")
		response.InternalError(w, r, "failed to complete the confirmed request")
		return
	}

	response.JSON(w, r, http.StatusOK, models.ConfirmRequestResponse{
		Type:    string(t),
		Outcome: string(outcome),
		Message: outcomeMessage(t, outcome),
	})
}

func outcomeMessage(t request.Type, outcome request.Outcome) string {
	if outcome == request.OutcomeContentRetained {
		return "Your deletion request was received. Your account still owns content, so our staff will contact you to complete it."
	}
	switch t {
	case request.TypeErasure:
		return "Your account has been deleted."
	case request.TypeRectification:
		return "Your correction request was confirmed and will be processed."
	default:
		return "Your complaint was confirmed and will be reviewed."
	}
}
