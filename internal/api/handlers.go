package api

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/waitlist-engine/internal/domain"
	"github.com/ignite/waitlist-engine/internal/pkg/httputil"
	"github.com/ignite/waitlist-engine/internal/service/waitlist"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	waitlist *waitlist.Service
}

// NewHandlers creates a new Handlers instance
func NewHandlers(svc *waitlist.Service) *Handlers {
	return &Handlers{waitlist: svc}
}

// entryView is the public projection of an entry returned under "data".
type entryView struct {
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Position   int       `json:"position"`
	SignupDate time.Time `json:"signupDate"`
	Confirmed  bool      `json:"confirmed"`
	EmailsSent int       `json:"emailsSent"`
}

func viewOf(e domain.WaitlistEntry) entryView {
	return entryView{
		Email:      e.Email,
		Name:       e.Name,
		Position:   e.Position,
		SignupDate: e.SignupDate,
		Confirmed:  e.Confirmed,
		EmailsSent: e.EmailsSent,
	}
}

type signupResponse struct {
	Success           bool      `json:"success"`
	Message           string    `json:"message"`
	Position          int       `json:"position"`
	ReferralCode      string    `json:"referralCode"`
	TotalWaitlist     int       `json:"totalWaitlist"`
	EmailSent         bool      `json:"emailSent"`
	NeedsConfirmation bool      `json:"needsConfirmation"`
	EmailConfirmed    bool      `json:"emailConfirmed"`
	AlreadyExists     bool      `json:"alreadyExists,omitempty"`
	Data              entryView `json:"data"`
}

// Signup handles POST /email-waitlist.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req waitlist.SignupRequest
	if err := httputil.DecodeValidate(w, r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	res, err := h.waitlist.Signup(r.Context(), req, clientIP(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	body := signupResponse{
		Success:           true,
		Position:          res.Position,
		ReferralCode:      res.ReferralCode,
		TotalWaitlist:     res.TotalWaitlist,
		EmailSent:         res.EmailSent,
		NeedsConfirmation: res.NeedsConfirmation,
		EmailConfirmed:    res.Entry.Confirmed,
		AlreadyExists:     res.AlreadyExists,
		Data:              viewOf(res.Entry),
	}
	if res.AlreadyExists {
		body.Message = "You're already on the waitlist."
		httputil.OK(w, body)
		return
	}
	body.Message = "You're on the waitlist!"
	if res.EmailSent {
		body.Message = "You're on the waitlist! Check your inbox to confirm your email."
	}
	httputil.Created(w, body)
}

type confirmResponse struct {
	Success          bool      `json:"success"`
	Message          string    `json:"message"`
	Confirmed        bool      `json:"confirmed"`
	AlreadyConfirmed bool      `json:"alreadyConfirmed,omitempty"`
	Position         int       `json:"position"`
	ReferralCode     string    `json:"referralCode"`
	ConfirmedAt      time.Time `json:"confirmedAt"`
	Data             entryView `json:"data"`
}

// ConfirmEmail handles GET /confirm-email?token=...
func (h *Handlers) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	res, err := h.waitlist.ConfirmEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	body := confirmResponse{
		Success:          true,
		Message:          "Your email is confirmed. Thanks for joining!",
		Confirmed:        true,
		AlreadyConfirmed: res.AlreadyConfirmed,
		Position:         res.Entry.Position,
		ReferralCode:     res.Entry.ReferralCode,
		ConfirmedAt:      res.ConfirmedAt,
		Data:             viewOf(res.Entry),
	}
	if res.AlreadyConfirmed {
		body.Message = "Your email was already confirmed."
	}
	httputil.OK(w, body)
}

// Stats handles GET /waitlist/stats.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"success": true,
		"stats":   h.waitlist.Stats(r.Context()),
	})
}

type userView struct {
	entryView
	ReferralCode     string     `json:"referralCode"`
	Referrals        int        `json:"referrals"`
	EmailConfirmedAt *time.Time `json:"emailConfirmedAt"`
	Status           string     `json:"status"`
}

// UserStatus handles GET /user-status?email=...
func (h *Handlers) UserStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.waitlist.Status(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		var nf *waitlist.NotFoundError
		if errors.As(err, &nf) {
			httputil.JSON(w, http.StatusNotFound, map[string]any{
				"success":   false,
				"exists":    false,
				"error":     "We couldn't find that email on the waitlist.",
				"errorType": "USER_NOT_FOUND",
			})
			return
		}
		respondServiceError(w, err)
		return
	}

	e := st.Entry
	httputil.OK(w, map[string]any{
		"success": true,
		"exists":  true,
		"user": userView{
			entryView:        viewOf(e),
			ReferralCode:     e.ReferralCode,
			Referrals:        e.Referrals,
			EmailConfirmedAt: e.EmailConfirmedAt,
			Status:           string(e.Status()),
		},
		"waitlist": map[string]any{
			"position":  e.Position,
			"total":     st.Total,
			"confirmed": e.Confirmed,
		},
	})
}

// clientIP returns the caller's address. middleware.RealIP has already
// applied X-Real-IP / X-Forwarded-For to RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return strings.TrimSpace(host)
}
