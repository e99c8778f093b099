// Package auth gates the admin console behind Google sign-in. Identity is
// delegated to Google; sessions live in the KV store so every instance sees
// the same logins.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/ignite/waitlist-engine/internal/config"
	"github.com/ignite/waitlist-engine/internal/domain"
	"github.com/ignite/waitlist-engine/internal/kv"
	"github.com/ignite/waitlist-engine/internal/pkg/httputil"
	"github.com/ignite/waitlist-engine/internal/pkg/logger"
)

const (
	stateCookie        = "oauth_state"
	googleUserInfoURL  = "https://www.googleapis.com/oauth2/v2/userinfo"
	defaultSessionTTL  = 8 * time.Hour
	sessionIDByteCount = 32
)

// GoogleUserInfo represents the user info returned by Google
type GoogleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	HD            string `json:"hd"` // Hosted domain (GSuite domain)
}

// Session represents an authenticated admin session
type Session struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Picture   string    `json:"picture"`
	Domain    string    `json:"domain"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type sessionKey struct{}

// SessionFromContext returns the session RequireAuth attached to ctx.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok
}

// AuthManager handles Google OAuth authentication
type AuthManager struct {
	config       config.AuthConfig
	oauth2Config *oauth2.Config
	store        *kv.Client
	secret       []byte
	userInfoURL  string
	now          func() time.Time
}

// NewAuthManager creates an authentication manager. baseURL is the public
// origin Google redirects back to.
func NewAuthManager(cfg config.AuthConfig, baseURL string, store *kv.Client) (*AuthManager, error) {
	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
		return nil, errors.New("auth: google client id and secret are required")
	}
	if cfg.AllowedDomain == "" {
		return nil, errors.New("auth: allowed_domain is required")
	}

	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		// Cookies signed with a per-process key do not survive restarts or
		// work across instances.
		log.Printf("[Auth] WARNING: session_secret not set, using an ephemeral key")
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("auth: generate session key: %w", err)
		}
	}
	if cfg.CookieMaxAge <= 0 {
		cfg.CookieMaxAge = int(defaultSessionTTL / time.Second)
	}

	return &AuthManager{
		config: cfg,
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  strings.TrimRight(baseURL, "/") + "/auth/callback",
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		store:       store,
		secret:      secret,
		userInfoURL: googleUserInfoURL,
		now:         time.Now,
	}, nil
}

// randomString returns n random bytes, URL-safe encoded
func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HandleLogin initiates the Google OAuth flow
func (am *AuthManager) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := randomString(32)
	if err != nil {
		httputil.InternalError(w, "AUTH_ERROR", err)
		return
	}

	// Store state in a cookie for verification
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   300, // 5 minutes
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	// hd restricts the Google account chooser to the allowed domain
	url := am.oauth2Config.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.SetAuthURLParam("hd", am.config.AllowedDomain))
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// HandleCallback processes the OAuth callback from Google
func (am *AuthManager) HandleCallback(w http.ResponseWriter, r *http.Request) {
	state, err := r.Cookie(stateCookie)
	if err != nil || state.Value == "" || r.URL.Query().Get("state") != state.Value {
		log.Printf("[Auth] Invalid OAuth state")
		http.Redirect(w, r, "/?error=invalid_state", http.StatusTemporaryRedirect)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		log.Printf("[Auth] Google returned error: %s", errMsg)
		http.Redirect(w, r, "/?error=oauth_denied", http.StatusTemporaryRedirect)
		return
	}

	tok, err := am.oauth2Config.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		log.Printf("[Auth] Failed to exchange code: %v", err)
		http.Redirect(w, r, "/?error=exchange_failed", http.StatusTemporaryRedirect)
		return
	}

	info, err := am.getUserInfo(r.Context(), tok)
	if err != nil {
		log.Printf("[Auth] Failed to get user info: %v", err)
		http.Redirect(w, r, "/?error=userinfo_failed", http.StatusTemporaryRedirect)
		return
	}

	if !am.domainAllowed(info) {
		logger.Warn("admin login rejected", "email", info.Email, "allowedDomain", am.config.AllowedDomain)
		http.Redirect(w, r, "/?error=domain_not_allowed", http.StatusTemporaryRedirect)
		return
	}

	cookieValue, err := am.createSession(r.Context(), info)
	if err != nil {
		logger.Error("failed to create admin session", "email", info.Email, "error", err)
		http.Redirect(w, r, "/?error=session_failed", http.StatusTemporaryRedirect)
		return
	}

	logger.Info("admin logged in", "email", info.Email)
	http.SetCookie(w, &http.Cookie{
		Name:     am.config.CookieName,
		Value:    cookieValue,
		Path:     "/",
		MaxAge:   am.config.CookieMaxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/admin/waitlist", http.StatusTemporaryRedirect)
}

// HandleLogout deletes the session and clears the cookie
func (am *AuthManager) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if id, ok := am.sessionID(r); ok {
		if err := am.store.Delete(r.Context(), domain.KeyAdminSession(id)); err != nil {
			logger.Warn("failed to delete admin session", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{Name: am.config.CookieName, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// HandleUserInfo returns the current admin as JSON
func (am *AuthManager) HandleUserInfo(w http.ResponseWriter, r *http.Request) {
	session := am.GetSession(r)
	if session == nil {
		httputil.JSON(w, http.StatusUnauthorized, map[string]any{"authenticated": false})
		return
	}
	httputil.OK(w, map[string]any{
		"authenticated": true,
		"user": map[string]string{
			"id":      session.UserID,
			"email":   session.Email,
			"name":    session.Name,
			"picture": session.Picture,
			"domain":  session.Domain,
		},
		"expiresAt": session.ExpiresAt,
	})
}

// GetSession returns the session for the current request, or nil if not authenticated
func (am *AuthManager) GetSession(r *http.Request) *Session {
	id, ok := am.sessionID(r)
	if !ok {
		return nil
	}

	var session Session
	if !am.store.Get(r.Context(), domain.KeyAdminSession(id), &session) {
		return nil
	}

	if am.now().After(session.ExpiresAt) {
		if err := am.store.Delete(r.Context(), domain.KeyAdminSession(id)); err != nil {
			logger.Warn("failed to delete expired admin session", "error", err)
		}
		return nil
	}
	return &session
}

// RequireAuth is middleware that rejects requests without a valid session.
func (am *AuthManager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := am.GetSession(r)
		if session == nil {
			httputil.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Sign in to access the admin console.")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
	})
}

func (am *AuthManager) domainAllowed(info *GoogleUserInfo) bool {
	if !info.VerifiedEmail {
		return false
	}
	at := strings.LastIndex(info.Email, "@")
	if at < 0 {
		return false
	}
	return strings.EqualFold(info.Email[at+1:], am.config.AllowedDomain)
}

// createSession persists a new session and returns the signed cookie value.
func (am *AuthManager) createSession(ctx context.Context, info *GoogleUserInfo) (string, error) {
	id, err := randomString(sessionIDByteCount)
	if err != nil {
		return "", err
	}
	now := am.now().UTC()
	session := Session{
		UserID:    info.ID,
		Email:     info.Email,
		Name:      info.Name,
		Picture:   info.Picture,
		Domain:    info.HD,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(am.config.CookieMaxAge) * time.Second),
	}
	if err := am.store.Set(ctx, domain.KeyAdminSession(id), session); err != nil {
		return "", err
	}
	return id + "." + am.sign(id), nil
}

// sessionID extracts and verifies the session id from the cookie.
func (am *AuthManager) sessionID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(am.config.CookieName)
	if err != nil {
		return "", false
	}
	id, mac, ok := strings.Cut(cookie.Value, ".")
	if !ok || id == "" {
		return "", false
	}
	if !hmac.Equal([]byte(mac), []byte(am.sign(id))) {
		return "", false
	}
	return id, true
}

func (am *AuthManager) sign(id string) string {
	h := hmac.New(sha256.New, am.secret)
	h.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// getUserInfo fetches the user's profile from Google
func (am *AuthManager) getUserInfo(ctx context.Context, tok *oauth2.Token) (*GoogleUserInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, am.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := am.oauth2Config.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google API error: status %d", resp.StatusCode)
	}

	var info GoogleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}
	return &info, nil
}
