// Package gate is the single shared-password gate in front of the app.
package gate

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	CookieName       = "maumtalk_session"
	DefaultTTL       = 7 * 24 * time.Hour
	loginAttempts    = 5
	loginAttemptSpan = time.Minute
)

// Gate issues session cookies to clients that present the password.
// A Gate with an empty password lets every request through.
type Gate struct {
	password string
	ttl      time.Duration
	isDev    bool
	limiter  *RateLimiter
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]time.Time
	onLogout []func()
}

// New creates a gate. An empty password disables it.
func New(password string, ttl time.Duration, isDev bool) *Gate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Gate{
		password: password,
		ttl:      ttl,
		isDev:    isDev,
		limiter:  NewRateLimiter(loginAttempts, loginAttemptSpan),
		now:      time.Now,
		sessions: make(map[string]time.Time),
	}
}

// Enabled reports whether a password is required.
func (g *Gate) Enabled() bool {
	return g.password != ""
}

// Close stops background work.
func (g *Gate) Close() {
	g.limiter.Stop()
}

// OnLogout registers fn to run after a session is dropped.
func (g *Gate) OnLogout(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onLogout = append(g.onLogout, fn)
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Authenticated reports whether r carries a live session cookie.
func (g *Gate) Authenticated(r *http.Request) bool {
	if !g.Enabled() {
		return true
	}
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	expires, ok := g.sessions[c.Value]
	if !ok {
		return false
	}
	if !g.now().Before(expires) {
		delete(g.sessions, c.Value)
		return false
	}
	return true
}

type loginRequest struct {
	Password string `json:"password"`
}

// Login checks the password and sets the session cookie.
func (g *Gate) Login(w http.ResponseWriter, r *http.Request) {
	if !g.Enabled() {
		writeJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
		return
	}

	ip := IPFromRequest(r)
	if !g.limiter.Allow(ip) {
		slog.Warn("Login rate limited", "ip", ip)
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many login attempts"})
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(g.password)) != 1 {
		slog.Warn("Login rejected", "ip", ip)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "비밀번호가 올바르지 않아요."})
		return
	}

	token, err := generateToken()
	if err != nil {
		slog.Error("Failed to issue session", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create session"})
		return
	}

	expires := g.now().Add(g.ttl)
	g.mu.Lock()
	g.sessions[token] = expires
	g.mu.Unlock()
	g.limiter.Reset(ip)

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(g.ttl.Seconds()),
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !g.isDev,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
}

// Logout drops the session and clears the cookie.
func (g *Gate) Logout(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	if c, err := r.Cookie(CookieName); err == nil {
		delete(g.sessions, c.Value)
	}
	hooks := append([]func(){}, g.onLogout...)
	g.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !g.isDev,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": false})
}

// Middleware rejects requests without a live session.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Authenticated(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "login required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IPFromRequest returns the remote IP without its port.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode gate response", "error", err)
	}
}
