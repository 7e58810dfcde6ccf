package gate

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func login(g *Gate, password string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"password":"`+password+`"}`))
	req.RemoteAddr = "10.0.0.1:5555"
	rec := httptest.NewRecorder()
	g.Login(rec, req)
	return rec
}

func protected(g *Gate) http.Handler {
	return g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestGateDisabled(t *testing.T) {
	t.Parallel()
	g := New("", 0, true)
	defer g.Close()

	rec := httptest.NewRecorder()
	protected(g).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected open access, got %d", rec.Code)
	}
}

func TestGateLoginFlow(t *testing.T) {
	t.Parallel()
	g := New("s3cret", time.Hour, true)
	defer g.Close()
	h := protected(g)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without cookie, got %d", rec.Code)
	}

	if rec := login(g, "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}

	ok := login(g, "s3cret")
	if ok.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", ok.Code)
	}
	cookies := ok.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName || !cookies[0].HttpOnly {
		t.Fatalf("unexpected cookies: %+v", cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected access with cookie, got %d", rec.Code)
	}

	logoutReq := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	logoutReq.AddCookie(cookies[0])
	g.Logout(httptest.NewRecorder(), logoutReq)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestGateLogoutRunsHooks(t *testing.T) {
	t.Parallel()
	g := New("pw", time.Hour, true)
	defer g.Close()

	calls := 0
	g.OnLogout(func() { calls++ })

	g.Logout(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/logout", nil))
	if calls != 1 {
		t.Fatalf("expected logout hook to run once, ran %d times", calls)
	}
}

func TestGateSessionExpires(t *testing.T) {
	t.Parallel()
	g := New("pw", time.Hour, true)
	defer g.Close()

	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	cookie := login(g, "pw").Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	if !g.Authenticated(req) {
		t.Fatal("expected fresh session to be valid")
	}

	now = now.Add(2 * time.Hour)
	if g.Authenticated(req) {
		t.Fatal("expected session to expire")
	}
}

func TestGateLoginRateLimited(t *testing.T) {
	t.Parallel()
	g := New("pw", time.Hour, true)
	defer g.Close()

	for i := 0; i < loginAttempts; i++ {
		login(g, "nope")
	}
	if rec := login(g, "pw"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()

	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two attempts should pass")
	}
	if rl.Allow("a") {
		t.Fatal("third attempt should be blocked")
	}
	if !rl.Allow("b") {
		t.Fatal("other keys are independent")
	}

	now = now.Add(61 * time.Second)
	if !rl.Allow("a") {
		t.Fatal("attempts should pass after the window")
	}

	rl.Reset("a")
	rl.evict()
	if _, ok := rl.requests["a"]; ok {
		t.Fatal("reset key should be gone")
	}
}
