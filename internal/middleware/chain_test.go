package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/talkbox/internal/model"
)

// newChainRouter は本番と同じ順序でミドルウェアを積んだルーターを返す。
// DELETE /api/users/me はパスワード検証操作として扱う。
func newChainRouter(t *testing.T, finder SessionFinder, sensitivePerMinute int) http.Handler {
	t.Helper()

	rl := NewRateLimiter(NewRateLimiterConfig(120, sensitivePerMinute))
	t.Cleanup(rl.Stop)

	csrf := CSRFConfig{}
	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware())
	r.Use(NewLoggingMiddleware(slog.New(slog.NewJSONHandler(io.Discard, nil)), nil))
	r.Use(NewSecurityHeadersMiddleware())
	r.Use(NewCORSMiddleware("http://localhost:3000"))
	r.Use(NewCSRFMiddleware(csrf))

	r.Get("/api/csrf-token", NewCSRFTokenHandler(csrf).ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(NewSessionMiddleware(finder))
		r.Use(rl.GeneralMiddleware())

		r.Get("/api/users/me", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := UserIDFromContext(r.Context())
			WriteJSON(w, http.StatusOK, map[string]string{"user_id": userID})
		})
		r.With(rl.SensitiveMiddleware()).Delete("/api/users/me", func(w http.ResponseWriter, r *http.Request) {
			session := SessionFromContext(r.Context())
			WriteJSON(w, http.StatusOK, map[string]string{"deleted": session.UserID})
		})
	})
	return r
}

func chainFinder() *mockSessionRepository {
	return &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id != "valid-session" {
				return nil, nil
			}
			return &model.Session{
				ID:              id,
				UserID:          "user-chain",
				AuthenticatedAt: time.Now(),
				ExpiresAt:       time.Now().Add(time.Hour),
			}, nil
		},
	}
}

type chainRequest struct {
	method  string
	session string
	csrf    bool
}

func (c chainRequest) build() *http.Request {
	req := httptest.NewRequest(c.method, "/api/users/me", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	if c.session != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: c.session})
	}
	if c.csrf {
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "chain-token"})
		req.Header.Set(csrfHeaderName, "chain-token")
	}
	return req
}

func TestMiddlewareChain(t *testing.T) {
	tests := []struct {
		name       string
		req        chainRequest
		wantStatus int
		wantCode   string
	}{
		{"GET with session", chainRequest{http.MethodGet, "valid-session", false}, http.StatusOK, ""},
		{"GET without session", chainRequest{http.MethodGet, "", false}, http.StatusUnauthorized, model.ErrCodeNotAuthenticated},
		{"GET with unknown session", chainRequest{http.MethodGet, "forged", false}, http.StatusUnauthorized, model.ErrCodeNotAuthenticated},
		{"DELETE with session and csrf", chainRequest{http.MethodDelete, "valid-session", true}, http.StatusOK, ""},
		{"DELETE without csrf", chainRequest{http.MethodDelete, "valid-session", false}, http.StatusForbidden, "CSRF_VALIDATION_FAILED"},
		// CSRF検証はセッション検証より前に行う
		{"DELETE without csrf or session", chainRequest{http.MethodDelete, "", false}, http.StatusForbidden, "CSRF_VALIDATION_FAILED"},
		{"DELETE with csrf but no session", chainRequest{http.MethodDelete, "", true}, http.StatusUnauthorized, model.ErrCodeNotAuthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newChainRouter(t, chainFinder(), 5)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, tt.req.build())

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body: %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if w.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("security headers should be set on every response")
			}
			if tt.wantCode == "" {
				return
			}
			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode error body: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestMiddlewareChain_SensitiveLimit_AppliesOnlyToDeletion(t *testing.T) {
	router := newChainRouter(t, chainFinder(), 1)

	del := chainRequest{http.MethodDelete, "valid-session", true}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, del.build())
	if w.Code != http.StatusOK {
		t.Fatalf("first DELETE status = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, del.build())
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second DELETE status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	// 読み取りは一般レート制限のみ
	w = httptest.NewRecorder()
	router.ServeHTTP(w, chainRequest{http.MethodGet, "valid-session", false}.build())
	if w.Code != http.StatusOK {
		t.Errorf("GET after sensitive limit status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestMiddlewareChain_CSRFTokenEndpoint_NoAuth(t *testing.T) {
	router := newChainRouter(t, chainFinder(), 5)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body.Token == "" {
		t.Errorf("expected token in body, got %q (err=%v)", body.Token, err)
	}
}
