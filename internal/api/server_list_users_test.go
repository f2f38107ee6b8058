package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"skillcamp/internal/api/auth"
	"skillcamp/internal/model"
	"skillcamp/internal/pkg/metrics"
	"skillcamp/internal/pkg/token"

	"github.com/gin-gonic/gin"
)

type mockUserLister struct {
	users []model.User
	err   error
}

func (m *mockUserLister) ListAll(ctx context.Context) ([]model.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.users, nil
}

func newListTestServer(lister UserLister) (*Server, *token.Issuer) {
	metrics.InitMetrics()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	issuer := token.NewIssuer("test-secret", time.Hour)
	s := &Server{
		logger: logger,
		router: gin.New(),
		issuer: issuer,
		auth:   auth.NewHandler(nil, nil, nil, issuer, nil, 0, 0, logger),
		users:  lister,
	}
	s.registerRoutes()
	return s, issuer
}

func listUsers(s *Server, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/users/all", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestListUsers_OwnerAllowed(t *testing.T) {
	lister := &mockUserLister{users: []model.User{
		{ID: 1, Email: "a@x.com", FullName: "Ann Smith", Role: "student", IsVerified: true},
		{ID: 2, Email: "b@x.com", FullName: "Bob Chan", Role: "owner", IsVerified: true},
	}}
	s, issuer := newListTestServer(lister)

	tok, err := issuer.Issue(2, model.RoleOwner)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	w := listUsers(s, "Bearer "+tok)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, "a@x.com") || !strings.Contains(body, "b@x.com") {
		t.Fatalf("expected both users in response: %s", body)
	}
	if strings.Contains(body, "password") || strings.Contains(body, "verifyCode") {
		t.Fatalf("response must not expose credentials: %s", body)
	}
}

func TestListUsers_NonOwnerForbidden(t *testing.T) {
	s, issuer := newListTestServer(&mockUserLister{})

	for _, role := range []string{model.RoleStudent, model.RoleCoach} {
		tok, err := issuer.Issue(1, role)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		if w := listUsers(s, "Bearer "+tok); w.Code != http.StatusForbidden {
			t.Fatalf("role %s: expected 403, got %d", role, w.Code)
		}
	}
}

func TestListUsers_NoToken(t *testing.T) {
	s, _ := newListTestServer(&mockUserLister{})

	if w := listUsers(s, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestListUsers_StoreError(t *testing.T) {
	s, issuer := newListTestServer(&mockUserLister{err: fmt.Errorf("db gone")})

	tok, err := issuer.Issue(2, model.RoleOwner)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if w := listUsers(s, "Bearer "+tok); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestHealthz_Degraded(t *testing.T) {
	s, _ := newListTestServer(&mockUserLister{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without backing stores, got %d", w.Code)
	}
}
