package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"skillcamp/internal/model"
	"skillcamp/internal/pkg/token"

	"github.com/gin-gonic/gin"
)

func newProtectedRouter(issuer *token.Issuer, roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := []gin.HandlerFunc{Auth(issuer)}
	if len(roles) > 0 {
		handlers = append(handlers, RequireRoles(roles...))
	}
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"userID": c.GetInt("userID"),
			"role":   c.GetString("role"),
		})
	})
	r.GET("/protected", handlers...)
	return r
}

func doGet(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_MissingHeader(t *testing.T) {
	issuer := token.NewIssuer("secret", time.Hour)
	r := newProtectedRouter(issuer)

	if w := doGet(r, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuth_MalformedHeader(t *testing.T) {
	issuer := token.NewIssuer("secret", time.Hour)
	r := newProtectedRouter(issuer)

	tok, err := issuer.Issue(1, model.RoleStudent)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	for _, header := range []string{"Basic " + tok, tok, "Bearer"} {
		if w := doGet(r, header); w.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, w.Code)
		}
	}
}

func TestAuth_InvalidToken(t *testing.T) {
	issuer := token.NewIssuer("secret", time.Hour)
	r := newProtectedRouter(issuer)

	if w := doGet(r, "Bearer not-a-jwt"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	other := token.NewIssuer("other-secret", time.Hour)
	tok, err := other.Issue(1, model.RoleStudent)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if w := doGet(r, "Bearer "+tok); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: expected 401, got %d", w.Code)
	}
}

func TestAuth_ExpiredToken(t *testing.T) {
	expired := token.NewIssuer("secret", -time.Minute)
	tok, err := expired.Issue(1, model.RoleStudent)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	r := newProtectedRouter(token.NewIssuer("secret", time.Hour))
	if w := doGet(r, "Bearer "+tok); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuth_ValidTokenSetsContext(t *testing.T) {
	issuer := token.NewIssuer("secret", time.Hour)
	r := newProtectedRouter(issuer)

	tok, err := issuer.Issue(42, "Owner")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	w := doGet(r, "Bearer "+tok)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !containsAll(body, `"userID":42`, `"role":"owner"`) {
		t.Fatalf("unexpected context values: %s", body)
	}
}

func TestRequireRoles_OwnerOnly(t *testing.T) {
	issuer := token.NewIssuer("secret", time.Hour)
	r := newProtectedRouter(issuer, model.RoleOwner)

	studentTok, err := issuer.Issue(1, model.RoleStudent)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if w := doGet(r, "Bearer "+studentTok); w.Code != http.StatusForbidden {
		t.Fatalf("student: expected 403, got %d", w.Code)
	}

	coachTok, err := issuer.Issue(2, model.RoleCoach)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if w := doGet(r, "Bearer "+coachTok); w.Code != http.StatusForbidden {
		t.Fatalf("coach: expected 403, got %d", w.Code)
	}

	ownerTok, err := issuer.Issue(3, model.RoleOwner)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if w := doGet(r, "Bearer "+ownerTok); w.Code != http.StatusOK {
		t.Fatalf("owner: expected 200, got %d", w.Code)
	}
}

func TestRequireRoles_CaseInsensitiveClaim(t *testing.T) {
	issuer := token.NewIssuer("secret", time.Hour)
	r := newProtectedRouter(issuer, model.RoleOwner)

	tok, err := issuer.Issue(1, "OWNER")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if w := doGet(r, "Bearer "+tok); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
