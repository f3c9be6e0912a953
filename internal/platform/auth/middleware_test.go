package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ping", RequireAuth(testSecret), func(c *gin.Context) {
		uid, _ := c.Get(CtxUserIDKey)
		c.JSON(http.StatusOK, gin.H{"user_id": uid})
	})
	r.GET("/parent-only", RequireAuth(testSecret), RequireParent(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	r := newTestRouter()
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "mama", "role": RoleParent, "exp": time.Now().Add(time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestRequireAuthRejectsMissingHeader(t *testing.T) {
	r := newTestRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestRequireAuthRejectsWrongSecret(t *testing.T) {
	r := newTestRouter()
	token := signToken(t, []byte("other-secret"), jwt.MapClaims{
		"sub": "mama", "exp": time.Now().Add(time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestRequireAuthRejectsExpiredToken(t *testing.T) {
	r := newTestRouter()
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "mama", "exp": time.Now().Add(-time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestRequireParent(t *testing.T) {
	r := newTestRouter()

	parent := signToken(t, testSecret, jwt.MapClaims{
		"sub": "mama", "role": RoleParent, "exp": time.Now().Add(time.Hour).Unix(),
	})
	member := signToken(t, testSecret, jwt.MapClaims{
		"sub": "kid", "role": RoleMember, "exp": time.Now().Add(time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/parent-only", nil)
	req.Header.Set("Authorization", "Bearer "+parent)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("parent: expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/parent-only", nil)
	req.Header.Set("Authorization", "Bearer "+member)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("member: expected 403, got %d", w.Code)
	}
}
