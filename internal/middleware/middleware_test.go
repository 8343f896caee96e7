package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-enrollment-sync/internal/models"
	appErrors "github.com/noah-isme/lms-enrollment-sync/pkg/errors"
)

type checkerStub bool

func (c checkerStub) IsOffline(context.Context) bool { return bool(c) }

type validatorStub struct {
	claims *models.JWTClaims
}

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

func serve(router *gin.Engine, header, value string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestConnectivityHeaderOverridesProbe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Connectivity(checkerStub(true)))
	router.GET("/", func(c *gin.Context) {
		if Offline(c) {
			c.Status(http.StatusAccepted)
			return
		}
		c.Status(http.StatusNoContent)
	})

	if got := serve(router, "", "").Code; got != http.StatusAccepted {
		t.Fatalf("expected probe verdict to apply, got %d", got)
	}
	recorder := serve(router, HeaderOffline, "false")
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected header to force online, got %d", recorder.Code)
	}
	if mode := recorder.Header().Get(HeaderMode); mode != "online" {
		t.Fatalf("unexpected mode header: %s", mode)
	}
	if got := serve(router, HeaderOffline, "garbage").Code; got != http.StatusAccepted {
		t.Fatalf("expected unparsable header to be ignored, got %d", got)
	}
}

func TestOfflineDefaultsToFalse(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if Offline(c) {
		t.Fatalf("expected online without middleware")
	}
}

func TestSetProvenance(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)

	SetProvenance(c, true, "offline")
	meta := ExtractMeta(c)
	if meta["simulated"] != true || meta["simulated_reason"] != "offline" {
		t.Fatalf("unexpected meta: %v", meta)
	}
	if got := recorder.Header().Get(HeaderProvenance); got != ProvenanceSimulated {
		t.Fatalf("unexpected provenance header: %s", got)
	}
}

func TestJWTAndRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(JWT(validatorStub{claims: &models.JWTClaims{UserID: "u1", Role: models.RoleStudent}}))
	router.GET("/", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	if got := serve(router, "", "").Code; got != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", got)
	}
	if got := serve(router, "Authorization", "Bearer bad").Code; got != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", got)
	}
	if got := serve(router, "Authorization", "Bearer good").Code; got != http.StatusForbidden {
		t.Fatalf("expected 403 for student role, got %d", got)
	}
}

func TestSuperAdminPassesRoleCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(JWT(validatorStub{claims: &models.JWTClaims{UserID: "root", Role: models.RoleSuperAdmin}}))
	router.GET("/", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	if got := serve(router, "Authorization", "Bearer good").Code; got != http.StatusNoContent {
		t.Fatalf("expected superadmin to pass, got %d", got)
	}
}

func TestBearerToken(t *testing.T) {
	if _, ok := bearerToken("Basic abc"); ok {
		t.Fatalf("expected basic scheme to be rejected")
	}
	token, ok := bearerToken("bearer  abc ")
	if !ok || token != "abc" {
		t.Fatalf("unexpected token %q", token)
	}
}
