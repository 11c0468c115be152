package router_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"finextract/internal/config"
	"finextract/internal/domain"
	"finextract/internal/handler"
	"finextract/internal/router"
	"finextract/mocks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setup(cfg *config.Config) (*gin.Engine, *mocks.MockExtractionService, *mocks.MockRunRepo) {
	svc := new(mocks.MockExtractionService)
	runs := new(mocks.MockRunRepo)
	r := router.Setup(cfg, handler.NewExtractionHandler(svc, nil), handler.NewHealthHandler(runs), zap.NewNop())
	return r, svc, runs
}

func TestSetup_RoutesWithoutAuth(t *testing.T) {
	r, svc, runs := setup(&config.Config{})
	runs.On("Ping", mock.Anything).Return(nil)
	svc.On("ListRuns", mock.Anything, 0, 20).Return([]domain.ExtractionRun{}, 0, nil)

	for _, path := range []string{"/healthz", "/readyz", "/api/v1/extractions"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, path, http.NoBody)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"), path)
	}
}

func TestSetup_AuthRequiredWhenSecretSet(t *testing.T) {
	cfg := &config.Config{Auth: config.AuthConfig{Secret: "s3cret", Issuer: "finex", Audience: "extraction"}}
	r, svc, _ := setup(cfg)
	svc.On("ListRuns", mock.Anything, 0, 20).Return([]domain.ExtractionRun{}, 0, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/extractions", http.NoBody)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ops",
		Issuer:    "finex",
		Audience:  jwt.ClaimStrings{"extraction"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/v1/extractions", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetup_ArchiveRoute(t *testing.T) {
	r, svc, _ := setup(&config.Config{})
	id := uuid.New()
	svc.On("ArchiveURL", mock.Anything, id).Return(nil, domain.ErrStorageDisabled)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/extractions/"+id.String()+"/archive", http.NoBody)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	svc.AssertExpectations(t)
}
