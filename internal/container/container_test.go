package container

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ieeeucsd/dashboard-finance/internal/config"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
	"github.com/ieeeucsd/dashboard-finance/internal/infrastructure/idempotency"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Server:      config.ServerConfig{Port: 8080, Mode: gin.TestMode},
		Database:    config.DatabaseConfig{Path: filepath.Join(dir, "dashboard.db"), MaxOpenConns: 4},
		Storage:     config.StorageConfig{BaseDir: filepath.Join(dir, "files"), BaseURL: "/files", OrphanGrace: time.Hour},
		Auth:        config.AuthConfig{JWTSecret: "container-test-secret", Issuer: "test", TokenTTL: time.Hour},
		Idempotency: config.IdempotencyConfig{Path: filepath.Join(dir, "keys.db"), TTL: time.Hour, PruneInterval: time.Hour},
		Logger:      config.LoggerConfig{Level: "error"},
	}
}

func TestNewContainer_Validates(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Auth.JWTSecret = ""
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestContainer_BuildWithoutStart(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, c.Build())
	require.NoError(t, c.Build(), "build is idempotent")
	assert.False(t, c.Ready())
	assert.NotNil(t, c.Services().FileMigration)

	_, err = c.Server()
	assert.Error(t, err, "server needs a started container")

	require.NoError(t, c.Close())
	assert.Error(t, c.Close())
}

func TestContainer_ServesAuthenticatedRequests(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))
	defer func() { _ = c.Close() }()

	health := c.Health()
	assert.True(t, health.Overall, "%+v", health.Components)
	assert.Equal(t, 1, c.workers.Count(), "only the key pruner is scheduled")

	require.NoError(t, c.Repositories().Profile.Upsert(ctx, &entity.Profile{
		UserID: "treasurer", DisplayName: "Treasurer", Role: entity.RoleExecutiveOfficer,
	}))
	token, err := c.Tokens().Issue("member-7")
	require.NoError(t, err)

	srv, err := c.Server()
	require.NoError(t, err)

	body, err := json.Marshal(map[string]interface{}{
		"title":            "Poster printing",
		"amount":           "18.25",
		"department":       "events",
		"payment_method":   "card",
		"date_of_purchase": "2026-10-02",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reimbursements", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Eventually(t, func() bool {
		return c.ReadModel().Reimbursements.Len() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestProvideWorkers_PrunerLogsOncePerPrune(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	keys, err := idempotency.NewBoltStore(filepath.Join(t.TempDir(), "keys.db"), time.Millisecond, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = keys.Close() })
	require.NoError(t, keys.Remember("reimbursement:user-1", "k1", "rec-1"))
	time.Sleep(5 * time.Millisecond)

	workers := ProvideWorkers(&WorkerDeps{
		Idempotency: config.IdempotencyConfig{PruneInterval: 10 * time.Millisecond},
		Keys:        keys,
		Logger:      logger,
	})
	require.Equal(t, 1, workers.Count())
	require.NoError(t, workers.StartAll(context.Background()))

	assert.Eventually(t, func() bool {
		return logs.FilterMessage("Pruned idempotency keys").Len() > 0
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, workers.StopAll())

	assert.Equal(t, 1, logs.FilterMessage("Pruned idempotency keys").Len())
}

func TestConvertToZapFields(t *testing.T) {
	fields := convertToZapFields("id", "r-1", 42, "skipped", "error", assert.AnError, "dangling")
	require.Len(t, fields, 2)
	assert.Equal(t, "id", fields[0].Key)
	assert.Equal(t, "error", fields[1].Key)
}
