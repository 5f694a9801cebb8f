package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/NodeNestor/CodeGate/common/config"
	"github.com/NodeNestor/CodeGate/common/ctxkey"
	"github.com/NodeNestor/CodeGate/common/logger"
	"github.com/NodeNestor/CodeGate/model"
	"github.com/NodeNestor/CodeGate/relay/limiter"
)

func setupAuthTestDB(t *testing.T) func() {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Setting{}, &model.Tenant{}))

	originalDB := model.DB
	model.DB = db
	return func() { model.DB = originalDB }
}

func authContext(headers map[string]string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/messages", nil)
	for k, v := range headers {
		c.Request.Header.Set(k, v)
	}
	gmw.SetLogger(c, logger.Logger)
	return c, w
}

func TestExtractProxyKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := authContext(map[string]string{"X-Api-Key": "key-a", "Authorization": "Bearer key-b"})
	assert.Equal(t, "key-a", ExtractProxyKey(c), "X-Api-Key wins over the bearer token")

	c, _ = authContext(map[string]string{"Authorization": "Bearer  key-b "})
	assert.Equal(t, "key-b", ExtractProxyKey(c))

	c, _ = authContext(nil)
	assert.Empty(t, ExtractProxyKey(c))
}

func TestProxyAuthEnvKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	original := config.ProxyAPIKey
	config.ProxyAPIKey = "sk-env"
	defer func() { config.ProxyAPIKey = original }()

	auth := ProxyAuth(nil)

	c, _ := authContext(map[string]string{"X-Api-Key": "sk-env"})
	auth(c)
	assert.False(t, c.IsAborted())

	c, w := authContext(map[string]string{"X-Api-Key": "sk-wrong"})
	auth(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProxyAuthStoredKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cleanup := setupAuthTestDB(t)
	defer cleanup()

	original := config.ProxyAPIKey
	config.ProxyAPIKey = ""
	defer func() { config.ProxyAPIKey = original }()

	require.NoError(t, model.PutSetting(model.SettingProxyAPIKey, "sk-stored"))
	auth := ProxyAuth(nil)

	c, _ := authContext(map[string]string{"Authorization": "Bearer sk-stored"})
	auth(c)
	assert.False(t, c.IsAborted())

	c, w := authContext(map[string]string{"Authorization": "Bearer sk-wrong"})
	auth(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProxyAuthTenantKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cleanup := setupAuthTestDB(t)
	defer cleanup()

	original := config.ProxyAPIKey
	config.ProxyAPIKey = ""
	defer func() { config.ProxyAPIKey = original }()

	require.NoError(t, model.PutSetting(model.SettingProxyAPIKey, "sk-admin"))
	tenant := &model.Tenant{
		Name:     "acme",
		KeyHash:  model.HashTenantKey("tk-acme"),
		ConfigId: 42,
		RPMLimit: 1,
		Enabled:  true,
	}
	require.NoError(t, tenant.Insert())

	tenantLimiter := limiter.NewRateLimiter()
	auth := ProxyAuth(tenantLimiter)

	c, _ := authContext(map[string]string{"X-Api-Key": "tk-acme"})
	auth(c)
	require.False(t, c.IsAborted())
	assert.Equal(t, tenant.Id, c.GetInt(ctxkey.TenantId))
	assert.Equal(t, "acme", c.GetString(ctxkey.TenantName))
	assert.Equal(t, 42, c.GetInt(ctxkey.ConfigId))

	// second request in the same window trips the tenant RPM cap
	c, w := authContext(map[string]string{"X-Api-Key": "tk-acme"})
	auth(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestProxyAuthDisabledTenantRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cleanup := setupAuthTestDB(t)
	defer cleanup()

	original := config.ProxyAPIKey
	config.ProxyAPIKey = ""
	defer func() { config.ProxyAPIKey = original }()

	require.NoError(t, model.PutSetting(model.SettingProxyAPIKey, "sk-admin"))
	tenant := &model.Tenant{
		Name:    "ghost",
		KeyHash: model.HashTenantKey("tk-ghost"),
		Enabled: false,
	}
	require.NoError(t, tenant.Insert())

	c, w := authContext(map[string]string{"X-Api-Key": "tk-ghost"})
	ProxyAuth(nil)(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProxyAuthOpenGateway(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cleanup := setupAuthTestDB(t)
	defer cleanup()

	original := config.ProxyAPIKey
	config.ProxyAPIKey = ""
	defer func() { config.ProxyAPIKey = original }()

	c, _ := authContext(nil)
	ProxyAuth(nil)(c)
	assert.False(t, c.IsAborted(), "no key material configured anywhere leaves the gateway open")
}
