package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	inEmptyDir(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 10*time.Second, cfg.Auth.ProfileTimeout)
	assert.Equal(t, 15*time.Second, cfg.Auth.SignInTimeout)
	assert.Equal(t, "dashboard:tasks", cfg.Worker.Stream)
	assert.Equal(t, 90*24*time.Hour, cfg.Worker.AuditRetention)
	assert.Equal(t, int64(5), cfg.Worker.MaxDeliveries)
}

func TestLoadFromEnvironment(t *testing.T) {
	inEmptyDir(t)
	t.Setenv("PHAZE_HTTP_PORT", "9090")
	t.Setenv("PHAZE_AUTH_PROFILETIMEOUT", "3s")
	t.Setenv("PHAZE_SECURITY_JWTACCESSSECRET", "s3cret")
	t.Setenv("PHAZE_ALLOWCORSORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 3*time.Second, cfg.Auth.ProfileTimeout)
	assert.Equal(t, "s3cret", cfg.Security.JWTAccessSecret)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowCORSOrigins)
}

func TestProductionRequiresSecrets(t *testing.T) {
	inEmptyDir(t)
	t.Setenv("PHAZE_ENVIRONMENT", "production")

	_, err := Load()
	assert.ErrorContains(t, err, "jwtaccesssecret")

	t.Setenv("PHAZE_SECURITY_JWTACCESSSECRET", "s3cret")
	t.Setenv("PHAZE_SECURITY_COOKIESECRET", "short")
	_, err = Load()
	assert.ErrorContains(t, err, "cookiesecret")
}

func TestProfileTimeoutMustBePositive(t *testing.T) {
	inEmptyDir(t)
	t.Setenv("PHAZE_AUTH_PROFILETIMEOUT", "0s")

	_, err := Load()
	assert.Error(t, err)
}

// inEmptyDir runs the test where no config file can be found.
func inEmptyDir(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
