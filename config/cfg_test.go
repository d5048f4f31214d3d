package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
[mysql]
dsn = "user:pw@tcp(localhost:3306)/ketowell?parseTime=true"

[http]
port = "9000"
allowed_origins = ["https://ketowell.com"]

[drip]
send_interval = "250ms"
worker_interval = "1h"

[stripe]
price = "19.99"
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	return path
}

func TestLoadConfig_File(t *testing.T) {
	c, err := LoadConfig(writeConfig(t))
	require.NoError(t, err)

	assert.Equal(t, "user:pw@tcp(localhost:3306)/ketowell?parseTime=true", c.DB.DSN)
	assert.Equal(t, "9000", c.HTTP.Port)
	assert.Equal(t, []string{"https://ketowell.com"}, c.HTTP.AllowedOrigins)
	assert.Equal(t, 250*time.Millisecond, c.Drip.SendInterval)
	assert.Equal(t, time.Hour, c.Drip.WorkerInterval)
	assert.Equal(t, "19.99", c.Stripe.Price)

	// defaults
	assert.Equal(t, 30*time.Minute, c.Drip.LeaseTTL)
	assert.Equal(t, 3, c.Drip.RateLimitRetries)
	assert.Equal(t, "usd", c.Stripe.Currency)
	assert.Equal(t, "24h", c.Auth.JWTTTL)
	assert.True(t, c.DB.Automigrate)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("MYSQL_DSN", "env:pw@tcp(db:3306)/ketowell")
	t.Setenv("DRIP_SEND_INTERVAL", "1s")
	t.Setenv("AUTH_JWT_SECRET", "from-env")

	c, err := LoadConfig(writeConfig(t))
	require.NoError(t, err)

	assert.Equal(t, "env:pw@tcp(db:3306)/ketowell", c.DB.DSN)
	assert.Equal(t, time.Second, c.Drip.SendInterval)
	assert.Equal(t, "from-env", c.Auth.JWTSecret)
}

func TestLoadConfig_DSNFromParts(t *testing.T) {
	t.Setenv("MYSQL_HOST", "db.internal")
	t.Setenv("MYSQL_USER", "ketowell")
	t.Setenv("MYSQL_PASSWORD", "pw")
	t.Setenv("MYSQL_DATABASE", "waitlist")

	c, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, "ketowell:pw@tcp(db.internal:3306)/waitlist?charset=utf8mb4&parseTime=true&tls=custom", c.DB.DSN)
}
