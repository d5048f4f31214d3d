package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDB connects to the database named by MYSQL_TEST_DSN and empties every table.
// The DSN must carry parseTime=true.
func newTestDB(t *testing.T) *MYSQLStore {
	dsn := os.Getenv("MYSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("MYSQL_TEST_DSN is not set")
	}

	db, err := New(context.Background(), Config{
		DSN:         dsn,
		Automigrate: true,
	})
	require.NoError(t, err)

	ctx := context.Background()
	for _, q := range []string{
		"SET FOREIGN_KEY_CHECKS = 0",
		"DELETE FROM referral_redemption",
		"DELETE FROM book_purchase",
		"DELETE FROM referral_code",
		"DELETE FROM email_send",
		"DELETE FROM waitlist_member",
		"DELETE FROM drip_run",
		"DELETE FROM subscriber",
		"SET FOREIGN_KEY_CHECKS = 1",
	} {
		_, err = db.db.ExecContext(ctx, q)
		require.NoError(t, err)
	}

	return db
}

func TestUTCDSN(t *testing.T) {
	dsn, err := utcDSN("user:pass@tcp(db.internal:3306)/ketowell?charset=utf8mb4&loc=Local")
	require.NoError(t, err)

	mc, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.True(t, mc.ParseTime)
	assert.Equal(t, time.UTC, mc.Loc)
	assert.Equal(t, "'+00:00'", mc.Params["time_zone"])
	assert.Equal(t, "utf8mb4", mc.Params["charset"])
	assert.Equal(t, "ketowell", mc.DBName)

	_, err = utcDSN("not a dsn")
	assert.Error(t, err)
}
