package testutil

import (
	"fmt"
	"strings"
	"testing"

	"gamefeed-backend/lib/telemetry"
	"gamefeed-backend/services/catalog/db"

	"github.com/glebarez/sqlite"
	"github.com/mazen160/go-random"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SetupCatalog opens a fresh in-memory catalog, migrated and seeded,
// plus a telemetry provider that surfaces spans in test logs. The
// returned cleanup must be deferred.
func SetupCatalog(t testing.TB, name string) (*gorm.DB, func()) {
	cleanup := telemetry.SetupForTesting(t, fmt.Sprintf("test:%s", name))

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Migrate(conn); err != nil {
		t.Fatal(err)
	}

	return conn, cleanup
}

// RandomEmail produces a unique throwaway address for subscription
// fixtures.
func RandomEmail(t testing.TB) string {
	user, err := random.String(12)
	if err != nil {
		t.Fatal(err)
	}
	return strings.ToLower(user) + "@example.com"
}
