package databasetest

import (
	"os"
	"strings"
	"testing"

	"procurement/internal/database"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// OpenPostgres connects to the database named by TEST_DATABASE_URL, migrates
// it and empties every table. Tests are skipped when the variable is unset,
// so the live database is never touched by accident.
func OpenPostgres(t testing.TB) *gorm.DB {
	t.Helper()
	_ = godotenv.Load("../../configs/.env")

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping postgres integration test")
	}

	db, err := database.NewConnection(dsn, false)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))

	tables := make([]string, 0, len(database.Models()))
	for _, m := range database.Models() {
		stmt := &gorm.Statement{DB: db}
		require.NoError(t, stmt.Parse(m))
		tables = append(tables, stmt.Schema.Table)
	}
	require.NoError(t, db.Exec("TRUNCATE TABLE "+strings.Join(tables, ", ")+" CASCADE").Error)
	return db
}
