package database_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/models"
)

func TestOpenAndMigrate_SQLite(t *testing.T) {
	db, err := database.Open(config.Database{
		Driver: "sqlite",
		DSN:    "file:database_open_test?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	for _, m := range database.Models() {
		assert.True(t, db.Migrator().HasTable(m), "%T table missing", m)
	}
	assert.True(t, db.Migrator().HasIndex(&models.Order{}, "OrderNumber"))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := database.Open(config.Database{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)
}
