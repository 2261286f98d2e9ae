package db

import (
	"context"
	"strings"
	"testing"

	"mixflow/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMySQLDSN(t *testing.T) {
	cfg := &config.Config{DBUser: "mix", DBPassword: "p@ss", DBHost: "db", DBPort: "3306", DBName: "mixflow"}
	dsn := mysqlDSN(cfg)
	assert.True(t, strings.HasPrefix(dsn, "mix:p@ss@tcp(db:3306)/mixflow?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")

	cfg.DatabaseURL = "override"
	assert.Equal(t, "override", mysqlDSN(cfg))
}

func TestDialector(t *testing.T) {
	for _, driver := range []string{"mysql", "postgres", "sqlite"} {
		d, err := Dialector(&config.Config{DBDriver: driver, DBName: "x"})
		require.NoError(t, err)
		assert.Equal(t, driver, d.Name())
	}
	_, err := Dialector(&config.Config{DBDriver: "oracle"})
	assert.Error(t, err)
}

func TestConnectSQLite(t *testing.T) {
	gdb, err := ConnectGormDB(&config.Config{DBDriver: "sqlite", DatabaseURL: "file::memory:"})
	require.NoError(t, err)
	defer Close(gdb)

	require.NoError(t, Ping(context.Background(), gdb))
	require.NoError(t, AutoMigrateModels(gdb))
}
