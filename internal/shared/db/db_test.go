package db_conn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fastfare/internal/shared/config"
)

func TestPoolConfigAppliesTrackingSettings(t *testing.T) {
	cfg := config.DBConfig{
		Host:            "db.internal",
		Port:            6432,
		User:            "u",
		Password:        "p",
		Database:        "parcels",
		SSLMode:         "disable",
		MaxConns:        8,
		MinConns:        2,
		ConnectTimeout:  1500 * time.Millisecond,
		MaxConnIdleTime: time.Minute,
		ApplicationName: "fastfare-tracking",
	}

	pc, err := poolConfig(cfg)
	require.NoError(t, err)
	assert.EqualValues(t, 8, pc.MaxConns)
	assert.EqualValues(t, 2, pc.MinConns)
	assert.Equal(t, time.Minute, pc.MaxConnIdleTime)
	assert.Equal(t, 1500*time.Millisecond, pc.ConnConfig.ConnectTimeout)
	assert.Equal(t, "fastfare-tracking", pc.ConnConfig.RuntimeParams["application_name"])
	assert.Equal(t, "db.internal", pc.ConnConfig.Host)
	assert.EqualValues(t, 6432, pc.ConnConfig.Port)
	assert.Equal(t, "parcels", pc.ConnConfig.Database)
}

func TestPoolConfigWithoutApplicationName(t *testing.T) {
	pc, err := poolConfig(config.DBConfig{
		Host: "h", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable",
		MaxConns: 1, ConnectTimeout: time.Second,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, pc.MaxConns)
	assert.Empty(t, pc.ConnConfig.RuntimeParams["application_name"])
}
