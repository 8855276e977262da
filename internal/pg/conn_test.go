package pg

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnConfig(t *testing.T) {
	cfg, err := connConfig("postgres://u:p@db.local:5433/crm?sslmode=disable")
	require.NoError(t, err)
	assert.Equal(t, "db.local", cfg.Host)
	assert.EqualValues(t, 5433, cfg.Port)
	assert.Equal(t, "crm", cfg.Database)
	assert.Equal(t, AppName, cfg.RuntimeParams["application_name"])

	// свой application_name не перетирается
	cfg, err = connConfig("postgres://u:p@db.local/crm?application_name=worker")
	require.NoError(t, err)
	assert.Equal(t, "worker", cfg.RuntimeParams["application_name"])

	_, err = connConfig("postgres://u:p@db.local:notaport/crm")
	require.Error(t, err)
}

func TestPoolDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   Pool
		want Pool
	}{
		{"zero", Pool{}, DefaultPool()},
		{"idle capped by open", Pool{MaxOpen: 2, MaxIdle: 8}, Pool{MaxOpen: 2, MaxIdle: 2, MaxLifetime: 30 * time.Minute, PingTimeout: 5 * time.Second}},
		{"explicit", Pool{MaxOpen: 20, MaxIdle: 4, MaxLifetime: time.Minute, PingTimeout: time.Second}, Pool{MaxOpen: 20, MaxIdle: 4, MaxLifetime: time.Minute, PingTimeout: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.withDefaults())
		})
	}
}

func TestOpenBadURL(t *testing.T) {
	_, err := Open(context.Background(), "postgres://u:p@db.local:notaport/crm", Pool{}, zerolog.Nop())
	require.Error(t, err)
}
