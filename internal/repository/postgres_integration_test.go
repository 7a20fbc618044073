//go:build integration

package repository

// Runs the gorm snapshot store against a real Postgres.
// Run with: go test -tags integration ./internal/repository/... -v

import (
	"context"
	"testing"

	"kasabot/internal/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestGormStore_Postgres(t *testing.T) {
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcPostgres.WithDatabase("kasabot_test"),
		tcPostgres.WithUsername("kasabot"),
		tcPostgres.WithPassword("kasabot"),
		testcontainers.WithWaitStrategy(
			tcPostgres.BasicWaitStrategies()...,
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := infra.NewDatabase("postgres", dsn, &KasaRow{})
	require.NoError(t, err)
	s := NewGormKasaStore(db)

	require.NoError(t, s.SaveAll(ctx, sampleUsers()))
	got, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got["100"], 2)
	assert.Equal(t, "LIC-A", got["100"][0].LicenseKey)
	assert.Equal(t, []string{"r-8", "r-9"}, got["100"][0].Watermark.SeenIDs)

	// reopening runs AutoMigrate on an existing table
	db2, err := infra.NewDatabase("postgres", dsn, &KasaRow{})
	require.NoError(t, err)
	again, err := NewGormKasaStore(db2).LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, again, 2)
}
