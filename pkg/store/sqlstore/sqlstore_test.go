package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-go-golems/steward/pkg/store"
	"github.com/go-go-golems/steward/pkg/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	defer s.Close()

	storetest.Run(t, s)
}

func TestSQLiteMigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "steward.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	b, err := s.Schedule().Create(ctx, store.ScheduleBlock{Date: "2025-01-10", StartTime: "10:00", EndTime: "11:00", Title: "Team Sync"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Schedule().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Team Sync", got.Title)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "postgres", DSN: "x"})
	assert.Error(t, err)

	_, err = Open(context.Background(), Config{Driver: DriverMySQL})
	assert.Error(t, err)
}
