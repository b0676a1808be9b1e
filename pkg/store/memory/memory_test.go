package memory

import (
	"context"
	"testing"
	"time"

	"github.com/go-go-golems/steward/pkg/store"
	"github.com/go-go-golems/steward/pkg/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, New())
}

func TestMemoryStoreUsesClock(t *testing.T) {
	fixed := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return fixed }))

	b, err := s.Schedule().Create(context.Background(), store.ScheduleBlock{Date: "2025-01-10", StartTime: "09:00", EndTime: "10:00", Title: "x"})
	require.NoError(t, err)
	assert.Equal(t, fixed, b.CreatedAt)

	_, err = s.Schedule().Create(context.Background(), store.ScheduleBlock{ID: b.ID, Title: "dup"})
	assert.Error(t, err)
}
