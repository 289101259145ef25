package slots_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srikanta2006/smart-parking/internal/db"
	"github.com/srikanta2006/smart-parking/internal/migrate"
	"github.com/srikanta2006/smart-parking/internal/slots"
)

// openTestRepo connects to TEST_DATABASE_URL and clears parking_slots.
func openTestRepo(t *testing.T) *slots.Repo {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	d, err := db.Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	require.NoError(t, migrate.Up(ctx, d))
	require.NoError(t, d.Exec(ctx, `DELETE FROM parking_slots`))
	return slots.NewRepo(d)
}

func TestRepo_ReserveLifecycle(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Seed(ctx, []slots.Slot{{ID: 5}}))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Occupied)

	at := time.Now().UTC().Truncate(time.Microsecond)
	got, err := repo.Reserve(ctx, 5, at)
	require.NoError(t, err)
	assert.True(t, got.Occupied)

	_, err = repo.Reserve(ctx, 5, at)
	require.ErrorIs(t, err, slots.ErrUnavailable)
	assert.Equal(t, slots.ReasonOccupied, slots.ReasonOf(err))

	_, err = repo.Reserve(ctx, 6, at)
	assert.Equal(t, slots.ReasonNotFound, slots.ReasonOf(err))
}

func TestRepo_ConcurrentReserveOneWinner(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Seed(ctx, []slots.Slot{{ID: 9, DocID: uuid.NewString()}}))

	const n = 16
	var wins, conflicts int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Reserve(ctx, 9, time.Now())
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case slots.ReasonOf(err) == slots.ReasonOccupied:
				atomic.AddInt32(&conflicts, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins)
	assert.EqualValues(t, n-1, conflicts)
}

func TestRepo_LargeSlotIDs(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	_, err := repo.Reserve(ctx, 3000000000, time.Now())
	require.ErrorIs(t, err, slots.ErrUnavailable)
	assert.Equal(t, slots.ReasonNotFound, slots.ReasonOf(err))

	require.NoError(t, repo.Seed(ctx, []slots.Slot{{ID: 3000000000}}))
	got, err := repo.Reserve(ctx, 3000000000, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3000000000, got.ID)
}
