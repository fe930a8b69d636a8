package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"meeting-room-backend/cache"
	"meeting-room-backend/config"
	"meeting-room-backend/database"
	"meeting-room-backend/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKeys = []string{"agenda-adoption", "adjournment"}

func testOptions(clock clockwork.Clock) Options {
	return Options{Key: "state", BallotKeys: testKeys, Clock: clock}
}

func newRedisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// 每种实现都跑同一组用例
func repositories(t *testing.T, clock clockwork.Clock) map[string]StateRepository {
	t.Helper()
	opts := testOptions(clock)

	_, lockedClient := newRedisClient(t)
	locks := cache.NewDistributedLockService(lockedClient).WithRetry(500, 2*time.Millisecond)

	_, watchedClient := newRedisClient(t)

	db, err := database.Open(config.DatabaseConfig{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "state.db"),
	}, false)
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	return map[string]StateRepository{
		"memory":        NewMemoryStateRepository(nil, opts),
		"redis-locked":  NewRedisStateRepository(lockedClient, locks, time.Second, opts),
		"redis-watched": NewRedisStateRepository(watchedClient, nil, time.Second, opts),
		"sqlite":        NewSQLStateRepository(db, opts),
	}
}

func TestRepository_LoadEmpty(t *testing.T) {
	for name, repo := range repositories(t, clockwork.NewFakeClock()) {
		t.Run(name, func(t *testing.T) {
			state, err := repo.Load(context.Background())
			require.NoError(t, err)
			assert.Len(t, state.Ballots, len(testKeys))
			for _, key := range testKeys {
				assert.Equal(t, models.VoteCount{}, state.Ballots[key].Votes)
			}
			assert.Empty(t, state.Hands)
			assert.Empty(t, state.Motions)
			assert.Empty(t, state.FloorVotes)
			assert.Nil(t, state.UpdatedAt)
		})
	}
}

func TestRepository_UpdatePersists(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC))
	for name, repo := range repositories(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			updated, err := repo.Update(ctx, func(s *models.RoomState) error {
				_, err := s.CastVote("agenda-adoption", models.VoteSelection{Option: models.OptionYay, VoterID: "v1", VoterLabel: "Ann"})
				return err
			})
			require.NoError(t, err)
			assert.Equal(t, models.VoteCount{Yay: 1}, updated.Ballots["agenda-adoption"].Votes)
			require.NotNil(t, updated.UpdatedAt)
			assert.True(t, updated.UpdatedAt.Equal(clock.Now()))

			loaded, err := repo.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, models.VoteCount{Yay: 1}, loaded.Ballots["agenda-adoption"].Votes)
			assert.Equal(t, "Ann", loaded.Ballots["agenda-adoption"].Selections["v1"].VoterLabel)
		})
	}
}

func TestRepository_FailedMutationDoesNotWrite(t *testing.T) {
	for name, repo := range repositories(t, clockwork.NewFakeClock()) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := repo.Update(ctx, func(s *models.RoomState) error {
				s.LowerAllHands()
				_, err := s.RaiseHand(models.HandRaise{ID: "h1", Name: "Jordan"})
				require.NoError(t, err)
				return models.ErrBallotNotFound
			})
			assert.ErrorIs(t, err, models.ErrBallotNotFound)

			loaded, err := repo.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, loaded.Hands)
		})
	}
}

func TestRepository_ConcurrentUpdatesAreSerialized(t *testing.T) {
	const writers = 20
	for name, repo := range repositories(t, clockwork.NewRealClock()) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var wg sync.WaitGroup
			errs := make(chan error, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := repo.Update(ctx, func(s *models.RoomState) error {
						_, err := s.CastVote("adjournment", models.VoteSelection{
							Option:  models.OptionNay,
							VoterID: fmt.Sprintf("voter-%d", i),
						})
						return err
					})
					errs <- err
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				assert.NoError(t, err)
			}

			loaded, err := repo.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, models.VoteCount{Nay: writers}, loaded.Ballots["adjournment"].Votes)
			assert.Len(t, loaded.Ballots["adjournment"].Selections, writers)
		})
	}
}

func TestRedisRepository_RecomputesStoredTallies(t *testing.T) {
	mr, client := newRedisClient(t)
	repo := NewRedisStateRepository(client, nil, 0, testOptions(clockwork.NewFakeClock()))

	// 存储里的汇总值与选择不一致，读取时必须以选择为准
	mr.Set("state", `{"ballots":{"agenda-adoption":{"selections":{"a":{"option":"yay","voterId":"a"}},"votes":{"yay":7,"nay":3}}}}`)

	state, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.VoteCount{Yay: 1}, state.Ballots["agenda-adoption"].Votes)
	assert.Contains(t, state.Ballots, "adjournment")
	assert.NotNil(t, state.Hands)
}

func TestRedisRepository_CorruptState(t *testing.T) {
	mr, client := newRedisClient(t)
	repo := NewRedisStateRepository(client, nil, 0, testOptions(clockwork.NewFakeClock()))
	mr.Set("state", "not json")

	_, err := repo.Load(context.Background())
	assert.True(t, errors.Is(err, ErrCorruptState))
}

func TestRedisRepository_UsesConfiguredKey(t *testing.T) {
	mr, client := newRedisClient(t)
	opts := testOptions(clockwork.NewFakeClock())
	opts.Key = "room:main"
	repo := NewRedisStateRepository(client, nil, 0, opts)

	_, err := repo.Update(context.Background(), func(s *models.RoomState) error {
		s.SecondMotion("none")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, mr.Exists("room:main"))
	assert.False(t, mr.Exists("state"))
}

func TestMemoryRepository_CanceledContext(t *testing.T) {
	repo := NewMemoryStateRepository(nil, testOptions(clockwork.NewFakeClock()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.Update(ctx, func(*models.RoomState) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
