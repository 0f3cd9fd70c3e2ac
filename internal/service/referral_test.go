package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"binarynet/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReferralFixture() (*memStore, *ReferralService, *time.Time) {
	store := newMemStore()
	svc := NewReferralService(store, model.DefaultPlan())
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return store, svc, &now
}

func TestReferralService_Issue(t *testing.T) {
	store, svc, now := newReferralFixture()
	ctx := context.Background()
	sponsor := store.seedUser("sponsor")

	code, err := svc.Issue(ctx, sponsor, "")
	require.NoError(t, err)
	assert.Len(t, code.Code, 11)
	assert.Equal(t, model.PositionHintAuto, code.PositionHint)
	assert.Equal(t, now.Add(10*time.Minute), code.ExpiresAt)
	assert.False(t, code.IsUsed)

	second, err := svc.Issue(ctx, sponsor, " Left ")
	require.NoError(t, err)
	assert.NotEqual(t, code.Code, second.Code)
	assert.Equal(t, "left", second.PositionHint)

	_, err = svc.Issue(ctx, sponsor, "center")
	assert.ErrorIs(t, err, ErrInvalidPosition)

	_, err = svc.Issue(ctx, uuid.New(), "auto")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestReferralService_Validate(t *testing.T) {
	store, svc, now := newReferralFixture()
	ctx := context.Background()
	sponsor := store.seedUser("Sponsor")

	live, err := svc.Issue(ctx, sponsor, "auto")
	require.NoError(t, err)
	used, err := svc.Issue(ctx, sponsor, "auto")
	require.NoError(t, err)
	_, err = svc.Consume(ctx, used.Code, uuid.New())
	require.NoError(t, err)

	res, err := svc.Validate(ctx, live.Code)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, sponsor, res.SponsorID)
	assert.Equal(t, "Sponsor", res.SponsorName)

	res, err = svc.Validate(ctx, strings.ToUpper(live.Code))
	require.NoError(t, err)
	assert.True(t, res.Valid)

	res, err = svc.Validate(ctx, used.Code)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, model.ReferralAlreadyUsed, res.Reason)

	res, err = svc.Validate(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, model.ReferralNotFound, res.Reason)

	res, err = svc.Validate(ctx, "  ")
	require.NoError(t, err)
	assert.Equal(t, model.ReferralNotFound, res.Reason)

	*now = now.Add(10 * time.Minute)
	res, err = svc.Validate(ctx, live.Code)
	require.NoError(t, err)
	assert.Equal(t, model.ReferralExpired, res.Reason)

	res, err = svc.Validate(ctx, used.Code)
	require.NoError(t, err)
	assert.Equal(t, model.ReferralExpired, res.Reason, "expiry wins over use")
}

func TestReferralService_Consume(t *testing.T) {
	store, svc, now := newReferralFixture()
	ctx := context.Background()
	sponsor := store.seedUser("sponsor")
	consumer := uuid.New()

	code, err := svc.Issue(ctx, sponsor, "auto")
	require.NoError(t, err)

	got, err := svc.Consume(ctx, code.Code, consumer)
	require.NoError(t, err)
	assert.Equal(t, sponsor, got)

	_, err = svc.Consume(ctx, code.Code, uuid.New())
	assert.ErrorIs(t, err, ErrCodeAlreadyUsed)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.Consume(ctx, "nope", consumer)
	assert.ErrorIs(t, err, ErrCodeNotFound)

	stale, err := svc.Issue(ctx, sponsor, "auto")
	require.NoError(t, err)
	*now = now.Add(11 * time.Minute)
	_, err = svc.Consume(ctx, stale.Code, consumer)
	assert.ErrorIs(t, err, ErrCodeExpired)

	usedCodes, err := svc.UsedCodes(ctx, sponsor)
	require.NoError(t, err)
	require.Len(t, usedCodes, 1)
	assert.Equal(t, code.Code, usedCodes[0].Code)
	require.NotNil(t, usedCodes[0].ReferredID)
	assert.Equal(t, consumer, *usedCodes[0].ReferredID)
}

func TestReferralService_ConsumeRace(t *testing.T) {
	store, svc, _ := newReferralFixture()
	ctx := context.Background()
	sponsor := store.seedUser("sponsor")

	code, err := svc.Issue(ctx, sponsor, "auto")
	require.NoError(t, err)

	const racers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Consume(ctx, code.Code, uuid.New())

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrCodeAlreadyUsed):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, racers-1, rejected)
}

func TestReferralService_ActiveCode(t *testing.T) {
	store, svc, now := newReferralFixture()
	ctx := context.Background()
	sponsor := store.seedUser("sponsor")

	first, err := svc.ActiveCode(ctx, sponsor)
	require.NoError(t, err)

	again, err := svc.ActiveCode(ctx, sponsor)
	require.NoError(t, err)
	assert.Equal(t, first.Code, again.Code)

	*now = now.Add(time.Hour)
	fresh, err := svc.ActiveCode(ctx, sponsor)
	require.NoError(t, err)
	assert.NotEqual(t, first.Code, fresh.Code)
	assert.True(t, fresh.ExpiresAt.After(*now))
}
