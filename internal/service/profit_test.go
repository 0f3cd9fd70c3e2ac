package service

import (
	"context"
	"testing"
	"time"

	"binarynet/internal/model"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvedInvestment(t *testing.T, store *memStore, user string, pkg string) *model.User {
	t.Helper()
	ctx := context.Background()
	plan := model.DefaultPlan()
	inv := NewInvestmentService(store, plan, NewCommissionService(store, plan), NewVolumeService(store, plan), nil)

	id := store.seedUser(user)
	req, err := inv.Request(ctx, id, InvestmentRequestInput{Package: pkg})
	require.NoError(t, err)
	_, err = inv.Approve(ctx, req.ID)
	require.NoError(t, err)
	return store.user(id)
}

func TestProfitService_DistributeWeekly(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	notifier := &recordingNotifier{}
	svc := NewProfitService(store, model.DefaultPlan(), notifier)

	now := time.Now().UTC()
	svc.now = func() time.Time { return now }

	gold := approvedInvestment(t, store, "gold", "gold")
	platinum := approvedInvestment(t, store, "platinum", "platinum")

	report, err := svc.DistributeWeekly(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.DistributedTo)
	assert.Zero(t, report.Skipped)
	assert.True(t, report.TotalAmount.Equal(d("75")))

	assert.True(t, store.user(gold.ID).WeeklyEarnings.Equal(d("25")))
	assert.True(t, store.user(platinum.ID).WalletBalance.Equal(d("50")))
	assert.Len(t, store.transactions(gold.ID, model.TxWeeklyProfit), 1)

	now = now.Add(24 * time.Hour)
	report, err = svc.DistributeWeekly(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.DistributedTo)
	assert.Equal(t, 2, report.Skipped)
	assert.True(t, report.TotalAmount.IsZero())
	assert.Len(t, store.transactions(gold.ID, model.TxWeeklyProfit), 1)

	now = now.Add(7 * 24 * time.Hour)
	report, err = svc.DistributeWeekly(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.DistributedTo)
	assert.True(t, store.user(gold.ID).WeeklyEarnings.Equal(d("50")))

	assert.Contains(t, notifier.kinds(), EventWeeklyProfitPaid)
}

func TestProfitService_SkipsUnknownPackage(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	approvedInvestment(t, store, "legacy", "silver")

	plan := model.DefaultPlan()
	plan.Packages = plan.Packages[1:]
	svc := NewProfitService(store, plan, nil)

	report, err := svc.DistributeWeekly(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.DistributedTo)
	assert.Equal(t, 1, report.Skipped)
}

func TestProfitService_Schedule(t *testing.T) {
	svc := NewProfitService(newMemStore(), model.DefaultPlan(), nil)
	c := cron.New()

	id, err := svc.Schedule(c, "0 0 * * 1")
	require.NoError(t, err)
	assert.NotZero(t, id)

	_, err = svc.Schedule(c, "every monday")
	assert.Error(t, err)
}
