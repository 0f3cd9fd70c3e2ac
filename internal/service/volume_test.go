package service

import (
	"context"
	"testing"

	"binarynet/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolumeService_BinaryEntitlement(t *testing.T) {
	svc := NewVolumeService(newMemStore(), model.DefaultPlan())

	tests := []struct {
		name     string
		left     string
		right    string
		expected string
	}{
		{name: "Both legs empty", left: "0", right: "0", expected: "0"},
		{name: "Weak leg below one pair", left: "250", right: "500", expected: "0"},
		{name: "Exactly one pair", left: "1000", right: "1000", expected: "100"},
		{name: "Floor on weak leg", left: "1250", right: "1999.99", expected: "100"},
		{name: "Several pairs", left: "5400", right: "3100", expected: "300"},
		{name: "Negative leg after migration", left: "-500", right: "3000", expected: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.BinaryEntitlement(model.LegVolumes{Left: d(tt.left), Right: d(tt.right)})
			assert.True(t, got.Equal(d(tt.expected)), "got %s", got)
		})
	}
}

func TestVolumeService_BonusThresholdPaysDeltaOnly(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewVolumeService(store, model.DefaultPlan())

	root := store.seedUser("root")
	left := store.seedChild("left", root, model.PositionLeft)
	right := store.seedChild("right", root, model.PositionRight)
	store.mutate(root, func(u *model.User) {
		u.LeftVolume = d("250")
		u.RightVolume = d("500")
	})

	_, err := svc.Propagate(ctx, left, d("1000"))
	require.NoError(t, err)
	assert.True(t, store.user(root).BinaryEarnings.IsZero())

	report, err := svc.Propagate(ctx, right, d("500"))
	require.NoError(t, err)
	require.Len(t, report.Bonuses, 1)
	assert.True(t, report.Bonuses[0].Amount.Equal(d("100")))

	r := store.user(root)
	assert.True(t, r.LeftVolume.Equal(d("1250")))
	assert.True(t, r.RightVolume.Equal(d("1000")))
	assert.True(t, r.BinaryEarnings.Equal(d("100")))
	assert.True(t, r.WalletBalance.Equal(d("100")))

	_, err = svc.Propagate(ctx, left, d("750"))
	require.NoError(t, err)
	assert.Len(t, store.transactions(root, model.TxBinary), 1)

	_, err = svc.Propagate(ctx, right, d("1000"))
	require.NoError(t, err)

	r = store.user(root)
	assert.True(t, r.BinaryEarnings.Equal(d("200")))
	assert.True(t, r.WalletBalance.Equal(d("200")))

	txs := store.transactions(root, model.TxBinary)
	require.Len(t, txs, 2)
	for _, tx := range txs {
		assert.True(t, tx.Amount.Equal(d("100")), "each payout is the delta, got %s", tx.Amount)
	}
}

func TestVolumeService_RepeatedSettlementIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewVolumeService(store, model.DefaultPlan())

	root := store.seedUser("root")
	store.mutate(root, func(u *model.User) {
		u.LeftVolume = d("3000")
		u.RightVolume = d("2000")
	})

	for i := 0; i < 3; i++ {
		_, err := svc.PropagateFrom(ctx, root, model.PositionLeft, d("0"))
		require.NoError(t, err)
	}

	r := store.user(root)
	assert.True(t, r.BinaryEarnings.Equal(d("200")))
	assert.Len(t, store.transactions(root, model.TxBinary), 1)
}

func TestVolumeService_SplitAmountsEarnLikeOneAmount(t *testing.T) {
	ctx := context.Background()

	earnings := func(amounts ...string) (binary, wallet string) {
		store := newMemStore()
		svc := NewVolumeService(store, model.DefaultPlan())
		root := store.seedUser("root")
		left := store.seedChild("left", root, model.PositionLeft)
		store.mutate(root, func(u *model.User) { u.RightVolume = d("5000") })

		for _, a := range amounts {
			_, err := svc.Propagate(ctx, left, d(a))
			require.NoError(t, err)
		}
		r := store.user(root)
		return r.BinaryEarnings.String(), r.WalletBalance.String()
	}

	for _, x := range []string{"400", "750", "1000", "1333.33"} {
		t.Run(x, func(t *testing.T) {
			twice, twiceWallet := earnings(x, x)
			once, onceWallet := earnings(d(x).Mul(d("2")).String())
			assert.Equal(t, once, twice)
			assert.Equal(t, onceWallet, twiceWallet)
		})
	}
}

func TestVolumeService_PropagateRejectsNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewVolumeService(store, model.DefaultPlan())

	root := store.seedUser("root")
	left := store.seedChild("left", root, model.PositionLeft)

	for _, amount := range []string{"0", "-250"} {
		_, err := svc.Propagate(ctx, left, d(amount))
		assert.ErrorIs(t, err, ErrInvalidAmount)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
	assert.True(t, store.user(root).LeftVolume.IsZero())

	report, err := svc.PropagateFrom(ctx, root, model.PositionLeft, d("-250"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Hops)
	assert.True(t, store.user(root).LeftVolume.Equal(d("-250")))
}

func TestVolumeService_WalksEveryAncestor(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewVolumeService(store, model.DefaultPlan())

	root := store.seedUser("root")
	a := store.seedChild("a", root, model.PositionLeft)
	b := store.seedChild("b", a, model.PositionRight)
	c := store.seedChild("c", b, model.PositionLeft)

	report, err := svc.Propagate(ctx, c, d("500"))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Hops)
	assert.Equal(t, StopRoot, report.Stopped)

	assert.True(t, store.user(b).LeftVolume.Equal(d("500")))
	assert.True(t, store.user(a).RightVolume.Equal(d("500")))
	assert.True(t, store.user(root).LeftVolume.Equal(d("500")))
	assert.True(t, store.user(c).LeftVolume.IsZero())
}

func TestVolumeService_UnplacedUserDoesNotPropagate(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewVolumeService(store, model.DefaultPlan())

	sponsor := store.seedUser("sponsor")
	user := store.seedUser("user")
	store.mutate(user, func(u *model.User) { u.UplineID = idPtr(sponsor) })

	report, err := svc.Propagate(ctx, user, d("1000"))
	require.NoError(t, err)
	assert.Equal(t, StopUnplaced, report.Stopped)
	assert.Zero(t, report.Hops)

	s := store.user(sponsor)
	assert.True(t, s.LeftVolume.IsZero())
	assert.True(t, s.RightVolume.IsZero())
}

func TestVolumeService_MissingUplineStopsWalk(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewVolumeService(store, model.DefaultPlan())

	orphan := store.seedUser("orphan")
	store.mutate(orphan, func(u *model.User) {
		u.UplineID = idPtr(uuid.New())
		u.Position = posPtr(model.PositionLeft)
	})

	report, err := svc.Propagate(ctx, orphan, d("100"))
	require.NoError(t, err)
	assert.Equal(t, StopMissingUpline, report.Stopped)
	assert.Zero(t, report.Hops)
}

func TestVolumeService_CycleAbortsWalk(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewVolumeService(store, model.DefaultPlan())

	a := store.seedUser("a")
	b := store.seedChild("b", a, model.PositionLeft)
	store.mutate(a, func(u *model.User) {
		u.UplineID = idPtr(b)
		u.Position = posPtr(model.PositionRight)
	})
	c := store.seedChild("c", b, model.PositionLeft)

	_, err := svc.Propagate(ctx, c, d("100"))
	assert.ErrorIs(t, err, ErrTreeCycle)
}

func TestVolumeService_HopLimit(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	plan := model.DefaultPlan()
	plan.MaxHops = 3
	svc := NewVolumeService(store, plan)

	parent := store.seedUser("root")
	for i := 0; i < 5; i++ {
		parent = store.seedChild("node", parent, model.PositionLeft)
	}

	_, err := svc.Propagate(ctx, parent, d("100"))
	assert.ErrorIs(t, err, ErrWalkLimit)
}
