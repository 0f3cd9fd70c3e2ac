package service

import (
	"context"
	"testing"
	"time"

	"binarynet/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type investmentFixture struct {
	store    *memStore
	svc      *InvestmentService
	notifier *recordingNotifier
}

func newInvestmentFixture() *investmentFixture {
	store := newMemStore()
	plan := model.DefaultPlan()
	notifier := &recordingNotifier{}
	volume := NewVolumeService(store, plan)
	commissions := NewCommissionService(store, plan)

	return &investmentFixture{
		store:    store,
		svc:      NewInvestmentService(store, plan, commissions, volume, notifier),
		notifier: notifier,
	}
}

func TestInvestmentService_Request(t *testing.T) {
	f := newInvestmentFixture()
	ctx := context.Background()
	user := f.store.seedUser("user")

	req, err := f.svc.Request(ctx, user, InvestmentRequestInput{Package: " Gold ", FullName: "User", Email: "user@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "gold", req.Package)
	assert.True(t, req.Amount.Equal(d("500")))
	assert.Equal(t, model.RequestPending, req.Status)
	assert.Equal(t, []EventKind{EventInvestmentRequested}, f.notifier.kinds())

	_, err = f.svc.Request(ctx, user, InvestmentRequestInput{Package: "bronze"})
	assert.ErrorIs(t, err, ErrInvalidPackage)

	_, err = f.svc.Request(ctx, uuid.New(), InvestmentRequestInput{Package: "gold"})
	assert.ErrorIs(t, err, ErrUserNotFound)

	mine, err := f.svc.ListForUser(ctx, user)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestInvestmentService_ApprovePaysCommissionsAndVolume(t *testing.T) {
	f := newInvestmentFixture()
	ctx := context.Background()

	root := f.store.seedUser("root")
	sponsor := f.store.seedChild("sponsor", root, model.PositionLeft)
	investor := f.store.seedChild("investor", sponsor, model.PositionRight)

	changed := 0
	f.svc.onChange = func(context.Context) { changed++ }

	req, err := f.svc.Request(ctx, investor, InvestmentRequestInput{Package: "platinum"})
	require.NoError(t, err)

	report, err := f.svc.Approve(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, report.Investment)
	assert.True(t, report.Investment.IsActive)
	assert.Len(t, report.Commissions.Payouts, 2)
	assert.Equal(t, 2, report.Propagation.Hops)
	assert.Equal(t, 1, changed)

	inv := f.store.user(investor)
	assert.True(t, inv.TotalInvested.Equal(d("1000")))
	require.NotNil(t, inv.Package)
	assert.Equal(t, "platinum", *inv.Package)
	assert.Len(t, f.store.transactions(investor, model.TxDeposit), 1)

	s := f.store.user(sponsor)
	assert.True(t, s.TotalCommissions.Equal(d("150")))
	assert.True(t, s.RightVolume.Equal(d("1000")))

	r := f.store.user(root)
	assert.True(t, r.TotalCommissions.Equal(d("150")))
	assert.True(t, r.LeftVolume.Equal(d("1000")))

	assert.Contains(t, f.notifier.kinds(), EventInvestmentApproved)
	assert.Contains(t, f.notifier.kinds(), EventCommissionPaid)
}

func TestInvestmentService_ApproveOnlyOnce(t *testing.T) {
	f := newInvestmentFixture()
	ctx := context.Background()

	sponsor := f.store.seedUser("sponsor")
	investor := f.store.seedChild("investor", sponsor, model.PositionLeft)

	req, err := f.svc.Request(ctx, investor, InvestmentRequestInput{Package: "silver"})
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, req.ID)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, req.ID)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	_, err = f.svc.Reject(ctx, req.ID)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	assert.Len(t, f.store.transactions(sponsor, model.TxCommission), 1)
	assert.True(t, f.store.user(investor).TotalInvested.Equal(d("250")))

	_, err = f.svc.Approve(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestInvestmentService_RejectHasNoFinancialEffect(t *testing.T) {
	f := newInvestmentFixture()
	ctx := context.Background()

	sponsor := f.store.seedUser("sponsor")
	investor := f.store.seedChild("investor", sponsor, model.PositionLeft)

	req, err := f.svc.Request(ctx, investor, InvestmentRequestInput{Package: "gold"})
	require.NoError(t, err)

	rejected, err := f.svc.Reject(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestRejected, rejected.Status)

	assert.True(t, f.store.user(investor).TotalInvested.IsZero())
	assert.True(t, f.store.user(sponsor).LeftVolume.IsZero())
	assert.Empty(t, f.store.transactions(sponsor, model.TxCommission))

	_, err = f.svc.Approve(ctx, req.ID)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

// placingStore places the investor right after the approval commits and before the
// approval walks volume up the tree.
type placingStore struct {
	*memStore
	place func(ctx context.Context)
}

func (s *placingStore) ApproveInvestmentRequest(ctx context.Context, id uuid.UUID, now time.Time) (*model.Approval, error) {
	a, err := s.memStore.ApproveInvestmentRequest(ctx, id, now)
	if err == nil {
		s.place(ctx)
	}
	return a, err
}

func TestInvestmentService_ApprovalRacingPlacementCountsVolumeOnce(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	plan := model.DefaultPlan()
	volume := NewVolumeService(store, plan)
	placement := NewPlacementService(store, volume)

	admin := store.seedUser("admin")
	store.mutate(admin, func(u *model.User) { u.IsAdmin = true })
	root := store.seedUser("root")
	investor := store.seedUser("investor")
	store.mutate(investor, func(u *model.User) { u.UplineID = idPtr(root) })

	repo := &placingStore{memStore: store, place: func(ctx context.Context) {
		_, err := placement.Place(ctx, PlaceInput{ActorID: admin, UserID: investor, UplineID: root, Position: model.PositionLeft})
		require.NoError(t, err)
	}}
	svc := NewInvestmentService(repo, plan, NewCommissionService(store, plan), volume, nil)

	req, err := svc.Request(ctx, investor, InvestmentRequestInput{Package: "platinum"})
	require.NoError(t, err)

	report, err := svc.Approve(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StopUnplaced, report.Propagation.Stopped)

	r := store.user(root)
	assert.True(t, r.LeftVolume.Equal(d("1000")), "got %s", r.LeftVolume)
}
