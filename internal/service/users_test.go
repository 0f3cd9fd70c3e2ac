package service

import (
	"context"
	"testing"

	"binarynet/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type userFixture struct {
	store     *memStore
	referrals *ReferralService
	svc       *UserService
}

func newUserFixture() *userFixture {
	store := newMemStore()
	plan := model.DefaultPlan()
	referrals := NewReferralService(store, plan)
	placement := NewPlacementService(store, NewVolumeService(store, plan))

	return &userFixture{
		store:     store,
		referrals: referrals,
		svc:       NewUserService(store, referrals, placement, fakeTokens{}),
	}
}

func TestUserService_Register(t *testing.T) {
	f := newUserFixture()
	ctx := context.Background()

	user, err := f.svc.Register(ctx, RegisterInput{Email: " Alice@Example.com ", Name: "Alice", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Nil(t, user.UplineID)
	assert.NotEmpty(t, user.ReferralCode)
	assert.NotEqual(t, "secret1", user.PasswordHash)

	tests := []struct {
		name          string
		in            RegisterInput
		expectedError error
	}{
		{name: "Duplicate email", in: RegisterInput{Email: "alice@example.com", Name: "A", Password: "secret1"}, expectedError: ErrEmailTaken},
		{name: "Invalid email", in: RegisterInput{Email: "alice", Name: "A", Password: "secret1"}, expectedError: ErrInvalidInput},
		{name: "Missing name", in: RegisterInput{Email: "b@example.com", Password: "secret1"}, expectedError: ErrInvalidInput},
		{name: "Short password", in: RegisterInput{Email: "b@example.com", Name: "B", Password: "123"}, expectedError: ErrInvalidInput},
		{name: "Unknown code", in: RegisterInput{Email: "c@example.com", Name: "C", Password: "secret1", ReferralCode: "nope"}, expectedError: ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tt.in)
			assert.ErrorIs(t, err, tt.expectedError)
		})
	}

	_, err = f.store.GetUserByEmail(ctx, "c@example.com")
	assert.Error(t, err)
}

func TestUserService_RegisterWithCode(t *testing.T) {
	f := newUserFixture()
	ctx := context.Background()
	sponsor := f.store.seedUser("sponsor")

	auto, err := f.referrals.Issue(ctx, sponsor, "auto")
	require.NoError(t, err)
	left, err := f.referrals.Issue(ctx, sponsor, "left")
	require.NoError(t, err)

	unplaced, err := f.svc.Register(ctx, RegisterInput{Email: "u1@example.com", Name: "U1", Password: "secret1", ReferralCode: auto.Code})
	require.NoError(t, err)
	require.NotNil(t, unplaced.UplineID)
	assert.Equal(t, sponsor, *unplaced.UplineID)
	assert.Nil(t, unplaced.Position)

	placed, err := f.svc.Register(ctx, RegisterInput{Email: "u2@example.com", Name: "U2", Password: "secret1", ReferralCode: left.Code})
	require.NoError(t, err)
	require.NotNil(t, placed.Position)
	assert.Equal(t, model.PositionLeft, *placed.Position)
	assert.Equal(t, placed.ID, *f.store.user(sponsor).LeftChildID)

	_, err = f.svc.Register(ctx, RegisterInput{Email: "u3@example.com", Name: "U3", Password: "secret1", ReferralCode: left.Code})
	assert.ErrorIs(t, err, ErrCodeAlreadyUsed)
}

func TestUserService_Login(t *testing.T) {
	f := newUserFixture()
	ctx := context.Background()

	user, err := f.svc.Register(ctx, RegisterInput{Email: "bob@example.com", Name: "Bob", Password: "hunter22"})
	require.NoError(t, err)

	token, got, err := f.svc.Login(ctx, "bob@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "token-"+user.ID.String(), token)
	assert.Equal(t, user.ID, got.ID)
	assert.NotNil(t, f.store.user(user.ID).LastLogin)

	_, _, err = f.svc.Login(ctx, "bob@example.com", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = f.svc.Login(ctx, "nobody@example.com", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUserService_JoinNetwork(t *testing.T) {
	f := newUserFixture()
	ctx := context.Background()

	sponsor := f.store.seedUser("sponsor")
	user := f.store.seedUser("user")

	code, err := f.referrals.Issue(ctx, sponsor, "auto")
	require.NoError(t, err)

	joined, err := f.svc.JoinNetwork(ctx, user, code.Code)
	require.NoError(t, err)
	require.NotNil(t, joined.UplineID)
	assert.Equal(t, sponsor, *joined.UplineID)

	another, err := f.referrals.Issue(ctx, sponsor, "auto")
	require.NoError(t, err)
	_, err = f.svc.JoinNetwork(ctx, user, another.Code)
	assert.ErrorIs(t, err, ErrAlreadyInNetwork)

	_, err = f.svc.JoinNetwork(ctx, sponsor, "missing")
	assert.ErrorIs(t, err, ErrCodeNotFound)

	own, err := f.referrals.Issue(ctx, sponsor, "auto")
	require.NoError(t, err)
	_, err = f.svc.JoinNetwork(ctx, sponsor, own.Code)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.JoinNetwork(ctx, uuid.New(), another.Code)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserService_JoinNetworkRejectsCycle(t *testing.T) {
	f := newUserFixture()
	ctx := context.Background()

	root := f.store.seedUser("root")
	child := f.store.seedChild("child", root, model.PositionLeft)

	code, err := f.referrals.Issue(ctx, child, "auto")
	require.NoError(t, err)

	_, err = f.svc.JoinNetwork(ctx, root, code.Code)
	assert.ErrorIs(t, err, ErrPlacementCycle)

	res, err := f.referrals.Validate(ctx, code.Code)
	require.NoError(t, err)
	assert.True(t, res.Valid)
}
