package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"binarynet/internal/model"
	"binarynet/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory Repository. Each method holds the lock for its whole body,
// which gives it the same all-or-nothing behaviour as one SQL transaction.
type memStore struct {
	mu          sync.Mutex
	users       map[uuid.UUID]*model.User
	codes       map[string]*model.ReferralCode
	history     []*model.PlacementHistory
	txs         []*model.Transaction
	requests    map[uuid.UUID]*model.InvestmentRequest
	investments map[uuid.UUID]*model.Investment
}

var _ Repository = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[uuid.UUID]*model.User),
		codes:       make(map[string]*model.ReferralCode),
		requests:    make(map[uuid.UUID]*model.InvestmentRequest),
		investments: make(map[uuid.UUID]*model.Investment),
	}
}

func idPtr(id uuid.UUID) *uuid.UUID { return &id }

func posPtr(p model.Position) *model.Position { return &p }

func cloneUser(u *model.User) *model.User {
	c := *u
	return &c
}

// seedUser inserts a bare user and returns its id.
func (m *memStore) seedUser(name string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New()
	m.users[id] = &model.User{
		ID:        id,
		Email:     strings.ToLower(name) + "@example.com",
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	return id
}

// seedChild inserts a user already sitting in the given slot of parent.
func (m *memStore) seedChild(name string, parent uuid.UUID, pos model.Position) uuid.UUID {
	id := m.seedUser(name)

	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.users[id]
	u.UplineID = idPtr(parent)
	u.Position = posPtr(pos)
	p := m.users[parent]
	if pos == model.PositionLeft {
		p.LeftChildID = idPtr(id)
	} else {
		p.RightChildID = idPtr(id)
	}
	return id
}

func (m *memStore) mutate(id uuid.UUID, f func(u *model.User)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f(m.users[id])
}

func (m *memStore) user(id uuid.UUID) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneUser(m.users[id])
}

func (m *memStore) transactions(userID uuid.UUID, t model.TransactionType) []*model.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Transaction
	for _, tx := range m.txs {
		if tx.UserID == userID && tx.Type == t {
			c := *tx
			out = append(out, &c)
		}
	}
	return out
}

func (m *memStore) GetUserByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneUser(u), nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) CreateUser(_ context.Context, user *model.User, referralCode string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrEmailTaken
		}
	}
	if referralCode != "" {
		sponsor, err := m.consumeLocked(referralCode, user.ID, now)
		if err != nil {
			return err
		}
		user.UplineID = idPtr(sponsor)
	}

	m.users[user.ID] = cloneUser(user)
	return nil
}

func (m *memStore) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[id]; ok {
		u.LastLogin = &at
	}
	return nil
}

func (m *memStore) JoinNetwork(_ context.Context, userID uuid.UUID, code string, now time.Time) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return uuid.Nil, repository.ErrNotFound
	}
	if u.UplineID != nil {
		return uuid.Nil, repository.ErrAlreadyLinked
	}
	sponsor, err := m.consumeLocked(code, userID, now)
	if err != nil {
		return uuid.Nil, err
	}
	u.UplineID = idPtr(sponsor)
	return sponsor, nil
}

func (m *memStore) CreateReferralCode(_ context.Context, code *model.ReferralCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *code
	m.codes[strings.ToLower(code.Code)] = &c
	return nil
}

func (m *memStore) GetReferralCode(_ context.Context, code string) (*model.ReferralCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rc, ok := m.codes[strings.ToLower(code)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *rc
	return &c, nil
}

func (m *memStore) GetActiveReferralCode(_ context.Context, sponsorID uuid.UUID, now time.Time) (*model.ReferralCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *model.ReferralCode
	for _, rc := range m.codes {
		if rc.UserID != sponsorID || rc.IsUsed || rc.Expired(now) {
			continue
		}
		if best == nil || rc.CreatedAt.After(best.CreatedAt) {
			best = rc
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	c := *best
	return &c, nil
}

func (m *memStore) ConsumeReferralCode(_ context.Context, code string, consumerID uuid.UUID, now time.Time) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consumeLocked(code, consumerID, now)
}

func (m *memStore) consumeLocked(code string, consumerID uuid.UUID, now time.Time) (uuid.UUID, error) {
	rc, ok := m.codes[strings.ToLower(code)]
	if !ok || rc.IsUsed || !now.Before(rc.ExpiresAt) {
		return uuid.Nil, repository.ErrCodeUnavailable
	}
	rc.IsUsed = true
	rc.UsedBy = idPtr(consumerID)
	rc.UsedAt = &now
	return rc.UserID, nil
}

func (m *memStore) ListUsedReferralCodes(_ context.Context, sponsorID uuid.UUID) ([]*model.UsedReferralCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.UsedReferralCode
	for _, rc := range m.codes {
		if rc.UserID != sponsorID || !rc.IsUsed {
			continue
		}
		used := &model.UsedReferralCode{Code: rc.Code, CreatedAt: rc.CreatedAt, UsedAt: rc.UsedAt, ReferredID: rc.UsedBy}
		if rc.UsedBy != nil {
			if u, ok := m.users[*rc.UsedBy]; ok {
				used.ReferredName = u.Name
				used.ReferredMail = u.Email
				used.JoinedAt = &u.CreatedAt
			}
		}
		out = append(out, used)
	}
	return out, nil
}

func (m *memStore) PlaceUser(_ context.Context, change model.PlacementChange) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[change.UserID]
	if !ok {
		return decimal.Zero, repository.ErrNotFound
	}
	upline, ok := m.users[change.NewUplineID]
	if !ok {
		return decimal.Zero, repository.ErrNotFound
	}

	if (user.Position == nil) != (change.OldPosition == nil) {
		return decimal.Zero, repository.ErrPlacementStale
	}
	if user.Position != nil && (*user.Position != *change.OldPosition || *user.UplineID != *change.OldUplineID) {
		return decimal.Zero, repository.ErrPlacementStale
	}
	if occupant := upline.ChildAt(change.NewPosition); occupant != nil && *occupant != change.UserID {
		return decimal.Zero, repository.ErrSlotOccupied
	}

	if change.OldUplineID != nil && change.OldPosition != nil {
		if old, ok := m.users[*change.OldUplineID]; ok {
			if *change.OldPosition == model.PositionLeft && old.LeftChildID != nil && *old.LeftChildID == user.ID {
				old.LeftChildID = nil
			}
			if *change.OldPosition == model.PositionRight && old.RightChildID != nil && *old.RightChildID == user.ID {
				old.RightChildID = nil
			}
		}
	}
	if change.NewPosition == model.PositionLeft {
		upline.LeftChildID = idPtr(user.ID)
	} else {
		upline.RightChildID = idPtr(user.ID)
	}
	user.UplineID = idPtr(change.NewUplineID)
	user.Position = posPtr(change.NewPosition)

	h := change.History
	m.history = append(m.history, &h)
	return user.TotalInvested, nil
}

func (m *memStore) ListPlacementHistory(_ context.Context, userID uuid.UUID) ([]*model.PlacementHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.PlacementHistory
	for _, h := range m.history {
		if h.UserID == userID {
			c := *h
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memStore) ApplyLegVolume(_ context.Context, nodeID uuid.UUID, leg model.Position, amount decimal.Decimal, settle model.SettleFunc) (*model.VolumeSettlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[nodeID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if leg == model.PositionLeft {
		u.LeftVolume = u.LeftVolume.Add(amount)
	} else {
		u.RightVolume = u.RightVolume.Add(amount)
	}

	out := &model.VolumeSettlement{
		UserID:         u.ID,
		UplineID:       u.UplineID,
		Position:       u.Position,
		Left:           u.LeftVolume,
		Right:          u.RightVolume,
		BinaryEarnings: u.BinaryEarnings,
		BonusPaid:      decimal.Zero,
	}

	candidate := settle(model.LegVolumes{UserID: u.ID, Left: u.LeftVolume, Right: u.RightVolume, BinaryEarnings: u.BinaryEarnings})
	if candidate.GreaterThan(u.BinaryEarnings) {
		delta := candidate.Sub(u.BinaryEarnings)
		u.BinaryEarnings = candidate
		u.WalletBalance = u.WalletBalance.Add(delta)
		m.txs = append(m.txs, &model.Transaction{
			ID: uuid.New(), UserID: u.ID, Type: model.TxBinary, Amount: delta,
			Status: model.TxCompleted, Description: "Binary earnings", CreatedAt: time.Now().UTC(),
		})
		out.BinaryEarnings = candidate
		out.BonusPaid = delta
	}
	return out, nil
}

func (m *memStore) CreditCommission(_ context.Context, t *model.Transaction) (*uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[t.UserID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u.TotalCommissions = u.TotalCommissions.Add(t.Amount)
	u.WalletBalance = u.WalletBalance.Add(t.Amount)
	c := *t
	m.txs = append(m.txs, &c)
	return u.UplineID, nil
}

func (m *memStore) CreateInvestmentRequest(_ context.Context, req *model.InvestmentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *req
	m.requests[req.ID] = &c
	return nil
}

func (m *memStore) ListInvestmentRequests(_ context.Context, userID *uuid.UUID, limit int) ([]*model.InvestmentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.InvestmentRequest
	for _, r := range m.requests {
		if userID == nil || r.UserID == *userID {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ApproveInvestmentRequest(_ context.Context, id uuid.UUID, now time.Time) (*model.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if req.Status != model.RequestPending {
		return nil, repository.ErrAlreadyProcessed
	}
	u, ok := m.users[req.UserID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	req.Status = model.RequestApproved
	inv := &model.Investment{
		ID: uuid.New(), UserID: req.UserID, RequestID: idPtr(req.ID), Package: req.Package,
		Amount: req.Amount, InvestedAt: now, TotalEarnings: decimal.Zero, IsActive: true,
	}
	m.investments[inv.ID] = inv
	u.TotalInvested = u.TotalInvested.Add(req.Amount)
	pkg := req.Package
	u.Package = &pkg
	m.txs = append(m.txs, &model.Transaction{
		ID: uuid.New(), UserID: req.UserID, Type: model.TxDeposit, Amount: req.Amount,
		Status: model.TxCompleted, CreatedAt: now,
	})

	r, i := *req, *inv
	a := &model.Approval{Request: &r, Investment: &i}
	if u.UplineID != nil {
		a.UplineID = idPtr(*u.UplineID)
	}
	if u.Position != nil {
		a.Position = posPtr(*u.Position)
	}
	return a, nil
}

func (m *memStore) RejectInvestmentRequest(_ context.Context, id uuid.UUID) (*model.InvestmentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if req.Status != model.RequestPending {
		return nil, repository.ErrAlreadyProcessed
	}
	req.Status = model.RequestRejected
	r := *req
	return &r, nil
}

func (m *memStore) GetActiveInvestment(_ context.Context, userID uuid.UUID) (*model.Investment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *model.Investment
	for _, inv := range m.investments {
		if inv.UserID == userID && inv.IsActive && (best == nil || inv.InvestedAt.After(best.InvestedAt)) {
			best = inv
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	c := *best
	return &c, nil
}

func (m *memStore) ListActiveInvestments(_ context.Context) ([]*model.Investment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Investment
	for _, inv := range m.investments {
		if inv.IsActive {
			c := *inv
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memStore) CreditWeeklyProfit(_ context.Context, inv *model.Investment, t *model.Transaction, notBefore time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.investments[inv.ID]
	if !ok || !stored.IsActive {
		return false, nil
	}
	if stored.LastProfitAt != nil && stored.LastProfitAt.After(notBefore) {
		return false, nil
	}
	at := t.CreatedAt
	stored.LastProfitAt = &at
	stored.TotalEarnings = stored.TotalEarnings.Add(t.Amount)
	if u, ok := m.users[inv.UserID]; ok {
		u.WeeklyEarnings = u.WeeklyEarnings.Add(t.Amount)
		u.WalletBalance = u.WalletBalance.Add(t.Amount)
	}
	c := *t
	m.txs = append(m.txs, &c)
	return true, nil
}

func (m *memStore) CreateWithdrawal(_ context.Context, t *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[t.UserID]
	if !ok {
		return repository.ErrNotFound
	}
	if u.WalletBalance.LessThan(t.Amount) {
		return repository.ErrInsufficientFunds
	}
	u.WalletBalance = u.WalletBalance.Sub(t.Amount)
	c := *t
	m.txs = append(m.txs, &c)
	return nil
}

func (m *memStore) SettleWithdrawal(_ context.Context, id uuid.UUID, status model.TransactionStatus, txHash string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.txs {
		if t.ID != id || t.Type != model.TxWithdrawal {
			continue
		}
		if t.Status != model.TxPending {
			return nil, repository.ErrAlreadyProcessed
		}
		t.Status = status
		if txHash != "" {
			t.TxHash = txHash
		}
		if status == model.TxRejected {
			if u, ok := m.users[t.UserID]; ok {
				u.WalletBalance = u.WalletBalance.Add(t.Amount)
			}
		}
		c := *t
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) ListTransactions(_ context.Context, userID *uuid.UUID, txType *model.TransactionType, limit int) ([]*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Transaction
	for i := len(m.txs) - 1; i >= 0 && len(out) < limit; i-- {
		t := m.txs[i]
		if userID != nil && t.UserID != *userID {
			continue
		}
		if txType != nil && t.Type != *txType {
			continue
		}
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

func (m *memStore) GetUsersByIDs(_ context.Context, ids []uuid.UUID) ([]*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, cloneUser(u))
		}
	}
	return out, nil
}

func (m *memStore) ListDirectReferrals(_ context.Context, sponsorID uuid.UUID) ([]*model.UserReferral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.UserReferral
	for _, u := range m.users {
		if u.UplineID != nil && *u.UplineID == sponsorID {
			out = append(out, &model.UserReferral{
				ID: u.ID, Name: u.Name, Email: u.Email, Position: u.Position,
				TotalInvested: u.TotalInvested, CreatedAt: u.CreatedAt,
			})
		}
	}
	return out, nil
}

func (m *memStore) UpdateCareer(_ context.Context, id uuid.UUID, level string, points decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.CareerLevel = level
	u.CareerPoints = points
	return nil
}

func (m *memStore) ListUsers(_ context.Context, limit int) ([]*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.User
	for _, u := range m.users {
		if len(out) == limit {
			break
		}
		out = append(out, cloneUser(u))
	}
	return out, nil
}

func (m *memStore) GetStats(_ context.Context) (*model.PlatformStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &model.PlatformStats{TotalUsers: len(m.users), TotalVolume: decimal.Zero}
	for _, inv := range m.investments {
		if inv.IsActive {
			stats.ActiveInvestments++
			stats.TotalVolume = stats.TotalVolume.Add(inv.Amount)
		}
	}
	for _, t := range m.txs {
		if t.Type == model.TxWithdrawal && t.Status == model.TxPending {
			stats.PendingWithdrawals++
		}
	}
	return stats, nil
}

func (m *memStore) SetAdmin(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsAdmin = true
	return nil
}

func (m *memStore) PurgeUser(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	if u.IsAdmin {
		return repository.ErrProtectedUser
	}
	for _, other := range m.users {
		if other.LeftChildID != nil && *other.LeftChildID == id {
			other.LeftChildID = nil
		}
		if other.RightChildID != nil && *other.RightChildID == id {
			other.RightChildID = nil
		}
		if other.UplineID != nil && *other.UplineID == id {
			other.UplineID = nil
			other.Position = nil
		}
	}
	delete(m.users, id)
	return nil
}
