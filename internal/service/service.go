package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"binarynet/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Error kinds. Every specific error below wraps exactly one of them.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrConflict            = errors.New("conflict")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

var (
	ErrUserNotFound    = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrUplineNotFound  = fmt.Errorf("%w: upline not found", ErrNotFound)
	ErrCodeNotFound    = fmt.Errorf("%w: referral code not found", ErrNotFound)
	ErrRequestNotFound = fmt.Errorf("%w: request not found", ErrNotFound)

	ErrInvalidPosition    = fmt.Errorf("%w: position must be left or right", ErrInvalidInput)
	ErrInvalidAmount      = fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	ErrInvalidPackage     = fmt.Errorf("%w: unknown package", ErrInvalidInput)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", ErrInvalidInput)

	ErrPositionOccupied = fmt.Errorf("%w: position already occupied", ErrConflict)
	ErrSelfPlacement    = fmt.Errorf("%w: a user cannot be placed under itself", ErrConflict)
	ErrPlacementCycle   = fmt.Errorf("%w: upline is inside the user's own subtree", ErrConflict)
	ErrCodeExpired      = fmt.Errorf("%w: referral code expired", ErrConflict)
	ErrCodeAlreadyUsed  = fmt.Errorf("%w: referral code already used", ErrConflict)
	ErrAlreadyInNetwork = fmt.Errorf("%w: user already belongs to a network", ErrConflict)
	ErrAlreadyProcessed = fmt.Errorf("%w: request already processed", ErrConflict)
	ErrEmailTaken       = fmt.Errorf("%w: email already registered", ErrConflict)
	ErrProtectedUser    = fmt.Errorf("%w: admin users cannot be removed", ErrConflict)

	ErrInsufficientFunds = fmt.Errorf("%w: insufficient wallet balance", ErrInsufficientBalance)

	ErrForbidden = errors.New("forbidden")
)

// Tree inconsistencies. They abort a walk and are never a client error.
var (
	ErrTreeCycle = errors.New("cycle detected in upline chain")
	ErrWalkLimit = errors.New("upline walk exceeded hop limit")
)

type Service struct {
	*UserService
	*ReferralService
	*PlacementService
	*VolumeService
	*CommissionService
	*InvestmentService
	*WithdrawalService
	*ProfitService
	*NetworkService
	*AdminService
}

type Repository interface {
	UserRepository
	ReferralRepository
	PlacementRepository
	VolumeRepository
	CommissionRepository
	InvestmentRepository
	WithdrawalRepository
	ProfitRepository
	NetworkRepository
	AdminRepository
}

type Options struct {
	Notifier Notifier
	Tokens   TokenIssuer
	Cache    TreeCache
}

// NewService wires every engine around one repository and one plan.
func NewService(repo Repository, plan model.Plan, opts Options) *Service {
	referrals := NewReferralService(repo, plan)
	volume := NewVolumeService(repo, plan)
	commissions := NewCommissionService(repo, plan)
	placement := NewPlacementService(repo, volume)
	network := NewNetworkService(repo, referrals, plan, opts.Cache)
	investments := NewInvestmentService(repo, plan, commissions, volume, opts.Notifier)

	placement.onChange = network.Invalidate
	investments.onChange = network.Invalidate

	return &Service{
		UserService:       NewUserService(repo, referrals, placement, opts.Tokens),
		ReferralService:   referrals,
		PlacementService:  placement,
		VolumeService:     volume,
		CommissionService: commissions,
		InvestmentService: investments,
		WithdrawalService: NewWithdrawalService(repo, opts.Notifier),
		ProfitService:     NewProfitService(repo, plan, opts.Notifier),
		NetworkService:    network,
		AdminService:      NewAdminService(repo),
	}
}

type UserServiceI interface {
	Register(ctx context.Context, in RegisterInput) (*model.User, error)
	Login(ctx context.Context, email, password string) (string, *model.User, error)
	Me(ctx context.Context, userID uuid.UUID) (*model.User, error)
	JoinNetwork(ctx context.Context, userID uuid.UUID, code string) (*model.User, error)
}

type ReferralServiceI interface {
	Issue(ctx context.Context, sponsorID uuid.UUID, hint string) (*model.ReferralCode, error)
	Validate(ctx context.Context, code string) (*model.ReferralValidation, error)
	Consume(ctx context.Context, code string, consumerID uuid.UUID) (uuid.UUID, error)
	ActiveCode(ctx context.Context, sponsorID uuid.UUID) (*model.ReferralCode, error)
	UsedCodes(ctx context.Context, sponsorID uuid.UUID) ([]*model.UsedReferralCode, error)
}

type PlacementServiceI interface {
	Place(ctx context.Context, in PlaceInput) (*model.PlacementResult, error)
	History(ctx context.Context, userID uuid.UUID) ([]*model.PlacementHistory, error)
}

type InvestmentServiceI interface {
	Request(ctx context.Context, userID uuid.UUID, in InvestmentRequestInput) (*model.InvestmentRequest, error)
	Approve(ctx context.Context, requestID uuid.UUID) (*model.ApprovalReport, error)
	Reject(ctx context.Context, requestID uuid.UUID) (*model.InvestmentRequest, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.InvestmentRequest, error)
	ListAll(ctx context.Context) ([]*model.InvestmentRequest, error)
	Packages() []model.Package
}

type WithdrawalServiceI interface {
	RequestWithdrawal(ctx context.Context, userID uuid.UUID, in WithdrawalInput) (*model.Transaction, error)
	ApproveWithdrawal(ctx context.Context, txID uuid.UUID, txHash string) (*model.Transaction, error)
	RejectWithdrawal(ctx context.Context, txID uuid.UUID) (*model.Transaction, error)
	ListWithdrawals(ctx context.Context, userID uuid.UUID) ([]*model.Transaction, error)
}

type ProfitServiceI interface {
	DistributeWeekly(ctx context.Context) (*model.WeeklyProfitReport, error)
}

type NetworkServiceI interface {
	Tree(ctx context.Context, rootID uuid.UUID, depth int) (*model.TreeNode, error)
	Dashboard(ctx context.Context, userID uuid.UUID) (*model.Dashboard, error)
}

// StatsServiceI serves the unauthenticated platform summary.
type StatsServiceI interface {
	Stats(ctx context.Context) (*model.PlatformStats, error)
}

type AdminServiceI interface {
	ListUsers(ctx context.Context) ([]*model.User, error)
	ListTransactions(ctx context.Context, txType *model.TransactionType) ([]*model.Transaction, error)
	Stats(ctx context.Context) (*model.PlatformStats, error)
	MakeAdmin(ctx context.Context, userID uuid.UUID) error
	PurgeUser(ctx context.Context, userID uuid.UUID) error
}

// UserLookup is shared by every engine that has to follow upline links.
type UserLookup interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type UserRepository interface {
	UserLookup
	CreateUser(ctx context.Context, user *model.User, referralCode string, now time.Time) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	JoinNetwork(ctx context.Context, userID uuid.UUID, code string, now time.Time) (uuid.UUID, error)
}

type ReferralRepository interface {
	UserLookup
	CreateReferralCode(ctx context.Context, code *model.ReferralCode) error
	GetReferralCode(ctx context.Context, code string) (*model.ReferralCode, error)
	GetActiveReferralCode(ctx context.Context, sponsorID uuid.UUID, now time.Time) (*model.ReferralCode, error)
	ConsumeReferralCode(ctx context.Context, code string, consumerID uuid.UUID, now time.Time) (uuid.UUID, error)
	ListUsedReferralCodes(ctx context.Context, sponsorID uuid.UUID) ([]*model.UsedReferralCode, error)
}

type PlacementRepository interface {
	UserLookup
	PlaceUser(ctx context.Context, change model.PlacementChange) (decimal.Decimal, error)
	ListPlacementHistory(ctx context.Context, userID uuid.UUID) ([]*model.PlacementHistory, error)
}

type VolumeRepository interface {
	UserLookup
	ApplyLegVolume(ctx context.Context, nodeID uuid.UUID, leg model.Position, amount decimal.Decimal, settle model.SettleFunc) (*model.VolumeSettlement, error)
}

type CommissionRepository interface {
	UserLookup
	CreditCommission(ctx context.Context, t *model.Transaction) (*uuid.UUID, error)
}

type InvestmentRepository interface {
	UserLookup
	CreateInvestmentRequest(ctx context.Context, req *model.InvestmentRequest) error
	ListInvestmentRequests(ctx context.Context, userID *uuid.UUID, limit int) ([]*model.InvestmentRequest, error)
	ApproveInvestmentRequest(ctx context.Context, id uuid.UUID, now time.Time) (*model.Approval, error)
	RejectInvestmentRequest(ctx context.Context, id uuid.UUID) (*model.InvestmentRequest, error)
}

type WithdrawalRepository interface {
	CreateWithdrawal(ctx context.Context, t *model.Transaction) error
	SettleWithdrawal(ctx context.Context, id uuid.UUID, status model.TransactionStatus, txHash string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, userID *uuid.UUID, txType *model.TransactionType, limit int) ([]*model.Transaction, error)
}

type ProfitRepository interface {
	ListActiveInvestments(ctx context.Context) ([]*model.Investment, error)
	CreditWeeklyProfit(ctx context.Context, inv *model.Investment, t *model.Transaction, notBefore time.Time) (bool, error)
}

type NetworkRepository interface {
	UserLookup
	GetUsersByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.User, error)
	ListDirectReferrals(ctx context.Context, sponsorID uuid.UUID) ([]*model.UserReferral, error)
	GetActiveInvestment(ctx context.Context, userID uuid.UUID) (*model.Investment, error)
	ListTransactions(ctx context.Context, userID *uuid.UUID, txType *model.TransactionType, limit int) ([]*model.Transaction, error)
	UpdateCareer(ctx context.Context, id uuid.UUID, level string, points decimal.Decimal) error
}

type AdminRepository interface {
	ListUsers(ctx context.Context, limit int) ([]*model.User, error)
	ListTransactions(ctx context.Context, userID *uuid.UUID, txType *model.TransactionType, limit int) ([]*model.Transaction, error)
	GetStats(ctx context.Context) (*model.PlatformStats, error)
	SetAdmin(ctx context.Context, id uuid.UUID) error
	PurgeUser(ctx context.Context, id uuid.UUID) error
}

// TokenIssuer signs session tokens for authenticated users.
type TokenIssuer interface {
	Issue(userID uuid.UUID, isAdmin bool) (string, error)
}

// TreeCache keeps rendered network trees. Implementations must be safe to miss.
type TreeCache interface {
	Get(ctx context.Context, rootID uuid.UUID, depth int) (*model.TreeNode, bool)
	Set(ctx context.Context, rootID uuid.UUID, depth int, tree *model.TreeNode)
	Invalidate(ctx context.Context)
}

func utcNow() time.Time {
	return time.Now().UTC()
}
