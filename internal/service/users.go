package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"binarynet/internal/model"
	"binarynet/internal/repository"
	"binarynet/pkg/auth"
	"binarynet/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const minPasswordLength = 6

type RegisterInput struct {
	Email        string
	Name         string
	Password     string
	ReferralCode string
}

type UserService struct {
	repo      UserRepository
	referrals *ReferralService
	placement *PlacementService
	tokens    TokenIssuer
	now       func() time.Time
}

func NewUserService(repo UserRepository, referrals *ReferralService, placement *PlacementService, tokens TokenIssuer) *UserService {
	return &UserService{
		repo:      repo,
		referrals: referrals,
		placement: placement,
		tokens:    tokens,
		now:       utcNow,
	}
}

// Register creates an account. A referral code, when given, is consumed together with
// the insert, and a code carrying a left or right hint places the new user right away.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	personal, err := newReferralToken()
	if err != nil {
		return nil, err
	}

	code := strings.TrimSpace(in.ReferralCode)
	var hint *model.ReferralCode
	if code != "" {
		hint, err = s.referrals.repo.GetReferralCode(ctx, code)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("failed to get referral code: %w", err)
		}
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		ReferralCode: personal,
		CareerLevel:  "",
		CreatedAt:    now,
	}

	if err := s.repo.CreateUser(ctx, user, code, now); err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailTaken):
			return nil, ErrEmailTaken
		case errors.Is(err, repository.ErrCodeUnavailable):
			return nil, s.referrals.consumeError(ctx, code, err)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log := logger.Logger().With(zap.String("user_id", user.ID.String()))
	log.Info("user registered", zap.Bool("referred", user.UplineID != nil))

	if user.UplineID != nil && hint != nil {
		if pos, ok := hint.HintPosition(); ok {
			res, err := s.placement.Place(ctx, PlaceInput{
				ActorID:  *user.UplineID,
				UserID:   user.ID,
				UplineID: *user.UplineID,
				Position: pos,
			})
			if err != nil {
				log.Warn("hinted placement skipped", zap.String("position", string(pos)), zap.Error(err))
			} else {
				user.Position = &res.Position
			}
		}
	}

	return user, nil
}

// Login checks the credentials and returns a signed session token.
func (s *UserService) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID, user.IsAdmin)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue token: %w", err)
	}

	now := s.now()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		logger.Logger().Warn("failed to update last login", zap.String("user_id", user.ID.String()), zap.Error(err))
	} else {
		user.LastLogin = &now
	}

	return token, user, nil
}

func (s *UserService) Me(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// JoinNetwork links a user that registered without a code to the code's sponsor.
func (s *UserService) JoinNetwork(ctx context.Context, userID uuid.UUID, code string) (*model.User, error) {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.UplineID != nil {
		return nil, ErrAlreadyInNetwork
	}

	validation, err := s.referrals.Validate(ctx, code)
	if err != nil {
		return nil, err
	}
	if !validation.Valid {
		return nil, validationError(validation.Reason)
	}
	if validation.SponsorID == userID {
		return nil, fmt.Errorf("%w: cannot use your own referral code", ErrInvalidInput)
	}

	inside, err := s.placement.inSubtree(ctx, userID, validation.SponsorID)
	if err != nil {
		return nil, err
	}
	if inside {
		return nil, ErrPlacementCycle
	}

	sponsorID, err := s.repo.JoinNetwork(ctx, userID, strings.TrimSpace(code), s.now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyLinked):
			return nil, ErrAlreadyInNetwork
		case errors.Is(err, repository.ErrCodeUnavailable):
			return nil, s.referrals.consumeError(ctx, strings.TrimSpace(code), err)
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to join network: %w", err)
	}

	logger.Logger().Info("user joined network",
		zap.String("user_id", userID.String()),
		zap.String("sponsor_id", sponsorID.String()),
	)
	user.UplineID = &sponsorID
	return user, nil
}

func validationError(reason model.ReferralInvalidReason) error {
	switch reason {
	case model.ReferralExpired:
		return ErrCodeExpired
	case model.ReferralAlreadyUsed:
		return ErrCodeAlreadyUsed
	}
	return ErrCodeNotFound
}
