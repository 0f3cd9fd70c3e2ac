package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"binarynet/internal/metrics"
	"binarynet/internal/model"
	"binarynet/internal/repository"
	"binarynet/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const referralTokenBytes = 8

type ReferralService struct {
	repo ReferralRepository
	ttl  time.Duration
	now  func() time.Time
}

func NewReferralService(repo ReferralRepository, plan model.Plan) *ReferralService {
	return &ReferralService{
		repo: repo,
		ttl:  plan.ReferralTTL,
		now:  utcNow,
	}
}

// Issue creates a fresh single-use code for the sponsor. Sponsors may hold any number of live codes.
func (s *ReferralService) Issue(ctx context.Context, sponsorID uuid.UUID, hint string) (*model.ReferralCode, error) {
	hint = strings.ToLower(strings.TrimSpace(hint))
	switch hint {
	case "":
		hint = model.PositionHintAuto
	case model.PositionHintAuto, string(model.PositionLeft), string(model.PositionRight):
	default:
		return nil, ErrInvalidPosition
	}

	if _, err := s.repo.GetUserByID(ctx, sponsorID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get sponsor: %w", err)
	}

	token, err := newReferralToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	code := &model.ReferralCode{
		ID:           uuid.New(),
		Code:         token,
		UserID:       sponsorID,
		PositionHint: hint,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	if err := s.repo.CreateReferralCode(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to create referral code: %w", err)
	}

	metrics.ReferralCodesIssued.Inc()
	return code, nil
}

// Validate reports whether a code could be consumed right now. It never changes state.
func (s *ReferralService) Validate(ctx context.Context, code string) (*model.ReferralValidation, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return &model.ReferralValidation{Reason: model.ReferralNotFound}, nil
	}

	rc, err := s.repo.GetReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &model.ReferralValidation{Reason: model.ReferralNotFound}, nil
		}
		return nil, fmt.Errorf("failed to get referral code: %w", err)
	}

	switch {
	case rc.Expired(s.now()):
		return &model.ReferralValidation{Reason: model.ReferralExpired}, nil
	case rc.IsUsed:
		return &model.ReferralValidation{Reason: model.ReferralAlreadyUsed}, nil
	}

	sponsor, err := s.repo.GetUserByID(ctx, rc.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &model.ReferralValidation{Reason: model.ReferralNotFound}, nil
		}
		return nil, fmt.Errorf("failed to get sponsor: %w", err)
	}

	return &model.ReferralValidation{
		Valid:       true,
		SponsorID:   sponsor.ID,
		SponsorName: sponsor.Name,
	}, nil
}

// Consume marks the code used by consumerID and returns the sponsor. At most one caller
// can ever succeed for a given code.
func (s *ReferralService) Consume(ctx context.Context, code string, consumerID uuid.UUID) (uuid.UUID, error) {
	code = strings.TrimSpace(code)
	sponsorID, err := s.repo.ConsumeReferralCode(ctx, code, consumerID, s.now())
	if err != nil {
		return uuid.Nil, s.consumeError(ctx, code, err)
	}

	logger.Logger().Info("referral code consumed",
		zap.String("code", code),
		zap.String("sponsor_id", sponsorID.String()),
		zap.String("consumer_id", consumerID.String()),
	)
	return sponsorID, nil
}

// consumeError re-reads the code after a failed conditional update to explain the miss.
func (s *ReferralService) consumeError(ctx context.Context, code string, err error) error {
	if !errors.Is(err, repository.ErrCodeUnavailable) {
		return fmt.Errorf("failed to consume referral code: %w", err)
	}

	rc, err := s.repo.GetReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrCodeNotFound
		}
		return fmt.Errorf("failed to get referral code: %w", err)
	}
	if rc.IsUsed {
		return ErrCodeAlreadyUsed
	}
	return ErrCodeExpired
}

// ActiveCode returns a live code of the sponsor, issuing one when none is left.
func (s *ReferralService) ActiveCode(ctx context.Context, sponsorID uuid.UUID) (*model.ReferralCode, error) {
	rc, err := s.repo.GetActiveReferralCode(ctx, sponsorID, s.now())
	if err == nil {
		return rc, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to get active referral code: %w", err)
	}
	return s.Issue(ctx, sponsorID, model.PositionHintAuto)
}

func (s *ReferralService) UsedCodes(ctx context.Context, sponsorID uuid.UUID) ([]*model.UsedReferralCode, error) {
	codes, err := s.repo.ListUsedReferralCodes(ctx, sponsorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list used referral codes: %w", err)
	}
	return codes, nil
}

func newReferralToken() (string, error) {
	b := make([]byte, referralTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate referral code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
