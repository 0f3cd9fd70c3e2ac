package service

import (
	"context"
	"errors"
	"fmt"

	"binarynet/internal/model"
	"binarynet/internal/repository"
	"binarynet/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	MaxTreeDepth       = 5
	DefaultTreeDepth   = 3
	recentTransactions = 10
)

type NetworkService struct {
	repo      NetworkRepository
	referrals *ReferralService
	plan      model.Plan
	cache     TreeCache
}

func NewNetworkService(repo NetworkRepository, referrals *ReferralService, plan model.Plan, cache TreeCache) *NetworkService {
	return &NetworkService{
		repo:      repo,
		referrals: referrals,
		plan:      plan,
		cache:     cache,
	}
}

// Tree renders the binary subtree below rootID, depth levels deep, loading one level per query.
func (s *NetworkService) Tree(ctx context.Context, rootID uuid.UUID, depth int) (*model.TreeNode, error) {
	if depth <= 0 {
		depth = DefaultTreeDepth
	}
	if depth > MaxTreeDepth {
		depth = MaxTreeDepth
	}

	if s.cache != nil {
		if tree, ok := s.cache.Get(ctx, rootID, depth); ok {
			return tree, nil
		}
	}

	root, err := s.repo.GetUserByID(ctx, rootID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	rootNode := treeNode(root)
	level := map[uuid.UUID]*model.TreeNode{root.ID: rootNode}
	users := map[uuid.UUID]*model.User{root.ID: root}
	seen := map[uuid.UUID]struct{}{root.ID: {}}

	for d := 1; d < depth && len(level) > 0; d++ {
		var ids []uuid.UUID
		for id := range level {
			u := users[id]
			for _, child := range []*uuid.UUID{u.LeftChildID, u.RightChildID} {
				if child == nil {
					continue
				}
				if _, ok := seen[*child]; ok {
					logger.Logger().Error("tree render found a repeated node", zap.String("user_id", child.String()))
					continue
				}
				seen[*child] = struct{}{}
				ids = append(ids, *child)
			}
		}
		if len(ids) == 0 {
			break
		}

		children, err := s.repo.GetUsersByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load tree level: %w", err)
		}

		next := make(map[uuid.UUID]*model.TreeNode, len(children))
		for _, c := range children {
			users[c.ID] = c
			next[c.ID] = treeNode(c)
		}
		for id, node := range level {
			u := users[id]
			if u.LeftChildID != nil {
				node.Left = next[*u.LeftChildID]
			}
			if u.RightChildID != nil {
				node.Right = next[*u.RightChildID]
			}
		}
		level = next
	}

	if s.cache != nil {
		s.cache.Set(ctx, rootID, depth, rootNode)
	}
	return rootNode, nil
}

// Invalidate drops cached trees after the tree or its volumes change.
func (s *NetworkService) Invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

func treeNode(u *model.User) *model.TreeNode {
	return &model.TreeNode{
		ID:            u.ID,
		Name:          u.Name,
		Package:       u.Package,
		TotalInvested: u.TotalInvested,
		LeftVolume:    u.LeftVolume,
		RightVolume:   u.RightVolume,
	}
}

// Dashboard gathers everything the member home screen shows.
func (s *NetworkService) Dashboard(ctx context.Context, userID uuid.UUID) (*model.Dashboard, error) {
	log := logger.Logger().With(zap.String("user_id", userID.String()))

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	dash := &model.Dashboard{User: user}

	code, err := s.referrals.ActiveCode(ctx, userID)
	if err != nil {
		return nil, err
	}
	dash.ActiveReferralCode = code.Code

	dash.Referrals, err = s.repo.ListDirectReferrals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list referrals: %w", err)
	}

	dash.Investment, err = s.repo.GetActiveInvestment(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to get investment: %w", err)
	}

	dash.Transactions, err = s.repo.ListTransactions(ctx, &userID, nil, recentTransactions)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	var childIDs []uuid.UUID
	for _, id := range []*uuid.UUID{user.LeftChildID, user.RightChildID} {
		if id != nil {
			childIDs = append(childIDs, *id)
		}
	}
	children, err := s.repo.GetUsersByIDs(ctx, childIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load children: %w", err)
	}
	for _, c := range children {
		summary := &model.ChildSummary{ID: c.ID, Name: c.Name, Package: c.Package}
		switch {
		case user.LeftChildID != nil && *user.LeftChildID == c.ID:
			dash.Left = summary
		case user.RightChildID != nil && *user.RightChildID == c.ID:
			dash.Right = summary
		}
	}

	dash.Career = EvaluateCareer(s.plan.CareerLevels, user.LeftVolume, user.RightVolume)
	points := decimal.Min(user.LeftVolume, user.RightVolume)
	if dash.Career.CurrentLevel != user.CareerLevel || !points.Equal(user.CareerPoints) {
		if err := s.repo.UpdateCareer(ctx, userID, dash.Career.CurrentLevel, points); err != nil {
			log.Warn("failed to refresh career level", zap.Error(err))
		}
	}

	return dash, nil
}
