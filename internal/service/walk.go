package service

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"binarynet/pkg/logger"
)

const defaultMaxHops = 100

// walkGuard bounds an upward walk and detects revisits.
type walkGuard struct {
	op      string
	maxHops int
	visited map[uuid.UUID]struct{}
	path    []string
}

func newWalkGuard(op string, maxHops int) *walkGuard {
	if maxHops <= 0 {
		maxHops = defaultMaxHops
	}
	return &walkGuard{
		op:      op,
		maxHops: maxHops,
		visited: make(map[uuid.UUID]struct{}),
	}
}

// step records a visit to id and fails when the walk loops or runs too long.
func (g *walkGuard) step(id uuid.UUID) error {
	g.path = append(g.path, id.String())

	if _, ok := g.visited[id]; ok {
		g.fail(ErrTreeCycle)
		return ErrTreeCycle
	}
	if len(g.visited) >= g.maxHops {
		g.fail(ErrWalkLimit)
		return ErrWalkLimit
	}

	g.visited[id] = struct{}{}
	return nil
}

func (g *walkGuard) fail(err error) {
	logger.Logger().Error("upline walk aborted",
		zap.String("op", g.op),
		zap.Strings("path", g.path),
		zap.Int("max_hops", g.maxHops),
		zap.Error(err),
	)
}
