package service

import (
	"github.com/shopspring/decimal"

	"binarynet/internal/model"
)

var hundred = decimal.NewFromInt(100)

// EvaluateCareer places leg volumes on the career ladder. levels must be ascending.
func EvaluateCareer(levels []model.CareerLevel, left, right decimal.Decimal) model.CareerProgress {
	var progress model.CareerProgress

	next := -1
	for i, lvl := range levels {
		if left.GreaterThanOrEqual(lvl.LeftReq) && right.GreaterThanOrEqual(lvl.RightReq) {
			progress.CurrentLevel = lvl.Name
			progress.CurrentReward = lvl.Reward
			continue
		}
		next = i
		break
	}

	if next < 0 {
		progress.ProgressPct = hundred
		return progress
	}

	target := levels[next]
	progress.NextLevel = target.Name
	progress.NextReward = target.Reward
	progress.ProgressPct = decimal.Min(ratio(left, target.LeftReq), ratio(right, target.RightReq)).
		Mul(hundred).
		Round(2)
	if progress.ProgressPct.GreaterThan(hundred) {
		progress.ProgressPct = hundred
	}
	if progress.ProgressPct.IsNegative() {
		progress.ProgressPct = decimal.Zero
	}
	return progress
}

func ratio(have, need decimal.Decimal) decimal.Decimal {
	if !need.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return have.Div(need)
}
