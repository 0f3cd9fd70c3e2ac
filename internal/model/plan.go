package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Package struct {
	Key              string
	Name             string
	Amount           decimal.Decimal
	CommissionRate   decimal.Decimal
	WeeklyProfitRate decimal.Decimal
}

type CareerLevel struct {
	Name     string
	LeftReq  decimal.Decimal
	RightReq decimal.Decimal
	Reward   decimal.Decimal
	Award    string
}

type CareerProgress struct {
	CurrentLevel  string
	CurrentReward decimal.Decimal
	NextLevel     string
	NextReward    decimal.Decimal
	ProgressPct   decimal.Decimal
}

// Plan is the compensation plan. It is built once at start and never mutated.
type Plan struct {
	Packages        []Package
	CareerLevels    []CareerLevel
	PairUnit        decimal.Decimal
	PairValue       decimal.Decimal
	CommissionDepth int
	MaxHops         int
	ReferralTTL     time.Duration
	ProfitInterval  time.Duration
}

func (p *Plan) Package(key string) (Package, bool) {
	for _, pkg := range p.Packages {
		if pkg.Key == key {
			return pkg, true
		}
	}
	return Package{}, false
}

func DefaultPlan() Plan {
	return Plan{
		Packages: []Package{
			{Key: "silver", Name: "Silver", Amount: decimal.NewFromInt(250), CommissionRate: decimal.RequireFromString("0.05"), WeeklyProfitRate: decimal.RequireFromString("0.05")},
			{Key: "gold", Name: "Gold", Amount: decimal.NewFromInt(500), CommissionRate: decimal.RequireFromString("0.10"), WeeklyProfitRate: decimal.RequireFromString("0.05")},
			{Key: "platinum", Name: "Platinum", Amount: decimal.NewFromInt(1000), CommissionRate: decimal.RequireFromString("0.15"), WeeklyProfitRate: decimal.RequireFromString("0.05")},
		},
		CareerLevels: []CareerLevel{
			{Name: "Amethyst", LeftReq: decimal.NewFromInt(5000), RightReq: decimal.NewFromInt(5000), Reward: decimal.NewFromInt(500)},
			{Name: "Sapphire", LeftReq: decimal.NewFromInt(10000), RightReq: decimal.NewFromInt(10000), Reward: decimal.NewFromInt(1000)},
			{Name: "Ruby", LeftReq: decimal.NewFromInt(20000), RightReq: decimal.NewFromInt(20000), Reward: decimal.NewFromInt(3000)},
			{Name: "Emerald", LeftReq: decimal.NewFromInt(50000), RightReq: decimal.NewFromInt(50000), Reward: decimal.NewFromInt(7500)},
			{Name: "Diamond", LeftReq: decimal.NewFromInt(100000), RightReq: decimal.NewFromInt(100000), Reward: decimal.NewFromInt(20000)},
			{Name: "Crown", LeftReq: decimal.NewFromInt(300000), RightReq: decimal.NewFromInt(300000), Award: "car"},
		},
		PairUnit:        decimal.NewFromInt(1000),
		PairValue:       decimal.NewFromInt(100),
		CommissionDepth: 0,
		MaxHops:         100,
		ReferralTTL:     10 * time.Minute,
		ProfitInterval:  7 * 24 * time.Hour,
	}
}
