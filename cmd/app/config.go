package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"binarynet/internal/cache"
	"binarynet/internal/model"
	"binarynet/internal/notify"
	"binarynet/internal/repository"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	configPath   = "./"
	configName   = "config"
	configFormat = "yaml"
)

type Config struct {
	Database  repository.Config     `mapstructure:"database"`
	Server    ServerConfig          `mapstructure:"server"`
	Auth      AuthConfig            `mapstructure:"auth"`
	Redis     cache.Config          `mapstructure:"redis"`
	Telegram  notify.TelegramConfig `mapstructure:"telegram"`
	Plan      PlanConfig            `mapstructure:"plan"`
	RateLimit RateLimitConfig       `mapstructure:"rateLimit"`

	LogLevel string `mapstructure:"logLevel" default:"info" validate:"oneof=debug info warn error"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" default:"0.0.0.0"`
	Port string `mapstructure:"port" default:"8888"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwtSecret" validate:"required,min=16"`
	TokenTTL  time.Duration `mapstructure:"tokenTtl" default:"24h"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requestsPerSecond" default:"10" validate:"gt=0"`
	Burst             int     `mapstructure:"burst" default:"20" validate:"gt=0"`
}

type PackageConfig struct {
	Key              string `mapstructure:"key" validate:"required"`
	Name             string `mapstructure:"name" validate:"required"`
	Amount           string `mapstructure:"amount" validate:"required,numeric"`
	CommissionRate   string `mapstructure:"commissionRate" validate:"required,numeric"`
	WeeklyProfitRate string `mapstructure:"weeklyProfitRate" validate:"required,numeric"`
}

type CareerLevelConfig struct {
	Name     string `mapstructure:"name" validate:"required"`
	LeftReq  string `mapstructure:"leftReq" validate:"required,numeric"`
	RightReq string `mapstructure:"rightReq" validate:"required,numeric"`
	Reward   string `mapstructure:"reward" default:"0" validate:"numeric"`
	Award    string `mapstructure:"award"`
}

// PlanConfig overrides the built-in compensation plan. Empty lists keep the defaults.
type PlanConfig struct {
	Packages             []PackageConfig     `mapstructure:"packages" validate:"dive"`
	CareerLevels         []CareerLevelConfig `mapstructure:"careerLevels" validate:"dive"`
	PairUnit             string              `mapstructure:"pairUnit" default:"1000" validate:"numeric"`
	PairValue            string              `mapstructure:"pairValue" default:"100" validate:"numeric"`
	CommissionDepth      int                 `mapstructure:"commissionDepth" validate:"gte=0"`
	MaxHops              int                 `mapstructure:"maxHops" default:"100" validate:"gt=0"`
	ReferralTTL          time.Duration       `mapstructure:"referralTtl" default:"10m"`
	ProfitInterval       time.Duration       `mapstructure:"profitInterval" default:"168h"`
	WeeklyProfitSchedule string              `mapstructure:"weeklyProfitSchedule" default:"0 0 * * 1"`
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	viper.SetConfigName(configName)
	viper.AddConfigPath(configPath)
	viper.SetConfigType(configFormat)

	viper.AutomaticEnv()
	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to set config defaults: %w", err)
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// list entries are decoded after defaults ran
	for i := range cfg.Plan.CareerLevels {
		if err := defaults.Set(&cfg.Plan.CareerLevels[i]); err != nil {
			return nil, err
		}
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// ToPlan builds the immutable compensation plan.
func (p PlanConfig) ToPlan() (model.Plan, error) {
	plan := model.DefaultPlan()

	var err error
	if plan.PairUnit, err = decimal.NewFromString(p.PairUnit); err != nil {
		return plan, fmt.Errorf("plan.pairUnit: %w", err)
	}
	if !plan.PairUnit.IsPositive() {
		return plan, errors.New("plan.pairUnit must be positive")
	}
	if plan.PairValue, err = decimal.NewFromString(p.PairValue); err != nil {
		return plan, fmt.Errorf("plan.pairValue: %w", err)
	}
	plan.CommissionDepth = p.CommissionDepth
	plan.MaxHops = p.MaxHops
	plan.ReferralTTL = p.ReferralTTL
	plan.ProfitInterval = p.ProfitInterval

	if len(p.Packages) > 0 {
		plan.Packages = make([]model.Package, 0, len(p.Packages))
		for _, pc := range p.Packages {
			pkg := model.Package{Key: strings.ToLower(pc.Key), Name: pc.Name}
			if pkg.Amount, err = decimal.NewFromString(pc.Amount); err != nil {
				return plan, fmt.Errorf("plan.packages[%s].amount: %w", pc.Key, err)
			}
			if pkg.CommissionRate, err = decimal.NewFromString(pc.CommissionRate); err != nil {
				return plan, fmt.Errorf("plan.packages[%s].commissionRate: %w", pc.Key, err)
			}
			if pkg.WeeklyProfitRate, err = decimal.NewFromString(pc.WeeklyProfitRate); err != nil {
				return plan, fmt.Errorf("plan.packages[%s].weeklyProfitRate: %w", pc.Key, err)
			}
			plan.Packages = append(plan.Packages, pkg)
		}
	}

	if len(p.CareerLevels) > 0 {
		plan.CareerLevels = make([]model.CareerLevel, 0, len(p.CareerLevels))
		for i, lc := range p.CareerLevels {
			lvl := model.CareerLevel{Name: lc.Name, Award: lc.Award}
			if lvl.LeftReq, err = decimal.NewFromString(lc.LeftReq); err != nil {
				return plan, fmt.Errorf("plan.careerLevels[%d].leftReq: %w", i, err)
			}
			if lvl.RightReq, err = decimal.NewFromString(lc.RightReq); err != nil {
				return plan, fmt.Errorf("plan.careerLevels[%d].rightReq: %w", i, err)
			}
			if lvl.Reward, err = decimal.NewFromString(lc.Reward); err != nil {
				return plan, fmt.Errorf("plan.careerLevels[%d].reward: %w", i, err)
			}
			if i > 0 {
				prev := plan.CareerLevels[i-1]
				if lvl.LeftReq.LessThan(prev.LeftReq) || lvl.RightReq.LessThan(prev.RightReq) {
					return plan, fmt.Errorf("plan.careerLevels must be ascending, %s is below %s", lvl.Name, prev.Name)
				}
			}
			plan.CareerLevels = append(plan.CareerLevels, lvl)
		}
	}

	return plan, nil
}
