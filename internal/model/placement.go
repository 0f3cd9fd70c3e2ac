package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PlacementAction string

const (
	ActionInitialPlacement PlacementAction = "initial_placement"
	ActionRepositioning    PlacementAction = "repositioning"
)

type PlacementHistory struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	OldUplineID *uuid.UUID
	OldPosition *Position
	NewUplineID uuid.UUID
	NewPosition Position
	ActorID     uuid.UUID
	ActionType  PlacementAction
	CreatedAt   time.Time
}

// PlacementChange is the set of pointer updates committed together.
type PlacementChange struct {
	UserID      uuid.UUID
	OldUplineID *uuid.UUID
	OldPosition *Position
	NewUplineID uuid.UUID
	NewPosition Position
	History     PlacementHistory
}

type PlacementResult struct {
	UserID           uuid.UUID
	UplineID         uuid.UUID
	Position         Position
	ActionType       PlacementAction
	PreviousUplineID *uuid.UUID
	PreviousPosition *Position
	MigratedVolume   decimal.Decimal
	Unchanged        bool
}
