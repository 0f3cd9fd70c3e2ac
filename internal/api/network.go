package api

import (
	"net/http"
	"strconv"
	"time"

	"binarynet/internal/model"
	"binarynet/internal/service"
	"binarynet/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type networkRoutes struct {
	us service.UserServiceI
	ps service.PlacementServiceI
	ns service.NetworkServiceI
}

func NewNetworkRoutes(handler *gin.RouterGroup, us service.UserServiceI, ps service.PlacementServiceI, ns service.NetworkServiceI, a *auth.JWTAuth) {
	r := &networkRoutes{us: us, ps: ps, ns: ns}
	h := handler.Group("/network")
	h.Use(a.JWTAuthMiddleware())
	{
		h.POST("/join", r.Join)
		h.POST("/place", r.Place)
		h.GET("/tree", r.Tree)
		h.GET("/dashboard", r.Dashboard)
		h.GET("/history/:user_id", r.History)
	}
}

type JoinNetworkRequest struct {
	ReferralCode string `json:"referral_code" binding:"required"`
}

func (r *networkRoutes) Join(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req JoinNetworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := r.us.JoinNetwork(c.Request.Context(), userID, req.ReferralCode)
	if err != nil {
		respondError(c, "failed to join network", err)
		return
	}

	c.JSON(http.StatusOK, toUserResponse(user))
}

type PlaceRequest struct {
	UserID   uuid.UUID `json:"user_id" binding:"required"`
	UplineID uuid.UUID `json:"upline_id" binding:"required"`
	Position string    `json:"position" binding:"required,oneof=left right"`
}

type PlacementResponse struct {
	UserID           uuid.UUID             `json:"user_id"`
	UplineID         uuid.UUID             `json:"upline_id"`
	Position         model.Position        `json:"position"`
	ActionType       model.PlacementAction `json:"action_type"`
	PreviousUplineID *uuid.UUID            `json:"previous_upline_id"`
	PreviousPosition *model.Position       `json:"previous_position"`
	MigratedVolume   decimal.Decimal       `json:"migrated_volume"`
	Unchanged        bool                  `json:"unchanged"`
}

func placeHandler(ps service.PlacementServiceI) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := currentUser(c)
		if !ok {
			return
		}

		var req PlaceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		res, err := ps.Place(c.Request.Context(), service.PlaceInput{
			ActorID:  actorID,
			UserID:   req.UserID,
			UplineID: req.UplineID,
			Position: model.Position(req.Position),
		})
		if err != nil {
			respondError(c, "failed to place user", err)
			return
		}

		c.JSON(http.StatusOK, PlacementResponse{
			UserID:           res.UserID,
			UplineID:         res.UplineID,
			Position:         res.Position,
			ActionType:       res.ActionType,
			PreviousUplineID: res.PreviousUplineID,
			PreviousPosition: res.PreviousPosition,
			MigratedVolume:   res.MigratedVolume,
			Unchanged:        res.Unchanged,
		})
	}
}

func (r *networkRoutes) Place(c *gin.Context) {
	placeHandler(r.ps)(c)
}

func (r *networkRoutes) Tree(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	rootID := userID
	if raw := c.Query("root"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid root"})
			return
		}
		if id != userID && !isAdmin(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		rootID = id
	}

	depth := service.DefaultTreeDepth
	if raw := c.Query("depth"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 1 || d > service.MaxTreeDepth {
			c.JSON(http.StatusBadRequest, gin.H{"error": "depth must be between 1 and 5"})
			return
		}
		depth = d
	}

	tree, err := r.ns.Tree(c.Request.Context(), rootID, depth)
	if err != nil {
		respondError(c, "failed to get network tree", err)
		return
	}

	c.JSON(http.StatusOK, tree)
}

type ChildSummaryResponse struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Package *string   `json:"package"`
}

type ReferralResponse struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Email         string          `json:"email"`
	Position      *model.Position `json:"position"`
	TotalInvested decimal.Decimal `json:"total_invested"`
	CreatedAt     time.Time       `json:"created_at"`
}

type CareerResponse struct {
	CurrentLevel  string          `json:"current_level"`
	CurrentReward decimal.Decimal `json:"current_reward"`
	NextLevel     string          `json:"next_level"`
	NextReward    decimal.Decimal `json:"next_reward"`
	ProgressPct   decimal.Decimal `json:"progress_pct"`
}

type DashboardResponse struct {
	User               UserResponse          `json:"user"`
	ActiveReferralCode string                `json:"active_referral_code"`
	Referrals          []ReferralResponse    `json:"referrals"`
	Investment         *InvestmentResponse   `json:"investment"`
	Transactions       []TransactionResponse `json:"transactions"`
	LeftChild          *ChildSummaryResponse `json:"left_child"`
	RightChild         *ChildSummaryResponse `json:"right_child"`
	Career             CareerResponse        `json:"career"`
}

func toChildSummary(c *model.ChildSummary) *ChildSummaryResponse {
	if c == nil {
		return nil
	}
	return &ChildSummaryResponse{ID: c.ID, Name: c.Name, Package: c.Package}
}

func (r *networkRoutes) Dashboard(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	dash, err := r.ns.Dashboard(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "failed to get dashboard", err)
		return
	}

	referrals := make([]ReferralResponse, len(dash.Referrals))
	for i, ref := range dash.Referrals {
		referrals[i] = ReferralResponse{
			ID:            ref.ID,
			Name:          ref.Name,
			Email:         ref.Email,
			Position:      ref.Position,
			TotalInvested: ref.TotalInvested,
			CreatedAt:     ref.CreatedAt,
		}
	}

	c.JSON(http.StatusOK, DashboardResponse{
		User:               toUserResponse(dash.User),
		ActiveReferralCode: dash.ActiveReferralCode,
		Referrals:          referrals,
		Investment:         toInvestmentResponse(dash.Investment),
		Transactions:       toTransactionResponses(dash.Transactions),
		LeftChild:          toChildSummary(dash.Left),
		RightChild:         toChildSummary(dash.Right),
		Career: CareerResponse{
			CurrentLevel:  dash.Career.CurrentLevel,
			CurrentReward: dash.Career.CurrentReward,
			NextLevel:     dash.Career.NextLevel,
			NextReward:    dash.Career.NextReward,
			ProgressPct:   dash.Career.ProgressPct,
		},
	})
}

type PlacementHistoryResponse struct {
	ID          uuid.UUID             `json:"id"`
	OldUplineID *uuid.UUID            `json:"old_upline_id"`
	OldPosition *model.Position       `json:"old_position"`
	NewUplineID uuid.UUID             `json:"new_upline_id"`
	NewPosition model.Position        `json:"new_position"`
	ActorID     uuid.UUID             `json:"actor_id"`
	ActionType  model.PlacementAction `json:"action_type"`
	CreatedAt   time.Time             `json:"created_at"`
}

func (r *networkRoutes) History(c *gin.Context) {
	callerID, ok := currentUser(c)
	if !ok {
		return
	}
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	if userID != callerID && !isAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
		return
	}

	history, err := r.ps.History(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "failed to list placement history", err)
		return
	}

	out := make([]PlacementHistoryResponse, len(history))
	for i, h := range history {
		out[i] = PlacementHistoryResponse{
			ID:          h.ID,
			OldUplineID: h.OldUplineID,
			OldPosition: h.OldPosition,
			NewUplineID: h.NewUplineID,
			NewPosition: h.NewPosition,
			ActorID:     h.ActorID,
			ActionType:  h.ActionType,
			CreatedAt:   h.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, out)
}
