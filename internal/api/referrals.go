package api

import (
	"net/http"
	"time"

	"binarynet/internal/service"
	"binarynet/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type referralRoutes struct {
	rs service.ReferralServiceI
}

func NewReferralRoutes(handler *gin.RouterGroup, rs service.ReferralServiceI, a *auth.JWTAuth) {
	r := &referralRoutes{rs: rs}
	h := handler.Group("/referrals")
	{
		h.GET("/validate/:code", r.Validate)
		h.POST("/generate", a.JWTAuthMiddleware(), r.Generate)
		h.GET("/used", a.JWTAuthMiddleware(), r.Used)
	}
}

type GenerateReferralRequest struct {
	PositionHint string `json:"position_hint" binding:"omitempty,oneof=left right auto"`
}

func (r *referralRoutes) Generate(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req GenerateReferralRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	code, err := r.rs.Issue(c.Request.Context(), userID, req.PositionHint)
	if err != nil {
		respondError(c, "failed to generate referral code", err)
		return
	}

	c.JSON(http.StatusCreated, toReferralCodeResponse(code))
}

type ValidateReferralResponse struct {
	Valid       bool       `json:"valid"`
	Reason      string     `json:"reason,omitempty"`
	SponsorID   *uuid.UUID `json:"sponsor_id,omitempty"`
	SponsorName string     `json:"sponsor_name,omitempty"`
}

func (r *referralRoutes) Validate(c *gin.Context) {
	v, err := r.rs.Validate(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, "failed to validate referral code", err)
		return
	}

	out := ValidateReferralResponse{Valid: v.Valid, Reason: string(v.Reason), SponsorName: v.SponsorName}
	if v.Valid {
		out.SponsorID = &v.SponsorID
	}
	c.JSON(http.StatusOK, out)
}

type UsedReferralResponse struct {
	Code         string     `json:"code"`
	CreatedAt    time.Time  `json:"created_at"`
	UsedAt       *time.Time `json:"used_at"`
	ReferredID   *uuid.UUID `json:"referred_id"`
	ReferredName string     `json:"referred_name"`
	ReferredMail string     `json:"referred_email"`
	JoinedAt     *time.Time `json:"joined_at"`
}

func (r *referralRoutes) Used(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	codes, err := r.rs.UsedCodes(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "failed to list used referral codes", err)
		return
	}

	out := make([]UsedReferralResponse, len(codes))
	for i, uc := range codes {
		out[i] = UsedReferralResponse{
			Code:         uc.Code,
			CreatedAt:    uc.CreatedAt,
			UsedAt:       uc.UsedAt,
			ReferredID:   uc.ReferredID,
			ReferredName: uc.ReferredName,
			ReferredMail: uc.ReferredMail,
			JoinedAt:     uc.JoinedAt,
		}
	}
	c.JSON(http.StatusOK, out)
}
