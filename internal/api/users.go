package api

import (
	"net/http"

	"binarynet/internal/service"
	"binarynet/pkg/auth"

	"github.com/gin-gonic/gin"
)

type userRoutes struct {
	us service.UserServiceI
	a  *auth.JWTAuth
}

func NewUserRoutes(handler *gin.RouterGroup, us service.UserServiceI, a *auth.JWTAuth) {
	r := &userRoutes{us: us, a: a}
	h := handler.Group("/auth")
	{
		h.POST("/register", r.Register)
		h.POST("/login", r.Login)
		h.GET("/me", a.JWTAuthMiddleware(), r.Me)
	}
}

type RegisterRequest struct {
	Email        string `json:"email" binding:"required,email"`
	Name         string `json:"name" binding:"required"`
	Password     string `json:"password" binding:"required,min=6"`
	ReferralCode string `json:"referral_code"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        UserResponse `json:"user"`
}

func (r *userRoutes) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := r.us.Register(c.Request.Context(), service.RegisterInput{
		Email:        req.Email,
		Name:         req.Name,
		Password:     req.Password,
		ReferralCode: req.ReferralCode,
	})
	if err != nil {
		respondError(c, "failed to register user", err)
		return
	}

	token, err := r.a.Issue(user.ID, user.IsAdmin)
	if err != nil {
		respondError(c, "failed to issue token", err)
		return
	}

	c.JSON(http.StatusCreated, TokenResponse{AccessToken: token, TokenType: "bearer", User: toUserResponse(user)})
}

func (r *userRoutes) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	token, user, err := r.us.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, "failed to log in", err)
		return
	}

	c.JSON(http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer", User: toUserResponse(user)})
}

func (r *userRoutes) Me(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	user, err := r.us.Me(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "failed to get user", err)
		return
	}

	c.JSON(http.StatusOK, toUserResponse(user))
}
