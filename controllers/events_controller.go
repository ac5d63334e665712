package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	models "github.com/phillip/farewell-fund-go/models"
	services "github.com/phillip/farewell-fund-go/services"
)

// ---------------- CREATE ----------------
func CreateEvent(svc *services.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Title        string          `json:"title" binding:"required"`
			Description  string          `json:"description"`
			TargetAmount decimal.Decimal `json:"target_amount"`
			OwnerName    string          `json:"owner_name"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		event, err := svc.Events.Create(ctx, identity(c), services.CreateEventInput{
			Title:        input.Title,
			Description:  input.Description,
			TargetAmount: input.TargetAmount,
			OwnerName:    input.OwnerName,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, event)
	}
}

// ---------------- GET ----------------
func GetEvent(svc *services.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()

		event, err := svc.Events.Get(ctx, identity(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		if notModified(c, event.ID, event.UpdatedAt) {
			return
		}

		c.JSON(http.StatusOK, event)
	}
}

// ---------------- UPDATE ----------------
func UpdateFinancialSettings(svc *services.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			TargetAmount      *decimal.Decimal                              `json:"target_amount"`
			AcceptingPayments *bool                                         `json:"accepting_payments"`
			MaintenanceMode   *bool                                         `json:"maintenance_mode"`
			PaymentMethods    map[models.PaymentMethod]models.MethodConfig `json:"payment_methods"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		event, err := svc.Events.UpdateFinancialSettings(ctx, identity(c), c.Param("id"), services.FinancialSettingsInput{
			TargetAmount:      input.TargetAmount,
			AcceptingPayments: input.AcceptingPayments,
			MaintenanceMode:   input.MaintenanceMode,
			PaymentMethods:    input.PaymentMethods,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, event)
	}
}

// ---------------- LEDGER ----------------
func GetFinancialSnapshot(svc *services.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()

		snap, err := svc.Ledger.Snapshot(ctx, identity(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}

		c.Header("Cache-Control", "private, no-cache")
		c.JSON(http.StatusOK, snap)
	}
}

// ---------------- LEADERBOARD ----------------
func GetLeaderboard(svc *services.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer", "field": "limit"})
				return
			}
			limit = n
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		entries, err := svc.Leaderboard.Leaderboard(ctx, identity(c), c.Param("id"), limit)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, entries)
	}
}

// GetRank defaults to the caller when no member id is given.
func GetRank(svc *services.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		memberID := c.Param("memberId")
		if memberID == "" {
			if id := identity(c); id != nil {
				memberID = id.UserID
			}
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		res, err := svc.Leaderboard.Rank(ctx, identity(c), c.Param("id"), memberID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, res)
	}
}

// ---------------- MEMBERS ----------------
func AddMember(svc *services.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			UserID string `json:"user_id" binding:"required"`
			Name   string `json:"name"`
			Email  string `json:"email"`
			Role   string `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		member, err := svc.Events.AddMember(ctx, identity(c), c.Param("id"), services.MemberInput{
			UserID: input.UserID,
			Name:   input.Name,
			Email:  input.Email,
			Role:   input.Role,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, member)
	}
}

func ListMembers(svc *services.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()

		members, err := svc.Events.ListMembers(ctx, identity(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, members)
	}
}
