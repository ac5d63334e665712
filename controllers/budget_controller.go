package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	services "github.com/phillip/farewell-fund-go/services"
)

func DistributeBudget(svc *services.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			TotalBudget decimal.Decimal `json:"total_budget"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": "total_budget"})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		rows, err := svc.Budget.DistributeEqually(ctx, identity(c), c.Param("id"), input.TotalBudget)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, rows)
	}
}

func AssignBudget(svc *services.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Amount decimal.Decimal `json:"amount"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": "amount"})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		row, err := svc.Budget.AssignIndividual(ctx, identity(c), c.Param("id"), c.Param("memberId"), input.Amount)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, row)
	}
}

func ListBudget(svc *services.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()

		rows, err := svc.Budget.List(ctx, identity(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, rows)
	}
}
