package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	config "github.com/phillip/farewell-fund-go/config"
	controllers "github.com/phillip/farewell-fund-go/controllers"
	middleware "github.com/phillip/farewell-fund-go/middleware"
	services "github.com/phillip/farewell-fund-go/services"
	utils "github.com/phillip/farewell-fund-go/utils"
)

func SetupRoutes(r *gin.Engine, cfg *config.Config, svc *services.Services, blobs utils.BlobStore) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// protected
	auth := middleware.AuthMiddleware(cfg)

	events := r.Group("/events")
	events.Use(auth)
	{
		events.POST("", controllers.CreateEvent(svc))
		events.GET("/:id", controllers.GetEvent(svc))
		events.PATCH("/:id/financial-settings", controllers.UpdateFinancialSettings(svc))
		events.GET("/:id/snapshot", controllers.GetFinancialSnapshot(svc))

		events.GET("/:id/leaderboard", controllers.GetLeaderboard(svc))
		events.GET("/:id/rank", controllers.GetRank(svc))
		events.GET("/:id/rank/:memberId", controllers.GetRank(svc))

		events.POST("/:id/members", controllers.AddMember(svc))
		events.GET("/:id/members", controllers.ListMembers(svc))

		events.GET("/:id/contributions", controllers.ListContributions(svc))
		events.GET("/:id/contributions/mine", controllers.ListMyContributions(svc))

		events.GET("/:id/budget", controllers.ListBudget(svc))
		events.POST("/:id/budget/distribute", controllers.DistributeBudget(svc))
		events.PUT("/:id/budget/:memberId", controllers.AssignBudget(svc))
	}

	contributions := r.Group("/contributions")
	contributions.Use(auth)
	{
		contributions.POST("", controllers.CreateContribution(svc))
		contributions.POST("/receipt", controllers.UploadReceipt(svc, blobs))
		contributions.GET("/:id", controllers.GetContribution(svc))
		contributions.POST("/:id/mark-paid", controllers.MarkContributionPaid(svc))
		contributions.POST("/:id/verify", controllers.VerifyContribution(svc))
		contributions.POST("/:id/approve", controllers.ApproveContribution(svc))
		contributions.POST("/:id/reject", controllers.RejectContribution(svc))
		contributions.POST("/:id/refund", controllers.RefundContribution(svc))
	}
}
