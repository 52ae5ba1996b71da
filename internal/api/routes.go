package api

import (
	"alcyxob/fitness-billing/internal/domain"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRoutes registers the billing API. metricsHandler may be nil when
// metrics are disabled.
func SetupRoutes(
	router *gin.Engine,
	jwtSecret string,
	clientHandler *ClientHandler,
	trainerHandler *TrainerHandler,
	metricsHandler http.Handler,
) {
	authMiddleware := AuthMiddleware(jwtSecret)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	apiV1 := router.Group("/api/v1")
	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", func(c *gin.Context) {
			userIDStr, err := getUserIDFromContext(c)
			if err != nil {
				abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
				return
			}
			role, _ := getUserRoleFromContext(c)
			c.JSON(http.StatusOK, gin.H{"userId": userIDStr, "role": role})
		})

		clientGroup := protected.Group("/client")
		clientGroup.Use(RoleMiddleware(domain.RoleClient))
		{
			clientGroup.GET("/plan", clientHandler.GetMyPlan)
			clientGroup.POST("/plans/:planId/unlock", clientHandler.UnlockPlan)
			clientGroup.GET("/ledger", clientHandler.GetMyLedger)
			clientGroup.GET("/invoices", clientHandler.GetMyInvoices)
			clientGroup.POST("/invoices", clientHandler.GenerateMyInvoice)
			clientGroup.GET("/invoices/:invoiceId/statement", clientHandler.GetStatementURL)
		}

		trainerGroup := protected.Group("/trainer")
		trainerGroup.Use(RoleMiddleware(domain.RoleTrainer))
		{
			// --- Client ledgers ---
			trainerGroup.POST("/clients/:clientId/ledger", trainerHandler.OpenLedger)
			trainerGroup.GET("/clients/:clientId/ledger", trainerHandler.GetClientLedger)
			trainerGroup.POST("/clients/:clientId/ledger/reconcile", trainerHandler.ReconcileLedger)

			// --- Plans & charges ---
			trainerGroup.GET("/clients/:clientId/plan", trainerHandler.GetClientPlan)
			trainerGroup.POST("/clients/:clientId/plan-assignments", trainerHandler.AssignPlan)
			trainerGroup.POST("/clients/:clientId/charges", trainerHandler.AddCharge)

			// --- Invoices ---
			trainerGroup.POST("/clients/:clientId/invoices", trainerHandler.GenerateInvoice)
			trainerGroup.GET("/clients/:clientId/invoices", trainerHandler.GetClientInvoices)
			trainerGroup.POST("/invoices/:invoiceId/pay", trainerHandler.MarkInvoicePaid)
		}
	}
}
