package httpapi

import "github.com/gin-gonic/gin"

// RegisterRoutes wires the §6 external interface onto router.
func RegisterRoutes(router *gin.Engine, h *Handlers) {
	router.POST("/payments/execute", h.ExecutePayment)
	router.POST("/payments/refund", h.RefundPayment)

	router.GET("/risk/alerts", h.ListAlerts)
	router.POST("/risk/webhooks", h.RegisterWebhook)
	router.DELETE("/risk/webhooks", h.RemoveWebhook)
	router.GET("/risk/webhooks", h.ListWebhooks)
}
