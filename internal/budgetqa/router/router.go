// Package router provides budget assistant routing.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/budgetqa/internal/budgetqa/handler"
	"github.com/kart-io/budgetqa/pkg/validator"
)

// Register registers the budget assistant routes.
func Register(engine *gin.Engine, h *handler.Handler) {
	logger.Info("Registering budgetqa routes...")
	validator.InstallGinValidator()

	engine.GET("/health", h.Health)
	engine.GET("/metrics", h.Metrics)

	v1 := engine.Group("/api/v1")
	{
		v1.POST("/chat", h.Chat)
		v1.GET("/search", h.Search)

		v1.POST("/calculate-tax", h.CalculateTax)
		v1.POST("/compare-regimes", h.CompareRegimes)
		v1.GET("/tax-slabs", h.TaxSlabs)
		v1.GET("/allocations", h.Allocations)
	}

	logger.Info("HTTP routes registered")
}
