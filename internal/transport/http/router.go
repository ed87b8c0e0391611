package http

import (
	"github.com/gin-gonic/gin"
	"github.com/hyopark/stock_master_bridge/internal/transport/http/middleware"
)

func NewRouter(ctrl *Controller) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	router.GET("/health", ctrl.Health)

	api := router.Group("/api")
	{
		api.GET("/stocks", ctrl.ListStocks)
		api.GET("/stocks/stats", ctrl.GetStats)
		api.GET("/stocks/:code", ctrl.GetStock)
		api.POST("/internal/stocks:upsert", ctrl.UpsertStocks)
	}

	return router
}
