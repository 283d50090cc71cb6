package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/zw-fingerprint/internal/api/middleware"
	"github.com/taoyao-code/zw-fingerprint/internal/service"
)

// RegisterRoutes 注册帧调试控制台路由
func RegisterRoutes(r gin.IRouter, svc *service.Fingerprint, authCfg middleware.AuthConfig, logger *zap.Logger) {
	if r == nil || svc == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	handler := NewFrameHandler(svc, logger)

	api := r.Group("/api/v1")
	api.Use(middleware.RequestTracing())
	if authCfg.Enabled {
		api.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}

	// 离线构帧与校验
	api.POST("/frames/build", handler.BuildFrame)
	api.POST("/frames/validate", handler.ValidateFrame)
	api.POST("/frames/index-table", handler.ParseIndexTable)
	api.GET("/slots", handler.GetSlots)

	// 设备
	api.GET("/device", handler.GetDevice)
	api.PUT("/device/address", handler.SetAddress)
	api.POST("/device/commands", handler.SendCommand)

	logger.Info("console routes registered", zap.Int("endpoints", 7))
}
