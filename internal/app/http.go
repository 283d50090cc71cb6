package app

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/zw-fingerprint/internal/config"
	"github.com/taoyao-code/zw-fingerprint/internal/httpserver"
)

// NewHTTPServer 根据配置创建 HTTP 服务器
func NewHTTPServer(cfg cfgpkg.HTTPConfig, metricsPath string, metricsHandler http.Handler, readyFn func(ctx context.Context) bool, log *zap.Logger) *httpserver.Server {
	return httpserver.New(cfg, metricsPath, metricsHandler, readyFn, log)
}
