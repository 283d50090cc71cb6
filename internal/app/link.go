package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/zw-fingerprint/internal/config"
	"github.com/taoyao-code/zw-fingerprint/internal/link"
	"github.com/taoyao-code/zw-fingerprint/internal/metrics"
	"github.com/taoyao-code/zw-fingerprint/internal/protocol/zw"
)

// NewCodec 按配置选择型号与设备地址
func NewCodec(cfg cfgpkg.DeviceConfig, log *zap.Logger) (*zw.Codec, error) {
	table, err := zw.LoadVariants(cfg.ProfilesFile)
	if err != nil {
		return nil, err
	}
	variant, err := zw.LookupVariant(table, cfg.Variant)
	if err != nil {
		return nil, err
	}
	addr := zw.BroadcastAddress
	if cfg.Address != "" {
		if addr, err = zw.ParseAddress(cfg.Address); err != nil {
			return nil, err
		}
	}
	log.Info("codec initialized",
		zap.String("variant", variant.Name),
		zap.Int("capacity", variant.Capacity),
		zap.String("address", addr.String()))
	return zw.NewCodec(variant, addr), nil
}

// OpenLink 打开串口链路；未启用时返回 nil
func OpenLink(ctx context.Context, cfg cfgpkg.LinkConfig, codec *zw.Codec, appm *metrics.AppMetrics, log *zap.Logger) (*link.Client, error) {
	if !cfg.Enabled {
		log.Info("device link is disabled, console runs offline")
		return nil, nil
	}
	conn, err := link.Dial(ctx, cfg.Target, cfg.DialTimeout)
	if err != nil {
		return nil, err
	}
	client := link.NewClient(conn, codec, link.Options{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RatePerSec:   cfg.RatePerSec,
		Burst:        cfg.Burst,
		MaxFrameLen:  cfg.MaxFrameLen,
		StageTimeout: cfg.StageTimeout,

		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown,
		Logger:           log,
		Metrics:          appm,
	})
	log.Info("device link opened", zap.String("target", cfg.Target))
	return client, nil
}

// Handshake 启动握手；失败只告警，模块可能尚未上电
func Handshake(ctx context.Context, client *link.Client, timeout time.Duration, log *zap.Logger) {
	if client == nil {
		return
	}
	enc, err := client.Codec().Build(zw.Handshake{})
	if err != nil {
		log.Warn("handshake not supported by variant", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ex, err := client.Exchange(ctx, enc)
	if err != nil {
		log.Warn("device handshake failed", zap.Error(err))
		return
	}
	if final := ex.Final(); final != nil && final.Confirm.OK() {
		log.Info("device handshake ok", zap.Duration("elapsed", ex.Elapsed))
		return
	}
	log.Warn("device handshake rejected", zap.Int("replies", len(ex.Replies)))
}
