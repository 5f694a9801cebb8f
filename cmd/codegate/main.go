// Command codegate runs the LLM proxy gateway.
package main

import (
	"context"
	"encoding/hex"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/NodeNestor/CodeGate/common/config"
	"github.com/NodeNestor/CodeGate/common/logger"
	"github.com/NodeNestor/CodeGate/controller"
	"github.com/NodeNestor/CodeGate/guardrail"
	"github.com/NodeNestor/CodeGate/model"
	"github.com/NodeNestor/CodeGate/relay/limiter"
	"github.com/NodeNestor/CodeGate/relay/oauth"
	"github.com/NodeNestor/CodeGate/relay/route"
	"github.com/NodeNestor/CodeGate/router"
)

func main() {
	_ = godotenv.Load()
	if config.DebugEnabled {
		logger.SetDebug()
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := model.InitDB(); err != nil {
		logger.Logger.Error("init database", zap.Error(err))
		os.Exit(1)
	}
	defer model.CloseDB()
	if err := model.InitCache(ctx); err != nil {
		logger.Logger.Warn("init cache", zap.Error(err))
	}

	engine, err := buildGuardrailEngine()
	if err != nil {
		logger.Logger.Error("init guardrail engine", zap.Error(err))
		os.Exit(1)
	}
	engine.SetAudit(func(category guardrail.Category, replacement string) {
		model.RecordPrivacyMappingsAsync([]*model.PrivacyMapping{{
			Category:    string(category),
			Replacement: replacement,
		}})
	})

	accountLimiter := limiter.NewRateLimiter()
	tenantLimiter := limiter.NewRateLimiter()
	cooldown := limiter.NewCooldownManager()
	resolver := route.NewResolver(route.DBStore{}, accountLimiter)
	relay := controller.NewRelay(resolver, accountLimiter, cooldown, oauth.NewTokenSource(), engine)

	web := gin.New()
	web.Use(gin.Recovery())
	web.Use(gmw.NewLoggerMiddleware(
		gmw.WithLogger(logger.Logger.Named("gin")),
	))
	router.SetRouter(web, relay, tenantLimiter)

	srv := &http.Server{
		Addr:    ":" + config.Port,
		Handler: web,
	}
	go func() {
		logger.Logger.Info("gateway listening", zap.String("port", config.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Error("serve", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Warn("shutdown", zap.Error(err))
	}
}

// buildGuardrailEngine resolves the guardrail key: environment wins, then the
// persisted setting, else a fresh key is generated and stored so restarts
// keep reversibility.
func buildGuardrailEngine() (*guardrail.Engine, error) {
	key, err := resolveGuardrailKey()
	if err != nil {
		return nil, err
	}
	return guardrail.New(key, config.ReverseMapCapacity)
}

func resolveGuardrailKey() ([guardrail.KeySize]byte, error) {
	var zero [guardrail.KeySize]byte

	if config.GuardrailKeyHex != "" {
		key, err := guardrail.ParseKey(config.GuardrailKeyHex)
		if err == nil {
			return key, nil
		}
		// accept a raw key of sufficient length as a convenience
		if raw := []byte(config.GuardrailKeyHex); len(raw) >= guardrail.KeySize {
			copy(zero[:], raw)
			return zero, nil
		}
		return zero, errors.Wrap(err, "parse GUARDRAIL_KEY")
	}

	stored, err := model.GetSetting(model.SettingGuardrailKey)
	if err != nil {
		return zero, err
	}
	if stored != "" {
		return guardrail.ParseKey(stored)
	}

	key, err := guardrail.GenerateKey()
	if err != nil {
		return zero, err
	}
	if err = model.PutSetting(model.SettingGuardrailKey, hex.EncodeToString(key[:])); err != nil {
		return zero, err
	}
	return key, nil
}
