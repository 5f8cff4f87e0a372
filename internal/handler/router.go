package handler

import (
	"time"

	"go-gin-lucky-draw/config"
	"go-gin-lucky-draw/internal/locale"
	"go-gin-lucky-draw/internal/service"
	"go-gin-lucky-draw/pkg/logger"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const sessionMaxAge = 30 * time.Minute

// NewRouter 組裝 gin engine 與所有 middleware
func NewRouter(cfg *config.Config, svc service.LuckyDrawService, translator *locale.Translator) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	r.Use(accessLog())
	// QR code 已是壓縮過的 PNG
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedExtensions([]string{".png"})))

	store := cookie.NewStore([]byte(cfg.Session.Secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(sessionMaxAge.Seconds()),
		HttpOnly: true,
	})
	r.Use(sessions.Sessions(cfg.Session.Name, store))

	NewLuckyDrawHandler(svc, translator).RegisterRoutes(r)
	return r
}

func accessLog() gin.HandlerFunc {
	log := logger.WithComponent("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= 500 {
			log.Warn("request", fields...)
			return
		}
		log.Debug("request", fields...)
	}
}
