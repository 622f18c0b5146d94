package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/loopcall/internal/adapters/signal"
	"github.com/dkeye/loopcall/internal/app"
	"github.com/dkeye/loopcall/internal/config"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// VisitMiddleware counts requests per browser session in the signed cookie
// store, which keeps the session cookie alive across visits.
func VisitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		visits, _ := s.Get("visits").(int)
		s.Set("visits", visits+1)
		if err := s.Save(); err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
		}
		c.Set("visits", visits+1)
		c.Next()
	}
}

// RateLimitMiddleware rejects clients that exceed the limiter with 429.
func RateLimitMiddleware(rl *signal.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.GetString("client_token")) {
			log.Warn().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("rate limited")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limited"})
			return
		}
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, sess app.Session) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("LoopcallSessions", store))
	r.Use(ClientTokenMiddleware())
	r.Use(VisitMiddleware())

	limiter := signal.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateWindow)
	h := &Handlers{Session: sess, OpTimeout: cfg.HTTP.OpTimeout}

	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	api.GET("/session/state", h.State)
	api.GET("/devices", h.Devices)

	control := api.Group("/session", RateLimitMiddleware(limiter))
	control.POST("/start", h.Start)
	control.POST("/restart", h.Restart)
	control.POST("/close", h.Close)
	control.POST("/tracks", h.AddTracks)
	control.DELETE("/tracks", h.RemoveTracks)
	control.POST("/camera", h.SelectCamera)
	control.POST("/renegotiate", h.Renegotiate)

	ws := signal.NewSignalWSController(sess, limiter, signal.Options{
		PingPeriod:   cfg.WS.PingPeriod,
		WriteTimeout: cfg.WS.WriteTimeout,
		ReadLimit:    cfg.WS.ReadLimit,
		OpTimeout:    cfg.HTTP.OpTimeout,
	})
	api.GET("/ws/state", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws state endpoint hit")
		ws.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
