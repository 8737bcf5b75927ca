package http

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dkeye/CodeRoom/internal/adapters/signal"
	"github.com/dkeye/CodeRoom/internal/app/orch"
	"github.com/dkeye/CodeRoom/internal/config"
	"github.com/dkeye/CodeRoom/internal/metrics"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	clientTokenCookie = "ct"
	sessionCookie     = "CodeRoomSessions"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a stable token. It identifies
// the browser for logging only, never a room member.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(clientTokenCookie)
		if token == "" {
			token = genClientToken()
			c.SetCookie(clientTokenCookie, token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowWebSockets = true
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, run Runner) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions(sessionCookie, store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(filepath.Join(cfg.StaticPath, "index.html"))
	})
	r.NoRoute(spaFallback(cfg.StaticPath))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Strs("cors", cfg.CORSOrigins).Msg("router setup")

	h := &API{Orch: o, Runner: run}
	api := r.Group("/api")
	{
		api.GET("/health", h.Health)
		api.GET("/rooms", h.ListRooms)
		api.GET("/rooms/:id", h.GetRoom)
		api.GET("/stats", h.Stats)
		api.GET("/whoami", h.WhoAmI)
		api.PUT("/profile", h.UpdateProfile)
		api.POST("/run", h.Run)
	}

	ctrl := signal.NewSignalWSController(o, cfg)
	api.GET("/ws/signal", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	return r
}

// spaFallback serves index.html for unknown non-API paths so client side
// routes like /room/abc survive a reload.
func spaFallback(staticPath string) gin.HandlerFunc {
	index := filepath.Join(staticPath, "index.html")
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet || strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		if _, err := os.Stat(index); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.File(index)
	}
}
