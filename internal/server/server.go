package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	apikeydomain "github.com/egplabs/gateway/internal/apikey/domain"
	"github.com/egplabs/gateway/internal/auth"
	"github.com/egplabs/gateway/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Server struct {
	engine    *gin.Engine
	cfg       config.Config
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	authn     *auth.Authenticator
	apiKeySvc apikeydomain.Service
}

type Params struct {
	fx.In

	Engine    *gin.Engine
	Cfg       config.Config
	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Authn     *auth.Authenticator
	APIKeySvc apikeydomain.Service
}

func NewServer(p Params) *Server {
	s := &Server{
		engine:    p.Engine,
		cfg:       p.Cfg,
		db:        p.DB,
		log:       p.Log.Named("http.server"),
		genID:     p.GenID,
		authn:     p.Authn,
		apiKeySvc: p.APIKeySvc,
	}
	s.registerRoutes()
	return s
}

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	keys := v1.Group("/api-keys")
	keys.Use(s.APIKeyAuth([]string{"keys:admin"}, false))
	keys.GET("", s.ListAPIKeys)
	keys.POST("", s.CreateAPIKey)
	keys.POST("/:key_id/rotate", s.RotateAPIKey)
	keys.DELETE("/:key_id", s.RevokeAPIKey)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server started", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)
