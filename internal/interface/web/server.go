package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashlocked/swapd/internal/core/application"
	log "github.com/sirupsen/logrus"
)

// Server exposes the swap engine over HTTP.
type Server struct {
	svc  *application.Service
	srv  *http.Server
	port uint32
}

func NewServer(svc *application.Service, port uint32) *Server {
	return &Server{svc: svc, port: port}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), loggerMiddleware())

	h := newHandler(s.svc)

	v1 := router.Group("/v1")
	v1.GET("/info", h.getInfo)
	v1.POST("/swaps", h.createSwap)
	v1.GET("/swaps", h.listSwaps)
	v1.GET("/swaps/:id", h.getSwap)
	v1.POST("/swaps/:id/fills", h.fillSwap)
	v1.POST("/swaps/:id/lock", h.lockSwap)
	v1.POST("/swaps/:id/claim", h.claimSwap)
	v1.POST("/swaps/:id/refund", h.refundSwap)

	return router
}

// Start serves HTTP until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Router(),
	}
	log.WithField("port", s.port).Info("http server started")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// nolint:all
	s.srv.Shutdown(ctx)
	log.Info("http server stopped")
}
