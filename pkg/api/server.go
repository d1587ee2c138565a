// Package api provides the operator-facing HTTP admin surface:
// health/readiness probes and a websocket event tail. This is
// explicitly not the GraphQL edge an external client would use — just
// the thin operations surface a deploy or dashboard polls.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civicsync/civicsync/pkg/database"
	"github.com/civicsync/civicsync/pkg/events"
	"github.com/civicsync/civicsync/pkg/queue"
	"github.com/civicsync/civicsync/pkg/runtime"
)

// Server is the HTTP admin surface.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	db         *database.Client
	pool       *queue.Pool
	bus        *runtime.EventBus
	connMgr    *events.ConnectionManager
}

// NewServer wires a gin router exposing GET /healthz, GET /readyz, and
// GET /ws/events. db and pool may be nil (sqlite/no-queue deployments),
// in which case readiness reports ready with only the checks that are
// wired.
func NewServer(listenAddr string, db *database.Client, pool *queue.Pool, bus *runtime.EventBus) *Server {
	router := gin.Default()
	s := &Server{
		router:     router,
		db:         db,
		pool:       pool,
		bus:        bus,
		connMgr:    events.NewConnectionManager(events.DefaultWriteTimeout),
		httpServer: &http.Server{Addr: listenAddr, Handler: router},
	}

	router.GET("/healthz", s.handleHealthz)
	router.GET("/readyz", s.handleReadyz)
	router.GET("/ws/events", s.handleWS)

	return s
}

// Start begins serving in the background. Call Shutdown to stop.
func (s *Server) Start() error {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReadyz(c *gin.Context) {
	resp := gin.H{"status": "ready"}

	if s.db != nil {
		reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		dbHealth, err := database.Health(reqCtx, s.db.Pool())
		resp["database"] = dbHealth
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": dbHealth, "error": err.Error()})
			return
		}
	}

	if s.pool != nil {
		resp["workers"] = s.pool.Health()
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleWS(c *gin.Context) {
	conn, err := websocketAccept(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.connMgr.HandleConnection(c.Request.Context(), conn, s.bus)
}
