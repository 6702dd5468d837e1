// Package rest provides the Gin-based read-only API server.
package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Travis-L-R/meshinfo/internal/mesh"
	"github.com/Travis-L-R/meshinfo/internal/render"
)

// Server exposes the Store over HTTP and serves the rendered pages.
// It never mutates the Store.
type Server struct {
	engine *gin.Engine
	store  *mesh.Store
	logger *zap.Logger
}

// New creates a REST Server. pagesDir is the rendered-output directory
// served at the site root.
func New(store *mesh.Store, pagesDir string, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine: engine,
		store:  store,
		logger: logger,
	}
	s.registerRoutes(pagesDir)
	return s
}

// Engine returns the underlying handler for embedding in an http.Server.
func (s *Server) Engine() http.Handler {
	return s.engine
}

// Start starts the REST server on addr.
func (s *Server) Start(addr string) error {
	s.logger.Info("REST API listening", zap.String("addr", addr))
	return s.engine.Run(addr)
}

func (s *Server) registerRoutes(pagesDir string) {
	api := s.engine.Group("/api")
	{
		api.GET("/stats", s.getStats)
		api.GET("/nodes", s.getNodes)
		api.GET("/nodes/:id", s.getNode)
		api.GET("/chat", s.getChat)
	}

	// Rendered pages at the site root.
	if pagesDir != "" {
		s.engine.NoRoute(gin.WrapH(http.FileServer(http.Dir(pagesDir))))
	}
}

func (s *Server) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, render.BuildStats(s.store.Snapshot()))
}

func (s *Server) getNodes(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Snapshot().Nodes)
}

func (s *Server) getNode(c *gin.Context) {
	id, ok := mesh.CanonicalID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid node id"})
		return
	}
	node, found := s.store.Node(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "node not found"})
		return
	}
	c.JSON(http.StatusOK, node)
}

func (s *Server) getChat(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Snapshot().Chat)
}
