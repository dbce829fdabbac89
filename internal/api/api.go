// Package api exposes the dashboard pipeline over HTTP.
package api

import (
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/plotline-ai/plotline/internal/pipeline"
	"github.com/plotline-ai/plotline/internal/render"
	"github.com/plotline-ai/plotline/internal/session"
)

// Server holds the shared state behind the HTTP handlers.
type Server struct {
	store *session.Store
	opts  pipeline.Options
}

// NewServer builds a server around a session store and pipeline options.
func NewServer(store *session.Store, opts pipeline.Options) *Server {
	return &Server{store: store, opts: opts}
}

// Router assembles the gin engine with CORS and recovery middleware.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}))

	r.GET("/health", s.health)
	r.POST("/datasets", s.createDataset)
	r.GET("/sessions", s.listSessions)
	r.DELETE("/sessions/:id", s.deleteSession)
	r.POST("/dashboard", s.dashboard)
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// createDataset accepts either a multipart upload under the "file" field or
// a JSON body naming a server-local path. The dataset is loaded, cleaned,
// and classified, and a new session is opened around it.
func (s *Server) createDataset(c *gin.Context) {
	path, err := s.datasetPath(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ds, schema, profiles, err := pipeline.Prepare(path)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	id := s.store.Create(path, ds, schema, profiles)
	sess, err := s.store.Get(id)
	if err == nil {
		pipeline.RefineSchema(c.Request.Context(), sess, s.opts.LLM)
		schema = sess.Schema
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id": id,
		"rows":       ds.NumRows(),
		"schema":     schema,
		"profiles":   profiles,
	})
}

func (s *Server) datasetPath(c *gin.Context) (string, error) {
	if file, err := c.FormFile("file"); err == nil {
		dst := filepath.Join(os.TempDir(), filepath.Base(file.Filename))
		if err := c.SaveUploadedFile(file, dst); err != nil {
			return "", err
		}
		return dst, nil
	}
	var body struct {
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		return "", err
	}
	return body.Path, nil
}

func (s *Server) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.store.List()})
}

func (s *Server) deleteSession(c *gin.Context) {
	s.store.Delete(c.Param("id"))
	c.Status(http.StatusNoContent)
}

// dashboard runs the full pipeline for one conversational turn.
func (s *Server) dashboard(c *gin.Context) {
	var body struct {
		SessionID string `json:"session_id" binding:"required"`
		Prompt    string `json:"prompt"`
		Plan      string `json:"plan"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := s.store.Get(body.SessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	opts := s.opts
	opts.PlanJSON = body.Plan
	report, err := pipeline.Run(c.Request.Context(), sess, body.Prompt, opts)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	summary := render.RenderMarkdown(report)
	s.store.RecordTurn(body.SessionID, body.Prompt, summary, report.Plan.Charts)

	c.JSON(http.StatusOK, gin.H{
		"report":  report,
		"summary": summary,
	})
}

// Run starts the HTTP server on addr and blocks until it exits.
func (s *Server) Run(addr string) error {
	log.Printf("api: listening on %s", addr)
	return s.Router().Run(addr)
}
