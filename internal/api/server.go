// Package api exposes the sync engine over HTTP.
//
// The server sits behind an authenticating proxy which sets the local
// account id in the X-Account-ID header. At most one sync pass runs per
// account at a time; a second request gets 409 Conflict.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/njoerd114/fedisync/internal/mastodon"
	"github.com/njoerd114/fedisync/internal/model"
	syncp "github.com/njoerd114/fedisync/internal/sync"
)

// AccountHeader carries the authenticated local account id.
const AccountHeader = "X-Account-ID"

const (
	ctxAccountID    = "account_id"
	shutdownTimeout = 5 * time.Second
)

// Syncer is the engine surface used by the HTTP handlers. Implemented by
// [syncp.Engine].
type Syncer interface {
	SyncProfile(ctx context.Context, accountID uuid.UUID) (syncp.Report, error)
	SyncTimeline(ctx context.Context, accountID uuid.UUID, q syncp.TimelineQuery) (syncp.Report, error)
	SyncNotifications(ctx context.Context, accountID uuid.UUID, limit int) (syncp.Report, error)
	Link(ctx context.Context, accountID uuid.UUID, creds mastodon.Credentials) (*model.Account, error)

	Favourite(ctx context.Context, accountID, postID uuid.UUID) error
	Unfavourite(ctx context.Context, accountID, postID uuid.UUID) error
	Follow(ctx context.Context, accountID, targetID uuid.UUID) error
	Unfollow(ctx context.Context, accountID, targetID uuid.UUID) error
}

// Options configures a Server.
type Options struct {
	// RetryAttempts bounds retries of a sync pass that failed transiently.
	RetryAttempts int
}

// Server routes HTTP requests to the sync engine.
type Server struct {
	engine Syncer
	opts   Options
	log    *slog.Logger
	router *gin.Engine

	mu   sync.Mutex
	busy map[uuid.UUID]bool
}

// NewServer creates a Server.
func NewServer(engine Syncer, opts Options, logger *slog.Logger) *Server {
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = mastodon.DefaultAttempts
	}
	s := &Server{
		engine: engine,
		opts:   opts,
		log:    logger,
		busy:   make(map[uuid.UUID]bool),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1", s.requireAccount())
	v1.POST("/link", s.handleLink)
	v1.POST("/sync/profile", s.handleSyncProfile)
	v1.POST("/sync/timeline", s.handleSyncTimeline)
	v1.POST("/sync/notifications", s.handleSyncNotifications)

	v1.POST("/posts/:id/favourite", s.handleAction("favourite", engine.Favourite))
	v1.DELETE("/posts/:id/favourite", s.handleAction("unfavourite", engine.Unfavourite))
	v1.POST("/accounts/:id/follow", s.handleAction("follow", engine.Follow))
	v1.DELETE("/accounts/:id/follow", s.handleAction("unfollow", engine.Unfollow))

	s.router = r
	return s
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

// --- handlers ----------------------------------------------------------------

type linkRequest struct {
	InstanceURL string `json:"instance_url" binding:"required,url"`
	AccessToken string `json:"access_token" binding:"required"`
}

func (s *Server) handleLink(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "instance_url and access_token are required"})
		return
	}

	acct, err := s.engine.Link(c.Request.Context(), accountID(c), mastodon.Credentials{
		InstanceURL: req.InstanceURL,
		AccessToken: req.AccessToken,
	})
	if err != nil {
		s.writeError(c, "link", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":                true,
		"account_id":        acct.ID,
		"remote_account_id": acct.RemoteAccountID,
	})
}

func (s *Server) handleSyncProfile(c *gin.Context) {
	s.runSync(c, func(ctx context.Context, id uuid.UUID) (syncp.Report, error) {
		return s.engine.SyncProfile(ctx, id)
	})
}

func (s *Server) handleSyncTimeline(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	q := syncp.TimelineQuery{
		Timeline: syncp.Timeline(c.Query("timeline")),
		Tag:      c.Query("tag"),
		Limit:    limit,
		MaxID:    c.Query("max_id"),
	}
	s.runSync(c, func(ctx context.Context, id uuid.UUID) (syncp.Report, error) {
		return s.engine.SyncTimeline(ctx, id, q)
	})
}

func (s *Server) handleSyncNotifications(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	s.runSync(c, func(ctx context.Context, id uuid.UUID) (syncp.Report, error) {
		return s.engine.SyncNotifications(ctx, id, limit)
	})
}

// runSync holds the per-account slot for the duration of pass and retries it
// on transient remote failures.
func (s *Server) runSync(c *gin.Context, pass func(context.Context, uuid.UUID) (syncp.Report, error)) {
	id := accountID(c)
	if !s.acquire(id) {
		c.JSON(http.StatusConflict, gin.H{"error": "sync already in progress"})
		return
	}
	defer s.release(id)

	ctx := c.Request.Context()
	var rep syncp.Report
	err := mastodon.Retry(ctx, s.opts.RetryAttempts, func() error {
		var err error
		rep, err = pass(ctx, id)
		return err
	})
	if err != nil {
		s.writeError(c, "sync", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":          rep.Failed == 0,
		"kind":        rep.Kind,
		"processed":   rep.Processed,
		"failed":      rep.Failed,
		"next_max_id": rep.NextMaxID,
	})
}

// handleAction runs a single remote interaction on the local post or account
// named by the :id path parameter. Mutations are not retried.
func (s *Server) handleAction(op string, act func(ctx context.Context, accountID, targetID uuid.UUID) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		target, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		if err := act(c.Request.Context(), accountID(c), target); err != nil {
			s.writeError(c, op, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// --- middleware --------------------------------------------------------------

// requireAccount rejects requests without a valid account header.
func (s *Server) requireAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.GetHeader(AccountHeader))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid account"})
			return
		}
		c.Set(ctxAccountID, id)
		c.Next()
	}
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// --- helpers -----------------------------------------------------------------

func accountID(c *gin.Context) uuid.UUID {
	v, _ := c.Get(ctxAccountID)
	id, _ := v.(uuid.UUID)
	return id
}

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return 0, false
	}
	return n, true
}

func (s *Server) acquire(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy[id] {
		return false
	}
	s.busy[id] = true
	return true
}

func (s *Server) release(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.busy, id)
}

// writeError maps an engine error to a status and a generic message. The
// underlying error is only logged.
func (s *Server) writeError(c *gin.Context, op string, err error) {
	status, msg := classify(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.log.Log(c.Request.Context(), level, "request failed",
		"operation", op,
		"account_id", accountID(c),
		"status", status,
		"error", err,
	)
	c.JSON(status, gin.H{"error": msg})
}

func classify(err error) (int, string) {
	var apiErr *mastodon.APIError
	switch {
	case errors.Is(err, syncp.ErrAccountNotFound):
		return http.StatusNotFound, "account not found"
	case errors.Is(err, syncp.ErrPostNotFound):
		return http.StatusNotFound, "post not found"
	case errors.Is(err, syncp.ErrNotFederated):
		return http.StatusConflict, "target not federated"
	case errors.Is(err, syncp.ErrNotConnected):
		return http.StatusConflict, "account not connected"
	case errors.Is(err, syncp.ErrAlreadyLinked):
		return http.StatusConflict, "remote account already linked"
	case errors.Is(err, syncp.ErrUnknownTimeline):
		return http.StatusBadRequest, "unknown timeline"
	case errors.Is(err, mastodon.ErrMissingCredentials):
		return http.StatusBadRequest, "missing credentials"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request cancelled"
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden {
			return http.StatusBadGateway, "remote server rejected credentials"
		}
		return http.StatusBadGateway, "remote server error"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
