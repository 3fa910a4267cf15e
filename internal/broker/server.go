// HTTP server: wires the token endpoint, the WebSocket upgrade gate, and
// the optional encryption public-key endpoint. Grounded on the teacher's
// gin-based handler wiring (internal/handlers), trimmed to the three
// endpoints this broker exposes.
package broker

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/robfig/cron/v3"

	"github.com/sessionbroker/broker/internal/apierr"
	"github.com/sessionbroker/broker/internal/audit"
	"github.com/sessionbroker/broker/internal/auth"
	"github.com/sessionbroker/broker/internal/config"
	"github.com/sessionbroker/broker/internal/envelope"
	"github.com/sessionbroker/broker/internal/logger"
	"github.com/sessionbroker/broker/internal/registry"
)

const upgradeTimeout = 5 * time.Second

// Server wires the broker's HTTP surface: token issuance, WebSocket
// upgrade, and the (unwired-to-routing) encryption public key.
type Server struct {
	cfg        config.Config
	tokens     *auth.TokenService
	registry   *registry.Registry
	dispatcher *Dispatcher
	audit      *audit.Log
	keys       *envelope.KeyPair

	upgrader websocket.Upgrader
	engine   *gin.Engine
	cronJob  *cron.Cron
}

// NewServer constructs the broker's HTTP server and registers its routes.
func NewServer(cfg config.Config, tokens *auth.TokenService, reg *registry.Registry, disp *Dispatcher, auditLog *audit.Log, keys *envelope.KeyPair) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		cfg:        cfg,
		tokens:     tokens,
		registry:   reg,
		dispatcher: disp,
		audit:      auditLog,
		keys:       keys,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: upgradeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
		engine: engine,
	}

	engine.POST("/auth/token", s.handleIssueToken)
	engine.GET("/ws", s.handleUpgrade)
	engine.GET("/enc/public-key", s.handlePublicKey)

	return s
}

// StartStatsLog schedules a periodic registry-size log line on spec,
// expression spec — grounded on the teacher's periodic broadcastMetrics
// ticker, generalized to robfig/cron so the schedule is operator-tunable.
func (s *Server) StartStatsLog(spec string) error {
	s.cronJob = cron.New()
	_, err := s.cronJob.AddFunc(spec, func() {
		stats := s.registry.Stats()
		logger.WebSocket().Info().
			Int("topics", stats.Topics).
			Int("connections", stats.Connections).
			Msg("registry stats")
	})
	if err != nil {
		return err
	}
	s.cronJob.Start()
	return nil
}

// StopStatsLog stops the periodic stats job, if running.
func (s *Server) StopStatsLog() {
	if s.cronJob != nil {
		s.cronJob.Stop()
	}
}

// Handler returns the http.Handler to pass to http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

type issueTokenRequest struct {
	Username  string `json:"username" binding:"required"`
	Password  string `json:"password" binding:"required"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleIssueToken(c *gin.Context) {
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := apierr.BadRequest("invalid request body")
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	token, ttl, ok, err := s.tokens.Issue(c.Request.Context(), req.Username, req.Password, req.SessionID)
	if err != nil {
		appErr := apierr.InternalServer("failed to issue token")
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}
	if !ok {
		if s.audit.IsEnabled() {
			s.audit.Record(c.Request.Context(), audit.EventTokenRejected, req.Username, req.SessionID, 0, "invalid credentials")
		}
		appErr := apierr.InvalidCredentials()
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	if s.audit.IsEnabled() {
		s.audit.Record(c.Request.Context(), audit.EventTokenIssued, req.Username, req.SessionID, 0, "")
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "expires_in": ttl})
}

func (s *Server) handleUpgrade(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), upgradeTimeout)
	defer cancel()

	tokenParam := c.Query("token")

	var subject, session string
	if tokenParam != "" {
		claims, err := s.tokens.Verify(ctx, tokenParam)
		if err != nil {
			logger.Security().Warn().Err(err).Msg("rejecting ws upgrade: invalid token")
			if s.audit.IsEnabled() {
				s.audit.Record(ctx, audit.EventTokenRejected, "", "", 0, err.Error())
			}
			var appErr *apierr.AppError
			if errors.Is(err, auth.ErrExpired) {
				appErr = apierr.TokenExpired()
			} else {
				appErr = apierr.TokenInvalid(err)
			}
			c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
			return
		}
		subject = claims.Subject
		session = claims.Session
	} else if s.cfg.RequireToken {
		logger.Security().Warn().Msg("rejecting anonymous ws upgrade: token required")
		appErr := apierr.Unauthorized("token required")
		c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WebSocket().Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	connection := NewConnection(conn, s.registry, s.dispatcher, subject, session, s.cfg.MailboxCapacity)

	if s.audit.IsEnabled() {
		s.audit.Record(context.Background(), audit.EventConnectionOpen, subject, session, connection.ID(), "")
	}

	go func() {
		connection.Run(context.Background())
		if s.audit.IsEnabled() {
			s.audit.Record(context.Background(), audit.EventConnectionClose, subject, session, connection.ID(), "")
		}
	}()
}

func (s *Server) handlePublicKey(c *gin.Context) {
	if s.keys == nil {
		appErr := apierr.New(apierr.ErrCodeInternalServer, "encryption not configured")
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": s.keys.PublicKeyBase64()})
}
