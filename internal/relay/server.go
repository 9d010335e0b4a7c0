// Package relay is a small HTTP front for an SMTP server. It speaks the
// same JSON shape the relay tiers post, so one binary can stand in for
// either the language-aware or the legacy relay.
package relay

import (
	"context"
	"crypto/subtle"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"notification-dispatch/internal/common/logger"
	commonmail "notification-dispatch/internal/common/mail"
	"notification-dispatch/internal/common/validation"
	"notification-dispatch/internal/notification/transport"
)

// Mailer is satisfied by *mail.Mailer.
type Mailer interface {
	Send(ctx context.Context, env commonmail.Envelope) (string, error)
	Verify(ctx context.Context) error
}

type Options struct {
	// APIKey, when set, must match the X-API-Key header on /send.
	APIKey      string
	DefaultFrom string
	SendTimeout time.Duration
}

type Server struct {
	mailer Mailer
	opts   Options
	log    logger.Logger
}

func NewServer(mailer Mailer, opts Options, log logger.Logger) *Server {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 15 * time.Second
	}
	return &Server{
		mailer: mailer,
		opts:   opts,
		log:    log.WithFields(map[string]interface{}{"component": "smtp-relay"}),
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), CorrelationID())

	r.GET("/health", s.Health)
	r.POST("/send", s.requireAPIKey(), s.Send)
	return r
}

// CorrelationID tags every request so relay logs line up with dispatcher logs.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Correlation-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("X-Correlation-ID", id)
		c.Header("X-Correlation-ID", id)
		c.Next()
	}
}

func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.APIKey == "" {
			c.Next()
			return
		}
		got := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.APIKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, transport.RelayResponse{
				Success: false,
				Error:   "invalid api key",
			})
			return
		}
		c.Next()
	}
}

// Health runs the SMTP handshake without sending anything.
func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.mailer.Verify(ctx); err != nil {
		s.log.Warn("SMTP handshake failed", map[string]interface{}{"error": err.Error()})
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "unhealthy",
			"error":     err.Error(),
			"timestamp": time.Now().Format(time.RFC3339),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) Send(c *gin.Context) {
	var msg transport.RelayMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, transport.RelayResponse{Error: "invalid request body"})
		return
	}
	if problem := checkMessage(msg); problem != "" {
		c.JSON(http.StatusBadRequest, transport.RelayResponse{Error: problem})
		return
	}

	env := commonmail.Envelope{
		From:    mail.Address{Name: msg.From.Name, Address: msg.From.Address},
		To:      msg.To,
		ReplyTo: msg.ReplyTo,
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
		Headers: map[string]string{},
	}
	if env.From.Address == "" {
		env.From.Address = s.opts.DefaultFrom
	}
	if msg.Language != "" {
		env.Headers["Content-Language"] = msg.Language
	}
	if msg.TemplateName != "" {
		env.Headers["X-Template-Name"] = msg.TemplateName
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.SendTimeout)
	defer cancel()

	log := s.log.WithFields(map[string]interface{}{
		"correlationId": c.GetString("X-Correlation-ID"),
		"template":      msg.TemplateName,
	})

	id, err := s.mailer.Send(ctx, env)
	if err != nil {
		log.Error("SMTP send failed", map[string]interface{}{"error": err.Error()})
		c.JSON(http.StatusBadGateway, transport.RelayResponse{Error: "smtp send failed: " + err.Error()})
		return
	}

	log.Info("Message relayed", map[string]interface{}{"messageId": id})
	c.JSON(http.StatusOK, transport.RelayResponse{Success: true, MessageID: id})
}

func checkMessage(msg transport.RelayMessage) string {
	var problems []string
	if !validation.ValidateEmail(msg.To) {
		problems = append(problems, "to must be a valid address")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		problems = append(problems, "subject is required")
	}
	if msg.HTML == "" && msg.Text == "" {
		problems = append(problems, "html or text is required")
	}
	return strings.Join(problems, "; ")
}
