package httpapi

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AntonStoeckl/circulation-core/catalog"
	"github.com/AntonStoeckl/circulation-core/circulation"
	"github.com/AntonStoeckl/circulation-core/inventory"
	"github.com/AntonStoeckl/circulation-core/ledger"
	"github.com/AntonStoeckl/circulation-core/shell"
	"github.com/AntonStoeckl/circulation-core/tenancy"
)

// HeaderUserID carries the caller identity established by the upstream identity provider.
const HeaderUserID = "X-User-ID"

const (
	contextKeyUserID = "circulation.user_id"

	logMsgRequest      = "request handled"
	logMsgRequestError = "request failed"

	logAttrMethod     = "method"
	logAttrPath       = "path"
	logAttrStatus     = "status"
	logAttrDurationMS = "duration_ms"
	logAttrError      = "error"
)

var (
	// ErrNilLogger is returned when a nil logger is provided to WithLogger.
	ErrNilLogger = errors.New("logger must not be nil")

	// ErrMissingService is returned when Services lacks one of the services.
	ErrMissingService = errors.New("all services must be set")
)

// Services are the application services the router exposes.
type Services struct {
	Circulation *circulation.Engine
	Inventory   *inventory.Registry
	Ledger      *ledger.Ledger
	Catalog     *catalog.Gateway
	Tenancy     *tenancy.Service
}

type server struct {
	services         Services
	logger           shell.Logger
	contextualLogger shell.ContextualLogger
	allowedOrigins   []string
	requestTimeout   time.Duration
}

// Option configures the router.
type Option func(*server) error

// WithLogger sets the logger for request outcomes.
func WithLogger(logger shell.Logger) Option {
	return func(s *server) error {
		if logger == nil {
			return ErrNilLogger
		}

		s.logger = logger

		return nil
	}
}

// WithContextualLogger sets a context-aware logger, preferred over WithLogger.
func WithContextualLogger(logger shell.ContextualLogger) Option {
	return func(s *server) error {
		if logger == nil {
			return ErrNilLogger
		}

		s.contextualLogger = logger

		return nil
	}
}

// WithAllowedOrigins enables CORS for the given origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *server) error {
		s.allowedOrigins = origins
		return nil
	}
}

// WithRequestTimeout bounds every request context. Zero disables the bound.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(s *server) error {
		s.requestTimeout = timeout
		return nil
	}
}

// NewRouter builds the gin engine serving the circulation API under /api/v1.
func NewRouter(services Services, opts ...Option) (*gin.Engine, error) {
	if services.Circulation == nil || services.Inventory == nil || services.Ledger == nil ||
		services.Catalog == nil || services.Tenancy == nil {
		return nil, ErrMissingService
	}

	s := &server{services: services}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	if err := r.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	if len(s.allowedOrigins) > 0 {
		r.Use(cors.New(s.corsConfig()))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1", s.withTimeout())

	catalogRoutes := api.Group("/catalog")
	catalogRoutes.GET("/editions", s.listEditions)
	catalogRoutes.GET("/editions/:edition_id", s.getEdition)
	catalogRoutes.GET("/isbn/:isbn", s.findEditionByISBN)
	catalogRoutes.GET("/authors/:author_id", s.getAuthor)
	catalogRoutes.PUT("/editions", s.requireUser(), s.saveEdition)
	catalogRoutes.PUT("/authors", s.requireUser(), s.saveAuthor)

	authed := api.Group("", s.requireUser())
	authed.POST("/libraries", s.createLibrary)

	library := authed.Group("/libraries/:library_id")
	registerTenancyRoutes(library, s)
	registerInventoryRoutes(library, s)
	registerCirculationRoutes(library, s)
	registerLedgerRoutes(library, s)

	return r, nil
}

func (s *server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", HeaderUserID},
		ExposeHeaders: []string{"Content-Length", "Location", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}

	// a wildcard cannot be combined with credentials
	if slices.Contains(s.allowedOrigins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}

	cfg.AllowOrigins = s.allowedOrigins
	cfg.AllowCredentials = true

	return cfg
}

// requireUser resolves the caller from HeaderUserID. Missing identities are unauthenticated,
// malformed ones are bad requests.
func (s *server) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderUserID)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(CodeUnauthenticated, "missing "+HeaderUserID+" header"))
			return
		}

		userID, err := uuid.Parse(raw)
		if err != nil || userID == uuid.Nil {
			s.badRequest(c, "invalid "+HeaderUserID+" header")
			return
		}

		c.Set(contextKeyUserID, userID)
		c.Next()
	}
}

func actingUser(c *gin.Context) uuid.UUID {
	if userID, ok := c.Get(contextKeyUserID); ok {
		if id, ok := userID.(uuid.UUID); ok {
			return id
		}
	}

	return uuid.Nil
}

func (s *server) withTimeout() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.requestTimeout <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		args := []any{
			logAttrMethod, c.Request.Method,
			logAttrPath, c.FullPath(),
			logAttrStatus, c.Writer.Status(),
			logAttrDurationMS, time.Since(start).Milliseconds(),
		}

		switch {
		case s.contextualLogger != nil:
			s.contextualLogger.DebugContext(c.Request.Context(), logMsgRequest, args...)
		case s.logger != nil:
			s.logger.Debug(logMsgRequest, args...)
		}
	}
}

func (s *server) logError(c *gin.Context, err error) {
	args := []any{
		logAttrMethod, c.Request.Method,
		logAttrPath, c.FullPath(),
		logAttrError, err.Error(),
	}

	switch {
	case s.contextualLogger != nil:
		s.contextualLogger.ErrorContext(c.Request.Context(), logMsgRequestError, args...)
	case s.logger != nil:
		s.logger.Error(logMsgRequestError, args...)
	}
}

// pathUUID parses a uuid path parameter and answers 400 when it is malformed.
func (s *server) pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		s.badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}

	return id, true
}

// bindJSON decodes the body into req and answers 400 on failure.
func (s *server) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		s.badRequest(c, "invalid json or missing required fields")
		return false
	}

	return true
}
