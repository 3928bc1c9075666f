package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/coinchat-client/internal/core"
)

const readHeaderTimeout = 5 * time.Second

// StatusSource reports a chat client snapshot; *core.Client satisfies it.
type StatusSource interface {
	Status() core.Status
}

// NewServer builds the status HTTP server listening on addr.
func NewServer(addr string, source StatusSource, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	h := NewStatusHandlers(source, logger)
	router.GET("/health", healthHandler)
	router.GET("/status", h.Status)

	return &stdhttp.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

// StatusHandlers serves client state.
type StatusHandlers struct {
	source StatusSource
	log    *zerolog.Logger
}

// NewStatusHandlers creates status handlers.
func NewStatusHandlers(source StatusSource, logger *zerolog.Logger) *StatusHandlers {
	return &StatusHandlers{source: source, log: logger}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Status reports the client snapshot. A client that is not connected answers
// 503 so the endpoint doubles as a readiness probe.
// GET /status
func (h *StatusHandlers) Status(c *gin.Context) {
	if h.source == nil {
		c.JSON(stdhttp.StatusServiceUnavailable, ErrorResponse{Error: "no client"})
		return
	}

	st := h.source.Status()
	code := stdhttp.StatusOK
	if st.State != core.StateConnected.String() {
		code = stdhttp.StatusServiceUnavailable
	}
	c.JSON(code, st)
}
