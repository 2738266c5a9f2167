package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rahul/kubeask/internal/agent"
	"github.com/rahul/kubeask/internal/intent"
	"github.com/rahul/kubeask/internal/observability"
	"github.com/rahul/kubeask/internal/planner"
	"go.uber.org/zap"
)

// HTTPOptions configures the HTTP front door.
type HTTPOptions struct {
	Addr           string
	AllowedOrigins []string
	// Debug adds the error chain to 500 responses.
	Debug bool
	// PlannerName is reported by /healthz.
	PlannerName string
}

// HTTPServer exposes a Brain over JSON.
type HTTPServer struct {
	echo    *echo.Echo
	brain   agent.Brain
	tracker *observability.Tracker
	logger  *observability.Logger
	opts    HTTPOptions
}

type askRequest struct {
	Prompt    string `json:"prompt"`
	UserInput string `json:"user_input"`
	Namespace string `json:"namespace"`
}

type singleShotResponse struct {
	Intent *intent.Intent `json:"intent"`
	Result *intent.Result `json:"result"`
}

type multiStepResponse struct {
	Intent      string        `json:"intent"`
	Steps       []intent.Step `json:"steps"`
	FinalOutput string        `json:"final_output,omitempty"`
	Converged   bool          `json:"converged"`
}

type errorResponse struct {
	Error string `json:"error"`
	Trace string `json:"trace,omitempty"`
}

func NewHTTPServer(brain agent.Brain, opts HTTPOptions, tracker *observability.Tracker, logger *observability.Logger) *HTTPServer {
	if logger == nil {
		logger = observability.NewNop()
	}
	if tracker == nil {
		tracker = observability.NewTracker()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &HTTPServer{echo: e, brain: brain, tracker: tracker, logger: logger, opts: opts}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(observability.WithRequestID(req.Context(), id)))
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: opts.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderXRequestID},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Zap().Info("http request",
				zap.String("request_id", v.RequestID),
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	}))

	e.POST("/ask", s.handleAsk)
	e.POST("/api/ask", s.handleAsk)
	e.GET("/healthz", s.handleHealth)

	return s
}

// Handler returns the router, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Zap().Info("http server listening", zap.String("addr", s.opts.Addr))
	if err := s.echo.Start(s.opts.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *HTTPServer) handleAsk(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = strings.TrimSpace(req.UserInput)
	}
	if prompt == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "prompt is required"})
	}

	done := s.tracker.Begin()
	defer done()

	answer, err := s.brain.Think(c.Request().Context(), agent.Request{
		Prompt:    prompt,
		Namespace: strings.TrimSpace(req.Namespace),
	})
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(http.StatusOK, Response(prompt, answer))
}

// Response is the JSON body for an answer: intent and result in single-shot
// mode, the step history in multi-step mode.
func Response(prompt string, answer *agent.Answer) any {
	if answer.Mode == agent.ModeSingleShot {
		return singleShotResponse{Intent: answer.Intent, Result: answer.Result}
	}
	resp := multiStepResponse{Intent: prompt}
	if answer.State != nil {
		resp.Intent = answer.State.Intent
		resp.Steps = answer.State.Steps
		resp.FinalOutput = answer.State.FinalOutput
	}
	resp.Converged = answer.Converged()
	return resp
}

func (s *HTTPServer) fail(c echo.Context, err error) error {
	var pe *planner.PlannerError
	switch {
	case errors.Is(err, agent.ErrPlannerDisabled):
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	case errors.As(err, &pe):
		return c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
	}

	s.logger.Zap().Error("request failed",
		zap.String("request_id", observability.RequestID(c.Request().Context())),
		zap.Error(err),
	)
	resp := errorResponse{Error: err.Error()}
	if s.opts.Debug {
		resp.Trace = errorChain(err)
	}
	return c.JSON(http.StatusInternalServerError, resp)
}

func (s *HTTPServer) handleHealth(c echo.Context) error {
	status := s.tracker.Snapshot()
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "ok",
		"mode":      s.brain.Mode(),
		"planner":   s.opts.PlannerName,
		"in_flight": status.InFlight,
		"uptime":    status.Uptime,
	})
}

// errorChain lists the messages of err and everything it wraps, one per
// line.
func errorChain(err error) string {
	var chain []string
	for err != nil {
		chain = append(chain, err.Error())
		err = errors.Unwrap(err)
	}
	return strings.Join(chain, "\n")
}
