package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rahul/delver/internal/agent"
	"github.com/rahul/delver/internal/engine"
	"github.com/rahul/delver/internal/store"
)

// httpChatID labels runs started through the HTTP API.
const httpChatID = "http"

// RunReader exposes stored runs.
type RunReader interface {
	ListRuns(ctx context.Context, chatID string, limit int) ([]store.Run, error)
	GetRun(ctx context.Context, id string) (store.Run, error)
}

// HTTPServer serves research over JSON and server-sent events.
type HTTPServer struct {
	Addr   string
	echo   *echo.Echo
	runner agent.Runner
	runs   RunReader
}

type researchRequest struct {
	Query  string `json:"query"`
	ChatID string `json:"chat_id,omitempty"`
}

type runSummary struct {
	ID          string    `json:"id"`
	ChatID      string    `json:"chat_id"`
	Query       string    `json:"query"`
	FinalAnswer string    `json:"final_answer"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewHTTPServer(addr string, runner agent.Runner, runs RunReader) *HTTPServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &HTTPServer{Addr: addr, echo: e, runner: runner, runs: runs}
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.POST("/v1/research", s.research)
	e.GET("/v1/research/stream", s.stream)
	e.GET("/v1/runs", s.listRuns)
	e.GET("/v1/runs/:id", s.getRun)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(s.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

func (s *HTTPServer) research(c echo.Context) error {
	var req researchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}
	chatID := req.ChatID
	if chatID == "" {
		chatID = httpChatID
	}

	result, err := s.runner.Research(c.Request().Context(), chatID, req.Query, nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

// stream runs the query and forwards every progress event as it happens.
func (s *HTTPServer) stream(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	send := func(e engine.Event) {
		data, err := json.Marshal(e)
		if err != nil {
			return
		}
		fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", e.Kind, data)
		resp.Flush()
	}

	// Errors are delivered as an error event; the response is already
	// committed.
	_, _ = s.runner.Research(c.Request().Context(), httpChatID, query, send)
	return nil
}

func (s *HTTPServer) listRuns(c echo.Context) error {
	limit := 20
	if val := strings.TrimSpace(c.QueryParam("limit")); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}
	runs, err := s.runs.ListRuns(c.Request().Context(), c.QueryParam("chat_id"), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]runSummary, len(runs))
	for i, r := range runs {
		out[i] = runSummary{ID: r.ID, ChatID: r.ChatID, Query: r.Query, FinalAnswer: r.FinalAnswer, CreatedAt: r.CreatedAt}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *HTTPServer) getRun(c echo.Context) error {
	run, err := s.runs.GetRun(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSONBlob(http.StatusOK, run.Record)
}
