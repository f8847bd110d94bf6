package daemon

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"replisync/internal/model"
	"replisync/internal/repository"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type HistoryReader interface {
	GetRecent(limit int) ([]model.Pass, error)
	GetFailed(limit int) ([]model.Pass, error)
	GetStats() (model.PassStats, error)
}

type Server struct {
	echo     *echo.Echo
	state    *State
	histRepo HistoryReader
	port     int
	log      *zap.Logger
	stopCh   chan struct{}
}

func NewServer(state *State, histRepo HistoryReader, port int, log *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		echo:     e,
		state:    state,
		histRepo: histRepo,
		port:     port,
		log:      log,
		stopCh:   make(chan struct{}, 1),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/status", s.handleStatus)
	s.echo.GET("/history", s.handleHistory)
	s.echo.POST("/stop", s.handleStop)
}

func (s *Server) Start() {
	go func() {
		addr := "localhost:" + strconv.Itoa(s.port)
		s.log.Info("status server started",
			zap.String("addr", addr))

		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("status server error", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// StopCh yields once per accepted stop request.
func (s *Server) StopCh() <-chan struct{} {
	return s.stopCh
}

func (s *Server) handleStatus(c echo.Context) error {
	snap := s.state.Snapshot()

	if s.histRepo != nil {
		stats, err := s.histRepo.GetStats()
		switch {
		case err == nil:
			snap.History = &stats
		case !errors.Is(err, repository.ErrHistoryDisabled):
			s.log.Warn("failed to read history stats", zap.Error(err))
		}
	}

	return c.JSON(http.StatusOK, snap)
}

func (s *Server) handleStop(c echo.Context) error {
	select {
	case s.stopCh <- struct{}{}:
	default:
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handleHistory(c echo.Context) error {
	n := 20
	if nStr := c.QueryParam("n"); nStr != "" {
		if parsed, err := strconv.Atoi(nStr); err == nil && parsed > 0 {
			n = parsed
		}
	}

	if s.histRepo == nil {
		return c.JSON(http.StatusOK, []model.Pass{})
	}

	get := s.histRepo.GetRecent
	if c.QueryParam("failed") == "true" {
		get = s.histRepo.GetFailed
	}

	passes, err := get(n)
	if errors.Is(err, repository.ErrHistoryDisabled) {
		return c.JSON(http.StatusOK, []model.Pass{})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, passes)
}
