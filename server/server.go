package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/julienschmidt/httprouter"
	"github.com/scenesolver/scenesolver/pkg/nn"
	"github.com/scenesolver/scenesolver/server/analysis"
	"github.com/scenesolver/scenesolver/server/analysisdb"
	"github.com/scenesolver/scenesolver/server/config"
	"github.com/scenesolver/scenesolver/server/preview"
	"github.com/scenesolver/scenesolver/server/storage"
	"github.com/scenesolver/scenesolver/server/util"
)

type Server struct {
	Log              logs.Log
	ShutdownComplete chan error // Receives the result of Shutdown

	config       *config.Config
	services     *nn.Services
	analyzer     *analysis.Analyzer
	db           *analysisdb.AnalysisDB
	tempFiles    *util.TempFiles
	storage      storage.Storage   // nil if previews are disabled
	previews     *preview.Renderer // nil if previews are disabled
	signalIn     chan os.Signal
	httpServer   *http.Server
	httpRouter   *httprouter.Router
	shutdownOnce sync.Once
}

// NewServer takes ownership of services, and closes them on Shutdown
func NewServer(log logs.Log, cfg *config.Config, services *nn.Services) (*Server, error) {
	analyzer, err := analysis.NewAnalyzer(log, services, analysis.Options{
		FrameStride:   cfg.FrameStride,
		FrameQuality:  cfg.FrameQuality,
		MaxConcurrent: cfg.MaxConcurrentAnalyses,
	})
	if err != nil {
		return nil, err
	}

	tempFiles, err := util.NewTempFiles(cfg.TempPath)
	if err != nil {
		return nil, err
	}

	db, err := analysisdb.Open(log, cfg.DB)
	if err != nil {
		return nil, err
	}
	db.MaxHistory = cfg.MaxHistory

	// Open blob store
	var store storage.Storage
	if !cfg.PreviewStorage.IsConfigured() {
		log.Infof("No preview storage configured. Annotated previews are disabled.")
	} else if cfg.PreviewStorage.GCS != nil {
		// Google Cloud Storage
		store, err = storage.NewStorageGCS(context.Background(), log, cfg.PreviewStorage.GCS.Bucket)
	} else {
		// Filesystem
		store, err = storage.NewStorageFS(log, cfg.PreviewStorage.Filesystem.Root)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("Failed to open preview storage: %w", err)
	}

	s := &Server{
		Log:              log,
		ShutdownComplete: make(chan error, 1),
		config:           cfg,
		services:         services,
		analyzer:         analyzer,
		db:               db,
		tempFiles:        tempFiles,
		storage:          store,
	}
	if store != nil {
		s.previews = preview.NewRenderer(log, store)
	}
	s.setupHttpRoutes()
	return s, nil
}

// Handler returns the HTTP handler of the API
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

// ListenHTTP blocks until the server is shut down.
// addr example: ":8080"
func (s *Server) ListenHTTP(addr string) error {
	s.Log.Infof("Listening on %v", addr)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.httpRouter,
		ReadHeaderTimeout: 30 * time.Second,
	}
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) ListenForKillSignals() {
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'. Shutting down", sig.String())
			s.Shutdown()
		}
	}()
}

// Shutdown stops the HTTP server, waits briefly for running analyses, and releases everything.
// It is safe to call Shutdown more than once.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.ShutdownComplete <- s.shutdown()
	})
}

func (s *Server) shutdown() error {
	s.Log.Infof("Shutdown")
	if s.signalIn != nil {
		signal.Stop(s.signalIn)
		close(s.signalIn)
	}
	var firstErr error
	if s.httpServer != nil {
		s.Log.Infof("Closing HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.Log.Warnf("HTTP server shutdown: %v", err)
			firstErr = err
		}
	}
	if err := s.services.Close(); err != nil {
		s.Log.Warnf("Closing inference services: %v", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	if s.storage != nil {
		s.storage.Close()
	}
	s.db.Close()
	s.Log.Infof("Shutdown complete")
	return firstErr
}
