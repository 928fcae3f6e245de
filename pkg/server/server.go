package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/pixlland/workspace-sync/pkg/assettree"
	"github.com/pixlland/workspace-sync/pkg/backend"
	"github.com/pixlland/workspace-sync/pkg/config"
	"github.com/pixlland/workspace-sync/pkg/docs"
	"github.com/pixlland/workspace-sync/pkg/logger"
)

func newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		// trust runs at the reverse proxy, not here
		CheckOrigin: func(*http.Request) bool { return true },
	}
}

// Server hosts the three websocket endpoints on one listener.
type Server struct {
	cfg config.Config
	log zerolog.Logger

	Sync      *SyncHandler
	Relay     *RelayHandler
	Messenger *MessengerHub
}

func New(cfg config.Config, b backend.Backend, mgr *docs.Manager, tree *assettree.Mutator, log zerolog.Logger) *Server {
	messenger := NewMessengerHub(logger.Component(log, "messenger"))
	return &Server{
		cfg:       cfg,
		log:       log,
		Sync:      NewSyncHandler(b, mgr, tree, messenger, logger.Component(log, "sync")),
		Relay:     NewRelayHandler(logger.Component(log, "relay")),
		Messenger: messenger,
	}
}

// Routes builds the endpoint router.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Handle(s.cfg.RealtimePath, s.Sync)
	r.Handle(s.cfg.RelayPath, s.Relay)
	r.Handle(s.cfg.MessengerPath, s.Messenger)
	return r
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
