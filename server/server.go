package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"chess-worker/engine"
	"chess-worker/worker"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type wsMessage struct {
	Type string `json:"type"`
}

// Server exposes the worker protocol over websockets. Every connection gets its own
// Router, so concurrent games never share a search.
type Server struct {
	opts      engine.Options
	logger    zerolog.Logger
	heartbeat time.Duration
	upgrader  websocket.Upgrader

	mu      sync.Mutex
	workers map[string]*worker.Worker
}

func New(opts engine.Options, heartbeat time.Duration, logger zerolog.Logger) *Server {
	return &Server{
		opts:      opts,
		logger:    logger,
		heartbeat: heartbeat,
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		workers:   make(map[string]*worker.Worker),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "workers": s.workerCount()})
	})
	r.Get("/ws", s.serveWS)
	return r
}

// ListenAndServe runs until ctx is done, then shuts down within timeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, timeout time.Duration) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.stopWorkers()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Warn().Err(err).Msg("graceful-shutdown-failed")
		return srv.Close()
	}
	return nil
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("upgrade-failed")
		return
	}
	id := uuid.NewString()
	logger := s.logger.With().Str("worker_id", id).Logger()

	send := make(chan []byte, 64)
	writerDone := make(chan struct{})

	emitter := worker.EmitterFunc(func(resp worker.Response) error {
		data, err := json.Marshal(resp)
		if err != nil {
			return err
		}
		select {
		case send <- data:
			return nil
		case <-writerDone:
			return errors.New("connection closed")
		}
	})

	opts := s.opts
	opts.Logger = logger
	router := worker.NewRouter(engine.NewController(opts), logger)
	wk := worker.NewWorker(router, emitter, logger)
	s.register(id, wk)
	logger.Info().Msg("worker-connected")

	go func() {
		defer close(writerDone)
		defer conn.Close()
		if err := s.writeWithHeartbeat(conn, send); err != nil {
			logger.Debug().Err(err).Msg("write-failed")
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			break
		}
		wk.HandleJSON(message)
	}

	// Every emit happens before Wait returns, so send can be closed afterwards.
	wk.Stop()
	wk.Wait()
	s.unregister(id)
	close(send)
	<-writerDone
	logger.Info().Msg("worker-disconnected")
}

func (s *Server) writeWithHeartbeat(conn *websocket.Conn, send <-chan []byte) error {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	lastWrite := time.Now()
	pingPayload, _ := json.Marshal(wsMessage{Type: "ping"})

	for {
		select {
		case msg, ok := <-send:
			if !ok {
				return nil
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
			lastWrite = time.Now()
		case <-ticker.C:
			if time.Since(lastWrite) < s.heartbeat {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, pingPayload); err != nil {
				return err
			}
			lastWrite = time.Now()
		}
	}
}

func (s *Server) register(id string, wk *worker.Worker) {
	s.mu.Lock()
	s.workers[id] = wk
	s.mu.Unlock()
}

func (s *Server) unregister(id string) {
	s.mu.Lock()
	delete(s.workers, id)
	s.mu.Unlock()
}

func (s *Server) workerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

func (s *Server) stopWorkers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, wk := range s.workers {
		wk.Stop()
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
