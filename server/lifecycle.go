package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/sym"
)

const shutdownTimeout = 30 * time.Second

func (s *CadenceServer) getState() ServerState {
	return ServerState(s.state.Load())
}

func (s *CadenceServer) setState(newState ServerState) {
	s.state.Store(int32(newState))
	s.logger.Infow("Server state changed", "new_state", stateString(newState))
}

func stateString(state ServerState) string {
	switch state {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Start listens on port until ctx is cancelled, then shuts down gracefully
func (s *CadenceServer) Start(ctx context.Context, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return errors.Wrapf(err, "failed to listen on port %d", port)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on an existing listener
func (s *CadenceServer) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.setState(ServerStateRunning)
	s.logger.Infow(fmt.Sprintf("%s Server ready", sym.Pulse), "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "server failed")
		}
		return nil
	case <-ctx.Done():
	}
	return s.Stop()
}

// Stop drains HTTP requests and closes job streams
func (s *CadenceServer) Stop() error {
	s.setState(ServerStateDraining)
	s.cancel()

	var shutdownErr error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			shutdownErr = errors.Wrap(err, "http shutdown")
		}
	}

	s.mu.Lock()
	for client := range s.clients {
		client.close()
	}
	s.mu.Unlock()
	s.wg.Wait()

	s.setState(ServerStateStopped)
	return shutdownErr
}
