package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

const shutdownGrace = 10 * time.Second

// httpService runs an http.Server under a suture supervisor.
type httpService struct {
	server *http.Server
	logger zerolog.Logger
}

func (s *httpService) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return suture.ErrDoNotRestart
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("http shutdown")
	}
	<-errc
	return ctx.Err()
}

func (s *httpService) String() string {
	return "http " + s.server.Addr
}
