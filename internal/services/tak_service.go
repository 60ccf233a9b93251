package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/tak-agent/internal/tak"
)

// TAKClient is the part of tak.Client the services depend on.
type TAKClient interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Snapshot() tak.Snapshot
}

// TAKService ties the TAK client to the service lifecycle.
type TAKService struct {
	client         TAKClient
	connectTimeout time.Duration
	logger         zerolog.Logger

	running bool
}

// NewTAKService creates a TAKService.
func NewTAKService(client TAKClient, connectTimeout time.Duration, logger zerolog.Logger) *TAKService {
	return &TAKService{
		client:         client,
		connectTimeout: connectTimeout,
		logger:         logger,
	}
}

// Start connects the client. A failed first connection is not fatal; the
// client's reconnect policy keeps trying.
func (s *TAKService) Start() error {
	if s.running {
		s.logger.Warn().Msg("TAKService is already running")
		return errors.New("tak service is already running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.connectTimeout)
	defer cancel()

	if err := s.client.Connect(ctx); err != nil {
		if !errors.Is(err, tak.ErrConnectionFailed) {
			return err
		}
		s.logger.Warn().Err(err).Msg("Initial TAK connection failed, reconnecting in background")
	}

	s.running = true
	snap := s.client.Snapshot()
	s.logger.Info().
		Str("uid", snap.UID).
		Str("callsign", snap.Callsign).
		Str("state", string(snap.State)).
		Msg("TAKService started")
	return nil
}

// Stop disconnects the client and cancels any pending reconnect.
func (s *TAKService) Stop() error {
	if !s.running {
		s.logger.Warn().Msg("TAKService is not running")
		return errors.New("tak service is not running")
	}

	s.running = false
	if err := s.client.Disconnect(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to close TAK connection")
		return err
	}

	s.logger.Info().Msg("TAKService stopped")
	return nil
}
