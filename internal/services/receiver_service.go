package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TrackTable is the part of receiver.Receiver the service prunes.
type TrackTable interface {
	Prune(maxAge time.Duration) int
	Len() int
}

// ReceiverService expires remote tracks that stopped reporting.
type ReceiverService struct {
	tracks TrackTable
	ttl    time.Duration
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReceiverService creates a service that drops tracks silent for longer than ttl.
func NewReceiverService(tracks TrackTable, ttl time.Duration, logger zerolog.Logger) *ReceiverService {
	return &ReceiverService{
		tracks: tracks,
		ttl:    ttl,
		logger: logger,
	}
}

// Start launches the prune loop.
func (r *ReceiverService) Start() error {
	if r.ctx != nil {
		r.logger.Warn().Msg("ReceiverService is already running")
		return errors.New("receiver service is already running")
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.runPruneLoop()
	}()

	r.logger.Info().Dur("track_ttl", r.ttl).Msg("ReceiverService started")
	return nil
}

// Stop ends the prune loop.
func (r *ReceiverService) Stop() error {
	if r.ctx == nil {
		r.logger.Warn().Msg("ReceiverService is not running")
		return errors.New("receiver service is not running")
	}

	r.cancel()
	r.wg.Wait()

	r.ctx = nil
	r.cancel = nil

	r.logger.Info().Msg("ReceiverService stopped")
	return nil
}

func (r *ReceiverService) runPruneLoop() {
	ticker := time.NewTicker(max(r.ttl/2, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := r.tracks.Prune(r.ttl); removed > 0 {
				r.logger.Info().Int("removed", removed).Int("tracks", r.tracks.Len()).Msg("Expired stale tracks")
			}
		case <-r.ctx.Done():
			return
		}
	}
}
