package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/tak-agent/internal/constants"
	"github.com/benmeehan/tak-agent/internal/metrics_collectors"
	"github.com/benmeehan/tak-agent/internal/models"
	"github.com/benmeehan/tak-agent/internal/tak"
	"github.com/benmeehan/tak-agent/internal/utils"
	"github.com/benmeehan/tak-agent/pkg/mqtt"
)

// StatusService periodically publishes the agent's health over MQTT.
type StatusService struct {
	pubTopic      string
	interval      time.Duration
	timeout       time.Duration
	qos           int
	client        TAKClient
	mqttClient    mqtt.MQTTClient
	metricsConfig *models.MetricsConfig
	registry      *metrics_collectors.MetricsRegistry
	logger        zerolog.Logger
	now           func() time.Time

	workerPool *utils.WorkerPool
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewStatusService initializes a new StatusService.
func NewStatusService(
	pubTopic string,
	interval, timeout time.Duration,
	qos int,
	client TAKClient,
	mqttClient mqtt.MQTTClient,
	metricsConfig *models.MetricsConfig,
	registry *metrics_collectors.MetricsRegistry,
	logger zerolog.Logger,
) *StatusService {
	if registry == nil {
		registry = metrics_collectors.NewMetricsRegistry()
	}
	if metricsConfig == nil {
		metricsConfig = &models.MetricsConfig{}
	}
	return &StatusService{
		pubTopic:      pubTopic,
		interval:      interval,
		timeout:       timeout,
		qos:           qos,
		client:        client,
		mqttClient:    mqttClient,
		metricsConfig: metricsConfig,
		registry:      registry,
		logger:        logger,
		now:           time.Now,
	}
}

// Start launches the status loop in a separate goroutine.
func (s *StatusService) Start() error {
	if s.ctx != nil {
		s.logger.Warn().Msg("StatusService is already running")
		return errors.New("status service is already running")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.workerPool = utils.NewWorkerPool(constants.CollectorWorkers)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runStatusLoop()
	}()

	s.logger.Info().Str("topic", s.pubTopic).Dur("interval", s.interval).Msg("StatusService started successfully")
	return nil
}

// Stop gracefully stops the status service.
func (s *StatusService) Stop() error {
	if s.ctx == nil {
		s.logger.Warn().Msg("StatusService is not running")
		return errors.New("status service is not running")
	}

	s.cancel()
	s.wg.Wait()
	s.workerPool.Shutdown()

	s.ctx = nil
	s.cancel = nil

	s.logger.Info().Msg("StatusService stopped successfully")
	return nil
}

func (s *StatusService) runStatusLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			status := s.BuildStatus(s.ctx)
			if err := s.PublishStatus(status); err != nil {
				s.logger.Error().Err(err).Msg("Failed to publish status")
			}
		case <-s.ctx.Done():
			s.logger.Info().Msg("StatusService stopping gracefully")
			return
		}
	}
}

// BuildStatus combines the client snapshot with the enabled system metrics.
func (s *StatusService) BuildStatus(ctx context.Context) *models.Status {
	snap := s.client.Snapshot()

	status := &models.Status{
		DeviceID:   snap.UID,
		Callsign:   snap.Callsign,
		Timestamp:  s.now().UTC(),
		Status:     statusOf(snap),
		Connection: string(snap.State),
		Battery:    snap.Battery,
		RetryCount: snap.RetryCount,
		HistoryLen: snap.HistoryLen,
		Course:     snap.Course,
		Speed:      snap.Speed,
		Metrics:    s.collectMetrics(ctx),
	}
	if p := snap.LastPosition; p != nil {
		status.LastPosition = &models.Position{
			Latitude:  p.Lat,
			Longitude: p.Lon,
			HAE:       p.HAE,
			Timestamp: time.UnixMilli(p.Timestamp).UTC(),
		}
	}
	return status
}

func statusOf(snap tak.Snapshot) string {
	switch {
	case snap.State == tak.StateConnected:
		return constants.StatusOnline
	case snap.Exhausted:
		return constants.StatusOffline
	default:
		return constants.StatusDegraded
	}
}

// collectMetrics runs the enabled collectors concurrently under the collection timeout.
func (s *StatusService) collectMetrics(parent context.Context) map[string]models.Metric {
	collectors := s.registry.Enabled(s.metricsConfig)
	if len(collectors) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]models.Metric, len(collectors))
	)

	for _, collector := range collectors {
		collect := func() {
			defer wg.Done()
			value := collector.Collect(ctx)
			if value == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			results[collector.Name()] = models.Metric{Value: value, Unit: collector.Unit()}
		}

		wg.Add(1)
		if s.workerPool == nil {
			go collect()
			continue
		}
		if err := s.workerPool.Submit(ctx, collect); err != nil {
			wg.Done()
			s.logger.Warn().Err(err).Str("collector", collector.Name()).Msg("Skipping metric collection")
		}
	}

	wg.Wait()
	return results
}

// PublishStatus sends the status document via MQTT.
func (s *StatusService) PublishStatus(status *models.Status) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to serialize status: %w", err)
	}

	token := s.mqttClient.Publish(s.pubTopic, byte(s.qos), false, payload)
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("timed out publishing status to %s", s.pubTopic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish status: %w", err)
	}

	s.logger.Debug().Str("topic", s.pubTopic).Str("status", status.Status).Msg("Status published successfully")
	return nil
}
