package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/benmeehan/tak-agent/internal/constants"
	"github.com/benmeehan/tak-agent/internal/metrics"
	"github.com/benmeehan/tak-agent/internal/metrics_collectors"
	"github.com/benmeehan/tak-agent/internal/receiver"
	"github.com/benmeehan/tak-agent/internal/service_registry"
	"github.com/benmeehan/tak-agent/internal/tak"
	"github.com/benmeehan/tak-agent/internal/utils"
	"github.com/benmeehan/tak-agent/pkg/file"
	"github.com/benmeehan/tak-agent/pkg/location"
	"github.com/benmeehan/tak-agent/pkg/mqtt"
	"github.com/benmeehan/tak-agent/pkg/transport"
)

func main() {
	configPath := flag.String("config", constants.DefaultConfigPath, "Path to the YAML configuration file")
	flag.Parse()

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := utils.NewLogger(config.Logging.Level, config.Logging.Format, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	m, err := metrics.New(nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register metrics")
	}
	var metricsSrv *http.Server
	if config.Metrics.Enabled {
		metricsSrv = serveMetrics(config.Metrics.ListenAddr, m, log)
	}

	source, err := newPositionSource(config, m)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create position source")
	}
	defer source.Close()

	dialer := newDialer(config, fileClient)

	// The UID is fixed up front so the receiver can recognise our own echoes.
	clientConfig := config.ClientConfig()
	if clientConfig.UID == "" {
		clientConfig.UID = tak.GenerateUID(time.Now())
	}

	opts := []tak.Option{
		tak.WithMetrics(m),
		tak.WithLowBatteryHook(func(level int) {
			log.Warn().Int("battery", level).Str("callsign", clientConfig.Callsign).Msg("Battery low, reduce update rate or recharge")
		}),
	}

	var rcv *receiver.Receiver
	if config.Services.Receiver.Enabled {
		rcv = receiver.NewReceiver(clientConfig.UID, config.Services.Receiver.LabelTemplate, log, m)
		opts = append(opts, tak.WithMessageHandler(rcv.HandleMessage))
	}

	client, err := tak.NewClient(clientConfig, dialer, source, log, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create TAK client")
	}
	log.Info().
		Str("uid", clientConfig.UID).
		Str("callsign", clientConfig.Callsign).
		Str("server", clientConfig.Server).
		Str("transport", config.TAK.Transport).
		Msg("TAK client configured")

	deps := service_registry.Dependencies{Client: client}
	var tracks func() int
	if rcv != nil {
		deps.Tracks = rcv
		tracks = rcv.Len
	}
	deps.Collectors = metrics_collectors.NewDefaultRegistry(log, tracks)

	var statusMQTT *mqtt.MqttService
	if config.Services.Status.Enabled {
		// Generate a unique MQTT Client ID by appending a UUID
		clientID := config.MQTT.ClientID + "-" + uuid.New().String()
		log.Info().Str("client_id", clientID).Msg("Using MQTT Client ID")

		statusMQTT = mqtt.NewMqttService(fileClient)
		err = statusMQTT.Initialize(mqtt.Options{
			Broker:        config.MQTT.Broker,
			ClientID:      clientID,
			CACertificate: config.MQTT.CACertificate,
			AutoReconnect: true,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
		}
		deps.StatusMQTT = statusMQTT
	}

	// Create a new service registry to manage services
	serviceRegistry := service_registry.NewServiceRegistry(log)

	// Register all services based on the configuration
	if err := serviceRegistry.RegisterServices(config, deps); err != nil {
		log.Fatal().Err(err).Msg("Failed to register services")
	}

	// Start all registered services in the registry
	if err := serviceRegistry.StartServices(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start services")
	}
	log.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-stopCtx.Done()

	log.Info().Msg("Shutting down gracefully...")
	if err := serviceRegistry.StopServices(); err != nil {
		log.Error().Err(err).Msg("Some services failed to stop")
	}
	if statusMQTT != nil {
		statusMQTT.Disconnect(250)
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

func newPositionSource(config *utils.Config, m *metrics.Metrics) (*location.PositionSource, error) {
	pos := config.Position

	var provider location.Provider
	switch pos.Provider {
	case constants.ProviderStatic:
		provider = location.NewStaticProvider(pos.Latitude, pos.Longitude, pos.HAE)
	case constants.ProviderSimulated:
		provider = location.NewSimulatedProvider(pos.Latitude, pos.Longitude, pos.HAE, pos.Heading, pos.Speed)
	case constants.ProviderSensor:
		provider = location.NewDeviceSensorProvider(pos.GPSDevicePort, pos.GPSDeviceBaudRate)
	case constants.ProviderGoogle:
		p, err := location.NewGoogleGeolocationProvider(pos.MapsAPIKey, pos.ModemIndex)
		if err != nil {
			return nil, err
		}
		provider = p
	default:
		return nil, fmt.Errorf("unknown position provider %q", pos.Provider)
	}

	var terrain *location.TerrainCache
	if pos.Terrain.Enabled {
		elevation, err := location.NewGoogleElevationProvider(pos.MapsAPIKey)
		if err != nil {
			return nil, err
		}
		terrain = location.NewTerrainCache(elevation, pos.Terrain.Precision)
		if err := m.RegisterTerrainCache(terrain.Stats); err != nil {
			return nil, err
		}
	}

	return location.NewPositionSource(provider, terrain), nil
}

func newDialer(config *utils.Config, fileClient file.FileOperations) transport.Dialer {
	if config.TAK.Transport == constants.TransportMQTT {
		d := transport.NewMQTTDialer(
			fileClient,
			config.TAK.MQTT.ClientID,
			config.TAK.MQTT.PublishTopic,
			config.TAK.MQTT.SubscribeTopic,
			byte(config.TAK.MQTT.QOS),
		)
		d.CACertificate = config.TAK.MQTT.CACertificate
		d.ConnectTimeout = config.TAK.ConnectTimeout
		return d
	}
	return transport.NewWebSocketDialer()
}

func serveMetrics(addr string, m *metrics.Metrics, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Msg("Metrics server exited")
		}
	}()

	log.Info().Str("addr", addr).Msg("Serving Prometheus metrics")
	return srv
}
