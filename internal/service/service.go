package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/cantelemetry/internal/config"
	"github.com/danmuck/cantelemetry/internal/datalog"
	"github.com/danmuck/cantelemetry/internal/manager"
	"github.com/danmuck/cantelemetry/internal/sched"
	"github.com/danmuck/cantelemetry/internal/server"
	"github.com/danmuck/cantelemetry/internal/transport/mqtt"
	"github.com/danmuck/cantelemetry/internal/transport/serial"
	"github.com/danmuck/cantelemetry/internal/transport/udp"
)

var ErrInvalidHeartbeatInterval = errors.New("service: invalid heartbeat interval")

// Service runs the datalog, the transport managers and the HTTP surface as
// one process.
type Service struct {
	cfg     config.Config
	datalog *datalog.Logger
	udp     *udp.Receiver

	managers []managed
	server   *server.Server

	readyOnce sync.Once
	ready     chan struct{}
}

type managed struct {
	ctl     manager.Controller
	enabled bool
}

// DefaultServiceConfig is the configuration used when no file is given.
func DefaultServiceConfig() config.Config {
	return config.Default()
}

func New(cfg config.Config) (*Service, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	s := &Service{
		cfg:     cfg,
		datalog: datalog.New(datalog.Options{}),
		ready:   make(chan struct{}),
	}
	s.buildManagers()

	controllers := make([]manager.Controller, 0, len(s.managers))
	for _, m := range s.managers {
		controllers = append(controllers, m.ctl)
	}
	s.server = server.New(server.Config{
		ID:           cfg.Name,
		Addr:         cfg.HTTP.Addr,
		CorsOrigins:  cfg.HTTP.CorsOrigins,
		ControlToken: cfg.HTTP.ControlToken,
	}, controllers...)
	return s, nil
}

func (s *Service) buildManagers() {
	cfg := s.cfg
	receiverHints := sched.Hints{LockOSThread: cfg.Sched.LockOSThread, Nice: cfg.Sched.ReceiverNice}
	base := manager.Config{
		Workers:       cfg.Pipeline.Workers,
		Debug:         cfg.Pipeline.Debug,
		WaitTimeout:   cfg.Pipeline.WaitTimeoutDuration(),
		DrainTimeout:  cfg.Pipeline.DrainTimeoutDuration(),
		FlushInterval: cfg.Pipeline.FlushIntervalDuration(),
		WorkerHints:   sched.Hints{LockOSThread: cfg.Sched.LockOSThread, Nice: cfg.Sched.WorkerNice},
	}

	udpCfg := base
	udpCfg.Name, udpCfg.Label = "udp", "UDP"
	udpCfg.QueueLimit = cfg.UDP.QueueLimit
	if udpCfg.QueueLimit == 0 {
		udpCfg.QueueLimit = manager.UDPQueueLimit
	}
	s.udp = udp.NewReceiver(
		udp.WithSocketBuffer(cfg.UDP.SocketBuffer),
		udp.WithHints(receiverHints),
	)
	s.managers = append(s.managers, managed{
		ctl:     manager.Bind(manager.New[string](udpCfg, s.udp, s.datalog), cfg.UDP.Addr),
		enabled: cfg.UDP.Enabled,
	})

	serialCfg := base
	serialCfg.Name, serialCfg.Label = "serial", "Serial"
	s.managers = append(s.managers, managed{
		ctl: manager.Bind(
			manager.New[serial.Address](serialCfg, serial.NewReceiver(serial.WithHints(receiverHints)), s.datalog),
			serial.Address{Port: cfg.Serial.Port, Baud: cfg.Serial.Baud},
		),
		enabled: cfg.Serial.Enabled,
	})

	mqttCfg := base
	mqttCfg.Name, mqttCfg.Label = "mqtt", "MQTT"
	s.managers = append(s.managers, managed{
		ctl: manager.Bind(
			manager.New[mqtt.Address](mqttCfg, mqtt.NewReceiver(), s.datalog),
			mqtt.Address{
				Broker:   cfg.MQTT.Broker,
				Port:     cfg.MQTT.Port,
				TLS:      cfg.MQTT.TLS,
				ClientID: cfg.MQTT.ClientID,
				Username: cfg.MQTT.Username,
				Password: cfg.MQTT.Password,
				Topic:    cfg.MQTT.Topic,
				QoS:      byte(cfg.MQTT.QoS),
				CAFile:   cfg.MQTT.CAFile,
				CertFile: cfg.MQTT.CertFile,
				KeyFile:  cfg.MQTT.KeyFile,
			},
		),
		enabled: cfg.MQTT.Enabled,
	})
}

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

// RunContext bootstraps the service and serves until ctx ends.
func (s *Service) RunContext(ctx context.Context) error {
	if err := s.bootstrap(); err != nil {
		s.teardown()
		return err
	}
	return s.serve(ctx)
}

// Ready is closed once bootstrap has finished.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

func (s *Service) Server() *server.Server {
	return s.server
}

func (s *Service) Managers() []manager.Controller {
	out := make([]manager.Controller, 0, len(s.managers))
	for _, m := range s.managers {
		out = append(out, m.ctl)
	}
	return out
}

// UDPAddr is the bound UDP listener address, or nil when not receiving.
func (s *Service) UDPAddr() net.Addr {
	return s.udp.LocalAddr()
}

func (s *Service) bootstrap() error {
	if s.cfg.HeartbeatInterval() <= 0 {
		return ErrInvalidHeartbeatInterval
	}
	if err := s.datalog.Init(s.cfg.Datalog.Dir); err != nil {
		return fmt.Errorf("service: datalog init: %w", err)
	}
	started := 0
	for _, m := range s.managers {
		if !m.enabled {
			continue
		}
		if !m.ctl.Start() {
			log.Error().Str("transport", m.ctl.Name()).Msg("manager failed to start")
			continue
		}
		started++
	}
	log.Info().
		Str("service", s.cfg.Name).
		Str("datalog", s.datalog.Dir()).
		Int("managers", len(s.managers)).
		Int("started", started).
		Msg("service bootstrap ready")
	return nil
}

func (s *Service) serve(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval())
	defer ticker.Stop()
	defer s.teardown()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.server.Serve()
	}()
	s.readyOnce.Do(func() { close(s.ready) })

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := s.server.Shutdown(shutdownCtx)
			cancel()
			if err != nil {
				log.Warn().Err(err).Msg("http shutdown incomplete")
			}
			return nil
		case err := <-serveErr:
			if err != nil {
				return fmt.Errorf("service: http serve: %w", err)
			}
			return nil
		case <-ticker.C:
			s.heartbeat()
		}
	}
}

func (s *Service) heartbeat() {
	for _, m := range s.managers {
		st := m.ctl.Status()
		if !st.Running {
			continue
		}
		log.Info().
			Str("transport", st.Name).
			Str("session", st.Session).
			Int("workers", st.Workers).
			Uint64("received", st.Received).
			Uint64("processed", st.Processed).
			Uint64("dropped", st.Dropped).
			Uint64("flushes", st.Flushes).
			Msg("heartbeat")
	}
}

func (s *Service) teardown() {
	for _, m := range s.managers {
		if m.ctl.Running() {
			m.ctl.Stop()
		}
	}
	if err := s.datalog.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("datalog shutdown incomplete")
	}
}
