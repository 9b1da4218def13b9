package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultName          = "telemetryd"
	DefaultHTTPAddr      = ":8080"
	DefaultHeartbeat     = 10 * time.Second
	DefaultUDPAddr       = ":19132"
	DefaultUDPQueueLimit = 50
	DefaultSerialPort    = "/dev/ttyUSB0"
	DefaultSerialBaud    = 115200
	DefaultMQTTBroker    = "localhost"
	DefaultMQTTTopic     = "telemetry/can"
	DefaultDatalogDir    = "logs"
	DefaultWaitTimeout   = 100 * time.Millisecond
	DefaultDrainTimeout  = 3 * time.Second
	DefaultFlushInterval = 16 * time.Millisecond
)

// Config is the telemetryd file configuration. Durations are Go duration
// strings ("16ms", "3s").
type Config struct {
	Name      string         `toml:"name"`
	Heartbeat string         `toml:"heartbeat"`
	HTTP      HTTPConfig     `toml:"http"`
	Datalog   DatalogConfig  `toml:"datalog"`
	Pipeline  PipelineConfig `toml:"pipeline"`
	UDP       UDPConfig      `toml:"udp"`
	Serial    SerialConfig   `toml:"serial"`
	MQTT      MQTTConfig     `toml:"mqtt"`
	Sched     SchedConfig    `toml:"sched"`
}

type HTTPConfig struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`

	// ControlToken, when set, is required as a bearer token on start, stop,
	// workers and debug requests.
	ControlToken string `toml:"control_token"`
}

type DatalogConfig struct {
	Dir string `toml:"dir"`
}

type PipelineConfig struct {
	// Workers of zero sizes each pool to GOMAXPROCS.
	Workers       int    `toml:"workers"`
	Debug         bool   `toml:"debug"`
	WaitTimeout   string `toml:"wait_timeout"`
	DrainTimeout  string `toml:"drain_timeout"`
	FlushInterval string `toml:"flush_interval"`
}

type UDPConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
	// QueueLimit bounds each UDP worker queue; zero selects the built-in limit.
	QueueLimit   int `toml:"queue_limit"`
	SocketBuffer int `toml:"socket_buffer"`
}

type SerialConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    string `toml:"port"`
	Baud    int    `toml:"baud"`
}

type MQTTConfig struct {
	Enabled  bool   `toml:"enabled"`
	Broker   string `toml:"broker"`
	Port     int    `toml:"port"`
	TLS      bool   `toml:"tls"`
	ClientID string `toml:"client_id"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Topic    string `toml:"topic"`
	QoS      int    `toml:"qos"`
	CAFile   string `toml:"ca_file"`
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
}

type SchedConfig struct {
	LockOSThread bool `toml:"lock_os_thread"`
	ReceiverNice int  `toml:"receiver_nice"`
	WorkerNice   int  `toml:"worker_nice"`
}

func Default() Config {
	return Config{
		Name:      DefaultName,
		Heartbeat: DefaultHeartbeat.String(),
		HTTP: HTTPConfig{
			Addr:        DefaultHTTPAddr,
			CorsOrigins: []string{"http://localhost:3000"},
		},
		Datalog: DatalogConfig{Dir: DefaultDatalogDir},
		Pipeline: PipelineConfig{
			WaitTimeout:   DefaultWaitTimeout.String(),
			DrainTimeout:  DefaultDrainTimeout.String(),
			FlushInterval: DefaultFlushInterval.String(),
		},
		UDP: UDPConfig{
			Enabled:    true,
			Addr:       DefaultUDPAddr,
			QueueLimit: DefaultUDPQueueLimit,
		},
		Serial: SerialConfig{
			Port: DefaultSerialPort,
			Baud: DefaultSerialBaud,
		},
		MQTT: MQTTConfig{
			Broker: DefaultMQTTBroker,
			Topic:  DefaultMQTTTopic,
		},
	}
}

// Load reads path over Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := loadToml(path, &cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

// Encode renders cfg as TOML.
func Encode(cfg Config) ([]byte, error) {
	return toml.Marshal(cfg)
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("config missing name")
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		return fmt.Errorf("config missing http.addr")
	}
	if _, err := parseDuration("heartbeat", cfg.Heartbeat, DefaultHeartbeat); err != nil {
		return err
	}
	if err := ValidatePipeline(cfg.Pipeline); err != nil {
		return fmt.Errorf("pipeline invalid: %w", err)
	}
	if cfg.UDP.Enabled {
		if strings.TrimSpace(cfg.UDP.Addr) == "" {
			return fmt.Errorf("udp enabled without addr")
		}
		if cfg.UDP.QueueLimit < 0 {
			return fmt.Errorf("udp.queue_limit must be >= 0")
		}
	}
	if cfg.Serial.Enabled {
		if strings.TrimSpace(cfg.Serial.Port) == "" {
			return fmt.Errorf("serial enabled without port")
		}
		if cfg.Serial.Baud <= 0 {
			return fmt.Errorf("serial.baud must be > 0")
		}
	}
	if cfg.MQTT.Enabled {
		if strings.TrimSpace(cfg.MQTT.Broker) == "" {
			return fmt.Errorf("mqtt enabled without broker")
		}
		if strings.TrimSpace(cfg.MQTT.Topic) == "" {
			return fmt.Errorf("mqtt enabled without topic")
		}
		if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
		if (cfg.MQTT.CertFile == "") != (cfg.MQTT.KeyFile == "") {
			return fmt.Errorf("mqtt.cert_file and mqtt.key_file must be set together")
		}
	}
	return nil
}

func ValidatePipeline(p PipelineConfig) error {
	if p.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	for _, d := range []struct{ name, raw string }{
		{"wait_timeout", p.WaitTimeout},
		{"drain_timeout", p.DrainTimeout},
		{"flush_interval", p.FlushInterval},
	} {
		if _, err := parseDuration(d.name, d.raw, 0); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) HeartbeatInterval() time.Duration {
	d, _ := parseDuration("heartbeat", c.Heartbeat, DefaultHeartbeat)
	return d
}

func (p PipelineConfig) WaitTimeoutDuration() time.Duration {
	d, _ := parseDuration("wait_timeout", p.WaitTimeout, DefaultWaitTimeout)
	return d
}

func (p PipelineConfig) DrainTimeoutDuration() time.Duration {
	d, _ := parseDuration("drain_timeout", p.DrainTimeout, DefaultDrainTimeout)
	return d
}

func (p PipelineConfig) FlushIntervalDuration() time.Duration {
	d, _ := parseDuration("flush_interval", p.FlushInterval, DefaultFlushInterval)
	return d
}

// parseDuration returns def for a blank value.
func parseDuration(field, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def, fmt.Errorf("parse %s: %w", field, err)
	}
	if d < 0 {
		return def, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}
