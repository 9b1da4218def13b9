package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"

	"github.com/danmuck/cantelemetry/internal/config"
	"github.com/danmuck/cantelemetry/internal/service"
)

type flagValues struct {
	configPath   string
	overridePath string
	httpAddr     string
	datalogDir   string
	workers      int
	debug        bool
	udp          bool
	udpAddr      string
	serial       bool
	serialPort   string
	serialBaud   int
	mqtt         bool
	mqttBroker   string
	mqttTopic    string
}

func newFlagSet(v *flagValues) *pflag.FlagSet {
	fs := pflag.NewFlagSet("telemetryd", pflag.ContinueOnError)
	fs.StringVarP(&v.configPath, "config", "c", "", "TOML config file (defaults apply when empty)")
	fs.StringVar(&v.overridePath, "override", "", "partial TOML file applied over the config")
	fs.StringVar(&v.httpAddr, "http-addr", "", "HTTP listen address")
	fs.StringVar(&v.datalogDir, "datalog-dir", "", "directory for the CSV data logs")
	fs.IntVarP(&v.workers, "workers", "w", 0, "parser workers per manager")
	fs.BoolVar(&v.debug, "debug", false, "per-frame debug diagnostics")
	fs.BoolVar(&v.udp, "udp", false, "enable the UDP manager")
	fs.StringVar(&v.udpAddr, "udp-addr", "", "UDP listen address")
	fs.BoolVar(&v.serial, "serial", false, "enable the serial manager")
	fs.StringVar(&v.serialPort, "serial-port", "", "serial device path")
	fs.IntVar(&v.serialBaud, "serial-baud", 0, "serial baud rate")
	fs.BoolVar(&v.mqtt, "mqtt", false, "enable the MQTT manager")
	fs.StringVar(&v.mqttBroker, "mqtt-broker", "", "MQTT broker host")
	fs.StringVar(&v.mqttTopic, "mqtt-topic", "", "MQTT topic carrying frames")
	return fs
}

// loadConfig resolves defaults, then the config file, then the override
// file, then explicitly set flags.
func loadConfig(args []string) (config.Config, error) {
	var v flagValues
	fs := newFlagSet(&v)
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg := service.DefaultServiceConfig()
	if path := strings.TrimSpace(v.configPath); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if path := strings.TrimSpace(v.overridePath); path != "" {
		if err := applyOverrideFile(&cfg, path); err != nil {
			return config.Config{}, err
		}
	}
	applyFlags(&cfg, fs, v)
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config, fs *pflag.FlagSet, v flagValues) {
	if fs.Changed("http-addr") {
		cfg.HTTP.Addr = v.httpAddr
	}
	if fs.Changed("datalog-dir") {
		cfg.Datalog.Dir = v.datalogDir
	}
	if fs.Changed("workers") {
		cfg.Pipeline.Workers = v.workers
	}
	if fs.Changed("debug") {
		cfg.Pipeline.Debug = v.debug
	}
	if fs.Changed("udp") {
		cfg.UDP.Enabled = v.udp
	}
	if fs.Changed("udp-addr") {
		cfg.UDP.Addr = v.udpAddr
	}
	if fs.Changed("serial") {
		cfg.Serial.Enabled = v.serial
	}
	if fs.Changed("serial-port") {
		cfg.Serial.Port = v.serialPort
	}
	if fs.Changed("serial-baud") {
		cfg.Serial.Baud = v.serialBaud
	}
	if fs.Changed("mqtt") {
		cfg.MQTT.Enabled = v.mqtt
	}
	if fs.Changed("mqtt-broker") {
		cfg.MQTT.Broker = v.mqttBroker
	}
	if fs.Changed("mqtt-topic") {
		cfg.MQTT.Topic = v.mqttTopic
	}
}

type overrideFile struct {
	Name      string `toml:"name"`
	Heartbeat string `toml:"heartbeat"`
	HTTP      struct {
		Addr        string   `toml:"addr"`
		CorsOrigins []string `toml:"cors_origins"`
	} `toml:"http"`
	Datalog struct {
		Dir string `toml:"dir"`
	} `toml:"datalog"`
	Pipeline struct {
		Workers       int    `toml:"workers"`
		Debug         bool   `toml:"debug"`
		FlushInterval string `toml:"flush_interval"`
	} `toml:"pipeline"`
	UDP struct {
		Enabled    bool   `toml:"enabled"`
		Addr       string `toml:"addr"`
		QueueLimit int    `toml:"queue_limit"`
	} `toml:"udp"`
	Serial struct {
		Enabled bool   `toml:"enabled"`
		Port    string `toml:"port"`
		Baud    int    `toml:"baud"`
	} `toml:"serial"`
	MQTT struct {
		Enabled  bool   `toml:"enabled"`
		Broker   string `toml:"broker"`
		Username string `toml:"username"`
		Password string `toml:"password"`
		Topic    string `toml:"topic"`
	} `toml:"mqtt"`
}

// applyOverrideFile changes only the keys present in path.
func applyOverrideFile(cfg *config.Config, path string) error {
	var raw overrideFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load override config: %w", err)
	}

	if meta.IsDefined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			cfg.Name = name
		}
	}
	if meta.IsDefined("heartbeat") {
		cfg.Heartbeat = strings.TrimSpace(raw.Heartbeat)
	}

	if meta.IsDefined("http", "addr") {
		cfg.HTTP.Addr = strings.TrimSpace(raw.HTTP.Addr)
	}
	if meta.IsDefined("http", "cors_origins") {
		cfg.HTTP.CorsOrigins = normalizeList(raw.HTTP.CorsOrigins)
	}

	if meta.IsDefined("datalog", "dir") {
		cfg.Datalog.Dir = strings.TrimSpace(raw.Datalog.Dir)
	}

	if meta.IsDefined("pipeline", "workers") {
		cfg.Pipeline.Workers = raw.Pipeline.Workers
	}
	if meta.IsDefined("pipeline", "debug") {
		cfg.Pipeline.Debug = raw.Pipeline.Debug
	}
	if meta.IsDefined("pipeline", "flush_interval") {
		cfg.Pipeline.FlushInterval = strings.TrimSpace(raw.Pipeline.FlushInterval)
	}

	if meta.IsDefined("udp", "enabled") {
		cfg.UDP.Enabled = raw.UDP.Enabled
	}
	if meta.IsDefined("udp", "addr") {
		cfg.UDP.Addr = strings.TrimSpace(raw.UDP.Addr)
	}
	if meta.IsDefined("udp", "queue_limit") {
		cfg.UDP.QueueLimit = raw.UDP.QueueLimit
	}

	if meta.IsDefined("serial", "enabled") {
		cfg.Serial.Enabled = raw.Serial.Enabled
	}
	if meta.IsDefined("serial", "port") {
		cfg.Serial.Port = strings.TrimSpace(raw.Serial.Port)
	}
	if meta.IsDefined("serial", "baud") {
		cfg.Serial.Baud = raw.Serial.Baud
	}

	if meta.IsDefined("mqtt", "enabled") {
		cfg.MQTT.Enabled = raw.MQTT.Enabled
	}
	if meta.IsDefined("mqtt", "broker") {
		cfg.MQTT.Broker = strings.TrimSpace(raw.MQTT.Broker)
	}
	if meta.IsDefined("mqtt", "username") {
		cfg.MQTT.Username = raw.MQTT.Username
	}
	if meta.IsDefined("mqtt", "password") {
		cfg.MQTT.Password = raw.MQTT.Password
	}
	if meta.IsDefined("mqtt", "topic") {
		cfg.MQTT.Topic = strings.TrimSpace(raw.MQTT.Topic)
	}

	return nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
