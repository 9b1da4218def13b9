package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/danmuck/cantelemetry/internal/config"
	"github.com/danmuck/cantelemetry/internal/simulate"
	"github.com/danmuck/cantelemetry/internal/transport/mqtt"
	"github.com/danmuck/cantelemetry/internal/transport/udp"
)

const connectTimeout = 10 * time.Second

type options struct {
	transport string
	udpAddr   string
	mqtt      mqtt.Address
	sim       simulate.Config
}

type publisher interface {
	simulate.Publisher
	io.Closer
}

func parseOptions(args []string) (options, error) {
	var o options
	var qos int
	fs := pflag.NewFlagSet("cansim", pflag.ContinueOnError)
	fs.StringVarP(&o.transport, "transport", "t", "udp", "udp|mqtt")
	fs.StringVar(&o.udpAddr, "udp-addr", "127.0.0.1"+config.DefaultUDPAddr, "UDP destination")
	fs.StringVar(&o.mqtt.Broker, "mqtt-broker", config.DefaultMQTTBroker, "MQTT broker host")
	fs.IntVar(&o.mqtt.Port, "mqtt-port", 0, "MQTT broker port (0 picks by scheme)")
	fs.BoolVar(&o.mqtt.TLS, "mqtt-tls", false, "connect with TLS")
	fs.StringVar(&o.mqtt.Username, "mqtt-user", "", "MQTT username")
	fs.StringVar(&o.mqtt.Password, "mqtt-pass", "", "MQTT password")
	fs.StringVar(&o.mqtt.CAFile, "mqtt-ca", "", "PEM CA file for broker TLS")
	fs.StringVar(&o.mqtt.Topic, "mqtt-topic", config.DefaultMQTTTopic, "MQTT topic")
	fs.IntVar(&qos, "mqtt-qos", 0, "MQTT publish QoS")
	fs.IntVarP(&o.sim.Rate, "rate", "r", simulate.DefaultRate, "bursts per second")
	fs.DurationVar(&o.sim.Sweep, "sweep", simulate.DefaultSweep, "period of the 0..1 sweep")
	fs.Float64Var(&o.sim.Level, "level", 0, "fixed level in [0,1]; disables the sweep")
	fs.IntVarP(&o.sim.Count, "count", "n", 0, "stop after n bursts (0 runs until interrupted)")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	o.transport = strings.ToLower(strings.TrimSpace(o.transport))
	if o.transport != "udp" && o.transport != "mqtt" {
		return options{}, fmt.Errorf("unknown transport %q", o.transport)
	}
	if qos < 0 || qos > 2 {
		return options{}, fmt.Errorf("mqtt-qos must be 0, 1 or 2")
	}
	o.mqtt.QoS = byte(qos)
	o.sim.Static = fs.Changed("level")
	return o, nil
}

func (o options) target() string {
	if o.transport == "mqtt" {
		return o.mqtt.String()
	}
	return o.udpAddr
}

func dial(o options) (publisher, error) {
	if o.transport == "mqtt" {
		pub, err := mqtt.Connect(o.mqtt, connectTimeout)
		if err != nil {
			return nil, err
		}
		return pub, nil
	}
	pub, err := udp.Dial(o.udpAddr)
	if err != nil {
		return nil, err
	}
	return pub, nil
}
