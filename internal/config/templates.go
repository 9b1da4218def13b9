package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "telemetryd":
		return telemetrydTemplate, nil
	case "override":
		return overrideTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const telemetrydTemplate = `name = "telemetryd"
heartbeat = "10s"

[http]
addr = ":8080"
cors_origins = ["http://localhost:3000"]
# Bearer token for the control endpoints; empty leaves them open.
control_token = ""

[datalog]
dir = "logs"

[pipeline]
# 0 sizes each pool to the number of CPUs; max is 2x that.
workers = 0
debug = false
wait_timeout = "100ms"
drain_timeout = "3s"
flush_interval = "16ms"

[udp]
enabled = true
addr = ":19132"
queue_limit = 50
socket_buffer = 0

[serial]
enabled = false
port = "/dev/ttyUSB0"
baud = 115200

[mqtt]
enabled = false
broker = "localhost"
port = 1883
tls = false
client_id = ""
username = ""
password = ""
topic = "telemetry/can"
qos = 0
ca_file = ""
cert_file = ""
key_file = ""

[sched]
lock_os_thread = false
receiver_nice = 0
worker_nice = 0
`

const overrideTemplate = `# Partial overrides applied on top of the main config.
# Only keys present here are changed.
[udp]
addr = ":19132"

[pipeline]
debug = true
`
