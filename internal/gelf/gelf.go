package gelf

import (
	"encoding/json"
	"io"
	"net"
	"os"
	"strings"
	"time"
)

// Writer sends GELF messages over UDP. It expects one zap JSON entry per
// Write call and implements zapcore.WriteSyncer.
type Writer struct {
	conn     io.Writer
	hostname string
	service  string
}

// New creates a GELF UDP writer connected to addr (e.g. "172.17.0.1:12201").
func New(addr, service string) (*Writer, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, err
	}
	return newWriter(conn, service), nil
}

func newWriter(conn io.Writer, service string) *Writer {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = service + "-server"
	}
	return &Writer{conn: conn, hostname: hostname, service: service}
}

// Write implements io.Writer. Each call sends one GELF message. Lines that
// are not JSON are forwarded verbatim as the short message.
func (w *Writer) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")

	msg := map[string]any{
		"version":       "1.1",
		"host":          w.hostname,
		"short_message": line,
		"timestamp":     float64(time.Now().UnixNano()) / 1e9,
		"level":         6,
		"_service":      w.service,
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err == nil {
		for k, v := range entry {
			switch k {
			case "msg":
				msg["short_message"] = v
			case "level":
				lvl, _ := v.(string)
				msg["level"] = severity(lvl)
			case "ts":
				if ts, ok := v.(float64); ok {
					msg["timestamp"] = ts
				}
			default:
				msg["_"+k] = v
			}
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return len(p), nil
	}

	// Fire-and-forget
	w.conn.Write(payload)
	return len(p), nil
}

// Sync implements zapcore.WriteSyncer; UDP writes are not buffered.
func (w *Writer) Sync() error { return nil }

// severity maps zap level names to syslog severities.
func severity(level string) int {
	switch level {
	case "debug":
		return 7
	case "info":
		return 6
	case "warn":
		return 4
	case "":
		return 6
	default:
		return 3
	}
}
