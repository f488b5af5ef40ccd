package core

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// ProductionLogger writes structured logs to an io.Writer. It renders
// text for local development and JSON when running inside Kubernetes
// (detected via KUBERNETES_SERVICE_HOST), matching log aggregation
// expectations. Thread-safe.
type ProductionLogger struct {
	level  string
	format string
	name   string
	output io.Writer
	mu     sync.Mutex
}

var levelRank = map[string]int{
	"DEBUG": 0,
	"INFO":  1,
	"WARN":  2,
	"ERROR": 3,
}

// NewProductionLogger creates a logger from the logging configuration.
// An empty format auto-detects: JSON in Kubernetes, text elsewhere.
func NewProductionLogger(name string, cfg LoggingConfig) *ProductionLogger {
	level := strings.ToUpper(cfg.Level)
	if _, ok := levelRank[level]; !ok {
		level = "INFO"
	}

	format := cfg.Format
	if format == "" {
		format = "text"
		if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
			format = "json"
		}
	}

	return &ProductionLogger{
		level:  level,
		format: format,
		name:   name,
		output: os.Stdout,
	}
}

// SetOutput redirects log output, primarily for tests
func (l *ProductionLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

func (l *ProductionLogger) Info(msg string, fields map[string]interface{})  { l.log("INFO", msg, fields) }
func (l *ProductionLogger) Warn(msg string, fields map[string]interface{})  { l.log("WARN", msg, fields) }
func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) { l.log("ERROR", msg, fields) }
func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) { l.log("DEBUG", msg, fields) }

func (l *ProductionLogger) log(level, msg string, fields map[string]interface{}) {
	if levelRank[level] < levelRank[l.level] {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		entry := map[string]interface{}{
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			"level":     level,
			"service":   l.name,
			"message":   msg,
		}
		for k, v := range fields {
			entry[k] = v
		}
		if raw, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(l.output, string(raw))
			return
		}
		// Fall through to text when a field is not serializable.
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s: %s",
		time.Now().Format("2006-01-02 15:04:05"), level, l.name, msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}

	fmt.Fprintln(l.output, b.String())
}
