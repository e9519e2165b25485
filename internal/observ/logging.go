package observ

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	sinkMu sync.RWMutex
	sink   io.Writer = os.Stdout
)

// LogFileConfig controls the optional rotating file sink. Zero value means
// stdout only.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// InitLogFile tees log output to a size-rotated file in addition to stdout.
func InitLogFile(cfg LogFileConfig) {
	if cfg.Path == "" {
		return
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 3
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 28
	}
	rotated := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	sinkMu.Lock()
	sink = io.MultiWriter(os.Stdout, rotated)
	sinkMu.Unlock()
}

// Log emits one JSON line with a timestamp and event name plus the given
// key/value pairs.
func Log(event string, kv map[string]any) {
	if kv == nil {
		kv = map[string]any{}
	}
	kv["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	kv["event"] = event
	b, _ := json.Marshal(kv)
	sinkMu.RLock()
	fmt.Fprintln(sink, string(b))
	sinkMu.RUnlock()
}

// Debug is for expected, high-volume events (dropped duplicates and the like)
// that operators usually filter out.
func Debug(event string, kv map[string]any) {
	if kv == nil {
		kv = map[string]any{}
	}
	kv["level"] = "debug"
	Log(event, kv)
}

// Warn marks an event an operator should look at but that does not stop the
// pipeline.
func Warn(event string, kv map[string]any) {
	if kv == nil {
		kv = map[string]any{}
	}
	kv["level"] = "warn"
	Log(event, kv)
}
