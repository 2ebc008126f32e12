package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZapLoggerUsage(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "link.log")
	l, err := NewZapLogger(ZapConfig{
		Filepath: logPath,
		Level:    LevelDebug,
		MaxSize:  1,
	})
	require.NoError(t, err)

	l.Info("sweep started", Field{Key: "services", Value: "3"})
	l.Named("modem").With(Field{Key: "run", Value: 7}).Debug("power on", Field{Key: "id", Value: 1})
	l.Warn("open failed", Field{Key: "error", Value: errors.New("no carrier")}, Field{Key: "wait", Value: 2 * time.Second})
	require.NoError(t, l.Sync())

	records := readLogRecords(t, logPath)
	assert.True(t, hasRecord(records, "sweep started", "services", "3"))
	assert.True(t, hasRecord(records, "power on", "logger", "modem"))
	assert.True(t, hasRecord(records, "power on", "run", float64(7)))
	assert.True(t, hasRecord(records, "open failed", "error", "no carrier"))
	assert.True(t, hasRecord(records, "open failed", "wait", "2s"))
}

func TestLoggerEnabled(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "level.log")
	l, err := NewZapLogger(ZapConfig{
		Filepath: logPath,
		Level:    LevelInfo,
		MaxSize:  1,
	})
	require.NoError(t, err)

	assert.False(t, l.Enabled(LevelDebug))
	assert.True(t, l.Enabled(LevelInfo))
	assert.True(t, l.Enabled(LevelWarn))
	assert.False(t, Nop().Enabled(LevelError))
}

func TestPrintfAdapter(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "printf.log")
	l, err := NewZapLogger(ZapConfig{
		Filepath: logPath,
		Level:    LevelDebug,
		MaxSize:  1,
	})
	require.NoError(t, err)

	AsPrintf(l, LevelWarn).Printf("worker %d exited\n", 3)
	AsPrintf(nil, LevelInfo).Printf("dropped")
	require.NoError(t, l.Sync())

	records := readLogRecords(t, logPath)
	assert.True(t, hasRecord(records, "worker 3 exited", "level", "warn"))
}

func TestRegistryUsage(t *testing.T) {
	resetRegistry()

	t.Setenv("HTTPD_LOG_ENABLE", "true")
	logPath := filepath.Join(t.TempDir(), "httpd.log")
	cfg := Config{
		Loggers: []NamedConfig{
			{
				Name:      "httpd",
				Filepath:  logPath,
				Level:     "info",
				EnableEnv: "HTTPD_LOG_ENABLE",
			},
		},
	}
	require.NoError(t, InitFromConfig(cfg))

	log := Get("httpd")
	log.Info("listening", Field{Key: "port", Value: 8080})
	require.NoError(t, log.Sync())

	records := readLogRecords(t, logPath)
	assert.True(t, hasRecord(records, "listening", "port", float64(8080)))
}

func TestRegistryUsageDisabled(t *testing.T) {
	resetRegistry()

	logPath := filepath.Join(t.TempDir(), "disabled.log")
	cfg := Config{
		Loggers: []NamedConfig{
			{
				Name:      "httpd",
				Filepath:  logPath,
				Level:     "info",
				EnableEnv: "HTTPD_LOG_ENABLE",
			},
		},
	}
	require.NoError(t, InitFromConfig(cfg))

	log := Get("httpd")
	log.Info("no_output")
	require.NoError(t, log.Sync())

	_, err := os.Stat(logPath)
	assert.Error(t, err)
}

func readLogRecords(t *testing.T, path string) []map[string]any {
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(string(data), "\n")
	records := make([]map[string]any, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &record))
		records = append(records, record)
	}
	require.NotEmpty(t, records)
	return records
}

func hasRecord(records []map[string]any, msg string, key string, val any) bool {
	for _, record := range records {
		if record["msg"] != msg {
			continue
		}
		if record[key] == val {
			return true
		}
	}
	return false
}
