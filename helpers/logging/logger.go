// Package logging provides component-scoped hclog loggers that redact
// sensitive fields before they are emitted.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// RootName prefixes every component logger name.
const RootName = "waterfall-bridge"

// Configuration holds the logging configuration
type Configuration struct {
	DefaultLevel    hclog.Level
	ComponentLevels map[string]hclog.Level
	EnableDebug     bool
	// JSONFormat switches output to one JSON object per line. Plugin mode
	// requires it so the host can parse the stream.
	JSONFormat bool
	// Output defaults to stderr.
	Output io.Writer
}

var (
	globalConfig = &Configuration{
		DefaultLevel:    hclog.Info,
		ComponentLevels: make(map[string]hclog.Level),
	}
	configMu sync.RWMutex
)

func init() {
	loadEnvironmentConfig()
}

// NewLogger creates a logger for component using the current configuration.
// Loggers created before a later Configure call keep their settings.
func NewLogger(component string) hclog.Logger {
	configMu.RLock()
	defer configMu.RUnlock()

	level := globalConfig.DefaultLevel
	if componentLevel, exists := globalConfig.ComponentLevels[component]; exists {
		level = componentLevel
	}
	if globalConfig.EnableDebug && level > hclog.Debug {
		level = hclog.Debug
	}

	output := globalConfig.Output
	if output == nil {
		output = os.Stderr
	}

	base := hclog.New(&hclog.LoggerOptions{
		Name:       RootName,
		Level:      level,
		Output:     output,
		JSONFormat: globalConfig.JSONFormat,
	})
	if component != "" {
		base = base.Named(component)
	}
	return Redacting(base)
}

// Configure updates the global logging configuration
func Configure(config *Configuration) {
	configMu.Lock()
	defer configMu.Unlock()

	if config == nil {
		return
	}

	if config.DefaultLevel != hclog.NoLevel {
		globalConfig.DefaultLevel = config.DefaultLevel
	}
	globalConfig.EnableDebug = config.EnableDebug
	globalConfig.JSONFormat = config.JSONFormat
	globalConfig.Output = config.Output

	for component, level := range config.ComponentLevels {
		globalConfig.ComponentLevels[component] = level
	}
}

// CurrentConfiguration returns a copy of the active configuration.
func CurrentConfiguration() Configuration {
	configMu.RLock()
	defer configMu.RUnlock()

	cp := *globalConfig
	cp.ComponentLevels = make(map[string]hclog.Level, len(globalConfig.ComponentLevels))
	for k, v := range globalConfig.ComponentLevels {
		cp.ComponentLevels[k] = v
	}
	return cp
}

// ParseLevel parses a level name such as "debug" or "warn".
func ParseLevel(s string) (hclog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return hclog.NoLevel, nil
	}
	level := hclog.LevelFromString(s)
	if level == hclog.NoLevel {
		return hclog.NoLevel, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// loadEnvironmentConfig loads configuration from environment variables
func loadEnvironmentConfig() {
	if debug := os.Getenv("DEBUG"); debug == "1" || strings.ToLower(debug) == "true" {
		globalConfig.EnableDebug = true
	}

	if debugComponents := os.Getenv("DEBUG_COMPONENTS"); debugComponents != "" {
		for _, component := range strings.Split(debugComponents, ",") {
			component = strings.TrimSpace(component)
			if component != "" {
				globalConfig.ComponentLevels[component] = hclog.Debug
			}
		}
	}

	if level, err := ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && level != hclog.NoLevel {
		globalConfig.DefaultLevel = level
	}

	if format := os.Getenv("LOG_FORMAT"); strings.EqualFold(format, "json") {
		globalConfig.JSONFormat = true
	}
}

var sensitiveKeyTokens = []string{
	"password",
	"secret",
	"token",
	"credential",
	"auth",
	"cookie",
	"api_key",
}

// redactingLogger scrubs sensitive key/value pairs from every call.
type redactingLogger struct {
	hclog.Logger
}

// Redacting wraps l so that values whose key looks sensitive are replaced
// and string values are cut at the first control character.
func Redacting(l hclog.Logger) hclog.Logger {
	if _, ok := l.(redactingLogger); ok {
		return l
	}
	return redactingLogger{Logger: l}
}

func (l redactingLogger) Log(level hclog.Level, msg string, args ...interface{}) {
	l.Logger.Log(level, msg, sanitizeArgs(args)...)
}

func (l redactingLogger) Trace(msg string, args ...interface{}) {
	l.Logger.Trace(msg, sanitizeArgs(args)...)
}

func (l redactingLogger) Debug(msg string, args ...interface{}) {
	l.Logger.Debug(msg, sanitizeArgs(args)...)
}

func (l redactingLogger) Info(msg string, args ...interface{}) {
	l.Logger.Info(msg, sanitizeArgs(args)...)
}

func (l redactingLogger) Warn(msg string, args ...interface{}) {
	l.Logger.Warn(msg, sanitizeArgs(args)...)
}

func (l redactingLogger) Error(msg string, args ...interface{}) {
	l.Logger.Error(msg, sanitizeArgs(args)...)
}

func (l redactingLogger) With(args ...interface{}) hclog.Logger {
	return redactingLogger{Logger: l.Logger.With(sanitizeArgs(args)...)}
}

func (l redactingLogger) Named(name string) hclog.Logger {
	return redactingLogger{Logger: l.Logger.Named(name)}
}

func (l redactingLogger) ResetNamed(name string) hclog.Logger {
	return redactingLogger{Logger: l.Logger.ResetNamed(name)}
}

func sanitizeArgs(args []interface{}) []interface{} {
	if len(args) == 0 {
		return args
	}
	sanitized := make([]interface{}, len(args))
	copy(sanitized, args)
	for i := 0; i+1 < len(sanitized); i += 2 {
		key, ok := sanitized[i].(string)
		if !ok {
			continue
		}
		sanitized[i+1] = sanitizeFieldValue(key, sanitized[i+1])
	}
	return sanitized
}

func sanitizeFieldValue(key string, value interface{}) interface{} {
	if shouldRedactKey(key) {
		return "<redacted>"
	}
	if str, ok := value.(string); ok {
		return sanitizeStringInput(str)
	}
	return value
}

func shouldRedactKey(key string) bool {
	lower := strings.ToLower(key)
	for _, token := range sensitiveKeyTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

func sanitizeStringInput(input string) string {
	for idx, r := range input {
		if r == '\n' || r == '\r' || r == 0 {
			return input[:idx]
		}
	}
	return input
}
