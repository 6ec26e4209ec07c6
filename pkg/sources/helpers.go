package sources

import (
	"time"

	"tc.com/token-prices/pkg/logging"
)

// GetLoggerFromConfig extracts logger from config map or returns a default noop logger.
// Sources should use this to get the logger passed from main.
// If no logger is configured, returns a noop logger to prevent nil pointer dereferences.
func GetLoggerFromConfig(config map[string]interface{}) *logging.Logger {
	if loggerInterface, ok := config["logger"]; ok {
		if logger, ok := loggerInterface.(*logging.Logger); ok {
			return logger
		}
	}

	// return default noop logger if logger not found
	return logging.NewNoopLogger()
}

// GetStringFromConfig extracts a string value from a config map.
func GetStringFromConfig(config map[string]interface{}, key, defaultVal string) string {
	if v, ok := config[key].(string); ok {
		return v
	}
	return defaultVal
}

// GetIntFromConfig extracts an integer from a config map. YAML decodes
// numbers as int or float64 depending on context, both are accepted.
func GetIntFromConfig(config map[string]interface{}, key string, defaultVal int) int {
	switch v := config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return defaultVal
	}
}

// GetDurationFromConfig extracts a duration string (e.g. "10s") from a config map.
func GetDurationFromConfig(config map[string]interface{}, key string, defaultVal time.Duration) time.Duration {
	if s, ok := config[key].(string); ok {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return defaultVal
}

// GetStringMapFromConfig extracts a map of string -> string from a config map.
func GetStringMapFromConfig(config map[string]interface{}, key string) map[string]string {
	raw, ok := config[key].(map[string]interface{})
	if !ok {
		return nil
	}

	result := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			result[k] = s
		}
	}
	return result
}
