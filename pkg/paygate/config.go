package paygate

import (
	"os"
	"strconv"
	"time"
)

// Config carries everything the payment gateway client needs. Loaded from
// env so the client can be constructed before the service config exists.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	RetryCount int
	RetryDelay time.Duration

	CircuitBreakerEnabled bool
	CBFailureThreshold    int
	CBMinRequests         int
	CBHalfOpenMaxSuccess  int
	CBSamplingDuration    time.Duration
	CBRecoveryTime        time.Duration
}

func LoadFromEnv() Config {
	return Config{
		BaseURL: getenv("PAYGATE_BASE_URL", "http://localhost:9090"),
		APIKey:  os.Getenv("PAYGATE_API_KEY"),
		Timeout: getenvDuration("PAYGATE_TIMEOUT", 10*time.Second),

		RetryCount: getenvInt("PAYGATE_RETRY_COUNT", 2),
		RetryDelay: getenvDuration("PAYGATE_RETRY_DELAY", 200*time.Millisecond),

		CircuitBreakerEnabled: getenvBool("PAYGATE_CB_ENABLED", true),
		CBFailureThreshold:    getenvInt("PAYGATE_CB_FAILURE_THRESHOLD", 5),
		CBMinRequests:         getenvInt("PAYGATE_CB_MIN_REQUESTS", 10),
		CBHalfOpenMaxSuccess:  getenvInt("PAYGATE_CB_HALF_OPEN_MAX", 2),
		CBSamplingDuration:    getenvDuration("PAYGATE_CB_SAMPLING", time.Minute),
		CBRecoveryTime:        getenvDuration("PAYGATE_CB_RECOVERY", 30*time.Second),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return parsed
}
