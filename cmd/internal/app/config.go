package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// WebSocket origin policy.
	OriginRequired bool
	AllowedOrigins []string

	SendQueueSize int
	WriteTimeout  time.Duration

	// Token lifecycle. An empty TokenSecret falls back to a built-in
	// development secret (logged loudly at startup).
	TokenSecret string
	TokenTTL    time.Duration

	// Liveness probe cadence, teardown threshold, and renewal slack.
	LivenessInterval time.Duration
	LivenessTimeout  time.Duration
	RenewalMargin    time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("SOCKAUTH_HTTP_ADDR", "0.0.0.0:9001"),
		LogLevel: EnvString("SOCKAUTH_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("SOCKAUTH_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		IdleTimeout:       EnvDuration("SOCKAUTH_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("SOCKAUTH_HTTP_MAX_HEADER_BYTES", 1<<20),

		OriginRequired: EnvBool("SOCKAUTH_WS_ORIGIN_REQUIRED", false),
		AllowedOrigins: EnvCSV("SOCKAUTH_WS_ALLOWED_ORIGINS", "http://localhost,http://127.0.0.1"),

		SendQueueSize: EnvInt("SOCKAUTH_WS_SEND_QUEUE", 64),
		WriteTimeout:  EnvDuration("SOCKAUTH_WS_WRITE_TIMEOUT", 5*time.Second),

		TokenSecret: EnvString("SOCKAUTH_TOKEN_SECRET", ""),
		TokenTTL:    EnvDuration("SOCKAUTH_TOKEN_TTL", time.Hour),

		LivenessInterval: EnvDuration("SOCKAUTH_LIVENESS_INTERVAL", 5*time.Second),
		LivenessTimeout:  EnvDuration("SOCKAUTH_LIVENESS_TIMEOUT", 10*time.Second),
		RenewalMargin:    EnvDuration("SOCKAUTH_RENEWAL_MARGIN", 2*time.Second),
	}
}
