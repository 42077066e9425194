package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	AppName  string
	LogLevel string

	GeminiAPIKey  string
	GeminiModelID string

	RazorpayKeyID     string
	RazorpayKeySecret string
	RazorpayBaseURL   string
	RazorpayPollWait  time.Duration
	AllowFakePayments bool

	AppointmentFeeMinor int64
	Currency            string

	RedisAddr     string
	RedisPassword string
	HistoryTTL    time.Duration

	DatabaseURL string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		AppName:  getEnv("APP_NAME", "MediConnect AI"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModelID: getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		RazorpayKeyID:     getEnv("RAZORPAY_KEY_ID", ""),
		RazorpayKeySecret: getEnv("RAZORPAY_KEY_SECRET", ""),
		RazorpayBaseURL:   getEnv("RAZORPAY_BASE_URL", "https://api.razorpay.com"),
		RazorpayPollWait:  getEnvAsDuration("RAZORPAY_POLL_WAIT", 3*time.Minute),
		AllowFakePayments: getEnvAsBool("ALLOW_FAKE_PAYMENTS", false),

		AppointmentFeeMinor: int64(getEnvAsInt("APPOINTMENT_FEE_MINOR", 50000)),
		Currency:            getEnv("CURRENCY", "INR"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		HistoryTTL:    getEnvAsDuration("HISTORY_TTL", 24*time.Hour),

		DatabaseURL: getEnv("DATABASE_URL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
