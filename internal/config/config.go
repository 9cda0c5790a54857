package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	DatabaseURL string

	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAIModel           string
	OpenAIExtractionModel string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	// WebhookBaseURL is the public origin Twilio signs webhook requests
	// against (e.g. https://tint.example.com). Empty disables signature
	// verification.
	WebhookBaseURL string

	// BookingURL is the generic self-service scheduling link shared with
	// customers; the responder swaps it for a per-conversation tracking link
	// before transmission.
	BookingURL string

	// OperatorPhone receives ready-to-book alerts. OwnerPhone receives a copy
	// when it differs from OperatorPhone.
	OperatorPhone string
	OwnerPhone    string

	// ReplyDebounce is the quiet period collapsing a burst of inbound messages
	// into a single reply attempt. Zero disables debouncing (replies fire
	// synchronously).
	ReplyDebounce time.Duration

	// CallMinAnswerSeconds is the dial duration above which a voice call
	// counts as answered by a human, suppressing the bot for that customer.
	CallMinAnswerSeconds int
	CallAnsweredReply    string
	CallMissedReply      string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-5"),
		OpenAIExtractionModel: getEnv("OPENAI_EXTRACTION_MODEL", "gpt-4o-mini"),

		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
		WebhookBaseURL:   getEnv("WEBHOOK_BASE_URL", ""),

		BookingURL:    getEnv("BOOKING_URL", "https://book.obsidianautoworks.com/tint"),
		OperatorPhone: getEnv("OPERATOR_PHONE", ""),
		OwnerPhone:    getEnv("OWNER_PHONE", ""),

		ReplyDebounce: getEnvAsDuration("REPLY_DEBOUNCE", 8*time.Second),

		CallMinAnswerSeconds: getEnvAsInt("CALL_MIN_ANSWER_SECONDS", 20),
		CallAnsweredReply: getEnv("CALL_ANSWERED_REPLY",
			"Great talking with you! Reply here if you have any other questions about tinting your vehicle."),
		CallMissedReply: getEnv("CALL_MISSED_REPLY",
			"Sorry we missed your call! This is Obsidian Auto Works - happy to help with a tint quote right here over text. What kind of vehicle do you have?"),
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
