package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port   string
	JWTKey string

	// Registration numbering
	IssuerPrefix    string // issuer code printed on every certificate, e.g. "NCA"
	RegistrationPad int    // zero-padded digit width of the numeric part

	// Artifact storage
	StorageRoot string

	// External document converter
	ConverterBin             string
	ConverterTimeoutSec      int
	ConverterRetries         int
	ConverterMinBytes        int
	MaxConcurrentConversions int

	// Generation worker
	WorkerCronSpec     string
	MaxAttempts        int
	GenerationLeaseSec int // GENERATING rows older than this are reclaimed

	// Collaborators
	ClaimsCallbackURL string
	PublicBaseURL     string

	EmailSender string
	Password    string // SMTP Password
}

// AppConfig is a global variable to access configuration
var AppConfig *Config

// LoadConfig initializes configuration from environment variables or defaults
func LoadConfig() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found. Using system environment variables.")
	}

	AppConfig = &Config{
		Port:   getEnv("PORT", "3000"),
		JWTKey: getEnv("JWT_SECRET_KEY", "defaultSecret"),

		IssuerPrefix:    getEnv("ISSUER_PREFIX", "NCA"),
		RegistrationPad: getEnvInt("REGISTRATION_PAD", 6),

		StorageRoot: getEnv("STORAGE_ROOT", "./storage"),

		ConverterBin:             getEnv("CONVERTER_BIN", "soffice"),
		ConverterTimeoutSec:      getEnvInt("CONVERTER_TIMEOUT_SEC", 45),
		ConverterRetries:         getEnvInt("CONVERTER_RETRIES", 3),
		ConverterMinBytes:        getEnvInt("CONVERTER_MIN_BYTES", 1024),
		MaxConcurrentConversions: getEnvInt("MAX_CONCURRENT_CONVERSIONS", 2),

		WorkerCronSpec:     getEnv("WORKER_CRON_SPEC", "* * * * *"),
		MaxAttempts:        getEnvInt("MAX_GENERATION_ATTEMPTS", 5),
		GenerationLeaseSec: getEnvInt("GENERATION_LEASE_SEC", 300),

		ClaimsCallbackURL: getEnv("CLAIMS_CALLBACK_URL", ""),
		PublicBaseURL:     getEnv("PUBLIC_BASE_URL", "http://localhost:3000"),

		EmailSender: getEnv("EMAIL_SENDER", "defaultSecret"),
		Password:    getEnv("PASSWORD", "defaultSecret"),
	}

	// Validate critical configuration
	if AppConfig.JWTKey == "defaultSecret" {
		log.Println("Warning: Using default JWT_SECRET_KEY. Update it in your environment.")
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an environment variable as an integer or returns the default integer value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Error converting environment variable %s to int: %v", key, err)
		return defaultValue
	}
	return intValue
}
