package config

import (
	"os"
	"strconv"
	"time"
)

// AppConfig holds the business constants the receipt engine depends on.
// All issue dates, "today" and "this month" computations use Location.
type AppConfig struct {
	TimezoneName      string
	Location          *time.Location
	ReceiptPrefix     string
	DefaultStation    string
	DefaultIssuerName string
	VerifyURLTemplate string
	NumberMaxAttempts int
	StalePendingDays  int
}

func LoadAppConfig() *AppConfig {
	tzName := getEnv("APP_TIMEZONE", "Africa/Juba")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		// Business timezone is fixed UTC+3 regardless of the host tzdata
		loc = time.FixedZone("UTC+3", 3*60*60)
	}

	return &AppConfig{
		TimezoneName:      tzName,
		Location:          loc,
		ReceiptPrefix:     getEnv("RECEIPT_PREFIX", "KSH-CR"),
		DefaultStation:    getEnv("RECEIPT_DEFAULT_STATION", "JUB"),
		DefaultIssuerName: getEnv("RECEIPT_DEFAULT_ISSUER", "Staff"),
		VerifyURLTemplate: getEnv("RECEIPT_VERIFY_URL", "https://avelio.app/verify/%s"),
		NumberMaxAttempts: getEnvAsInt("RECEIPT_NUMBER_MAX_ATTEMPTS", 3),
		StalePendingDays:  getEnvAsInt("RECEIPT_STALE_PENDING_DAYS", 3),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
