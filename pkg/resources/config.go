package resources

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LoadConfig seeds every configuration key with its default and lets the
// environment override them.
func LoadConfig() {
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_HOST", "localhost")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("DEBUG_PORT", "6060")

	viper.SetDefault("DB_USER", "calendar")
	viper.SetDefault("DB_PASSWORD", "calendar")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_NAME", "calendar")

	viper.SetDefault("OTLP_ENDPOINT", "localhost:4317")

	// First day of the week for the week view: "sunday" or "monday".
	viper.SetDefault("WEEK_START", "sunday")

	// Reminder evaluation schedule, cron syntax.
	viper.SetDefault("NOTIFY_CRON", "* * * * *")
}

// WeekStart resolves the configured first day of the week.
func WeekStart() time.Weekday {
	if strings.EqualFold(viper.GetString("WEEK_START"), "monday") {
		return time.Monday
	}

	return time.Sunday
}
