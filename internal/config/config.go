// Package config holds the environment-driven settings for the assistant.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config is parsed straight from the environment. A .env file, if present,
// is loaded by the entrypoint before parsing.
type Config struct {
	LLMProvider       string  `envconfig:"LLM_PROVIDER" default:"openai"`
	OpenAIAPIKey      string  `envconfig:"OPENAI_API_KEY"`
	OpenAIModel       string  `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAITemperature float64 `envconfig:"OPENAI_TEMPERATURE" default:"0.2"`
	OpenAIAPIHost     string  `envconfig:"OPENAI_API_HOST" default:"https://api.openai.com/v1"`
	OpenRouterAPIKey  string  `envconfig:"OPENROUTER_API_KEY"`
	OpenRouterAPIHost string  `envconfig:"OPENROUTER_API_HOST" default:"https://openrouter.ai/api/v1"`

	ProjectTimezone string `envconfig:"PROJECT_TIMEZONE" default:"Europe/Riga"`

	// CalendarBackend selects the calendar implementation: google or caldav.
	CalendarBackend string `envconfig:"CALENDAR_BACKEND" default:"google"`

	GoogleCredsJSON    string `envconfig:"GOOGLE_CREDS_JSON"`
	GoogleTokenJSON    string `envconfig:"GOOGLE_TOKEN_JSON"`
	GoogleCalendarID   string `envconfig:"GOOGLE_CALENDAR_ID" default:"primary"`
	GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string `envconfig:"GOOGLE_REDIRECT_URI"`

	CalDAVEndpoint string `envconfig:"CALDAV_ENDPOINT" default:"https://caldav.icloud.com/"`
	CalDAVUsername string `envconfig:"CALDAV_USERNAME"`
	CalDAVPassword string `envconfig:"CALDAV_PASSWORD"`
	CalDAVCalendar string `envconfig:"CALDAV_CALENDAR_NAME"`

	SQLitePath string `envconfig:"SQLITE_DB_PATH" default:"calendar_assistant.db"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPAddr   string `envconfig:"HTTP_ADDR" default:":8080"`
}

// New parses the environment into a Config.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	switch cfg.CalendarBackend {
	case "google", "caldav":
	default:
		return nil, fmt.Errorf("unsupported CALENDAR_BACKEND: %s", cfg.CalendarBackend)
	}
	return &cfg, nil
}
