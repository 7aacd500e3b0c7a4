package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all the configuration for the application
type Config struct {
	BotToken        string
	ChannelID       int64
	SheetID         string
	CredentialsJSON string
	CredentialsFile string
	SheetsDisabled  bool
	DatabasePath    string
	SurveyPath      string
	ReminderDelay   time.Duration
	Debug           bool
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	botToken := os.Getenv("BOT_TOKEN")
	if botToken == "" {
		return nil, errors.New("BOT_TOKEN environment variable is required")
	}

	channelRaw := os.Getenv("CHANNEL_ID")
	if channelRaw == "" {
		return nil, errors.New("CHANNEL_ID environment variable is required")
	}
	channelID, err := strconv.ParseInt(channelRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("CHANNEL_ID must be a numeric chat id: %w", err)
	}

	cfg := &Config{
		BotToken:        botToken,
		ChannelID:       channelID,
		SheetID:         os.Getenv("SHEET_ID"),
		CredentialsJSON: os.Getenv("GOOGLE_CREDENTIALS_JSON"),
		CredentialsFile: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
		SheetsDisabled:  os.Getenv("SHEETS_DISABLED") == "true",
		Debug:           os.Getenv("DEBUG") == "true",
	}

	if !cfg.SheetsDisabled {
		if cfg.SheetID == "" {
			return nil, errors.New("SHEET_ID environment variable is required (or set SHEETS_DISABLED=true)")
		}
		if cfg.CredentialsJSON == "" && cfg.CredentialsFile == "" {
			return nil, errors.New("either GOOGLE_CREDENTIALS_JSON or GOOGLE_CREDENTIALS_FILE is required (or set SHEETS_DISABLED=true)")
		}
	}

	// Set database path with default
	cfg.DatabasePath = os.Getenv("DB_PATH")
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "./data/leadbot.db"
	}

	cfg.SurveyPath = os.Getenv("SURVEY_PATH")
	if cfg.SurveyPath == "" {
		cfg.SurveyPath = "assets/survey.yaml"
	}

	cfg.ReminderDelay = 24 * time.Hour
	if raw := os.Getenv("REMINDER_DELAY"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("REMINDER_DELAY must be a duration like 24h or 15m: %w", err)
		}
		cfg.ReminderDelay = d
	}

	return cfg, nil
}
