package app

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/shrimpsizemoose/trekker/logger"
)

type Config struct {
	Server struct {
		Port       string `toml:"port"`
		EnableAuth bool   `toml:"enable_auth"`
	} `toml:"server"`

	Auth struct {
		RedisURL        string `toml:"redis_url"`
		TokenHeader     string `toml:"token_header"`
		SessionTTLHours int    `toml:"session_ttl_hours"`
		StudentIDHeader string `toml:"student_id_header"`
		RoleHeader      string `toml:"role_header"`
	} `toml:"auth"`

	Token struct {
		Secret               string `toml:"secret"`
		ValiditySeconds      int    `toml:"validity_seconds"`
		QRRefreshRateSeconds int    `toml:"qr_refresh_rate_seconds"`
		QRImageSize          int    `toml:"qr_image_size"`
	} `toml:"token"`

	Database struct {
		DSN              string `toml:"dsn"`
		MigrationsDir    string `toml:"migrations_dir"`
		FallbackToMemory bool   `toml:"fallback_to_memory"`
	} `toml:"database"`

	Broadcast struct {
		RedisURL string `toml:"redis_url"`
		Channel  string `toml:"channel"`
		Buffer   int    `toml:"buffer"`
	} `toml:"broadcast"`

	Display struct {
		TimestampFormat string `toml:"timestamp_format"`
	} `toml:"display"`

	Attendance struct {
		Checkpoints []string `toml:"checkpoints"`
	} `toml:"attendance"`

	Demo struct {
		SeedUsers bool   `toml:"seed_users"`
		Password  string `toml:"password"`
	} `toml:"demo"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf(
			"error reading config file %s\n> Error: %w\n> Content:\n%s",
			path,
			err,
			string(data),
		)
	}

	if config.Server.Port == "" {
		return nil, fmt.Errorf("Server port is not specified in config, use a value like :9999")
	}
	if config.Token.Secret == "" {
		return nil, fmt.Errorf("Token secret is not specified in config")
	}
	if len(config.Attendance.Checkpoints) == 0 {
		return nil, fmt.Errorf("No attendance checkpoints specified in config")
	}

	if config.Token.ValiditySeconds <= 0 {
		config.Token.ValiditySeconds = 5
	}
	if config.Token.QRRefreshRateSeconds <= 0 {
		config.Token.QRRefreshRateSeconds = 2
	}
	if config.Auth.TokenHeader == "" {
		config.Auth.TokenHeader = "Authorization"
	}
	if config.Auth.SessionTTLHours <= 0 {
		config.Auth.SessionTTLHours = 12
	}
	if config.Display.TimestampFormat == "" {
		config.Display.TimestampFormat = "03:04:05 PM"
	}
	if config.Broadcast.Channel == "" {
		config.Broadcast.Channel = "narvaro:checkins"
	}
	if config.Broadcast.Buffer <= 0 {
		config.Broadcast.Buffer = 16
	}

	logger.Debug.Printf("Loaded checkpoints: %v", config.Attendance.Checkpoints)

	return &config, nil
}
