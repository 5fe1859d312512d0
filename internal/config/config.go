package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Auth struct {
		Secret string `yaml:"secret"`
	} `yaml:"auth"`
	Game struct {
		RoomCapacity   int    `yaml:"room_capacity"`
		MinPlayers     int    `yaml:"min_players"`
		TotalQuestions int    `yaml:"total_questions"`
		QuestionTime   string `yaml:"question_time"`
		Reward         int    `yaml:"reward"`
		Level          int    `yaml:"level"`
		Difficulty     int    `yaml:"difficulty"`
	} `yaml:"game"`
	Retry struct {
		Attempts int    `yaml:"attempts"`
		Backoff  string `yaml:"backoff"`
	} `yaml:"retry"`
	Leaderboard struct {
		Size int `yaml:"size"`
	} `yaml:"leaderboard"`
	Bus struct {
		QueueSize int `yaml:"queue_size"`
	} `yaml:"bus"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
