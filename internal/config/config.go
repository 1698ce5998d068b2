package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port            int           `mapstructure:"port"`
	PublicDir       string        `mapstructure:"public_dir"`
	PublicURLPrefix string        `mapstructure:"public_url_prefix"`
	TmpDir          string        `mapstructure:"tmp_dir"`
	JobsPath        string        `mapstructure:"jobs_path"`
	DBPath          string        `mapstructure:"db_path"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Sink            string        `mapstructure:"sink"`
	SinkTarget      string        `mapstructure:"sink_target"`
	SerializeRelays bool          `mapstructure:"serialize_relays"`
	ProgressEvery   time.Duration `mapstructure:"progress_interval"`
	Keepalive       time.Duration `mapstructure:"keepalive"`
	MaxSubscribers  int           `mapstructure:"max_subscribers"`
	TreeMaxNodes    int           `mapstructure:"tree_max_nodes"`
	StallTimeout    time.Duration `mapstructure:"stall_timeout"`
	FFmpegPath      string        `mapstructure:"ffmpeg_path"`
	FFprobePath     string        `mapstructure:"ffprobe_path"`
	CookiesPath     string        `mapstructure:"cookies_path"`
	RestartCommand  string        `mapstructure:"restart_command"`
	RelayIgnore     []string      `mapstructure:"relay_ignore"`
}

var Default = Config{
	Port:            11000,
	PublicDir:       "/var/www/dl",
	PublicURLPrefix: "/dl/",
	TmpDir:          "tmp",
	JobsPath:        "jobs.json",
	DBPath:          "fetchrelay.db",
	Sink:            "none",
	SerializeRelays: true,
	ProgressEvery:   750 * time.Millisecond,
	Keepalive:       15 * time.Second,
	MaxSubscribers:  100,
	TreeMaxNodes:    5000,
	StallTimeout:    60 * time.Second,
	FFmpegPath:      "ffmpeg",
	FFprobePath:     "ffprobe",
	CookiesPath:     "/opt/metube/cookies.txt",
	RestartCommand:  "systemctl restart metube",
	RelayIgnore:     []string{".*", "*.part", "*.tmp"},
}

func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home dir: %w", err)
	}

	dir := filepath.Join(home, ".fetchrelay")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config dir: %w", err)
	}

	return dir, nil
}

// Load reads config.yaml from path (or ~/.fetchrelay when empty), then
// FETCHRELAY_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}

		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
	}

	v.SetDefault("port", Default.Port)
	v.SetDefault("public_dir", Default.PublicDir)
	v.SetDefault("public_url_prefix", Default.PublicURLPrefix)
	v.SetDefault("tmp_dir", Default.TmpDir)
	v.SetDefault("jobs_path", Default.JobsPath)
	v.SetDefault("db_path", Default.DBPath)
	v.SetDefault("username", Default.Username)
	v.SetDefault("password", Default.Password)
	v.SetDefault("sink", Default.Sink)
	v.SetDefault("sink_target", Default.SinkTarget)
	v.SetDefault("serialize_relays", Default.SerializeRelays)
	v.SetDefault("progress_interval", Default.ProgressEvery)
	v.SetDefault("keepalive", Default.Keepalive)
	v.SetDefault("max_subscribers", Default.MaxSubscribers)
	v.SetDefault("tree_max_nodes", Default.TreeMaxNodes)
	v.SetDefault("stall_timeout", Default.StallTimeout)
	v.SetDefault("ffmpeg_path", Default.FFmpegPath)
	v.SetDefault("ffprobe_path", Default.FFprobePath)
	v.SetDefault("cookies_path", Default.CookiesPath)
	v.SetDefault("restart_command", Default.RestartCommand)
	v.SetDefault("relay_ignore", Default.RelayIgnore)

	v.SetEnvPrefix("FETCHRELAY")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		_, notFound := errors.AsType[viper.ConfigFileNotFoundError](err)
		if !notFound && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
