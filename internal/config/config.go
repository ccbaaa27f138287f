package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"rotmast/internal/sentence"
	"rotmast/internal/watch"
)

type Config struct {
	Client  ClientConfig  `yaml:"client"`
	Sim     SimConfig     `yaml:"sim"`
	Echo    EchoConfig    `yaml:"echo"`
	Logging LoggingConfig `yaml:"logging"`
}

type ClientConfig struct {
	Host         string        `yaml:"host"`
	Port         string        `yaml:"port"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`

	// Watch lists flag names added to "enable", e.g. [nmea, scaled].
	Watch  []string `yaml:"watch"`
	Device string   `yaml:"device"`

	// Policy is report, skip or strict.
	Policy         string `yaml:"policy"`
	VerifyChecksum bool   `yaml:"verify_checksum"`
	TailLines      int    `yaml:"tail_lines"`
	ShowSkipped    bool   `yaml:"show_skipped"`

	Record    RecordConfig    `yaml:"record"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

type ReconnectConfig struct {
	Enable         bool          `yaml:"enable"`
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type SimConfig struct {
	TCP   string        `yaml:"tcp"`
	UDP   string        `yaml:"udp"`
	Delay time.Duration `yaml:"delay"`

	Replay ReplayConfig  `yaml:"replay"`
	Mast   MastSimConfig `yaml:"mast"`
}

type ReplayConfig struct {
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop"`
}

type MastSimConfig struct {
	Enable      bool          `yaml:"enable"`
	HeadingDeg  float64       `yaml:"heading_deg"`
	WindFromDeg float64       `yaml:"wind_from_deg"`
	WindKt      float64       `yaml:"wind_kt"`
	SwingDeg    float64       `yaml:"swing_deg"`
	RollAmpDeg  float64       `yaml:"roll_amp_deg"`
	PitchAmpDeg float64       `yaml:"pitch_amp_deg"`
	AirTempC    float64       `yaml:"air_temp_c"`
	Period      time.Duration `yaml:"period"`
}

type EchoConfig struct {
	Listen string `yaml:"listen"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads path and applies defaults. An empty path yields the defaults.
// LOG_LEVEL overrides logging.level.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultAndValidate fills unset fields and rejects invalid combinations.
// CLI overrides are applied to cfg before calling it.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	// Client defaults.
	if cfg.Client.Host == "" {
		cfg.Client.Host = "127.0.0.1"
	}
	if cfg.Client.Port == "" {
		cfg.Client.Port = "2947"
	}
	if cfg.Client.DialTimeout <= 0 {
		cfg.Client.DialTimeout = 5 * time.Second
	}
	if cfg.Client.PollInterval < 0 {
		return fmt.Errorf("client.poll_interval must be >= 0")
	}
	if cfg.Client.PollInterval == 0 {
		cfg.Client.PollInterval = 100 * time.Millisecond
	}
	if _, err := watch.ParseFlags(cfg.Client.Watch); err != nil {
		return fmt.Errorf("client.watch: %w", err)
	}
	if cfg.Client.Policy == "" {
		cfg.Client.Policy = sentence.PolicyReport.String()
	}
	if _, err := sentence.ParsePolicy(cfg.Client.Policy); err != nil {
		return fmt.Errorf("client.policy: %w", err)
	}
	if cfg.Client.TailLines <= 0 {
		cfg.Client.TailLines = 8
	}
	if cfg.Client.Record.Enable && cfg.Client.Record.Path == "" {
		return fmt.Errorf("client.record.path is required when client.record.enable is true")
	}
	if cfg.Client.Reconnect.BackoffInitial <= 0 {
		cfg.Client.Reconnect.BackoffInitial = 250 * time.Millisecond
	}
	if cfg.Client.Reconnect.BackoffMax <= 0 {
		cfg.Client.Reconnect.BackoffMax = 10 * time.Second
	}
	if cfg.Client.Reconnect.BackoffMax < cfg.Client.Reconnect.BackoffInitial {
		return fmt.Errorf("client.reconnect.backoff_max must be >= client.reconnect.backoff_initial")
	}

	// Simulator defaults (safe even if sim is never run).
	if cfg.Sim.TCP == "" && cfg.Sim.UDP == "" {
		cfg.Sim.TCP = "127.0.0.1:2947"
	}
	if cfg.Sim.Delay < 0 {
		return fmt.Errorf("sim.delay must be >= 0")
	}
	if cfg.Sim.Delay == 0 {
		cfg.Sim.Delay = 1 * time.Second
	}
	if cfg.Sim.Replay.Speed == 0 {
		cfg.Sim.Replay.Speed = 1
	}
	if cfg.Sim.Replay.Speed < 0 {
		return fmt.Errorf("sim.replay.speed must be > 0")
	}
	if cfg.Sim.Replay.Path != "" && cfg.Sim.Mast.Enable {
		return fmt.Errorf("sim.replay and sim.mast cannot both be enabled")
	}
	if cfg.Sim.Mast.Period <= 0 {
		cfg.Sim.Mast.Period = 60 * time.Second
	}
	if cfg.Sim.Mast.WindKt < 0 {
		return fmt.Errorf("sim.mast.wind_kt must be >= 0")
	}

	if cfg.Echo.Listen == "" {
		cfg.Echo.Listen = "127.0.0.1:7000"
	}

	// Logging defaults.
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	switch cfg.Logging.Format {
	case "":
		cfg.Logging.Format = "console"
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be 'console' or 'json'")
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = 10
	}
	if cfg.Logging.MaxBackups <= 0 {
		cfg.Logging.MaxBackups = 5
	}
	if cfg.Logging.MaxAgeDays <= 0 {
		cfg.Logging.MaxAgeDays = 30
	}

	return nil
}
