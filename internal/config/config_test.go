package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_EmptyPathGivesDefaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Client.Host != "127.0.0.1" || cfg.Client.Port != "2947" {
		t.Fatalf("client=%s:%s want 127.0.0.1:2947", cfg.Client.Host, cfg.Client.Port)
	}
	if cfg.Client.PollInterval != 100*time.Millisecond {
		t.Fatalf("poll_interval=%s want 100ms", cfg.Client.PollInterval)
	}
	if cfg.Client.Reconnect.Enable || cfg.Client.Reconnect.BackoffInitial != 250*time.Millisecond || cfg.Client.Reconnect.BackoffMax != 10*time.Second {
		t.Fatalf("reconnect=%+v", cfg.Client.Reconnect)
	}
	if cfg.Client.Policy != "report" {
		t.Fatalf("policy=%q want report", cfg.Client.Policy)
	}
	if cfg.Sim.TCP != "127.0.0.1:2947" || cfg.Sim.UDP != "" {
		t.Fatalf("sim tcp=%q udp=%q", cfg.Sim.TCP, cfg.Sim.UDP)
	}
	if cfg.Sim.Delay != time.Second || cfg.Sim.Replay.Speed != 1 {
		t.Fatalf("sim delay=%s speed=%v", cfg.Sim.Delay, cfg.Sim.Replay.Speed)
	}
	if cfg.Echo.Listen != "127.0.0.1:7000" {
		t.Fatalf("echo.listen=%q", cfg.Echo.Listen)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" || cfg.Logging.MaxSizeMB != 10 {
		t.Fatalf("logging=%+v", cfg.Logging)
	}
}

func TestLoad_FileValues(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	path := writeTempConfig(t, `client:
  host: mast.local
  port: "3000"
  poll_interval: 250ms
  watch: [nmea, scaled]
  policy: strict
  verify_checksum: true
sim:
  udp: 127.0.0.1:7000
  delay: 200ms
  mast:
    enable: true
    wind_kt: 14
logging:
  format: json
  file: /tmp/rotmast.log
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Client.Host != "mast.local" || cfg.Client.Port != "3000" {
		t.Fatalf("client=%s:%s", cfg.Client.Host, cfg.Client.Port)
	}
	if cfg.Client.PollInterval != 250*time.Millisecond {
		t.Fatalf("poll_interval=%s", cfg.Client.PollInterval)
	}
	if len(cfg.Client.Watch) != 2 || !cfg.Client.VerifyChecksum || cfg.Client.Policy != "strict" {
		t.Fatalf("client=%+v", cfg.Client)
	}
	// Only UDP configured: no TCP default is added.
	if cfg.Sim.TCP != "" || cfg.Sim.UDP != "127.0.0.1:7000" {
		t.Fatalf("sim tcp=%q udp=%q", cfg.Sim.TCP, cfg.Sim.UDP)
	}
	if !cfg.Sim.Mast.Enable || cfg.Sim.Mast.WindKt != 14 || cfg.Sim.Mast.Period != 60*time.Second {
		t.Fatalf("mast=%+v", cfg.Sim.Mast)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.File != "/tmp/rotmast.log" {
		t.Fatalf("logging=%+v", cfg.Logging)
	}
}

func TestLoad_EnvLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	path := writeTempConfig(t, "logging:\n  level: warn\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level=%q want debug", cfg.Logging.Level)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "UnknownWatchFlag",
			yaml: "client:\n  watch: [loud]\n",
			want: `client.watch: unknown watch flag "loud"`,
		},
		{
			name: "UnknownPolicy",
			yaml: "client:\n  policy: panic\n",
			want: `client.policy: unknown malformed-sentence policy "panic"`,
		},
		{
			name: "NegativePoll",
			yaml: "client:\n  poll_interval: -1s\n",
			want: "client.poll_interval must be >= 0",
		},
		{
			name: "RecordNeedsPath",
			yaml: "client:\n  record:\n    enable: true\n",
			want: "client.record.path is required when client.record.enable is true",
		},
		{
			name: "ReconnectBackoffOrder",
			yaml: "client:\n  reconnect:\n    backoff_initial: 5s\n    backoff_max: 1s\n",
			want: "client.reconnect.backoff_max must be >= client.reconnect.backoff_initial",
		},
		{
			name: "NegativeDelay",
			yaml: "sim:\n  delay: -1s\n",
			want: "sim.delay must be >= 0",
		},
		{
			name: "NegativeSpeed",
			yaml: "sim:\n  replay:\n    speed: -2\n",
			want: "sim.replay.speed must be > 0",
		},
		{
			name: "ReplayAndMast",
			yaml: "sim:\n  replay:\n    path: a.log\n  mast:\n    enable: true\n",
			want: "sim.replay and sim.mast cannot both be enabled",
		},
		{
			name: "BadLogFormat",
			yaml: "logging:\n  format: xml\n",
			want: "logging.format must be 'console' or 'json'",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", "")
			_, err := Load(writeTempConfig(t, tc.yaml))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestDefaultAndValidate_KeepsOverrides(t *testing.T) {
	cfg := Config{}
	cfg.Client.Host = "10.0.0.5"
	cfg.Sim.Delay = 50 * time.Millisecond
	if err := DefaultAndValidate(&cfg); err != nil {
		t.Fatalf("DefaultAndValidate() error: %v", err)
	}
	if cfg.Client.Host != "10.0.0.5" || cfg.Sim.Delay != 50*time.Millisecond {
		t.Fatalf("overrides lost: %+v", cfg)
	}
	if err := DefaultAndValidate(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}
