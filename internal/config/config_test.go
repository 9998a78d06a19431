package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func noEnv(string) (string, bool) { return "", false }

func TestDefaultsDev(t *testing.T) {
	cfg, err := load(noEnv, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeDev {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeDev)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatText)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("logLevel=%v, want debug", cfg.LogLevel)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("ListenAddr=%q, want %q", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.MaxConnections != 0 {
		t.Fatalf("MaxConnections=%d, want 0", cfg.MaxConnections)
	}
	if cfg.SignalingWSIdleTimeout != DefaultSignalingWSIdleTimeout {
		t.Fatalf("SignalingWSIdleTimeout=%v, want %v", cfg.SignalingWSIdleTimeout, DefaultSignalingWSIdleTimeout)
	}
	if cfg.SignalingWSPingInterval != DefaultSignalingWSPingInterval {
		t.Fatalf("SignalingWSPingInterval=%v, want %v", cfg.SignalingWSPingInterval, DefaultSignalingWSPingInterval)
	}
	if cfg.MaxSignalingMessageBytes != DefaultMaxSignalingMessageBytes {
		t.Fatalf("MaxSignalingMessageBytes=%d, want %d", cfg.MaxSignalingMessageBytes, DefaultMaxSignalingMessageBytes)
	}
	if cfg.MaxSignalingMessagesPerSecond != DefaultMaxSignalingMessagesPerSecond {
		t.Fatalf("MaxSignalingMessagesPerSecond=%d, want %d", cfg.MaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond)
	}
	if cfg.SendQueueDepth != DefaultSendQueueDepth {
		t.Fatalf("SendQueueDepth=%d, want %d", cfg.SendQueueDepth, DefaultSendQueueDepth)
	}
	if cfg.StaticDir != "" {
		t.Fatalf("StaticDir=%q, want empty", cfg.StaticDir)
	}
	if len(cfg.ICEServers) != 0 || cfg.ICEConfigError() != nil {
		t.Fatalf("ICEServers=%v err=%v, want none", cfg.ICEServers, cfg.ICEConfigError())
	}
	if cfg.TURNREST.Enabled() {
		t.Fatalf("TURN REST enabled by default")
	}
}

func TestDefaultsProdWhenModeFlagSet(t *testing.T) {
	cfg, err := load(noEnv, []string{"--mode", "prod"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeProd {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeProd)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatJSON)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("logLevel=%v, want info", cfg.LogLevel)
	}
}

func TestLogFormatExplicitOverride(t *testing.T) {
	cfg, err := load(noEnv, []string{"--mode", "prod", "--log-format", "text"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatText)
	}
}

func TestPortFallback(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{envVarPort: "8080"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("ListenAddr=%q, want :8080", cfg.ListenAddr)
	}

	cfg, err = load(lookupMap(map[string]string{
		envVarPort:       "8080",
		envVarListenAddr: "127.0.0.1:9000",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("ListenAddr=%q, want explicit listen addr to win over PORT", cfg.ListenAddr)
	}
}

func TestFlagOverridesEnv(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarMaxConnections:                "10",
		envVarMaxSignalingMessagesPerSecond: "5",
	}), []string{"--max-connections", "20", "--signaling-ws-idle-timeout", "2m"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxConnections != 20 {
		t.Fatalf("MaxConnections=%d, want 20", cfg.MaxConnections)
	}
	if cfg.MaxSignalingMessagesPerSecond != 5 {
		t.Fatalf("MaxSignalingMessagesPerSecond=%d, want 5", cfg.MaxSignalingMessagesPerSecond)
	}
	if cfg.SignalingWSIdleTimeout != 2*time.Minute {
		t.Fatalf("SignalingWSIdleTimeout=%v, want 2m", cfg.SignalingWSIdleTimeout)
	}
}

func TestSignalingLimitsValidation(t *testing.T) {
	cases := []struct {
		name    string
		env     map[string]string
		wantSub string
	}{
		{"ping not below idle", map[string]string{envVarSignalingWSIdleTimeout: "10s", envVarSignalingWSPingInterval: "10s"}, envVarSignalingWSPingInterval},
		{"zero message bytes", map[string]string{envVarMaxSignalingMessageBytes: "0"}, envVarMaxSignalingMessageBytes},
		{"zero rate", map[string]string{envVarMaxSignalingMessagesPerSecond: "0"}, envVarMaxSignalingMessagesPerSecond},
		{"zero queue", map[string]string{envVarSendQueueDepth: "0"}, envVarSendQueueDepth},
		{"negative max connections", map[string]string{envVarMaxConnections: "-1"}, envVarMaxConnections},
		{"bad duration", map[string]string{envVarSignalingWSIdleTimeout: "soon"}, envVarSignalingWSIdleTimeout},
		{"bad int", map[string]string{envVarMaxConnections: "many"}, envVarMaxConnections},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := load(lookupMap(tc.env), nil)
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("err=%v, expected mention of %s", err, tc.wantSub)
			}
		})
	}
}

func TestTURNRESTValidation(t *testing.T) {
	_, err := load(lookupMap(map[string]string{
		envVarTURNRESTSharedSecret:   "secret",
		envVarTURNRESTUsernamePrefix: "a:b",
	}), nil)
	if err == nil {
		t.Fatalf("expected error for ':' in username prefix")
	}

	cfg, err := load(lookupMap(map[string]string{
		envVarTURNRESTSharedSecret: "secret",
		envTurnURLs:                "turn:turn.example.com:3478",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.TURNREST.Enabled() {
		t.Fatalf("expected TURN REST enabled")
	}
	if cfg.ICEConfigError() != nil {
		t.Fatalf("ICEConfigError=%v, want nil when TURN REST mints credentials", cfg.ICEConfigError())
	}
	if len(cfg.ICEServers) != 1 {
		t.Fatalf("ICEServers=%v, want one TURN entry", cfg.ICEServers)
	}
}

func TestInvalidICEConfigIsDeferred(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envICEServersJSON: "{not json",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ICEConfigError() == nil {
		t.Fatalf("expected ICEConfigError to be set")
	}
	if !strings.Contains(cfg.ICEConfigError().Error(), envICEServersJSON) {
		t.Fatalf("ICEConfigError=%v, expected env var name", cfg.ICEConfigError())
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []LogFormat{LogFormatText, LogFormatJSON} {
		if _, err := NewLogger(Config{LogFormat: format}); err != nil {
			t.Fatalf("NewLogger(%q): %v", format, err)
		}
	}
	if _, err := NewLogger(Config{LogFormat: "xml"}); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestParseAllowedOrigins_NormalizesAndValidates(t *testing.T) {
	got, err := parseAllowedOrigins("HTTPS://Example.COM:443, http://localhost:5173/")
	if err != nil {
		t.Fatalf("parseAllowedOrigins: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d, want 2 (%v)", len(got), got)
	}
	if got[0] != "https://example.com" {
		t.Fatalf("got[0]=%q, want %q", got[0], "https://example.com")
	}
	if got[1] != "http://localhost:5173" {
		t.Fatalf("got[1]=%q, want %q", got[1], "http://localhost:5173")
	}
}

func TestParseAllowedOrigins_AllowsStarAndNull(t *testing.T) {
	got, err := parseAllowedOrigins("*,null")
	if err != nil {
		t.Fatalf("parseAllowedOrigins: %v", err)
	}
	if len(got) != 2 || got[0] != "*" || got[1] != "null" {
		t.Fatalf("got=%v, want [* null]", got)
	}
}

func TestParseAllowedOrigins_RejectsPathQueryAndCredentials(t *testing.T) {
	cases := []string{
		"ftp://example.com",
		"https://example.com/path",
		"https://example.com/?q=1",
		"https://user@example.com",
		"https://example.com/#frag",
	}
	for _, raw := range cases {
		if _, err := parseAllowedOrigins(raw); err == nil {
			t.Fatalf("expected error for %q, got nil", raw)
		}
	}
}
