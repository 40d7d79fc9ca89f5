package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	appconfig "github.com/Iron-Ham/collabd/internal/config"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// setupConfigEnv points the config directory at a temp dir and resets viper.
func setupConfigEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	viper.Reset()
	t.Cleanup(viper.Reset)
	appconfig.SetDefaults()
	return filepath.Join(dir, "collabd", "config.yaml")
}

func TestFlatten(t *testing.T) {
	keys, err := flatten(appconfig.Default())
	if err != nil {
		t.Fatalf("flatten() error = %v", err)
	}

	tests := []struct {
		key  string
		want any
	}{
		{"server.addr", ":8080"},
		{"lock.duration_minutes", 5},
		{"lock.enforce", false},
		{"gateway.identity.user_id_header", "X-User-ID"},
		{"logging.level", "info"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := keys[tt.key]
			if !ok {
				t.Fatalf("key %q missing", tt.key)
			}
			if got != tt.want {
				t.Errorf("%s = %v (%T), want %v", tt.key, got, got, tt.want)
			}
		})
	}
	if _, ok := keys["gateway.allowed_origins"].([]any); !ok {
		t.Errorf("gateway.allowed_origins = %T, want []any", keys["gateway.allowed_origins"])
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		def     any
		want    any
		wantErr bool
	}{
		{"bool true", "true", false, true, false},
		{"bool invalid", "yes", false, nil, true},
		{"int", "15", 5, 15, false},
		{"int invalid", "five", 5, nil, true},
		{"string", "debug", "info", "debug", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseValue("k", tt.raw, tt.def)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseValue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseValue() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("list", func(t *testing.T) {
		got, err := parseValue("k", "https://a.example.com, ,http://localhost:*", []any{})
		if err != nil {
			t.Fatalf("parseValue() error = %v", err)
		}
		list, ok := got.([]string)
		if !ok || len(list) != 2 || list[1] != "http://localhost:*" {
			t.Errorf("parseValue() = %#v", got)
		}
	})
}

func TestRenderYAML_Commented(t *testing.T) {
	data, err := renderYAML(appconfig.Default(), true)
	if err != nil {
		t.Fatalf("renderYAML() error = %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "# Field locks.") {
		t.Errorf("expected section comment in output:\n%s", out)
	}

	var roundTrip appconfig.Config
	if err := yaml.Unmarshal(data, &roundTrip); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if roundTrip.Lock.DurationMinutes != 5 || roundTrip.Server.Addr != ":8080" {
		t.Errorf("round trip = %+v", roundTrip)
	}
}

func TestConfigInit(t *testing.T) {
	path := setupConfigEnv(t)

	var out bytes.Buffer
	configInitCmd.SetOut(&out)
	if err := runConfigInit(configInitCmd, nil); err != nil {
		t.Fatalf("runConfigInit() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	if err := runConfigInit(configInitCmd, nil); err == nil {
		t.Error("second init should fail when the file exists")
	}
}

func TestConfigSet(t *testing.T) {
	path := setupConfigEnv(t)

	var out bytes.Buffer
	configSetCmd.SetOut(&out)
	if err := runConfigSet(configSetCmd, []string{"lock.duration_minutes", "9"}); err != nil {
		t.Fatalf("runConfigSet() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var written appconfig.Config
	if err := yaml.Unmarshal(data, &written); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if written.Lock.DurationMinutes != 9 {
		t.Errorf("lock.duration_minutes = %d, want 9", written.Lock.DurationMinutes)
	}
	if written.Logging.Level != "info" {
		t.Errorf("logging.level = %q, want default", written.Logging.Level)
	}
}

func TestConfigSet_Rejects(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown key", []string{"lock.forever", "1"}},
		{"bad type", []string{"lock.enforce", "maybe"}},
		{"fails validation", []string{"lock.duration_minutes", "0"}},
		{"bad level", []string{"logging.level", "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := setupConfigEnv(t)
			if err := runConfigSet(configSetCmd, tt.args); err == nil {
				t.Error("runConfigSet() should fail")
			}
			if _, err := os.Stat(path); err == nil {
				t.Error("config file should not be written")
			}
		})
	}
}

func TestConfigReset(t *testing.T) {
	path := setupConfigEnv(t)
	configSetCmd.SetOut(&bytes.Buffer{})
	configResetCmd.SetOut(&bytes.Buffer{})

	if err := runConfigSet(configSetCmd, []string{"lock.duration_minutes", "9"}); err != nil {
		t.Fatalf("runConfigSet() error = %v", err)
	}
	if err := runConfigReset(configResetCmd, []string{"lock.duration_minutes"}); err != nil {
		t.Fatalf("runConfigReset() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var written appconfig.Config
	if err := yaml.Unmarshal(data, &written); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if written.Lock.DurationMinutes != 5 {
		t.Errorf("lock.duration_minutes = %d, want default 5", written.Lock.DurationMinutes)
	}

	if err := runConfigReset(configResetCmd, []string{"nope"}); err == nil {
		t.Error("reset of an unknown key should fail")
	}
}

func TestConfigShowAndPath(t *testing.T) {
	setupConfigEnv(t)

	var out bytes.Buffer
	configShowCmd.SetOut(&out)
	if err := runConfigShow(configShowCmd, nil); err != nil {
		t.Fatalf("runConfigShow() error = %v", err)
	}
	if !strings.Contains(out.String(), "duration_minutes: 5") {
		t.Errorf("show output missing lock duration:\n%s", out.String())
	}

	out.Reset()
	configPathCmd.SetOut(&out)
	if err := runConfigPath(configPathCmd, nil); err != nil {
		t.Fatalf("runConfigPath() error = %v", err)
	}
	if !strings.Contains(out.String(), "COLLABD_LOCK_DURATION_MINUTES") {
		t.Errorf("path output missing env hint:\n%s", out.String())
	}
}
