package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Port != 8080 || cfg.Engine != EngineMemory || cfg.Mode != "release" {
		t.Errorf("defaults = port %d engine %s mode %s", cfg.Port, cfg.Engine, cfg.Mode)
	}
	if cfg.WS.PingPeriod != 54*time.Second {
		t.Errorf("ws.ping_period = %v, want 54s", cfg.WS.PingPeriod)
	}
	if cfg.Memory.CandidatesPerDescription != 2 {
		t.Errorf("candidates_per_description = %d, want 2", cfg.Memory.CandidatesPerDescription)
	}
	if !cfg.AutoMedia || !cfg.Audio {
		t.Errorf("auto_media = %v, audio = %v, want true", cfg.AutoMedia, cfg.Audio)
	}
}

func TestLoadFile_File(t *testing.T) {
	path := writeConfig(t, `
port: 9090
engine: pion
log_level: warn
ice_servers: ["stun:stun.example.org:3478"]
pli_interval: 2s
media:
  pump_interval: 10ms
  cameras:
    - id: front
      label: Front
    - id: broken
      unavailable: true
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Port != 9090 || cfg.Engine != EnginePion {
		t.Errorf("port %d engine %s", cfg.Port, cfg.Engine)
	}
	if cfg.PLIInterval != 2*time.Second || cfg.Media.PumpInterval != 10*time.Millisecond {
		t.Errorf("pli %v pump %v", cfg.PLIInterval, cfg.Media.PumpInterval)
	}
	if len(cfg.ICEServers) != 1 {
		t.Errorf("ice servers = %v", cfg.ICEServers)
	}
	if len(cfg.Media.Cameras) != 2 || !cfg.Media.Cameras[1].Unavailable {
		t.Errorf("cameras = %+v", cfg.Media.Cameras)
	}
	if cfg.Level().String() != "warn" {
		t.Errorf("level = %v, want warn", cfg.Level())
	}
}

func TestLoadFile_EnvOverride(t *testing.T) {
	t.Setenv("LOOPCALL_PORT", "7070")
	t.Setenv("LOOPCALL_MEMORY_CANDIDATES_PER_DESCRIPTION", "5")
	cfg, err := LoadFile(writeConfig(t, "port: 9090\n"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Port != 7070 {
		t.Errorf("port = %d, want 7070", cfg.Port)
	}
	if cfg.Memory.CandidatesPerDescription != 5 {
		t.Errorf("candidates_per_description = %d, want 5", cfg.Memory.CandidatesPerDescription)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name, body, want string
	}{
		{"engine", "engine: carrier-pigeon\n", "engine"},
		{"port", "port: 70000\n", "port"},
		{"level", "log_level: loud\n", "log_level"},
		{"duplicate camera", "media:\n  cameras:\n    - id: a\n    - id: a\n", "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
