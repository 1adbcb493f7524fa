package resthttpd

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rest.conf")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFileOverlaysDefaults(t *testing.T) {
	path := writeConfigFile(t, `
port = 9090
workerThreadCount = 8
maxClients = 20
debugLogFile = "/tmp/rest.log"
`)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Port != 9090 || cfg.WorkerThreadCount != 8 || cfg.MaxClients != 20 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.DebugLogFile != "/tmp/rest.log" {
		t.Fatalf("DebugLogFile = %q", cfg.DebugLogFile)
	}
	// fields absent from the file keep their defaults
	def := DefaultConfig()
	if cfg.ConnTimeoutSec != def.ConnTimeoutSec || cfg.MaxDataBufferLen != def.MaxDataBufferLen {
		t.Fatalf("defaults not preserved: %+v", cfg)
	}
}

func TestLoadConfigFileRejectsBadPort(t *testing.T) {
	path := writeConfigFile(t, "port = 70000\n")
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("expected a port outside 1-65535 to fail validation")
	}
}

func TestConfigValidateSecureRequiresCertAndKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IsSecure = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected isSecure without cert/key paths to fail")
	}
	kind, ok := KindOf(cfg.Validate())
	if !ok || kind != KindInvalidParams {
		t.Fatalf("expected KindInvalidParams, got %v", kind)
	}
}
