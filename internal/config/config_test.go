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
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsAndExpansion(t *testing.T) {
	t.Setenv("TEST_POCKET_PASSWORD", "s3cret")

	path := writeConfig(t, `
client:
  namenode_address: 10.0.0.1:9060
database:
  password: ${TEST_POCKET_PASSWORD}
datanodes:
  - address: 10.0.0.2:9070
    kind: narpc
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Client.NamenodeAddress != "10.0.0.1:9060" {
		t.Errorf("NamenodeAddress = %q", cfg.Client.NamenodeAddress)
	}
	if cfg.Client.DialTimeout != 5*time.Second {
		t.Errorf("DialTimeout = %v, want default 5s", cfg.Client.DialTimeout)
	}
	if cfg.Client.BufferSize != 524288 {
		t.Errorf("BufferSize = %d, want default 524288", cfg.Client.BufferSize)
	}
	if cfg.Namenode.Repository != RepositoryMemory {
		t.Errorf("Repository = %q, want %q", cfg.Namenode.Repository, RepositoryMemory)
	}
	if cfg.Database.Password != "s3cret" {
		t.Errorf("Password = %q, want expanded env value", cfg.Database.Password)
	}
	if !strings.Contains(cfg.Database.DSN(), "sslmode=disable") {
		t.Errorf("DSN = %q, want sslmode", cfg.Database.DSN())
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown datanode kind", "datanodes:\n  - address: a:1\n    kind: rdma\n"},
		{"kind does not match class", "datanodes:\n  - address: a:1\n    kind: reflex\n    storage_class: 0\n"},
		{"empty address", "datanodes:\n  - kind: narpc\n"},
		{"buffer size not whole sectors", "client:\n  buffer_size: 100000\n"},
		{"negative buffer size", "client:\n  buffer_size: -512\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Fatal("Load succeeded, want error")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of missing file succeeded")
	}
}

func TestDatabaseConfig_DSNEscapesPassword(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "pocket", Password: "p@ss word", Name: "pocket", SSLMode: "disable"}
	dsn := c.DSN()
	if strings.Contains(dsn, "p@ss word") {
		t.Errorf("DSN %q contains unescaped password", dsn)
	}
	if !strings.HasPrefix(dsn, "postgres://pocket:") {
		t.Errorf("DSN = %q", dsn)
	}
}
