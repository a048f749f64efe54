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
		t.Fatalf("写入配置文件失败: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: "secret"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Storage.Driver != StorageMemory {
		t.Errorf("Storage.Driver = %q, want %q", cfg.Storage.Driver, StorageMemory)
	}
	if cfg.Lock.Driver != LockLocal {
		t.Errorf("Lock.Driver = %q, want %q", cfg.Lock.Driver, LockLocal)
	}
	if cfg.GraphQL.Path != "/graphql" {
		t.Errorf("GraphQL.Path = %q, want /graphql", cfg.GraphQL.Path)
	}
	if cfg.Auth.RefreshTTL != 7*24*time.Hour {
		t.Errorf("Auth.RefreshTTL = %v, want 168h", cfg.Auth.RefreshTTL)
	}
	if AppConfig.Auth.JWTSecret != "secret" {
		t.Errorf("AppConfig 未更新")
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
storage:
  driver: mysql
mysql:
  master: "root@tcp(localhost:3306)/poker"
lock:
  ttl: 3s
  retry_interval: 20ms
kafka:
  enabled: true
  brokers: ["a:9092", "b:9092"]
auth:
  jwt_secret: "secret"
  access_ttl: 2m
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Lock.TTL != 3*time.Second || cfg.Lock.RetryInterval != 20*time.Millisecond {
		t.Errorf("Lock = %+v", cfg.Lock)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("Kafka.Brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Auth.AccessTTL != 2*time.Minute {
		t.Errorf("Auth.AccessTTL = %v, want 2m", cfg.Auth.AccessTTL)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: "from-file"
`)
	t.Setenv("PLANNINGPOKER_AUTH_JWT_SECRET", "from-env")
	t.Setenv("PLANNINGPOKER_SERVER_PORT", "7001")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("Auth.JWTSecret = %q, want from-env", cfg.Auth.JWTSecret)
	}
	if cfg.Server.Port != 7001 {
		t.Errorf("Server.Port = %d, want 7001", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "缺少密钥",
			body:    "server:\n  port: 1\n",
			wantErr: "jwt_secret",
		},
		{
			name:    "mysql缺少主库",
			body:    "auth:\n  jwt_secret: s\nstorage:\n  driver: mysql\n",
			wantErr: "mysql.master",
		},
		{
			name:    "未知存储驱动",
			body:    "auth:\n  jwt_secret: s\nstorage:\n  driver: sqlite\n",
			wantErr: "存储驱动",
		},
		{
			name:    "redis锁缺少节点",
			body:    "auth:\n  jwt_secret: s\nlock:\n  driver: redis\n",
			wantErr: "lock_addresses",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("期望返回错误")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want contains %q", err, tt.wantErr)
			}
		})
	}
}
