package config

import (
	"os"
	"testing"
)

func TestLoadAPIDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/recruit")
	t.Setenv("AWS_REGION", "ap-northeast-1")
	t.Setenv("SQS_QUEUE_URL", "http://localhost:4566/000000000000/outbound.fifo")

	cfg := LoadAPI()
	if cfg.Port != "8080" || cfg.MetricsPort != "9090" {
		t.Fatalf("unexpected ports %q %q", cfg.Port, cfg.MetricsPort)
	}
	if cfg.DBPoolMaxConns != 10 || cfg.DBPoolMaxConnLifetime != "30m" {
		t.Fatalf("unexpected pool defaults %+v", cfg.DBPool)
	}
	if cfg.WorklistMaxRows != 500 {
		t.Fatalf("expected worklist max rows 500, got %d", cfg.WorklistMaxRows)
	}
}

func TestLoadWorkerOverrides(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/recruit")
	t.Setenv("AWS_REGION", "ap-northeast-1")
	t.Setenv("SQS_QUEUE_URL", "q")
	t.Setenv("SEND_RPS_PER_POD", "2.5")
	t.Setenv("GRAPH_API_VERSION", "v20.0")

	cfg := LoadWorker()
	if cfg.SendRPSPerPod != 2.5 || cfg.GraphAPIVersion != "v20.0" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadWebhookMissingRequiredPanics(t *testing.T) {
	t.Setenv("MESSENGER_APP_SECRET", "")
	t.Setenv("MESSENGER_VERIFY_TOKEN", "")
	os.Unsetenv("MESSENGER_APP_SECRET")
	os.Unsetenv("MESSENGER_VERIFY_TOKEN")
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for missing required env")
		}
	}()
	LoadWebhook()
}
