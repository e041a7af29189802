package api

import (
	"context"
	"testing"
	"time"

	"github.com/xante8088/kasa-monitor-sub002/internal/history"
	"github.com/xante8088/kasa-monitor-sub002/internal/infrastructure/config"
	"github.com/xante8088/kasa-monitor-sub002/internal/infrastructure/logging"
)

func testHistoryService() *history.Service {
	return history.NewService(history.Deps{
		Backend:      &stubBackend{},
		Cache:        history.NewCache(nil),
		QueryTimeout: time.Second,
	})
}

func TestNewRequiresLogger(t *testing.T) {
	_, err := New(Deps{History: testHistoryService()})
	if err == nil {
		t.Error("New() accepted missing logger")
	}
}

func TestNewRequiresHistoryService(t *testing.T) {
	_, err := New(Deps{Logger: logging.Default()})
	if err == nil {
		t.Error("New() accepted missing history service")
	}
}

func TestServerLifecycle(t *testing.T) {
	server, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0, // OS-assigned port
		},
		Logger:  logging.Default(),
		History: testHistoryService(),
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if err := server.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() passed before Start()")
	}

	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := server.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() after Start(): %v", err)
	}

	if err := server.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestCloseBeforeStart(t *testing.T) {
	server, err := New(Deps{
		Logger:  logging.Default(),
		History: testHistoryService(),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := server.Close(); err != nil {
		t.Errorf("Close() before Start() = %v, want nil", err)
	}
}
