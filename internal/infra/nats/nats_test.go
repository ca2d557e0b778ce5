package natsclient

import (
	"testing"

	"github.com/sifan077/shortener/config"
)

func TestBuildURL(t *testing.T) {
	if got := buildURL(config.NATSConfig{}); got != "nats://localhost:4222" {
		t.Fatalf("unexpected default url %s", got)
	}
	if got := buildURL(config.NATSConfig{Host: "broker", Port: 4333}); got != "nats://broker:4333" {
		t.Fatalf("unexpected url %s", got)
	}
	if Status(nil) == nil {
		t.Fatal("expected error for missing connection")
	}
}
