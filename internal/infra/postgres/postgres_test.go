package postgres

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sifan077/shortener/config"
)

func TestConnString(t *testing.T) {
	got := ConnString(config.PostgresConfig{User: "app", Password: "p@ss/word", Database: "short"})
	want := "postgres://app:p@ss%2Fword@localhost:5432/short?sslmode=disable"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestApplyPoolSettings(t *testing.T) {
	poolCfg, err := pgxpool.ParseConfig("postgres://app@localhost:5432/short")
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	err = applyPoolSettings(poolCfg, config.PostgresConfig{MaxConns: 8, MaxConnLifetime: "30m"})
	if err != nil {
		t.Fatalf("applyPoolSettings: %v", err)
	}
	if poolCfg.MaxConns != 8 || poolCfg.MaxConnLifetime != 30*time.Minute {
		t.Fatalf("settings not applied: %d %v", poolCfg.MaxConns, poolCfg.MaxConnLifetime)
	}

	if err := applyPoolSettings(poolCfg, config.PostgresConfig{MaxConnIdleTime: "soon"}); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}
