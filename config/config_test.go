package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"BOT_TOKEN", "ADMIN_IDS", "WAITLIST_TIMEOUT_HOURS", "SCHEDULER_POLL_MS", "DATABASE_URL", "PORT"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Bot.WaitlistTimeoutHours != 24 || cfg.Scheduler.PollMillis != 1000 || cfg.Server.Port != "8080" {
		t.Fatalf("defaults = %+v %+v %+v", cfg.Bot, cfg.Scheduler, cfg.Server)
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "BOT_TOKEN") {
		t.Fatalf("Validate = %v, want missing BOT_TOKEN", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_IDS", "10, 20,bogus,,30")
	t.Setenv("WAITLIST_TIMEOUT_HOURS", "6")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/regbot")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	want := []int64{10, 20, 30}
	if len(cfg.Bot.AdminIDs) != len(want) {
		t.Fatalf("AdminIDs = %v, want %v", cfg.Bot.AdminIDs, want)
	}
	for i := range want {
		if cfg.Bot.AdminIDs[i] != want[i] {
			t.Fatalf("AdminIDs = %v, want %v", cfg.Bot.AdminIDs, want)
		}
	}
	if cfg.Bot.WaitlistTimeoutHours != 6 {
		t.Fatalf("timeout = %d", cfg.Bot.WaitlistTimeoutHours)
	}
	if cfg.Database.DSN() != "postgres://u:p@db:5432/regbot" {
		t.Fatalf("DSN = %q", cfg.Database.DSN())
	}
}

func TestDSNFromParts(t *testing.T) {
	c := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: "1", DBName: "d", SSLMode: "require"}
	if got, want := c.DSN(), "postgres://u:p@h:1/d?sslmode=require"; got != want {
		t.Fatalf("DSN = %q, want %q", got, want)
	}
}
