package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil, map[string]string{})
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Fatalf("expected default port %d, got %d", DefaultPort, cfg.Port)
	}
	if cfg.Dir != DefaultDir {
		t.Fatalf("expected default dir %q, got %q", DefaultDir, cfg.Dir)
	}
	if cfg.DBFilename != DefaultDBFilename {
		t.Fatalf("expected default dbfilename %q, got %q", DefaultDBFilename, cfg.DBFilename)
	}
	if cfg.ReplicaOf != nil {
		t.Fatalf("expected no replicaof, got %#v", cfg.ReplicaOf)
	}
	if len(cfg.SaveSchedule) != 3 {
		t.Fatalf("expected default save schedule with 3 points, got %d", len(cfg.SaveSchedule))
	}
	if cfg.ArchiveCodec != DefaultArchiveCodec {
		t.Fatalf("expected default archive codec %q, got %q", DefaultArchiveCodec, cfg.ArchiveCodec)
	}
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	environ := map[string]string{"COOLCACHE_PORT": "7000", "COOLCACHE_DIR": "/env/dir"}
	cfg, err := Load([]string{"--port", "6390", "--replicaof", "10.0.0.1 6400"}, environ)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Port != 6390 {
		t.Fatalf("expected flag to win over env, got port %d", cfg.Port)
	}
	if cfg.Dir != "/env/dir" {
		t.Fatalf("expected env fallback for dir, got %q", cfg.Dir)
	}
	if cfg.ReplicaOf == nil || cfg.ReplicaOf.Host != "10.0.0.1" || cfg.ReplicaOf.Port != 6400 {
		t.Fatalf("unexpected replicaof: %#v", cfg.ReplicaOf)
	}
}

func TestLoadEnvTypes(t *testing.T) {
	environ := map[string]string{
		"COOLCACHE_SAVE_CRON":          "0 3 * * *",
		"COOLCACHE_ARCHIVE_CODEC":      "snappy",
		"COOLCACHE_ARCHIVE_RATE_LIMIT": "1048576",
	}
	cfg, err := Load(nil, environ)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.SaveCron != "0 3 * * *" {
		t.Fatalf("unexpected save cron: %q", cfg.SaveCron)
	}
	if cfg.ArchiveCodec != "snappy" {
		t.Fatalf("unexpected archive codec: %q", cfg.ArchiveCodec)
	}
	if cfg.ArchiveRateLimitBytes != 1<<20 {
		t.Fatalf("unexpected archive rate limit: %d", cfg.ArchiveRateLimitBytes)
	}
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	_, err := Load([]string{"--port", "99999"}, map[string]string{})
	if err == nil || !strings.Contains(err.Error(), "port") {
		t.Fatalf("expected port validation error, got %v", err)
	}
}

func TestLoadRejectsUnknownArchiveCodec(t *testing.T) {
	_, err := Load([]string{"--archive-codec", "lz4"}, map[string]string{})
	if err == nil || !strings.Contains(err.Error(), "archive codec") {
		t.Fatalf("expected archive codec validation error, got %v", err)
	}
}

func TestParseSaveSchedule(t *testing.T) {
	points, err := parseSaveSchedule("900 1 300 10")
	if err != nil {
		t.Fatalf("parseSaveSchedule returned error: %v", err)
	}
	if len(points) != 2 || points[0].Seconds != 900 || points[1].Changes != 10 {
		t.Fatalf("unexpected parsed points: %#v", points)
	}
	if _, err := parseSaveSchedule("900"); err == nil {
		t.Fatalf("expected error for odd-length save schedule")
	}
}
