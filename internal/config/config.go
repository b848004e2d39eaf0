// Package config parses CoolCache's startup configuration from CLI flags and
// environment variables. The core engine never touches os.Args or os.Getenv
// directly; it only ever sees the Config record this package produces.
package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
)

const (
	// DefaultPort is the TCP port the server listens on when unset.
	DefaultPort = 6379
	// DefaultDir is the working directory RDB files are read from/written to.
	DefaultDir = "./"
	// DefaultDBFilename is the RDB snapshot file name within Dir.
	DefaultDBFilename = "dump.rdb"
	// DefaultReplBacklogBytes bounds the leader's replication backlog ring buffer.
	DefaultReplBacklogBytes = 1 << 20 // 1 MiB

	// DefaultArchiveCodec compresses archival snapshot copies when enabled.
	DefaultArchiveCodec = "zstd"

	// DefaultLogLevel controls verbosity for server logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "coolcache.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles zstd compression for rotated log files.
	DefaultLogCompress = true

	// DefaultAdminRateLimitWindowSeconds bounds how often /admin/bgsave may be invoked.
	DefaultAdminRateLimitWindowSeconds = 10
	// DefaultAdminRateLimitBurst caps the number of admin BGSAVE triggers per window.
	DefaultAdminRateLimitBurst = 1
)

// SavePoint is one (seconds, changes) threshold of the auto-save schedule:
// a BGSAVE is triggered once at least Seconds seconds have passed and at
// least Changes writes have happened since the last successful save.
type SavePoint struct {
	Seconds int
	Changes int
}

// DefaultSaveSchedule mirrors Redis's historical default save points.
func DefaultSaveSchedule() []SavePoint {
	return []SavePoint{
		{Seconds: 900, Changes: 1},
		{Seconds: 300, Changes: 10},
		{Seconds: 60, Changes: 10000},
	}
}

// ReplicaOf identifies the leader a follower should replicate from.
type ReplicaOf struct {
	Host string
	Port int
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Config captures every runtime tunable for the coolcache-server binary.
type Config struct {
	Port       int
	Dir        string
	DBFilename string
	ReplicaOf  *ReplicaOf

	SaveSchedule     []SavePoint
	SaveCron         string
	ReplBacklogBytes int

	ArchiveCompress       bool
	ArchiveCodec          string
	ArchiveRateLimitBytes int64

	AdminAddr                   string
	AdminToken                  string
	AdminRateLimitWindowSeconds int
	AdminRateLimitBurst         int

	Logging LoggingConfig
}

// envSettings mirrors every flag except --archive-compress with a
// COOLCACHE_ prefix; the struct tags
// drive caarlos0/env's parsing so type conversion and defaults live in one
// declarative block instead of ad-hoc lookup helpers.
type envSettings struct {
	Port             int    `env:"COOLCACHE_PORT"`
	Dir              string `env:"COOLCACHE_DIR"`
	DBFilename       string `env:"COOLCACHE_DBFILENAME"`
	ReplicaOf        string `env:"COOLCACHE_REPLICAOF"`
	Save             string `env:"COOLCACHE_SAVE"`
	SaveCron         string `env:"COOLCACHE_SAVE_CRON"`
	AdminAddr        string `env:"COOLCACHE_ADMIN_ADDR"`
	AdminToken       string `env:"COOLCACHE_ADMIN_TOKEN"`
	ArchiveCodec     string `env:"COOLCACHE_ARCHIVE_CODEC"`
	ArchiveRateLimit int64  `env:"COOLCACHE_ARCHIVE_RATE_LIMIT"`
	LogLevel         string `env:"COOLCACHE_LOG_LEVEL"`
	LogPath          string `env:"COOLCACHE_LOG_PATH"`
}

// Load parses args (typically os.Args[1:]) against environ (typically
// OSEnviron()) as a fallback, returning a fully validated Config or a
// descriptive error listing every problem found, matching the
// accumulated-"problems" validation style. CLI flags take precedence over
// environment when both are supplied.
func Load(args []string, environ map[string]string) (*Config, error) {
	var fromEnv envSettings
	if err := env.ParseWithOptions(&fromEnv, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	fs := flag.NewFlagSet("coolcache-server", flag.ContinueOnError)
	port := fs.Int("port", 0, "TCP port to listen on")
	dir := fs.String("dir", "", "working directory for RDB files")
	dbfilename := fs.String("dbfilename", "", "RDB snapshot file name")
	replicaof := fs.String("replicaof", "", "\"<host> <port>\" of a leader to replicate from")
	save := fs.String("save", "", "override auto-save schedule, e.g. \"900 1 300 10\"")
	saveCron := fs.String("save-cron", "", "additional fixed-time BGSAVE schedule as a cron expression, e.g. \"0 3 * * *\"")
	adminAddr := fs.String("admin-addr", "", "address for the operator HTTP surface, empty disables it")
	adminToken := fs.String("admin-token", "", "bearer token required by the operator HTTP surface (prefix with hs256: to require signed, expiring tokens instead of a static secret)")
	archiveCompress := fs.Bool("archive-compress", false, "write a compressed archival copy after each snapshot")
	archiveCodec := fs.String("archive-codec", "", "archival copy compression codec: zstd|snappy")
	archiveRate := fs.Int64("archive-rate-limit", 0, "archival copy write throttle in bytes/second, 0 disables")
	logLevel := fs.String("log-level", "", "log verbosity: debug|info|warn|error")
	logPath := fs.String("log-path", "", "structured log output file path")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:                        firstInt(*port, fromEnv.Port, DefaultPort),
		Dir:                         firstString(*dir, fromEnv.Dir, DefaultDir),
		DBFilename:                  firstString(*dbfilename, fromEnv.DBFilename, DefaultDBFilename),
		SaveCron:                    firstString(*saveCron, fromEnv.SaveCron, ""),
		ReplBacklogBytes:            DefaultReplBacklogBytes,
		ArchiveCompress:             *archiveCompress,
		ArchiveCodec:                firstString(*archiveCodec, fromEnv.ArchiveCodec, DefaultArchiveCodec),
		ArchiveRateLimitBytes:       firstInt64(*archiveRate, fromEnv.ArchiveRateLimit, 0),
		AdminAddr:                   firstString(*adminAddr, fromEnv.AdminAddr, ""),
		AdminToken:                  firstString(*adminToken, fromEnv.AdminToken, ""),
		AdminRateLimitWindowSeconds: DefaultAdminRateLimitWindowSeconds,
		AdminRateLimitBurst:         DefaultAdminRateLimitBurst,
		Logging: LoggingConfig{
			Level:      firstString(*logLevel, fromEnv.LogLevel, DefaultLogLevel),
			Path:       firstString(*logPath, fromEnv.LogPath, DefaultLogPath),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	replicaofRaw := firstString(*replicaof, fromEnv.ReplicaOf, "")
	if replicaofRaw != "" {
		ro, err := parseReplicaOf(replicaofRaw)
		if err != nil {
			problems = append(problems, err.Error())
		} else {
			cfg.ReplicaOf = ro
		}
	}

	saveRaw := firstString(*save, fromEnv.Save, "")
	if saveRaw != "" {
		points, err := parseSaveSchedule(saveRaw)
		if err != nil {
			problems = append(problems, err.Error())
		} else {
			cfg.SaveSchedule = points
		}
	} else {
		cfg.SaveSchedule = DefaultSaveSchedule()
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port))
	}

	if cfg.ArchiveCodec != "zstd" && cfg.ArchiveCodec != "snappy" {
		problems = append(problems, fmt.Sprintf("archive codec must be zstd or snappy, got %q", cfg.ArchiveCodec))
	}

	if cfg.ArchiveRateLimitBytes < 0 {
		problems = append(problems, fmt.Sprintf("archive rate limit must be non-negative, got %d", cfg.ArchiveRateLimitBytes))
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

func parseReplicaOf(raw string) (*ReplicaOf, error) {
	fields := strings.Fields(raw)
	if len(fields) != 2 {
		return nil, fmt.Errorf("replicaof must be \"<host> <port>\", got %q", raw)
	}
	port, err := strconv.Atoi(fields[1])
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("replicaof port must be a valid TCP port, got %q", fields[1])
	}
	return &ReplicaOf{Host: fields[0], Port: port}, nil
}

func parseSaveSchedule(raw string) ([]SavePoint, error) {
	fields := strings.Fields(raw)
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("save schedule must be pairs of \"<seconds> <changes>\", got %q", raw)
	}
	points := make([]SavePoint, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		seconds, err := strconv.Atoi(fields[i])
		if err != nil || seconds <= 0 {
			return nil, fmt.Errorf("save schedule seconds must be positive, got %q", fields[i])
		}
		changes, err := strconv.Atoi(fields[i+1])
		if err != nil || changes <= 0 {
			return nil, fmt.Errorf("save schedule changes must be positive, got %q", fields[i+1])
		}
		points = append(points, SavePoint{Seconds: seconds, Changes: changes})
	}
	return points, nil
}

func firstString(flagVal, envVal, fallback string) string {
	if strings.TrimSpace(flagVal) != "" {
		return flagVal
	}
	if strings.TrimSpace(envVal) != "" {
		return envVal
	}
	return fallback
}

func firstInt(flagVal, envVal, fallback int) int {
	if flagVal != 0 {
		return flagVal
	}
	if envVal != 0 {
		return envVal
	}
	return fallback
}

func firstInt64(flagVal, envVal, fallback int64) int64 {
	if flagVal != 0 {
		return flagVal
	}
	if envVal != 0 {
		return envVal
	}
	return fallback
}
