package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr             string
	Countdown        time.Duration
	Grace            time.Duration
	SweepInterval    time.Duration
	ProgressPerSec   float64
	WSMessagesPerSec float64
	AllowedOrigins   []string
	LogLevel         string
	LogFormat        string
	LogFile          string
	DatabaseURL      string
}

func Default() Config {
	return Config{
		Addr:             ":8080",
		Countdown:        5 * time.Second,
		Grace:            3 * time.Minute,
		SweepInterval:    250 * time.Millisecond,
		ProgressPerSec:   6,
		WSMessagesPerSec: 40,
		LogLevel:         "info",
		LogFormat:        "console",
	}
}

// Load reads .env files (missing ones are fine) and then the environment.
// Unparseable values keep their default and are reported together in the
// returned error; the Config is always usable.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Default(), fmt.Errorf("config: %s: %w", f, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	millis := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, v))
			return
		}
		*dst = time.Duration(n) * time.Millisecond
	}
	rate := func(key string, dst *float64) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || f < 0 {
			errs = append(errs, fmt.Errorf("%s: invalid rate %q", key, v))
			return
		}
		*dst = f
	}

	str("ADDR", &c.Addr)
	if port, ok := lookup("PORT"); ok && strings.TrimSpace(port) != "" {
		if _, set := lookup("ADDR"); !set {
			c.Addr = ":" + strings.TrimSpace(port)
		}
	}
	millis("COUNTDOWN_MS", &c.Countdown)
	millis("GRACE_MS", &c.Grace)
	millis("SWEEP_INTERVAL_MS", &c.SweepInterval)
	rate("PROGRESS_BROADCASTS_PER_SEC", &c.ProgressPerSec)
	rate("WS_MESSAGES_PER_SEC", &c.WSMessagesPerSec)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("LOG_FILE", &c.LogFile)
	str("DATABASE_URL", &c.DatabaseURL)

	if v, ok := lookup("ALLOWED_ORIGINS"); ok {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}
	if c.SweepInterval == 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL_MS: must be positive"))
		c.SweepInterval = Default().SweepInterval
	}

	if len(errs) > 0 {
		return c, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return c, nil
}
