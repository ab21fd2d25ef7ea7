// Package config loads the small set of process-wide tunables this
// module exposes, the way the teacher loads registries.conf-style TOML
// configuration, scaled down to the handful of knobs spec.md's
// operations actually need (catalog page size, gzip level, fast-save
// worker pool width, a deterministic-gzip mtime override for tests).
package config

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config is the decoded shape of a TOML configuration file.
type Config struct {
	Registry struct {
		// CatalogPageSize bounds the "n" query parameter of /v2/_catalog
		// requests (§4.6 catalog pagination).
		CatalogPageSize int `toml:"catalog_page_size"`
	} `toml:"registry"`

	Save struct {
		// GzipLevel is passed to pgzip.NewWriterLevel for every layer
		// and config blob this module compresses (§4.7, §4.11).
		GzipLevel int `toml:"gzip_level"`
		// WorkerPoolSize bounds the concurrency of the fast on-disk
		// save writer (§4.11); 0 means "use GOMAXPROCS".
		WorkerPoolSize int `toml:"worker_pool_size"`
		// DeterministicMTime overrides the frozen modification time
		// stamped into every gzip member, for reproducible digests
		// (§4.7 "gzip determinism"). Zero value uses the Unix epoch.
		DeterministicMTime time.Time `toml:"-"`
		DeterministicMTimeUnix int64 `toml:"deterministic_mtime_unix"`
	} `toml:"save"`
}

// Default returns the tunables this module uses when no configuration
// file is supplied.
func Default() Config {
	var c Config
	c.Registry.CatalogPageSize = 100
	c.Save.GzipLevel = 6
	c.Save.WorkerPoolSize = 0
	c.Save.DeterministicMTime = time.Unix(0, 0).UTC()
	return c
}

// Load decodes a TOML file at path, filling in defaults for any field
// the file omits.
func Load(path string) (Config, error) {
	c := Default()
	meta, err := toml.DecodeFile(path, &c)
	if err != nil {
		return Config{}, errors.Wrapf(err, "decoding config %s", path)
	}
	if len(meta.Undecoded()) > 0 {
		return Config{}, errors.Errorf("unknown config keys: %v", meta.Undecoded())
	}
	if c.Save.DeterministicMTimeUnix != 0 {
		c.Save.DeterministicMTime = time.Unix(c.Save.DeterministicMTimeUnix, 0).UTC()
	}
	return c, nil
}
