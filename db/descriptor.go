package db

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var ErrInvalidDescriptor = errors.New("invalid connection descriptor")

// Descriptor says how to reach the store.
type Descriptor struct {
	Driver string
	// DSN is passed to the driver unchanged for PostgreSQL; for SQLite it is
	// the database file path (or ":memory:").
	DSN      string
	Host     string
	Port     string
	User     string
	Database string
}

// ReadDescriptor reads the first non-blank, non-comment line of path.
func ReadDescriptor(path string) (*Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return ParseDescriptor(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrInvalidDescriptor, path, err)
	}
	return nil, fmt.Errorf("%w: %s is empty", ErrInvalidDescriptor, path)
}

// ParseDescriptor parses a postgres://, postgresql://, sqlite: or file: URL.
func ParseDescriptor(raw string) (*Descriptor, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}

	switch u.Scheme {
	case "postgres", "postgresql":
		database := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" && u.Query().Get("host") == "" {
			return nil, fmt.Errorf("%w: missing host", ErrInvalidDescriptor)
		}
		if database == "" {
			return nil, fmt.Errorf("%w: missing database name", ErrInvalidDescriptor)
		}
		port := u.Port()
		if port == "" {
			port = "5432"
		}
		return &Descriptor{
			Driver:   DriverPostgres,
			DSN:      u.String(),
			Host:     u.Hostname(),
			Port:     port,
			User:     u.User.Username(),
			Database: database,
		}, nil

	case "sqlite", "sqlite3", "file":
		path := u.Opaque
		if path == "" {
			path = u.Host + u.Path
		}
		if path == "" {
			return nil, fmt.Errorf("%w: missing database path", ErrInvalidDescriptor)
		}
		return &Descriptor{
			Driver:   DriverSQLite,
			DSN:      path,
			Database: path,
		}, nil
	}

	return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidDescriptor, u.Scheme)
}

// Redacted returns the descriptor with any password masked, for logging.
func (d *Descriptor) Redacted() string {
	if d.Driver != DriverPostgres {
		return d.Driver + ":" + d.DSN
	}
	u, err := url.Parse(d.DSN)
	if err != nil {
		return d.Driver + "://" + d.Host
	}
	return u.Redacted()
}

// InMemory reports whether the descriptor names a transient SQLite database.
func (d *Descriptor) InMemory() bool {
	return d.Driver == DriverSQLite && strings.Contains(d.DSN, ":memory:")
}
