package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
)

// NewDB creates a new database connection. The URL comes from the config
// when set, otherwise from DATABASE_URL in the environment or a discovered
// .env file.
func NewDB(configuredURL string) (*sql.DB, error) {
	dbURL, err := resolveDatabaseURL(configuredURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get database URL: %w", err)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return db, nil
}

// resolveDatabaseURL prefers the configured value, then the DATABASE_URL
// environment variable, then a .env file found by walking up from the
// working directory.
func resolveDatabaseURL(configured string) (string, error) {
	if url := strings.TrimSpace(configured); url != "" {
		return url, nil
	}
	if url := strings.TrimSpace(os.Getenv("DATABASE_URL")); url != "" {
		return url, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	for dir := wd; ; dir = filepath.Dir(dir) {
		url, err := envFileDatabaseURL(filepath.Join(dir, ".env"))
		if err != nil {
			return "", err
		}
		if url != "" {
			return url, nil
		}
		if filepath.Dir(dir) == dir {
			return "", errors.New("DATABASE_URL not set and no .env found")
		}
	}
}

// envFileDatabaseURL extracts DATABASE_URL from one .env file. A missing
// file or missing key yields "", nil so the caller keeps searching.
func envFileDatabaseURL(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found || strings.TrimSpace(key) != "DATABASE_URL" {
			continue
		}

		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if value == "" {
			return "", fmt.Errorf("DATABASE_URL is empty in %s", path)
		}
		return value, nil
	}

	return "", nil
}
