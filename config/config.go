// Package config parses and validates the flags shared by the backfill and
// live indexer binaries.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/spf13/pflag"
)

// LogFlags holds the values bound by RegisterLogFlags.
type LogFlags struct {
	Level       string
	JSON        bool
	MetricsAddr string
}

// RegisterLogFlags binds the logging and metrics-surface flags shared by
// both the backfill and live commands onto fs, returning their destination.
func RegisterLogFlags(fs *pflag.FlagSet) *LogFlags {
	lf := &LogFlags{}
	fs.StringVar(&lf.Level, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.BoolVar(&lf.JSON, "log-json", false, "Emit logs as JSON")
	fs.StringVar(&lf.MetricsAddr, "metrics-addr", "", "Address to serve /healthz and /metrics on, e.g. :8080 (disabled if empty)")
	return lf
}

// SplitPrograms turns a comma-separated --programs flag value into a
// trimmed, non-empty list of program IDs.
func SplitPrograms(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ValidateProgramID checks that programID decodes as base58 to exactly 32
// bytes, the shape of a Solana public key.
func ValidateProgramID(programID string) error {
	decoded, err := base58.Decode(programID)
	if err != nil {
		return fmt.Errorf("config: invalid program ID %q: %w", programID, err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("config: invalid program ID %q: decodes to %d bytes, want 32", programID, len(decoded))
	}
	return nil
}

func ValidateProgramIDs(programIDs []string) error {
	if len(programIDs) == 0 {
		return fmt.Errorf("config: at least one program ID must be specified")
	}
	for _, p := range programIDs {
		if err := ValidateProgramID(p); err != nil {
			return err
		}
	}
	return nil
}

// ValidateDirectory checks that path exists, is a directory, and is
// readable.
func ValidateDirectory(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("config: directory %q: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("config: %q is not a directory", path)
	}
	if _, err := os.ReadDir(path); err != nil {
		return fmt.Errorf("config: cannot read directory %q: %w", path, err)
	}
	return nil
}

// ValidateDatabaseURL checks that url is non-empty and, for sqlite: URLs,
// that the parent directory of the database file already exists.
func ValidateDatabaseURL(url string) error {
	if url == "" {
		return fmt.Errorf("config: database URL cannot be empty")
	}
	if path, ok := strings.CutPrefix(url, "sqlite:"); ok {
		parent := filepath.Dir(path)
		if parent != "." {
			if _, err := os.Stat(parent); err != nil {
				return fmt.Errorf("config: sqlite database directory %q does not exist: %w", parent, err)
			}
		}
	}
	return nil
}

func ValidateRPCURL(url string) error {
	if url == "" {
		return fmt.Errorf("config: RPC URL cannot be empty")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("config: invalid RPC URL %q: must start with http:// or https://", url)
	}
	return nil
}

func ValidateWSURL(url string) error {
	if url == "" {
		return fmt.Errorf("config: WebSocket URL cannot be empty")
	}
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		return fmt.Errorf("config: invalid WebSocket URL %q: must start with ws:// or wss://", url)
	}
	return nil
}

var validCommitments = map[string]bool{"processed": true, "confirmed": true, "finalized": true}

func ValidateCommitment(commitment string) error {
	if !validCommitments[strings.ToLower(commitment)] {
		return fmt.Errorf("config: invalid commitment level %q: must be one of processed, confirmed, finalized", commitment)
	}
	return nil
}

// Backfill holds the validated configuration for soltrace-backfill.
type Backfill struct {
	RPCURL      string
	Programs    []string
	DatabaseURL string
	IDLDir      string
	Limit       int
	BatchSize   int
	BatchDelayMS int
	Concurrency int
	MaxRetries  int
}

func (c Backfill) Validate() error {
	if err := ValidateRPCURL(c.RPCURL); err != nil {
		return err
	}
	if err := ValidateProgramIDs(c.Programs); err != nil {
		return err
	}
	if err := ValidateDatabaseURL(c.DatabaseURL); err != nil {
		return err
	}
	if err := ValidateDirectory(c.IDLDir); err != nil {
		return err
	}
	if c.Limit <= 0 {
		return fmt.Errorf("config: limit must be greater than 0")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("config: batch size must be greater than 0")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("config: concurrency must be greater than 0")
	}
	return nil
}

// Live holds the validated configuration for soltrace-live's run command.
type Live struct {
	WSURL       string
	RPCURL      string
	Programs    []string
	DatabaseURL string
	IDLDir      string
	Commitment  string
}

func (c Live) Validate() error {
	if err := ValidateWSURL(c.WSURL); err != nil {
		return err
	}
	if err := ValidateRPCURL(c.RPCURL); err != nil {
		return err
	}
	if err := ValidateProgramIDs(c.Programs); err != nil {
		return err
	}
	if err := ValidateDatabaseURL(c.DatabaseURL); err != nil {
		return err
	}
	if err := ValidateDirectory(c.IDLDir); err != nil {
		return err
	}
	if err := ValidateCommitment(c.Commitment); err != nil {
		return err
	}
	return nil
}
