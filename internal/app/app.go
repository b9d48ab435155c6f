// Package app is the application layer between the CLI and the core
// packages. It wires config, keyring and logging together and exposes the
// high-level operations the commands run.
package app

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"dlst-go/internal/config"
	"dlst-go/internal/dlst"
	"dlst-go/internal/keyring"
)

// App holds the wired dependencies for one CLI invocation.
// The caller must call Close when done.
type App struct {
	cfg     *config.Config
	ring    *keyring.Store
	logger  *slog.Logger
	logFile *os.File
}

// NewApp creates a fully wired App from the given config. operation
// identifies the CLI command being run (e.g. "Extract", "KeysAdd") and is
// stamped on every log line of the run.
func NewApp(cfg *config.Config, operation string) (*App, error) {
	ring, err := keyring.Open(cfg.Keyring.Path)
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}

	opID := fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102T150405Z"), operation)
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		ring.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	return &App{
		cfg:     cfg,
		ring:    ring,
		logger:  logger,
		logFile: logFile,
	}, nil
}

// Close releases the keyring and the log file.
func (a *App) Close() {
	a.ring.Close()
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// Keyring exposes the key store to the key management commands.
func (a *App) Keyring() *keyring.Store {
	return a.ring
}

// Config returns the configuration the app was built from.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Logger exposes the run's logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// workIDPattern matches DLsite work IDs embedded in file names, e.g.
// RJ123456 or VJ01000123.
var workIDPattern = regexp.MustCompile(`(?i)(RJ|RE|VJ|BJ)[0-9]{6,8}`)

// FindWorkID extracts a work ID from a path, or returns "" if none is
// present.
func FindWorkID(path string) string {
	return strings.ToUpper(workIDPattern.FindString(filepath.Base(path)))
}

// ResolveKey produces the AES key and IV for a container. Explicit hex
// strings win; otherwise the keyring is consulted for the given work ID
// (inferred from the container name when workID is empty).
func (a *App) ResolveKey(containerPath, workID, keyHex, ivHex string) ([]byte, []byte, error) {
	if keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, nil, fmt.Errorf("decoding key: %w", err)
		}
		var iv []byte
		if ivHex != "" {
			if iv, err = hex.DecodeString(ivHex); err != nil {
				return nil, nil, fmt.Errorf("decoding iv: %w", err)
			}
		}
		return key, iv, nil
	}

	if workID == "" {
		workID = FindWorkID(containerPath)
	}
	if workID == "" {
		return nil, nil, fmt.Errorf("no key given and no work ID found in %q", filepath.Base(containerPath))
	}

	rec, err := a.ring.Get(workID)
	if err != nil {
		return nil, nil, err
	}
	if rec == nil {
		return nil, nil, fmt.Errorf("no key stored for %s", workID)
	}
	a.logger.Debug("using stored key", "work_id", workID)
	return rec.Key, rec.IV, nil
}

// ExtractOptions carries per-invocation extraction settings.
type ExtractOptions struct {
	Dest    string // destination directory; empty derives it from the container name
	Jobs    int    // 0 falls back to the configured default
	OnEntry func(e *dlst.Entry)
}

// Extract decrypts every entry of the container at path into the
// destination directory and returns the directory used.
func (a *App) Extract(ctx context.Context, path string, key, iv []byte, opts ExtractOptions) (string, error) {
	dest := opts.Dest
	if dest == "" {
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		dest = filepath.Join(a.destRoot(path), base)
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = a.cfg.Extract.Jobs
	}

	r, err := dlst.OpenReader(path, key, iv)
	if err != nil {
		return "", err
	}
	defer r.Close()

	a.logger.Info("extracting container", "path", path, "entries", len(r.Entries()), "dest", dest, "jobs", jobs)
	start := time.Now()
	err = r.ExtractAll(ctx, dest, dlst.ExtractOptions{
		Jobs: jobs,
		OnEntry: func(e *dlst.Entry) {
			a.logger.Debug("entry extracted", "name", e.Name, "size", e.Size)
			if opts.OnEntry != nil {
				opts.OnEntry(e)
			}
		},
	})
	if err != nil {
		a.logger.Error("extraction failed", "path", path, "error", err)
		return dest, err
	}
	a.logger.Info("extraction complete", "path", path, "elapsed", time.Since(start).Round(time.Millisecond))
	return dest, nil
}

// destRoot returns the configured destination root, falling back to the
// container's own directory.
func (a *App) destRoot(containerPath string) string {
	if a.cfg.Extract.DestDir != "" {
		return a.cfg.Extract.DestDir
	}
	return filepath.Dir(containerPath)
}

// List opens the container without a key and returns its entries.
func (a *App) List(path string) ([]*dlst.Entry, error) {
	r, err := dlst.OpenReader(path, nil, nil)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.Entries(), nil
}
