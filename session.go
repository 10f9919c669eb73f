package main

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/mattn/yarl/rl"
)

func historyDir(configDir string) string {
	return filepath.Join(configDir, "history")
}

// historyFilePath returns the history file kept for statements typed in
// workDir.
func historyFilePath(configDir, workDir string) string {
	h := sha256.Sum256([]byte(workDir))
	name := fmt.Sprintf("%x", h[:16])
	return filepath.Join(historyDir(configDir), name)
}

// resolveHistoryPath picks the history file: the configured one, or the
// per-directory one. It returns "" when there is nowhere to keep history.
func resolveHistoryPath(cfg *Config, configDir, workDir string) string {
	if cfg.HistoryFile != "" {
		return cfg.HistoryFile
	}
	if configDir == "" || workDir == "" {
		return ""
	}
	return historyFilePath(configDir, workDir)
}

// loadHistory reads the history file into r. A missing file is not an
// error.
func loadHistory(r *rl.Readline, path string) (int, error) {
	before := r.History().Len()
	if err := r.ReadHistory(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	return r.History().Len() - before, nil
}
