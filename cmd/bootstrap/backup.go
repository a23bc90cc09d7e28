package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// backupDatabase copies an existing SQLite file next to itself with a
// timestamp suffix and keeps at most maxBackups copies. A missing file is
// not an error: there is nothing to back up yet.
func backupDatabase(dbPath string, maxBackups int, logger *zap.SugaredLogger) error {
	info, err := os.Stat(dbPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat database file: %w", err)
	}
	logger.Infow("existing database file", "path", dbPath, "size", humanize.Bytes(uint64(info.Size())))

	backupPath := fmt.Sprintf("%s.%s%s", dbPath, time.Now().Format("20060102-150405"), backupFileExt)
	if err := copyFile(dbPath, backupPath, logger); err != nil {
		return fmt.Errorf("failed to create DB backup: %w", err)
	}
	logger.Infow("existing database backed up", "backup", backupPath)
	pruneOldBackups(dbPath, maxBackups, logger)
	return nil
}

func copyFile(src, dst string, logger *zap.SugaredLogger) error {
	sourceFileStat, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !sourceFileStat.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", src)
	}

	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if err := source.Close(); err != nil {
			logger.Warnw("failed to close file", "path", src, "error", err)
		}
	}()

	destination, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := destination.ReadFrom(source); err != nil {
		_ = destination.Close()
		return err
	}
	return destination.Close()
}

func pruneOldBackups(dbPath string, maxBackups int, logger *zap.SugaredLogger) {
	dir := filepath.Dir(dbPath)
	prefix := filepath.Base(dbPath) + "."
	files, err := os.ReadDir(dir)
	if err != nil {
		logger.Warnw("failed to read backup directory", "dir", dir, "error", err)
		return
	}

	var backups []string
	for _, f := range files {
		if strings.HasPrefix(f.Name(), prefix) && strings.HasSuffix(f.Name(), backupFileExt) {
			backups = append(backups, filepath.Join(dir, f.Name()))
		}
	}

	if len(backups) <= maxBackups {
		return
	}

	// Timestamps sort lexically.
	sort.Strings(backups)
	for _, file := range backups[:len(backups)-maxBackups] {
		if err := os.Remove(file); err != nil {
			logger.Warnw("failed to remove old backup", "path", file, "error", err)
		} else {
			logger.Infow("removed old backup", "path", file)
		}
	}
}
