package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/r74tech/raven-front/db/kvdb"
)

type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

var documentExtensions = map[string]bool{
	".json":   true,
	".jsonl":  true,
	".ndjson": true,
}

// discoverFiles returns the document files under root (or root itself when it is a file)
// that changed since they were last imported.
func (s *Service) discoverFiles(root string) (changed []FileInfo, skipped int, err error) {
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Error("could not walk through file or directory", "path", path, "err", err.Error())
			if path == root || !errors.Is(err, fs.ErrPermission) {
				return err
			}
			return nil
		}

		// Skip hidden directories but not the root itself
		if entry.IsDir() {
			if path != root && strings.HasPrefix(entry.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(entry.Name(), ".") || !documentExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		if !s.shouldFileBeImported(path, info.ModTime()) {
			skipped++
			return nil
		}
		changed = append(changed, FileInfo{Path: path, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})

	return changed, skipped, err
}

const fileMetadataPrefix = "file:"

func fileMetadataKey(path string) string {
	return fileMetadataPrefix + path
}

func (s *Service) shouldFileBeImported(path string, modTime time.Time) bool {
	metadata, err := s.getFileMetadata(path)
	if err != nil {
		var notFoundErr *kvdb.NotFoundError
		if !errors.As(err, &notFoundErr) {
			s.logger.Error("failed to get import metadata", "path", path, "err", err.Error())
		}
		return true
	}

	return modTime.After(metadata.LastImported)
}

func (s *Service) getFileMetadata(path string) (*kvdb.ImportMetadata, error) {
	return s.getMetadata(fileMetadataKey(path))
}

func (s *Service) getMetadata(key string) (*kvdb.ImportMetadata, error) {
	value, err := s.metadataStore.Get(kvdb.MetaBucket, key)
	if err != nil {
		return nil, err
	}

	var metadata kvdb.ImportMetadata
	if err := json.Unmarshal([]byte(value), &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal import metadata for %s: %w", key, err)
	}
	return &metadata, nil
}

func (s *Service) setMetadata(key string, metadata kvdb.ImportMetadata) error {
	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal import metadata for %s: %w", key, err)
	}
	if err := s.metadataStore.Set(kvdb.MetaBucket, key, string(data)); err != nil {
		s.logger.Error("failed to set import metadata", "key", key, "err", err.Error())
		return err
	}
	return nil
}
