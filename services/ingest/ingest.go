package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/r74tech/raven-front/db/kvdb"
	"github.com/r74tech/raven-front/db/searchdb"
	"github.com/r74tech/raven-front/logger"
)

// Indexer is the part of the local search engine an import writes to.
type Indexer interface {
	BuildIndex(documents []searchdb.Document) error
}

type MetadataStore interface {
	Set(bucket string, key string, value string) error
	Get(bucket string, key string) (string, error)
	GetAllKeys(bucket string) ([]string, error)
}

const (
	LastImportKey = "last_import"

	maxParallelFiles = 4
	maxImportTime    = 2 * time.Hour
)

type Service struct {
	logger        logger.Logger
	indexer       Indexer
	metadataStore MetadataStore
}

type Summary struct {
	Files     int
	Skipped   int
	Documents int
	Failed    int
}

func New(logger logger.Logger, indexer Indexer, metadataStore MetadataStore) *Service {
	return &Service{
		logger:        logger,
		indexer:       indexer,
		metadataStore: metadataStore,
	}
}

// Load imports every changed document file under path into the local index and records
// when each file was imported.
func (s *Service) Load(ctx context.Context, path string) (Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, maxImportTime)
	defer cancel()

	files, skipped, err := s.discoverFiles(path)
	if err != nil {
		s.logger.Error("failed to discover document files", "path", path, "err", err.Error())
		return Summary{}, fmt.Errorf("failed to discover document files: %w", err)
	}
	s.logger.Info("discovered document files", "changed", len(files), "unchanged", skipped)

	summary := Summary{Files: len(files), Skipped: skipped}
	if len(files) == 0 {
		return summary, nil
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	semaphore := make(chan struct{}, maxParallelFiles)

	for _, file := range files {
		wg.Add(1)
		go func(file FileInfo) {
			defer wg.Done()
			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				return
			}

			imported, err := s.importFile(ctx, file)

			mu.Lock()
			defer mu.Unlock()
			summary.Documents += imported
			if err != nil {
				summary.Failed++
				if firstErr == nil {
					firstErr = err
				}
			}
		}(file)
	}
	wg.Wait()

	if ctx.Err() != nil {
		s.logger.Error("import cancelled", "path", path, "err", ctx.Err())
		return summary, ctx.Err()
	}

	if err := s.setMetadata(LastImportKey, kvdb.ImportMetadata{LastImported: time.Now().UTC(), Documents: summary.Documents}); err != nil {
		return summary, err
	}

	s.logger.Info("finished importing documents", "documents", summary.Documents, "files", summary.Files, "failed", summary.Failed)
	return summary, firstErr
}

func (s *Service) importFile(ctx context.Context, file FileInfo) (int, error) {
	importTime := time.Now().UTC()

	handle, err := os.Open(file.Path)
	if err != nil {
		s.logger.Error("could not open document file", "path", file.Path, "err", err.Error())
		return 0, err
	}
	defer handle.Close()

	counter := &countingReader{reader: handle}
	decoder, err := newDocumentDecoder(counter)
	if err != nil {
		return 0, fmt.Errorf("could not read %s: %w", file.Path, err)
	}

	imported := 0
	batch := make([]searchdb.Document, 0, searchdb.IndexingBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.indexer.BuildIndex(batch); err != nil {
			s.logger.Error("failed to index batch", "path", file.Path, "err", err.Error())
			return err
		}
		imported += len(batch)
		batch = batch[:0]
		s.logger.Info("imported documents", "path", file.Path, "count", imported,
			"progress", getProgressPercentage(int(counter.count), int(file.Size), 0, 100))
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return imported, err
		}

		document, err := decoder.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, errInvalidDocument) {
			s.logger.Warn("skipping document", "path", file.Path, "err", err.Error())
			continue
		}
		if err != nil {
			s.logger.Error("could not decode document file", "path", file.Path, "err", err.Error())
			return imported, fmt.Errorf("could not decode %s: %w", file.Path, err)
		}

		batch = append(batch, document)
		if len(batch) >= searchdb.IndexingBatchSize {
			if err := flush(); err != nil {
				return imported, err
			}
		}
	}
	if err := flush(); err != nil {
		return imported, err
	}

	if err := s.setMetadata(fileMetadataKey(file.Path), kvdb.ImportMetadata{LastImported: importTime, Documents: imported}); err != nil {
		return imported, err
	}
	return imported, nil
}

// LastImport returns when documents were last imported, if ever.
func (s *Service) LastImport() (*kvdb.ImportMetadata, error) {
	return s.getMetadata(LastImportKey)
}

// TrackedFiles lists the document files whose import has been recorded, sorted by path.
func (s *Service) TrackedFiles() ([]string, error) {
	keys, err := s.metadataStore.GetAllKeys(kvdb.MetaBucket)
	if err != nil {
		return nil, fmt.Errorf("could not list imported files: %w", err)
	}

	files := []string{}
	for _, key := range keys {
		if path, ok := strings.CutPrefix(key, fileMetadataPrefix); ok {
			files = append(files, path)
		}
	}
	return files, nil
}

func getProgressPercentage(done int, total int, initial int, final int) int {
	if done == 0 || total == 0 {
		return initial
	}

	if done >= total {
		return final
	}

	progress := float64(done) / float64(total)
	result := float64(initial) + progress*float64(final-initial)

	return int(result)
}
