package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
)

const (
	datePartitionLayout = "2006-01-02"
	deleteMarkerSuffix  = ".deleted"
)

// DocumentStore is the canonical append-only file store. Layout is
// documents/{group_id}/{yyyy-mm-dd}/{document_id}.json, one file per
// version. It is the source of truth; the graph and vector indexes are
// projections rebuilt from it during reconciliation.
//
// This store is deliberately plain files rather than a database: the layout
// is part of the on-disk contract so operators can inspect, back up, and
// replay documents with standard tools.
type DocumentStore struct {
	root   string
	logger arbor.ILogger
}

// NewDocumentStore creates the store rooted at dir.
func NewDocumentStore(dir string, logger arbor.ILogger) (*DocumentStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("document store dir is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create document store root: %w", err)
	}
	return &DocumentStore{root: dir, logger: logger}, nil
}

func (s *DocumentStore) partitionDir(groupID string, createdAt time.Time) string {
	return filepath.Join(s.root, groupID, createdAt.UTC().Format(datePartitionLayout))
}

func (s *DocumentStore) documentPath(doc *models.Document) string {
	return filepath.Join(s.partitionDir(doc.GroupID, doc.CreatedAt), doc.DocumentID+".json")
}

// Put atomically writes one document version: write to a temp file in the
// partition, fsync, then rename. Readers never observe a partial file.
func (s *DocumentStore) Put(ctx context.Context, doc *models.Document) error {
	dir := s.partitionDir(doc.GroupID, doc.CreatedAt)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return models.WrapServiceError(models.ErrStoreWriteFailed, "failed to create partition", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return models.WrapServiceError(models.ErrStoreWriteFailed, "failed to marshal document", err)
	}

	tmp, err := os.CreateTemp(dir, "."+doc.DocumentID+".tmp-")
	if err != nil {
		return models.WrapServiceError(models.ErrStoreWriteFailed, "failed to create temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return models.WrapServiceError(models.ErrStoreWriteFailed, "failed to write document", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return models.WrapServiceError(models.ErrStoreWriteFailed, "failed to sync document", err)
	}
	if err := tmp.Close(); err != nil {
		return models.WrapServiceError(models.ErrStoreWriteFailed, "failed to close temp file", err)
	}

	final := filepath.Join(dir, doc.DocumentID+".json")
	if err := os.Rename(tmpName, final); err != nil {
		return models.WrapServiceError(models.ErrStoreWriteFailed, "failed to publish document", err)
	}
	return nil
}

// Get returns a stored document, restricted to the permitted groups. A date
// hint narrows the scan to one partition per group; without it every date
// partition of each permitted group is checked, newest first.
func (s *DocumentStore) Get(ctx context.Context, documentID string, dateHint *time.Time, groups []string) (*models.Document, error) {
	for _, groupID := range groups {
		var dates []string
		if dateHint != nil {
			dates = []string{dateHint.UTC().Format(datePartitionLayout)}
		} else {
			var err error
			dates, err = s.partitionDates(groupID)
			if err != nil {
				return nil, err
			}
		}
		for _, date := range dates {
			path := filepath.Join(s.root, groupID, date, documentID+".json")
			if _, err := os.Stat(path + deleteMarkerSuffix); err == nil {
				return nil, models.NewServiceError(models.ErrNotFound, "document not found")
			}
			doc, err := s.readDocument(path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return nil, err
			}
			return doc, nil
		}
	}
	return nil, models.NewServiceError(models.ErrNotFound, "document not found")
}

// Delete soft-deletes via a marker file next to the document. The bytes are
// retained.
func (s *DocumentStore) Delete(ctx context.Context, documentID, groupID string) error {
	dates, err := s.partitionDates(groupID)
	if err != nil {
		return err
	}
	for _, date := range dates {
		path := filepath.Join(s.root, groupID, date, documentID+".json")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		marker, err := os.Create(path + deleteMarkerSuffix)
		if err != nil {
			return models.WrapServiceError(models.ErrStoreWriteFailed, "failed to write delete marker", err)
		}
		return marker.Close()
	}
	return models.NewServiceError(models.ErrNotFound, "document not found")
}

// partitionDates lists a group's date partitions, newest first.
func (s *DocumentStore) partitionDates(groupID string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, groupID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, models.WrapServiceError(models.ErrStoreUnavailable, "failed to list partitions", err)
	}
	var dates []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := time.Parse(datePartitionLayout, entry.Name()); err != nil {
			continue
		}
		dates = append(dates, entry.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

func (s *DocumentStore) readDocument(path string) (*models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, models.WrapServiceError(models.ErrStoreUnavailable, "failed to read document", err)
	}
	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, models.WrapServiceError(models.ErrStoreUnavailable, "corrupt canonical file", err).
			WithDetail("path", filepath.Base(path))
	}
	return &doc, nil
}

// Iter streams one group's documents over [from, to], oldest partition
// first. Soft-deleted documents are skipped.
func (s *DocumentStore) Iter(ctx context.Context, groupID string, from, to time.Time) (interfaces.DocumentIterator, error) {
	dates, err := s.partitionDates(groupID)
	if err != nil {
		return nil, err
	}
	// Oldest first for reconciliation sweeps.
	sort.Strings(dates)

	var paths []string
	for _, date := range dates {
		day, err := time.Parse(datePartitionLayout, date)
		if err != nil {
			continue
		}
		if !from.IsZero() && day.Before(from.UTC().Truncate(24*time.Hour)) {
			continue
		}
		if !to.IsZero() && day.After(to.UTC()) {
			continue
		}
		dir := filepath.Join(s.root, groupID, date)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, models.WrapServiceError(models.ErrStoreUnavailable, "failed to list partition", err)
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || filepath.Ext(name) != ".json" {
				continue
			}
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path + deleteMarkerSuffix); err == nil {
				continue
			}
			paths = append(paths, path)
		}
	}
	return &documentIterator{store: s, paths: paths}, nil
}

type documentIterator struct {
	store *DocumentStore
	paths []string
	pos   int
}

// Next returns the next document, or (nil, nil) when exhausted.
func (it *documentIterator) Next() (*models.Document, error) {
	for it.pos < len(it.paths) {
		path := it.paths[it.pos]
		it.pos++
		doc, err := it.store.readDocument(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		return doc, nil
	}
	return nil, nil
}

func (it *documentIterator) Close() error {
	it.paths = nil
	return nil
}
