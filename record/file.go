// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/gofrs/flock"
)

const (
	// FileName is the name of the records file.
	FileName = "records.json"
	// FileVersion is the current records file format version.
	FileVersion = 1

	lockRetryDelay = 50 * time.Millisecond
)

type document struct {
	Version int       `json:"version"`
	Records []*Record `json:"records"`
}

// FileStore keeps records in a single JSON file. Writes go to a temporary
// file that is renamed over the original, and every operation holds an
// exclusive flock on a sibling lock file so that several processes can
// share the store.
type FileStore struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

// NewFileStore returns a store backed by the file at path. The file is
// created on the first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the location of the records file within dataHome.
func Path(dataHome string) string {
	return filepath.Join(dataHome, "ocs-custodian", FileName)
}

// DefaultPath returns the records file under the XDG data directory.
func DefaultPath() string {
	return Path(xdg.DataHome)
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, key Key) (*Record, error) {
	var found *Record
	err := s.withLock(ctx, func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		for _, r := range doc.Records {
			if r.Key() == key {
				found = r
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Put implements Store.
func (s *FileStore) Put(ctx context.Context, r *Record) error {
	if r.ProviderHost == "" || r.ItemID == "" {
		return errors.New("record needs a provider host and an item id")
	}
	return s.withLock(ctx, func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		doc.Records = slices.DeleteFunc(doc.Records, func(existing *Record) bool {
			return existing.Key() == r.Key()
		})
		stored := *r
		doc.Records = append(doc.Records, &stored)
		return s.save(doc)
	})
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, key Key) error {
	return s.withLock(ctx, func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		n := len(doc.Records)
		doc.Records = slices.DeleteFunc(doc.Records, func(existing *Record) bool {
			return existing.Key() == key
		})
		if len(doc.Records) == n {
			return nil
		}
		return s.save(doc)
	})
}

// List implements Store.
func (s *FileStore) List(ctx context.Context) ([]*Record, error) {
	var out []*Record
	err := s.withLock(ctx, func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		out = doc.Records
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortRecords(out)
	return out, nil
}

func (s *FileStore) withLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("creating records directory: %w", err)
	}
	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("locking records file: %w", err)
	}
	if !locked {
		return errors.New("could not lock records file")
	}
	defer func() { _ = s.lock.Unlock() }()

	return fn()
}

func (s *FileStore) load() (*document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &document{Version: FileVersion}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading records file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing records file: %w", err)
	}
	if doc.Version > FileVersion {
		return nil, fmt.Errorf("records file version %d is newer than supported version %d", doc.Version, FileVersion)
	}
	doc.Version = FileVersion
	return &doc, nil
}

func (s *FileStore) save(doc *document) error {
	sortRecords(doc.Records)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary records file: %w", err)
	}
	tempPath := tmp.Name()
	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temporary records file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("replacing records file: %w", err)
	}
	return nil
}

func sortRecords(records []*Record) {
	slices.SortFunc(records, func(a, b *Record) int {
		return cmp.Or(
			cmp.Compare(a.ProviderHost, b.ProviderHost),
			cmp.Compare(a.ItemID, b.ItemID),
		)
	})
}
