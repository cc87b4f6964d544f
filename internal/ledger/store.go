package ledger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"CardRoyale/internal/utils"
)

// Store is the pluggable durability backend. The ledger itself never
// touches disk; a Snapshotter drives Save on a cadence.
type Store interface {
	Save(Snapshot) error
	Load() (Snapshot, bool, error)
}

// FileStore keeps the snapshot as a single JSON document, written
// atomically (tmp file + rename).
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Save(snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.Path)
}

func (s *FileStore) Load() (Snapshot, bool, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

// Snapshotter persists the ledger every interval until Stop.
type Snapshotter struct {
	led   *Ledger
	store Store
	quit  chan struct{}
	done  chan struct{}
}

func NewSnapshotter(led *Ledger, store Store) *Snapshotter {
	return &Snapshotter{
		led:   led,
		store: store,
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (s *Snapshotter) Run(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.store.Save(s.led.Snapshot()); err != nil {
				utils.Error.Printf("ledger snapshot failed: %v", err)
			}
		case <-s.quit:
			// final snapshot on the way out
			if err := s.store.Save(s.led.Snapshot()); err != nil {
				utils.Error.Printf("ledger snapshot failed: %v", err)
			}
			return
		}
	}
}

func (s *Snapshotter) Stop() {
	close(s.quit)
	<-s.done
}
