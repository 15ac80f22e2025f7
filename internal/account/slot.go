// Package account manages the persisted account slots: one storage directory
// per account under a shared base data directory.
package account

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	dirPrefix    = "account-"
	metadataFile = "slot.yaml"
)

var ErrSlotNotFound = errors.New("account slot not found")

// Slot identifies one persisted account. Two slots are the same account iff
// they are equal.
type Slot struct {
	Dir       string
	UseTestDC bool
}

func (s Slot) String() string {
	if s.UseTestDC {
		return s.Dir + " (test)"
	}
	return s.Dir
}

type metadata struct {
	UseTestDC bool      `yaml:"use_test_dc"`
	CreatedAt time.Time `yaml:"created_at"`
}

// Store allocates, lists and purges slot directories under a base directory.
type Store struct {
	baseDir string
	logger  *zap.Logger
}

func NewStore(baseDir string, logger *zap.Logger) *Store {
	return &Store{baseDir: baseDir, logger: logger}
}

// Path returns the storage directory of slot.
func (s *Store) Path(slot Slot) string {
	return filepath.Join(s.baseDir, slot.Dir)
}

// Allocate creates a fresh slot directory and records its environment.
func (s *Store) Allocate(useTestDC bool) (Slot, error) {
	slot := Slot{Dir: dirPrefix + uuid.NewString(), UseTestDC: useTestDC}
	dir := s.Path(slot)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Slot{}, errors.Wrap(err, "create slot directory")
	}

	data, err := yaml.Marshal(metadata{UseTestDC: useTestDC, CreatedAt: time.Now().UTC()})
	if err != nil {
		return Slot{}, errors.Wrap(err, "encode slot metadata")
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFile), data, 0o600); err != nil {
		return Slot{}, errors.Wrap(err, "write slot metadata")
	}
	return slot, nil
}

// List returns all persisted slots, oldest first. Directories without
// readable metadata are skipped and logged.
func (s *Store) List() ([]Slot, error) {
	entries, err := os.ReadDir(s.baseDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read data directory")
	}

	type found struct {
		slot    Slot
		created time.Time
	}
	var slots []found
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), dirPrefix) {
			continue
		}
		md, err := s.readMetadata(e.Name())
		if err != nil {
			s.logger.Warn("Skipping account directory", zap.String("dir", e.Name()), zap.Error(err))
			continue
		}
		slots = append(slots, found{
			slot:    Slot{Dir: e.Name(), UseTestDC: md.UseTestDC},
			created: md.CreatedAt,
		})
	}

	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].created.Before(slots[j].created)
	})
	out := make([]Slot, len(slots))
	for i, f := range slots {
		out[i] = f.slot
	}
	return out, nil
}

// Remove deletes the slot directory with everything the backend cached in it.
func (s *Store) Remove(slot Slot) error {
	dir := s.Path(slot)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return ErrSlotNotFound
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "remove %s", dir)
	}
	return nil
}

func (s *Store) readMetadata(dir string) (metadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, dir, metadataFile))
	if err != nil {
		return metadata{}, errors.Wrap(err, "read slot metadata")
	}
	var md metadata
	if err := yaml.Unmarshal(data, &md); err != nil {
		return metadata{}, errors.Wrap(err, "parse slot metadata")
	}
	return md, nil
}
