package telegram

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-faster/errors"
	"github.com/gotd/td/session"
)

// fileSession stores the MTProto session of one account slot. Writes go to a
// temporary file that is renamed over the old one, so a crash never leaves a
// truncated session behind. A file that is empty or not JSON reads as no
// session at all and the account logs in again.
type fileSession struct {
	path string
	mu   sync.Mutex
}

var _ session.Storage = (*fileSession)(nil)

func (s *fileSession) LoadSession(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, session.ErrNotFound
	case err != nil:
		return nil, errors.Wrap(err, "read session")
	case len(data) == 0 || !json.Valid(data):
		return nil, session.ErrNotFound
	}
	return data, nil
}

func (s *fileSession) StoreSession(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "create session dir")
	}
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp session")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write session")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close session")
	}
	return errors.Wrap(os.Rename(tmp.Name(), s.path), "replace session")
}
