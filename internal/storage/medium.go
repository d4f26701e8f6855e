package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const DefaultLockTimeout = 2 * time.Second

// Medium is the shared storage root holding the station config file and
// display assets. All file access goes through the single lock.
type Medium struct {
	root    string
	lock    *Lock
	timeout time.Duration
}

func Mount(root string) (*Medium, error) {
	if root == "" {
		return nil, fmt.Errorf("mount storage: empty root")
	}
	if err := os.MkdirAll(filepath.Join(root, "assets"), 0o755); err != nil {
		return nil, fmt.Errorf("mount storage %q: %w", root, err)
	}
	return &Medium{
		root:    root,
		lock:    NewLock(),
		timeout: DefaultLockTimeout,
	}, nil
}

func (m *Medium) Root() string { return m.root }

func (m *Medium) SetLockTimeout(d time.Duration) { m.timeout = d }

func (m *Medium) Lock() *Lock { return m.lock }

func (m *Medium) path(name string) string {
	return filepath.Join(m.root, filepath.FromSlash(name))
}

func (m *Medium) ReadFile(name string) ([]byte, error) {
	var data []byte
	err := m.lock.With(m.timeout, func() error {
		var err error
		data, err = os.ReadFile(m.path(name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// View opens name and hands it to fn with the lock held, so a read and its
// decode happen under one acquisition.
func (m *Medium) View(name string, fn func(io.Reader) error) error {
	err := m.lock.With(m.timeout, func() error {
		f, err := os.Open(m.path(name))
		if err != nil {
			return err
		}
		defer f.Close()
		return fn(f)
	})
	if err != nil {
		return fmt.Errorf("view %s: %w", name, err)
	}
	return nil
}

// WriteFile replaces name atomically with data.
func (m *Medium) WriteFile(name string, data []byte) error {
	err := m.lock.With(m.timeout, func() error {
		dst := m.path(name)
		tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-"+filepath.Base(dst))
		if err != nil {
			return err
		}
		defer os.Remove(tmp.Name())

		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			return err
		}
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			return err
		}
		if err := tmp.Close(); err != nil {
			return err
		}
		return os.Rename(tmp.Name(), dst)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
