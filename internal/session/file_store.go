package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

const stateFileName = "session.json"

type fileState struct {
	RoomUsers     map[string]string `json:"room_users"`
	TermsAccepted map[string]bool   `json:"terms_accepted"`
}

// FileStore keeps session state in a JSON file under a state directory
type FileStore struct {
	path   string
	logger *zap.Logger

	mu sync.Mutex
}

// NewFileStore creates the state directory if needed
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStore{path: filepath.Join(dir, stateFileName), logger: logger}, nil
}

// UserName returns the name stored for roomID
func (f *FileStore) UserName(_ context.Context, roomID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, err := f.read()
	if err != nil {
		return "", err
	}
	return st.RoomUsers[roomID], nil
}

// SetUserName stores name for roomID
func (f *FileStore) SetUserName(_ context.Context, roomID, name string) error {
	return f.update(func(st *fileState) {
		st.RoomUsers[roomID] = name
	})
}

// ClearUserName forgets the name stored for roomID
func (f *FileStore) ClearUserName(_ context.Context, roomID string) error {
	return f.update(func(st *fileState) {
		delete(st.RoomUsers, roomID)
	})
}

// TermsAccepted reports whether the given terms version was accepted
func (f *FileStore) TermsAccepted(_ context.Context, version string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, err := f.read()
	if err != nil {
		return false, err
	}
	return st.TermsAccepted[version], nil
}

// AcceptTerms records acceptance of the given terms version
func (f *FileStore) AcceptTerms(_ context.Context, version string) error {
	return f.update(func(st *fileState) {
		st.TermsAccepted[version] = true
	})
}

func (f *FileStore) update(mutate func(*fileState)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, err := f.read()
	if err != nil {
		return err
	}
	mutate(&st)
	return f.write(st)
}

func (f *FileStore) read() (fileState, error) {
	st := fileState{RoomUsers: map[string]string{}, TermsAccepted: map[string]bool{}}

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("read session state: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		// a corrupt file only costs the user a re-join
		f.logger.Warn("Discarding unreadable session state", zap.String("path", f.path), zap.Error(err))
		return fileState{RoomUsers: map[string]string{}, TermsAccepted: map[string]bool{}}, nil
	}
	if st.RoomUsers == nil {
		st.RoomUsers = map[string]string{}
	}
	if st.TermsAccepted == nil {
		st.TermsAccepted = map[string]bool{}
	}
	return st, nil
}

func (f *FileStore) write(st fileState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*.json")
	if err != nil {
		return fmt.Errorf("write session state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write session state: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("write session state: %w", err)
	}
	return nil
}
