package quota

import (
	"context"

	"github.com/pollwave/backend/internal/state"
)

const windowKey = "quota:window"

// FileStore keeps the window in the shared buntdb state file.
type FileStore struct {
	file *state.File
}

func NewFileStore(file *state.File) *FileStore {
	return &FileStore{file: file}
}

func (s *FileStore) Update(ctx context.Context, fn func(w *Window) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var w Window
	return s.file.Update(windowKey, &w, func() error {
		return fn(&w)
	})
}

func (s *FileStore) View(ctx context.Context) (Window, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, err
	}
	var w Window
	err := s.file.Load(windowKey, &w)
	return w, err
}

var _ Store = (*FileStore)(nil)
