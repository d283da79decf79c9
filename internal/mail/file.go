package mail

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileSender writes every message to its own file under Dir.
type FileSender struct {
	Dir string

	mu  sync.Mutex
	seq int
	now func() time.Time
}

func NewFileSender(dir string) *FileSender {
	return &FileSender{Dir: dir, now: time.Now}
}

func (s *FileSender) Send(_ context.Context, m Message) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create mail dir: %w", err)
	}
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	now := s.now()
	name := fmt.Sprintf("%s-%d.log", now.UTC().Format("20060102-150405.000000000"), seq)
	if err := os.WriteFile(filepath.Join(s.Dir, name), m.Bytes(now), 0o644); err != nil {
		return fmt.Errorf("write mail: %w", err)
	}
	return nil
}
