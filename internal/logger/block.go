package logger

import (
	"sync"

	"go.uber.org/zap"
)

// BlockLogger serializes multi-line announcements so lines from two tables'
// start (or done) blocks never interleave. Progress lines written with the
// plain logger outside Block are not ordered.
type BlockLogger struct {
	mu  sync.Mutex
	log *zap.Logger
}

func NewBlockLogger(log *zap.Logger) *BlockLogger {
	return &BlockLogger{log: log}
}

// Block runs fn with the lock held. fn must only log.
func (b *BlockLogger) Block(fn func(log *zap.Logger)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b.log)
}

// Logger returns the unsynchronized logger for progress lines.
func (b *BlockLogger) Logger() *zap.Logger {
	return b.log
}
