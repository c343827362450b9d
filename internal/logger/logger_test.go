package logger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormLoggerRedactsSecrets(t *testing.T) {
	gl := NewGormLogger(zap.NewNop(), true).(*GormLogger)
	got := gl.Redact(`SELECT 1 WHERE password = 'hunter2' AND token=abc`)
	assert.NotContains(t, got, "hunter2")
	assert.NotContains(t, got, "abc")
	assert.Contains(t, got, "***REDACTED***")
}

func TestGormLoggerTraceLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), false)

	fc := func() (string, int64) { return "SELECT 1", 1 }
	gl.Trace(context.Background(), time.Now(), fc, nil)
	assert.Equal(t, 0, logs.Len(), "fast successful queries are not logged outside debug")

	gl.Trace(context.Background(), time.Now(), fc, errors.New("boom"))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "SQL error", logs.All()[0].Message)

	gl.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now(), fc, errors.New("boom"))
	assert.Equal(t, 1, logs.Len())
}

func TestBlockLoggerDoesNotInterleave(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	bl := NewBlockLogger(zap.New(core))

	const tables = 20
	const linesPerBlock = 5
	var wg sync.WaitGroup
	for i := 0; i < tables; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			bl.Block(func(log *zap.Logger) {
				for j := 0; j < linesPerBlock; j++ {
					log.Info("line", zap.String("table", fmt.Sprintf("t%d", id)))
				}
			})
		}(i)
	}
	wg.Wait()

	entries := logs.All()
	require.Len(t, entries, tables*linesPerBlock)
	for i := 0; i < len(entries); i += linesPerBlock {
		first := entries[i].ContextMap()["table"]
		for j := 1; j < linesPerBlock; j++ {
			assert.Equal(t, first, entries[i+j].ContextMap()["table"], "block starting at %d was interleaved", i)
		}
	}
}
