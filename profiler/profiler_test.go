package profiler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageTimer_Record(t *testing.T) {
	s := NewStageTimer()
	s.Record("decode", 10*time.Millisecond)
	s.Record("decode", 30*time.Millisecond)
	s.Record("nms", 5*time.Millisecond)

	stages := s.Stages()
	require.Len(t, stages, 2)

	assert.Equal(t, "decode", stages[0].Name())
	assert.Equal(t, int64(2), stages[0].Count())
	assert.Equal(t, 20*time.Millisecond, stages[0].Mean())
	assert.Equal(t, "nms", stages[1].Name())
}

func TestStageTimer_NilReceiverIsInert(t *testing.T) {
	var s *StageTimer
	s.Record("decode", time.Millisecond)

	ran := false
	s.Time("decode", func() { ran = true })
	assert.True(t, ran)
}

func TestStageTimer_ConcurrentRecord(t *testing.T) {
	s := NewStageTimer()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Record("decode", time.Microsecond)
			}
		}()
	}
	wg.Wait()

	stages := s.Stages()
	require.Len(t, stages, 1)
	assert.Equal(t, int64(800), stages[0].Count())
}
