package cron

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-reconciler/internal/domain/posting"
)

type stubPoster struct {
	mu    sync.Mutex
	calls int
	conf  float64
	limit int
	res   posting.AutoPostResult
	err   error
	block chan struct{}
}

func (p *stubPoster) AutoPost(_ context.Context, minConfidence float64, limit int) (posting.AutoPostResult, error) {
	p.mu.Lock()
	p.calls++
	p.conf, p.limit = minConfidence, limit
	block := p.block
	p.mu.Unlock()
	if block != nil {
		<-block
	}
	return p.res, p.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RunNow(t *testing.T) {
	poster := &stubPoster{res: posting.AutoPostResult{Candidates: 3, Posted: 2, Failed: 1}}
	s := NewScheduler(poster, AutoPostConfig{Schedule: "@every 1h", MinConfidence: 95}, quietLogger())

	res := s.RunNow()
	assert.Equal(t, 2, res.Posted)
	assert.Equal(t, 1, poster.calls)
	assert.InDelta(t, 95.0, poster.conf, 1e-9)
	assert.Equal(t, 200, poster.limit, "default batch size")
}

func TestScheduler_ErrorDoesNotPanic(t *testing.T) {
	poster := &stubPoster{err: errors.New("db down")}
	s := NewScheduler(poster, AutoPostConfig{Schedule: "@every 1h"}, quietLogger())
	assert.NotPanics(t, func() { s.RunNow() })
}

func TestScheduler_SkipsOverlappingSweep(t *testing.T) {
	poster := &stubPoster{block: make(chan struct{})}
	s := NewScheduler(poster, AutoPostConfig{Schedule: "@every 1h"}, quietLogger())

	done := make(chan struct{})
	go func() {
		s.RunNow()
		close(done)
	}()
	require.Eventually(t, func() bool {
		poster.mu.Lock()
		defer poster.mu.Unlock()
		return poster.calls == 1
	}, time.Second, 5*time.Millisecond)

	s.RunNow()
	close(poster.block)
	<-done

	poster.mu.Lock()
	defer poster.mu.Unlock()
	assert.Equal(t, 1, poster.calls)
}

func TestScheduler_StartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(&stubPoster{}, AutoPostConfig{Schedule: "not a schedule"}, quietLogger())
	assert.Error(t, s.Start())

	ok := NewScheduler(&stubPoster{}, AutoPostConfig{Schedule: "*/15 * * * *"}, quietLogger())
	require.NoError(t, ok.Start())
	<-ok.Stop().Done()
}
