package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lead_engine/models"
)

type stubVerifier struct {
	mu        sync.Mutex
	endpoints []string
	err       error
	calls     int
}

func (v *stubVerifier) Verify(context.Context) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	return v.endpoints, v.err
}

func (v *stubVerifier) set(endpoints []string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.endpoints, v.err = endpoints, err
}

func (v *stubVerifier) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type eventRecord struct {
	level   models.LogLevel
	message string
}

type stubEvents struct {
	mu     sync.Mutex
	events []eventRecord
}

func (e *stubEvents) Log(_ context.Context, level models.LogLevel, _ string, message string, _ map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, eventRecord{level, message})
}

func TestCheckReportsEndpointsAndDependencies(t *testing.T) {
	v := &stubVerifier{endpoints: []string{"http://w1:11434"}}
	events := &stubEvents{}
	w := NewHealthcheckWorker(v, events)
	w.AddDependency("postgres", pingFunc(func(context.Context) error { return nil }))
	w.AddDependency("redis", pingFunc(func(context.Context) error { return errors.New("connection refused") }))

	var lines []string
	w.SetLogger(func(level models.LogLevel, scope, message string) {
		lines = append(lines, scope+": "+message)
	})

	report := w.Check(context.Background())
	assert.Equal(t, []string{"http://w1:11434"}, report.HealthyEndpoints)
	assert.Equal(t, "ok", report.Dependencies["postgres"])
	assert.Equal(t, "connection refused", report.Dependencies["redis"])
	assert.False(t, report.Healthy())
	assert.Equal(t, report.CheckedAt, w.Last().CheckedAt)

	require.Len(t, events.events, 1)
	assert.Equal(t, models.LogLevelWarn, events.events[0].level)
	assert.Equal(t, []string{"health: Health check failed"}, lines)
}

func TestCheckLogsTransitionsOnly(t *testing.T) {
	v := &stubVerifier{endpoints: []string{"http://w1:11434"}}
	events := &stubEvents{}
	w := NewHealthcheckWorker(v, events)

	w.Check(context.Background())
	assert.Empty(t, events.events)

	v.set(nil, errors.New("no healthy endpoints"))
	w.Check(context.Background())
	w.Check(context.Background())
	require.Len(t, events.events, 1)
	assert.Equal(t, "Health check failed: no healthy endpoints", events.events[0].message)

	v.set([]string{"http://w2:11434"}, nil)
	w.Check(context.Background())
	require.Len(t, events.events, 2)
	assert.Equal(t, models.LogLevelInfo, events.events[1].level)
	assert.Equal(t, "Health restored: 1 inference endpoints up", events.events[1].message)
}

func TestRunHonoursTrigger(t *testing.T) {
	v := &stubVerifier{endpoints: []string{"http://w1:11434"}}
	w := NewHealthcheckWorker(v, &stubEvents{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, time.Hour)
		close(done)
	}()

	w.Trigger()
	require.Eventually(t, func() bool { return v.callCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
