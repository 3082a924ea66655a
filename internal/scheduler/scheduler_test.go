package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRunner struct {
	mu     sync.Mutex
	calls  []models.RunKind
	failOn models.RunKind
}

func (f *fakeRunner) RunProbeAll(_ context.Context, kind models.ProbeKind) (*models.AggregateReport, error) {
	f.mu.Lock()
	f.calls = append(f.calls, models.RunKind(kind))
	f.mu.Unlock()

	if f.failOn == models.RunKind(kind) {
		return nil, errors.New("store unavailable")
	}
	return &models.AggregateReport{RunID: "r-" + string(kind), Kind: models.RunKind(kind)}, nil
}

func (f *fakeRunner) RunHealthAll(context.Context) (*models.AggregateReport, error) {
	f.mu.Lock()
	f.calls = append(f.calls, models.RunHealth)
	f.mu.Unlock()
	return &models.AggregateReport{RunID: "r-health", Kind: models.RunHealth}, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type capturePublisher struct {
	runIDs []string
}

func (c *capturePublisher) PublishReport(report *models.AggregateReport) error {
	c.runIDs = append(c.runIDs, report.RunID)
	return nil
}

func TestParseKinds(t *testing.T) {
	kinds, err := ParseKinds([]string{"connectivity", "health", "load"})
	require.NoError(t, err)
	assert.Equal(t, []models.RunKind{"connectivity", models.RunHealth, "load"}, kinds)

	_, err = ParseKinds([]string{"ping"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRunOnce_RunsEveryKindAndPublishes(t *testing.T) {
	runner := &fakeRunner{}
	pub := &capturePublisher{}
	s := New(runner, pub, []models.RunKind{"connectivity", models.RunHealth}, time.Minute, zap.NewNop())

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, []models.RunKind{"connectivity", models.RunHealth}, runner.calls)
	assert.Equal(t, []string{"r-connectivity", "r-health"}, pub.runIDs)
}

func TestRunOnce_FailureDoesNotStopLaterKinds(t *testing.T) {
	runner := &fakeRunner{failOn: "latency"}
	pub := &capturePublisher{}
	s := New(runner, pub, []models.RunKind{"latency", models.RunHealth}, time.Minute, zap.NewNop())

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "latency run")
	assert.Equal(t, []string{"r-health"}, pub.runIDs)
}

func TestRunOnce_NilPublisher(t *testing.T) {
	s := New(&fakeRunner{}, nil, []models.RunKind{"connectivity"}, time.Minute, zap.NewNop())
	assert.NoError(t, s.RunOnce(context.Background()))
}

func TestRun_StopsOnCancel(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, nil, []models.RunKind{"connectivity"}, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return runner.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}

	stopped := runner.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, runner.count())
}

func TestRun_RejectsNonPositiveInterval(t *testing.T) {
	s := New(&fakeRunner{}, nil, nil, 0, zap.NewNop())
	assert.Error(t, s.Run(context.Background()))
}
