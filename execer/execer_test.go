package execer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/magdyamr542/livereload/runnable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunnable exits when exit is closed or when it is killed.
type fakeRunnable struct {
	startErr error
	exit     chan struct{}
	once     sync.Once
	kills    int
	mu       sync.Mutex
}

func newFake() *fakeRunnable {
	return &fakeRunnable{exit: make(chan struct{})}
}

func (f *fakeRunnable) Start() error { return f.startErr }
func (f *fakeRunnable) Wait() error  { <-f.exit; return nil }
func (f *fakeRunnable) Pid() int     { return 4242 }

func (f *fakeRunnable) Kill() error {
	f.mu.Lock()
	f.kills++
	f.mu.Unlock()
	f.finish()
	return nil
}

func (f *fakeRunnable) finish() {
	f.once.Do(func() { close(f.exit) })
}

func (f *fakeRunnable) killCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kills
}

func creatorFor(r runnable.Runnable) runnable.Creator {
	return func(command []string) runnable.Runnable {
		return r
	}
}

func TestExecRunsUntilExit(t *testing.T) {
	fake := newFake()
	e := New([]string{"app"}, hclog.NewNullLogger(), WithCreator(creatorFor(fake)))

	execution, err := e.Exec(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, execution.ID)
	assert.Equal(t, 4242, execution.Pid())
	assert.True(t, execution.Alive())
	assert.Equal(t, Running, execution.State())

	fake.finish()
	<-execution.Done()
	assert.False(t, execution.Alive())
	assert.Equal(t, ExitedOnItsOwn, execution.State())
	assert.NoError(t, execution.ExitErr())
}

func TestExecStartFailure(t *testing.T) {
	fake := newFake()
	fake.startErr = errors.New("executable file not found")
	e := New([]string{"app"}, hclog.NewNullLogger(), WithCreator(creatorFor(fake)))

	_, err := e.Exec(context.Background())
	assert.ErrorContains(t, err, "executable file not found")
}

func TestExecEmptyCommand(t *testing.T) {
	_, err := New(nil, hclog.NewNullLogger()).Exec(context.Background())
	assert.Error(t, err)
}

func TestKillRunning(t *testing.T) {
	fake := newFake()
	e := New([]string{"app"}, hclog.NewNullLogger(), WithCreator(creatorFor(fake)))
	execution, err := e.Exec(context.Background())
	require.NoError(t, err)

	require.NoError(t, execution.Kill())
	assert.False(t, execution.Alive())
	assert.Equal(t, Killed, execution.State())

	// Idempotent.
	require.NoError(t, execution.Kill())
	assert.Equal(t, Killed, execution.State())
	assert.Equal(t, 1, fake.killCount())
}

func TestKillAfterExitIsNoop(t *testing.T) {
	fake := newFake()
	e := New([]string{"app"}, hclog.NewNullLogger(), WithCreator(creatorFor(fake)))
	execution, err := e.Exec(context.Background())
	require.NoError(t, err)

	fake.finish()
	<-execution.Done()

	require.NoError(t, execution.Kill())
	assert.Equal(t, ExitedOnItsOwn, execution.State())
	assert.Zero(t, fake.killCount())
}

func TestRealProcessExit(t *testing.T) {
	e := New([]string{"sh", "-c", "exit 7"}, hclog.NewNullLogger())
	execution, err := e.Exec(context.Background())
	require.NoError(t, err)

	select {
	case <-execution.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("child didn't exit")
	}
	assert.Equal(t, ExitedOnItsOwn, execution.State())
	assert.Error(t, execution.ExitErr())
	assert.NoError(t, execution.Kill())
}

func TestRealProcessKill(t *testing.T) {
	e := New([]string{"sleep", "30"}, hclog.NewNullLogger())
	execution, err := e.Exec(context.Background())
	require.NoError(t, err)
	require.True(t, execution.Alive())

	start := time.Now()
	require.NoError(t, execution.Kill())
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, execution.Alive())
	assert.Equal(t, Killed, execution.State())
}

func TestRealProcessNotFound(t *testing.T) {
	e := New([]string{filepath.Join(t.TempDir(), "missing")}, hclog.NewNullLogger())
	_, err := e.Exec(context.Background())
	assert.Error(t, err)
}

func TestCancelDoesNotStopTheChild(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := New([]string{"sleep", "30"}, hclog.NewNullLogger())
	execution, err := e.Exec(ctx)
	require.NoError(t, err)

	cancel()
	time.Sleep(100 * time.Millisecond)
	assert.True(t, execution.Alive())
	assert.Equal(t, Running, execution.State())

	require.NoError(t, execution.Kill())
	assert.Equal(t, Killed, execution.State())
}

func TestExecWithCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := newFake()
	_, err := New([]string{"app"}, hclog.NewNullLogger(), WithCreator(creatorFor(fake))).Exec(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
