package replay_test

import (
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"

	"github.com/aeikum/fossilize/replay"
	"github.com/aeikum/fossilize/replay/mocks"
	"github.com/aeikum/fossilize/shmem"
	"github.com/aeikum/fossilize/state"
)

type fakeProcess struct {
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	exit    chan int

	mu     sync.Mutex
	banned []state.Hash
	killed bool
}

func newFakeProcess() *fakeProcess {
	r, w := io.Pipe()
	return &fakeProcess{stdoutR: r, stdoutW: w, exit: make(chan int, 1)}
}

func (p *fakeProcess) say(lines ...string) {
	for _, line := range lines {
		_, _ = io.WriteString(p.stdoutW, line)
	}
}

func (p *fakeProcess) finish(code int) {
	_ = p.stdoutW.Close()
	p.exit <- code
}

func (p *fakeProcess) Stdout() io.Reader { return p.stdoutR }

func (p *fakeProcess) SendBannedModules(modules []state.Hash) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.banned = append([]state.Hash(nil), modules...)
	return nil
}

func (p *fakeProcess) bannedModules() []state.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.banned
}

func (p *fakeProcess) Wait() int { return <-p.exit }

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.finish(3)
	return nil
}

func (p *fakeProcess) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// fakeLauncher hands out scripted fake processes and records every launch.
type fakeLauncher struct {
	mu     sync.Mutex
	specs  []replay.LaunchSpec
	procs  []*fakeProcess
	script func(spawn int, proc *fakeProcess)
}

func (l *fakeLauncher) Launch(spec replay.LaunchSpec) (replay.WorkerProcess, error) {
	l.mu.Lock()
	spawn := len(l.specs)
	l.specs = append(l.specs, spec)
	proc := newFakeProcess()
	l.procs = append(l.procs, proc)
	l.mu.Unlock()

	go l.script(spawn, proc)
	return proc, nil
}

func (l *fakeLauncher) launches() []replay.LaunchSpec {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]replay.LaunchSpec(nil), l.specs...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func mockDatabase(t *testing.T, graphics, compute int) *mocks.MockDatabase {
	t.Helper()
	ctrl := gomock.NewController(t)
	db := mocks.NewMockDatabase(ctrl)
	db.EXPECT().Prepare().Return(nil)
	db.EXPECT().HashListForResourceTag(replay.ResourceGraphicsPipeline).Return(make([]state.Hash, graphics), nil)
	db.EXPECT().HashListForResourceTag(replay.ResourceComputePipeline).Return(make([]state.Hash, compute), nil)
	return db
}

func TestSupervisorRestartAfterCrash(t *testing.T) {
	launcher := &fakeLauncher{}
	launcher.script = func(spawn int, proc *fakeProcess) {
		switch spawn {
		case 0:
			proc.say("GRAPHICS 42\n", "CRASH\n")
			proc.finish(2)
		default:
			proc.finish(0)
		}
	}

	s := replay.NewSupervisor(mockDatabase(t, 100, 0), launcher, replay.Options{
		WorkerCount: 1,
		Logger:      quietLogger(),
	})
	require.NoError(t, s.Run())

	specs := launcher.launches()
	require.Len(t, specs, 2, "exactly one replacement worker must be spawned")
	require.Equal(t, 42, specs[1].GraphicsStart)
	require.Equal(t, 100, specs[1].GraphicsEnd)
	require.Equal(t, 1, s.CleanDeaths())
	require.Zero(t, s.DirtyDeaths())
}

func TestSupervisorDirtyDeathIsFinal(t *testing.T) {
	launcher := &fakeLauncher{}
	launcher.script = func(spawn int, proc *fakeProcess) {
		proc.finish(5)
	}

	s := replay.NewSupervisor(mockDatabase(t, 10, 0), launcher, replay.Options{
		WorkerCount: 1,
		Logger:      quietLogger(),
	})
	require.NoError(t, s.Run())

	require.Len(t, launcher.launches(), 1)
	require.Equal(t, 1, s.DirtyDeaths())
	require.Zero(t, s.CleanDeaths())
}

func TestSupervisorFaultyModulePropagation(t *testing.T) {
	shmName := fmt.Sprintf("fossilize-test-%d", os.Getpid())
	mutexName := shmName + "-mutex"
	shmem.Unlink(shmName, mutexName)
	control, err := shmem.Create(shmName, mutexName, 1024)
	if err != nil {
		t.Skipf("cannot create shared memory block: %v", err)
	}
	defer control.Close()
	defer shmem.Unlink(shmName, mutexName)

	launcher := &fakeLauncher{}
	launcher.script = func(spawn int, proc *fakeProcess) {
		switch spawn {
		case 0:
			proc.say("MODULE deadbeefcafe\n", "GRAPHICS 10\n", "CRASH\n")
			proc.finish(2)
		default:
			proc.finish(0)
		}
	}

	s := replay.NewSupervisor(mockDatabase(t, 20, 0), launcher, replay.Options{
		WorkerCount:  1,
		ControlBlock: control,
		Logger:       quietLogger(),
	})
	require.NoError(t, s.Run())

	require.Equal(t, uint32(1), control.BannedModules())
	require.True(t, control.ProgressStarted())
	require.True(t, control.ProgressComplete())
	require.Equal(t, []string{"MODULE deadbeefcafe"}, control.Records())

	specs := launcher.launches()
	require.Len(t, specs, 2)
	require.Equal(t, []state.Hash{0xdeadbeefcafe}, specs[1].BannedModules)
	require.Equal(t, []state.Hash{0xdeadbeefcafe}, launcher.procs[1].bannedModules())
}

func TestSupervisorKillsWorkerStuckAfterCrash(t *testing.T) {
	launcher := &fakeLauncher{}
	launcher.script = func(spawn int, proc *fakeProcess) {
		// Announce the crash and then hang without exiting.
		proc.say("CRASH\n")
	}

	s := replay.NewSupervisor(mockDatabase(t, 10, 0), launcher, replay.Options{
		WorkerCount: 1,
		CrashGrace:  20 * time.Millisecond,
		Logger:      quietLogger(),
	})
	require.NoError(t, s.Run())

	require.True(t, launcher.procs[0].wasKilled())
	require.Equal(t, 1, s.DirtyDeaths())
}

func TestSupervisorPartition(t *testing.T) {
	launcher := &fakeLauncher{}
	launcher.script = func(spawn int, proc *fakeProcess) {
		proc.finish(0)
	}

	s := replay.NewSupervisor(mockDatabase(t, 10, 7), launcher, replay.Options{
		WorkerCount: 3,
		Logger:      quietLogger(),
	})
	require.NoError(t, s.Run())

	specs := launcher.launches()
	require.Len(t, specs, 3)

	require.Equal(t, 0, specs[0].GraphicsStart)
	require.Equal(t, 3, specs[0].GraphicsEnd)
	require.Equal(t, 3, specs[1].GraphicsStart)
	require.Equal(t, 6, specs[1].GraphicsEnd)
	require.Equal(t, 6, specs[2].GraphicsStart)
	require.Equal(t, 10, specs[2].GraphicsEnd)

	require.Equal(t, 0, specs[0].ComputeStart)
	require.Equal(t, 2, specs[0].ComputeEnd)
	require.Equal(t, 2, specs[1].ComputeStart)
	require.Equal(t, 4, specs[1].ComputeEnd)
	require.Equal(t, 4, specs[2].ComputeStart)
	require.Equal(t, 7, specs[2].ComputeEnd)
}

func TestSupervisorSkipsEmptyRanges(t *testing.T) {
	launcher := &fakeLauncher{}
	launcher.script = func(spawn int, proc *fakeProcess) {
		proc.finish(0)
	}

	s := replay.NewSupervisor(mockDatabase(t, 0, 0), launcher, replay.Options{
		WorkerCount: 4,
		Logger:      quietLogger(),
	})
	require.NoError(t, s.Run())
	require.Empty(t, launcher.launches())
}
