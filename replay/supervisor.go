package replay

import (
	"bufio"
	"fmt"
	"time"

	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/aeikum/fossilize/shmem"
	"github.com/aeikum/fossilize/state"
)

// Options configures a replay supervisor.
type Options struct {
	// WorkerCount is the number of child processes to partition the
	// pipeline workload across.
	WorkerCount int
	// CrashGrace is how long a worker may linger after sending CRASH
	// before it is forcibly terminated. Defaults to one second.
	CrashGrace time.Duration
	// ShmName and ShmMutexName are forwarded to workers so they can map
	// the shared control block.
	ShmName      string
	ShmMutexName string
	// ControlBlock, when set, receives banned-module records and the
	// clean/dirty death counters.
	ControlBlock *shmem.ControlBlock

	PipelineCache       bool
	SpirvValidate       bool
	OnDiskPipelineCache string

	Logger *slog.Logger
}

type eventKind int

const (
	eventMessage eventKind = iota
	eventExit
	eventTimeout
)

type workerEvent struct {
	worker int
	kind   eventKind
	line   string
	code   int
}

type workerState struct {
	index int

	startGraphics int
	endGraphics   int
	startCompute  int
	endCompute    int

	graphicsProgress int
	computeProgress  int

	proc       WorkerProcess
	crashTimer *time.Timer
	running    bool
}

func (w *workerState) done() bool {
	return w.startGraphics >= w.endGraphics && w.startCompute >= w.endCompute
}

// Supervisor partitions the pipeline workload across worker processes,
// multiplexes their pipe messages, process exits and crash timeouts on a
// single event loop, and restarts crashed workers past their last reported
// index so one driver crash does not lose the whole run.
type Supervisor struct {
	db       Database
	launcher Launcher
	opts     Options
	logger   *slog.Logger

	faultyModules map[state.Hash]struct{}
	workers       []*workerState
	events        chan workerEvent
	active        int

	cleanDeaths int
	dirtyDeaths int
}

func NewSupervisor(db Database, launcher Launcher, opts Options) *Supervisor {
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = 1
	}
	if opts.CrashGrace <= 0 {
		opts.CrashGrace = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		db:            db,
		launcher:      launcher,
		opts:          opts,
		logger:        logger,
		faultyModules: make(map[state.Hash]struct{}),
		events:        make(chan workerEvent, 64),
	}
}

// CleanDeaths reports how many workers crashed after making progress.
func (s *Supervisor) CleanDeaths() int { return s.cleanDeaths }

// DirtyDeaths reports how many workers died without reporting progress.
func (s *Supervisor) DirtyDeaths() int { return s.dirtyDeaths }

// FaultyModules returns the blacklisted shader module hashes collected so
// far.
func (s *Supervisor) FaultyModules() []state.Hash {
	out := make([]state.Hash, 0, len(s.faultyModules))
	for m := range s.faultyModules {
		out = append(out, m)
	}
	return out
}

// Run partitions the workload, spawns the workers and supervises them until
// every range is exhausted or dead. A spawn failure aborts the run; worker
// crashes are expected and handled by restarting.
func (s *Supervisor) Run() error {
	if err := s.db.Prepare(); err != nil {
		return cerrors.Wrap(err, "preparing database")
	}

	graphics, err := s.db.HashListForResourceTag(ResourceGraphicsPipeline)
	if err != nil {
		return cerrors.Wrap(err, "counting graphics pipelines")
	}
	compute, err := s.db.HashListForResourceTag(ResourceComputePipeline)
	if err != nil {
		return cerrors.Wrap(err, "counting compute pipelines")
	}
	numGraphics := len(graphics)
	numCompute := len(compute)

	if s.opts.ControlBlock != nil {
		s.opts.ControlBlock.SetProgressStarted()
	}

	processes := s.opts.WorkerCount
	s.workers = make([]*workerState, processes)
	for i := 0; i < processes; i++ {
		w := &workerState{
			index:         i,
			startGraphics: i * numGraphics / processes,
			endGraphics:   (i + 1) * numGraphics / processes,
			startCompute:  i * numCompute / processes,
			endCompute:    (i + 1) * numCompute / processes,
		}
		s.workers[i] = w
		if err := s.startWorker(w); err != nil {
			return err
		}
	}

	for s.active > 0 {
		e := <-s.events
		w := s.workers[e.worker]
		switch e.kind {
		case eventMessage:
			s.handleMessage(w, e.line)
		case eventExit:
			if err := s.handleExit(w, e.code); err != nil {
				return err
			}
		case eventTimeout:
			if w.running {
				s.logger.Error("terminating worker after crash timeout",
					slog.Int("worker", w.index))
				if err := w.proc.Kill(); err != nil {
					s.logger.Error("failed to terminate worker",
						slog.Int("worker", w.index), slog.Any("error", err))
				}
			}
		}
	}

	if s.opts.ControlBlock != nil {
		s.opts.ControlBlock.SetProgressComplete()
	}
	return nil
}

// startWorker spawns a process for the worker's current range. A worker
// whose range is already exhausted is left idle.
func (s *Supervisor) startWorker(w *workerState) error {
	w.graphicsProgress = -1
	w.computeProgress = -1

	if w.done() {
		return nil
	}

	proc, err := s.launcher.Launch(LaunchSpec{
		Index:         w.index,
		GraphicsStart: w.startGraphics,
		GraphicsEnd:   w.endGraphics,
		ComputeStart:  w.startCompute,
		ComputeEnd:    w.endCompute,
		BannedModules: s.FaultyModules(),
	})
	if err != nil {
		return cerrors.Wrapf(ErrWorkerSpawnFailed, "worker %d: %v", w.index, err)
	}

	if err := proc.SendBannedModules(s.FaultyModules()); err != nil {
		s.logger.Error("failed to send banned modules",
			slog.Int("worker", w.index), slog.Any("error", err))
	}

	w.proc = proc
	w.running = true
	s.active++

	// One reader per worker: all of a worker's messages are delivered
	// before its exit event, which is exactly the drain-then-reap order
	// the restart policy needs.
	index := w.index
	go func() {
		scanner := bufio.NewScanner(proc.Stdout())
		for scanner.Scan() {
			s.events <- workerEvent{worker: index, kind: eventMessage, line: scanner.Text()}
		}
		code := proc.Wait()
		s.events <- workerEvent{worker: index, kind: eventExit, code: code}
	}()
	return nil
}

func (s *Supervisor) handleMessage(w *workerState, line string) {
	msg, err := ParseMessage(line)
	if err != nil {
		s.logger.Error("unexpected message from worker",
			slog.Int("worker", w.index), slog.String("line", line))
		return
	}

	switch msg.Kind {
	case MessageGraphics:
		w.graphicsProgress = msg.Progress
	case MessageCompute:
		w.computeProgress = msg.Progress
	case MessageModule:
		s.addFaultyModule(msg.Module)
	case MessageCrash:
		// Give the worker a grace period to report its final state and
		// exit on its own before we terminate it.
		if w.crashTimer != nil {
			w.crashTimer.Stop()
		}
		index := w.index
		w.crashTimer = time.AfterFunc(s.opts.CrashGrace, func() {
			s.events <- workerEvent{worker: index, kind: eventTimeout}
		})
	}
}

func (s *Supervisor) addFaultyModule(module state.Hash) {
	if _, known := s.faultyModules[module]; known {
		return
	}
	s.faultyModules[module] = struct{}{}
	hex := fmt.Sprintf("%x", uint64(module))
	s.logger.Info("blacklisting shader module", slog.String("module", hex))

	if s.opts.ControlBlock != nil {
		s.opts.ControlBlock.AddBannedModule()
		if err := s.opts.ControlBlock.WriteRecord("MODULE " + hex); err != nil {
			s.logger.Error("failed to record banned module", slog.Any("error", err))
		}
	}
}

// handleExit applies the restart policy after a worker process has been
// reaped. Exit code 0 finishes the worker; a death with no progress at all
// is dirty and final; otherwise the range is advanced past the last report
// and a replacement is spawned.
func (s *Supervisor) handleExit(w *workerState, code int) error {
	if w.crashTimer != nil {
		w.crashTimer.Stop()
		w.crashTimer = nil
	}
	w.proc = nil
	w.running = false
	s.active--

	if code == 0 {
		return nil
	}

	if w.graphicsProgress < 0 && w.computeProgress < 0 {
		s.logger.Error("worker died before reporting progress, not restarting",
			slog.Int("worker", w.index), slog.Int("code", code))
		s.dirtyDeaths++
		if s.opts.ControlBlock != nil {
			s.opts.ControlBlock.AddDirtyDeath()
		}
		return nil
	}

	s.cleanDeaths++
	if s.opts.ControlBlock != nil {
		s.opts.ControlBlock.AddCleanDeath()
	}

	if w.graphicsProgress >= 0 {
		w.startGraphics = w.graphicsProgress
	}
	if w.computeProgress >= 0 {
		w.startCompute = w.computeProgress
	}
	if w.done() {
		s.logger.Info("worker crashed with nothing left to replay",
			slog.Int("worker", w.index))
		return nil
	}

	s.logger.Info("restarting crashed worker",
		slog.Int("worker", w.index),
		slog.Int("graphicsStart", w.startGraphics),
		slog.Int("graphicsEnd", w.endGraphics),
		slog.Int("computeStart", w.startCompute),
		slog.Int("computeEnd", w.endCompute))
	return s.startWorker(w)
}
