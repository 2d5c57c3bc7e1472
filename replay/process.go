package replay

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	cerrors "github.com/cockroachdb/errors"
	errgo "gopkg.in/errgo.v2/fmt/errors"

	"github.com/aeikum/fossilize/state"
)

// LaunchSpec describes one worker process to start.
type LaunchSpec struct {
	Index         int
	GraphicsStart int
	GraphicsEnd   int
	ComputeStart  int
	ComputeEnd    int
	BannedModules []state.Hash
}

// WorkerProcess is a started worker: a line-oriented stdout message pipe, a
// one-shot stdin channel for the banned-module list, and process lifetime
// control.
type WorkerProcess interface {
	// Stdout is the worker's message pipe. It yields newline-terminated
	// protocol messages until the worker exits.
	Stdout() io.Reader
	// SendBannedModules writes the hash list to the worker's stdin and
	// closes it.
	SendBannedModules(modules []state.Hash) error
	// Wait blocks until the process exits and returns its exit code.
	Wait() int
	// Kill forcibly terminates the process and its process group.
	Kill() error
}

// Launcher starts worker processes. The production implementation execs the
// replay binary in slave mode; tests substitute scripted workers.
type Launcher interface {
	Launch(spec LaunchSpec) (WorkerProcess, error)
}

// BuildWorkerArgs renders the worker command line for a launch spec.
func BuildWorkerArgs(spec LaunchSpec, opts Options, databases []string) []string {
	args := append([]string{}, databases...)
	args = append(args,
		"--slave-process",
		"--num-threads", "1",
		"--graphics-pipeline-range", strconv.Itoa(spec.GraphicsStart), strconv.Itoa(spec.GraphicsEnd),
		"--compute-pipeline-range", strconv.Itoa(spec.ComputeStart), strconv.Itoa(spec.ComputeEnd),
	)
	if opts.ShmName != "" {
		args = append(args, "--shm-name", opts.ShmName)
	}
	if opts.ShmMutexName != "" {
		args = append(args, "--shm-mutex-name", opts.ShmMutexName)
	}
	if opts.PipelineCache {
		args = append(args, "--pipeline-cache")
	}
	if opts.SpirvValidate {
		args = append(args, "--spirv-val")
	}
	if opts.OnDiskPipelineCache != "" {
		path := opts.OnDiskPipelineCache
		if spec.Index != 0 {
			path = fmt.Sprintf("%s.%d", path, spec.Index)
		}
		args = append(args, "--on-disk-pipeline-cache", path)
	}
	return args
}

// WorkerArgs is the parsed worker command line.
type WorkerArgs struct {
	Databases           []string
	NumThreads          int
	GraphicsStart       int
	GraphicsEnd         int
	ComputeStart        int
	ComputeEnd          int
	ShmName             string
	ShmMutexName        string
	PipelineCache       bool
	SpirvValidate       bool
	OnDiskPipelineCache string
}

// ParseWorkerArgs parses the slave-process command line contract. The
// --slave-process flag itself must already have been recognized by the
// caller.
func ParseWorkerArgs(args []string) (WorkerArgs, error) {
	parsed := WorkerArgs{NumThreads: 1}

	nextInt := func(i *int, flag string) (int, error) {
		*i++
		if *i >= len(args) {
			return 0, errgo.Newf("%s needs a value", flag)
		}
		v, err := strconv.Atoi(args[*i])
		if err != nil {
			return 0, errgo.Newf("%s needs an integer, got %q", flag, args[*i])
		}
		return v, nil
	}
	nextString := func(i *int, flag string) (string, error) {
		*i++
		if *i >= len(args) {
			return "", errgo.Newf("%s needs a value", flag)
		}
		return args[*i], nil
	}

	var err error
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--slave-process":
			// Mode marker, nothing to consume.
		case "--num-threads":
			if parsed.NumThreads, err = nextInt(&i, args[i]); err != nil {
				return parsed, err
			}
		case "--graphics-pipeline-range":
			if parsed.GraphicsStart, err = nextInt(&i, args[i]); err != nil {
				return parsed, err
			}
			if parsed.GraphicsEnd, err = nextInt(&i, "--graphics-pipeline-range"); err != nil {
				return parsed, err
			}
		case "--compute-pipeline-range":
			if parsed.ComputeStart, err = nextInt(&i, args[i]); err != nil {
				return parsed, err
			}
			if parsed.ComputeEnd, err = nextInt(&i, "--compute-pipeline-range"); err != nil {
				return parsed, err
			}
		case "--shm-name":
			if parsed.ShmName, err = nextString(&i, args[i]); err != nil {
				return parsed, err
			}
		case "--shm-mutex-name":
			if parsed.ShmMutexName, err = nextString(&i, args[i]); err != nil {
				return parsed, err
			}
		case "--pipeline-cache":
			parsed.PipelineCache = true
		case "--spirv-val":
			parsed.SpirvValidate = true
		case "--on-disk-pipeline-cache":
			if parsed.OnDiskPipelineCache, err = nextString(&i, args[i]); err != nil {
				return parsed, err
			}
		default:
			if len(args[i]) > 0 && args[i][0] == '-' {
				return parsed, errgo.Newf("unknown worker flag %q", args[i])
			}
			parsed.Databases = append(parsed.Databases, args[i])
		}
	}
	return parsed, nil
}

// ExecLauncher starts workers by re-executing the replay binary in slave
// mode. Children run in their own process group and are killed by the kernel
// if the supervisor dies.
type ExecLauncher struct {
	Binary    string
	Databases []string
	Opts      Options
	// QuietSlave discards worker stderr instead of inheriting it.
	QuietSlave bool
}

type execWorker struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stdin  io.WriteCloser
}

func (l *ExecLauncher) Launch(spec LaunchSpec) (WorkerProcess, error) {
	args := BuildWorkerArgs(spec, l.Opts, l.Databases)
	cmd := exec.Command(l.Binary, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	if l.QuietSlave {
		cmd.Stderr = nil
	} else {
		cmd.Stderr = os.Stderr
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, cerrors.Wrap(err, "creating worker stdout pipe")
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, cerrors.Wrap(err, "creating worker stdin pipe")
	}
	if err := cmd.Start(); err != nil {
		return nil, cerrors.Wrap(err, "starting worker process")
	}
	return &execWorker{cmd: cmd, stdout: stdout, stdin: stdin}, nil
}

func (w *execWorker) Stdout() io.Reader {
	return w.stdout
}

func (w *execWorker) SendBannedModules(modules []state.Hash) error {
	for _, m := range modules {
		if _, err := io.WriteString(w.stdin, fmt.Sprintf("%x\n", uint64(m))); err != nil {
			w.stdin.Close()
			return cerrors.Wrap(err, "sending banned modules")
		}
	}
	return w.stdin.Close()
}

func (w *execWorker) Wait() int {
	err := w.cmd.Wait()
	if err == nil {
		return 0
	}
	var exit *exec.ExitError
	if cerrors.As(err, &exit) {
		return exit.ExitCode()
	}
	return -1
}

func (w *execWorker) Kill() error {
	if w.cmd.Process == nil {
		return nil
	}
	// Kill the whole process group so driver helper threads die too.
	if err := syscall.Kill(-w.cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return w.cmd.Process.Kill()
	}
	return nil
}
