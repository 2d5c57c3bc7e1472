// fossilize-replay drives a captured pipeline database through the replay
// supervisor. In master mode it partitions the workload across crash-isolated
// worker processes; with --slave-process it becomes one of those workers.
//
// The driver-facing creator wired here is a stub that only materializes
// handles; hooking up a real Vulkan device is the embedding product's job.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"github.com/aeikum/fossilize/replay"
	"github.com/aeikum/fossilize/shmem"
	"github.com/aeikum/fossilize/state"
)

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--slave-process" {
			os.Exit(runSlave(os.Args[1:]))
		}
	}
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	NumThreads          int
	ShmName             string
	ShmMutexName        string
	PipelineCache       bool
	SpirvValidate       bool
	OnDiskPipelineCache string
	QuietSlave          bool
	WorkerBinary        string
	RingBufferSize      int
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "fossilize-replay <database> [database...]",
		Short: "Replay captured pipeline state to prepopulate driver caches",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runMaster(opts, args)
		},
	}

	cmd.Flags().IntVar(&opts.NumThreads, "num-threads", 1, "number of worker processes")
	cmd.Flags().StringVar(&opts.ShmName, "shm-name", "", "existing shared control block to attach")
	cmd.Flags().StringVar(&opts.ShmMutexName, "shm-mutex-name", "", "mutex guarding the control block ring buffer")
	cmd.Flags().BoolVar(&opts.PipelineCache, "pipeline-cache", false, "let workers use a VkPipelineCache")
	cmd.Flags().BoolVar(&opts.SpirvValidate, "spirv-val", false, "sanity-check SPIR-V modules before replay")
	cmd.Flags().StringVar(&opts.OnDiskPipelineCache, "on-disk-pipeline-cache", "", "per-worker pipeline cache path")
	cmd.Flags().BoolVar(&opts.QuietSlave, "quiet-slave", false, "discard worker stderr")
	cmd.Flags().StringVar(&opts.WorkerBinary, "worker-binary", "", "binary to exec for workers (defaults to self)")
	cmd.Flags().IntVar(&opts.RingBufferSize, "ring-buffer-size", 4096, "ring buffer size for a freshly created control block")

	return cmd
}

func runMaster(opts *rootOptions, databases []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	binary := opts.WorkerBinary
	if binary == "" {
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("cannot locate own binary: %w", err)
		}
		binary = self
	}

	shmName := opts.ShmName
	shmMutexName := opts.ShmMutexName

	var control *shmem.ControlBlock
	var err error
	if shmName != "" && shmMutexName != "" {
		if control, err = shmem.Open(shmName, shmMutexName); err != nil {
			return fmt.Errorf("attaching control block: %w", err)
		}
	} else {
		id := uuid.NewString()
		shmName = "fossilize-replay-" + id
		shmMutexName = shmName + "-mutex"
		if control, err = shmem.Create(shmName, shmMutexName, opts.RingBufferSize); err != nil {
			return fmt.Errorf("creating control block: %w", err)
		}
		defer shmem.Unlink(shmName, shmMutexName)
	}
	defer control.Close()

	supervisorOpts := replay.Options{
		WorkerCount:         opts.NumThreads,
		ShmName:             shmName,
		ShmMutexName:        shmMutexName,
		ControlBlock:        control,
		PipelineCache:       opts.PipelineCache,
		SpirvValidate:       opts.SpirvValidate,
		OnDiskPipelineCache: opts.OnDiskPipelineCache,
		Logger:              logger,
	}

	db := replay.OpenSQLiteDatabase(databases[0])
	defer db.Close()

	launcher := &replay.ExecLauncher{
		Binary:     binary,
		Databases:  databases,
		Opts:       supervisorOpts,
		QuietSlave: opts.QuietSlave,
	}

	supervisor := replay.NewSupervisor(db, launcher, supervisorOpts)
	if err := supervisor.Run(); err != nil {
		return err
	}

	logger.Info("replay complete",
		slog.Int("cleanDeaths", supervisor.CleanDeaths()),
		slog.Int("dirtyDeaths", supervisor.DirtyDeaths()),
		slog.Int("bannedModules", len(supervisor.FaultyModules())))
	return nil
}

func runSlave(args []string) int {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	parsed, err := replay.ParseWorkerArgs(args)
	if err != nil {
		logger.Error("bad worker command line", slog.Any("error", err))
		return replay.WorkerExitFailure
	}
	if len(parsed.Databases) == 0 {
		logger.Error("worker needs a database")
		return replay.WorkerExitFailure
	}

	db := replay.OpenSQLiteDatabase(parsed.Databases[0])
	defer db.Close()

	opts := replay.WorkerOptions{
		GraphicsStart: parsed.GraphicsStart,
		GraphicsEnd:   parsed.GraphicsEnd,
		ComputeStart:  parsed.ComputeStart,
		ComputeEnd:    parsed.ComputeEnd,
		ShmName:       parsed.ShmName,
		ShmMutexName:  parsed.ShmMutexName,
		SpirvValidate: parsed.SpirvValidate,
		Logger:        logger,
	}

	return replay.RunWorker(db, &stubCreator{}, opts, os.Stdin, os.Stdout)
}

// stubCreator materializes handles without touching a driver. It keeps the
// replay machinery exercisable on machines with no GPU.
type stubCreator struct {
	next state.Handle
}

func (c *stubCreator) handleOut(out *state.Handle) {
	c.next++
	*out = c.next
}

func (c *stubCreator) SetNumShaderModules(int) {}
func (c *stubCreator) EnqueueCreateShaderModule(_ state.Hash, _ int, _ *state.ShaderModuleCreateInfo, out *state.Handle) error {
	c.handleOut(out)
	return nil
}

func (c *stubCreator) SetNumSamplers(int) {}
func (c *stubCreator) EnqueueCreateSampler(_ state.Hash, _ int, _ *state.SamplerCreateInfo, out *state.Handle) error {
	c.handleOut(out)
	return nil
}

func (c *stubCreator) SetNumDescriptorSetLayouts(int) {}
func (c *stubCreator) EnqueueCreateDescriptorSetLayout(_ state.Hash, _ int, _ *state.DescriptorSetLayoutCreateInfo, out *state.Handle) error {
	c.handleOut(out)
	return nil
}

func (c *stubCreator) SetNumPipelineLayouts(int) {}
func (c *stubCreator) EnqueueCreatePipelineLayout(_ state.Hash, _ int, _ *state.PipelineLayoutCreateInfo, out *state.Handle) error {
	c.handleOut(out)
	return nil
}

func (c *stubCreator) SetNumRenderPasses(int) {}
func (c *stubCreator) EnqueueCreateRenderPass(_ state.Hash, _ int, _ *state.RenderPassCreateInfo, out *state.Handle) error {
	c.handleOut(out)
	return nil
}

func (c *stubCreator) SetNumComputePipelines(int) {}
func (c *stubCreator) EnqueueCreateComputePipeline(_ state.Hash, _ int, _ *state.ComputePipelineCreateInfo, out *state.Handle) error {
	c.handleOut(out)
	return nil
}

func (c *stubCreator) SetNumGraphicsPipelines(int) {}
func (c *stubCreator) EnqueueCreateGraphicsPipeline(_ state.Hash, _ int, _ *state.GraphicsPipelineCreateInfo, out *state.Handle) error {
	c.handleOut(out)
	return nil
}

func (c *stubCreator) WaitEnqueue() {}
