package replay

import (
	"bufio"
	"encoding/binary"
	"io"
	"strconv"
	"strings"

	"github.com/gogpu/naga/spirv"
	"golang.org/x/exp/slog"

	"github.com/aeikum/fossilize/shmem"
	"github.com/aeikum/fossilize/state"
)

// Worker exit codes. The supervisor does not tell nonzero codes apart: a
// worker that exits nonzero after reporting progress is a clean death and is
// restarted, one that exits without any progress is a dirty death.
const (
	WorkerExitSuccess = 0
	WorkerExitFailure = 1
	WorkerExitCrash   = 2
)

// WorkerOptions configures one slave replay over contiguous pipeline
// ranges.
type WorkerOptions struct {
	GraphicsStart int
	GraphicsEnd   int
	ComputeStart  int
	ComputeEnd    int

	ShmName      string
	ShmMutexName string

	SpirvValidate bool

	Logger *slog.Logger
}

// readBannedModules consumes hex hash lines from the supervisor until EOF or
// a zero hash.
func readBannedModules(in io.Reader) map[state.Hash]struct{} {
	banned := make(map[state.Hash]struct{})
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		hash, err := strconv.ParseUint(line, 16, 64)
		if err != nil || hash == 0 {
			break
		}
		banned[state.Hash(hash)] = struct{}{}
	}
	return banned
}

// validSPIRVModule checks the SPIR-V container shape: word-aligned, at least
// a full header, correct magic.
func validSPIRVModule(code []byte) bool {
	if len(code) < 20 || len(code)%4 != 0 {
		return false
	}
	return binary.LittleEndian.Uint32(code) == spirv.MagicNumber
}

type pendingModule struct {
	hash state.Hash
	out  *state.Handle
}

// rangeCreator filters a replay through the worker's pipeline ranges and the
// banned-module set, and reports progress to the supervisor after every
// pipeline it finishes.
type rangeCreator struct {
	inner  state.Creator
	opts   *WorkerOptions
	banned map[state.Hash]struct{}
	out    io.Writer
	logger *slog.Logger

	pendingModules []pendingModule
	hashForModule  map[state.Handle]state.Hash

	currentGraphics int
	currentCompute  int
	inFlightModules []state.Hash
}

func newRangeCreator(inner state.Creator, opts *WorkerOptions, banned map[state.Hash]struct{}, out io.Writer, logger *slog.Logger) *rangeCreator {
	return &rangeCreator{
		inner:           inner,
		opts:            opts,
		banned:          banned,
		out:             out,
		logger:          logger,
		hashForModule:   make(map[state.Handle]state.Hash),
		currentGraphics: opts.GraphicsStart,
		currentCompute:  opts.ComputeStart,
	}
}

func (c *rangeCreator) send(msg string) {
	_, _ = io.WriteString(c.out, msg)
}

func (c *rangeCreator) SetNumShaderModules(count int) { c.inner.SetNumShaderModules(count) }

func (c *rangeCreator) EnqueueCreateShaderModule(hash state.Hash, index int, info *state.ShaderModuleCreateInfo, out *state.Handle) error {
	if _, bad := c.banned[hash]; bad {
		c.logger.Info("skipping banned shader module", slog.Int("index", index))
		return nil
	}
	if c.opts.SpirvValidate && !validSPIRVModule(info.Code) {
		c.logger.Error("shader module failed SPIR-V validation", slog.Int("index", index))
		c.banned[hash] = struct{}{}
		return nil
	}
	c.pendingModules = append(c.pendingModules, pendingModule{hash: hash, out: out})
	return c.inner.EnqueueCreateShaderModule(hash, index, info, out)
}

func (c *rangeCreator) SetNumSamplers(count int) { c.inner.SetNumSamplers(count) }
func (c *rangeCreator) EnqueueCreateSampler(hash state.Hash, index int, info *state.SamplerCreateInfo, out *state.Handle) error {
	return c.inner.EnqueueCreateSampler(hash, index, info, out)
}

func (c *rangeCreator) SetNumDescriptorSetLayouts(count int) { c.inner.SetNumDescriptorSetLayouts(count) }
func (c *rangeCreator) EnqueueCreateDescriptorSetLayout(hash state.Hash, index int, info *state.DescriptorSetLayoutCreateInfo, out *state.Handle) error {
	return c.inner.EnqueueCreateDescriptorSetLayout(hash, index, info, out)
}

func (c *rangeCreator) SetNumPipelineLayouts(count int) { c.inner.SetNumPipelineLayouts(count) }
func (c *rangeCreator) EnqueueCreatePipelineLayout(hash state.Hash, index int, info *state.PipelineLayoutCreateInfo, out *state.Handle) error {
	return c.inner.EnqueueCreatePipelineLayout(hash, index, info, out)
}

func (c *rangeCreator) SetNumRenderPasses(count int) { c.inner.SetNumRenderPasses(count) }
func (c *rangeCreator) EnqueueCreateRenderPass(hash state.Hash, index int, info *state.RenderPassCreateInfo, out *state.Handle) error {
	return c.inner.EnqueueCreateRenderPass(hash, index, info, out)
}

// moduleHashes maps the stage module handles of a pipeline back to their
// recorded hashes.
func (c *rangeCreator) moduleHashes(handles ...state.Handle) ([]state.Hash, bool) {
	hashes := make([]state.Hash, 0, len(handles))
	usable := true
	for _, handle := range handles {
		if handle == state.NullHandle {
			usable = false
			continue
		}
		hash, ok := c.hashForModule[handle]
		if !ok {
			continue
		}
		hashes = append(hashes, hash)
		if _, bad := c.banned[hash]; bad {
			usable = false
		}
	}
	return hashes, usable
}

func (c *rangeCreator) SetNumComputePipelines(count int) { c.inner.SetNumComputePipelines(count) }

func (c *rangeCreator) EnqueueCreateComputePipeline(hash state.Hash, index int, info *state.ComputePipelineCreateInfo, out *state.Handle) error {
	if index < c.opts.ComputeStart || index >= c.opts.ComputeEnd {
		return nil
	}
	c.currentCompute = index
	modules, usable := c.moduleHashes(info.Stage.Module)
	c.inFlightModules = modules
	if usable {
		if err := c.inner.EnqueueCreateComputePipeline(hash, index, info, out); err != nil {
			return err
		}
	} else {
		c.logger.Info("skipping compute pipeline with banned module", slog.Int("index", index))
	}
	c.currentCompute = index + 1
	c.inFlightModules = nil
	c.send(formatCompute(c.currentCompute))
	return nil
}

func (c *rangeCreator) SetNumGraphicsPipelines(count int) { c.inner.SetNumGraphicsPipelines(count) }

func (c *rangeCreator) EnqueueCreateGraphicsPipeline(hash state.Hash, index int, info *state.GraphicsPipelineCreateInfo, out *state.Handle) error {
	if index < c.opts.GraphicsStart || index >= c.opts.GraphicsEnd {
		return nil
	}
	c.currentGraphics = index
	handles := make([]state.Handle, 0, len(info.Stages))
	for i := range info.Stages {
		handles = append(handles, info.Stages[i].Module)
	}
	modules, usable := c.moduleHashes(handles...)
	c.inFlightModules = modules
	if usable {
		if err := c.inner.EnqueueCreateGraphicsPipeline(hash, index, info, out); err != nil {
			return err
		}
	} else {
		c.logger.Info("skipping graphics pipeline with banned module", slog.Int("index", index))
	}
	c.currentGraphics = index + 1
	c.inFlightModules = nil
	c.send(formatGraphics(c.currentGraphics))
	return nil
}

func (c *rangeCreator) WaitEnqueue() {
	c.inner.WaitEnqueue()
	for _, pending := range c.pendingModules {
		if *pending.out != state.NullHandle {
			c.hashForModule[*pending.out] = pending.hash
		}
	}
	c.pendingModules = nil
}

// reportCrash writes the crash-handler message sequence: CRASH, the
// implicated module hashes, and where each stream stopped so a replacement
// worker can continue.
func (c *rangeCreator) reportCrash() {
	c.send(crashMessage)
	for _, module := range c.inFlightModules {
		c.send(formatModule(module))
	}
	c.send(formatGraphics(c.currentGraphics))
	c.send(formatCompute(c.currentCompute))
}

// RunWorker replays the database's state document over the configured
// pipeline ranges, reporting progress on out and reading the banned-module
// list from in. A panic out of the creator is treated as a driver crash: the
// crash report is flushed and the worker exit code is WorkerExitCrash.
func RunWorker(db Database, creator state.Creator, opts WorkerOptions, in io.Reader, out io.Writer) (code int) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if opts.ShmName != "" && opts.ShmMutexName != "" {
		control, err := shmem.Open(opts.ShmName, opts.ShmMutexName)
		if err != nil {
			logger.Error("failed to map control block", slog.Any("error", err))
			return WorkerExitFailure
		}
		defer control.Close()
	}

	banned := readBannedModules(in)

	if err := db.Prepare(); err != nil {
		logger.Error("failed to prepare database", slog.Any("error", err))
		return WorkerExitFailure
	}
	doc, err := db.StateDocument()
	if err != nil {
		logger.Error("failed to load state document", slog.Any("error", err))
		return WorkerExitFailure
	}

	rc := newRangeCreator(creator, &opts, banned, out, logger)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker crashed during replay", slog.Any("panic", r))
			rc.reportCrash()
			code = WorkerExitCrash
		}
	}()

	if err := state.NewReplayer().Parse(rc, doc); err != nil {
		logger.Error("replay failed", slog.Any("error", err))
		return WorkerExitFailure
	}
	return WorkerExitSuccess
}
