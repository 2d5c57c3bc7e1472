// Package replay drives crash-isolated parallel replay: a supervisor
// partitions the pipeline workload across worker child processes, exchanges
// line-oriented progress and faulty-module messages over their stdout pipes,
// times out workers stuck after a crash, and restarts them past the last
// known-good index.
package replay

import (
	"fmt"
	"strconv"
	"strings"

	errgo "gopkg.in/errgo.v2/fmt/errors"

	"github.com/aeikum/fossilize/state"
)

// MessageKind enumerates the worker-to-supervisor pipe messages.
type MessageKind int

const (
	// MessageGraphics reports the next graphics pipeline index to attempt.
	MessageGraphics MessageKind = iota
	// MessageCompute reports the next compute pipeline index to attempt.
	MessageCompute
	// MessageModule reports a shader module hash to blacklist.
	MessageModule
	// MessageCrash announces that the worker's crash handler fired.
	MessageCrash
)

// Message is one newline-terminated pipe message from a worker.
type Message struct {
	Kind     MessageKind
	Progress int
	Module   state.Hash
}

// ParseMessage parses one line of the worker protocol.
func ParseMessage(line string) (Message, error) {
	line = strings.TrimRight(line, "\r\n")
	switch {
	case line == "CRASH":
		return Message{Kind: MessageCrash}, nil
	case strings.HasPrefix(line, "GRAPHICS "):
		n, err := strconv.Atoi(strings.TrimSpace(line[len("GRAPHICS "):]))
		if err != nil {
			return Message{}, errgo.Newf("bad graphics progress in %q", line)
		}
		return Message{Kind: MessageGraphics, Progress: n}, nil
	case strings.HasPrefix(line, "COMPUTE "):
		n, err := strconv.Atoi(strings.TrimSpace(line[len("COMPUTE "):]))
		if err != nil {
			return Message{}, errgo.Newf("bad compute progress in %q", line)
		}
		return Message{Kind: MessageCompute, Progress: n}, nil
	case strings.HasPrefix(line, "MODULE "):
		hash, err := strconv.ParseUint(strings.TrimSpace(line[len("MODULE "):]), 16, 64)
		if err != nil {
			return Message{}, errgo.Newf("bad module hash in %q", line)
		}
		return Message{Kind: MessageModule, Module: state.Hash(hash)}, nil
	}
	return Message{}, errgo.Newf("unexpected message %q", line)
}

func formatGraphics(index int) string {
	return fmt.Sprintf("GRAPHICS %d\n", index)
}

func formatCompute(index int) string {
	return fmt.Sprintf("COMPUTE %d\n", index)
}

func formatModule(hash state.Hash) string {
	return fmt.Sprintf("MODULE %x\n", uint64(hash))
}

const crashMessage = "CRASH\n"
