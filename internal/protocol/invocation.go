package protocol

import (
	"context"
	"fmt"

	"sfxforwarder/internal/command"
)

// Invocation describes how the host started the command.
type Invocation struct {
	Command    string
	Args       []string
	SessionKey string
	SplunkdURI string
	App        string
	Owner      string
}

// Factory builds the transformer for one invocation.
// Params: ctx invocation lifecycle; inv host-provided context.
// Returns: transformer or an option/setup error reported to the host.
type Factory func(ctx context.Context, inv Invocation) (command.Transformer, error)

// TopLevelMessage formats a batch abort for the host's error channel.
// Params: err abort cause.
// Returns: message pointing at the log file.
func TopLevelMessage(err error) string {
	return fmt.Sprintf("Unhandled top-level exception: %v (see sfxforwarder.log)", err)
}
