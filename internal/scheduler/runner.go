package scheduler

import (
	"context"

	"github.com/nextlevelbuilder/taskhive/internal/contextstore"
	"github.com/nextlevelbuilder/taskhive/internal/task"
)

// Bundle is the prompt package handed to the agent runtime for one run.
type Bundle struct {
	SystemPrompt  string
	Prompt        string
	Attachments   []string
	CtxPlanning   task.Switch
	CtxReasoning  task.Switch
	CtxDeepSearch task.Switch
	ContextRef    contextstore.Ref
}

// AgentRunner is the black-box agent runtime. Run is expected to be
// long-running and must honor ctx cancellation; the scheduler treats a
// run that ignores it as cancelled after a grace period and discards its
// eventual outcome.
type AgentRunner interface {
	Run(ctx context.Context, bundle Bundle) (string, error)
}

// RunnerFunc adapts a function to AgentRunner.
type RunnerFunc func(ctx context.Context, bundle Bundle) (string, error)

func (f RunnerFunc) Run(ctx context.Context, bundle Bundle) (string, error) {
	return f(ctx, bundle)
}
