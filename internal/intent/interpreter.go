package intent

import (
	"context"
	"fmt"
	"time"

	"github.com/vthunder/chorebot/internal/logging"
)

// DefaultTimeout bounds a single model call
const DefaultTimeout = 20 * time.Second

// Provider sends one completion request to a language model and returns the
// raw text of its answer
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Interpreter turns a message into a validated Result
type Interpreter interface {
	Interpret(ctx context.Context, in Input) (Result, error)
}

// LLM is the Interpreter backed by a language model Provider
type LLM struct {
	provider Provider
	timeout  time.Duration
}

// NewLLM creates an interpreter; timeout <= 0 uses DefaultTimeout
func NewLLM(provider Provider, timeout time.Duration) *LLM {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &LLM{provider: provider, timeout: timeout}
}

// Interpret calls the provider under the configured timeout and parses the
// answer. Any error means the caller should use its fallback.
func (l *LLM) Interpret(ctx context.Context, in Input) (Result, error) {
	if l == nil || l.provider == nil {
		return Result{}, ErrNoProvider
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	output, err := l.provider.Complete(ctx, BuildRequest(in))
	if err != nil {
		return Result{}, fmt.Errorf("%s completion failed: %w", l.provider.Name(), err)
	}
	logging.Debug("intent", "%s answered in %dms: %s", l.provider.Name(),
		time.Since(start).Milliseconds(), logging.Truncate(output, 200))

	result, err := Parse(output)
	if err != nil {
		return Result{}, err
	}
	logging.Debug("intent", "kind=%s tasks=%d ops=%d", result.Kind, len(result.Tasks), len(result.Operations))
	return result, nil
}
