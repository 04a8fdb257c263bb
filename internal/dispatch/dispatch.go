// Package dispatch implements the Dispatcher (spec §4.3): routes
// validated tools/call invocations to per-tool handlers or category
// handlers, enforcing per-call timeout resolution.
//
// The handler-map/category-map shape and the
// `execution_timeout = min(timeout, tool_def.timeout, ceiling)` rule
// are ported from
// original_source/src/mcp/tools/dispatcher.py's ToolDispatcher; the
// per-tool timeout lookup style is also grounded on
// brennhill-gasoline-mcp-ai-devtools/internal/bridge/timeout.go's
// fast/slow/blocking timeout table.
package dispatch

import (
	"context"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/dshield-mcp/dshield-mcp-server/internal/feature"
	"github.com/dshield-mcp/dshield-mcp-server/internal/mcperr"
	"github.com/dshield-mcp/dshield-mcp-server/internal/registry"
)

// GlobalTimeoutCeiling is the absolute per-call timeout ceiling from
// spec §4.3.
const GlobalTimeoutCeiling = 300 * time.Second

// Handler is a single async unit of work — spec §4.3: "no further
// dispatch happens inside them." It receives the raw tool-call
// arguments and returns a JSON-marshalable result or an error.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Dispatcher routes tools/call invocations.
type Dispatcher struct {
	mu               sync.RWMutex
	handlers         map[string]Handler
	categoryHandlers map[registry.Category]Handler
	registry         *registry.Registry
	features         *feature.Manager
}

// New builds a Dispatcher bound to a tool registry and feature manager.
func New(reg *registry.Registry, features *feature.Manager) *Dispatcher {
	return &Dispatcher{
		handlers:         make(map[string]Handler),
		categoryHandlers: make(map[registry.Category]Handler),
		registry:         reg,
		features:         features,
	}
}

// RegisterHandler binds a handler to a specific tool name.
func (d *Dispatcher) RegisterHandler(toolName string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[toolName] = h
}

// RegisterCategoryHandler binds a fallback handler for every tool in a
// category that has no specific handler registered.
func (d *Dispatcher) RegisterCategoryHandler(cat registry.Category, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.categoryHandlers[cat] = h
}

// Dispatch executes a tools/call invocation per spec §4.3's four steps:
// look up descriptor, resolve timeout, execute under that timeout,
// map errors.
func (d *Dispatcher) Dispatch(ctx context.Context, toolName string, args json.RawMessage, argTimeoutSeconds float64) (any, *mcperr.StructuredError) {
	descriptor, ok := d.registry.Get(toolName)
	if !ok {
		return nil, mcperr.New(mcperr.CodeUnknownTool, "no such tool: "+toolName)
	}

	if !d.features.AllSatisfied(descriptor.RequiredFeatures) {
		return nil, mcperr.New(mcperr.CodeFeatureUnavailable, "required feature unavailable for tool "+toolName)
	}

	handler, ok := d.lookupHandler(toolName, descriptor.Category)
	if !ok {
		return nil, mcperr.New(mcperr.CodeInternal, "tool registered without a handler: "+toolName)
	}

	timeout := resolveTimeout(argTimeoutSeconds, descriptor.TimeoutSeconds, GlobalTimeoutCeiling)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := handler(callCtx, args)
		done <- outcome{result, err}
	}()

	select {
	case <-callCtx.Done():
		return nil, mcperr.New(mcperr.CodeTimeout, "tool call exceeded its timeout")
	case o := <-done:
		if o.err != nil {
			if callCtx.Err() == context.DeadlineExceeded {
				return nil, mcperr.New(mcperr.CodeTimeout, "tool call exceeded its timeout")
			}
			if se, ok := o.err.(*mcperr.StructuredError); ok {
				return nil, se
			}
			return nil, mcperr.New(mcperr.CodeInternal, "handler error", mcperr.WithDetail(o.err.Error()))
		}
		return o.result, nil
	}
}

func (d *Dispatcher) lookupHandler(toolName string, cat registry.Category) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if h, ok := d.handlers[toolName]; ok {
		return h, true
	}
	h, ok := d.categoryHandlers[cat]
	return h, ok
}

// resolveTimeout applies spec §4.3's precedence: min(argument-supplied
// cap if any, descriptor timeout, global ceiling).
func resolveTimeout(argSeconds, descriptorSeconds float64, ceiling time.Duration) time.Duration {
	result := ceiling
	if descriptorSeconds > 0 {
		if d := time.Duration(descriptorSeconds * float64(time.Second)); d < result {
			result = d
		}
	}
	if argSeconds > 0 {
		if d := time.Duration(argSeconds * float64(time.Second)); d < result {
			result = d
		}
	}
	return result
}
