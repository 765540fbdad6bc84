package async

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/teranos/cadence/errors"
)

// Result is what a handler reports for a job it ran
type Result struct {
	ResultRef string   // Reference to the produced artifact (character or content id)
	Warnings  []string // Non-fatal step errors
}

// JobHandler executes one job kind. Domain packages implement it so the queue
// stays unaware of generation details.
//
// A nil error completes the job. A non-nil error fails it; the returned Result,
// when not nil, still carries the warnings gathered before the fatal step.
type JobHandler interface {
	Execute(ctx context.Context, job *Job) (*Result, error)

	// Name returns the handler name (e.g., "character.autogen", "content.generate").
	Name() string
}

// HandlerRegistry manages job handlers by name.
// Thread-safe for concurrent handler registration and lookup.
type HandlerRegistry struct {
	handlers map[string]JobHandler
	mu       sync.RWMutex
}

// NewHandlerRegistry creates an empty handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]JobHandler),
	}
}

// Register adds a handler using its name.
// Panics if a handler is already registered with that name.
func (r *HandlerRegistry) Register(handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handlerName := handler.Name()
	if _, exists := r.handlers[handlerName]; exists {
		panic(fmt.Sprintf("handler already registered for name: %s", handlerName))
	}
	r.handlers[handlerName] = handler
}

// Get retrieves the handler for a handler name.
// Returns nil if no handler is registered.
func (r *HandlerRegistry) Get(handlerName string) JobHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[handlerName]
}

// Has checks if a handler is registered for a name.
func (r *HandlerRegistry) Has(handlerName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[handlerName]
	return exists
}

// Names returns all registered handler names, sorted.
func (r *HandlerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute dispatches the job to the handler registered for its HandlerName
func (r *HandlerRegistry) Execute(ctx context.Context, job *Job) (*Result, error) {
	if job.HandlerName == "" {
		return nil, errors.Newf("job %s missing handler_name", job.ID)
	}
	handler := r.Get(job.HandlerName)
	if handler == nil {
		return nil, errors.Newf("no handler registered for handler name: %s", job.HandlerName)
	}
	return handler.Execute(ctx, job)
}
