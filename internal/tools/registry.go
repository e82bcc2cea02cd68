package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// RegistryConfig controls which tools are exposed.
type RegistryConfig struct {
	// DisabledTools lists tool names, categories or operation types to hide.
	DisabledTools []string
	// ReadOnly hides every tool whose operation type mutates data.
	ReadOnly bool
}

// Descriptor is the listable shape of a registered tool.
type Descriptor struct {
	Name          string
	Description   string
	Category      Category
	OperationType OperationType
	Schema        json.RawMessage
}

type registration struct {
	tool    Tool
	execute ExecuteFunc
}

// Registry holds the tools exposed to clients. Denied tools are never added,
// so they can be neither listed nor called.
type Registry struct {
	mu       sync.RWMutex
	disabled map[string]struct{}
	readOnly bool
	tools    map[string]*registration
	order    []string
}

// NewRegistry creates an empty registry gated by cfg.
func NewRegistry(cfg RegistryConfig) *Registry {
	disabled := make(map[string]struct{}, len(cfg.DisabledTools))
	for _, d := range cfg.DisabledTools {
		disabled[d] = struct{}{}
	}
	return &Registry{
		disabled: disabled,
		readOnly: cfg.ReadOnly,
		tools:    make(map[string]*registration),
	}
}

// Register adds tool with its decorators applied in order, outermost first.
// It reports whether the tool was added.
func (r *Registry) Register(tool Tool, decorators ...Decorator) bool {
	if reason := r.denyReason(tool); reason != "" {
		log.Debug().
			Str("tool", tool.Name()).
			Msgf("Prevented registration of %s because %s is disabled in the config", tool.Name(), reason)
		return false
	}

	exec := ExecuteFunc(tool.Execute)
	for i := len(decorators) - 1; i >= 0; i-- {
		exec = decorators[i](exec)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; exists {
		log.Warn().Str("tool", tool.Name()).Msg("Tool already registered, ignoring duplicate")
		return false
	}
	r.tools[tool.Name()] = &registration{tool: tool, execute: exec}
	r.order = append(r.order, tool.Name())
	return true
}

func (r *Registry) denyReason(tool Tool) string {
	if _, ok := r.disabled[string(tool.Category())]; ok {
		return fmt.Sprintf("its category, `%s`,", tool.Category())
	}
	if _, ok := r.disabled[string(tool.OperationType())]; ok {
		return fmt.Sprintf("its operation type, `%s`,", tool.OperationType())
	}
	if _, ok := r.disabled[tool.Name()]; ok {
		return "it"
	}
	if r.readOnly && tool.OperationType().Mutates() {
		return "its operation type, `" + string(tool.OperationType()) + "`, writes data and read-only mode"
	}
	return ""
}

// Tools returns descriptors for every registered tool in registration order.
func (r *Registry) Tools() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name].tool
		out = append(out, Descriptor{
			Name:          t.Name(),
			Description:   t.Description(),
			Category:      t.Category(),
			OperationType: t.OperationType(),
			Schema:        t.Schema(),
		})
	}
	return out
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Lookup returns a registered tool.
func (r *Registry) Lookup(name string) (Tool, bool) {
	reg, ok := r.lookup(name)
	if !ok {
		return nil, false
	}
	return reg.tool, true
}

func (r *Registry) lookup(name string) (*registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	return reg, ok
}
