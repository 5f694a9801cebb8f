// Package guardrail implements a stateless, reversible privacy layer.
// Sensitive substrings in outbound request bodies are replaced with
// deterministic encrypted tokens; responses are deanonymized either buffered
// or incrementally across SSE event boundaries.
package guardrail

import (
	"sort"
	"sync"

	"github.com/Laisky/errors/v2"
)

// Category classifies what kind of data a guardrail protects.
type Category string

const (
	CategoryPII         Category = "pii"
	CategoryCredentials Category = "credentials"
	CategoryNetwork     Category = "network"
	CategoryFinancial   Category = "financial"
)

// Lifecycle is the phase a guardrail participates in.
type Lifecycle string

const (
	LifecyclePreCall  Lifecycle = "pre_call"
	LifecyclePostCall Lifecycle = "post_call"
)

// Action is the pipeline outcome of one guardrail.
type Action string

const (
	ActionAllow Action = "allow"
	ActionMask  Action = "mask"
	ActionBlock Action = "block"
)

// Config describes a guardrail to the admin surface.
type Config struct {
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Enabled      bool              `json:"enabled"`
	Category     Category          `json:"category"`
	Priority     int               `json:"priority"`
	Lifecycles   []Lifecycle       `json:"lifecycles"`
	Presentation map[string]string `json:"presentation,omitempty"`
}

// Context carries one text fragment through the pipeline.
type Context struct {
	Text      string
	Lifecycle Lifecycle
	Model     string
	TenantID  int
}

// Result is the outcome of one guardrail execution.
type Result struct {
	ModifiedText   string
	DetectionCount int
	Action         Action
}

// Guardrail is one detector in the pipeline.
type Guardrail interface {
	ID() string
	Config() Config
	ShouldRun(ctx *Context) bool
	Execute(ctx *Context) Result
}

// Factory builds a guardrail bound to an engine.
type Factory func(e *Engine) Guardrail

// Registry stores guardrail factories keyed by id.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	order     []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces a factory under id.
func (r *Registry) Register(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[id]; !ok {
		r.order = append(r.order, id)
	}
	r.factories[id] = f
}

// Build instantiates every registered guardrail for e, sorted by ascending
// priority.
func (r *Registry) Build(e *Engine) []Guardrail {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Guardrail, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.factories[id](e))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Config().Priority < out[j].Config().Priority
	})
	return out
}

// Engine owns the token codec, the reverse map and the built guardrail
// pipeline. One engine is shared by all requests in the process.
type Engine struct {
	key     [KeySize]byte
	codec   *Codec
	reverse *ReverseMap

	guardrails []Guardrail

	// audit, when set, observes every emitted replacement. Must not block.
	audit func(category Category, replacement string)
}

// New builds an engine with the default detector set.
func New(key [KeySize]byte, reverseCapacity int) (*Engine, error) {
	reverse, err := NewReverseMap(reverseCapacity)
	if err != nil {
		return nil, errors.Wrap(err, "new reverse map")
	}

	e := &Engine{
		key:     key,
		codec:   NewCodec(key),
		reverse: reverse,
	}

	registry := NewRegistry()
	registerDefaults(registry)
	e.guardrails = registry.Build(e)
	return e, nil
}

// Codec exposes the engine's token codec.
func (e *Engine) Codec() *Codec { return e.codec }

// ReverseMap exposes the engine's reverse map.
func (e *Engine) ReverseMap() *ReverseMap { return e.reverse }

// Guardrails lists the built pipeline in execution order.
func (e *Engine) Guardrails() []Guardrail { return e.guardrails }

// SetAudit installs an observer called once per emitted replacement.
func (e *Engine) SetAudit(fn func(category Category, replacement string)) { e.audit = fn }

func (e *Engine) auditReplacement(category Category, replacement string) {
	if e.audit != nil && replacement != "" {
		e.audit(category, replacement)
	}
}

// Run executes the pipeline on ctx, chaining each guardrail's modified text
// into the next. It returns the final text, the total detection count, and
// the strongest action taken.
func (e *Engine) Run(ctx *Context) (string, int, Action) {
	text := ctx.Text
	total := 0
	action := ActionAllow

	for _, g := range e.guardrails {
		cfg := g.Config()
		if !cfg.Enabled {
			continue
		}
		step := *ctx
		step.Text = text
		if !g.ShouldRun(&step) {
			continue
		}
		res := g.Execute(&step)
		text = res.ModifiedText
		total += res.DetectionCount
		switch res.Action {
		case ActionBlock:
			return text, total, ActionBlock
		case ActionMask:
			action = ActionMask
		}
	}
	return text, total, action
}

// AnonymizeText runs the pre-call pipeline over one text fragment.
func (e *Engine) AnonymizeText(text string) (string, int) {
	out, n, _ := e.Run(&Context{Text: text, Lifecycle: LifecyclePreCall})
	return out, n
}
