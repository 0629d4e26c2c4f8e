// Package plugins defines the collector plugin contract and an explicit
// registry of statically-linked implementations, populated at process
// start. Devices select a plugin through their backup_method key.
package plugins

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Config is the input to one collection attempt
type Config struct {
	IP          string
	Credentials map[string]interface{}
	Params      map[string]interface{}
}

// Result is the normalized outcome of one collection attempt. For binary
// collections DeviceConfig holds base64-encoded content so the record
// stays JSON-serializable on the wire.
type Result struct {
	Status       string
	Timestamp    time.Time
	Log          []string
	DeviceConfig *string
	IsBinary     bool
}

// CollectorFunc is a plugin entrypoint. It may return an error or panic;
// Execute normalizes both into a failure Result.
type CollectorFunc func(ctx context.Context, cfg Config) (*Result, error)

// Plugin is one registered collection method
type Plugin struct {
	Key          string
	FriendlyName string
	Description  string
	IsBinary     bool
	Collect      CollectorFunc
}

// Execute invokes the plugin under a soft timeout and always returns a
// well-formed Result. The hard limit is enforced by the worker's delivery
// context, not here.
func (p *Plugin) Execute(ctx context.Context, cfg Config, timeout time.Duration) *Result {
	softCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		softCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan *Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &Result{
					Status:    "failure",
					Timestamp: time.Now().UTC(),
					Log:       []string{fmt.Sprintf("plugin_panic: %v", r)},
					IsBinary:  p.IsBinary,
				}
			}
		}()

		result, err := p.Collect(softCtx, cfg)
		if err != nil {
			done <- &Result{
				Status:    "failure",
				Timestamp: time.Now().UTC(),
				Log:       []string{fmt.Sprintf("plugin_error: %v", err)},
				IsBinary:  p.IsBinary,
			}
			return
		}
		done <- p.normalize(result)
	}()

	select {
	case result := <-done:
		return result
	case <-softCtx.Done():
		return &Result{
			Status:    "failure",
			Timestamp: time.Now().UTC(),
			Log:       []string{fmt.Sprintf("plugin_soft_timeout: exceeded %s", timeout)},
			IsBinary:  p.IsBinary,
		}
	}
}

func (p *Plugin) normalize(result *Result) *Result {
	if result == nil {
		return &Result{
			Status:    "failure",
			Timestamp: time.Now().UTC(),
			Log:       []string{"plugin_returned_nil_result"},
			IsBinary:  p.IsBinary,
		}
	}
	if result.Status == "" {
		result.Status = "failure"
	}
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now().UTC()
	}
	if result.Log == nil {
		result.Log = []string{}
	}
	result.IsBinary = p.IsBinary
	return result
}

// Registry maps plugin keys to implementations
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]*Plugin
}

// NewRegistry creates an empty plugin registry
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]*Plugin)}
}

// Register adds a plugin, rejecting duplicate keys
func (r *Registry) Register(p *Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plugins[p.Key]; exists {
		return fmt.Errorf("plugin %s already registered", p.Key)
	}
	r.plugins[p.Key] = p
	return nil
}

// Get returns a plugin by key
func (r *Registry) Get(key string) (*Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[key]
	return p, ok
}

// List returns all registered plugins sorted by key
func (r *Registry) List() []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Builtin returns a registry populated with the plugins shipped in-tree
func Builtin() *Registry {
	r := NewRegistry()
	_ = r.Register(Noop())
	_ = r.Register(BinaryDummy())
	return r
}
