// Package registry is the catalog of supported games and their handlers.
package registry

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/raidwatch/raidwatch/internal/engine"
	"github.com/raidwatch/raidwatch/internal/notify"
)

// ErrUnknownManager is returned for ids not in the catalog.
var ErrUnknownManager = errors.New("unknown manager")

// Factory builds the handler for a manager. It is called at most once per
// Registry.
type Factory func() engine.Handler

// ManagerConfig describes one supported game.
type ManagerConfig struct {
	ID              string
	Label           string
	ProcessKeywords []string
	// PluginPath is passed to the engine; relative paths are resolved
	// against the engine resource directory.
	PluginPath string
	NewHandler Factory
}

// Summary is the public view of a manager.
type Summary struct {
	ID              string   `json:"id"`
	Label           string   `json:"label"`
	ProcessKeywords []string `json:"processKeywords"`
}

// WebhookReceiver is implemented by handlers whose webhook target can be
// changed at runtime.
type WebhookReceiver interface {
	SetWebhook(t notify.Target)
}

// Registry maps manager ids to configs and owns one handler per id for its
// whole lifetime.
type Registry struct {
	configs []ManagerConfig
	byID    map[string]int

	mu       sync.Mutex
	handlers map[string]engine.Handler
}

// New builds a registry. Ids must be non-empty and unique and every entry
// needs a factory.
func New(configs ...ManagerConfig) (*Registry, error) {
	r := &Registry{
		byID:     make(map[string]int, len(configs)),
		handlers: make(map[string]engine.Handler, len(configs)),
	}
	for _, c := range configs {
		if c.ID == "" {
			return nil, errors.New("manager id must not be empty")
		}
		if _, dup := r.byID[c.ID]; dup {
			return nil, errors.Errorf("duplicate manager id %q", c.ID)
		}
		if c.NewHandler == nil {
			return nil, errors.Errorf("manager %q has no handler factory", c.ID)
		}
		c.ProcessKeywords = append([]string(nil), c.ProcessKeywords...)
		r.byID[c.ID] = len(r.configs)
		r.configs = append(r.configs, c)
	}
	return r, nil
}

// Get returns the config for id.
func (r *Registry) Get(id string) (ManagerConfig, error) {
	i, ok := r.byID[id]
	if !ok {
		return ManagerConfig{}, errors.Wrapf(ErrUnknownManager, "%q", id)
	}
	c := r.configs[i]
	c.ProcessKeywords = append([]string(nil), c.ProcessKeywords...)
	return c, nil
}

// Handler returns the handler for id, creating it on first use. Later
// calls return the same instance.
func (r *Registry) Handler(id string) (engine.Handler, error) {
	i, ok := r.byID[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownManager, "%q", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handlers[id]; ok {
		return h, nil
	}
	h := r.configs[i].NewHandler()
	r.handlers[id] = h
	return h, nil
}

// Supported lists every manager in catalog order.
func (r *Registry) Supported() []Summary {
	out := make([]Summary, 0, len(r.configs))
	for _, c := range r.configs {
		out = append(out, Summary{
			ID:              c.ID,
			Label:           c.Label,
			ProcessKeywords: append([]string(nil), c.ProcessKeywords...),
		})
	}
	return out
}

// IDs returns the sorted manager ids.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetWebhook updates the webhook target of id's handler, if it takes one.
// It reports whether the handler accepted the update.
func (r *Registry) SetWebhook(id string, t notify.Target) (bool, error) {
	h, err := r.Handler(id)
	if err != nil {
		return false, err
	}
	wr, ok := h.(WebhookReceiver)
	if !ok {
		return false, nil
	}
	wr.SetWebhook(t)
	return true, nil
}
