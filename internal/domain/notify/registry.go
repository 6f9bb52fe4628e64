package notify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ValidateFunc checks a channel configuration.
type ValidateFunc func(cfg map[string]string) error

// SendFunc delivers a message. See ChannelAdapter.Send.
type SendFunc func(ctx context.Context, msg *Message, cfg map[string]string) error

// Registry maps channel types to adapters. Built-in adapters are registered
// at startup; plugins may add new types later.
type Registry struct {
	mu       sync.RWMutex
	adapters map[ChannelType]ChannelAdapter
}

// NewRegistry creates a registry holding the given adapters.
func NewRegistry(adapters ...ChannelAdapter) (*Registry, error) {
	r := &Registry{adapters: make(map[ChannelType]ChannelAdapter, len(adapters))}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an adapter. A type can only be registered once.
func (r *Registry) Register(a ChannelAdapter) error {
	if a == nil || a.Type() == "" {
		return errors.New("adapter must declare a channel type")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[a.Type()]; exists {
		return fmt.Errorf("channel type %q already registered", a.Type())
	}
	r.adapters[a.Type()] = a
	return nil
}

// RegisterFunc adds an adapter built from plain functions.
func (r *Registry) RegisterFunc(channelType ChannelType, validate ValidateFunc, send SendFunc) error {
	if send == nil {
		return fmt.Errorf("channel type %q: send function is required", channelType)
	}
	return r.Register(&funcAdapter{typ: channelType, validate: validate, send: send})
}

// Lookup returns the adapter for a channel type.
func (r *Registry) Lookup(t ChannelType) (ChannelAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[t]
	return a, ok
}

// Validate checks that a channel's type is known and its config accepted.
// Errors wrap ErrAdapterConfig.
func (r *Registry) Validate(ch Channel) error {
	a, ok := r.Lookup(ch.Type)
	if !ok {
		return fmt.Errorf("%w: unknown channel type %q", ErrAdapterConfig, ch.Type)
	}
	if err := a.ValidateConfig(ch.Config); err != nil {
		return fmt.Errorf("%w: %w", ErrAdapterConfig, err)
	}
	return nil
}

// Types lists registered channel types in sorted order.
func (r *Registry) Types() []ChannelType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ChannelType, 0, len(r.adapters))
	for t := range r.adapters {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

type funcAdapter struct {
	typ      ChannelType
	validate ValidateFunc
	send     SendFunc
}

func (f *funcAdapter) Type() ChannelType { return f.typ }

func (f *funcAdapter) ValidateConfig(cfg map[string]string) error {
	if f.validate == nil {
		return nil
	}
	return f.validate(cfg)
}

func (f *funcAdapter) Send(ctx context.Context, msg *Message, cfg map[string]string) error {
	return f.send(ctx, msg, cfg)
}
