package contextinfo

import (
	"context"
	"fmt"
	"sync"

	"github.com/parlancehq/parlance/pkg/errors"
	"github.com/parlancehq/parlance/pkg/logging"
)

// Registry holds the registered providers. Registration happens at boot;
// Collect may be called concurrently afterward.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
	logger    *logging.Logger
}

// NewRegistry creates a provider registry. logger may be nil.
func NewRegistry(logger *logging.Logger) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		logger:    logger,
	}
}

// Register adds a provider. Key collisions are rejected so that one
// provider cannot silently shadow another's facts.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := p.Key()
	if key == "" {
		return errors.New(errors.ErrCodeInvalidInput, "context provider key cannot be empty")
	}
	if _, exists := r.providers[key]; exists {
		return errors.Newf(errors.ErrCodeProviderExists, "context provider %q already registered", key)
	}

	r.providers[key] = p
	r.order = append(r.order, key)
	return nil
}

// Keys returns the registered provider keys in registration order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Collect gathers every provider's snapshot into one map. A provider
// that returns an error or panics has its key omitted and the failure
// logged; Collect itself never fails.
func (r *Registry) Collect(ctx context.Context) map[string]map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	merged := make(map[string]map[string]any, len(r.order))
	for _, key := range r.order {
		snapshot, err := r.collectOne(ctx, r.providers[key])
		if err != nil {
			r.logSkip(key, err)
			continue
		}
		merged[key] = snapshot
	}
	return merged
}

func (r *Registry) collectOne(ctx context.Context, p Provider) (snapshot map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			snapshot = nil
			err = errors.Newf(errors.ErrCodeProviderError, "provider panicked: %v", rec)
		}
	}()

	snapshot, err = p.Context(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeProviderError, "provider failed")
	}
	return snapshot, nil
}

func (r *Registry) logSkip(key string, err error) {
	if r.logger == nil {
		return
	}
	r.logger.Warn(logging.CategoryContext, "provider_skipped",
		fmt.Sprintf("context provider %q skipped: %v", key, err),
		map[string]any{"provider": key})
}
