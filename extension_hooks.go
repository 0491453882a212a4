package droplet

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// CommandQueryBundleFactory builds one host-defined view over the droplet
// command/query surface. The returned value is opaque to the droplet.
type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// ExtensionHooks collects composition callbacks a host application registers
// before the droplet service is built. Registration is name-keyed and
// rejected on duplicates so two host modules cannot silently shadow each
// other.
type ExtensionHooks struct {
	mu sync.RWMutex

	bundles map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		bundles: map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("droplet: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("droplet: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("droplet: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("droplet: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// BuildCommandQueryBundles runs every registered factory against the service
// in deterministic name order. One failing factory fails the whole build.
func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("droplet: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
