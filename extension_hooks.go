package reconcile

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-reconcile/core"
)

// OptionPack is a named set of service options a host module contributes
// before the engine is built, e.g. a storage wiring pack or a metrics pack.
type OptionPack struct {
	Name    string
	Options []core.Option
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// ExtensionHooks collects host contributions ahead of engine construction:
// option packs applied to NewService and command/query bundles built around
// a running service. Registration order does not matter; packs and bundles
// are applied in name order.
type ExtensionHooks struct {
	mu sync.RWMutex

	optionPacks map[string]OptionPack
	bundles     map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		optionPacks: map[string]OptionPack{},
		bundles:     map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterOptionPack(pack OptionPack) error {
	if h == nil {
		return fmt.Errorf("reconcile: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("reconcile: option pack name is required")
	}
	if len(pack.Options) == 0 {
		return fmt.Errorf("reconcile: option pack %q has no options", name)
	}

	normalized := OptionPack{
		Name:    name,
		Options: append([]core.Option(nil), pack.Options...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.optionPacks[name]; exists {
		return fmt.Errorf("reconcile: option pack %q already registered", name)
	}
	h.optionPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("reconcile: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("reconcile: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("reconcile: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("reconcile: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ServiceOptions flattens the registered option packs in name order so the
// result can be appended to a NewService call.
func (h *ExtensionHooks) ServiceOptions() []core.Option {
	if h == nil {
		return nil
	}
	packs := h.OptionPacks()

	out := []core.Option{}
	for _, pack := range packs {
		out = append(out, pack.Options...)
	}
	return out
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("reconcile: command/query service is required")
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

func (h *ExtensionHooks) OptionPacks() []OptionPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.optionPacks))
	for name := range h.optionPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]OptionPack, 0, len(names))
	for _, name := range names {
		pack := h.optionPacks[name]
		out = append(out, OptionPack{
			Name:    pack.Name,
			Options: append([]core.Option(nil), pack.Options...),
		})
	}
	return out
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
