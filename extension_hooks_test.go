package reconcile

import (
	"testing"

	"github.com/goliatone/go-reconcile/core"
)

func TestExtensionHooks_RegisterAndFlattenOptionPacks(t *testing.T) {
	hooks := NewExtensionHooks()

	recorder := core.NopMetricsRecorder{}
	if err := hooks.RegisterOptionPack(OptionPack{
		Name:    "metrics-pack",
		Options: []core.Option{WithMetricsRecorder(recorder)},
	}); err != nil {
		t.Fatalf("register option pack: %v", err)
	}
	if err := hooks.RegisterOptionPack(OptionPack{
		Name:    "metrics-pack",
		Options: []core.Option{WithMetricsRecorder(recorder)},
	}); err == nil {
		t.Fatalf("expected duplicate option pack registration error")
	}
	if err := hooks.RegisterOptionPack(OptionPack{Name: "empty-pack"}); err == nil {
		t.Fatalf("expected empty option pack registration error")
	}

	if err := hooks.RegisterOptionPack(OptionPack{
		Name:    "logging-pack",
		Options: []core.Option{WithLogger(nil), WithLoggerProvider(nil)},
	}); err != nil {
		t.Fatalf("register second option pack: %v", err)
	}

	options := hooks.ServiceOptions()
	if len(options) != 3 {
		t.Fatalf("expected three flattened options, got %d", len(options))
	}
	packs := hooks.OptionPacks()
	if len(packs) != 2 || packs[0].Name != "logging-pack" || packs[1].Name != "metrics-pack" {
		t.Fatalf("expected deterministic pack ordering, got %#v", packs)
	}
}

func TestExtensionHooks_CommandQueryBundles(t *testing.T) {
	hooks := NewExtensionHooks()

	if err := hooks.RegisterCommandQueryBundle("ops_bundle", func(service CommandQueryService) (any, error) {
		return map[string]any{
			"run_matchers_fn":    service.RunMatchers,
			"list_exceptions_fn": service.ListOpenExceptions,
		}, nil
	}); err != nil {
		t.Fatalf("register bundle: %v", err)
	}
	if err := hooks.RegisterCommandQueryBundle("ops_bundle", func(CommandQueryService) (any, error) { return nil, nil }); err == nil {
		t.Fatalf("expected duplicate bundle registration error")
	}
	if err := hooks.RegisterCommandQueryBundle(" ", func(CommandQueryService) (any, error) { return nil, nil }); err == nil {
		t.Fatalf("expected blank bundle name error")
	}

	names := hooks.BundleNames()
	if len(names) != 1 || names[0] != "ops_bundle" {
		t.Fatalf("expected ops_bundle name, got %#v", names)
	}

	svc := &stubFacadeService{}
	bundles, err := hooks.BuildCommandQueryBundles(svc)
	if err != nil {
		t.Fatalf("build bundles: %v", err)
	}
	if len(bundles) != 1 {
		t.Fatalf("expected one bundle, got %d", len(bundles))
	}
	if _, ok := bundles["ops_bundle"]; !ok {
		t.Fatalf("expected ops_bundle entry in built bundles")
	}

	if _, err := hooks.BuildCommandQueryBundles(nil); err == nil {
		t.Fatalf("expected nil service error")
	}
}
