package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"

	reconcile "github.com/goliatone/go-reconcile"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeCommandFunc[T any](handler command.CommandFunc[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(handler, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func SubscribeQueryFunc[T any, R any](qry command.QueryFunc[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// RegisterEngineCommands routes the facade's mutation bundle through the
// dispatcher and the adapter's registry in one call, so a host dispatches
// reconcile messages without wiring each commander by hand. On any failure
// every subscription made so far is released.
func RegisterEngineCommands(
	adapter *RegistryAdapter,
	commands reconcile.Commands,
	runnerOpts ...runner.Option,
) ([]commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if commands.IngestBatch == nil || commands.RunMatchers == nil ||
		commands.Consolidate == nil || commands.ResolveException == nil {
		return nil, fmt.Errorf("gocommand: engine commands are not fully wired")
	}

	subscriptions := make([]commanddispatcher.Subscription, 0, 4)
	attach := func(subscription commanddispatcher.Subscription, err error) error {
		if err != nil {
			unsubscribeAll(subscriptions)
			return err
		}
		subscriptions = append(subscriptions, subscription)
		return nil
	}

	if err := attach(RegisterAndSubscribe(adapter, commands.IngestBatch, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := attach(RegisterAndSubscribe(adapter, commands.RunMatchers, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := attach(RegisterAndSubscribe(adapter, commands.Consolidate, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := attach(RegisterAndSubscribe(adapter, commands.ResolveException, runnerOpts...)); err != nil {
		return nil, err
	}
	return subscriptions, nil
}

// RegisterEngineQueries is the read-side counterpart of
// RegisterEngineCommands.
func RegisterEngineQueries(
	adapter *RegistryAdapter,
	queries reconcile.Queries,
	runnerOpts ...runner.Option,
) ([]commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if queries.ListPayoutStatuses == nil || queries.ListOpenExceptions == nil ||
		queries.GetIdentityProvenance == nil || queries.ListActivity == nil {
		return nil, fmt.Errorf("gocommand: engine queries are not fully wired")
	}

	subscriptions := make([]commanddispatcher.Subscription, 0, 4)
	attach := func(subscription commanddispatcher.Subscription, err error) error {
		if err != nil {
			unsubscribeAll(subscriptions)
			return err
		}
		subscriptions = append(subscriptions, subscription)
		return nil
	}

	if err := attach(RegisterAndSubscribeQuery(adapter, queries.ListPayoutStatuses, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := attach(RegisterAndSubscribeQuery(adapter, queries.ListOpenExceptions, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := attach(RegisterAndSubscribeQuery(adapter, queries.GetIdentityProvenance, runnerOpts...)); err != nil {
		return nil, err
	}
	if err := attach(RegisterAndSubscribeQuery(adapter, queries.ListActivity, runnerOpts...)); err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func unsubscribeAll(subscriptions []commanddispatcher.Subscription) {
	for _, subscription := range subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}
