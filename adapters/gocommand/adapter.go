// Package gocommand mounts the droplet's command and query handlers on the
// go-command registry and dispatcher so callers drive installation mutations
// and reads through typed messages.
package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	dropletcommand "github.com/goliatone/go-droplet/command"
	dropletquery "github.com/goliatone/go-droplet/query"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
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

// Wiring collects the droplet surfaces the message handlers mount on. The
// core service satisfies every field; tests swap in narrower stubs.
type Wiring struct {
	Mutator       dropletcommand.MutatingService
	Syncer        dropletcommand.SyncRunner
	Installations dropletquery.InstallationReader
	Dashboards    dropletquery.DashboardReader
	Activity      dropletquery.ActivityReader
	Deliveries    dropletquery.DeliveryReader
}

// MountDroplet registers and subscribes every droplet command and query.
// The sync command mounts only when a syncer is wired. On error, already
// mounted handlers are unsubscribed before returning.
func MountDroplet(adapter *RegistryAdapter, wiring Wiring, runnerOpts ...runner.Option) ([]commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if wiring.Mutator == nil {
		return nil, fmt.Errorf("gocommand: mutating service is required")
	}
	if wiring.Installations == nil || wiring.Dashboards == nil || wiring.Activity == nil || wiring.Deliveries == nil {
		return nil, fmt.Errorf("gocommand: readers are required")
	}

	var subs []commanddispatcher.Subscription
	keep := func(sub commanddispatcher.Subscription, err error) error {
		if err != nil {
			return err
		}
		subs = append(subs, sub)
		return nil
	}
	mounts := []func() error{
		func() error {
			return keep(RegisterAndSubscribe(adapter, dropletcommand.NewStartInstallationCommand(wiring.Mutator), runnerOpts...))
		},
		func() error {
			return keep(RegisterAndSubscribe(adapter, dropletcommand.NewSubmitConfigurationCommand(wiring.Mutator), runnerOpts...))
		},
		func() error {
			return keep(RegisterAndSubscribe(adapter, dropletcommand.NewActivateInstallationCommand(wiring.Mutator), runnerOpts...))
		},
		func() error {
			return keep(RegisterAndSubscribe(adapter, dropletcommand.NewDeactivateInstallationCommand(wiring.Mutator), runnerOpts...))
		},
		func() error {
			return keep(RegisterAndSubscribe(adapter, dropletcommand.NewFailInstallationCommand(wiring.Mutator), runnerOpts...))
		},
		func() error {
			return keep(RegisterAndSubscribe(adapter, dropletcommand.NewDisconnectInstallationCommand(wiring.Mutator), runnerOpts...))
		},
		func() error {
			return keep(RegisterAndSubscribe(adapter, dropletcommand.NewApplyResourceEventCommand(wiring.Mutator), runnerOpts...))
		},
		func() error {
			return keep(RegisterAndSubscribe(adapter, dropletcommand.NewRecordActivityCommand(wiring.Mutator), runnerOpts...))
		},
		func() error {
			return keep(RegisterAndSubscribeQuery(adapter, dropletquery.NewGetInstallationQuery(wiring.Installations), runnerOpts...))
		},
		func() error {
			return keep(RegisterAndSubscribeQuery(adapter, dropletquery.NewGetInstallationByShopDomainQuery(wiring.Installations), runnerOpts...))
		},
		func() error {
			return keep(RegisterAndSubscribeQuery(adapter, dropletquery.NewListInstallationsQuery(wiring.Installations), runnerOpts...))
		},
		func() error {
			return keep(RegisterAndSubscribeQuery(adapter, dropletquery.NewGetDashboardQuery(wiring.Dashboards), runnerOpts...))
		},
		func() error {
			return keep(RegisterAndSubscribeQuery(adapter, dropletquery.NewCountResourcesQuery(wiring.Dashboards), runnerOpts...))
		},
		func() error {
			return keep(RegisterAndSubscribeQuery(adapter, dropletquery.NewListActivityQuery(wiring.Activity), runnerOpts...))
		},
		func() error {
			return keep(RegisterAndSubscribeQuery(adapter, dropletquery.NewListDeliveriesQuery(wiring.Deliveries), runnerOpts...))
		},
	}
	if wiring.Syncer != nil {
		mounts = append(mounts, func() error {
			return keep(RegisterAndSubscribe(adapter, dropletcommand.NewRunCompanySyncCommand(wiring.Syncer), runnerOpts...))
		})
	}

	for _, mount := range mounts {
		if err := mount(); err != nil {
			Unsubscribe(subs)
			return nil, err
		}
	}
	return subs, nil
}

// Unsubscribe detaches every subscription, skipping nils.
func Unsubscribe(subs []commanddispatcher.Subscription) {
	for _, sub := range subs {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}
