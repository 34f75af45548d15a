package modules

import (
	"context"

	"seoaudit/internal/config"
	"seoaudit/internal/errutil"
	"seoaudit/pkg/alerting"
	"seoaudit/pkg/check"
	"seoaudit/pkg/dispatch"
	"seoaudit/pkg/store"
	"seoaudit/pkg/store/warehouse"
)

// Module is one schedulable unit of work. A module runs to completion as a
// single invocation; no in-process state is shared across runs.
type Module interface {
	Name() string
	Run(ctx context.Context) error
}

// SenderFactory builds a dispatch channel from one dispatcher
// configuration block.
type SenderFactory func(kind string, settings map[string]interface{}) (dispatch.Sender, error)

// Dependencies carries the connections and services a module may consume.
// They are established once per module run by the entry point and released
// at run end; modules must not stash them beyond Run.
type Dependencies struct {
	Config *config.Config

	Docs      store.Documents
	Warehouse *warehouse.Warehouse

	// Relational is the check result database for modules configured with
	// the mongodb backend kind.
	Relational check.DB

	Alerts *alerting.Queue

	NewSender SenderFactory

	// SearchAPI is the outbound search console client, injected by the
	// entry point.
	SearchAPI SearchAPI
}

// sinkFor selects the check result sink once, at module construction.
func sinkFor(deps Dependencies, database config.Database) (check.Sink, error) {
	switch database {
	case config.DatabaseWarehouse:
		return check.NewWarehouseSink(deps.Warehouse)
	case config.DatabaseMongoDB:
		return check.NewRelationalSink(deps.Relational)
	default:
		return nil, &errutil.ConfigurationInvalidError{
			Key:    "database",
			Reason: "unsupported backend " + string(database),
		}
	}
}
