package modules

import (
	"context"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"seoaudit/internal/errutil"
	"seoaudit/pkg/alerting"
	"seoaudit/pkg/dispatch"
)

const DefaultDispatchBatchSize = 50

// channel is one configured outbound route: a sender plus the alert groups
// it drains.
type channel struct {
	kind   string
	groups []string
	sender dispatch.Sender
}

// Dispatcher drains queued alerts and delivers them through the configured
// channels. Fetching deletes from the queue; a failed delivery re-queues the
// batch so no alert is lost to a flaky channel.
type Dispatcher struct {
	alerts *alerting.Queue

	channels  []channel
	batchSize int64

	log *log.Entry
}

func NewDispatcher(deps Dependencies) (Module, error) {
	module, err := deps.Config.ModuleConfig(ModuleDispatcher)
	if err != nil {
		return nil, err
	}

	if deps.Alerts == nil {
		return nil, &errutil.ConfigurationMissingError{Key: "databases.mongodb"}
	}
	if deps.NewSender == nil {
		return nil, &errutil.ConfigurationMissingError{Key: "dispatch"}
	}

	entries, err := settingSlice(module.Settings, ModuleDispatcher, "dispatchers")
	if err != nil {
		return nil, err
	}

	batchSize, err := settingInt(module.Settings, ModuleDispatcher, "batch_size", DefaultDispatchBatchSize)
	if err != nil {
		return nil, err
	}

	channels := make([]channel, 0, len(entries))

	for _, entry := range entries {
		kind, _ := entry["type"].(string)
		groups := stringsOr(entry, "groups")

		if kind == "" || len(groups) == 0 {
			return nil, &errutil.ConfigurationInvalidError{
				Key:    "modules." + ModuleDispatcher + ".settings.dispatchers",
				Reason: "entries need type and at least one group",
			}
		}

		sender, err := deps.NewSender(kind, entry)
		if err != nil {
			return nil, err
		}

		channels = append(channels, channel{kind: kind, groups: groups, sender: sender})
	}

	return &Dispatcher{
		alerts: deps.Alerts,

		channels:  channels,
		batchSize: int64(batchSize),

		log: log.WithField("component", ModuleDispatcher),
	}, nil
}

func (d *Dispatcher) Name() string {
	return ModuleDispatcher
}

func (d *Dispatcher) Run(ctx context.Context) error {
	var result *multierror.Error

	for _, ch := range d.channels {
		if err := d.drain(ctx, ch); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

// drain pulls batches for one channel until its groups are empty. The fetch
// deletes queued alerts, so a failed send re-queues the batch before
// reporting the error.
func (d *Dispatcher) drain(ctx context.Context, ch channel) error {
	for {
		batch, err := d.alerts.FetchAlerts(ctx, ch.groups, true, d.batchSize)
		if err != nil {
			// A partial batch came out of the queue before the fetch
			// failed; put it back so those alerts are not lost.
			if len(batch) > 0 {
				if requeueErr := d.alerts.AddAlerts(ctx, batch); requeueErr != nil {
					return multierror.Append(err, requeueErr)
				}
			}

			return err
		}

		if len(batch) == 0 {
			return nil
		}

		if err := ch.sender.Send(ctx, batch); err != nil {
			if requeueErr := d.alerts.AddAlerts(ctx, batch); requeueErr != nil {
				return multierror.Append(err, requeueErr)
			}

			return err
		}

		d.log.Info("dispatched ", len(batch), " alerts via ", ch.kind)
	}
}
