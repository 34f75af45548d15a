package alerting

import (
	"context"
	"encoding/json"
	"errors"

	log "github.com/sirupsen/logrus"

	metav1 "seoaudit/pkg/meta/v1"
	"seoaudit/pkg/pubsub"
	"seoaudit/pkg/store"
)

const CollectionAlertQueue = "alert_queue"

// TopicAlertQueued is published after an enqueue when a pubsub channel is
// configured, so dispatchers can wake before their next scheduled run.
const TopicAlertQueued = "alerts.queued"

type Option func(*Queue)

func WithPubSub(ps pubsub.PubSub) Option {
	return func(q *Queue) {
		q.pubsub = ps
	}
}

// Queue is the durable alert queue. Producers append alerts keyed by group;
// dispatch channels drain them with fetch-and-delete semantics. Delivery is
// at-least-once: a dispatcher that fails to send must re-add the fetched
// batch.
type Queue struct {
	docs   store.Documents
	pubsub pubsub.PubSub
	log    *log.Entry
}

func NewQueue(docs store.Documents, opts ...Option) *Queue {
	q := &Queue{
		docs: docs,
		log:  log.WithField("component", "alertqueue"),
	}

	for _, o := range opts {
		o(q)
	}

	return q
}

func (q *Queue) AddAlert(ctx context.Context, alert metav1.Alert) error {
	return q.AddAlerts(ctx, []metav1.Alert{alert})
}

// AddAlerts appends alerts to the queue. An empty batch issues no write.
func (q *Queue) AddAlerts(ctx context.Context, alerts []metav1.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	docs := make([]metav1.Document, len(alerts))

	for i, alert := range alerts {
		data := alert.Data
		if data == nil {
			data = map[string]interface{}{}
		}

		docs[i] = metav1.Document{
			"date":    alert.Date,
			"group":   alert.Group,
			"message": alert.Message,
			"data":    data,
		}
	}

	if err := q.docs.InsertDocuments(ctx, CollectionAlertQueue, docs); err != nil {
		return err
	}

	q.notify(alerts)

	return nil
}

// FetchAlerts returns queued alerts whose group is in the requested set.
// With delete true (the default dispatch pattern) each record is removed
// from the queue as it is read.
func (q *Queue) FetchAlerts(ctx context.Context, groups []string, deleteFetched bool, limit int64) ([]metav1.Alert, error) {
	alerts := []metav1.Alert{}

	if len(groups) == 0 {
		return alerts, nil
	}

	has, err := q.docs.HasCollection(ctx, CollectionAlertQueue)
	if err != nil {
		return nil, err
	}
	if !has {
		return alerts, nil
	}

	docs, err := q.docs.Find(ctx, CollectionAlertQueue, groupFilter(groups), &store.FindOptions{Raw: true, Limit: limit})
	if err != nil {
		if errors.Is(err, store.ErrCollectionDoesNotExist) {
			return alerts, nil
		}
		return nil, err
	}

	for _, doc := range docs {
		// Delete before collecting so a partial batch returned alongside
		// an error holds exactly the records no longer in the queue; the
		// caller re-adds those instead of losing them.
		if deleteFetched {
			if err := q.docs.DeleteOne(ctx, CollectionAlertQueue, doc[metav1.FieldID]); err != nil {
				return alerts, err
			}
		}

		alerts = append(alerts, alertFromDocument(doc))
	}

	return alerts, nil
}

func groupFilter(groups []string) metav1.Document {
	if len(groups) == 1 {
		return metav1.Document{"group": groups[0]}
	}

	branches := make([]metav1.Document, len(groups))
	for i, group := range groups {
		branches[i] = metav1.Document{"group": group}
	}

	return metav1.Document{"$or": branches}
}

func alertFromDocument(doc metav1.Document) metav1.Alert {
	data, _ := doc.Map("data")

	return metav1.Alert{
		Date:    doc.Time("date"),
		Group:   doc.String("group"),
		Message: doc.String("message"),
		Data:    data,
	}
}

func (q *Queue) notify(alerts []metav1.Alert) {
	if q.pubsub == nil {
		return
	}

	groups := map[string]int{}
	for _, alert := range alerts {
		groups[alert.Group]++
	}

	payload, err := json.Marshal(groups)
	if err != nil {
		return
	}

	if err := q.pubsub.Publish(TopicAlertQueued, payload); err != nil {
		q.log.Warn("alert queue notify failed: ", err)
	}
}
