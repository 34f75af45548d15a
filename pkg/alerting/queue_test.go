package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	metav1 "seoaudit/pkg/meta/v1"
	"seoaudit/pkg/store"
	"seoaudit/pkg/store/memstore"
	"seoaudit/test"
)

func alert(group, message string) metav1.Alert {
	return metav1.Alert{
		Date:    time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC),
		Group:   group,
		Message: message,
		Data:    map[string]interface{}{"check": "t"},
	}
}

// The dispatch pattern: fetching with delete drains the queue, a second
// fetch returns nothing.
func TestQueueFetchAndDelete(t *testing.T) {
	ctx := context.Background()
	docs := memstore.NewStorage()
	queue := NewQueue(docs)

	alerts := []metav1.Alert{
		alert("seo", "title changed"),
		alert("seo", "description missing"),
	}
	if err := queue.AddAlerts(ctx, alerts); err != nil {
		t.Fatal(err)
	}

	fetched, err := queue.FetchAlerts(ctx, []string{"seo"}, true, 0)
	if err != nil {
		t.Fatal(err)
	}

	test.Diff(t, "fetched alerts", alerts, fetched)

	again, err := queue.FetchAlerts(ctx, []string{"seo"}, true, 0)
	if err != nil {
		t.Fatal(err)
	}

	if len(again) != 0 {
		t.Errorf("second fetch returned %d alerts, want 0", len(again))
	}
}

// Draining one group must not touch another group's alerts.
func TestQueueGroupIsolation(t *testing.T) {
	ctx := context.Background()
	docs := memstore.NewStorage()
	queue := NewQueue(docs)

	if err := queue.AddAlerts(ctx, []metav1.Alert{
		alert("seo", "a"),
		alert("ops", "b"),
	}); err != nil {
		t.Fatal(err)
	}

	seo, err := queue.FetchAlerts(ctx, []string{"seo"}, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(seo) != 1 || seo[0].Message != "a" {
		t.Fatalf("seo fetch = %+v", seo)
	}

	ops, err := queue.FetchAlerts(ctx, []string{"ops"}, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 || ops[0].Message != "b" {
		t.Fatalf("ops fetch = %+v", ops)
	}
}

func TestQueueFetchMultipleGroups(t *testing.T) {
	ctx := context.Background()
	docs := memstore.NewStorage()
	queue := NewQueue(docs)

	if err := queue.AddAlerts(ctx, []metav1.Alert{
		alert("seo", "a"),
		alert("ops", "b"),
		alert("billing", "c"),
	}); err != nil {
		t.Fatal(err)
	}

	fetched, err := queue.FetchAlerts(ctx, []string{"seo", "ops"}, false, 0)
	if err != nil {
		t.Fatal(err)
	}

	if len(fetched) != 2 {
		t.Errorf("fetched %d alerts, want 2", len(fetched))
	}
}

// A fetch without delete leaves the queue untouched.
func TestQueueFetchKeep(t *testing.T) {
	ctx := context.Background()
	docs := memstore.NewStorage()
	queue := NewQueue(docs)

	if err := queue.AddAlert(ctx, alert("seo", "a")); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		fetched, err := queue.FetchAlerts(ctx, []string{"seo"}, false, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(fetched) != 1 {
			t.Fatalf("fetch %d returned %d alerts, want 1", i, len(fetched))
		}
	}
}

func TestQueueFetchLimit(t *testing.T) {
	ctx := context.Background()
	docs := memstore.NewStorage()
	queue := NewQueue(docs)

	for i := 0; i < 5; i++ {
		if err := queue.AddAlert(ctx, alert("seo", "m")); err != nil {
			t.Fatal(err)
		}
	}

	fetched, err := queue.FetchAlerts(ctx, []string{"seo"}, true, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(fetched) != 2 {
		t.Errorf("fetched %d alerts, want 2", len(fetched))
	}

	rest, err := queue.FetchAlerts(ctx, []string{"seo"}, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 3 {
		t.Errorf("remaining %d alerts, want 3", len(rest))
	}
}

// An empty batch must not hit storage at all.
func TestQueueEmptyBatchNoWrite(t *testing.T) {
	ctx := context.Background()
	docs := memstore.NewStorage()
	queue := NewQueue(docs)

	if err := queue.AddAlerts(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if err := queue.AddAlerts(ctx, []metav1.Alert{}); err != nil {
		t.Fatal(err)
	}

	if got := docs.WriteCount(); got != 0 {
		t.Errorf("writes = %d, want 0", got)
	}
}

// Fetching from a queue that never saw an alert is a normal empty result,
// not an error.
func TestQueueFetchBeforeFirstAlert(t *testing.T) {
	ctx := context.Background()
	queue := NewQueue(memstore.NewStorage())

	fetched, err := queue.FetchAlerts(ctx, []string{"seo"}, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(fetched) != 0 {
		t.Errorf("fetched %d alerts, want 0", len(fetched))
	}
}

// flakyDeleteStore fails DeleteOne after a number of successful calls,
// leaving every other operation intact.
type flakyDeleteStore struct {
	store.Documents

	deletesBeforeFailure int
	deletes              int
}

func (s *flakyDeleteStore) DeleteOne(ctx context.Context, collection string, id interface{}) error {
	s.deletes++
	if s.deletes > s.deletesBeforeFailure {
		return errors.New("connection reset")
	}

	return s.Documents.DeleteOne(ctx, collection, id)
}

// When a delete fails mid-fetch the returned batch holds exactly the
// records that were removed from the queue, so the caller can re-add them.
func TestQueueFetchDeleteFailure(t *testing.T) {
	ctx := context.Background()
	docs := &flakyDeleteStore{Documents: memstore.NewStorage(), deletesBeforeFailure: 1}
	queue := NewQueue(docs)

	if err := queue.AddAlerts(ctx, []metav1.Alert{
		alert("seo", "a"),
		alert("seo", "b"),
		alert("seo", "c"),
	}); err != nil {
		t.Fatal(err)
	}

	fetched, err := queue.FetchAlerts(ctx, []string{"seo"}, true, 0)
	if err == nil {
		t.Fatal("delete failure must surface as fetch error")
	}
	if len(fetched) != 1 {
		t.Fatalf("fetched %d alerts, want the 1 deleted record", len(fetched))
	}

	rest, err := queue.FetchAlerts(ctx, []string{"seo"}, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 2 {
		t.Errorf("%d alerts left in queue, want 2", len(rest))
	}
}

// Alerts read back through the mongo driver carry their data subdocument
// as a driver map type; the data must survive the round trip.
func TestQueueAlertDataAfterDriverDecode(t *testing.T) {
	raw, err := bson.Marshal(metav1.Document{
		"date":    time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC),
		"group":   "seo",
		"message": "title changed",
		"data":    map[string]interface{}{"check": "t"},
	})
	if err != nil {
		t.Fatal(err)
	}

	var doc metav1.Document
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}

	test.Diff(t, "alert", alert("seo", "title changed"), alertFromDocument(doc))
}

func TestQueueFetchNoGroups(t *testing.T) {
	ctx := context.Background()
	queue := NewQueue(memstore.NewStorage())

	fetched, err := queue.FetchAlerts(ctx, nil, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(fetched) != 0 {
		t.Errorf("fetched %d alerts, want 0", len(fetched))
	}
}
