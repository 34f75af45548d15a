package check

import (
	"context"
	"testing"
	"time"

	metav1 "seoaudit/pkg/meta/v1"
	"seoaudit/pkg/store/memstore"
)

func titleSpec(assertChanged bool) FieldDiffSpec {
	return FieldDiffSpec{
		Collection:    "crawler",
		Module:        "metatags",
		Extract:       func(doc metav1.Document) string { return doc.String("title") },
		AssertChanged: assertChanged,
		ChangedError:  "title has changed",
	}
}

func crawlDoc(url metav1.URL, title string, day time.Time, processed bool) metav1.Document {
	doc := metav1.Document{
		metav1.FieldURL:  url,
		metav1.FieldDate: day,
		"title":          title,
	}

	if processed {
		doc[metav1.ProcessedMarker("metatags")] = day
	}

	return doc
}

func TestFieldDiffAgainstPredecessor(t *testing.T) {
	ctx := context.Background()
	docs := memstore.NewStorage()

	url := metav1.URL{Protocol: "https", Domain: "example.com", Path: "/"}
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	// Two consumed runs plus the current, unconsumed one. The diff must
	// compare against the latest consumed predecessor, not the oldest.
	history := []metav1.Document{
		crawlDoc(url, "Old Title", day, true),
		crawlDoc(url, "Mid Title", day.AddDate(0, 0, 1), true),
	}
	if err := docs.InsertDocuments(ctx, "crawler", history); err != nil {
		t.Fatal(err)
	}

	current := crawlDoc(url, "New Title", day.AddDate(0, 0, 2), false)

	result, err := FieldDiff(ctx, docs, titleSpec(false), current, url)
	if err != nil {
		t.Fatal(err)
	}

	if result.Valid {
		t.Error("changed title must be invalid when no change is asserted")
	}
	if result.Value != "New Title" {
		t.Errorf("value = %q", result.Value)
	}
	if result.Diff != "Mid Title" {
		t.Errorf("diff = %q, want latest predecessor value", result.Diff)
	}
	if result.Error != "title has changed" {
		t.Errorf("error = %q", result.Error)
	}
}

func TestFieldDiffUnchanged(t *testing.T) {
	ctx := context.Background()
	docs := memstore.NewStorage()

	url := metav1.URL{Protocol: "https", Domain: "example.com", Path: "/"}
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	if err := docs.InsertDocument(ctx, "crawler", crawlDoc(url, "Stable", day, true)); err != nil {
		t.Fatal(err)
	}

	current := crawlDoc(url, "Stable", day.AddDate(0, 0, 1), false)

	result, err := FieldDiff(ctx, docs, titleSpec(false), current, url)
	if err != nil {
		t.Fatal(err)
	}

	if !result.Valid {
		t.Error("unchanged title must be valid when no change is asserted")
	}
	if result.Diff != "" || result.Error != "" {
		t.Errorf("no-change outcome must not carry diff or error, got %q / %q", result.Diff, result.Error)
	}
}

// A URL observed for the first time has no predecessor; the prior value
// falls back to empty, so any non-empty current value reads as changed.
func TestFieldDiffFirstObservation(t *testing.T) {
	ctx := context.Background()
	docs := memstore.NewStorage()

	url := metav1.URL{Protocol: "https", Domain: "example.com", Path: "/new"}
	current := crawlDoc(url, "Fresh Page", time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), false)

	result, err := FieldDiff(ctx, docs, titleSpec(false), current, url)
	if err != nil {
		t.Fatal(err)
	}

	if result.Valid {
		t.Error("first observation reads as changed and must fail the no-change assertion")
	}
	if result.Diff != "" {
		t.Errorf("diff = %q, want empty prior value", result.Diff)
	}
}

// Documents not yet consumed by the module carry no processed marker and
// must be invisible to the predecessor lookup, otherwise a backlogged run
// would diff against itself.
func TestFieldDiffIgnoresUnprocessed(t *testing.T) {
	ctx := context.Background()
	docs := memstore.NewStorage()

	url := metav1.URL{Protocol: "https", Domain: "example.com", Path: "/"}
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	history := []metav1.Document{
		crawlDoc(url, "Consumed", day, true),
		crawlDoc(url, "Backlog", day.AddDate(0, 0, 1), false),
	}
	if err := docs.InsertDocuments(ctx, "crawler", history); err != nil {
		t.Fatal(err)
	}

	current := crawlDoc(url, "Backlog", day.AddDate(0, 0, 2), false)

	result, err := FieldDiff(ctx, docs, titleSpec(false), current, url)
	if err != nil {
		t.Fatal(err)
	}

	// Against the consumed predecessor the value did change.
	if result.Valid {
		t.Error("diff must run against the consumed predecessor only")
	}
	if result.Diff != "Consumed" {
		t.Errorf("diff = %q", result.Diff)
	}
}

// The lookup filters on the full URL identity; another page of the same
// domain must never serve as predecessor.
func TestFieldDiffIsolatedPerURL(t *testing.T) {
	ctx := context.Background()
	docs := memstore.NewStorage()

	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	other := metav1.URL{Protocol: "https", Domain: "example.com", Path: "/other"}

	if err := docs.InsertDocument(ctx, "crawler", crawlDoc(other, "Other Page", day, true)); err != nil {
		t.Fatal(err)
	}

	url := metav1.URL{Protocol: "https", Domain: "example.com", Path: "/"}
	current := crawlDoc(url, "Other Page", day.AddDate(0, 0, 1), false)

	result, err := FieldDiff(ctx, docs, titleSpec(true), current, url)
	if err != nil {
		t.Fatal(err)
	}

	// With no predecessor for this exact URL the value reads as changed,
	// which satisfies the asserted-changed expectation.
	if !result.Valid {
		t.Error("predecessor lookup leaked across URLs")
	}
}
