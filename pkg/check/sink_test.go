package check

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	metav1 "seoaudit/pkg/meta/v1"
)

// fakeDB records executed statements and serves URL dimension lookups from
// an in-memory map keyed by the 4-tuple.
type fakeDB struct {
	execs   []string
	lookups int

	urls   map[[4]string]int64
	nextID int64
}

func newFakeDB() *fakeDB {
	return &fakeDB{urls: map[[4]string]int64{}}
}

func (f *fakeDB) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	f.lookups++

	key := [4]string{args[0].(string), args[1].(string), args[2].(string), args[3].(string)}

	id, ok := f.urls[key]
	if !ok {
		return sql.ErrNoRows
	}

	*(dest.(*int64)) = id

	return nil
}

func (f *fakeDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	f.execs = append(f.execs, query)

	if strings.Contains(query, "ON CONFLICT") {
		key := [4]string{args[0].(string), args[1].(string), args[2].(string), args[3].(string)}

		if _, ok := f.urls[key]; !ok {
			f.nextID++
			f.urls[key] = f.nextID
		}
	}

	return nil, nil
}

func (f *fakeDB) countExecs(substr string) int {
	n := 0
	for _, q := range f.execs {
		if strings.Contains(q, substr) {
			n++
		}
	}
	return n
}

func checkResult(name string, url metav1.URL) metav1.CheckResult {
	return metav1.CheckResult{
		Created: time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC),
		Check:   name,
		Value:   "ok",
		Valid:   true,
		URL:     url,
	}
}

// Two checks for the same URL in one run: the URL dimension row is inserted
// once, both check rows reference it.
func TestRelationalSinkURLDimensionOnce(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()

	sink, err := NewRelationalSink(db)
	if err != nil {
		t.Fatal(err)
	}

	url := metav1.URL{Protocol: "https", Domain: "shop.example.com", Path: "/"}

	if err := sink.AddCheck(ctx, "shop", checkResult("metatags-has_title", url)); err != nil {
		t.Fatal(err)
	}
	if err := sink.AddCheck(ctx, "shop", checkResult("metatags-has_description", url)); err != nil {
		t.Fatal(err)
	}

	if got := db.countExecs("ON CONFLICT"); got != 1 {
		t.Errorf("url inserts = %d, want 1", got)
	}
	if got := db.countExecs(`INSERT INTO "checks_shop"`); got != 2 {
		t.Errorf("check inserts = %d, want 2", got)
	}
}

// The memo must key on the full URL string including the query, two URLs
// differing only in query are distinct dimension rows.
func TestRelationalSinkDistinctQueries(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()

	sink, err := NewRelationalSink(db)
	if err != nil {
		t.Fatal(err)
	}

	base := metav1.URL{Protocol: "https", Domain: "shop.example.com", Path: "/list"}
	withQuery := base
	withQuery.Query = "page=2"

	if err := sink.AddCheck(ctx, "shop", checkResult("c", base)); err != nil {
		t.Fatal(err)
	}
	if err := sink.AddCheck(ctx, "shop", checkResult("c", withQuery)); err != nil {
		t.Fatal(err)
	}

	if got := db.countExecs("ON CONFLICT"); got != 2 {
		t.Errorf("url inserts = %d, want 2", got)
	}
}

// An existing dimension row is found by lookup and never re-inserted, also
// not across separate sink instances.
func TestRelationalSinkReusesExistingURL(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	db.urls[[4]string{"https", "shop.example.com", "/", ""}] = 7

	sink, err := NewRelationalSink(db)
	if err != nil {
		t.Fatal(err)
	}

	url := metav1.URL{Protocol: "https", Domain: "shop.example.com", Path: "/"}

	if err := sink.AddCheck(ctx, "shop", checkResult("c", url)); err != nil {
		t.Fatal(err)
	}

	if got := db.countExecs("ON CONFLICT"); got != 0 {
		t.Errorf("url inserts = %d, want 0", got)
	}
}

func TestRelationalSinkMemoSkipsLookup(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()

	sink, err := NewRelationalSink(db)
	if err != nil {
		t.Fatal(err)
	}

	url := metav1.URL{Protocol: "https", Domain: "shop.example.com", Path: "/"}

	if err := sink.AddCheck(ctx, "shop", checkResult("a", url)); err != nil {
		t.Fatal(err)
	}

	lookupsAfterFirst := db.lookups

	if err := sink.AddCheck(ctx, "shop", checkResult("b", url)); err != nil {
		t.Fatal(err)
	}

	if db.lookups != lookupsAfterFirst {
		t.Errorf("second check issued %d extra lookups", db.lookups-lookupsAfterFirst)
	}
}

func TestNewSinkRequiresBackend(t *testing.T) {
	if _, err := NewRelationalSink(nil); err == nil {
		t.Error("nil db must be rejected")
	}
	if _, err := NewWarehouseSink(nil); err == nil {
		t.Error("nil warehouse must be rejected")
	}
}

func TestTableNames(t *testing.T) {
	if got := checksTableName("shop"); got != "checks_shop" {
		t.Errorf("got %q", got)
	}
	if got := urlsTableName("my-shop.de"); got != "urls_my_shop_de" {
		t.Errorf("got %q", got)
	}
}
