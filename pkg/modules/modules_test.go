package modules

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"seoaudit/internal/config"
	"seoaudit/pkg/dispatch"
	metav1 "seoaudit/pkg/meta/v1"
)

// fakeSQL stands in for the relational check backend. It serves URL
// dimension lookups from memory and records every statement with its
// arguments.
type fakeSQL struct {
	execs []sqlCall

	urls   map[[4]string]int64
	nextID int64
}

type sqlCall struct {
	query string
	args  []interface{}
}

func newFakeSQL() *fakeSQL {
	return &fakeSQL{urls: map[[4]string]int64{}}
}

func (f *fakeSQL) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	key := [4]string{args[0].(string), args[1].(string), args[2].(string), args[3].(string)}

	id, ok := f.urls[key]
	if !ok {
		return sql.ErrNoRows
	}

	*(dest.(*int64)) = id

	return nil
}

func (f *fakeSQL) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	f.execs = append(f.execs, sqlCall{query: query, args: args})

	if strings.Contains(query, "ON CONFLICT") {
		key := [4]string{args[0].(string), args[1].(string), args[2].(string), args[3].(string)}

		if _, ok := f.urls[key]; !ok {
			f.nextID++
			f.urls[key] = f.nextID
		}
	}

	return nil, nil
}

// checkInserts returns the recorded check row inserts: check name mapped to
// the valid flag, in insert order.
func (f *fakeSQL) checkInserts() []sqlCall {
	var inserts []sqlCall

	for _, call := range f.execs {
		if strings.Contains(call.query, `INSERT INTO "checks_`) {
			inserts = append(inserts, call)
		}
	}

	return inserts
}

func (c sqlCall) checkName() string { return c.args[3].(string) }
func (c sqlCall) valid() bool       { return c.args[4].(bool) }
func (c sqlCall) value() string     { return c.args[5].(string) }
func (c sqlCall) diff() string      { return c.args[6].(string) }
func (c sqlCall) errText() string   { return c.args[7].(string) }

func testConfig(modules map[string]config.Module) *config.Config {
	return &config.Config{
		URLSets: []config.URLSet{
			{
				Name: "shop",
				URLs: []string{"https://shop.example.com/"},
				Checks: map[string]map[string]bool{
					"title": {
						"has_tag":      true,
						"is_empty":     false,
						"has_changed":  false,
						"has_multiple": false,
					},
				},
			},
		},
		Modules: modules,
		Hash:    "testhash",
	}
}

func crawlerDocument(urlset, rawurl, body string, day time.Time) metav1.Document {
	url, err := metav1.ParseURL(rawurl)
	if err != nil {
		panic(err)
	}

	return metav1.Document{
		metav1.FieldURLSet: urlset,
		metav1.FieldURL:    url,
		metav1.FieldDate:   day,
		"status_code":      200,
		"headers":          map[string]string{"content-type": "text/html"},
		"body":             body,
	}
}

// fakeSender records delivered batches and can be told to fail.
type fakeSender struct {
	batches [][]metav1.Alert
	fail    bool
}

func (f *fakeSender) Send(ctx context.Context, alerts []metav1.Alert) error {
	if f.fail {
		return context.DeadlineExceeded
	}

	f.batches = append(f.batches, alerts)

	return nil
}

func senderFactory(sender dispatch.Sender) SenderFactory {
	return func(kind string, settings map[string]interface{}) (dispatch.Sender, error) {
		return sender, nil
	}
}

// fakeSearchAPI serves canned rows per property and day.
type fakeSearchAPI struct {
	rows    map[string][]metav1.Document
	err     error
	queries int
}

func (f *fakeSearchAPI) Query(ctx context.Context, property string, date time.Time) ([]metav1.Document, error) {
	f.queries++

	if f.err != nil {
		return nil, f.err
	}

	return f.rows[property+"/"+date.Format("2006-01-02")], nil
}
