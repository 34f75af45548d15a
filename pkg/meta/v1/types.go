package v1

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CheckResult is a single validation outcome for one URL. Results are
// written exclusively by the check service, exactly once per
// (urlset, url, check, run), and never updated afterwards.
type CheckResult struct {
	Created time.Time `json:"created" bson:"created" db:"created"`

	Check string `json:"check" bson:"check" db:"check"`

	// Value is the observed value, stringified regardless of source type.
	Value string `json:"value" bson:"value" db:"value"`

	Valid bool `json:"valid" bson:"valid" db:"valid"`

	// Diff carries the prior value when the check failed because the
	// observed value changed. Empty otherwise.
	Diff string `json:"diff" bson:"diff" db:"diff"`

	Error string `json:"error" bson:"error" db:"error"`

	URL URL `json:"url" bson:"url"`
}

// Alert is one queued alert event. Group is the routing key a dispatch
// channel drains by; the same underlying event may fan out to several
// alerts, one per interested group.
type Alert struct {
	Date time.Time `json:"date" bson:"date"`

	Group string `json:"group" bson:"group"`

	Message string `json:"message" bson:"message"`

	// Data is arbitrary context handed to dispatch templates.
	Data map[string]interface{} `json:"data" bson:"data"`
}

// RetryRecord is a persisted failed outbound request batch, re-attempted on
// a later scheduled run. Deleted on success, decremented on repeated
// failure, abandoned once Retries reaches zero.
type RetryRecord struct {
	Module string `json:"module" bson:"module"`

	Property string `json:"property" bson:"property"`

	RequestDate time.Time `json:"request_date" bson:"request_date"`

	Retries int `json:"retries" bson:"retries"`
}

// Document is a schemaless raw source document as produced by aggregation
// connectors. The engine only relies on the identity fields below plus
// per-module processed markers; everything else is source-specific payload.
type Document map[string]interface{}

// Field names every raw source document carries.
const (
	FieldID                = "_id"
	FieldURL               = "url"
	FieldDate              = "date"
	FieldURLSet            = "urlset"
	FieldConfigurationHash = "configuration_hash"
)

// Status suffixes connectors append to their per-unit log lines.
const (
	StatusOK     = " - OK"
	StatusExists = " - EXISTS"
)

// ProcessedMarker returns the idempotence flag name set on a document once
// the named module has consumed it.
func ProcessedMarker(module string) string {
	return "processed_" + module
}

// URL re-hydrates the url subdocument into its value type. Documents read
// in raw mode keep the nested map form.
func (d Document) URL() (URL, bool) {
	if v, ok := d[FieldURL].(URL); ok {
		return v, true
	}

	if m, ok := d.Map(FieldURL); ok {
		return urlFromMap(m), true
	}

	return URL{}, false
}

// Map reads a nested subdocument across the map forms drivers decode into.
// The mongo driver propagates the ancestor map type, so a subdocument of a
// decoded Document is itself a Document, not a plain map.
func (d Document) Map(key string) (map[string]interface{}, bool) {
	switch v := d[key].(type) {
	case map[string]interface{}:
		return v, true
	case Document:
		return v, true
	case primitive.M:
		return v, true
	case primitive.D:
		return v.Map(), true
	default:
		return nil, false
	}
}

func urlFromMap(m map[string]interface{}) URL {
	str := func(key string) string {
		s, _ := m[key].(string)
		return s
	}

	return URL{
		Protocol: str("protocol"),
		Domain:   str("domain"),
		Path:     str("path"),
		Query:    str("query"),
	}
}

func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Time reads a timestamp field regardless of whether the document came from
// the document store driver or an in-process source.
func (d Document) Time(key string) time.Time {
	switch v := d[key].(type) {
	case time.Time:
		return v
	case primitive.DateTime:
		return v.Time()
	default:
		return time.Time{}
	}
}

// Int reads a numeric field across the integer widths drivers decode into.
func (d Document) Int(key string) (int, bool) {
	switch v := d[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
