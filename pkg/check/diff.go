package check

import (
	"context"
	"errors"

	metav1 "seoaudit/pkg/meta/v1"
	"seoaudit/pkg/store"
)

// Extractor pulls the value of interest out of a raw document. The same
// extractor runs against the current document and its predecessor so both
// values are derived identically.
type Extractor func(doc metav1.Document) string

// FieldDiffSpec describes one has-X-changed style check.
type FieldDiffSpec struct {
	// Collection holding the raw documents.
	Collection string

	// Module whose processed marker a prior document must carry to count
	// as predecessor.
	Module string

	Extract Extractor

	// AssertChanged is the configured expectation: true means a change is
	// the valid outcome.
	AssertChanged bool

	// ChangedError is the error text recorded when the check is invalid
	// because the value actually changed.
	ChangedError string
}

// DiffResult is the outcome of a historical field comparison. Diff is only
// populated when the check is invalid due to an actual change; a
// no-change-but-invalid outcome never carries a diff.
type DiffResult struct {
	Value string
	Valid bool
	Diff  string
	Error string
}

// FieldDiff compares the current value of a field against the most recent
// prior document for the same URL identity already consumed by the module.
//
// When no predecessor exists the prior value falls back to the empty
// string, so the first observation of a URL always reads as changed.
func FieldDiff(ctx context.Context, docs store.Documents, spec FieldDiffSpec, current metav1.Document, url metav1.URL) (DiffResult, error) {
	valueNew := spec.Extract(current)

	filter := metav1.Document{
		"url.protocol":                     url.Protocol,
		"url.domain":                       url.Domain,
		"url.path":                         url.Path,
		"url.query":                        url.Query,
		metav1.ProcessedMarker(spec.Module): metav1.Document{"$exists": true},
	}

	valueLast := ""

	last, err := docs.FindLastSorted(ctx, spec.Collection, filter, store.Sort{Field: metav1.FieldDate, Descending: true})

	switch {
	case err == nil:
		valueLast = spec.Extract(last)
	case errors.Is(err, store.ErrNoDocuments):
	case errors.Is(err, store.ErrCollectionDoesNotExist):
	default:
		return DiffResult{}, err
	}

	changed := valueNew != valueLast
	valid := changed == spec.AssertChanged

	result := DiffResult{
		Value: valueNew,
		Valid: valid,
	}

	if !valid && changed {
		result.Diff = valueLast
		result.Error = spec.ChangedError
	}

	return result, nil
}
