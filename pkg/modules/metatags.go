package modules

import (
	"context"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"seoaudit/internal/config"
	"seoaudit/pkg/check"
	metav1 "seoaudit/pkg/meta/v1"
	"seoaudit/pkg/store"
	"seoaudit/pkg/store/mgostore"
)

// Check names as recorded on check results. The per-urlset checks block
// selects which of these run and which outcome is asserted.
const (
	CheckHasTitle            = "metatags-has_title"
	CheckIsTitleEmpty        = "metatags-is_title_empty"
	CheckHasTitleChanged     = "metatags-has_title_changed"
	CheckHasMultipleTitles   = "metatags-has_multiple_titles"
	CheckHasDescription      = "metatags-has_description"
	CheckIsDescriptionEmpty  = "metatags-is_description_empty"
	CheckDescriptionChanged  = "metatags-has_description_changed"
	CheckMultipleDescription = "metatags-has_multiple_descriptions"
)

// Metatags validates title and description tags on crawled pages. It
// consumes crawler documents exactly once, marking each with its processed
// flag, and writes one check result row per configured check and URL.
type Metatags struct {
	docs    store.Documents
	cfg     *config.Config
	module  config.Module
	service *check.Service

	log *log.Entry
}

func NewMetatags(deps Dependencies) (Module, error) {
	if deps.Docs == nil {
		return nil, ErrDocumentsRequired
	}

	module, err := deps.Config.ModuleConfig(ModuleMetatags)
	if err != nil {
		return nil, err
	}

	sink, err := sinkFor(deps, module.Database)
	if err != nil {
		return nil, err
	}

	return &Metatags{
		docs:    deps.Docs,
		cfg:     deps.Config,
		module:  module,
		service: check.NewService(sink),

		log: log.WithField("component", ModuleMetatags),
	}, nil
}

func (m *Metatags) Name() string {
	return ModuleMetatags
}

func (m *Metatags) Run(ctx context.Context) error {
	var result *multierror.Error

	for _, name := range m.module.URLSets {
		urlset := m.cfg.URLSet(name)

		if err := m.processURLSet(ctx, urlset); err != nil {
			result = multierror.Append(result, err)
			continue
		}

		// One flush per urlset keeps a failing urlset from holding back
		// results of the ones already done.
		if err := m.service.Commit(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

func (m *Metatags) processURLSet(ctx context.Context, urlset *config.URLSet) error {
	filter := metav1.Document{
		metav1.FieldURLSet: urlset.Name,
		metav1.ProcessedMarker(ModuleMetatags): metav1.Document{"$exists": false},
	}

	docs, err := m.docs.Find(ctx, mgostore.DefaultCollectionCrawler, filter)
	if err != nil {
		// Nothing crawled yet means nothing to validate.
		if errors.Is(err, store.ErrCollectionDoesNotExist) {
			return nil
		}
		return err
	}

	for _, doc := range docs {
		if err := m.processDocument(ctx, urlset, doc); err != nil {
			return err
		}

		update := metav1.Document{metav1.ProcessedMarker(ModuleMetatags): doc.Time(metav1.FieldDate)}

		if err := m.docs.UpdateOne(ctx, mgostore.DefaultCollectionCrawler, doc[metav1.FieldID], update); err != nil {
			return err
		}
	}

	return nil
}

func (m *Metatags) processDocument(ctx context.Context, urlset *config.URLSet, doc metav1.Document) error {
	url, ok := doc.URL()
	if !ok {
		m.log.Warn("document without url, skipping")
		return nil
	}

	page, err := goquery.NewDocumentFromReader(strings.NewReader(doc.String("body")))
	if err != nil {
		return err
	}

	if checks, ok := urlset.Checks["title"]; ok {
		if err := m.runTagChecks(ctx, urlset, doc, url, checks, titleTag{page}); err != nil {
			return err
		}
	}

	if checks, ok := urlset.Checks["description"]; ok {
		if err := m.runTagChecks(ctx, urlset, doc, url, checks, descriptionTag{page}); err != nil {
			return err
		}
	}

	return nil
}

func (m *Metatags) runTagChecks(ctx context.Context, urlset *config.URLSet, doc metav1.Document, url metav1.URL, checks map[string]bool, tag metaTag) error {
	count := tag.count()
	value := ""

	// A page carrying several tags of the same kind has no single canonical
	// value; only extract when the tag is unambiguous.
	if count == 1 {
		value = tag.value()
	}

	if assert, ok := checks["has_tag"]; ok {
		valid := (count > 0) == assert

		errText := ""
		if !valid {
			errText = tag.name() + " missing"
		}

		if err := m.service.AddCheck(ctx, urlset.Name, tag.checkName(CheckHasTitle, CheckHasDescription), value, valid, "", errText, url); err != nil {
			return err
		}
	}

	if assert, ok := checks["is_empty"]; ok {
		empty := strings.TrimSpace(value) == ""
		valid := empty == assert

		errText := ""
		if empty {
			errText = tag.name() + " is empty"
		}

		if err := m.service.AddCheck(ctx, urlset.Name, tag.checkName(CheckIsTitleEmpty, CheckIsDescriptionEmpty), value, valid, "", errText, url); err != nil {
			return err
		}
	}

	if assert, ok := checks["has_changed"]; ok {
		spec := check.FieldDiffSpec{
			Collection:    mgostore.DefaultCollectionCrawler,
			Module:        ModuleMetatags,
			Extract:       tag.extractor(),
			AssertChanged: assert,
			ChangedError:  tag.name() + " has changed",
		}

		diff, err := check.FieldDiff(ctx, m.docs, spec, doc, url)
		if err != nil {
			return err
		}

		if err := m.service.AddCheck(ctx, urlset.Name, tag.checkName(CheckHasTitleChanged, CheckDescriptionChanged), diff.Value, diff.Valid, diff.Diff, diff.Error, url); err != nil {
			return err
		}
	}

	if assert, ok := checks["has_multiple"]; ok {
		valid := (count > 1) == assert

		errText := ""
		if count > 1 {
			errText = "several " + tag.name() + " tags on page detected"
		}

		if err := m.service.AddCheck(ctx, urlset.Name, tag.checkName(CheckHasMultipleTitles, CheckMultipleDescription), value, valid, "", errText, url); err != nil {
			return err
		}
	}

	return nil
}

// metaTag abstracts title vs description so both run the same check set.
type metaTag interface {
	name() string
	count() int
	value() string
	checkName(title, description string) string
	extractor() check.Extractor
}

type titleTag struct {
	page *goquery.Document
}

func (t titleTag) name() string { return "title" }

func (t titleTag) count() int {
	return t.page.Find("title").Length()
}

func (t titleTag) value() string {
	return strings.TrimSpace(t.page.Find("title").First().Text())
}

func (t titleTag) checkName(title, _ string) string { return title }

func (t titleTag) extractor() check.Extractor {
	return func(doc metav1.Document) string {
		return extractTag(doc, func(page *goquery.Document) (int, string) {
			return page.Find("title").Length(), strings.TrimSpace(page.Find("title").First().Text())
		})
	}
}

type descriptionTag struct {
	page *goquery.Document
}

func (d descriptionTag) name() string { return "description" }

func (d descriptionTag) count() int {
	return d.page.Find(`meta[name="description"]`).Length()
}

func (d descriptionTag) value() string {
	content, _ := d.page.Find(`meta[name="description"]`).First().Attr("content")
	return strings.TrimSpace(content)
}

func (d descriptionTag) checkName(_, description string) string { return description }

func (d descriptionTag) extractor() check.Extractor {
	return func(doc metav1.Document) string {
		return extractTag(doc, func(page *goquery.Document) (int, string) {
			content, _ := page.Find(`meta[name="description"]`).First().Attr("content")
			return page.Find(`meta[name="description"]`).Length(), strings.TrimSpace(content)
		})
	}
}

// extractTag re-parses a stored document body. Parsing the predecessor with
// the same code path as the current page keeps diff values comparable.
func extractTag(doc metav1.Document, pick func(*goquery.Document) (int, string)) string {
	page, err := goquery.NewDocumentFromReader(strings.NewReader(doc.String("body")))
	if err != nil {
		return ""
	}

	count, value := pick(page)
	if count != 1 {
		return ""
	}

	return value
}
