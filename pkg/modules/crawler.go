package modules

import (
	"context"
	"io/ioutil"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"seoaudit/internal/config"
	metav1 "seoaudit/pkg/meta/v1"
	"seoaudit/pkg/store"
	"seoaudit/pkg/store/mgostore"
)

const (
	DefaultMaxParallel    = 10
	HTTPClientTimeout     = time.Second * 30
	DefaultMaxRedirects   = 10
	DefaultRetryElapsedMS = 20000
)

// Crawler fetches every configured URL and stores one raw document per
// request in the crawler collection. Each run is a full sweep; downstream
// modules pick up unprocessed documents on their own schedule.
type Crawler struct {
	docs store.Documents
	cfg  *config.Config

	module config.Module

	maxParallel  int
	requestDelay time.Duration
	chunkDelay   time.Duration
	retryElapsed time.Duration

	log *log.Entry
}

func NewCrawler(deps Dependencies) (Module, error) {
	if deps.Docs == nil {
		return nil, ErrDocumentsRequired
	}

	module, err := deps.Config.ModuleConfig(ModuleCrawler)
	if err != nil {
		return nil, err
	}

	maxParallel, err := settingInt(module.Settings, ModuleCrawler, "max_parallel", DefaultMaxParallel)
	if err != nil {
		return nil, err
	}

	requestDelay, err := settingInt(module.Settings, ModuleCrawler, "request_delay_ms", 0)
	if err != nil {
		return nil, err
	}

	chunkDelay, err := settingInt(module.Settings, ModuleCrawler, "chunk_delay_ms", 0)
	if err != nil {
		return nil, err
	}

	retryElapsed, err := settingInt(module.Settings, ModuleCrawler, "retry_elapsed_ms", DefaultRetryElapsedMS)
	if err != nil {
		return nil, err
	}

	return &Crawler{
		docs:   deps.Docs,
		cfg:    deps.Config,
		module: module,

		maxParallel:  maxParallel,
		requestDelay: time.Duration(requestDelay) * time.Millisecond,
		chunkDelay:   time.Duration(chunkDelay) * time.Millisecond,
		retryElapsed: time.Duration(retryElapsed) * time.Millisecond,

		log: log.WithField("component", ModuleCrawler),
	}, nil
}

func (c *Crawler) Name() string {
	return ModuleCrawler
}

func (c *Crawler) Run(ctx context.Context) error {
	var result *multierror.Error

	for _, name := range c.module.URLSets {
		urlset := c.cfg.URLSet(name)

		c.log.Info("crawling urlset: ", name)

		docs, err := c.crawlURLSet(ctx, urlset)
		if err != nil {
			result = multierror.Append(result, err)
		}

		if len(docs) == 0 {
			continue
		}

		if err := c.docs.InsertDocuments(ctx, mgostore.DefaultCollectionCrawler, docs); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

// crawlURLSet sweeps one urlset in chunks of maxParallel. Requests inside a
// chunk start staggered by requestDelay each; chunks are separated by
// chunkDelay so a single run never hammers one origin.
func (c *Crawler) crawlURLSet(ctx context.Context, urlset *config.URLSet) ([]metav1.Document, error) {
	var (
		mu     sync.Mutex
		docs   []metav1.Document
		errs   *multierror.Error
		runDay = time.Now().UTC()
	)

	for offset := 0; offset < len(urlset.URLs); offset += c.maxParallel {
		if offset > 0 && c.chunkDelay > 0 {
			time.Sleep(c.chunkDelay)
		}

		end := offset + c.maxParallel
		if end > len(urlset.URLs) {
			end = len(urlset.URLs)
		}

		wg := sync.WaitGroup{}

		for i, rawURL := range urlset.URLs[offset:end] {
			wg.Add(1)

			go func(i int, rawURL string) {
				defer wg.Done()

				time.Sleep(time.Duration(i) * c.requestDelay)

				doc, err := c.fetch(ctx, urlset.Name, rawURL, runDay)

				mu.Lock()
				defer mu.Unlock()

				if err != nil {
					errs = multierror.Append(errs, err)
				}
				if doc != nil {
					docs = append(docs, doc)
				}
			}(i, rawURL)
		}

		wg.Wait()
	}

	return docs, errs.ErrorOrNil()
}

func (c *Crawler) fetch(ctx context.Context, urlset, rawURL string, runDay time.Time) (metav1.Document, error) {
	parsed, err := metav1.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	doc := metav1.Document{
		metav1.FieldURLSet:            urlset,
		metav1.FieldURL:               parsed,
		metav1.FieldDate:              runDay,
		metav1.FieldConfigurationHash: c.cfg.Hash,
	}

	var redirects []string

	client := &http.Client{
		Timeout: HTTPClientTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= DefaultMaxRedirects {
				return http.ErrUseLastResponse
			}
			redirects = append(redirects, req.URL.String())
			return nil
		},
	}

	var (
		resp *http.Response
		ttfb time.Duration
	)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.retryElapsed

	err = backoff.Retry(func() error {
		redirects = redirects[:0]

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		start := time.Now()
		resp, err = client.Do(req)
		ttfb = time.Since(start)

		return err
	}, bo)

	if err != nil {
		c.log.Error(err)

		doc["body"] = "Error: " + err.Error()
		doc["status_code"] = 0

		return doc, nil
	}

	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		c.log.Error(err)
		body = nil
	}

	headers := map[string]string{}
	for name, values := range resp.Header {
		headers[strings.ToLower(name)] = strings.Join(values, ", ")
	}

	doc["status_code"] = resp.StatusCode
	doc["num_redirects"] = len(redirects)
	doc["redirects"] = redirects
	doc["ttfb_ms"] = ttfb.Milliseconds()
	doc["body"] = string(body)
	doc["headers"] = headers

	return doc, nil
}
