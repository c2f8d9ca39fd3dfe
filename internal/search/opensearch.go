// Package search mirrors the denormalized book view into OpenSearch so the
// catalog gets full-text queries over titles and resolved names. Indexing
// rides the commit listener; the index is a cache of the read model and can
// always be rebuilt from it.
package search

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchutil"
	"github.com/sirupsen/logrus"

	"github.com/aalmada/BookStore-sub003/internal/readmodel"
)

// Config holds the OpenSearch connection settings.
type Config struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool
	Index         string
}

// DefaultIndex is used when Config.Index is empty.
const DefaultIndex = "bookstore-books"

// Indexer keeps the book search index in step with the read model. All
// tenants share one index; every document carries its tenant and queries
// filter on it.
type Indexer struct {
	client *opensearch.Client
	index  string
	logger *logrus.Logger
}

// indexedBook is the indexed document: the search view plus its tenant.
type indexedBook struct {
	Tenant string `json:"tenant"`
	readmodel.BookSearchDoc
}

// NewIndexer connects to OpenSearch and verifies the connection.
func NewIndexer(cfg Config, logger *logrus.Logger) (*Indexer, error) {
	if cfg.Index == "" {
		cfg.Index = DefaultIndex
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.TLSSkipVerify,
			},
		},
	}
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}

	info, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("ping opensearch: %w", err)
	}
	defer info.Body.Close()
	if info.IsError() {
		return nil, fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	return &Indexer{client: client, index: cfg.Index, logger: logger}, nil
}

// EnsureIndex creates the index with its mapping when it does not exist yet.
func (ix *Indexer) EnsureIndex(ctx context.Context) error {
	exists, err := ix.client.Indices.Exists([]string{ix.index})
	if err != nil {
		return err
	}
	defer exists.Body.Close()
	if exists.StatusCode == 200 {
		return nil
	}

	mapping := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"tenant":        map[string]any{"type": "keyword"},
				"id":            map[string]any{"type": "keyword"},
				"title":         map[string]any{"type": "text"},
				"authorNames":   map[string]any{"type": "text"},
				"publisherName": map[string]any{"type": "text"},
				"categoryNames": map[string]any{"type": "text"},
				"price":         map[string]any{"type": "long"},
				"version":       map[string]any{"type": "long"},
				"deleted":       map[string]any{"type": "boolean"},
				"updatedAt":     map[string]any{"type": "date", "format": "epoch_millis"},
			},
		},
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return err
	}

	res, err := ix.client.Indices.Create(
		ix.index,
		ix.client.Indices.Create.WithContext(ctx),
		ix.client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index %s: %s", ix.index, res.Status())
	}
	ix.logger.WithField("index", ix.index).Info("search index created")
	return nil
}

// Index upserts a batch of search documents. Soft-deleted books stay in the
// index with their deleted flag set; queries filter them out.
func (ix *Indexer) Index(ctx context.Context, tenant string, docs []readmodel.BookSearchDoc) error {
	if ix == nil || len(docs) == 0 {
		return nil
	}

	bi, err := opensearchutil.NewBulkIndexer(opensearchutil.BulkIndexerConfig{
		Client: ix.client,
		Index:  ix.index,
	})
	if err != nil {
		return fmt.Errorf("create bulk indexer: %w", err)
	}

	// OnFailure runs on the indexer's worker goroutines.
	var failed atomic.Int64
	for _, doc := range docs {
		data, err := json.Marshal(indexedBook{Tenant: tenant, BookSearchDoc: doc})
		if err != nil {
			return err
		}
		err = bi.Add(ctx, opensearchutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: tenant + ":" + doc.ID,
			Body:       bytes.NewReader(data),
			OnFailure: func(_ context.Context, _ opensearchutil.BulkIndexerItem, res opensearchutil.BulkIndexerResponseItem, err error) {
				failed.Add(1)
				if err != nil {
					ix.logger.WithError(err).Error("failed to index book")
				} else {
					ix.logger.WithFields(logrus.Fields{
						"type":   res.Error.Type,
						"reason": res.Error.Reason,
					}).Error("failed to index book")
				}
			},
		})
		if err != nil {
			return fmt.Errorf("add to bulk indexer: %w", err)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return fmt.Errorf("flush bulk indexer: %w", err)
	}
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d documents failed to index", n, len(docs))
	}
	return nil
}

// Result is one page of search hits.
type Result struct {
	Items []readmodel.BookSearchDoc `json:"items"`
	Total int                       `json:"total"`
}

// Search runs a full-text query over the tenant's books.
func (ix *Indexer) Search(ctx context.Context, tenant, query string, size int) (Result, error) {
	if size <= 0 {
		size = 25
	}
	if size > 200 {
		size = 200
	}

	// deleted is omitted from live documents, so exclusion is a must_not
	// on deleted:true rather than a term filter on false.
	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{
					"multi_match": map[string]any{
						"query":  query,
						"fields": []string{"title^2", "authorNames", "publisherName", "categoryNames"},
					},
				},
				"filter": []map[string]any{
					{"term": map[string]any{"tenant": tenant}},
				},
				"must_not": []map[string]any{
					{"term": map[string]any{"deleted": true}},
				},
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return Result{}, fmt.Errorf("encode query: %w", err)
	}

	res, err := ix.client.Search(
		ix.client.Search.WithContext(ctx),
		ix.client.Search.WithIndex(ix.index),
		ix.client.Search.WithBody(&buf),
		ix.client.Search.WithSize(size),
		ix.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return Result{}, fmt.Errorf("search request: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return Result{}, fmt.Errorf("search error: %s", res.Status())
	}

	var searchResult struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source indexedBook `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchResult); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}

	out := Result{
		Items: make([]readmodel.BookSearchDoc, 0, len(searchResult.Hits.Hits)),
		Total: searchResult.Hits.Total.Value,
	}
	for _, hit := range searchResult.Hits.Hits {
		out.Items = append(out.Items, hit.Source.BookSearchDoc)
	}
	return out, nil
}
