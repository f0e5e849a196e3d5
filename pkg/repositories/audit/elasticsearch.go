package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/fadedpez/wagerline/internal/logging"
	"github.com/fadedpez/wagerline/pkg/entities"
)

// Document families; each gets its own monthly indices and alias
const (
	KindLedger = "ledger"
	KindRounds = "rounds"
)

const indexDateLayout = "2006-01"

var mappings = map[string]string{
	KindLedger: `{
		"mappings": {
			"properties": {
				"id": { "type": "keyword" },
				"account_id": { "type": "keyword" },
				"kind": { "type": "keyword" },
				"amount": { "type": "keyword" },
				"status": { "type": "keyword" },
				"description": { "type": "text" },
				"reference_id": { "type": "keyword" },
				"sequence": { "type": "long" },
				"balance_after": { "type": "keyword" },
				"timestamp": { "type": "date" }
			}
		},
		"settings": {
			"number_of_shards": 1,
			"number_of_replicas": 1,
			"refresh_interval": "1s"
		}
	}`,
	KindRounds: `{
		"mappings": {
			"properties": {
				"game": { "type": "keyword" },
				"period_id": { "type": "long" },
				"outcome": { "type": "object", "enabled": false },
				"bets": { "type": "integer" },
				"winners": { "type": "integer" },
				"biased": { "type": "integer" },
				"settled_at": { "type": "date" }
			}
		},
		"settings": {
			"number_of_shards": 1,
			"number_of_replicas": 1,
			"refresh_interval": "1s"
		}
	}`,
}

// Config holds configuration options for the audit index
type Config struct {
	URL             string
	Username        string
	Password        string
	IndexPrefix     string
	RetentionPeriod time.Duration // How long monthly indices are kept
	Transport       http.RoundTripper
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		URL:             "http://localhost:9200",
		IndexPrefix:     "wagerline",
		RetentionPeriod: 90 * 24 * time.Hour,
	}
}

// Repository writes ledger entries and round results to Elasticsearch
type Repository struct {
	client *elasticsearch.Client
	config *Config
	logger *logging.Logger
	now    func() time.Time

	mu      sync.Mutex
	created map[string]bool
}

// NewRepository creates the Elasticsearch client
func NewRepository(config *Config, logger *logging.Logger) (*Repository, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.IndexPrefix == "" {
		config.IndexPrefix = "wagerline"
	}
	if config.RetentionPeriod == 0 {
		config.RetentionPeriod = 90 * 24 * time.Hour
	}
	if logger == nil {
		logger = logging.Discard()
	}

	cfg := elasticsearch.Config{
		Addresses: []string{config.URL},
		Transport: config.Transport,
	}
	if config.Username != "" && config.Password != "" {
		cfg.Username = config.Username
		cfg.Password = config.Password
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating Elasticsearch client: %w", err)
	}

	return &Repository{
		client:  client,
		config:  config,
		logger:  logger.Component("audit"),
		now:     time.Now,
		created: make(map[string]bool),
	}, nil
}

// Alias returns the read alias spanning every monthly index of kind
func (r *Repository) Alias(kind string) string {
	return r.config.IndexPrefix + "_" + kind
}

// indexFor returns the monthly index that documents of kind written at t
// belong to
func (r *Repository) indexFor(kind string, t time.Time) string {
	return r.Alias(kind) + "_" + t.UTC().Format(indexDateLayout)
}

// ensureIndex creates the monthly index and attaches the alias once per
// process
func (r *Repository) ensureIndex(ctx context.Context, kind, index string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.created[index] {
		return nil
	}

	res, err := r.client.Indices.Exists([]string{index}, r.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("error checking if index exists: %w", err)
	}
	res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		req := esapi.IndicesCreateRequest{
			Index: index,
			Body:  strings.NewReader(mappings[kind]),
		}
		res, err := req.Do(ctx, r.client)
		if err != nil {
			return fmt.Errorf("error creating index: %w", err)
		}
		defer res.Body.Close()

		// Another process may have created it first
		if res.IsError() && !strings.Contains(res.String(), "resource_already_exists_exception") {
			return fmt.Errorf("error creating index: %s", res.String())
		}

		if err := r.attachAlias(ctx, kind, index); err != nil {
			return err
		}
		r.logger.Info("created audit index", "index", index)
	}

	r.created[index] = true
	return nil
}

func (r *Repository) attachAlias(ctx context.Context, kind, index string) error {
	actions := map[string]interface{}{
		"actions": []map[string]interface{}{
			{"add": map[string]interface{}{"index": index, "alias": r.Alias(kind)}},
		},
	}
	body, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("error marshaling alias actions: %w", err)
	}

	req := esapi.IndicesUpdateAliasesRequest{Body: bytes.NewReader(body)}
	res, err := req.Do(ctx, r.client)
	if err != nil {
		return fmt.Errorf("error updating alias: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error updating alias: %s", res.String())
	}
	return nil
}

// index writes doc under id so that redelivered documents overwrite
// rather than duplicate
func (r *Repository) index(ctx context.Context, kind, id string, at time.Time, doc interface{}) error {
	index := r.indexFor(kind, at)
	if err := r.ensureIndex(ctx, kind, index); err != nil {
		return err
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("error marshaling %s document: %w", kind, err)
	}

	res, err := r.client.Index(
		index,
		bytes.NewReader(body),
		r.client.Index.WithDocumentID(id),
		r.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("error indexing %s document: %w", kind, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing %s document: %s", kind, res.String())
	}
	return nil
}

// IndexEntry stores a committed ledger entry
func (r *Repository) IndexEntry(ctx context.Context, entry *entities.LedgerEntry) error {
	return r.index(ctx, KindLedger, entry.ID, entry.Timestamp, entry)
}

// IndexRound stores a settled round
func (r *Repository) IndexRound(ctx context.Context, record *entities.RoundRecord) error {
	id := fmt.Sprintf("%s-%d", record.Game, record.PeriodID)
	return r.index(ctx, KindRounds, id, record.SettledAt, record)
}

// SearchEntries returns an account's most recent entries, newest first
func (r *Repository) SearchEntries(ctx context.Context, accountID string, limit int) ([]*entities.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"term": map[string]interface{}{"account_id": accountID},
		},
		"sort": []map[string]interface{}{
			{"sequence": map[string]interface{}{"order": "desc"}},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("error marshaling query: %w", err)
	}

	res, err := r.client.Search(
		r.client.Search.WithContext(ctx),
		r.client.Search.WithIndex(r.Alias(KindLedger)),
		r.client.Search.WithBody(bytes.NewReader(body)),
		r.client.Search.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return nil, fmt.Errorf("error searching ledger entries: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("error searching ledger entries: %s", res.String())
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source entities.LedgerEntry `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error parsing search response: %w", err)
	}

	entries := make([]*entities.LedgerEntry, 0, len(result.Hits.Hits))
	for i := range result.Hits.Hits {
		entries = append(entries, &result.Hits.Hits[i].Source)
	}
	return entries, nil
}

// GetIndices returns a list of indices that match the given pattern
func (r *Repository) GetIndices(ctx context.Context, pattern string) ([]string, error) {
	res, err := r.client.Indices.Get(
		[]string{pattern},
		r.client.Indices.Get.WithContext(ctx),
		r.client.Indices.Get.WithExpandWildcards("open"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get indices: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("error getting indices: %s", res.String())
	}

	var indices map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&indices); err != nil {
		return nil, fmt.Errorf("error parsing indices response: %w", err)
	}

	names := make([]string, 0, len(indices))
	for name := range indices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// PruneOldIndices deletes monthly indices whose month ended before the
// retention window and returns the deleted names
func (r *Repository) PruneOldIndices(ctx context.Context) ([]string, error) {
	cutoff := r.now().Add(-r.config.RetentionPeriod)
	var deleted []string

	for _, kind := range []string{KindLedger, KindRounds} {
		prefix := r.Alias(kind) + "_"
		names, err := r.GetIndices(ctx, prefix+"*")
		if err != nil {
			return deleted, err
		}

		for _, name := range names {
			month, err := time.Parse(indexDateLayout, strings.TrimPrefix(name, prefix))
			if err != nil {
				r.logger.Warn("skipping index with unexpected name", "index", name)
				continue
			}
			if !month.AddDate(0, 1, 0).Before(cutoff) {
				continue
			}

			res, err := r.client.Indices.Delete([]string{name}, r.client.Indices.Delete.WithContext(ctx))
			if err != nil {
				r.logger.Error("error deleting index", "index", name, logging.Err(err))
				continue
			}
			res.Body.Close()
			if res.IsError() {
				r.logger.Error("error deleting index", "index", name, "response", res.String())
				continue
			}

			r.mu.Lock()
			delete(r.created, name)
			r.mu.Unlock()

			r.logger.Info("pruned audit index", "index", name, "retention", r.config.RetentionPeriod.String())
			deleted = append(deleted, name)
		}
	}
	return deleted, nil
}

// GetConfig returns the repository configuration
func (r *Repository) GetConfig() Config {
	return *r.config
}

// Close is a no-op; the HTTP client holds no long-lived resources
func (r *Repository) Close() error {
	return nil
}
