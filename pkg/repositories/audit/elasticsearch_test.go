package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/fadedpez/wagerline/pkg/entities"
)

// fakeCluster is an in-memory stand-in for the handful of Elasticsearch
// endpoints the repository calls
type fakeCluster struct {
	mu       sync.Mutex
	indices  map[string]bool
	docs     map[string]map[string][]byte // index -> id -> source
	requests []string
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		indices: make(map[string]bool),
		docs:    make(map[string]map[string][]byte),
	}
}

func (f *fakeCluster) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req.Method+" "+req.URL.Path)
	parts := strings.Split(strings.Trim(req.URL.Path, "/"), "/")

	switch {
	case req.Method == http.MethodHead && len(parts) == 1:
		if f.indices[parts[0]] {
			return respond(http.StatusOK, ""), nil
		}
		return respond(http.StatusNotFound, ""), nil

	case req.Method == http.MethodPut && len(parts) == 1:
		f.indices[parts[0]] = true
		return respond(http.StatusOK, `{"acknowledged":true}`), nil

	case req.Method == http.MethodPost && parts[0] == "_aliases":
		return respond(http.StatusOK, `{"acknowledged":true}`), nil

	case req.Method == http.MethodPut && len(parts) == 3 && parts[1] == "_doc":
		body, _ := io.ReadAll(req.Body)
		if f.docs[parts[0]] == nil {
			f.docs[parts[0]] = make(map[string][]byte)
		}
		f.docs[parts[0]][parts[2]] = body
		return respond(http.StatusCreated, `{"result":"created"}`), nil

	case len(parts) == 2 && parts[1] == "_search":
		return respond(http.StatusOK, f.search(parts[0])), nil

	case req.Method == http.MethodGet && len(parts) == 1:
		prefix := strings.TrimSuffix(parts[0], "*")
		out := map[string]interface{}{}
		for name := range f.indices {
			if strings.HasPrefix(name, prefix) {
				out[name] = map[string]interface{}{}
			}
		}
		body, _ := json.Marshal(out)
		return respond(http.StatusOK, string(body)), nil

	case req.Method == http.MethodDelete && len(parts) == 1:
		delete(f.indices, parts[0])
		delete(f.docs, parts[0])
		return respond(http.StatusOK, `{"acknowledged":true}`), nil
	}

	return respond(http.StatusBadRequest, fmt.Sprintf(`{"error":"unexpected %s %s"}`, req.Method, req.URL.Path)), nil
}

func (f *fakeCluster) search(alias string) string {
	var sources []json.RawMessage
	for index, docs := range f.docs {
		if !strings.HasPrefix(index, alias+"_") {
			continue
		}
		for _, doc := range docs {
			sources = append(sources, doc)
		}
	}
	sort.Slice(sources, func(i, j int) bool {
		var a, b entities.LedgerEntry
		json.Unmarshal(sources[i], &a)
		json.Unmarshal(sources[j], &b)
		return a.Sequence > b.Sequence
	})

	hits := make([]map[string]json.RawMessage, 0, len(sources))
	for _, src := range sources {
		hits = append(hits, map[string]json.RawMessage{"_source": src})
	}
	body, _ := json.Marshal(map[string]interface{}{"hits": map[string]interface{}{"hits": hits}})
	return string(body)
}

func respond(status int, body string) *http.Response {
	header := http.Header{}
	header.Set("X-Elastic-Product", "Elasticsearch")
	header.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

type AuditTestSuite struct {
	suite.Suite
	ctx     context.Context
	cluster *fakeCluster
	repo    *Repository
}

func (s *AuditTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.cluster = newFakeCluster()

	repo, err := NewRepository(&Config{
		URL:         "http://localhost:9200",
		IndexPrefix: "test",
		Transport:   s.cluster,
	}, nil)
	s.Require().NoError(err)
	s.repo = repo
}

func (s *AuditTestSuite) entry(seq int64, at time.Time) *entities.LedgerEntry {
	return &entities.LedgerEntry{
		ID:           fmt.Sprintf("entry-%d", seq),
		AccountID:    "a1",
		Kind:         entities.EntryKindBet,
		Amount:       decimal.NewFromInt(10),
		Status:       entities.EntryStatusSuccess,
		Sequence:     seq,
		BalanceAfter: decimal.NewFromInt(90),
		Timestamp:    at,
	}
}

func (s *AuditTestSuite) TestIndexEntryCreatesMonthlyIndexOnce() {
	at := time.Date(2026, 10, 3, 12, 0, 0, 0, time.UTC)
	s.Require().NoError(s.repo.IndexEntry(s.ctx, s.entry(1, at)))
	s.Require().NoError(s.repo.IndexEntry(s.ctx, s.entry(2, at)))

	s.True(s.cluster.indices["test_ledger_2026-10"])

	creates := 0
	for _, r := range s.cluster.requests {
		if r == "PUT /test_ledger_2026-10" {
			creates++
		}
	}
	s.Equal(1, creates)
	s.Len(s.cluster.docs["test_ledger_2026-10"], 2)
}

func (s *AuditTestSuite) TestRedeliveredEntryOverwrites() {
	at := time.Date(2026, 10, 3, 12, 0, 0, 0, time.UTC)
	s.Require().NoError(s.repo.IndexEntry(s.ctx, s.entry(1, at)))
	s.Require().NoError(s.repo.IndexEntry(s.ctx, s.entry(1, at)))
	s.Len(s.cluster.docs["test_ledger_2026-10"], 1)
}

func (s *AuditTestSuite) TestSearchEntries() {
	at := time.Date(2026, 10, 3, 12, 0, 0, 0, time.UTC)
	for seq := int64(1); seq <= 3; seq++ {
		s.Require().NoError(s.repo.IndexEntry(s.ctx, s.entry(seq, at)))
	}

	entries, err := s.repo.SearchEntries(s.ctx, "a1", 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	s.Equal(int64(3), entries[0].Sequence)
	s.True(entries[0].Amount.Equal(decimal.NewFromInt(10)))
}

func (s *AuditTestSuite) TestIndexRound() {
	record := &entities.RoundRecord{
		Game:      entities.GameWinGo,
		PeriodID:  42,
		Outcome:   entities.Outcome{Game: entities.GameWinGo, Digit: 7},
		Bets:      3,
		Winners:   1,
		SettledAt: time.Date(2026, 9, 30, 23, 59, 0, 0, time.UTC),
	}
	s.Require().NoError(s.repo.IndexRound(s.ctx, record))
	s.Contains(s.cluster.docs["test_rounds_2026-09"], "wingo-42")
}

func (s *AuditTestSuite) TestPruneOldIndices() {
	s.repo.now = func() time.Time { return time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC) }
	s.repo.config.RetentionPeriod = 60 * 24 * time.Hour

	for _, name := range []string{"test_ledger_2026-06", "test_ledger_2026-08", "test_ledger_2026-10", "test_rounds_2026-07", "test_ledger_archive"} {
		s.cluster.indices[name] = true
	}

	deleted, err := s.repo.PruneOldIndices(s.ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"test_ledger_2026-06", "test_rounds_2026-07"}, deleted)
	s.True(s.cluster.indices["test_ledger_2026-08"], "August ends inside the window")
	s.True(s.cluster.indices["test_ledger_archive"], "unparseable names are left alone")
}

func TestAuditSuite(t *testing.T) {
	suite.Run(t, new(AuditTestSuite))
}
