package categorization

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// SearchDocument is one indexed counterparty.
type SearchDocument struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Kind           string `json:"kind"`
	DefaultAccount string `json:"default_account"`
}

// SearchResult is a search hit with its relevance score.
type SearchResult struct {
	Document SearchDocument `json:"document"`
	Score    float64        `json:"score"`
}

// SearchIndex is a full-text index over counterparty names.
type SearchIndex struct {
	index   bleve.Index
	indexMu sync.RWMutex
	path    string
}

// NewSearchIndex opens an index at path, or an in-memory one when path is empty.
func NewSearchIndex(path string) (*SearchIndex, error) {
	var (
		index bleve.Index
		err   error
	)

	indexMapping := buildIndexMapping()
	if path == "" {
		index, err = bleve.NewMemOnly(indexMapping)
	} else if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		if mkdirErr := os.MkdirAll(filepath.Dir(path), 0o755); mkdirErr != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", mkdirErr)
		}
		index, err = bleve.New(path, indexMapping)
	} else {
		index, err = bleve.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	return &SearchIndex{index: index, path: path}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = simple.Name

	keywordFieldMapping := bleve.NewTextFieldMapping()
	keywordFieldMapping.Analyzer = keyword.Name

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("name", textFieldMapping)
	docMapping.AddFieldMappingsAt("kind", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("default_account", keywordFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = simple.Name
	return indexMapping
}

// Replace drops every document and indexes counterparties.
func (si *SearchIndex) Replace(counterparties []Counterparty) error {
	si.indexMu.Lock()
	defer si.indexMu.Unlock()

	batch := si.index.NewBatch()
	ids, err := si.allIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		batch.Delete(id)
	}

	for _, c := range counterparties {
		doc := SearchDocument{
			ID:             c.Name,
			Name:           c.Name,
			Kind:           c.Kind,
			DefaultAccount: c.DefaultAccount,
		}
		if err := batch.Index(doc.ID, doc); err != nil {
			return fmt.Errorf("failed to index counterparty %q: %w", c.Name, err)
		}
	}

	if err := si.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch index: %w", err)
	}
	return nil
}

// Index adds or updates one counterparty.
func (si *SearchIndex) Index(c Counterparty) error {
	si.indexMu.Lock()
	defer si.indexMu.Unlock()

	return si.index.Index(c.Name, SearchDocument{
		ID: c.Name, Name: c.Name, Kind: c.Kind, DefaultAccount: c.DefaultAccount,
	})
}

func (si *SearchIndex) allIDs() ([]string, error) {
	count, err := si.index.DocCount()
	if err != nil || count == 0 {
		return nil, err
	}
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)

	res, err := si.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Search runs a typo-tolerant match on whole words or a prefix match on the
// last word, whichever scores higher.
func (si *SearchIndex) Search(text string, limit int) ([]SearchResult, error) {
	si.indexMu.RLock()
	defer si.indexMu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil, nil
	}

	match := bleve.NewMatchQuery(text)
	match.SetField("name")
	match.SetFuzziness(1)

	words := strings.Fields(text)
	prefix := bleve.NewPrefixQuery(words[len(words)-1])
	prefix.SetField("name")

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery([]query.Query{match, prefix}...))
	req.Size = limit
	req.Fields = []string{"*"}

	res, err := si.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return convertResults(res), nil
}

func convertResults(res *bleve.SearchResult) []SearchResult {
	results := make([]SearchResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		doc := SearchDocument{ID: hit.ID}
		if v, ok := hit.Fields["name"].(string); ok {
			doc.Name = v
		}
		if v, ok := hit.Fields["kind"].(string); ok {
			doc.Kind = v
		}
		if v, ok := hit.Fields["default_account"].(string); ok {
			doc.DefaultAccount = v
		}
		results = append(results, SearchResult{Document: doc, Score: hit.Score})
	}
	return results
}

// DocumentCount returns the number of indexed counterparties.
func (si *SearchIndex) DocumentCount() (uint64, error) {
	si.indexMu.RLock()
	defer si.indexMu.RUnlock()
	return si.index.DocCount()
}

// Close closes the index.
func (si *SearchIndex) Close() error {
	si.indexMu.Lock()
	defer si.indexMu.Unlock()
	if si.index != nil {
		return si.index.Close()
	}
	return nil
}
