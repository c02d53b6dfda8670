package keyword

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/hyperjump/facetsearch/internal/searchd"
)

// textAnalyzer lowercases and tokenizes without stop words or stemming, so
// "the birds" still requires both words to match.
const textAnalyzer = "facet_text"

// BleveEngine implements searchd.Engine on a Bleve index.
type BleveEngine struct {
	index  bleve.Index
	name   string
	schema Schema
	logger *zap.Logger
}

// EngineOption configures a BleveEngine.
type EngineOption func(*BleveEngine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *BleveEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithName sets the index name requests must address. "*" always matches.
func WithName(name string) EngineOption {
	return func(e *BleveEngine) { e.name = name }
}

var _ Index = (*BleveEngine)(nil)

// NewBleveEngine creates or opens a Bleve index at path.
// An existing index is reused as is; remove the directory after changing the schema.
func NewBleveEngine(path string, schema Schema, opts ...EngineOption) (*BleveEngine, error) {
	e := &BleveEngine{name: "*", schema: schema, logger: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		e.index = index
		return e, nil
	}

	im, err := buildMapping(schema)
	if err != nil {
		return nil, err
	}
	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	e.index = index
	return e, nil
}

// NewMemoryEngine creates an in-memory engine, used by tests and previews.
func NewMemoryEngine(schema Schema, opts ...EngineOption) (*BleveEngine, error) {
	e := &BleveEngine{name: "*", schema: schema, logger: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	im, err := buildMapping(schema)
	if err != nil {
		return nil, err
	}
	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	e.index = index
	return e, nil
}

func buildMapping(schema Schema) (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(textAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register analyzer: %w", err)
	}

	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false
	for _, f := range schema.Fields {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = textAnalyzer
		fm.Store = false
		fm.IncludeInAll = false
		doc.AddFieldMappingsAt(f, fm)
	}
	for _, a := range schema.Attributes {
		fm := bleve.NewKeywordFieldMapping()
		fm.Store = true
		fm.IncludeInAll = false
		doc.AddFieldMappingsAt(a, fm)
	}
	for _, a := range schema.NumericAttributes {
		fm := bleve.NewNumericFieldMapping()
		fm.Store = true
		fm.IncludeInAll = false
		doc.AddFieldMappingsAt(a, fm)
	}
	im.DefaultMapping = doc
	return im, nil
}

// Index adds or replaces docs in one batch.
func (e *BleveEngine) Index(ctx context.Context, docs ...*Document) error {
	batch := e.index.NewBatch()
	for _, d := range docs {
		if err := batch.Index(d.ID, d.source()); err != nil {
			return fmt.Errorf("index %s: %w", d.ID, err)
		}
	}
	if err := e.index.Batch(batch); err != nil {
		return fmt.Errorf("index batch: %w", err)
	}
	return nil
}

func (d *Document) source() map[string]interface{} {
	src := make(map[string]interface{}, len(d.Fields)+len(d.Attrs)+len(d.Numeric))
	for k, v := range d.Fields {
		src[k] = v
	}
	for k, v := range d.Attrs {
		src[k] = v
	}
	for k, v := range d.Numeric {
		src[k] = v
	}
	return src
}

// Delete removes documents by id.
func (e *BleveEngine) Delete(ctx context.Context, ids ...string) error {
	batch := e.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := e.index.Batch(batch); err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	return nil
}

// DocCount returns the number of indexed documents.
func (e *BleveEngine) DocCount() (uint64, error) {
	return e.index.DocCount()
}

// Close closes the index.
func (e *BleveEngine) Close() error {
	return e.index.Close()
}

// Execute runs every request against the index. Problems with a single request
// are reported in its Result.Error and do not fail the batch.
func (e *BleveEngine) Execute(ctx context.Context, reqs []searchd.Request) ([]*searchd.Result, error) {
	out := make([]*searchd.Result, len(reqs))
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		r, err := e.execute(req)
		if err != nil {
			r = &searchd.Result{Error: err.Error()}
		}
		r.Time = time.Since(start).Seconds()
		out[i] = r
	}
	return out, nil
}

func (e *BleveEngine) execute(req searchd.Request) (*searchd.Result, error) {
	if req.Index != "" && req.Index != "*" && e.name != "*" && req.Index != e.name {
		return nil, fmt.Errorf("unknown local index '%s' in search request", req.Index)
	}
	clauses, fullScan := parseQuery(req.Query)
	q, err := buildQuery(clauses, fullScan, e.schema, req.Options.FieldWeights)
	if err != nil {
		return nil, err
	}

	var r *searchd.Result
	if req.Options.Grouped() {
		r, err = e.searchGrouped(q, req.Options)
	} else {
		r, err = e.searchPlain(q, req.Options)
	}
	if err != nil {
		return nil, err
	}
	for f := range req.Options.FieldWeights {
		if !e.schema.isField(f) {
			r.Warning = fmt.Sprintf("field weight for unknown field '%s' ignored", f)
		}
	}
	if !req.Options.Grouped() && len(clauses) > 0 {
		r.Words = e.wordStats(queryWords(clauses))
	}
	return r, nil
}

func window(o searchd.Options) (offset, size int) {
	offset, size = o.Offset, o.Limit
	if offset < 0 {
		offset = 0
	}
	if o.MaxMatches > 0 && offset+size > o.MaxMatches {
		size = o.MaxMatches - offset
	}
	if size < 0 {
		size = 0
	}
	return offset, size
}

func (e *BleveEngine) searchPlain(q blevequery.Query, o searchd.Options) (*searchd.Result, error) {
	offset, size := window(o)
	req := bleve.NewSearchRequestOptions(q, size, offset, false)
	req.Fields = e.schema.attrs()
	order, err := e.sortOrder(o)
	if err != nil {
		return nil, err
	}
	req.SortBy(order)
	res, err := e.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}
	found := int(res.Total)
	if o.Cutoff > 0 && found > o.Cutoff {
		found = o.Cutoff
	}
	r := &searchd.Result{TotalFound: found, Total: found, Matches: make([]searchd.Match, 0, len(res.Hits))}
	if o.MaxMatches > 0 && r.Total > o.MaxMatches {
		r.Total = o.MaxMatches
	}
	for _, hit := range res.Hits {
		r.Matches = append(r.Matches, searchd.Match{ID: hit.ID, Weight: hit.Score, Attrs: storedAttrs(hit)})
	}
	return r, nil
}

// sortOrder translates the sort mode into Bleve sort keys.
func (e *BleveEngine) sortOrder(o searchd.Options) ([]string, error) {
	switch o.SortMode {
	case "", searchd.SortRelevance:
		return []string{"-_score", "_id"}, nil
	case searchd.SortAttrDesc, searchd.SortAttrAsc:
		attr := strings.TrimSpace(o.SortClause)
		if !e.schema.isAttr(attr) {
			return nil, fmt.Errorf("sort-by attribute '%s' not found", attr)
		}
		if o.SortMode == searchd.SortAttrDesc {
			attr = "-" + attr
		}
		return []string{attr, "-_score", "_id"}, nil
	case searchd.SortExtended:
		var keys []string
		for _, part := range strings.Split(o.SortClause, ",") {
			f := strings.Fields(part)
			if len(f) == 0 {
				continue
			}
			key := f[0]
			switch key {
			case searchd.AttrWeight, "@relevance", "@rank":
				key = "_score"
			case searchd.AttrID:
				key = "_id"
			default:
				if !e.schema.isAttr(key) {
					return nil, fmt.Errorf("sort-by attribute '%s' not found", key)
				}
			}
			if len(f) < 2 || strings.EqualFold(f[1], "desc") {
				key = "-" + key
			}
			keys = append(keys, key)
		}
		return append(keys, "_id"), nil
	default:
		return nil, fmt.Errorf("unknown sort mode '%s'", o.SortMode)
	}
}

func (e *BleveEngine) wordStats(words []string) []searchd.WordStat {
	stats := make([]searchd.WordStat, 0, len(words))
	for _, w := range words {
		alts := make([]blevequery.Query, 0, len(e.schema.Fields))
		for _, f := range e.schema.Fields {
			alts = append(alts, fieldMatch(w, f, nil))
		}
		req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(alts...), 0, 0, false)
		res, err := e.index.Search(req)
		if err != nil {
			e.logger.Debug("word stats failed", zap.String("word", w), zap.Error(err))
			continue
		}
		stats = append(stats, searchd.WordStat{Word: w, Docs: int(res.Total), Hits: int(res.Total)})
	}
	return stats
}

// storedAttrs converts the stored fields of a hit into string values.
func storedAttrs(hit *search.DocumentMatch) map[string][]string {
	if len(hit.Fields) == 0 {
		return nil
	}
	attrs := make(map[string][]string, len(hit.Fields))
	for k, v := range hit.Fields {
		attrs[k] = fieldValues(v)
	}
	return attrs
}

func fieldValues(v interface{}) []string {
	switch t := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, x := range t {
			out = append(out, fieldValues(x)...)
		}
		return out
	case string:
		return []string{t}
	case float64:
		return []string{strconv.FormatFloat(t, 'f', -1, 64)}
	case nil:
		return nil
	default:
		return []string{fmt.Sprint(t)}
	}
}
