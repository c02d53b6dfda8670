// Package indexer loads JSONL records into the full-text engine and the row
// store: searchable fields and facet attributes go to the engine, display rows
// and facet terms to the store.
package indexer

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hyperjump/facetsearch/internal/facets"
	"github.com/hyperjump/facetsearch/internal/hits"
	"github.com/hyperjump/facetsearch/internal/keyword"
	"github.com/hyperjump/facetsearch/internal/models"
	"github.com/hyperjump/facetsearch/internal/storage"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of records sent to the engine at once.
const DefaultBatchSize = 500

// maxLineSize bounds a single JSONL record.
const maxLineSize = 16 << 20

// DefaultExtensions are the data files picked up by IndexDirectory.
var DefaultExtensions = []string{".jsonl", ".ndjson"}

// source says where a facet attribute takes its values from.
type source struct {
	attr    string
	field   string
	table   string
	column  string
	numeric bool
}

// Indexer writes records to the engine and the row store. It is safe for
// concurrent use; writes are serialized.
type Indexer struct {
	mu sync.Mutex

	engine    keyword.Index
	storage   storage.Storage
	schema    keyword.Schema
	sources   []source
	sep       string
	batchSize int
	logger    *zap.Logger

	tablesReady bool
	columns     map[string]bool
	// files maps a data file to the ids it held when last indexed.
	files map[string][]string
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (file indexed, document deleted, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithBatchSize sets how many records are sent to the engine at once.
func WithBatchSize(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.batchSize = n
		}
	}
}

// WithSeparator sets the separator joining list values in display rows.
func WithSeparator(sep string) IndexerOption {
	return func(idx *Indexer) {
		if sep != "" {
			idx.sep = sep
		}
	}
}

// NewIndexer creates an indexer. Each facet with a term table gets its
// attribute filled with term ids, the others with the raw record values.
// Values are read from the record field named after the facet's engine field.
func NewIndexer(engine keyword.Index, store storage.Storage, schema keyword.Schema, list []*facets.Facet, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		engine:    engine,
		storage:   store,
		schema:    schema,
		sep:       hits.DefaultSep,
		batchSize: DefaultBatchSize,
		logger:    zap.NewNop(),
		columns:   make(map[string]bool),
		files:     make(map[string][]string),
	}
	for _, f := range list {
		idx.sources = append(idx.sources, source{
			attr:    f.Attr(),
			field:   f.SphField(),
			table:   f.SQLTable(),
			column:  f.SQLCol(),
			numeric: contains(schema.NumericAttributes, f.Attr()),
		})
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

func (idx *Indexer) ensureTables(ctx context.Context) error {
	if idx.tablesReady {
		return nil
	}
	for _, s := range idx.sources {
		if s.table == "" {
			continue
		}
		if err := idx.storage.EnsureTermTable(ctx, s.table, s.column); err != nil {
			return err
		}
	}
	if err := idx.storage.EnsureDocumentTable(ctx, nil); err != nil {
		return err
	}
	idx.tablesReady = true
	return nil
}

// IndexDocuments stores the display rows and term ids of docs and indexes them
// in one engine batch. Documents without an id get a random one.
func (idx *Indexer) IndexDocuments(ctx context.Context, docs ...*models.Document) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.indexDocuments(ctx, docs)
}

func (idx *Indexer) indexDocuments(ctx context.Context, docs []*models.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := idx.ensureTables(ctx); err != nil {
		return err
	}
	out := make([]*keyword.Document, 0, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			d.ID = uuid.New().String()
		}
		kd, err := idx.build(ctx, d)
		if err != nil {
			return fmt.Errorf("document %s: %w", d.ID, err)
		}
		if err := idx.storeRow(ctx, d); err != nil {
			return fmt.Errorf("document %s: %w", d.ID, err)
		}
		out = append(out, kd)
	}
	if err := idx.engine.Index(ctx, out...); err != nil {
		return fmt.Errorf("failed to index documents: %w", err)
	}
	idx.logger.Debug("indexer batch indexed", zap.Int("documents", len(out)))
	return nil
}

func (idx *Indexer) build(ctx context.Context, d *models.Document) (*keyword.Document, error) {
	kd := &keyword.Document{
		ID:      d.ID,
		Fields:  make(map[string]string, len(idx.schema.Fields)),
		Attrs:   make(map[string][]string),
		Numeric: make(map[string][]float64),
	}
	for _, f := range idx.schema.Fields {
		if vals := d.Strings(f); len(vals) > 0 {
			kd.Fields[f] = Preprocess(strings.Join(vals, " "))
		}
	}
	done := make(map[string]bool, len(idx.sources))
	for _, s := range idx.sources {
		done[s.attr] = true
		vals := d.Strings(s.field)
		switch {
		case s.table != "":
			ids := make([]string, 0, len(vals))
			for _, v := range vals {
				v = Preprocess(v)
				if v == "" {
					continue
				}
				id, err := idx.storage.TermID(ctx, s.table, s.column, v)
				if err != nil {
					return nil, err
				}
				ids = append(ids, strconv.FormatInt(id, 10))
			}
			if s.numeric {
				kd.Numeric[s.attr] = toFloats(ids)
			} else {
				kd.Attrs[s.attr] = ids
			}
		case s.numeric:
			nums, err := d.Floats(s.field)
			if err != nil {
				return nil, err
			}
			kd.Numeric[s.attr] = nums
		default:
			kd.Attrs[s.attr] = vals
		}
	}
	// Remaining attributes are copied from the field of the same name, or of
	// the name without its "_attr" suffix.
	for _, a := range idx.schema.Attributes {
		if !done[a] {
			kd.Attrs[a] = d.Strings(recordField(d, a))
		}
	}
	for _, a := range idx.schema.NumericAttributes {
		if done[a] {
			continue
		}
		nums, err := d.Floats(recordField(d, a))
		if err != nil {
			return nil, err
		}
		kd.Numeric[a] = nums
	}
	return kd, nil
}

func (idx *Indexer) storeRow(ctx context.Context, d *models.Document) error {
	row := d.Row(idx.sep)
	var missing []string
	for c := range row {
		if !idx.columns[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		if err := idx.storage.EnsureDocumentTable(ctx, missing); err != nil {
			return err
		}
		for _, c := range missing {
			idx.columns[c] = true
		}
	}
	if err := idx.storage.UpsertDocument(ctx, d.ID, row); err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}
	return nil
}

func recordField(d *models.Document, attr string) string {
	if d.Has(attr) {
		return attr
	}
	return strings.TrimSuffix(attr, "_attr")
}

// IndexFile reads a JSONL file, one record per line, and indexes it in
// batches. Blank lines are skipped. Returns the number of records indexed.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	ids, err := idx.indexFile(ctx, path)
	if abs, absErr := filepath.Abs(path); absErr == nil && err == nil {
		idx.files[abs] = ids
	}
	return len(ids), err
}

// SyncFile re-indexes a data file and deletes the documents it held when
// last indexed that are no longer in it. Returns the number of records
// indexed and deleted.
func (idx *Indexer) SyncFile(ctx context.Context, path string) (indexed, deleted int, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, 0, fmt.Errorf("absolute path: %w", err)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	ids, err := idx.indexFile(ctx, abs)
	if err != nil {
		return len(ids), 0, err
	}
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	for _, id := range idx.files[abs] {
		if keep[id] {
			continue
		}
		if err := idx.deleteDocument(ctx, id); err != nil {
			return len(ids), deleted, err
		}
		deleted++
	}
	idx.files[abs] = ids
	return len(ids), deleted, nil
}

// RemoveFile deletes the documents a data file held when last indexed.
func (idx *Indexer) RemoveFile(ctx context.Context, path string) (int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	ids := idx.files[abs]
	for i, id := range ids {
		if err := idx.deleteDocument(ctx, id); err != nil {
			idx.files[abs] = ids[i:]
			return i, err
		}
	}
	delete(idx.files, abs)
	return len(ids), nil
}

func (idx *Indexer) indexFile(ctx context.Context, path string) ([]string, error) {
	idx.logger.Debug("indexer indexing file", zap.String("path", path))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	var (
		ids   []string
		line  int
		batch = make([]*models.Document, 0, idx.batchSize)
	)
	flush := func() error {
		if err := idx.indexDocuments(ctx, batch); err != nil {
			return err
		}
		for _, d := range batch {
			ids = append(ids, d.ID)
		}
		batch = batch[:0]
		return nil
	}
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		d, err := models.ParseDocument([]byte(text))
		if err != nil {
			return ids, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		batch = append(batch, d)
		if len(batch) >= idx.batchSize {
			if err := flush(); err != nil {
				return ids, err
			}
		}
		if err := ctx.Err(); err != nil {
			return ids, err
		}
	}
	if err := sc.Err(); err != nil {
		return ids, fmt.Errorf("read %s: %w", path, err)
	}
	if err := flush(); err != nil {
		return ids, err
	}
	idx.logger.Debug("indexer file indexed", zap.String("path", path), zap.Int("documents", len(ids)))
	return ids, nil
}

// IndexDirectory walks dir recursively and indexes each regular file whose extension
// is in allowedExts (DefaultExtensions when empty). Returns the number of records
// indexed and the first error encountered, if any.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string, allowedExts []string) (n int, err error) {
	if len(allowedExts) == 0 {
		allowedExts = DefaultExtensions
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !extensionAllowed(filepath.Ext(path), allowedExts) {
			return nil
		}
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		c, indexErr := idx.IndexFile(ctx, path)
		n += c
		return indexErr
	})
	return n, err
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// DeleteDocument removes a document from the engine and the row store. Its
// facet terms stay, since other documents may share them.
func (idx *Indexer) DeleteDocument(ctx context.Context, id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.deleteDocument(ctx, id)
}

func (idx *Indexer) deleteDocument(ctx context.Context, id string) error {
	idx.logger.Debug("indexer deleting document", zap.String("id", id))
	if err := idx.engine.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete from engine: %w", err)
	}
	if err := idx.ensureTables(ctx); err != nil {
		return err
	}
	if err := idx.storage.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func toFloats(ids []string) []float64 {
	out := make([]float64, 0, len(ids))
	for _, s := range ids {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			out = append(out, f)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
