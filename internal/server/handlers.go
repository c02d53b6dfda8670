package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/facetsearch/internal/models"
	"github.com/hyperjump/facetsearch/internal/query"
	"github.com/hyperjump/facetsearch/internal/search"
	"github.com/hyperjump/facetsearch/internal/searchd"
	"github.com/hyperjump/facetsearch/internal/storage"
)

// maxBodyBytes bounds the body of document uploads.
const maxBodyBytes = 32 << 20

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("limit", req.Limit))
	s.runSearch(w, r, &req)
}

// handlePrettySearch answers a pretty url such as
// /search/actor=james+stewart/genre=*horror/?ot=10.
func (s *Server) handlePrettySearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	offset, _ := strconv.Atoi(params.Get("offset"))
	limit, _ := strconv.Atoi(params.Get("limit"))
	req := models.SearchRequest{
		Query:  query.FromPrettyURL(r.URL.RequestURI(), s.root(), ""),
		Offset: offset,
		Limit:  limit,
	}
	s.logger.Debug("pretty url search", zap.String("url", r.URL.RequestURI()), zap.String("query", req.Query))
	s.runSearch(w, r, &req)
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, req *models.SearchRequest) {
	resp, err := s.app.Client.Search(r.Context(), req, s.root())
	if err != nil {
		var engineErr *searchd.EngineError
		if errors.Is(err, search.ErrInvalidRequest) || errors.As(err, &engineErr) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("search failed", zap.String("query", req.Query), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleIndexDocuments indexes a JSON record or an array of records and
// flushes the cache, whose entries may no longer be accurate.
func (s *Server) handleIndexDocuments(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	docs, err := parseDocuments(body)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	if err := s.app.Indexer.IndexDocuments(ctx, docs...); err != nil {
		s.logger.Error("indexing failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.flushCache(r)
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	s.logger.Debug("indexed documents", zap.Strings("ids", ids))
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{"ids": ids, "status": "indexed"})
}

func parseDocuments(body []byte) ([]*models.Document, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty request body")
	}
	if body[0] != '[' {
		d, err := models.ParseDocument(body)
		if err != nil {
			return nil, err
		}
		return []*models.Document{d}, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("invalid document list: %w", err)
	}
	docs := make([]*models.Document, 0, len(raw))
	for i, m := range raw {
		d, err := models.ParseDocument(m)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rows, err := s.app.Storage.FetchRows(r.Context(), s.app.Config.Hits.SQL, []string{id})
	if err != nil {
		if errors.Is(err, storage.ErrRowCount) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, rows[0].Map())
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.app.Indexer.DeleteDocument(r.Context(), id); err != nil {
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.flushCache(r)
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) flushCache(r *http.Request) {
	if err := s.app.FlushCache(r.Context()); err != nil {
		s.logger.Warn("cache flush failed", zap.Error(err))
	}
}

// handleFlushCache clears the cache. sticky=true also removes preloaded entries.
func (s *Server) handleFlushCache(w http.ResponseWriter, r *http.Request) {
	if s.app.Cache == nil {
		s.respondError(w, http.StatusNotImplemented, "cache not enabled")
		return
	}
	sticky, _ := strconv.ParseBool(r.URL.Query().Get("sticky"))
	if err := s.app.Cache.Clear(r.Context(), sticky); err != nil {
		s.logger.Error("cache flush failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "flushed", "sticky": sticky})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.app.Storage.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	indexed, err := s.app.Engine.DocCount()
	if err != nil {
		s.logger.Error("status: count indexed failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	cfg := s.app.Config
	resp := map[string]interface{}{
		"documents": docCount,
		"indexed":   indexed,
	}

	names := []string{}
	if g := s.app.Client.Facets(); g != nil {
		for _, f := range g.Enabled() {
			names = append(names, f.Name())
		}
	}
	resp["facets"] = names

	cacheInfo := map[string]interface{}{
		"driver":  cfg.Cache.Driver,
		"enabled": s.app.Store != nil,
	}
	if s.app.Store != nil {
		if keys, err := s.app.Store.Keys(ctx); err == nil {
			cacheInfo["keys"] = len(keys)
		} else {
			s.logger.Warn("status: list cache keys failed", zap.Error(err))
		}
	}
	resp["cache"] = cacheInfo

	resp["config"] = map[string]interface{}{
		"index":            cfg.Engine.Index,
		"sort_mode":        cfg.Engine.SortMode,
		"database_path":    cfg.Storage.DatabasePath,
		"bleve_index_path": cfg.Storage.BleveIndexPath,
		"data_dir":         cfg.Storage.DataDir,
	}
	paths := append(storage.DatabaseFiles(cfg.Storage.DatabasePath), cfg.Storage.BleveIndexPath)
	if diskBytes, err := storage.DiskUsageBytes(paths...); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectories(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
