package apiserver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"sfp/internal/auth"
	"sfp/internal/engineerr"
	"sfp/internal/svcconfig"
)

type containRequest struct {
	Key string `json:"key"` // base64-encoded
}

type containResponse struct {
	Contains bool `json:"contains"`
}

type batchContainRequest struct {
	Keys []string `json:"keys"` // base64-encoded
}

type batchContainResponse struct {
	Results []bool `json:"results"`
}

type batchInsertRequest struct {
	Keys []string `json:"keys"` // base64-encoded
}

type chunkCountResponse struct {
	ChunkCount int `json:"chunk_count"`
}

func (s *Server) handleContain(w http.ResponseWriter, r *http.Request) {
	appid, group := r.PathValue("appid"), r.PathValue("group")
	if err := auth.Authorize(r.Context(), appid, auth.RoleRead); err != nil {
		writeForbidden(w, err)
		return
	}
	var req containRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, err)
		return
	}
	key, err := base64.StdEncoding.DecodeString(req.Key)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	found, err := s.pool.Contain(r.Context(), appid, group, key)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, containResponse{Contains: found})
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	appid, group := r.PathValue("appid"), r.PathValue("group")
	if err := auth.Authorize(r.Context(), appid, auth.RoleWrite); err != nil {
		writeForbidden(w, err)
		return
	}
	var req containRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, err)
		return
	}
	key, err := base64.StdEncoding.DecodeString(req.Key)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.pool.Insert(r.Context(), appid, group, key); err != nil {
		writeInternalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBatchContain(w http.ResponseWriter, r *http.Request) {
	appid, group := r.PathValue("appid"), r.PathValue("group")
	if err := auth.Authorize(r.Context(), appid, auth.RoleRead); err != nil {
		writeForbidden(w, err)
		return
	}
	var req batchContainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, err)
		return
	}
	keys, err := decodeKeys(req.Keys)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	results, err := s.pool.BatchContain(r.Context(), appid, group, keys)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchContainResponse{Results: results})
}

func (s *Server) handleBatchInsert(w http.ResponseWriter, r *http.Request) {
	appid, group := r.PathValue("appid"), r.PathValue("group")
	if err := auth.Authorize(r.Context(), appid, auth.RoleWrite); err != nil {
		writeForbidden(w, err)
		return
	}
	var req batchInsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, err)
		return
	}
	keys, err := decodeKeys(req.Keys)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.pool.BatchInsert(r.Context(), appid, group, keys); err != nil {
		writeInternalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChunkCount(w http.ResponseWriter, r *http.Request) {
	appid, group := r.PathValue("appid"), r.PathValue("group")
	if err := auth.Authorize(r.Context(), appid, auth.RoleRead); err != nil {
		writeForbidden(w, err)
		return
	}
	count, err := s.pool.ChunkCount(r.Context(), appid, group)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chunkCountResponse{ChunkCount: count})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	appid := r.PathValue("appid")
	if err := auth.Authorize(r.Context(), appid, auth.RoleAdmin); err != nil {
		writeForbidden(w, err)
		return
	}
	cfg, err := s.config.Load(r.Context(), appid)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if cfg == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	appid := r.PathValue("appid")
	if err := auth.Authorize(r.Context(), appid, auth.RoleAdmin); err != nil {
		writeForbidden(w, err)
		return
	}
	var cfg svcconfig.AppConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeBadRequest(w, err)
		return
	}
	cfg.AppID = appid
	if err := s.config.Save(r.Context(), cfg); err != nil {
		writeInternalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeKeys(encoded []string) ([][]byte, error) {
	keys := make([][]byte, len(encoded))
	for i, e := range encoded {
		key, err := base64.StdEncoding.DecodeString(e)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}
	return keys, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func writeForbidden(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusForbidden)
}

// writeInternalError maps the engine's error taxonomy to HTTP status codes
// where a caller can act on the distinction (retry vs. reconfigure),
// falling back to 500 for anything else.
func writeInternalError(w http.ResponseWriter, err error) {
	var ladderExhausted *engineerr.LadderExhausted
	var retryExhausted *engineerr.RetryExhausted
	switch {
	case errors.As(err, &ladderExhausted):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &retryExhausted):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
