package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/sadopc/bankql/internal/ambiguity"
	"github.com/sadopc/bankql/internal/correct"
	"github.com/sadopc/bankql/internal/history"
)

const maxBody = 1 << 20

type askRequest struct {
	Question string             `json:"question"`
	Context  *ambiguity.Context `json:"context,omitempty"`
}

type sqlRequest struct {
	SQL string `json:"sql"`
}

type correctResponse struct {
	SQL         string      `json:"sql"`
	Corrections correct.Log `json:"corrections"`
}

type tableInfo struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

type schemaResponse struct {
	Tables []tableInfo `json:"tables"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pinger != nil {
		if err := s.deps.Pinger.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if s.deps.Pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Pipeline.Handle(r.Context(), req.Question, req.Context))
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req sqlRequest
	if !decode(w, r, &req) || !requireSQL(w, req.SQL) {
		return
	}
	if s.deps.Validator == nil {
		writeError(w, http.StatusServiceUnavailable, "validator not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Validator.Validate(r.Context(), req.SQL))
}

func (s *Server) handleCorrect(w http.ResponseWriter, r *http.Request) {
	var req sqlRequest
	if !decode(w, r, &req) || !requireSQL(w, req.SQL) {
		return
	}
	c := s.deps.Corrector
	if c == nil {
		c = correct.New(correct.Options{})
	}
	out, log := c.Correct(req.SQL)
	if log == nil {
		log = correct.Log{}
	}
	writeJSON(w, http.StatusOK, correctResponse{SQL: out, Corrections: log})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	cat := s.deps.Catalog.Current()
	resp := schemaResponse{Tables: []tableInfo{}}
	for _, t := range cat.Tables() {
		resp.Tables = append(resp.Tables, tableInfo{Name: t, Columns: cat.Columns(t)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSchemaReload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "schema catalog not configured")
		return
	}
	if err := s.deps.Catalog.Reload(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.handleSchema(w, r)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, http.StatusNotFound, "history disabled")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var (
		entries []history.Entry
		err     error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		entries, err = s.deps.History.Search(r.Context(), "%"+q+"%", limit)
	} else {
		entries, err = s.deps.History.Recent(r.Context(), limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		msg := "invalid JSON body: " + err.Error()
		if errors.Is(err, io.EOF) {
			msg = "request body is empty"
		}
		writeError(w, http.StatusBadRequest, msg)
		return false
	}
	return true
}

func requireSQL(w http.ResponseWriter, sql string) bool {
	if strings.TrimSpace(sql) == "" {
		writeError(w, http.StatusBadRequest, "sql is required")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
