package evolution

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the evolution API routes.
func RegisterRoutes(r chi.Router, orchestrator *Orchestrator, store *Store) {
	r.Route("/api/evolution", func(r chi.Router) {
		r.Post("/run", handleRun(orchestrator))
		r.Get("/jobs", handleListJobs(store))
		r.Get("/jobs/{id}", handleGetJob(store))
		r.Get("/history", handleListHistory(store))
	})
}

type runRequest struct {
	DocumentID string `json:"document_id"`
	Force      bool   `json:"force"`
}

func handleRun(orchestrator *Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req runRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
				return
			}
		}

		var (
			jobs []*Job
			err  error
		)
		if req.DocumentID != "" {
			var job *Job
			job, err = orchestrator.RunDocument(r.Context(), req.DocumentID, req.Force)
			if job != nil {
				jobs = append(jobs, job)
			}
		} else {
			jobs, err = orchestrator.RunAll(r.Context())
		}
		if err != nil && len(jobs) == 0 {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if jobs == nil {
			jobs = []*Job{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(jobs)
	}
}

func handleListJobs(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseLimit(r.URL.Query().Get("limit"), 50)
		jobs, err := store.ListJobs(r.Context(), r.URL.Query().Get("document_id"), limit)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if jobs == nil {
			jobs = []Job{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(jobs)
	}
}

func handleGetJob(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := store.GetJob(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if job == nil {
			http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(job)
	}
}

func handleListHistory(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseLimit(r.URL.Query().Get("limit"), 100)
		records, err := store.ListHistory(r.Context(), r.URL.Query().Get("document_id"), limit)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []HistoryRecord{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(records)
	}
}

func parseLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
