package selfevolve

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the self-evolution API routes.
func RegisterRoutes(r chi.Router, runner *Runner, store *Store) {
	r.Route("/api/selfevolve", func(r chi.Router) {
		r.Post("/run", handleRun(runner))
		r.Get("/questions", handleListQuestions(store))
		r.Get("/weaknesses", handleListWeaknesses(store))
	})
}

type runRequest struct {
	DocumentID string `json:"document_id"`
}

func handleRun(runner *Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req runRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.DocumentID == "" {
			http.Error(w, `{"error":"document_id is required"}`, http.StatusBadRequest)
			return
		}

		report, err := runner.Run(r.Context(), req.DocumentID)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report)
	}
}

func handleListQuestions(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		documentID := r.URL.Query().Get("document_id")
		if documentID == "" {
			http.Error(w, `{"error":"document_id is required"}`, http.StatusBadRequest)
			return
		}

		questions, err := store.ListQuestions(r.Context(), documentID)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if questions == nil {
			questions = []Question{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(questions)
	}
}

func handleListWeaknesses(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		documentID := r.URL.Query().Get("document_id")
		if documentID == "" {
			http.Error(w, `{"error":"document_id is required"}`, http.StatusBadRequest)
			return
		}

		weaknesses, err := store.ListWeaknesses(r.Context(), documentID)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if weaknesses == nil {
			weaknesses = []Weakness{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(weaknesses)
	}
}
