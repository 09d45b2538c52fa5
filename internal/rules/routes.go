package rules

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the interpretation rule API routes.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Route("/api/rules", func(r chi.Router) {
		r.Get("/", handleListRules(store))
		r.Get("/applicable", handleApplicableRules(store))
		r.Post("/{id}/enable", handleSetEnabled(store, true))
		r.Post("/{id}/disable", handleSetEnabled(store, false))
	})
}

func handleListRules(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := ListFilter{
			DocumentID:  r.URL.Query().Get("document_id"),
			EnabledOnly: r.URL.Query().Get("enabled") == "true",
		}
		if rt := r.URL.Query().Get("rule_type"); rt != "" {
			filter.RuleType = Type(rt)
			if !filter.RuleType.Valid() {
				http.Error(w, `{"error":"invalid rule_type"}`, http.StatusBadRequest)
				return
			}
		}

		result, err := store.List(r.Context(), filter)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if result == nil {
			result = []Rule{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

func handleApplicableRules(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		documentID := r.URL.Query().Get("document_id")
		if documentID == "" {
			http.Error(w, `{"error":"document_id is required"}`, http.StatusBadRequest)
			return
		}
		query := r.URL.Query().Get("query")

		result, err := store.ApplicableRules(r.Context(), documentID, query)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if result == nil {
			result = []Rule{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

func handleSetEnabled(store *Store, enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.SetEnabled(r.Context(), chi.URLParam(r, "id"), enabled); err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}
}
