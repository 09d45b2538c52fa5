package feedback

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the feedback API routes.
func RegisterRoutes(r chi.Router, recorder *Recorder, store *Store) {
	r.Route("/api/feedback", func(r chi.Router) {
		r.Post("/", handleRecordFeedback(recorder))
		r.Get("/", handleListFeedback(store))
	})
}

type recordRequest struct {
	DocumentID string   `json:"document_id"`
	MessageID  string   `json:"message_id"`
	UserQuery  string   `json:"user_query"`
	Response   string   `json:"response"`
	Rating     Rating   `json:"rating"`
	Comment    string   `json:"comment"`
	RuleIDs    []string `json:"rule_ids"`
}

func handleRecordFeedback(recorder *Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req recordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.DocumentID == "" {
			http.Error(w, `{"error":"document_id is required"}`, http.StatusBadRequest)
			return
		}
		if !req.Rating.Valid() {
			http.Error(w, `{"error":"rating must be good or bad"}`, http.StatusBadRequest)
			return
		}

		saved, err := recorder.Record(r.Context(), Signal{
			DocumentID: req.DocumentID,
			MessageID:  req.MessageID,
			UserQuery:  req.UserQuery,
			Response:   req.Response,
			Rating:     req.Rating,
			Comment:    req.Comment,
		}, req.RuleIDs)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(saved)
	}
}

func handleListFeedback(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := ListFilter{
			DocumentID:  r.URL.Query().Get("document_id"),
			Unprocessed: r.URL.Query().Get("unprocessed") == "true",
		}
		if rating := r.URL.Query().Get("rating"); rating != "" {
			filter.Rating = Rating(rating)
			if !filter.Rating.Valid() {
				http.Error(w, `{"error":"invalid rating"}`, http.StatusBadRequest)
				return
			}
		}

		signals, err := store.List(r.Context(), filter)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if signals == nil {
			signals = []Signal{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(signals)
	}
}
