package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sesm/sesm/internal/journal"
	"github.com/sesm/sesm/internal/memory"
)

// maxWriteBody bounds a write request; content is a short event description.
const maxWriteBody = 1 << 20

// maxTTLSeconds caps ttl_seconds at ten years, well inside time.Duration.
// Keep in step with the lte tag on writeRequest.TTLSeconds.
const maxTTLSeconds = 10 * 365 * 24 * 60 * 60

type writeRequest struct {
	Content    string `json:"content" validate:"required"`
	TTLSeconds *int   `json:"ttl_seconds" validate:"omitempty,gt=0,lte=315360000"`
}

type itemJSON struct {
	ID              string    `json:"id"`
	Content         string    `json:"content"`
	Type            string    `json:"type"`
	TTLSeconds      *int      `json:"ttl_seconds"`
	CreatedAt       time.Time `json:"created_at"`
	LastMentionedAt time.Time `json:"last_mentioned_at"`
	Mentions        int       `json:"mentions"`
	Trust           float64   `json:"trust"`
}

func toItemJSON(it memory.Item) itemJSON {
	return itemJSON{
		ID:              it.ID,
		Content:         it.Content,
		Type:            string(it.Kind),
		TTLSeconds:      ttlSeconds(it.HasTTL(), it.TTL),
		CreatedAt:       it.CreatedAt.UTC(),
		LastMentionedAt: it.LastMentionedAt.UTC(),
		Mentions:        it.Mentions,
		Trust:           it.Trust,
	}
}

func toItemsJSON(items []memory.Item) []itemJSON {
	out := make([]itemJSON, len(items))
	for i, it := range items {
		out[i] = toItemJSON(it)
	}
	return out
}

func ttlSeconds(has bool, ttl time.Duration) *int {
	if !has {
		return nil
	}
	n := int(ttl / time.Second)
	return &n
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	var req writeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWriteBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	ttl := s.defaultTTL
	if req.TTLSeconds != nil {
		ttl = time.Duration(*req.TTLSeconds) * time.Second
	}

	it := s.mem.Write(req.Content, ttl)
	writeJSON(w, http.StatusOK, toItemJSON(it))
}

func (s *Server) handleListEpisodic(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toItemsJSON(s.mem.ListEpisodic()))
}

func (s *Server) handleListKnowledge(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toItemsJSON(s.mem.ListKnowledge()))
}

func (s *Server) handleListAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toItemsJSON(s.mem.ListAll()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal not enabled")
		return
	}

	// Sweep first so an item past its ttl shows as expired, not live.
	s.mem.SweepOnce()

	hist, err := s.journal.History(id)
	if err != nil {
		s.log.Error("history lookup failed", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(hist) == 0 {
		writeError(w, http.StatusNotFound, "unknown memory id")
		return
	}

	type transitionJSON struct {
		Event      string    `json:"event"`
		Type       string    `json:"type"`
		Mentions   int       `json:"mentions"`
		Trust      float64   `json:"trust"`
		TTLSeconds *int      `json:"ttl_seconds"`
		At         time.Time `json:"at"`
	}
	out := make([]transitionJSON, len(hist))
	for i, tr := range hist {
		out[i] = transitionJSON{
			Event:      string(tr.Event),
			Type:       string(tr.Kind),
			Mentions:   tr.Mentions,
			Trust:      tr.Trust,
			TTLSeconds: ttlSeconds(tr.TTL > 0, tr.TTL),
			At:         tr.At,
		}
	}

	_, live := s.mem.Get(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          id,
		"content":     hist[0].Content,
		"live":        live,
		"transitions": out,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st := s.mem.Stats()
	resp := map[string]any{
		"episodic":  st.Episodic,
		"knowledge": st.Knowledge,
	}

	if s.journal != nil {
		counts, err := s.journal.Counts()
		if err != nil {
			s.log.Error("journal counts failed", "err", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		events := make(map[string]int, len(counts))
		for ev, n := range counts {
			events[string(ev)] = n
		}
		resp["events"] = events

		recent, err := s.journal.Recent(10)
		if err != nil {
			s.log.Error("journal recent failed", "err", err)
		} else {
			resp["recent"] = recentJSON(recent)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func recentJSON(trs []journal.Transition) []map[string]any {
	out := make([]map[string]any, len(trs))
	for i, tr := range trs {
		out[i] = map[string]any{
			"id":      tr.ItemID,
			"content": tr.Content,
			"event":   string(tr.Event),
			"at":      tr.At,
		}
	}
	return out
}

// validationMessage turns validator errors into a short client-facing message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := map[string]string{"Content": "content", "TTLSeconds": "ttl_seconds"}[fe.Field()]
		if field == "" {
			field = fe.Field()
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" required")
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", field, fe.Param()))
		case "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
