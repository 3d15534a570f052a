package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/QTest-hq/qroute/internal/dispatch"
	"github.com/QTest-hq/qroute/internal/llm"
	"github.com/rs/zerolog/log"
)

// StreamEvent is the payload of one server-sent event
type StreamEvent struct {
	Delta        string     `json:"delta,omitempty"`
	Done         bool       `json:"done"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        *llm.Usage `json:"usage,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// generateStream relays a completion as server-sent events. Failures to open a
// stream are plain JSON errors; failures after the first event arrive as an
// "error" event.
func (s *Server) generateStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var body GenerateRequest
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := body.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	req, query := body.toRequest(r)
	req.Stream = true

	chunks, err := s.llm.GenerateStream(r.Context(), req, query)
	if err != nil {
		log.Error().Err(err).Str("request_id", req.Metadata["request_id"]).Msg("stream open failed")
		respondError(w, statusForError(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// drain until dispatch closes the channel; client disconnects cancel it via r.Context()
	done := false
	for chunk := range chunks {
		done = done || chunk.Done
		ev := StreamEvent{
			Delta:        chunk.Delta,
			Done:         chunk.Done,
			FinishReason: chunk.FinishReason,
			Usage:        chunk.Usage,
		}
		name := "message"
		if chunk.Err != nil {
			name = "error"
			ev.Error = chunk.Err.Error()
		}
		if err := writeEvent(w, name, ev); err != nil {
			log.Debug().Err(err).Msg("stream client went away")
			continue
		}
		flusher.Flush()
	}

	if !done && r.Context().Err() == nil {
		if err := writeEvent(w, "error", StreamEvent{Done: true, Error: dispatch.ErrStreamTruncated.Error()}); err == nil {
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, ev StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
