package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/telemetry"
)

const streamBuffer = 64

// handleStream handles GET /v1/segments/stream. It sends an init event, then
// one event per registry change, with a comment line as heartbeat.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	changes, unsubscribe := s.reg.Subscribe(streamBuffer)
	defer unsubscribe()

	telemetry.SSEClients.Inc()
	defer telemetry.SSEClients.Dec()

	log := hlog.FromRequest(r)
	w.WriteHeader(http.StatusOK)
	if err := writeEvent(w, "init", map[string]any{
		"connectedAt": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		log.Warn().Err(err).Msg("stream flush unsupported")
		return
	}

	ticker := time.NewTicker(s.opts.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if err := writeEvent(w, string(c.Type), c); err != nil {
				log.Debug().Err(err).Msg("stream client gone")
				return
			}
			_ = rc.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
