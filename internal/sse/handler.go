package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultHeartbeat = 30 * time.Second
	writeTimeout     = 60 * time.Second
)

// Handler serves a user's live stream of sync and category events.
type Handler struct {
	manager   *Manager
	logger    *slog.Logger
	heartbeat time.Duration
}

// NewHandler creates a Handler that sends a heartbeat every 30 seconds.
func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	return &Handler{
		manager:   manager,
		logger:    logger,
		heartbeat: defaultHeartbeat,
	}
}

// ServeHTTP streams events for userID until the request ends or the
// manager closes the stream. Authentication happens before this is called.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Context().Err() != nil {
		return
	}

	rc, ok := h.openStream(w)
	if !ok {
		return
	}

	client, err := h.manager.Connect(userID)
	if err != nil {
		h.logger.Error("failed to open event stream", slog.String("user_id", userID), slog.String("error", err.Error()))
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer h.manager.Disconnect(client.ID)

	log := h.logger.With(slog.String("client_id", client.ID), slog.String("user_id", userID))

	hello := map[string]string{"client_id": client.ID, "user_id": userID}
	if err := h.writeFrame(w, rc, "connected", hello); err != nil {
		log.Warn("failed to send connected frame", slog.String("error", err.Error()))
		return
	}

	h.pump(w, r, rc, client, log)
}

// openStream writes the event-stream headers and flushes them.
func (h *Handler) openStream(w http.ResponseWriter) (*http.ResponseController, bool) {
	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		h.logger.Error("response writer cannot stream", slog.String("error", err.Error()))
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return nil, false
	}
	return rc, true
}

func (h *Handler) pump(w http.ResponseWriter, r *http.Request, rc *http.ResponseController, client *Client, log *slog.Logger) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		var event Event
		select {
		case e, ok := <-client.Events:
			if !ok {
				return
			}
			event = e
		case <-ticker.C:
			event = NewHeartbeatEvent()
		case <-client.Done:
			log.Debug("event stream closed by server")
			return
		case <-r.Context().Done():
			log.Debug("event stream closed by client")
			return
		}

		if err := h.writeFrame(w, rc, string(event.Type), event); err != nil {
			log.Debug("event stream write failed", slog.String("event_type", string(event.Type)), slog.String("error", err.Error()))
			return
		}
	}
}

// writeFrame writes "event: <name>" and "data: <json>" followed by a blank
// line, flushes, and pushes the write deadline forward.
func (h *Handler) writeFrame(w http.ResponseWriter, rc *http.ResponseController, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", name, err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}

	// httptest recorders don't support deadlines.
	if err := rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		h.logger.Debug("write deadline unsupported", slog.String("error", err.Error()))
	}
	return nil
}
