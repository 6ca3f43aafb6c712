package email

import (
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"time"
)

const outboxSize = 100

type Message struct {
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sentAt"`
}

// Handler is a mail sink. It accepts messages, simulates relay latency and
// keeps the most recent ones for inspection.
type Handler struct {
	logger   *slog.Logger
	maxDelay time.Duration

	mu     sync.Mutex
	outbox []Message
}

func NewHandler(logger *slog.Logger, maxDelay time.Duration) *Handler {
	return &Handler{
		logger:   logger,
		maxDelay: maxDelay,
	}
}

type sendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type sendResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := mail.ParseAddress(req.To); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid recipient")
		return
	}
	if strings.TrimSpace(req.Subject) == "" {
		h.writeError(w, http.StatusBadRequest, "missing subject")
		return
	}

	if h.maxDelay > 0 {
		delay := time.Duration(rand.Int64N(int64(h.maxDelay)))
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	h.record(Message{To: req.To, Subject: req.Subject, Body: req.Body, SentAt: time.Now().UTC()})
	h.logger.Info("email sent", "to", req.To, "subject", req.Subject)

	h.writeJSON(w, http.StatusOK, sendResponse{Status: "sent"})
}

// HandleList returns the retained messages, newest last.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	out := make([]Message, len(h.outbox))
	copy(out, h.outbox)
	h.mu.Unlock()

	if to := r.URL.Query().Get("to"); to != "" {
		filtered := out[:0]
		for _, m := range out {
			if strings.EqualFold(m.To, to) {
				filtered = append(filtered, m)
			}
		}
		out = filtered
	}

	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) record(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.outbox = append(h.outbox, m)
	if len(h.outbox) > outboxSize {
		h.outbox = h.outbox[len(h.outbox)-outboxSize:]
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
