// example-engine é um motor de diálogo de mentira para rodar o gatekeeper localmente.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
)

type event struct {
	Event     string  `json:"event"`
	Text      string  `json:"text,omitempty"`
	Timestamp float64 `json:"timestamp"`
}

type engine struct {
	mu      sync.Mutex
	history map[string][]event
}

func (e *engine) webhook(w http.ResponseWriter, r *http.Request) {
	var msg struct {
		Sender  string `json:"sender"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	now := float64(time.Now().UnixMilli()) / 1000
	reply := "Recibí: " + msg.Message

	e.mu.Lock()
	e.history[msg.Sender] = append(e.history[msg.Sender],
		event{Event: "user", Text: msg.Message, Timestamp: now},
		event{Event: "bot", Text: reply, Timestamp: now},
	)
	e.mu.Unlock()

	writeJSON(w, []map[string]string{{"recipient_id": msg.Sender, "text": reply}})
}

func (e *engine) tracker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	e.mu.Lock()
	events, ok := e.history[id]
	events = append([]event(nil), events...)
	e.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	var latestText string
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Event == "user" {
			latestText = events[i].Text
			break
		}
	}
	writeJSON(w, map[string]any{
		"sender_id":         id,
		"events":            events,
		"latest_event_time": events[len(events)-1].Timestamp,
		"latest_message":    map[string]string{"text": latestText},
		"paused":            false,
	})
}

func (e *engine) parse(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Text string `json:"text"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	writeJSON(w, map[string]any{
		"text":   in.Text,
		"intent": map[string]any{"name": "book_appointment", "confidence": 0.9},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	e := &engine{history: make(map[string][]event)}

	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Hello from example engine\n"))
	})
	r.Post("/webhooks/rest/webhook", e.webhook)
	r.Get("/conversations/{id}/tracker", e.tracker)
	r.Post("/model/parse", e.parse)

	addr := ":5006"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example engine listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
