// Command testserver is a local HTTP target for trying http-bench.
//
//	go run ./scripts/testserver --port 8080
//	http-bench -d 10s -c 8 'http://localhost:8080/items?n=25' --items-path '$.items'
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const maxDelay = 10 * time.Second

func main() {
	port := pflag.IntP("port", "p", 8080, "Listening port")
	pflag.Parse()

	if *port <= 0 {
		log.Fatalf("port must be > 0")
	}

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("test server listening on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           newMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Fatal(srv.ListenAndServe())
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/items", handleItems)
	mux.HandleFunc("/echo", handleEcho)
	mux.HandleFunc("/slow", handleSlow)
	mux.HandleFunc("/status/", handleStatus)
	mux.HandleFunc("/flaky", handleFlaky)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"ok": true, "path": r.URL.Path})
	})
	return mux
}

// handleItems returns n items, for --items-path '$.items'.
func handleItems(w http.ResponseWriter, r *http.Request) {
	n, err := queryInt(r, "n", 10)
	if err != nil || n < 0 || n > 10000 {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "n must be between 0 and 10000"})
		return
	}
	items := make([]int, n)
	for i := range items {
		items[i] = i + 1
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": items, "count": n})
}

func handleEcho(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func handleSlow(w http.ResponseWriter, r *http.Request) {
	delay := 100 * time.Millisecond
	if raw := r.URL.Query().Get("delay"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 || d > maxDelay {
			respondJSON(w, http.StatusBadRequest, map[string]any{"error": "delay must be a duration up to 10s"})
			return
		}
		delay = d
	}
	select {
	case <-time.After(delay):
		respondJSON(w, http.StatusOK, map[string]any{"delay_ms": delay.Milliseconds()})
	case <-r.Context().Done():
	}
}

// handleStatus answers /status/{code} with that code.
func handleStatus(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/status/"))
	if err != nil || code < 200 || code > 599 {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "code must be between 200 and 599"})
		return
	}
	respondJSON(w, code, map[string]any{"status": code})
}

// handleFlaky fails with 503 for the given fraction of requests.
func handleFlaky(w http.ResponseWriter, r *http.Request) {
	rate := 0.1
	if raw := r.URL.Query().Get("rate"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			respondJSON(w, http.StatusBadRequest, map[string]any{"error": "rate must be between 0 and 1"})
			return
		}
		rate = v
	}
	if rand.Float64() < rate {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
