package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// generatePayload mirrors the subset of an Ollama /api/generate request
// body the gateway sends (internal/proxy.generatePayload).
type generatePayload struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

func main() {
	// Get port from command line or use default
	port := "8081"
	if len(os.Args) > 1 {
		port = os.Args[1]
	}

	// Health check endpoint
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"healthy","port":%s}`, port)
	})

	// /api/tags lists installed models, the shape handleListModels fans out to.
	http.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[Port %s] %s %s", port, r.Method, r.RequestURI)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"models":[{"name":"deepseek-coder:6.7b","size":3800000000,"modified_at":%q}]}`,
			time.Now().UTC().Format(time.RFC3339))
	})

	// /api/generate streams NDJSON frames, the shape internal/proxy parses.
	http.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[Port %s] %s %s", port, r.Method, r.RequestURI)

		var req generatePayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, `{"error":"invalid request body"}`)
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher, _ := w.(http.Flusher)

		words := strings.Fields(fmt.Sprintf("echo from %s: %s", port, req.Prompt))
		if len(words) == 0 {
			words = []string{"ok"}
		}
		enc := json.NewEncoder(w)
		for _, word := range words {
			enc.Encode(map[string]interface{}{
				"model":    req.Model,
				"response": word + " ",
				"done":     false,
			})
			if flusher != nil {
				flusher.Flush()
			}
		}
		enc.Encode(map[string]interface{}{
			"model":          req.Model,
			"response":       "",
			"done":           true,
			"total_tokens":   len(words),
			"total_duration": int64(len(words)) * time.Millisecond.Nanoseconds(),
		})
	})

	// /api/pull streams progress frames, the shape pullModelOnBackend parses.
	http.HandleFunc("/api/pull", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[Port %s] %s %s", port, r.Method, r.RequestURI)
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher, _ := w.(http.Flusher)
		enc := json.NewEncoder(w)
		enc.Encode(map[string]string{"status": "pulling manifest"})
		if flusher != nil {
			flusher.Flush()
		}
		enc.Encode(map[string]string{"status": "success"})
	})

	// Main endpoint for ad-hoc manual probing.
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[Port %s] %s %s", port, r.Method, r.RequestURI)

		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"backend":"test-ollama","port":%s,"method":"%s"}`, port, r.Method)

		case "/delay":
			time.Sleep(100 * time.Millisecond)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"status":"ok","delay_ms":100}`)

		case "/error":
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(w, `{"error":"simulated error"}`)

		default:
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"path":"%s","port":%s}`, r.URL.Path, port)
		}
	})

	addr := fmt.Sprintf(":%s", port)
	log.Printf("Fake Ollama backend listening on port %s", port)
	log.Fatal(http.ListenAndServe(addr, nil))
}
