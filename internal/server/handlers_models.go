package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// modelInfo mirrors the upstream /api/tags entry, supplemented with
// which backend reported it.
type modelInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type,omitempty"`
	Size       int64  `json:"size,omitempty"`
	Modified   string `json:"modified,omitempty"`
	Available  bool   `json:"available"`
}

type tagsResponse struct {
	Models []struct {
		Name       string `json:"name"`
		Size       int64  `json:"size"`
		ModifiedAt string `json:"modified_at"`
	} `json:"models"`
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	seen := map[string]modelInfo{}
	for _, b := range s.deps.Registry.List() {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.URL.String()+"/api/tags", nil)
		if err != nil {
			continue
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			s.deps.Logger.Warn("list_models_backend_unreachable", "backend", b.ID, "err", err)
			continue
		}
		var tags tagsResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&tags)
		resp.Body.Close()
		if decodeErr != nil {
			continue
		}
		for _, m := range tags.Models {
			mtype := "chat"
			if strings.Contains(strings.ToLower(m.Name), "coder") {
				mtype = "code"
			}
			seen[m.Name] = modelInfo{Name: m.Name, Type: mtype, Size: m.Size, Modified: m.ModifiedAt, Available: true}
		}
	}

	out := make([]modelInfo, 0, len(seen))
	for _, m := range seen {
		out = append(out, m)
	}
	renderJSON(w, http.StatusOK, out)
}

func (s *Server) handlePullModel(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		renderError(w, badRequest("model name is required"))
		return
	}

	for _, b := range s.deps.Registry.List() {
		go s.pullModelOnBackend(b.URL.String(), name)
	}

	renderJSON(w, http.StatusAccepted, map[string]string{
		"message":    "Started pulling model " + name,
		"model_name": name,
	})
}

// pullModelOnBackend streams the upstream pull's NDJSON progress
// frames, logging the terminal status rather than blocking the
// request, matching the original's fire-and-forget background task.
func (s *Server) pullModelOnBackend(baseURL, name string) {
	body, _ := json.Marshal(map[string]string{"name": name})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		s.deps.Logger.Error("model_pull_request_build_failed", "backend", baseURL, "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		s.deps.Logger.Error("model_pull_failed", "backend", baseURL, "model", name, "err", err)
		return
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var frame struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal([]byte(line), &frame); err != nil {
			continue
		}
		if frame.Status == "success" {
			s.deps.Logger.Info("model_pulled", "backend", baseURL, "model", name)
			return
		}
	}
}

func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	renderError(w, notImplemented("model deletion is not implemented"))
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	backends := s.deps.Registry.List()
	snapshots := make([]interface{}, 0, len(backends))
	for _, b := range backends {
		snapshots = append(snapshots, b.Snapshot())
	}
	renderJSON(w, http.StatusOK, snapshots)
}
