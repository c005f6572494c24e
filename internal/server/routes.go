package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/platform"
)

// requestTimeout bounds plain HTTP handlers. Websocket routes are exempt.
const requestTimeout = 30 * time.Second

// Status exposes the runtime state the admin API reports.
type Status interface {
	StageNames() []string
	PlatformStats() []platform.Stats
	Plugins() []ports.PluginInfo
	QueueDepth() int
	RunningTasks() int
}

// Ingress is a platform that accepts pushed events over HTTP.
type Ingress interface {
	Name() string
	ServeHTTP(w http.ResponseWriter, r *http.Request)
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// MountStatus adds /healthz and the token-protected /api endpoints.
func (s *Server) MountStatus(st Status, adminToken string) {
	s.Router.With(RequestTimeout(requestTimeout)).Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.Router.Route("/api", func(r chi.Router) {
		r.Use(RequestTimeout(requestTimeout))
		r.Use(AuthMiddleware(adminToken))

		r.Get("/stages", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"stages": st.StageNames()})
		})
		r.Get("/platforms", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"platforms": st.PlatformStats()})
		})
		r.Get("/plugins", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"plugins": pluginViews(st.Plugins())})
		})
		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]int{
				"queue_depth":   st.QueueDepth(),
				"running_tasks": st.RunningTasks(),
			})
		})
	})
}

// MountIngress exposes a platform's push endpoints at /onebot/{name} (HTTP
// POST) and /onebot/{name}/ws (reverse websocket).
func (s *Server) MountIngress(in Ingress, limiter func(http.Handler) http.Handler) {
	base := "/onebot/" + in.Name()
	post := s.Router.With(RequestTimeout(requestTimeout))
	if limiter != nil {
		post = post.With(limiter)
	}
	post.Post(base, in.ServeHTTP)
	s.Router.Get(base+"/ws", in.ServeWS)
}

type pluginView struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description,omitempty"`
	Enabled     bool     `json:"enabled"`
	Commands    []string `json:"commands,omitempty"`
}

func pluginViews(infos []ports.PluginInfo) []pluginView {
	out := make([]pluginView, 0, len(infos))
	for _, info := range infos {
		out = append(out, pluginView(info))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"message": message},
	})
}
