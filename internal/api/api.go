package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/pitchline/pulse/internal/config"
	"github.com/pitchline/pulse/internal/event"
	"github.com/pitchline/pulse/internal/hub"
	"github.com/pitchline/pulse/internal/poll"
	"github.com/pitchline/pulse/internal/session"
)

// Resolver is the credential-to-principal boundary consumed by the API.
// Satisfied by *session.Resolver; faked in tests.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (session.Principal, error)
}

type API struct {
	cfg    *config.Config
	hub    *hub.Hub
	auth   Resolver
	poll   *poll.Service
	logger *slog.Logger

	anonChannels map[string]struct{}
}

func New(cfg *config.Config, h *hub.Hub, auth Resolver, pollSvc *poll.Service, logger *slog.Logger) *API {
	anon := make(map[string]struct{}, len(cfg.Auth.AnonymousChannels))
	for _, ch := range cfg.Auth.AnonymousChannels {
		anon[ch] = struct{}{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &API{cfg: cfg, hub: h, auth: auth, poll: pollSvc, logger: logger, anonChannels: anon}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"status": "ok", "hub": a.hub.Stats()})
	})

	r.Handle("/metrics", promhttp.Handler())

	// Realtime transports
	r.Get("/ws", a.handleWS)
	r.Get("/events/stream", a.handleStream)

	// Push an event toward a principal or channel. Fire-and-forget for
	// the caller: delivery problems never produce a non-2xx here.
	// POST /internal/push {"target":"42","type":"chat_message","data":{...}}
	r.Post("/internal/push", func(w http.ResponseWriter, r *http.Request) {
		if !a.pushAuthorized(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req struct {
			Target string          `json:"target"`
			Type   string          `json:"type"`
			Data   json.RawMessage `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.Target == "" || req.Type == "" {
			http.Error(w, "target and type required", http.StatusBadRequest)
			return
		}
		res, err := a.hub.Push(req.Target, event.New(req.Type, req.Data))
		if err != nil {
			if errors.Is(err, hub.ErrHubUnavailable) {
				a.logger.Warn("push skipped, hub unavailable", "target", req.Target, "type", req.Type)
				writeJSON(w, map[string]any{"delivered": false, "reason": "hub_unavailable"})
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"delivered": true, "recipients": res.Recipients})
	})

	// Polling fallback for clients without a persistent connection.
	// GET /poll/{resource}?since=<unix ms>
	r.Get("/poll/{resource}", func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.auth.Resolve(r.Context(), credentialFrom(r))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		resource, ok := poll.ParseResource(chi.URLParam(r, "resource"))
		if !ok {
			http.Error(w, "unknown resource", http.StatusBadRequest)
			return
		}
		var since int64
		if s := r.URL.Query().Get("since"); s != "" {
			since, err = strconv.ParseInt(s, 10, 64)
			if err != nil {
				http.Error(w, "bad since cursor", http.StatusBadRequest)
				return
			}
		}
		resp, err := a.poll.Poll(r.Context(), principal.ID, resource, since)
		if err != nil {
			a.logger.Error("poll failed", "principal", principal.ID, "resource", resource, "err", err)
			http.Error(w, "poll failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, resp)
	})

	r.Get("/presence/online", func(w http.ResponseWriter, r *http.Request) {
		if _, err := a.auth.Resolve(r.Context(), credentialFrom(r)); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		users := a.hub.Online()
		writeJSON(w, map[string]any{"count": len(users), "users": users})
	})

	return r
}

func (a *API) pushAuthorized(r *http.Request) bool {
	if a.cfg.Push.KeyHash == "" {
		return true
	}
	key := r.Header.Get("X-Pulse-Key")
	if key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.cfg.Push.KeyHash), []byte(key)) == nil
}

// credentialFrom pulls the connection credential from the token query
// param, bearer header or session cookie, in that order.
func credentialFrom(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie("pulse_session"); err == nil {
		return c.Value
	}
	return ""
}

func (a *API) anonymousAllowed(channel string) bool {
	_, ok := a.anonChannels[channel]
	return ok
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
