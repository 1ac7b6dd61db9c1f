package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kopiad/internal/bridge"
	"kopiad/internal/engine"
	"kopiad/internal/engineapi"
	"kopiad/pkg/types"
)

// Deps binds the gateway to its collaborators.
type Deps struct {
	Registry *engine.Registry
	Bridge   *bridge.Bridge
	Hub      *Hub
}

// startRequest is the optional body of POST /repos/{repoID}/start.
type startRequest struct {
	// Override of the daemon's config directory for this repository.
	ConfigDir string `json:"configDir,omitempty"`
}

// NewMux builds the gateway router.
func NewMux(d Deps) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(MetricsMiddleware)
	r.Use(RequestLogger)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.StatusResponse{
			Instances:        d.Registry.StatusAll(),
			ConnectedStreams: len(d.Bridge.ConnectedRepos()),
		})
	})

	r.Get("/repos", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"repos": d.Registry.StatusAll()})
	})

	r.Route("/repos/{repoID}", func(r chi.Router) {
		r.Post("/start", d.handleStart)
		r.Post("/stop", d.handleStop)
		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, d.Registry.Status(repoParam(r)))
		})

		// Engine API pass-through. Each handler resolves the instance's
		// authenticated client; absent or not-yet-ready instances fail fast.
		r.Get("/repo", d.proxy(func(c *engineapi.Client, r *http.Request) (any, error) {
			return c.Status(r.Context())
		}))
		r.Get("/repo/algorithms", d.proxy(func(c *engineapi.Client, r *http.Request) (any, error) {
			return c.Algorithms(r.Context())
		}))
		r.Post("/repo/connect", d.proxyBody(func(c *engineapi.Client, r *http.Request, body json.RawMessage) (any, error) {
			var req engineapi.ConnectRequest
			if err := json.Unmarshal(body, &req); err != nil {
				return nil, errBadBody
			}
			return c.ConnectRepository(r.Context(), req)
		}))
		r.Post("/repo/create", d.proxyBody(func(c *engineapi.Client, r *http.Request, body json.RawMessage) (any, error) {
			var req engineapi.CreateRequest
			if err := json.Unmarshal(body, &req); err != nil {
				return nil, errBadBody
			}
			return c.CreateRepository(r.Context(), req)
		}))
		r.Post("/repo/disconnect", d.proxy(func(c *engineapi.Client, r *http.Request) (any, error) {
			return nil, c.DisconnectRepository(r.Context())
		}))
		r.Post("/repo/maintenance", d.proxyBody(func(c *engineapi.Client, r *http.Request, body json.RawMessage) (any, error) {
			var req engineapi.MaintenanceRequest
			if len(body) > 0 {
				if err := json.Unmarshal(body, &req); err != nil {
					return nil, errBadBody
				}
			}
			return nil, c.RunMaintenance(r.Context(), req)
		}))

		r.Get("/sources", d.proxy(func(c *engineapi.Client, r *http.Request) (any, error) {
			return c.Sources(r.Context())
		}))
		r.Get("/snapshots", d.proxy(func(c *engineapi.Client, r *http.Request) (any, error) {
			return c.Snapshots(r.Context(), sourceFromQuery(r))
		}))
		r.Post("/snapshots", d.proxy(func(c *engineapi.Client, r *http.Request) (any, error) {
			return nil, c.CreateSnapshot(r.Context(), sourceFromQuery(r))
		}))

		r.Get("/policies", d.proxy(func(c *engineapi.Client, r *http.Request) (any, error) {
			return c.Policies(r.Context())
		}))
		r.Get("/policy", d.proxy(func(c *engineapi.Client, r *http.Request) (any, error) {
			return c.Policy(r.Context(), sourceFromQuery(r))
		}))
		r.Put("/policy", d.proxyBody(func(c *engineapi.Client, r *http.Request, body json.RawMessage) (any, error) {
			return nil, c.SetPolicy(r.Context(), sourceFromQuery(r), body)
		}))
		r.Delete("/policy", d.proxy(func(c *engineapi.Client, r *http.Request) (any, error) {
			return nil, c.DeletePolicy(r.Context(), sourceFromQuery(r))
		}))

		r.Get("/tasks", d.proxy(func(c *engineapi.Client, r *http.Request) (any, error) {
			return c.Tasks(r.Context())
		}))
		r.Get("/tasks/{taskID}", d.proxy(func(c *engineapi.Client, r *http.Request) (any, error) {
			return c.Task(r.Context(), chi.URLParam(r, "taskID"))
		}))
		r.Get("/tasks/{taskID}/logs", d.proxy(func(c *engineapi.Client, r *http.Request) (any, error) {
			return c.TaskLogs(r.Context(), chi.URLParam(r, "taskID"))
		}))
		r.Post("/tasks/{taskID}/cancel", d.proxy(func(c *engineapi.Client, r *http.Request) (any, error) {
			return nil, c.CancelTask(r.Context(), chi.URLParam(r, "taskID"))
		}))

		r.Post("/restore", d.proxyBody(func(c *engineapi.Client, r *http.Request, body json.RawMessage) (any, error) {
			var req engineapi.RestoreRequest
			if err := json.Unmarshal(body, &req); err != nil {
				return nil, errBadBody
			}
			return c.Restore(r.Context(), req)
		}))

		r.Get("/mounts", d.proxy(func(c *engineapi.Client, r *http.Request) (any, error) {
			return c.Mounts(r.Context())
		}))
		r.Post("/mounts", d.proxyBody(func(c *engineapi.Client, r *http.Request, body json.RawMessage) (any, error) {
			var req engineapi.MountRequest
			if err := json.Unmarshal(body, &req); err != nil {
				return nil, errBadBody
			}
			return c.Mount(r.Context(), req)
		}))
		r.Delete("/mounts/{rootID}", d.proxy(func(c *engineapi.Client, r *http.Request) (any, error) {
			return nil, c.Unmount(r.Context(), chi.URLParam(r, "rootID"))
		}))
	})

	r.Get("/events", d.Hub.ServeWS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		for _, st := range d.Registry.StatusAll() {
			if !st.Running {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("degraded"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

func repoParam(r *http.Request) types.RepoID {
	return types.RepoID(chi.URLParam(r, "repoID"))
}

func sourceFromQuery(r *http.Request) engineapi.SourceInfo {
	q := r.URL.Query()
	return engineapi.SourceInfo{
		UserName: q.Get("userName"),
		Host:     q.Get("host"),
		Path:     q.Get("path"),
	}
}

// handleStart spawns the instance, waits for readiness and connects its event
// stream. A stream connect failure is logged but does not fail the start.
func (d Deps) handleStart(w http.ResponseWriter, r *http.Request) {
	repoID := repoParam(r)
	var req startRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	info, err := d.Registry.Start(repoID, req.ConfigDir)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	if err := d.Registry.WaitReady(ctx, repoID); err != nil {
		writeError(w, err)
		return
	}
	if err := d.Bridge.Connect(ctx, repoID, info.BaseURL, engine.ServerUsername, info.Password); err != nil && !bridge.IsAlreadyConnected(err) {
		log.Printf("httpapi=start event=stream_connect_failed repo=%s err=%v", repoID, err)
	}
	writeJSON(w, http.StatusCreated, info)
}

func (d Deps) handleStop(w http.ResponseWriter, r *http.Request) {
	repoID := repoParam(r)
	if err := d.Bridge.Disconnect(repoID); err != nil && !bridge.IsNotConnected(err) {
		log.Printf("httpapi=stop event=stream_disconnect_failed repo=%s err=%v", repoID, err)
	}
	if err := d.Registry.Stop(repoID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Registry.Status(repoID))
}

var errBadBody = errors.New("invalid JSON body")

type proxyFunc func(c *engineapi.Client, r *http.Request) (any, error)

type proxyBodyFunc func(c *engineapi.Client, r *http.Request, body json.RawMessage) (any, error)

// proxy wraps one engine API call: resolve the instance's client, run the
// call with the joined context, map errors, encode the result.
func (d Deps) proxy(fn proxyFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := d.engineClient(w, repoParam(r))
		if !ok {
			return
		}
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		out, err := fn(c, r.WithContext(ctx))
		d.finish(w, out, err)
	}
}

func (d Deps) proxyBody(fn proxyBodyFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := d.engineClient(w, repoParam(r))
		if !ok {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		out, err := fn(c, r.WithContext(ctx), body)
		d.finish(w, out, err)
	}
}

func (d Deps) finish(w http.ResponseWriter, out any, err error) {
	if errors.Is(err, errBadBody) {
		writeJSONError(w, http.StatusBadRequest, errBadBody.Error())
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// engineClient resolves the authenticated client for repoID, writing the
// error response itself when the instance is absent or not ready.
func (d Deps) engineClient(w http.ResponseWriter, repoID types.RepoID) (*engineapi.Client, bool) {
	inst, ok := d.Registry.Get(repoID)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "repository not running: "+string(repoID))
		return nil, false
	}
	hc := inst.Client()
	if hc == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "repository not ready: "+string(repoID))
		return nil, false
	}
	return engineapi.New(inst.BaseURL(), hc), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("httpapi=encode event=error err=%v", err)
	}
}
