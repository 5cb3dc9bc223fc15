package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/trackevolve/internal/controller"
	"github.com/ukydev/trackevolve/internal/db"
	"github.com/ukydev/trackevolve/internal/episode"
	"github.com/ukydev/trackevolve/internal/middleware"
	"github.com/ukydev/trackevolve/internal/models"
	"github.com/ukydev/trackevolve/internal/sim"
)

const (
	maxEpisodeBody   = 8 << 20
	MaxAgents        = 256
	defaultListLimit = 50
)

// Simulator is the server's fixed simulation setup.
type Simulator struct {
	Track     *sim.Track
	TrackName string
	Spec      sim.VehicleSpec
	Start     sim.Pose
	Options   episode.Options
	Drift     bool
}

// ObserverFactory builds fresh observers for one episode run.
type ObserverFactory func() []episode.Observer

// EpisodeHandler runs and serves episodes.
type EpisodeHandler struct {
	sim       Simulator
	episodes  db.EpisodeCollection
	frames    db.TelemetryCollection
	observers ObserverFactory
}

// NewEpisodeHandler wires the episode routes. frames and observers may be nil.
func NewEpisodeHandler(s Simulator, episodes db.EpisodeCollection, frames db.TelemetryCollection, observers ObserverFactory) *EpisodeHandler {
	return &EpisodeHandler{sim: s, episodes: episodes, frames: frames, observers: observers}
}

// Run evaluates the posted networks, one agent each, and stores the result.
func (h *EpisodeHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req models.RunEpisodeRequest
	if err := decodeJSON(w, r, maxEpisodeBody, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if len(req.Networks) == 0 {
		http.Error(w, "At least one network is required", http.StatusBadRequest)
		return
	}
	if len(req.Networks) > MaxAgents {
		http.Error(w, "Too many networks, max "+strconv.Itoa(MaxAgents), http.StatusBadRequest)
		return
	}
	if req.MaxFrames < 0 {
		http.Error(w, "max_frames must not be negative", http.StatusBadRequest)
		return
	}

	inputs := len(h.sim.Spec.SensorAngles)
	ctrls := make([]controller.Controller, len(req.Networks))
	for i, raw := range req.Networks {
		net := toFeedForward(raw)
		if err := net.Validate(inputs); err != nil {
			http.Error(w, "network "+strconv.Itoa(i)+": "+err.Error(), http.StatusBadRequest)
			return
		}
		ctrls[i] = net
	}

	start := h.sim.Start
	if req.Start != nil {
		start = sim.Pose{X: req.Start.X, Y: req.Start.Y, Angle: req.Start.Angle}
	}
	agents, err := episode.Spawn(h.sim.Spec, start, ctrls)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	opts := h.sim.Options
	if req.MaxFrames > 0 && req.MaxFrames < opts.MaxFrames {
		opts.MaxFrames = req.MaxFrames
	}
	var observers []episode.Observer
	if h.observers != nil {
		observers = h.observers()
	}
	runner := episode.NewRunner(h.sim.Track, opts, observers...)

	id := uuid.New()
	res, err := runner.Run(r.Context(), id, agents)
	if err != nil {
		log.WithError(err).WithField("episode_id", id).Warn("Episode run failed")
		http.Error(w, "Episode aborted", http.StatusServiceUnavailable)
		return
	}

	createdBy := ""
	if claims, ok := middleware.GetUserFromContext(r.Context()); ok {
		createdBy = claims.Username
	}
	doc := res.Document(h.sim.TrackName, createdBy, runner.Options().MaxFrames, h.sim.Drift)
	if err := h.episodes.InsertEpisode(r.Context(), doc); err != nil {
		log.WithError(err).WithField("episode_id", id).Error("Failed to store episode")
		http.Error(w, "Failed to store episode", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// List returns stored episodes without per-agent detail.
func (h *EpisodeHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, db.MaxEpisodeList)
	}
	episodes, err := h.episodes.FindEpisodes(r.Context(), limit)
	if err != nil {
		log.WithError(err).Error("Failed to list episodes")
		http.Error(w, "Failed to list episodes", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, episodes)
}

// Get returns one episode.
func (h *EpisodeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := episodeID(w, r)
	if !ok {
		return
	}
	ep, err := h.episodes.FindEpisodeByID(r.Context(), id)
	if err != nil {
		storeError(w, err, "Failed to load episode")
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

// Frames returns the stored telemetry of one agent, selected by the
// agent query parameter.
func (h *EpisodeHandler) Frames(w http.ResponseWriter, r *http.Request) {
	if h.frames == nil {
		http.Error(w, "Telemetry storage is disabled", http.StatusNotFound)
		return
	}
	id, ok := episodeID(w, r)
	if !ok {
		return
	}
	agent, err := strconv.Atoi(r.URL.Query().Get("agent"))
	if err != nil || agent < 0 {
		http.Error(w, "agent must be a non-negative integer", http.StatusBadRequest)
		return
	}
	frames, err := h.frames.FindFrames(r.Context(), id, agent)
	if err != nil {
		storeError(w, err, "Failed to load frames")
		return
	}
	writeJSON(w, http.StatusOK, frames)
}

// Delete removes an episode and its telemetry.
func (h *EpisodeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := episodeID(w, r)
	if !ok {
		return
	}
	if err := h.episodes.DeleteEpisode(r.Context(), id); err != nil {
		storeError(w, err, "Failed to delete episode")
		return
	}
	if h.frames != nil {
		n, err := h.frames.DeleteEpisodeFrames(r.Context(), id)
		if err != nil {
			log.WithError(err).WithField("episode_id", id).Warn("Failed to delete telemetry")
		} else {
			log.WithFields(log.Fields{"episode_id": id, "frames": n}).Debug("Deleted telemetry")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func toFeedForward(raw models.RawNetwork) *controller.FeedForward {
	net := &controller.FeedForward{Layers: make([]controller.Layer, len(raw.Layers))}
	for i, l := range raw.Layers {
		net.Layers[i] = controller.Layer{Weights: l.Weights, Biases: l.Biases}
	}
	return net
}

func episodeID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		http.Error(w, "Invalid episode ID", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func storeError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, db.ErrNotFound) {
		http.Error(w, "Episode not found", http.StatusNotFound)
		return
	}
	log.WithError(err).Error(msg)
	http.Error(w, msg, http.StatusInternalServerError)
}

// Routes registers the API on mux behind authentication, permission
// checks and rate limiting.
func Routes(mux *http.ServeMux, authH *AuthHandler, epH *EpisodeHandler, authMW *middleware.AuthMiddleware) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /api/auth/login", authH.Login)
	mux.HandleFunc("POST /api/auth/register", authH.Register)

	guard := func(perm string, h http.HandlerFunc) http.Handler {
		return authMW.Authenticate(authMW.RequirePermission(perm)(h))
	}
	mux.Handle("POST /api/episodes", guard(models.PermRunEpisode, epH.Run))
	mux.Handle("GET /api/episodes", guard(models.PermViewEpisodes, epH.List))
	mux.Handle("GET /api/episodes/{id}", guard(models.PermViewEpisodes, epH.Get))
	mux.Handle("GET /api/episodes/{id}/frames", guard(models.PermViewEpisodes, epH.Frames))
	mux.Handle("DELETE /api/episodes/{id}", guard(models.PermDeleteEpisode, epH.Delete))
}
