package agent

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/autopeer-io/crossway/internal/crossway/core"
	"github.com/autopeer-io/crossway/internal/crossway/daemon"
	"github.com/autopeer-io/crossway/internal/crossway/journal"
	"github.com/autopeer-io/crossway/internal/crossway/neighbor"
	httpserver "github.com/autopeer-io/crossway/internal/pkg/server/http"
)

const defaultEpisodeLimit = 20

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	VehicleID core.PeerID   `json:"vehicleID"`
	Mode      string        `json:"mode"`
	Lane      core.LaneSpec `json:"lane"`
	daemon.Status
}

// NeighborView is one entry of GET /v1/neighbors.
type NeighborView struct {
	PeerID           core.PeerID   `json:"peerID"`
	Address          string        `json:"address"`
	Port             int           `json:"port"`
	Lane             core.LaneSpec `json:"lane"`
	Status           string        `json:"status"`
	RequestTimestamp time.Time     `json:"requestTimestamp,omitzero"`
	LastSeen         time.Time     `json:"lastSeen"`
}

type statusSource interface {
	Status() daemon.Status
}

type eventSink interface {
	Submit(ev core.IntersectionEvent) error
}

type episodeSource interface {
	Recent(limit int) ([]journal.Episode, error)
}

// handlers serves the agent API. neighbors and episodes are nil when the
// mode or configuration has none.
type handlers struct {
	id        core.PeerID
	mode      string
	lane      core.LaneSpec
	status    statusSource
	events    eventSink
	neighbors func() []neighbor.Record
	episodes  episodeSource
}

func (a *Agent) routes() *handlers {
	h := &handlers{
		id:        a.id,
		mode:      a.mode,
		lane:      a.lane,
		status:    a.daemon,
		events:    a.daemon,
		neighbors: a.neighbors,
	}
	if a.episodes != nil {
		h.episodes = a.episodes
	}
	return h
}

func (h *handlers) register(r *mux.Router) {
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/status", h.getStatus).Methods(http.MethodGet)
	v1.HandleFunc("/neighbors", h.getNeighbors).Methods(http.MethodGet)
	v1.HandleFunc("/events/{event}", h.postEvent).Methods(http.MethodPost)
	v1.HandleFunc("/episodes", h.getEpisodes).Methods(http.MethodGet)
}

func (h *handlers) getStatus(w http.ResponseWriter, _ *http.Request) {
	httpserver.WriteJSON(w, http.StatusOK, StatusResponse{
		VehicleID: h.id,
		Mode:      h.mode,
		Lane:      h.lane,
		Status:    h.status.Status(),
	})
}

func (h *handlers) getNeighbors(w http.ResponseWriter, _ *http.Request) {
	views := []NeighborView{}
	if h.neighbors != nil {
		for _, rec := range h.neighbors() {
			views = append(views, NeighborView{
				PeerID:           rec.PeerID,
				Address:          rec.Address,
				Port:             rec.Port,
				Lane:             rec.Lane,
				Status:           rec.Status.String(),
				RequestTimestamp: rec.RequestTimestamp,
				LastSeen:         rec.LastSeen,
			})
		}
	}
	httpserver.WriteJSON(w, http.StatusOK, views)
}

func (h *handlers) postEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := core.ParseIntersectionEvent(mux.Vars(r)["event"])
	if err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.events.Submit(ev); err != nil {
		if errors.Is(err, daemon.ErrEventQueueFull) {
			httpserver.WriteError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		httpserver.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpserver.WriteJSON(w, http.StatusAccepted, map[string]string{"event": ev.String()})
}

func (h *handlers) getEpisodes(w http.ResponseWriter, r *http.Request) {
	if h.episodes == nil {
		httpserver.WriteError(w, http.StatusNotFound, "journal is disabled")
		return
	}

	limit := defaultEpisodeLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			httpserver.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	episodes, err := h.episodes.Recent(limit)
	if err != nil {
		httpserver.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if episodes == nil {
		episodes = []journal.Episode{}
	}
	httpserver.WriteJSON(w, http.StatusOK, episodes)
}
