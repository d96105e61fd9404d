// Package admin serves the read-only HTTP status surface: a JSON /status
// endpoint describing loaded zones, and /metrics delegated to
// internal/metrics's Prometheus registry. It is grounded on
// plugins/dashboard/dashboard.go's RegisterHandlers/Start shape, trimmed
// to what SPEC_FULL.md's admin module calls for: the dashboard's
// zone-CRUD API (POST/PUT/DELETE on /zones, /zones/{name}/records,
// import/export) is dropped since RFC 2136 UPDATE is this server's one
// zone-mutation path — a parallel HTTP surface for the same job is
// redundant. The dashboard's hardcoded BasicAuth credentials and its
// ServerRole=="master" gate are dropped with them: read-only status has
// no comparable abuse surface to gate.
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"authdns/internal/zone"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves /status and /metrics.
type Handler struct {
	store   *zone.Store
	started time.Time
}

// New returns a Handler reporting on store's contents.
func New(store *zone.Store) *Handler {
	return &Handler{store: store, started: time.Now()}
}

type zoneStatus struct {
	Apex    string `json:"apex"`
	Serial  uint32 `json:"serial"`
	RRCount int    `json:"rr_count"`
}

type status struct {
	ZoneCount  int          `json:"zone_count"`
	Zones      []zoneStatus `json:"zones"`
	UptimeSecs int64        `json:"uptime_seconds"`
}

// RegisterHandlers wires /status and /metrics onto mux.
func (h *Handler) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/status", h.serveStatus)
	mux.Handle("/metrics", promhttp.Handler())
}

func (h *Handler) serveStatus(w http.ResponseWriter, r *http.Request) {
	st := status{UptimeSecs: int64(time.Since(h.started).Seconds())}
	h.store.Iterate(func(z *zone.Zone) {
		serial := uint32(0)
		if soa := z.SOA(); soa != nil {
			serial = soa.Serial
		}
		st.Zones = append(st.Zones, zoneStatus{
			Apex:    z.Apex,
			Serial:  serial,
			RRCount: len(z.RRs),
		})
	})
	st.ZoneCount = len(st.Zones)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}
