package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/workledger/workledger/pkg/backend"
)

func (a *App) handleSwitch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StoreID string `json:"storeId"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		a.respondErr(w, r, err)
		return
	}
	if req.StoreID == "" {
		respondError(w, http.StatusBadRequest, "storeId is required")
		return
	}
	if err := a.reg.SwitchTo(r.Context(), req.StoreID); err != nil {
		a.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, a.reg.Snapshot())
}

func (a *App) handleStrategy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Strategy string `json:"strategy"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		a.respondErr(w, r, err)
		return
	}
	s, err := backend.ParseStrategy(req.Strategy)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	if err := a.reg.SetStrategy(s); err != nil {
		a.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, a.reg.Snapshot())
}

func (a *App) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := a.reg.SetEnabled(vars["id"], vars["action"] == "enable"); err != nil {
		a.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, a.reg.Snapshot())
}

func (a *App) handleReadOnly(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReadOnly bool `json:"readOnly"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		a.respondErr(w, r, err)
		return
	}
	a.SetReadOnly(req.ReadOnly)
	respondJSON(w, http.StatusOK, map[string]bool{"readOnly": a.IsReadOnly()})
}

type probeResponse struct {
	StoreID   string  `json:"storeId"`
	Healthy   bool    `json:"healthy"`
	LatencyMS float64 `json:"latencyMs"`
	Error     string  `json:"error,omitempty"`
}

func (a *App) handleProbe(w http.ResponseWriter, r *http.Request) {
	res, err := a.reg.Probe(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	out := probeResponse{
		StoreID:   res.StoreID,
		Healthy:   res.Healthy,
		LatencyMS: float64(res.Latency.Microseconds()) / 1000,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	respondJSON(w, http.StatusOK, out)
}
