package api

import "net/http"

// Heartbeat handles GET /__heartbeat__. It probes the backing store and
// reports 503 when the store is unreachable, so orchestration can pull
// the instance out of rotation.
func (a *API) Heartbeat(w http.ResponseWriter, r *http.Request) {
	resp := HeartbeatResponse{
		Status:   "Ok",
		Database: "Ok",
		Version:  a.version,
	}
	status := http.StatusOK

	if err := a.repo.Check(r.Context()); err != nil {
		resp.Status = "Err"
		resp.Database = "Err"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}

// LBHeartbeat handles GET /__lbheartbeat__. It answers without touching
// the store; load balancers poll it at high frequency.
func (a *API) LBHeartbeat(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct{}{})
}
