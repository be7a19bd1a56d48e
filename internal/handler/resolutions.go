package handler

import (
	"encoding/json"
	"net/http"

	"github.com/web3-frozen/chainsync/internal/chain"
	"github.com/web3-frozen/chainsync/internal/resolve"
	"github.com/web3-frozen/chainsync/internal/sheet"
)

// StartResolution lets operators force a resolution without touching
// the sheet, for example after a provider outage.
func StartResolution(s sheet.Sheet, res Resolver) http.HandlerFunc {
	type request struct {
		Chain string `json:"chain"`
	}
	type response struct {
		Status string `json:"status"`
		Chain  string `json:"chain"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		name := chain.Normalize(req.Chain)
		if name.Empty() {
			http.Error(w, `{"error":"chain required"}`, http.StatusBadRequest)
			return
		}

		rowID, found, err := s.RowByName(r.Context(), name)
		if err != nil {
			http.Error(w, `{"error":"failed to read sheet"}`, http.StatusInternalServerError)
			return
		}
		if !found {
			http.Error(w, `{"error":"no sheet row for chain"}`, http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch {
		case res.Submit(req.Chain, rowID, resolve.ReasonManual):
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(response{Status: "started", Chain: name.String()})
		case res.Active(name):
			// Coalesced onto a resolution already in flight.
			_ = json.NewEncoder(w).Encode(response{Status: "already running", Chain: name.String()})
		default:
			http.Error(w, `{"error":"shutting down"}`, http.StatusServiceUnavailable)
		}
	}
}
