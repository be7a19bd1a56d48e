package handler

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/web3-frozen/chainsync/internal/chain"
	"github.com/web3-frozen/chainsync/internal/sheet"
)

// Resolver is the slice of the coordinator the HTTP layer needs.
type Resolver interface {
	Submit(raw string, rowID int64, reason string) bool
	Active(name chain.Name) bool
	Record(name chain.Name) (*chain.Canonical, bool)
}

type chainSummary struct {
	RowID   int64            `json:"row_id"`
	Trigger string           `json:"trigger"`
	Active  bool             `json:"active"`
	Record  *chain.Canonical `json:"record,omitempty"`
}

func ListChains(s sheet.Sheet, res Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := s.Triggers(r.Context())
		if err != nil {
			http.Error(w, `{"error":"failed to read sheet"}`, http.StatusInternalServerError)
			return
		}

		out := make([]chainSummary, 0, len(rows))
		for _, row := range rows {
			name := chain.Normalize(row.Name)
			summary := chainSummary{
				RowID:   row.ID,
				Trigger: row.Name,
				Active:  !name.Empty() && res.Active(name),
			}
			if rec, err := s.ReadOutputs(r.Context(), row.ID); err == nil {
				summary.Record = rec
			}
			out = append(out, summary)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}

func GetChain(s sheet.Sheet, res Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// chi leaves escapes like %20 in place, and chain names may
		// contain spaces.
		raw := chi.URLParam(r, "name")
		if unescaped, err := url.PathUnescape(raw); err == nil {
			raw = unescaped
		}
		name := chain.Normalize(raw)
		if name.Empty() {
			http.Error(w, `{"error":"chain name required"}`, http.StatusBadRequest)
			return
		}

		rowID, found, err := s.RowByName(r.Context(), name)
		if err != nil {
			http.Error(w, `{"error":"failed to read sheet"}`, http.StatusInternalServerError)
			return
		}
		if !found {
			http.Error(w, `{"error":"chain not found"}`, http.StatusNotFound)
			return
		}

		rec, err := s.ReadOutputs(r.Context(), rowID)
		if err != nil {
			// Sheet outage: fall back to the coordinator's in-memory
			// copy of the last successful merge.
			if cached, ok := res.Record(name); ok {
				rec = cached
			} else {
				http.Error(w, `{"error":"failed to read sheet"}`, http.StatusInternalServerError)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chainSummary{
			RowID:   rowID,
			Trigger: name.String(),
			Active:  res.Active(name),
			Record:  rec,
		})
	}
}
