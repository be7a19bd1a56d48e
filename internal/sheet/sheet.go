// Package sheet is the boundary to the shared, human-edited data
// source: one row per tracked chain, a trigger column the operator
// types names into, and the output columns the pipeline owns. The
// watcher only reads triggers and the sink path only writes outputs.
package sheet

import (
	"context"

	"github.com/web3-frozen/chainsync/internal/chain"
)

// Row is one tracked row's trigger cell, as stored (unnormalized).
type Row struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Sheet interface {
	// Triggers returns the trigger cell of every tracked row in
	// stable row order.
	Triggers(ctx context.Context) ([]Row, error)

	// ReadTrigger returns one row's raw trigger value.
	ReadTrigger(ctx context.Context, rowID int64) (string, error)

	// RowByName finds the row whose trigger normalizes to name.
	RowByName(ctx context.Context, name chain.Name) (int64, bool, error)

	// ReadOutputs reconstructs the committed output fields of a row.
	ReadOutputs(ctx context.Context, rowID int64) (*chain.Canonical, error)

	// WriteOutputs commits the record's present fields into the row as
	// one atomic update, leaving absent fields untouched. Completeness
	// and the resolution timestamp are always written; per-field
	// source tags are merged into the stored tag map.
	WriteOutputs(ctx context.Context, rowID int64, rec *chain.Canonical) error

	Ping(ctx context.Context) error
}
