// Package panelmap maintains a local replica of versioned gene panels,
// keeps it synchronized with the upstream catalog, reconciles patient
// test history against current panel content, and exports BED interval
// files from resolved transcript coordinates.
package panelmap

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/singleflight"

	"github.com/genomicsops/panelmap/pkg/errors"
	"github.com/genomicsops/panelmap/pkg/sources"
	"github.com/genomicsops/panelmap/pkg/storage"
	"github.com/genomicsops/panelmap/pkg/types"
)

// Panelmap is the panel replica engine.
type Panelmap interface {
	// Sync brings the local panel for a request code up to date with
	// upstream and reports what happened.
	Sync(ctx context.Context, rcode string) (*SyncResult, error)

	// RefreshAll synchronizes every signed-off panel upstream knows,
	// registering panels not yet tracked locally.
	RefreshAll(ctx context.Context) (*RefreshReport, error)

	// PanelContent returns the current membership of a panel, optionally
	// filtered to one confidence tier, after a best-effort sync.
	PanelContent(ctx context.Context, rcode string, tier types.ConfidenceTier) (*PanelContent, error)

	// AddRecord appends a patient test record, validating it against the
	// tracked panels.
	AddRecord(ctx context.Context, record types.PatientRecord) error

	// PatientHistory returns every test record for a patient, newest
	// first.
	PatientHistory(ctx context.Context, patientID string) ([]types.PatientRecord, error)

	// Reconcile compares the panel version a patient was last tested
	// against with the current version and reports the gene-level
	// differences.
	Reconcile(ctx context.Context, patientID, rcode string) (*ReconcileResult, error)

	// PanelHistory returns every test record for a request code across
	// all patients, newest first.
	PanelHistory(ctx context.Context, rcode string) ([]types.PatientRecord, error)

	// ExportPanelBED writes a BED file covering a panel's genes.
	ExportPanelBED(ctx context.Context, w io.Writer, req ExportRequest) error

	// ExportPatientBED writes a BED file covering the high-confidence
	// genes of the panel version a patient was last tested against.
	ExportPatientBED(ctx context.Context, w io.Writer, patientID, rcode string, set sources.TranscriptSet, build sources.GenomeBuild) error

	// ExportLocalBED writes a BED file from the locally cached coordinate
	// tables, without touching upstream.
	ExportLocalBED(ctx context.Context, w io.Writer, geneIDs []string, build sources.GenomeBuild) error

	// ImportCatalog seeds the local replica from a YAML catalog file.
	ImportCatalog(ctx context.Context, path string) error

	// Store exposes the underlying store for read-only callers.
	Store() storage.Store

	// Close releases held resources.
	Close() error
}

// panelmap is the internal implementation of the Panelmap interface.
type panelmap struct {
	config *config

	store    storage.Store
	panels   sources.PanelSource
	resolver sources.TranscriptResolver

	// syncGroup collapses concurrent syncs of the same request code into
	// one upstream round trip.
	syncGroup singleflight.Group
}

// New creates a new Panelmap engine with the given options.
func New(opts ...Option) (Panelmap, error) {
	pm := &panelmap{
		config: defaultConfig(),
	}

	if err := pm.options(opts...); err != nil {
		return nil, fmt.Errorf("applying options: %w", err)
	}

	if pm.store == nil {
		return nil, errors.NewValidationError("store", nil, "a store is required")
	}
	if pm.panels == nil {
		return nil, errors.NewValidationError("panel source", nil, "a panel source is required")
	}
	if pm.resolver == nil {
		return nil, errors.NewValidationError("transcript resolver", nil, "a transcript resolver is required")
	}

	return pm, nil
}

// Store exposes the underlying store.
func (p *panelmap) Store() storage.Store {
	return p.store
}

// Close releases held resources.
func (p *panelmap) Close() error {
	return p.store.Close()
}
