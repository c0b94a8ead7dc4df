// Package storage defines the persistence contract for the local panel
// replica: panels and their current memberships, the archived membership
// history, the append-only patient test log, gene symbol aliases, and the
// locally cached genomic coordinate tables.
package storage

import (
	"context"

	"github.com/genomicsops/panelmap/pkg/bed"
	"github.com/genomicsops/panelmap/pkg/sources"
	"github.com/genomicsops/panelmap/pkg/types"
)

// Store is the persistence interface backing panelmap. Implementations
// must make ReplaceMembership atomic: a failure anywhere in the sequence
// leaves the previous panel version and membership untouched.
type Store interface {
	// GetPanel looks up a panel by clinical request code. Returns a
	// not-found error when no panel serves the code.
	GetPanel(ctx context.Context, rcode string) (types.Panel, error)

	// UpsertPanel creates the panel row for a request code or updates
	// its upstream ID and version.
	UpsertPanel(ctx context.Context, panel types.Panel) error

	// Panels lists every locally tracked panel.
	Panels(ctx context.Context) ([]types.Panel, error)

	// Membership returns the current gene membership of a panel.
	Membership(ctx context.Context, panelID int64) (types.Membership, error)

	// ArchivedMembership returns the archived membership of one historical
	// panel version. Returns a not-found error when that version was never
	// archived.
	ArchivedMembership(ctx context.Context, panelID int64, version float64) (types.Membership, error)

	// ArchiveMembership snapshots the current membership under the given
	// version label. Re-archiving an already archived version is a no-op;
	// existing archive rows are never duplicated or overwritten.
	ArchiveMembership(ctx context.Context, panelID int64, version float64) error

	// ReplaceMembership archives the current membership under oldVersion,
	// swaps in the new membership, and records newVersion as current, all
	// in one transaction.
	ReplaceMembership(ctx context.Context, panelID int64, oldVersion, newVersion float64, membership types.Membership) error

	// AddPatientRecord appends one row to the patient test log.
	AddPatientRecord(ctx context.Context, record types.PatientRecord) error

	// PatientRecords returns every test record for a patient, newest
	// first.
	PatientRecords(ctx context.Context, patientID string) ([]types.PatientRecord, error)

	// LatestPatientVersion returns the panel version a patient was most
	// recently tested against for a request code, breaking date ties by
	// the higher version. Returns a not-found error when the patient has
	// no record for the code.
	LatestPatientVersion(ctx context.Context, patientID, rcode string) (types.PatientRecord, error)

	// RecordsForPanel returns every test record for a request code across
	// all patients, newest first.
	RecordsForPanel(ctx context.Context, rcode string) ([]types.PatientRecord, error)

	// GeneSymbols resolves gene identifiers to approved symbols through
	// the local alias table. Identifiers with no alias are absent from the
	// result.
	GeneSymbols(ctx context.Context, ids []string) (map[string]string, error)

	// SetGeneSymbol records or updates one alias row.
	SetGeneSymbol(ctx context.Context, id, symbol string) error

	// LocalBED reads cached coordinate records for the given gene
	// identifiers on one reference assembly.
	LocalBED(ctx context.Context, geneIDs []string, build sources.GenomeBuild) ([]bed.LocalRecord, error)

	// AddLocalBED inserts cached coordinate records for one reference
	// assembly.
	AddLocalBED(ctx context.Context, build sources.GenomeBuild, records []bed.LocalRecord) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
