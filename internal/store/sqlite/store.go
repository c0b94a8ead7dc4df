// Package sqlite implements the storage.Store contract on an embedded
// SQLite database. Membership replacement runs inside a single
// transaction so a failed update never leaves a half-swapped panel.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/genomicsops/panelmap/pkg/bed"
	pkgerrors "github.com/genomicsops/panelmap/pkg/errors"
	"github.com/genomicsops/panelmap/pkg/sources"
	"github.com/genomicsops/panelmap/pkg/storage"
	"github.com/genomicsops/panelmap/pkg/types"
)

// Store is the SQLite-backed panel replica.
type Store struct {
	db   *sql.DB
	path string
}

// compile-time contract check
var _ storage.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS panels (
	panel_id INTEGER PRIMARY KEY,
	rcode TEXT NOT NULL UNIQUE,
	version REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS panel_genes (
	panel_id INTEGER NOT NULL REFERENCES panels(panel_id),
	hgnc_id TEXT NOT NULL,
	confidence INTEGER NOT NULL,
	PRIMARY KEY (panel_id, hgnc_id)
);

CREATE TABLE IF NOT EXISTS panel_genes_archive (
	panel_id INTEGER NOT NULL,
	version REAL NOT NULL,
	hgnc_id TEXT NOT NULL,
	confidence INTEGER NOT NULL,
	PRIMARY KEY (panel_id, version, hgnc_id)
);

CREATE TABLE IF NOT EXISTS patient_records (
	patient_id TEXT NOT NULL,
	rcode TEXT NOT NULL,
	panel_id INTEGER NOT NULL,
	version REAL NOT NULL,
	date TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_patient_records_patient
	ON patient_records(patient_id, rcode);

CREATE TABLE IF NOT EXISTS gene_aliases (
	hgnc_id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bed38 (
	hgnc_id TEXT NOT NULL,
	chrom TEXT NOT NULL,
	start INTEGER NOT NULL,
	stop INTEGER NOT NULL,
	name TEXT NOT NULL,
	strand TEXT NOT NULL,
	transcript TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_bed38_gene ON bed38(hgnc_id);

CREATE TABLE IF NOT EXISTS bed37 (
	hgnc_id TEXT NOT NULL,
	chrom TEXT NOT NULL,
	start INTEGER NOT NULL,
	stop INTEGER NOT NULL,
	name TEXT NOT NULL,
	strand TEXT NOT NULL,
	transcript TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_bed37_gene ON bed37(hgnc_id);
`

// New opens or creates the database at path and ensures the schema.
func New(path string) (*Store, error) {
	if path == "" {
		path = "panelmap.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, pkgerrors.WrapIO("create", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pkgerrors.WrapIO("open", path, err)
	}
	// The pure go driver serializes writes itself; a single connection
	// avoids SQLITE_BUSY under concurrent transactions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// GetPanel looks up a panel by clinical request code.
func (s *Store) GetPanel(ctx context.Context, rcode string) (types.Panel, error) {
	rcode = types.NormalizeRcode(rcode)
	var p types.Panel
	err := s.db.QueryRowContext(ctx,
		`SELECT panel_id, rcode, version FROM panels WHERE rcode = ?`, rcode).
		Scan(&p.ID, &p.Rcode, &p.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Panel{}, pkgerrors.NewNotFoundError("panel", rcode)
	}
	if err != nil {
		return types.Panel{}, fmt.Errorf("select panel %s: %w", rcode, err)
	}
	return p, nil
}

// UpsertPanel creates or updates a panel row.
func (s *Store) UpsertPanel(ctx context.Context, panel types.Panel) error {
	if panel.Rcode == "" {
		return pkgerrors.NewValidationError("rcode", panel.Rcode, "rcode is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO panels (panel_id, rcode, version) VALUES (?, ?, ?)
		 ON CONFLICT(rcode) DO UPDATE SET panel_id = excluded.panel_id, version = excluded.version`,
		panel.ID, types.NormalizeRcode(panel.Rcode), panel.Version)
	if err != nil {
		return fmt.Errorf("upsert panel %s: %w", panel.Rcode, err)
	}
	return nil
}

// Panels lists every locally tracked panel ordered by request code.
func (s *Store) Panels(ctx context.Context) ([]types.Panel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT panel_id, rcode, version FROM panels ORDER BY rcode`)
	if err != nil {
		return nil, fmt.Errorf("select panels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var panels []types.Panel
	for rows.Next() {
		var p types.Panel
		if err := rows.Scan(&p.ID, &p.Rcode, &p.Version); err != nil {
			return nil, fmt.Errorf("scan panel: %w", err)
		}
		panels = append(panels, p)
	}
	return panels, rows.Err()
}

// Membership returns the current gene membership of a panel.
func (s *Store) Membership(ctx context.Context, panelID int64) (types.Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hgnc_id, confidence FROM panel_genes WHERE panel_id = ?`, panelID)
	if err != nil {
		return nil, fmt.Errorf("select membership for panel %d: %w", panelID, err)
	}
	defer func() { _ = rows.Close() }()
	return scanMembership(rows)
}

// ArchivedMembership returns the archived membership of one historical
// panel version.
func (s *Store) ArchivedMembership(ctx context.Context, panelID int64, version float64) (types.Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hgnc_id, confidence FROM panel_genes_archive WHERE panel_id = ? AND version = ?`,
		panelID, version)
	if err != nil {
		return nil, fmt.Errorf("select archive for panel %d v%s: %w", panelID, types.FormatVersion(version), err)
	}
	defer func() { _ = rows.Close() }()

	m, err := scanMembership(rows)
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, pkgerrors.NewNotFoundError("archived panel version",
			fmt.Sprintf("%d v%s", panelID, types.FormatVersion(version)))
	}
	return m, nil
}

// ArchiveMembership snapshots the current membership under the given
// version label. The guard clause makes re-archiving a no-op so retried
// updates never duplicate or overwrite history.
func (s *Store) ArchiveMembership(ctx context.Context, panelID int64, version float64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return archiveTx(ctx, tx, panelID, version)
	})
}

// ReplaceMembership archives the current membership under oldVersion,
// swaps in the new one, and records newVersion, atomically.
func (s *Store) ReplaceMembership(ctx context.Context, panelID int64, oldVersion, newVersion float64, membership types.Membership) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := archiveTx(ctx, tx, panelID, oldVersion); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM panel_genes WHERE panel_id = ?`, panelID); err != nil {
			return fmt.Errorf("clear membership: %w", err)
		}
		for gene, tier := range membership {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO panel_genes (panel_id, hgnc_id, confidence) VALUES (?, ?, ?)`,
				panelID, gene, int(tier)); err != nil {
				return fmt.Errorf("insert gene %s: %w", gene, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE panels SET version = ? WHERE panel_id = ?`, newVersion, panelID); err != nil {
			return fmt.Errorf("record version: %w", err)
		}
		return nil
	})
}

// AddPatientRecord appends one row to the patient test log.
func (s *Store) AddPatientRecord(ctx context.Context, record types.PatientRecord) error {
	if record.PatientID == "" {
		return pkgerrors.NewValidationError("patient_id", record.PatientID, "patient ID is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO patient_records (patient_id, rcode, panel_id, version, date)
		 VALUES (?, ?, ?, ?, ?)`,
		record.PatientID, types.NormalizeRcode(record.Rcode), record.PanelID, record.Version, record.DateString())
	if err != nil {
		return fmt.Errorf("insert patient record: %w", err)
	}
	return nil
}

// PatientRecords returns every test record for a patient, newest first.
func (s *Store) PatientRecords(ctx context.Context, patientID string) ([]types.PatientRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT patient_id, rcode, panel_id, version, date FROM patient_records
		 WHERE patient_id = ? ORDER BY date DESC, version DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("select patient records: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanPatientRecords(rows)
}

// LatestPatientVersion returns the most recent test record for a patient
// and request code. Records on the same date tie-break by the higher
// version.
func (s *Store) LatestPatientVersion(ctx context.Context, patientID, rcode string) (types.PatientRecord, error) {
	rcode = types.NormalizeRcode(rcode)
	row := s.db.QueryRowContext(ctx,
		`SELECT patient_id, rcode, panel_id, version, date FROM patient_records
		 WHERE patient_id = ? AND rcode = ?
		 ORDER BY date DESC, version DESC LIMIT 1`, patientID, rcode)

	rec, err := scanPatientRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.PatientRecord{}, pkgerrors.NewNotFoundError("patient record", patientID+"/"+rcode)
	}
	if err != nil {
		return types.PatientRecord{}, fmt.Errorf("select latest record for %s/%s: %w", patientID, rcode, err)
	}
	return rec, nil
}

// RecordsForPanel returns every test record for a request code across
// all patients, newest first.
func (s *Store) RecordsForPanel(ctx context.Context, rcode string) ([]types.PatientRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT patient_id, rcode, panel_id, version, date FROM patient_records
		 WHERE rcode = ? ORDER BY date DESC, version DESC, patient_id`,
		types.NormalizeRcode(rcode))
	if err != nil {
		return nil, fmt.Errorf("select panel records: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanPatientRecords(rows)
}

// GeneSymbols resolves gene identifiers to approved symbols through the
// local alias table.
func (s *Store) GeneSymbols(ctx context.Context, ids []string) (map[string]string, error) {
	symbols := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return symbols, nil
	}

	query := fmt.Sprintf(
		`SELECT hgnc_id, symbol FROM gene_aliases WHERE hgnc_id IN (%s)`,
		placeholders(len(ids)))
	rows, err := s.db.QueryContext(ctx, query, toAnySlice(ids)...)
	if err != nil {
		return nil, fmt.Errorf("select gene symbols: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id, symbol string
		if err := rows.Scan(&id, &symbol); err != nil {
			return nil, fmt.Errorf("scan gene symbol: %w", err)
		}
		symbols[id] = symbol
	}
	return symbols, rows.Err()
}

// SetGeneSymbol records or updates one alias row. Used by catalog imports
// and tests.
func (s *Store) SetGeneSymbol(ctx context.Context, id, symbol string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gene_aliases (hgnc_id, symbol) VALUES (?, ?)
		 ON CONFLICT(hgnc_id) DO UPDATE SET symbol = excluded.symbol`, id, symbol)
	if err != nil {
		return fmt.Errorf("upsert gene alias %s: %w", id, err)
	}
	return nil
}

// LocalBED reads cached coordinate records for the given genes on one
// reference assembly, ordered by chromosome text, start, end.
func (s *Store) LocalBED(ctx context.Context, geneIDs []string, build sources.GenomeBuild) ([]bed.LocalRecord, error) {
	if len(geneIDs) == 0 {
		return nil, nil
	}
	table := "bed38"
	if build == sources.GRCh37 {
		table = "bed37"
	}
	query := fmt.Sprintf(
		`SELECT chrom, start, stop, name, strand, transcript, type, hgnc_id FROM %s
		 WHERE hgnc_id IN (%s) ORDER BY chrom, start, stop`,
		table, placeholders(len(geneIDs)))
	rows, err := s.db.QueryContext(ctx, query, toAnySlice(geneIDs)...)
	if err != nil {
		return nil, fmt.Errorf("select %s records: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var records []bed.LocalRecord
	for rows.Next() {
		var r bed.LocalRecord
		if err := rows.Scan(&r.Chrom, &r.Start, &r.End, &r.Name, &r.Strand, &r.Transcript, &r.Type, &r.GeneID); err != nil {
			return nil, fmt.Errorf("scan %s record: %w", table, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// AddLocalBED inserts cached coordinate records. Used by catalog imports
// and tests.
func (s *Store) AddLocalBED(ctx context.Context, build sources.GenomeBuild, records []bed.LocalRecord) error {
	table := "bed38"
	if build == sources.GRCh37 {
		table = "bed37"
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		query := fmt.Sprintf(
			`INSERT INTO %s (hgnc_id, chrom, start, stop, name, strand, transcript, type)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, table)
		for _, r := range records {
			if _, err := tx.ExecContext(ctx, query,
				r.GeneID, r.Chrom, r.Start, r.End, r.Name, r.Strand, r.Transcript, r.Type); err != nil {
				return fmt.Errorf("insert %s record: %w", table, err)
			}
		}
		return nil
	})
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// archiveTx copies the current membership into the archive under the
// given version, skipping rows already archived for that version.
func archiveTx(ctx context.Context, tx *sql.Tx, panelID int64, version float64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO panel_genes_archive (panel_id, version, hgnc_id, confidence)
		 SELECT pg.panel_id, ?, pg.hgnc_id, pg.confidence
		 FROM panel_genes pg
		 WHERE pg.panel_id = ?
		   AND NOT EXISTS (
			SELECT 1 FROM panel_genes_archive a
			WHERE a.panel_id = pg.panel_id AND a.version = ? AND a.hgnc_id = pg.hgnc_id
		 )`, version, panelID, version)
	if err != nil {
		return fmt.Errorf("archive membership for panel %d v%s: %w", panelID, types.FormatVersion(version), err)
	}
	return nil
}

func scanMembership(rows *sql.Rows) (types.Membership, error) {
	m := make(types.Membership)
	for rows.Next() {
		var gene string
		var confidence int
		if err := rows.Scan(&gene, &confidence); err != nil {
			return nil, fmt.Errorf("scan membership row: %w", err)
		}
		m[gene] = types.ConfidenceTier(confidence)
	}
	return m, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPatientRecord(row rowScanner) (types.PatientRecord, error) {
	var rec types.PatientRecord
	var date string
	if err := row.Scan(&rec.PatientID, &rec.Rcode, &rec.PanelID, &rec.Version, &date); err != nil {
		return types.PatientRecord{}, err
	}
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return types.PatientRecord{}, fmt.Errorf("parse record date %q: %w", date, err)
	}
	rec.Date = t
	return rec, nil
}

func scanPatientRecords(rows *sql.Rows) ([]types.PatientRecord, error) {
	var records []types.PatientRecord
	for rows.Next() {
		rec, err := scanPatientRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
