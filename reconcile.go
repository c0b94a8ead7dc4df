package panelmap

import (
	"context"
	"fmt"
	"time"

	"github.com/genomicsops/panelmap/pkg/differ"
	"github.com/genomicsops/panelmap/pkg/errors"
	"github.com/genomicsops/panelmap/pkg/types"
)

// ReconcileStatus classifies a patient's standing against the current
// panel version.
type ReconcileStatus string

// Reconciliation statuses.
const (
	// StatusNoHistory means the patient has never been tested against the
	// panel.
	StatusNoHistory ReconcileStatus = "no_history"

	// StatusUpToDate means the patient's latest test used the current
	// panel version.
	StatusUpToDate ReconcileStatus = "up_to_date"

	// StatusStale means the panel has moved on since the patient's latest
	// test.
	StatusStale ReconcileStatus = "stale"
)

// ReconcileResult compares a patient's most recent test against the
// current panel version. Changes is populated only for StatusStale;
// Membership carries the current panel content for StatusUpToDate.
// OtherRecords lists the patient's tests against other request codes
// when there is no history for this one.
type ReconcileResult struct {
	PatientID      string                `json:"patient_id"`
	Rcode          string                `json:"rcode"`
	Status         ReconcileStatus       `json:"status"`
	Message        string                `json:"message,omitempty"`
	TestedVersion  float64               `json:"tested_version,omitempty"`
	TestedDate     string                `json:"tested_date,omitempty"`
	CurrentVersion float64               `json:"current_version"`
	Membership     types.Membership      `json:"membership,omitempty"`
	Changes        *differ.Changeset     `json:"changes,omitempty"`
	OtherRecords   []types.PatientRecord `json:"other_records,omitempty"`
	Disclaimer     types.Disclaimer      `json:"disclaimer"`
}

// PanelContent is a panel's membership at its current version, with the
// disclaimer of the sync attempt that preceded the read.
type PanelContent struct {
	Panel      types.Panel      `json:"panel"`
	Membership types.Membership `json:"membership"`
	Disclaimer types.Disclaimer `json:"disclaimer"`
}

// PanelContent returns the current membership of a panel after a
// best-effort sync, optionally filtered to one confidence tier.
func (p *panelmap) PanelContent(ctx context.Context, rcode string, tier types.ConfidenceTier) (*PanelContent, error) {
	rcode = types.NormalizeRcode(rcode)

	disclaimer, err := p.syncBestEffort(ctx, rcode)
	if err != nil {
		return nil, err
	}

	panel, err := p.store.GetPanel(ctx, rcode)
	if err != nil {
		return nil, err
	}
	membership, err := p.store.Membership(ctx, panel.ID)
	if err != nil {
		return nil, err
	}

	return &PanelContent{
		Panel:      panel,
		Membership: membership.Filter(tier),
		Disclaimer: disclaimer,
	}, nil
}

// AddRecord appends a patient test record. The request code must belong
// to a tracked panel, and the record's panel ID is filled from the local
// replica. A record duplicating the patient's most recent version for the
// same request code is refused. A zero date defaults to today.
func (p *panelmap) AddRecord(ctx context.Context, record types.PatientRecord) error {
	if record.PatientID == "" {
		return errors.NewValidationError("patient_id", record.PatientID, "patient ID is required")
	}
	record.Rcode = types.NormalizeRcode(record.Rcode)
	if record.Rcode == "" {
		return errors.NewValidationError("rcode", record.Rcode, "request code is required")
	}
	if record.Version <= 0 {
		return errors.NewValidationError("version", record.Version, "version must be positive")
	}

	panel, err := p.store.GetPanel(ctx, record.Rcode)
	if err != nil {
		return err
	}
	record.PanelID = panel.ID
	if record.Date.IsZero() {
		record.Date = time.Now().UTC()
	}

	latest, err := p.store.LatestPatientVersion(ctx, record.PatientID, record.Rcode)
	if err != nil && !errors.IsNotFound(err) {
		return err
	}
	if err == nil && latest.Version == record.Version {
		return errors.NewAlreadyExistsError("patient record",
			record.PatientID+"/"+record.Rcode+" v"+types.FormatVersion(record.Version))
	}

	if err := p.store.AddPatientRecord(ctx, record); err != nil {
		return err
	}
	p.config.logger.Info().
		Str("patient_id", record.PatientID).
		Str("rcode", record.Rcode).
		Str("version", types.FormatVersion(record.Version)).
		Msg("Patient test record added")
	return nil
}

// PatientHistory returns every test record for a patient, newest first.
func (p *panelmap) PatientHistory(ctx context.Context, patientID string) ([]types.PatientRecord, error) {
	if patientID == "" {
		return nil, errors.NewValidationError("patient_id", patientID, "patient ID is required")
	}
	return p.store.PatientRecords(ctx, patientID)
}

// PanelHistory returns every test record for a request code across all
// patients, newest first.
func (p *panelmap) PanelHistory(ctx context.Context, rcode string) ([]types.PatientRecord, error) {
	rcode = types.NormalizeRcode(rcode)
	if rcode == "" {
		return nil, errors.NewValidationError("rcode", rcode, "request code is required")
	}
	if _, err := p.store.GetPanel(ctx, rcode); err != nil {
		return nil, err
	}
	return p.store.RecordsForPanel(ctx, rcode)
}

// Reconcile compares the panel version a patient was most recently tested
// against with the current version. A best-effort sync runs first so the
// comparison is against the freshest panel available; its outcome is
// carried in the result's disclaimer.
func (p *panelmap) Reconcile(ctx context.Context, patientID, rcode string) (*ReconcileResult, error) {
	if patientID == "" {
		return nil, errors.NewValidationError("patient_id", patientID, "patient ID is required")
	}
	rcode = types.NormalizeRcode(rcode)

	disclaimer, err := p.syncBestEffort(ctx, rcode)
	if err != nil {
		return nil, err
	}

	panel, err := p.store.GetPanel(ctx, rcode)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{
		PatientID:      patientID,
		Rcode:          rcode,
		CurrentVersion: panel.Version,
		Disclaimer:     disclaimer,
	}

	record, err := p.store.LatestPatientVersion(ctx, patientID, rcode)
	if errors.IsNotFound(err) {
		result.Status = StatusNoHistory
		others, err := p.store.PatientRecords(ctx, patientID)
		if err != nil {
			return nil, err
		}
		if len(others) == 0 {
			result.Message = fmt.Sprintf("no record of patient %s receiving any rcode", patientID)
		} else {
			result.Message = fmt.Sprintf("patient %s has no record for %s; other tested panels are listed", patientID, rcode)
			result.OtherRecords = others
		}
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	result.TestedVersion = record.Version
	result.TestedDate = record.DateString()

	if record.Version == panel.Version {
		result.Status = StatusUpToDate
		membership, err := p.store.Membership(ctx, panel.ID)
		if err != nil {
			return nil, err
		}
		result.Membership = membership
		return result, nil
	}

	tested, err := p.membershipAt(ctx, panel, record.Version)
	if errors.IsUpstreamUnreachable(err) {
		// The tested version only exists upstream and upstream is down:
		// report the staleness without the gene-level diff rather than
		// failing the lookup.
		result.Status = StatusStale
		result.Disclaimer = types.DisclaimerUpstreamUnreachable
		result.Message = "historical panel content unavailable while upstream is unreachable; gene-level changes could not be computed"
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	current, err := p.store.Membership(ctx, panel.ID)
	if err != nil {
		return nil, err
	}

	result.Status = StatusStale
	result.Changes = differ.Compare(tested, current)
	return result, nil
}

// membershipAt returns the membership of one historical panel version,
// preferring the local archive and falling back to upstream for versions
// that predate local tracking.
func (p *panelmap) membershipAt(ctx context.Context, panel types.Panel, version float64) (types.Membership, error) {
	if version == panel.Version {
		return p.store.Membership(ctx, panel.ID)
	}

	m, err := p.store.ArchivedMembership(ctx, panel.ID, version)
	if err == nil {
		return m, nil
	}
	if !errors.IsNotFound(err) {
		return nil, err
	}

	p.config.logger.Debug().
		Str("rcode", panel.Rcode).
		Str("version", types.FormatVersion(version)).
		Msg("Version not in local archive, fetching from upstream")
	return p.panels.Membership(ctx, panel.ID, version)
}
