// Package types defines the core domain types shared across panelmap:
// panels, gene memberships, confidence tiers, patient test records, and
// the disclaimers attached to synchronization outcomes.
package types

import (
	"strconv"
	"strings"
	"time"
)

// ConfidenceTier classifies the evidentiary strength of a gene within a
// panel. The upstream vocabulary {Red, Amber, Green} maps onto
// {Low, Moderate, High}; zero means "no filter" when used as a query filter.
type ConfidenceTier int

// Confidence tiers, ordered from weakest to strongest evidence.
const (
	ConfidenceAll      ConfidenceTier = 0
	ConfidenceLow      ConfidenceTier = 1
	ConfidenceModerate ConfidenceTier = 2
	ConfidenceHigh     ConfidenceTier = 3
)

// String returns the upstream colour vocabulary for the tier.
func (c ConfidenceTier) String() string {
	switch c {
	case ConfidenceLow:
		return "Red"
	case ConfidenceModerate:
		return "Amber"
	case ConfidenceHigh:
		return "Green"
	default:
		return "All"
	}
}

// ParseConfidence maps an upstream confidence token to a tier. It accepts
// the colour vocabulary (case-insensitive) and the numeric levels "1"-"3"
// used by the upstream API. "All", "", and "0" mean no filter.
func ParseConfidence(s string) (ConfidenceTier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "green", "3", "high":
		return ConfidenceHigh, true
	case "amber", "2", "moderate":
		return ConfidenceModerate, true
	case "red", "1", "low":
		return ConfidenceLow, true
	case "all", "", "0":
		return ConfidenceAll, true
	default:
		return ConfidenceAll, false
	}
}

// Panel is the locally stored replica of an upstream gene panel. Rcode is
// the business key (uppercase); Version tracks the upstream version the
// current membership corresponds to.
type Panel struct {
	ID      int64   `json:"panel_id"`
	Rcode   string  `json:"rcode"`
	Version float64 `json:"version"`
}

// Membership is the gene content of one panel version: gene identifier to
// confidence tier.
type Membership map[string]ConfidenceTier

// Genes returns the gene identifiers in the membership, unordered.
func (m Membership) Genes() []string {
	genes := make([]string, 0, len(m))
	for g := range m {
		genes = append(genes, g)
	}
	return genes
}

// Filter returns the subset of the membership at exactly the given tier.
// ConfidenceAll returns the membership unchanged.
func (m Membership) Filter(tier ConfidenceTier) Membership {
	if tier == ConfidenceAll {
		return m
	}
	out := make(Membership)
	for g, c := range m {
		if c == tier {
			out[g] = c
		}
	}
	return out
}

// PatientRecord is one row of the append-only patient test log: which
// panel version a patient was tested against, and when.
type PatientRecord struct {
	PatientID string    `json:"patient_id"`
	Rcode     string    `json:"rcode"`
	PanelID   int64     `json:"panel_id"`
	Version   float64   `json:"version"`
	Date      time.Time `json:"date"`
}

// DateString formats the record date the way it is persisted (YYYY-MM-DD).
func (r PatientRecord) DateString() string {
	return r.Date.UTC().Format("2006-01-02")
}

// Disclaimer describes the outcome of the synchronization attempt that
// preceded serving a result, so callers can tell "no version change" apart
// from "the version check could not be performed".
type Disclaimer int

// Synchronization outcomes.
const (
	DisclaimerUpToDate Disclaimer = iota
	DisclaimerUpdated
	DisclaimerUpstreamUnreachable
	DisclaimerSyncFailed
)

// String returns the caller-facing explanation for the disclaimer.
func (d Disclaimer) String() string {
	switch d {
	case DisclaimerUpdated:
		return "Panel differed from upstream; the local panel was updated to the latest version"
	case DisclaimerUpstreamUnreachable:
		return "The upstream panel service could not be contacted; results are valid as of the last local update"
	case DisclaimerSyncFailed:
		return "Local panel update failed; results reflect the last successful update"
	default:
		return "Panel is up to date with upstream"
	}
}

// MarshalJSON renders the disclaimer as its explanation text.
func (d Disclaimer) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(d.String())), nil
}

// NormalizeRcode uppercases a clinical request code so "r208" and "R208"
// address the same panel.
func NormalizeRcode(rcode string) string {
	return strings.ToUpper(strings.TrimSpace(rcode))
}

// FormatVersion renders a panel version the way upstream displays it
// ("2.5", "3.0").
func FormatVersion(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
