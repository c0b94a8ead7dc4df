package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfidence(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  ConfidenceTier
		ok    bool
	}{
		{"green colour", "Green", ConfidenceHigh, true},
		{"green lowercase", "green", ConfidenceHigh, true},
		{"numeric three", "3", ConfidenceHigh, true},
		{"amber colour", "Amber", ConfidenceModerate, true},
		{"numeric two", "2", ConfidenceModerate, true},
		{"red colour", "red", ConfidenceLow, true},
		{"numeric one", "1", ConfidenceLow, true},
		{"all keyword", "All", ConfidenceAll, true},
		{"empty means all", "", ConfidenceAll, true},
		{"whitespace trimmed", "  Green ", ConfidenceHigh, true},
		{"unknown token", "purple", ConfidenceAll, false},
		{"out of range number", "4", ConfidenceAll, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseConfidence(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfidenceTierString(t *testing.T) {
	assert.Equal(t, "Green", ConfidenceHigh.String())
	assert.Equal(t, "Amber", ConfidenceModerate.String())
	assert.Equal(t, "Red", ConfidenceLow.String())
	assert.Equal(t, "All", ConfidenceAll.String())
}

func TestMembershipFilter(t *testing.T) {
	m := Membership{
		"HGNC:1100": ConfidenceHigh,
		"HGNC:1101": ConfidenceModerate,
		"HGNC:1102": ConfidenceLow,
		"HGNC:1103": ConfidenceHigh,
	}

	green := m.Filter(ConfidenceHigh)
	require.Len(t, green, 2)
	assert.Contains(t, green, "HGNC:1100")
	assert.Contains(t, green, "HGNC:1103")

	// No filter returns the membership unchanged.
	assert.Equal(t, m, m.Filter(ConfidenceAll))

	assert.Empty(t, Membership{}.Filter(ConfidenceHigh))
}

func TestMembershipGenes(t *testing.T) {
	m := Membership{"HGNC:1": ConfidenceHigh, "HGNC:2": ConfidenceLow}
	genes := m.Genes()
	assert.ElementsMatch(t, []string{"HGNC:1", "HGNC:2"}, genes)
}

func TestNormalizeRcode(t *testing.T) {
	assert.Equal(t, "R208", NormalizeRcode("r208"))
	assert.Equal(t, "R208", NormalizeRcode(" R208 "))
	assert.Equal(t, "R134", NormalizeRcode("R134"))
	assert.Equal(t, "", NormalizeRcode("  "))
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "2.5", FormatVersion(2.5))
	assert.Equal(t, "3.0", FormatVersion(3))
	assert.Equal(t, "1.25", FormatVersion(1.25))
}

func TestPatientRecordDateString(t *testing.T) {
	rec := PatientRecord{Date: time.Date(2024, 11, 26, 15, 4, 5, 0, time.UTC)}
	assert.Equal(t, "2024-11-26", rec.DateString())
}

func TestDisclaimerMarshalJSON(t *testing.T) {
	data, err := DisclaimerUpToDate.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"Panel is up to date with upstream"`, string(data))

	data, err = DisclaimerUpdated.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), "updated to the latest version")
}

func TestDisclaimerStringsAreDistinct(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range []Disclaimer{DisclaimerUpToDate, DisclaimerUpdated, DisclaimerUpstreamUnreachable, DisclaimerSyncFailed} {
		assert.False(t, seen[d.String()], "duplicate disclaimer text: %s", d.String())
		seen[d.String()] = true
	}
}
