// Package sources defines the interfaces and data shapes for the upstream
// services panelmap reads from: the panel catalog that owns versioned gene
// panels, and the transcript resolver that maps gene identifiers to
// genomic coordinates.
package sources

import (
	"context"
	"strings"

	"github.com/genomicsops/panelmap/pkg/types"
)

// PanelInfo is the upstream identity of a signed-off panel: its numeric
// ID, the clinical request codes it serves, and its latest approved
// version.
type PanelInfo struct {
	ID      int64    `json:"panel_id"`
	Name    string   `json:"name"`
	Rcodes  []string `json:"rcodes"`
	Version float64  `json:"version"`
}

// PanelSource reads versioned panel data from the upstream catalog.
type PanelSource interface {
	// LatestVersion returns the latest signed-off version of the panel
	// with the given upstream ID.
	LatestVersion(ctx context.Context, panelID int64) (PanelInfo, error)

	// Membership returns the gene content of one specific panel version.
	Membership(ctx context.Context, panelID int64, version float64) (types.Membership, error)

	// SignedOffPanels lists every signed-off panel upstream, following
	// pagination to exhaustion.
	SignedOffPanels(ctx context.Context) ([]PanelInfo, error)
}

// GenomeBuild identifies the reference assembly coordinates are expressed
// against.
type GenomeBuild string

// Supported reference assemblies.
const (
	GRCh37 GenomeBuild = "GRCh37"
	GRCh38 GenomeBuild = "GRCh38"
)

// ParseBuild normalizes a genome build token. It accepts the assembly
// names and the common "37"/"38" shorthand.
func ParseBuild(s string) (GenomeBuild, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "grch38", "38", "hg38":
		return GRCh38, true
	case "grch37", "37", "hg19":
		return GRCh37, true
	default:
		return "", false
	}
}

// TranscriptSet selects which transcript annotations the resolver should
// return for each gene.
type TranscriptSet string

// Transcript set selections, in the vocabulary callers use.
const (
	SetMANE       TranscriptSet = "mane_select + mane_plus_clinical"
	SetMANESelect TranscriptSet = "mane_select"
	SetCanonical  TranscriptSet = "canonical"
)

// APIToken returns the token the resolver API expects for the set.
func (s TranscriptSet) APIToken() string {
	switch s {
	case SetMANE:
		return "mane"
	case SetMANESelect:
		return "mane_select"
	case SetCanonical:
		return "select"
	default:
		return "all"
	}
}

// ParseTranscriptSet maps a caller-facing selection to a TranscriptSet.
func ParseTranscriptSet(s string) (TranscriptSet, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(SetMANE), "mane":
		return SetMANE, true
	case string(SetMANESelect):
		return SetMANESelect, true
	case string(SetCanonical), "select":
		return SetCanonical, true
	default:
		return "", false
	}
}

// Exon is one exon of a transcript in genomic coordinates.
type Exon struct {
	Number int   `json:"exon_number"`
	Start  int64 `json:"start"`
	End    int64 `json:"end"`
}

// Transcript is one transcript annotation for a gene: its reference
// sequence name, the chromosome it lies on, its strand orientation
// (+1 or -1), and its exon structure.
type Transcript struct {
	Reference  string `json:"reference"`
	Chromosome string `json:"chromosome"`
	Strand     int    `json:"strand"`
	Exons      []Exon `json:"exons"`
}

// GeneTranscripts is the resolver's answer for one queried gene. Query is
// the identifier as asked, Symbol the current approved symbol upstream
// knows the gene by. A gene the resolver could not locate has no
// transcripts.
type GeneTranscripts struct {
	Query       string       `json:"query"`
	Symbol      string       `json:"symbol"`
	Transcripts []Transcript `json:"transcripts"`
}

// TranscriptResolver maps gene identifiers to transcript coordinates on a
// given reference assembly.
type TranscriptResolver interface {
	Resolve(ctx context.Context, genes []string, set TranscriptSet, build GenomeBuild) ([]GeneTranscripts, error)
}
