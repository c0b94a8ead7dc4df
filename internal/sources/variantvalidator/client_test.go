package variantvalidator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genomicsops/panelmap/pkg/errors"
	"github.com/genomicsops/panelmap/pkg/sources"
)

const brca1Response = `[
	{
		"current_symbol": "BRCA1",
		"requested_symbol": "HGNC:1100",
		"transcripts": [
			{
				"reference": "NM_007294.4",
				"annotations": {"chromosome": "17"},
				"genomic_spans": {
					"NC_000017.11": {
						"orientation": -1,
						"exon_structure": [
							{"exon_number": 1, "genomic_start": 43125271, "genomic_end": 43125364},
							{"exon_number": 2, "genomic_start": 43124017, "genomic_end": 43124115}
						]
					}
				}
			}
		]
	}
]`

func TestResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Path segments: genes / transcript filter / set / build.
		assert.Equal(t, "/HGNC:1100/mane_select/all/GRCh38", r.URL.Path)
		fmt.Fprint(w, brca1Response)
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL))
	got, err := c.Resolve(context.Background(), []string{"HGNC:1100"}, sources.SetMANESelect, sources.GRCh38)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "BRCA1", got[0].Symbol)
	assert.Equal(t, "HGNC:1100", got[0].Query)

	require.Len(t, got[0].Transcripts, 1)
	tx := got[0].Transcripts[0]
	assert.Equal(t, "NM_007294.4", tx.Reference)
	assert.Equal(t, "17", tx.Chromosome)
	assert.Equal(t, -1, tx.Strand)
	require.Len(t, tx.Exons, 2)
	assert.Equal(t, sources.Exon{Number: 1, Start: 43125271, End: 43125364}, tx.Exons[0])
}

func TestResolveJoinsGenesWithPipe(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL))
	_, err := c.Resolve(context.Background(), []string{"BRCA1", "HGNC:456"}, sources.SetMANE, sources.GRCh37)
	require.NoError(t, err)

	assert.Contains(t, gotPath, "BRCA1%7CHGNC:456")
	assert.Contains(t, gotPath, "/mane/")
	assert.Contains(t, gotPath, "/GRCh37")
}

func TestResolveTranscriptSetTokens(t *testing.T) {
	assert.Equal(t, "mane", sources.SetMANE.APIToken())
	assert.Equal(t, "mane_select", sources.SetMANESelect.APIToken())
	assert.Equal(t, "select", sources.SetCanonical.APIToken())
}

func TestResolveRequiresGenes(t *testing.T) {
	c := New()
	_, err := c.Resolve(context.Background(), nil, sources.SetMANESelect, sources.GRCh38)
	assert.True(t, errors.IsValidationError(err))
}

func TestResolveServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL))
	_, err := c.Resolve(context.Background(), []string{"BRCA1"}, sources.SetMANESelect, sources.GRCh38)
	assert.True(t, errors.IsUpstreamUnreachable(err))
}
