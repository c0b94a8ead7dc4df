// Package variantvalidator implements the transcript resolver adapter
// against the VariantValidator gene2transcripts API.
package variantvalidator

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/genomicsops/panelmap/internal/transport"
	"github.com/genomicsops/panelmap/pkg/errors"
	"github.com/genomicsops/panelmap/pkg/sources"
)

// DefaultBaseURL is the public VariantValidator gene2transcripts endpoint.
const DefaultBaseURL = "https://rest.variantvalidator.org/VariantValidator/tools/gene2transcripts_v2"

const serviceName = "variantvalidator"

// Client queries the VariantValidator API. It implements
// sources.TranscriptResolver.
type Client struct {
	baseURL       string
	transcriptSet string
	http          *transport.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithTranscriptSet selects the annotation source ("refseq", "ensembl",
// or "all").
func WithTranscriptSet(set string) Option {
	return func(c *Client) {
		c.transcriptSet = set
	}
}

// WithTransport replaces the HTTP transport.
func WithTransport(t *transport.Client) Option {
	return func(c *Client) {
		c.http = t
	}
}

// New creates a VariantValidator client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:       DefaultBaseURL,
		transcriptSet: "all",
		http:          transport.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// geneResponse is one element of the API's top-level array.
type geneResponse struct {
	CurrentSymbol string `json:"current_symbol"`
	Requested     string `json:"requested_symbol"`
	Transcripts   []struct {
		Reference   string `json:"reference"`
		Annotations struct {
			Chromosome string `json:"chromosome"`
		} `json:"annotations"`
		GenomicSpans map[string]struct {
			Orientation   int `json:"orientation"`
			ExonStructure []struct {
				ExonNumber   int   `json:"exon_number"`
				GenomicStart int64 `json:"genomic_start"`
				GenomicEnd   int64 `json:"genomic_end"`
			} `json:"exon_structure"`
		} `json:"genomic_spans"`
	} `json:"transcripts"`
}

// Resolve fetches transcript coordinates for the given genes in one
// request. Gene identifiers are joined with "|" into a single query path
// segment. Genes the API does not know come back with no transcripts.
func (c *Client) Resolve(ctx context.Context, genes []string, set sources.TranscriptSet, build sources.GenomeBuild) ([]sources.GeneTranscripts, error) {
	if len(genes) == 0 {
		return nil, errors.NewValidationError("genes", genes, "at least one gene is required")
	}

	query := strings.Join(genes, "|")
	endpoint := fmt.Sprintf("%s/%s/%s/%s/%s",
		c.baseURL,
		url.PathEscape(query),
		url.PathEscape(set.APIToken()),
		url.PathEscape(c.transcriptSet),
		url.PathEscape(string(build)),
	)

	var resp []geneResponse
	if err := c.http.GetJSON(ctx, serviceName, endpoint, &resp); err != nil {
		return nil, err
	}

	out := make([]sources.GeneTranscripts, 0, len(resp))
	for _, gene := range resp {
		gt := sources.GeneTranscripts{
			Query:  gene.Requested,
			Symbol: gene.CurrentSymbol,
		}
		if gt.Query == "" {
			gt.Query = gene.CurrentSymbol
		}
		for _, tx := range gene.Transcripts {
			for _, span := range tx.GenomicSpans {
				t := sources.Transcript{
					Reference:  tx.Reference,
					Chromosome: tx.Annotations.Chromosome,
					Strand:     span.Orientation,
				}
				for _, exon := range span.ExonStructure {
					t.Exons = append(t.Exons, sources.Exon{
						Number: exon.ExonNumber,
						Start:  exon.GenomicStart,
						End:    exon.GenomicEnd,
					})
				}
				gt.Transcripts = append(gt.Transcripts, t)
			}
		}
		out = append(out, gt)
	}
	return out, nil
}
