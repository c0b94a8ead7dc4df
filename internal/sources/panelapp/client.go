// Package panelapp implements the upstream panel catalog adapter against
// the PanelApp REST API. Only signed-off panels are consulted, so the
// versions this client reports are the clinically approved ones.
package panelapp

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/genomicsops/panelmap/internal/transport"
	"github.com/genomicsops/panelmap/pkg/errors"
	"github.com/genomicsops/panelmap/pkg/logging"
	"github.com/genomicsops/panelmap/pkg/sources"
	"github.com/genomicsops/panelmap/pkg/types"
)

// DefaultBaseURL is the public PanelApp panels endpoint.
const DefaultBaseURL = "https://panelapp.genomicsengland.co.uk/api/v1/panels"

const serviceName = "panelapp"

// rcodePattern matches clinical request codes inside the free-text
// relevant_disorders list.
var rcodePattern = regexp.MustCompile(`^R\d+(\.\d+)?$`)

// Client queries the PanelApp API. It implements sources.PanelSource.
type Client struct {
	baseURL string
	http    *transport.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithTransport replaces the HTTP transport.
func WithTransport(t *transport.Client) Option {
	return func(c *Client) {
		c.http = t
	}
}

// New creates a PanelApp client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		http:    transport.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// signedOffPage is one page of the signed-off panel listing.
type signedOffPage struct {
	Next    string `json:"next"`
	Results []struct {
		ID                int64    `json:"id"`
		Name              string   `json:"name"`
		Version           string   `json:"version"`
		RelevantDisorders []string `json:"relevant_disorders"`
	} `json:"results"`
}

// panelDetail is the versioned panel content response.
type panelDetail struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Genes []struct {
		GeneData struct {
			HGNCID     string `json:"hgnc_id"`
			GeneSymbol string `json:"gene_symbol"`
		} `json:"gene_data"`
		ConfidenceLevel string `json:"confidence_level"`
	} `json:"genes"`
}

// LatestVersion returns the latest signed-off version of one panel.
func (c *Client) LatestVersion(ctx context.Context, panelID int64) (sources.PanelInfo, error) {
	url := fmt.Sprintf("%s/signedoff/?panel_id=%d&display=latest", c.baseURL, panelID)

	var page signedOffPage
	if err := c.http.GetJSON(ctx, serviceName, url, &page); err != nil {
		return sources.PanelInfo{}, err
	}
	if len(page.Results) == 0 {
		return sources.PanelInfo{}, errors.NewNotFoundError("signed-off panel", strconv.FormatInt(panelID, 10))
	}

	r := page.Results[0]
	version, err := strconv.ParseFloat(r.Version, 64)
	if err != nil {
		return sources.PanelInfo{}, &errors.APIError{
			Service:  serviceName,
			Message:  fmt.Sprintf("unparsable version %q for panel %d", r.Version, panelID),
			Endpoint: url,
			Err:      err,
		}
	}

	return sources.PanelInfo{
		ID:      r.ID,
		Name:    r.Name,
		Rcodes:  extractRcodes(r.RelevantDisorders),
		Version: version,
	}, nil
}

// Membership returns the gene content of one specific panel version.
func (c *Client) Membership(ctx context.Context, panelID int64, version float64) (types.Membership, error) {
	url := fmt.Sprintf("%s/%d/?version=%s", c.baseURL, panelID, types.FormatVersion(version))

	var detail panelDetail
	if err := c.http.GetJSON(ctx, serviceName, url, &detail); err != nil {
		return nil, err
	}

	membership := make(types.Membership, len(detail.Genes))
	for _, g := range detail.Genes {
		if g.GeneData.HGNCID == "" {
			continue
		}
		tier, ok := types.ParseConfidence(g.ConfidenceLevel)
		if !ok {
			logging.Warn().
				Str("gene", g.GeneData.HGNCID).
				Str("confidence", g.ConfidenceLevel).
				Int64("panel_id", panelID).
				Msg("Skipping gene with unknown confidence level")
			continue
		}
		membership[g.GeneData.HGNCID] = tier
	}
	return membership, nil
}

// SignedOffPanels lists every signed-off panel, following pagination
// until the API reports no further pages.
func (c *Client) SignedOffPanels(ctx context.Context) ([]sources.PanelInfo, error) {
	url := c.baseURL + "/signedoff/?display=latest&page=1"

	var panels []sources.PanelInfo
	for url != "" {
		var page signedOffPage
		if err := c.http.GetJSON(ctx, serviceName, url, &page); err != nil {
			return nil, err
		}
		for _, r := range page.Results {
			version, err := strconv.ParseFloat(r.Version, 64)
			if err != nil {
				logging.Warn().
					Int64("panel_id", r.ID).
					Str("version", r.Version).
					Msg("Skipping panel with unparsable version")
				continue
			}
			panels = append(panels, sources.PanelInfo{
				ID:      r.ID,
				Name:    r.Name,
				Rcodes:  extractRcodes(r.RelevantDisorders),
				Version: version,
			})
		}
		url = page.Next
	}
	return panels, nil
}

// extractRcodes filters the free-text relevant_disorders list down to
// actual request codes.
func extractRcodes(disorders []string) []string {
	var rcodes []string
	for _, d := range disorders {
		if rcodePattern.MatchString(d) {
			rcodes = append(rcodes, d)
		}
	}
	return rcodes
}
