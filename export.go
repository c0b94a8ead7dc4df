package panelmap

import (
	"context"
	"io"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/genomicsops/panelmap/pkg/bed"
	"github.com/genomicsops/panelmap/pkg/errors"
	"github.com/genomicsops/panelmap/pkg/sources"
	"github.com/genomicsops/panelmap/pkg/types"
)

// ExportRequest describes a panel BED export. A zero Version means the
// current panel version; Tier filters the membership before resolving
// coordinates.
type ExportRequest struct {
	Rcode   string
	Version float64
	Tier    types.ConfidenceTier
	Set     sources.TranscriptSet
	Build   sources.GenomeBuild
}

// ExportPanelBED resolves transcript coordinates for a panel's genes and
// writes them as sorted BED. Producing no interval at all is an error so
// callers never mistake an empty file for a valid region list.
func (p *panelmap) ExportPanelBED(ctx context.Context, w io.Writer, req ExportRequest) error {
	req.Rcode = types.NormalizeRcode(req.Rcode)
	if req.Rcode == "" {
		return errors.NewValidationError("rcode", req.Rcode, "request code is required")
	}
	if req.Build == "" {
		req.Build = sources.GRCh38
	}
	if req.Set == "" {
		req.Set = sources.SetMANESelect
	}

	panel, err := p.store.GetPanel(ctx, req.Rcode)
	if err != nil {
		return err
	}

	version := req.Version
	if version == 0 {
		version = panel.Version
	}
	membership, err := p.membershipAt(ctx, panel, version)
	if err != nil {
		return err
	}

	genes := membership.Filter(req.Tier).Genes()
	return p.exportGenes(ctx, w, genes, req.Set, req.Build)
}

// ExportPatientBED writes a BED file covering the high-confidence genes
// of the panel version a patient was most recently tested against.
func (p *panelmap) ExportPatientBED(ctx context.Context, w io.Writer, patientID, rcode string, set sources.TranscriptSet, build sources.GenomeBuild) error {
	if patientID == "" {
		return errors.NewValidationError("patient_id", patientID, "patient ID is required")
	}
	rcode = types.NormalizeRcode(rcode)

	panel, err := p.store.GetPanel(ctx, rcode)
	if err != nil {
		return err
	}
	record, err := p.store.LatestPatientVersion(ctx, patientID, rcode)
	if err != nil {
		return err
	}
	membership, err := p.membershipAt(ctx, panel, record.Version)
	if err != nil {
		return err
	}

	if build == "" {
		build = sources.GRCh38
	}
	if set == "" {
		set = sources.SetMANESelect
	}
	genes := membership.Filter(types.ConfidenceHigh).Genes()
	return p.exportGenes(ctx, w, genes, set, build)
}

// ExportLocalBED writes a BED file from the locally cached coordinate
// tables, without touching upstream.
func (p *panelmap) ExportLocalBED(ctx context.Context, w io.Writer, geneIDs []string, build sources.GenomeBuild) error {
	if len(geneIDs) == 0 {
		return errors.NewValidationError("genes", geneIDs, "at least one gene is required")
	}
	if build == "" {
		build = sources.GRCh38
	}
	records, err := p.store.LocalBED(ctx, geneIDs, build)
	if err != nil {
		return err
	}
	if err := bed.WriteLocal(w, records); err != nil {
		p.config.metrics.ExportTotal.WithLabelValues("empty").Inc()
		return err
	}
	p.config.metrics.ExportTotal.WithLabelValues("ok").Inc()
	return nil
}

// exportGenes resolves coordinates for the given genes and writes sorted
// BED output.
func (p *panelmap) exportGenes(ctx context.Context, w io.Writer, genes []string, set sources.TranscriptSet, build sources.GenomeBuild) error {
	if len(genes) == 0 {
		p.config.metrics.ExportTotal.WithLabelValues("empty").Inc()
		return errors.ErrExportEmpty
	}

	genes, err := p.normalizeGeneIDs(ctx, genes)
	if err != nil {
		return err
	}

	resolved, err := p.resolver.Resolve(ctx, genes, set, build)
	if err != nil {
		p.config.metrics.ExportTotal.WithLabelValues("error").Inc()
		return err
	}

	records := bed.Flatten(resolved)
	bed.Sort(records)
	if err := bed.Write(w, records); err != nil {
		p.config.metrics.ExportTotal.WithLabelValues("empty").Inc()
		return err
	}
	p.config.metrics.ExportTotal.WithLabelValues("ok").Inc()
	return nil
}

// normalizeGeneIDs replaces corrupted numeric accessions with approved
// symbols from the local alias table before they hit the resolver.
// Identifiers with no local alias pass through unchanged.
func (p *panelmap) normalizeGeneIDs(ctx context.Context, genes []string) ([]string, error) {
	suspects := bed.SuspectIDs(genes)
	if len(suspects) == 0 {
		return genes, nil
	}

	symbols, err := p.store.GeneSymbols(ctx, suspects)
	if err != nil {
		return nil, err
	}

	out := make([]string, len(genes))
	for i, g := range genes {
		if symbol, ok := symbols[g]; ok && bed.SuspectID(g) {
			p.config.logger.Debug().
				Str("gene", g).
				Str("symbol", symbol).
				Msg("Replacing corrupted gene accession with approved symbol")
			out[i] = symbol
			continue
		}
		out[i] = g
	}
	return out, nil
}

// catalogFile is the YAML seed format consumed by ImportCatalog.
type catalogFile struct {
	Panels []struct {
		PanelID int64   `yaml:"panel_id"`
		Rcode   string  `yaml:"rcode"`
		Version float64 `yaml:"version"`
		Genes   []struct {
			HGNCID     string `yaml:"hgnc_id"`
			Confidence string `yaml:"confidence"`
		} `yaml:"genes"`
	} `yaml:"panels"`
	Aliases []struct {
		HGNCID string `yaml:"hgnc_id"`
		Symbol string `yaml:"symbol"`
	} `yaml:"aliases"`
	BED []struct {
		Build      string `yaml:"build"`
		HGNCID     string `yaml:"hgnc_id"`
		Chrom      string `yaml:"chrom"`
		Start      int64  `yaml:"start"`
		End        int64  `yaml:"end"`
		Name       string `yaml:"name"`
		Strand     string `yaml:"strand"`
		Transcript string `yaml:"transcript"`
		Type       string `yaml:"type"`
	} `yaml:"bed"`
}

// ImportCatalog seeds the local replica from a YAML catalog file: panels
// with memberships, gene symbol aliases, and cached coordinate records.
func (p *panelmap) ImportCatalog(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapIO("read", path, err)
	}

	var catalog catalogFile
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return errors.WrapValidation("catalog", err)
	}

	for _, entry := range catalog.Panels {
		panel := types.Panel{
			ID:      entry.PanelID,
			Rcode:   types.NormalizeRcode(entry.Rcode),
			Version: entry.Version,
		}
		if err := p.store.UpsertPanel(ctx, panel); err != nil {
			return err
		}

		if len(entry.Genes) == 0 {
			continue
		}
		membership := make(types.Membership, len(entry.Genes))
		for _, g := range entry.Genes {
			tier, ok := types.ParseConfidence(g.Confidence)
			if !ok {
				return errors.NewValidationError("confidence", g.Confidence, "unknown confidence level for "+g.HGNCID)
			}
			membership[g.HGNCID] = tier
		}
		if err := p.store.ReplaceMembership(ctx, panel.ID, panel.Version, panel.Version, membership); err != nil {
			return err
		}
	}

	for _, alias := range catalog.Aliases {
		if err := p.store.SetGeneSymbol(ctx, alias.HGNCID, alias.Symbol); err != nil {
			return err
		}
	}

	byBuild := make(map[sources.GenomeBuild][]bed.LocalRecord)
	for _, entry := range catalog.BED {
		build, ok := sources.ParseBuild(entry.Build)
		if !ok {
			return errors.NewValidationError("build", entry.Build, "unknown genome build")
		}
		byBuild[build] = append(byBuild[build], bed.LocalRecord{
			Chrom:      entry.Chrom,
			Start:      entry.Start,
			End:        entry.End,
			Name:       entry.Name,
			Strand:     entry.Strand,
			Transcript: entry.Transcript,
			Type:       entry.Type,
			GeneID:     entry.HGNCID,
		})
	}
	for build, records := range byBuild {
		if err := p.store.AddLocalBED(ctx, build, records); err != nil {
			return err
		}
	}

	p.config.logger.Info().
		Int("panels", len(catalog.Panels)).
		Int("aliases", len(catalog.Aliases)).
		Int("bed_records", len(catalog.BED)).
		Str("path", path).
		Msg("Catalog imported")
	return nil
}
