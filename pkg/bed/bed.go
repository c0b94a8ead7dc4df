// Package bed builds and serializes BED interval records from resolved
// transcript coordinates. Output ordering is deterministic regardless of
// input order: genomic chromosome order first, then start, then end.
package bed

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/genomicsops/panelmap/pkg/errors"
	"github.com/genomicsops/panelmap/pkg/sources"
)

// Record is one interval of an export: a half-open genomic range tagged
// with the gene symbol, exon number, and transcript reference it came
// from.
type Record struct {
	Chrom  string `json:"chrom"`
	Start  int64  `json:"start"`
	End    int64  `json:"end"`
	Name   string `json:"name"`
	Strand string `json:"strand"`
}

// LocalRecord is one interval of the locally stored coordinate tables,
// carrying the extra annotation columns those tables persist.
type LocalRecord struct {
	Chrom      string `json:"chrom"`
	Start      int64  `json:"start"`
	End        int64  `json:"end"`
	Name       string `json:"name"`
	Strand     string `json:"strand"`
	Transcript string `json:"transcript"`
	Type       string `json:"type"`
	GeneID     string `json:"gene_id"`
}

// Flatten converts resolver output into one record per exon per
// transcript. Genes the resolver returned no transcripts for contribute
// nothing. Chromosome names gain a "chr" prefix if missing, and strand
// orientation +1/-1 becomes "+"/"-".
func Flatten(genes []sources.GeneTranscripts) []Record {
	var records []Record
	for _, gene := range genes {
		symbol := gene.Symbol
		if symbol == "" {
			symbol = gene.Query
		}
		for _, tx := range gene.Transcripts {
			strand := "+"
			if tx.Strand < 0 {
				strand = "-"
			}
			for _, exon := range tx.Exons {
				records = append(records, Record{
					Chrom:  normalizeChrom(tx.Chromosome),
					Start:  exon.Start,
					End:    exon.End,
					Name:   fmt.Sprintf("%s_exon%d_%s", symbol, exon.Number, tx.Reference),
					Strand: strand,
				})
			}
		}
	}
	return records
}

// Sort orders records in place by chromosome rank, then start, then end.
// Chromosomes 1-22 rank numerically, X ranks 23 and Y 24. Records whose
// chromosome cannot be ranked sort after every rankable record, ordered
// among themselves by name.
func Sort(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		ri, oki := chromRank(records[i].Chrom)
		rj, okj := chromRank(records[j].Chrom)
		if oki != okj {
			return oki
		}
		if !oki {
			return records[i].Name < records[j].Name
		}
		if ri != rj {
			return ri < rj
		}
		if records[i].Start != records[j].Start {
			return records[i].Start < records[j].Start
		}
		return records[i].End < records[j].End
	})
}

// Write serializes records as five-column tab-separated BED with no
// header. Callers sort first; Write preserves order.
func Write(w io.Writer, records []Record) error {
	if len(records) == 0 {
		return errors.ErrExportEmpty
	}
	bw := bufio.NewWriter(w)
	for _, r := range records {
		if _, err := fmt.Fprintf(bw, "%s\t%d\t%d\t%s\t%s\n", r.Chrom, r.Start, r.End, r.Name, r.Strand); err != nil {
			return errors.WrapIO("write", "", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.WrapIO("write", "", err)
	}
	return nil
}

// WriteLocal serializes stored coordinate records as eight-column
// tab-separated BED with no header.
func WriteLocal(w io.Writer, records []LocalRecord) error {
	if len(records) == 0 {
		return errors.ErrExportEmpty
	}
	bw := bufio.NewWriter(w)
	for _, r := range records {
		if _, err := fmt.Fprintf(bw, "%s\t%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
			r.Chrom, r.Start, r.End, r.Name, r.Strand, r.Transcript, r.Type, r.GeneID); err != nil {
			return errors.WrapIO("write", "", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.WrapIO("write", "", err)
	}
	return nil
}

// SuspectID reports whether a gene identifier looks like a corrupted
// numeric accession rather than a real one. Genuine HGNC numbers have at
// most five digits; anything longer came from a bad upstream import and
// must be resolved through the local symbol table before querying the
// transcript resolver.
func SuspectID(id string) bool {
	digits, ok := strings.CutPrefix(id, "HGNC:")
	if !ok {
		return false
	}
	if len(digits) <= 5 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// SuspectIDs returns the subset of ids flagged by SuspectID, preserving
// input order.
func SuspectIDs(ids []string) []string {
	var out []string
	for _, id := range ids {
		if SuspectID(id) {
			out = append(out, id)
		}
	}
	return out
}

// normalizeChrom ensures the "chr" prefix convention of BED output.
func normalizeChrom(chrom string) string {
	if chrom == "" {
		return chrom
	}
	if strings.HasPrefix(chrom, "chr") {
		return chrom
	}
	return "chr" + chrom
}

// chromRank maps a chromosome name to its genomic ordering rank. The
// second return is false for names that have no rank.
func chromRank(chrom string) (int, bool) {
	name := strings.TrimPrefix(chrom, "chr")
	switch strings.ToUpper(name) {
	case "X":
		return 23, true
	case "Y":
		return 24, true
	}
	n, err := strconv.Atoi(name)
	if err != nil || n < 1 || n > 22 {
		return 0, false
	}
	return n, true
}
