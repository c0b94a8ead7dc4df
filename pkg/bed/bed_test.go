package bed

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genomicsops/panelmap/pkg/errors"
	"github.com/genomicsops/panelmap/pkg/sources"
)

func TestFlatten(t *testing.T) {
	genes := []sources.GeneTranscripts{
		{
			Query:  "HGNC:1100",
			Symbol: "BRCA1",
			Transcripts: []sources.Transcript{
				{
					Reference:  "NM_007294.4",
					Chromosome: "17",
					Strand:     -1,
					Exons: []sources.Exon{
						{Number: 1, Start: 43125271, End: 43125364},
						{Number: 2, Start: 43124017, End: 43124115},
					},
				},
			},
		},
	}

	records := Flatten(genes)
	require.Len(t, records, 2)
	assert.Equal(t, Record{
		Chrom:  "chr17",
		Start:  43125271,
		End:    43125364,
		Name:   "BRCA1_exon1_NM_007294.4",
		Strand: "-",
	}, records[0])
	assert.Equal(t, "BRCA1_exon2_NM_007294.4", records[1].Name)
}

func TestFlattenSkipsUnresolvedGenes(t *testing.T) {
	genes := []sources.GeneTranscripts{
		{Query: "HGNC:999999", Symbol: "UNKNOWN"},
	}
	assert.Empty(t, Flatten(genes))
}

func TestFlattenUsesQueryWhenSymbolMissing(t *testing.T) {
	genes := []sources.GeneTranscripts{
		{
			Query: "BRCA2",
			Transcripts: []sources.Transcript{
				{Reference: "NM_000059.4", Chromosome: "chr13", Strand: 1,
					Exons: []sources.Exon{{Number: 1, Start: 100, End: 200}}},
			},
		},
	}
	records := Flatten(genes)
	require.Len(t, records, 1)
	assert.Equal(t, "BRCA2_exon1_NM_000059.4", records[0].Name)
	assert.Equal(t, "chr13", records[0].Chrom)
	assert.Equal(t, "+", records[0].Strand)
}

func TestSortChromosomeOrder(t *testing.T) {
	records := []Record{
		{Chrom: "chrY", Start: 1, End: 2, Name: "y"},
		{Chrom: "chrX", Start: 1, End: 2, Name: "x"},
		{Chrom: "chr10", Start: 1, End: 2, Name: "ten"},
		{Chrom: "chr2", Start: 1, End: 2, Name: "two"},
		{Chrom: "chr22", Start: 1, End: 2, Name: "twentytwo"},
		{Chrom: "chr1", Start: 1, End: 2, Name: "one"},
	}

	Sort(records)

	var order []string
	for _, r := range records {
		order = append(order, r.Chrom)
	}
	// chr10 ranks numerically, not lexically; X follows 22 and precedes Y.
	assert.Equal(t, []string{"chr1", "chr2", "chr10", "chr22", "chrX", "chrY"}, order)
}

func TestSortWithinChromosome(t *testing.T) {
	records := []Record{
		{Chrom: "chr17", Start: 43125271, End: 43125364, Name: "exon1"},
		{Chrom: "chr17", Start: 43124017, End: 43124115, Name: "exon2"},
		{Chrom: "chr17", Start: 43124017, End: 43124100, Name: "shorter"},
	}

	Sort(records)

	assert.Equal(t, "shorter", records[0].Name)
	assert.Equal(t, "exon2", records[1].Name)
	assert.Equal(t, "exon1", records[2].Name)
}

func TestSortUnparsableChromosomesLast(t *testing.T) {
	records := []Record{
		{Chrom: "NoRecord", Start: 0, End: 0, Name: "broken"},
		{Chrom: "chrX", Start: 500, End: 1500, Name: "x"},
		{Chrom: "chr1", Start: 1000, End: 2000, Name: "one"},
	}

	Sort(records)

	assert.Equal(t, "one", records[0].Name)
	assert.Equal(t, "x", records[1].Name)
	assert.Equal(t, "broken", records[2].Name)
}

func TestSortDeterministicUnderPermutation(t *testing.T) {
	base := []Record{
		{Chrom: "chr17", Start: 43124017, End: 43124115, Name: "BRCA1_exon2_NM_007294.4", Strand: "-"},
		{Chrom: "chr17", Start: 43124017, End: 43124115, Name: "BRCA1_exon2_ENST00000357654.9", Strand: "-"},
		{Chrom: "chr17", Start: 43125271, End: 43125364, Name: "BRCA1_exon1_NM_007294.4", Strand: "-"},
		{Chrom: "chr2", Start: 100, End: 200, Name: "A_exon1_NM_1.1", Strand: "+"},
		{Chrom: "chrX", Start: 5, End: 10, Name: "B_exon1_NM_2.1", Strand: "+"},
	}

	sorted := make([]Record, len(base))
	copy(sorted, base)
	Sort(sorted)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10; i++ {
		shuffled := make([]Record, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		Sort(shuffled)

		// Order is keyed on chromosome, start, end only; rows sharing all
		// three keys stay together.
		for j := range sorted {
			assert.Equal(t, sorted[j].Chrom, shuffled[j].Chrom)
			assert.Equal(t, sorted[j].Start, shuffled[j].Start)
			assert.Equal(t, sorted[j].End, shuffled[j].End)
		}
	}
}

func TestWrite(t *testing.T) {
	records := []Record{
		{Chrom: "chr17", Start: 43124017, End: 43124115, Name: "BRCA1_exon2_NM_007294.4", Strand: "-"},
		{Chrom: "chr17", Start: 43125271, End: 43125364, Name: "BRCA1_exon1_NM_007294.4", Strand: "-"},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, records))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "chr17\t43124017\t43124115\tBRCA1_exon2_NM_007294.4\t-", lines[0])
	assert.Equal(t, "chr17\t43125271\t43125364\tBRCA1_exon1_NM_007294.4\t-", lines[1])
}

func TestWriteEmptyIsError(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, nil)
	assert.ErrorIs(t, err, errors.ErrExportEmpty)
	assert.Zero(t, buf.Len())
}

func TestWriteLocal(t *testing.T) {
	records := []LocalRecord{
		{Chrom: "chr1", Start: 100, End: 200, Name: "Test1", Strand: "+", Transcript: "NM_001", Type: "ms", GeneID: "HGNC:1"},
		{Chrom: "chr2", Start: 300, End: 400, Name: "Test2", Strand: "-", Transcript: "NM_002", Type: "mpc", GeneID: "HGNC:2"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteLocal(&buf, records))

	want := "chr1\t100\t200\tTest1\t+\tNM_001\tms\tHGNC:1\n" +
		"chr2\t300\t400\tTest2\t-\tNM_002\tmpc\tHGNC:2\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteLocalEmptyIsError(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, WriteLocal(&buf, nil), errors.ErrExportEmpty)
}

func TestSuspectID(t *testing.T) {
	tests := []struct {
		id      string
		suspect bool
	}{
		{"HGNC:12345678", true},
		{"HGNC:123456789", true},
		{"HGNC:12345", false},
		{"HGNC:999", false},
		{"HGNC:456", false},
		{"BRCA1", false},
		{"HGNC:12345678a", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.suspect, SuspectID(tt.id))
		})
	}
}

func TestSuspectIDs(t *testing.T) {
	ids := []string{"HGNC:12345678", "HGNC:456", "BRCA1", "HGNC:111222333"}
	assert.Equal(t, []string{"HGNC:12345678", "HGNC:111222333"}, SuspectIDs(ids))
	assert.Nil(t, SuspectIDs([]string{"HGNC:456"}))
}
