package sqlite

import (
	"context"
	"maps"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genomicsops/panelmap/pkg/bed"
	"github.com/genomicsops/panelmap/pkg/errors"
	"github.com/genomicsops/panelmap/pkg/sources"
	"github.com/genomicsops/panelmap/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestPanelRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	panel := types.Panel{ID: 635, Rcode: "R208", Version: 2.5}
	require.NoError(t, s.UpsertPanel(ctx, panel))

	got, err := s.GetPanel(ctx, "R208")
	require.NoError(t, err)
	assert.Equal(t, panel, got)

	// Lookup is case-insensitive on the request code.
	got, err = s.GetPanel(ctx, "r208")
	require.NoError(t, err)
	assert.Equal(t, panel, got)

	// Upsert updates in place.
	panel.Version = 3.0
	require.NoError(t, s.UpsertPanel(ctx, panel))
	got, err = s.GetPanel(ctx, "R208")
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.Version)

	panels, err := s.Panels(ctx)
	require.NoError(t, err)
	assert.Len(t, panels, 1)
}

func TestGetPanelNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetPanel(context.Background(), "R999")
	assert.True(t, errors.IsNotFound(err))
}

func TestUpsertPanelRequiresRcode(t *testing.T) {
	s := newTestStore(t)
	err := s.UpsertPanel(context.Background(), types.Panel{ID: 1})
	assert.True(t, errors.IsValidationError(err))
}

func TestReplaceMembership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPanel(ctx, types.Panel{ID: 635, Rcode: "R208", Version: 2.5}))

	v25 := types.Membership{
		"HGNC:1100": types.ConfidenceHigh,
		"HGNC:2000": types.ConfidenceModerate,
	}
	require.NoError(t, s.ReplaceMembership(ctx, 635, 2.5, 2.5, v25))

	got, err := s.Membership(ctx, 635)
	require.NoError(t, err)
	assert.Equal(t, v25, got)

	// Swap to 3.0: the 2.5 membership must land in the archive.
	v30 := types.Membership{
		"HGNC:1100": types.ConfidenceHigh,
		"HGNC:3000": types.ConfidenceHigh,
	}
	require.NoError(t, s.ReplaceMembership(ctx, 635, 2.5, 3.0, v30))

	got, err = s.Membership(ctx, 635)
	require.NoError(t, err)
	assert.Equal(t, v30, got)

	archived, err := s.ArchivedMembership(ctx, 635, 2.5)
	require.NoError(t, err)
	assert.Equal(t, v25, archived)

	panel, err := s.GetPanel(ctx, "R208")
	require.NoError(t, err)
	assert.Equal(t, 3.0, panel.Version)
}

func TestReplaceMembershipAtomicUnderReaders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	oldM := types.Membership{
		"HGNC:1100": types.ConfidenceHigh,
		"HGNC:2000": types.ConfidenceModerate,
		"HGNC:3000": types.ConfidenceLow,
	}
	newM := types.Membership{
		"HGNC:1100": types.ConfidenceModerate,
		"HGNC:4000": types.ConfidenceHigh,
	}
	require.NoError(t, s.UpsertPanel(ctx, types.Panel{ID: 635, Rcode: "R208", Version: 2.5}))
	require.NoError(t, s.ReplaceMembership(ctx, 635, 2.5, 2.5, oldM))

	// Readers hammer the membership while the swap runs. Every read must
	// observe exactly the old set or exactly the new set, never a mix.
	stop := make(chan struct{})
	var torn atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				m, err := s.Membership(ctx, 635)
				if err != nil {
					torn.Add(1)
					return
				}
				if !maps.Equal(m, oldM) && !maps.Equal(m, newM) {
					torn.Add(1)
					return
				}
			}
		}()
	}

	require.NoError(t, s.ReplaceMembership(ctx, 635, 2.5, 3.0, newM))

	close(stop)
	wg.Wait()
	assert.Zero(t, torn.Load(), "a reader observed a partially swapped membership")

	got, err := s.Membership(ctx, 635)
	require.NoError(t, err)
	assert.Equal(t, newM, got)

	archived, err := s.ArchivedMembership(ctx, 635, 2.5)
	require.NoError(t, err)
	assert.Equal(t, oldM, archived)
}

func TestArchiveMembershipIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPanel(ctx, types.Panel{ID: 635, Rcode: "R208", Version: 2.5}))
	m := types.Membership{"HGNC:1100": types.ConfidenceHigh}
	require.NoError(t, s.ReplaceMembership(ctx, 635, 2.5, 2.5, m))

	require.NoError(t, s.ArchiveMembership(ctx, 635, 2.5))
	require.NoError(t, s.ArchiveMembership(ctx, 635, 2.5))
	require.NoError(t, s.ArchiveMembership(ctx, 635, 2.5))

	archived, err := s.ArchivedMembership(ctx, 635, 2.5)
	require.NoError(t, err)
	assert.Equal(t, m, archived)
}

func TestArchiveDoesNotOverwriteHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPanel(ctx, types.Panel{ID: 635, Rcode: "R208", Version: 2.5}))
	require.NoError(t, s.ReplaceMembership(ctx, 635, 2.5, 2.5,
		types.Membership{"HGNC:1100": types.ConfidenceHigh}))
	require.NoError(t, s.ArchiveMembership(ctx, 635, 2.5))

	// Mutate the live membership, then re-archive under the same version.
	// The archived snapshot must keep its original content.
	require.NoError(t, s.ReplaceMembership(ctx, 635, 2.5, 2.5,
		types.Membership{"HGNC:1100": types.ConfidenceLow}))
	require.NoError(t, s.ArchiveMembership(ctx, 635, 2.5))

	archived, err := s.ArchivedMembership(ctx, 635, 2.5)
	require.NoError(t, err)
	assert.Equal(t, types.ConfidenceHigh, archived["HGNC:1100"])
}

func TestArchivedMembershipNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ArchivedMembership(context.Background(), 635, 1.0)
	assert.True(t, errors.IsNotFound(err))
}

func TestLatestPatientVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	records := []types.PatientRecord{
		{PatientID: "T123", Rcode: "R208", PanelID: 635, Version: 2.0, Date: date("2024-01-10")},
		{PatientID: "T123", Rcode: "R208", PanelID: 635, Version: 2.5, Date: date("2024-06-01")},
		{PatientID: "T123", Rcode: "R134", PanelID: 700, Version: 1.0, Date: date("2024-07-01")},
	}
	for _, r := range records {
		require.NoError(t, s.AddPatientRecord(ctx, r))
	}

	latest, err := s.LatestPatientVersion(ctx, "T123", "R208")
	require.NoError(t, err)
	assert.Equal(t, 2.5, latest.Version)
	assert.Equal(t, "2024-06-01", latest.DateString())
}

func TestLatestPatientVersionTieBreaksByVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Two tests on the same day: the higher version wins.
	require.NoError(t, s.AddPatientRecord(ctx, types.PatientRecord{
		PatientID: "T123", Rcode: "R208", PanelID: 635, Version: 2.0, Date: date("2024-06-01")}))
	require.NoError(t, s.AddPatientRecord(ctx, types.PatientRecord{
		PatientID: "T123", Rcode: "R208", PanelID: 635, Version: 2.5, Date: date("2024-06-01")}))

	latest, err := s.LatestPatientVersion(ctx, "T123", "R208")
	require.NoError(t, err)
	assert.Equal(t, 2.5, latest.Version)
}

func TestLatestPatientVersionNoHistory(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LatestPatientVersion(context.Background(), "T999", "R208")
	assert.True(t, errors.IsNotFound(err))
}

func TestPatientRecordsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddPatientRecord(ctx, types.PatientRecord{
		PatientID: "T123", Rcode: "R208", PanelID: 635, Version: 2.0, Date: date("2024-01-10")}))
	require.NoError(t, s.AddPatientRecord(ctx, types.PatientRecord{
		PatientID: "T123", Rcode: "R208", PanelID: 635, Version: 2.5, Date: date("2024-06-01")}))

	got, err := s.PatientRecords(ctx, "T123")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2.5, got[0].Version)
	assert.Equal(t, 2.0, got[1].Version)
}

func TestRecordsForPanel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, r := range []types.PatientRecord{
		{PatientID: "T2", Rcode: "R208", PanelID: 635, Version: 2.5, Date: date("2024-06-01")},
		{PatientID: "T1", Rcode: "R208", PanelID: 635, Version: 2.0, Date: date("2024-01-01")},
		{PatientID: "T1", Rcode: "R208", PanelID: 635, Version: 2.5, Date: date("2024-06-02")},
		{PatientID: "T3", Rcode: "R134", PanelID: 700, Version: 1.0, Date: date("2024-03-01")},
	} {
		require.NoError(t, s.AddPatientRecord(ctx, r))
	}

	got, err := s.RecordsForPanel(ctx, "r208")
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Newest first, records for other panels excluded.
	assert.Equal(t, "T1", got[0].PatientID)
	assert.Equal(t, "2024-06-02", got[0].DateString())
	assert.Equal(t, "T2", got[1].PatientID)
	assert.Equal(t, 2.5, got[1].Version)
	assert.Equal(t, "T1", got[2].PatientID)
	assert.Equal(t, 2.0, got[2].Version)
}

func TestGeneSymbols(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetGeneSymbol(ctx, "HGNC:12345678", "BRCA1"))
	require.NoError(t, s.SetGeneSymbol(ctx, "HGNC:987654321", "BRCA2"))

	symbols, err := s.GeneSymbols(ctx, []string{"HGNC:12345678", "HGNC:456"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"HGNC:12345678": "BRCA1"}, symbols)

	symbols, err = s.GeneSymbols(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, symbols)
}

func TestLocalBED(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	records := []bed.LocalRecord{
		{Chrom: "chr2", Start: 300, End: 400, Name: "Test2", Strand: "-", Transcript: "NM_002", Type: "mpc", GeneID: "HGNC:2"},
		{Chrom: "chr1", Start: 100, End: 200, Name: "Test1", Strand: "+", Transcript: "NM_001", Type: "ms", GeneID: "HGNC:1"},
	}
	require.NoError(t, s.AddLocalBED(ctx, sources.GRCh38, records))

	got, err := s.LocalBED(ctx, []string{"HGNC:1", "HGNC:2"}, sources.GRCh38)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "chr1", got[0].Chrom)
	assert.Equal(t, "chr2", got[1].Chrom)

	// The GRCh37 table is separate.
	got, err = s.LocalBED(ctx, []string{"HGNC:1"}, sources.GRCh37)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
