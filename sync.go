package panelmap

import (
	"context"
	"time"

	"github.com/genomicsops/panelmap/pkg/differ"
	"github.com/genomicsops/panelmap/pkg/errors"
	"github.com/genomicsops/panelmap/pkg/types"
)

// SyncResult reports the outcome of one panel synchronization.
type SyncResult struct {
	Panel      types.Panel       `json:"panel"`
	Disclaimer types.Disclaimer  `json:"disclaimer"`
	OldVersion float64           `json:"old_version"`
	NewVersion float64           `json:"new_version"`
	Changes    *differ.Changeset `json:"changes,omitempty"`
}

// Updated returns true if the sync replaced the local membership.
func (r *SyncResult) Updated() bool {
	return r.Disclaimer == types.DisclaimerUpdated
}

// RefreshReport summarizes a bulk refresh across every signed-off panel.
type RefreshReport struct {
	Seen       int      `json:"seen"`
	Registered int      `json:"registered"`
	Updated    int      `json:"updated"`
	UpToDate   int      `json:"up_to_date"`
	Failed     []string `json:"failed,omitempty"`
}

// Sync brings the local panel for a request code up to date with
// upstream. Upstream being unreachable or the update failing does not
// return an error; the outcome is reported through the result's
// disclaimer so callers can still serve the last good local state.
// An unknown request code returns a not-found error.
func (p *panelmap) Sync(ctx context.Context, rcode string) (*SyncResult, error) {
	rcode = types.NormalizeRcode(rcode)
	if rcode == "" {
		return nil, errors.NewValidationError("rcode", rcode, "request code is required")
	}

	// Concurrent syncs of one request code share a single run.
	v, err, _ := p.syncGroup.Do(rcode, func() (any, error) {
		return p.syncPanel(ctx, rcode)
	})
	if err != nil {
		return nil, err
	}
	return v.(*SyncResult), nil
}

// syncPanel performs one synchronization run for a normalized rcode.
func (p *panelmap) syncPanel(ctx context.Context, rcode string) (*SyncResult, error) {
	started := time.Now()
	log := p.config.logger.With().Str("rcode", rcode).Logger()

	panel, err := p.store.GetPanel(ctx, rcode)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{
		Panel:      panel,
		OldVersion: panel.Version,
		NewVersion: panel.Version,
	}

	info, err := p.panels.LatestVersion(ctx, panel.ID)
	if err != nil {
		if errors.IsUpstreamUnreachable(err) {
			log.Warn().Err(err).Msg("Upstream unreachable, serving local panel")
			result.Disclaimer = types.DisclaimerUpstreamUnreachable
			p.config.metrics.ObserveSync("unreachable", time.Since(started).Seconds())
			return result, nil
		}
		p.config.metrics.ObserveSync("error", time.Since(started).Seconds())
		return nil, errors.NewSyncError(rcode, panel.ID, "version check", err)
	}

	if info.Version == panel.Version {
		log.Debug().Str("version", types.FormatVersion(panel.Version)).Msg("Panel already up to date")
		result.Disclaimer = types.DisclaimerUpToDate
		p.config.metrics.ObserveSync("up_to_date", time.Since(started).Seconds())
		return result, nil
	}

	log.Info().
		Str("local_version", types.FormatVersion(panel.Version)).
		Str("upstream_version", types.FormatVersion(info.Version)).
		Msg("Panel version differs from upstream, updating")

	oldMembership, err := p.store.Membership(ctx, panel.ID)
	if err != nil {
		result.Disclaimer = types.DisclaimerSyncFailed
		p.config.metrics.ObserveSync("failed", time.Since(started).Seconds())
		log.Error().Err(err).Msg("Reading current membership failed")
		return result, nil
	}

	newMembership, err := p.panels.Membership(ctx, panel.ID, info.Version)
	if err != nil {
		if errors.IsUpstreamUnreachable(err) {
			result.Disclaimer = types.DisclaimerUpstreamUnreachable
			p.config.metrics.ObserveSync("unreachable", time.Since(started).Seconds())
			log.Warn().Err(err).Msg("Upstream unreachable fetching membership, serving local panel")
		} else {
			result.Disclaimer = types.DisclaimerSyncFailed
			p.config.metrics.ObserveSync("failed", time.Since(started).Seconds())
			log.Error().Err(err).Msg("Fetching new membership failed")
		}
		return result, nil
	}

	// The swap must not be torn by the caller walking away mid-request.
	writeCtx := context.WithoutCancel(ctx)
	if err := p.store.ReplaceMembership(writeCtx, panel.ID, panel.Version, info.Version, newMembership); err != nil {
		result.Disclaimer = types.DisclaimerSyncFailed
		p.config.metrics.ObserveSync("failed", time.Since(started).Seconds())
		log.Error().Err(err).Msg("Membership swap failed, local panel unchanged")
		return result, nil
	}

	result.Panel.Version = info.Version
	result.NewVersion = info.Version
	result.Disclaimer = types.DisclaimerUpdated
	result.Changes = differ.Compare(oldMembership, newMembership)

	p.config.metrics.ObserveSync("updated", time.Since(started).Seconds())
	p.config.metrics.PanelVersions.WithLabelValues(rcode).Set(info.Version)
	log.Info().
		Str("version", types.FormatVersion(info.Version)).
		Int("added", len(result.Changes.Added)).
		Int("removed", len(result.Changes.Removed)).
		Int("confidence_changed", len(result.Changes.ConfidenceChanged)).
		Msg("Panel updated")

	return result, nil
}

// RefreshAll walks the upstream signed-off panel listing, registers
// panels not tracked locally, and synchronizes every panel whose local
// version is behind. Individual panel failures are collected rather than
// aborting the run.
func (p *panelmap) RefreshAll(ctx context.Context) (*RefreshReport, error) {
	infos, err := p.panels.SignedOffPanels(ctx)
	if err != nil {
		return nil, err
	}

	report := &RefreshReport{}
	for _, info := range infos {
		if len(info.Rcodes) == 0 {
			continue
		}
		report.Seen++

		rcode := types.NormalizeRcode(info.Rcodes[0])
		panel, err := p.store.GetPanel(ctx, rcode)
		if errors.IsNotFound(err) {
			// Register with version zero so the sync below sees it as
			// behind and pulls the membership.
			panel = types.Panel{ID: info.ID, Rcode: rcode}
			if err := p.store.UpsertPanel(ctx, panel); err != nil {
				report.Failed = append(report.Failed, rcode)
				p.config.logger.Error().Err(err).Str("rcode", rcode).Msg("Registering panel failed")
				continue
			}
			report.Registered++
		} else if err != nil {
			report.Failed = append(report.Failed, rcode)
			continue
		}

		result, err := p.Sync(ctx, rcode)
		if err != nil {
			report.Failed = append(report.Failed, rcode)
			continue
		}
		switch result.Disclaimer {
		case types.DisclaimerUpdated:
			report.Updated++
		case types.DisclaimerUpToDate:
			report.UpToDate++
		default:
			report.Failed = append(report.Failed, rcode)
		}
	}

	p.config.logger.Info().
		Int("seen", report.Seen).
		Int("registered", report.Registered).
		Int("updated", report.Updated).
		Int("up_to_date", report.UpToDate).
		Int("failed", len(report.Failed)).
		Msg("Bulk refresh complete")
	return report, nil
}

// syncBestEffort runs a sync before a read operation and maps any sync
// error onto the matching disclaimer instead of failing the read. Unknown
// request codes still fail.
func (p *panelmap) syncBestEffort(ctx context.Context, rcode string) (types.Disclaimer, error) {
	if !p.config.syncBeforeRead {
		return types.DisclaimerUpToDate, nil
	}
	result, err := p.Sync(ctx, rcode)
	if err != nil {
		if errors.IsNotFound(err) || errors.IsValidationError(err) {
			return 0, err
		}
		return types.DisclaimerSyncFailed, nil
	}
	return result.Disclaimer, nil
}
