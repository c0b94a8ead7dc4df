package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	panelmap "github.com/genomicsops/panelmap"
	"github.com/genomicsops/panelmap/internal/server/response"
	"github.com/genomicsops/panelmap/pkg/sources"
	"github.com/genomicsops/panelmap/pkg/types"
)

// handleHealth reports liveness and store reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Store().Ping(r.Context()); err != nil {
		response.ServiceUnavailable(w, "store unreachable")
		return
	}
	response.OK(w, map[string]string{"status": "ok"})
}

// handleListPanels lists every locally tracked panel.
func (s *Server) handleListPanels(w http.ResponseWriter, r *http.Request) {
	panels, err := s.engine.Store().Panels(r.Context())
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, panels)
}

// handlePanelContent serves a panel's current membership. The confidence
// query parameter filters to one tier.
func (s *Server) handlePanelContent(w http.ResponseWriter, r *http.Request) {
	tier, ok := types.ParseConfidence(r.URL.Query().Get("confidence"))
	if !ok {
		response.BadRequest(w, "unknown confidence level", r.URL.Query().Get("confidence"))
		return
	}

	content, err := s.engine.PanelContent(r.Context(), r.PathValue("rcode"), tier)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, content)
}

// handleSync triggers a synchronization run for one panel.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.Sync(r.Context(), r.PathValue("rcode"))
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, result)
}

// handleRefreshAll triggers a bulk refresh of every signed-off panel.
func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.RefreshAll(r.Context())
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, report)
}

// handlePanelHistory lists every test record for a panel across all
// patients.
func (s *Server) handlePanelHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.engine.PanelHistory(r.Context(), r.PathValue("rcode"))
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, map[string]any{
		"rcode":   types.NormalizeRcode(r.PathValue("rcode")),
		"records": records,
	})
}

// addRecordRequest is the POST /v1/records body.
type addRecordRequest struct {
	PatientID string  `json:"patient_id"`
	Rcode     string  `json:"rcode"`
	Version   float64 `json:"version"`
	Date      string  `json:"date"`
}

// handleAddRecord appends a patient test record.
func (s *Server) handleAddRecord(w http.ResponseWriter, r *http.Request) {
	var req addRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body", err.Error())
		return
	}

	record := types.PatientRecord{
		PatientID: req.PatientID,
		Rcode:     req.Rcode,
		Version:   req.Version,
	}
	if req.Date != "" {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			response.BadRequest(w, "date must be YYYY-MM-DD", req.Date)
			return
		}
		record.Date = date
	}

	if err := s.engine.AddRecord(r.Context(), record); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.Created(w, record)
}

// handlePatientHistory serves every test record for a patient.
func (s *Server) handlePatientHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.engine.PatientHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, map[string]any{
		"patient_id": r.PathValue("id"),
		"records":    records,
	})
}

// handleReconcile compares a patient's tested version against the
// current panel.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.Reconcile(r.Context(), r.PathValue("id"), r.PathValue("rcode"))
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, result)
}

// handlePanelBED streams a BED export for a panel.
func (s *Server) handlePanelBED(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	tier, ok := types.ParseConfidence(q.Get("confidence"))
	if !ok {
		response.BadRequest(w, "unknown confidence level", q.Get("confidence"))
		return
	}
	set, build, ok := parseExportParams(w, q.Get("transcripts"), q.Get("build"))
	if !ok {
		return
	}

	req := panelmap.ExportRequest{
		Rcode: r.PathValue("rcode"),
		Tier:  tier,
		Set:   set,
		Build: build,
	}
	if v := q.Get("version"); v != "" {
		version, err := strconv.ParseFloat(v, 64)
		if err != nil {
			response.BadRequest(w, "version must be numeric", v)
			return
		}
		req.Version = version
	}

	var buf bytes.Buffer
	if err := s.engine.ExportPanelBED(r.Context(), &buf, req); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	serveBED(w, types.NormalizeRcode(req.Rcode), &buf)
}

// handlePatientBED streams a BED export for the panel version a patient
// was last tested against.
func (s *Server) handlePatientBED(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	set, build, ok := parseExportParams(w, q.Get("transcripts"), q.Get("build"))
	if !ok {
		return
	}

	var buf bytes.Buffer
	err := s.engine.ExportPatientBED(r.Context(), &buf, r.PathValue("id"), r.PathValue("rcode"), set, build)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	serveBED(w, r.PathValue("id")+"_"+types.NormalizeRcode(r.PathValue("rcode")), &buf)
}

// handleLocalBED streams a BED export from the local coordinate tables.
func (s *Server) handleLocalBED(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	genes := splitList(q.Get("genes"))
	if len(genes) == 0 {
		response.BadRequest(w, "genes parameter is required", "")
		return
	}
	build := sources.GRCh38
	if b := q.Get("build"); b != "" {
		var ok bool
		if build, ok = sources.ParseBuild(b); !ok {
			response.BadRequest(w, "unknown genome build", b)
			return
		}
	}

	var buf bytes.Buffer
	if err := s.engine.ExportLocalBED(r.Context(), &buf, genes, build); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	serveBED(w, "local", &buf)
}

// parseExportParams validates the shared transcript set and genome build
// parameters, writing the error response itself on failure.
func parseExportParams(w http.ResponseWriter, setParam, buildParam string) (sources.TranscriptSet, sources.GenomeBuild, bool) {
	set := sources.SetMANESelect
	if setParam != "" {
		var ok bool
		if set, ok = sources.ParseTranscriptSet(setParam); !ok {
			response.BadRequest(w, "unknown transcript set", setParam)
			return "", "", false
		}
	}
	build := sources.GRCh38
	if buildParam != "" {
		var ok bool
		if build, ok = sources.ParseBuild(buildParam); !ok {
			response.BadRequest(w, "unknown genome build", buildParam)
			return "", "", false
		}
	}
	return set, build, true
}

// serveBED writes buffered BED content as a file download.
func serveBED(w http.ResponseWriter, name string, buf *bytes.Buffer) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`.bed"`)
	_, _ = buf.WriteTo(w)
}

// splitList splits a comma-separated query value, dropping empty items.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
