package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"dungeon-skill-sandbox/internal/monitor"
	"dungeon-skill-sandbox/internal/sandbox"
	"dungeon-skill-sandbox/internal/skills"
	"dungeon-skill-sandbox/internal/storage"
)

// Handlers serves the sandbox HTTP API.
type Handlers struct {
	engine      *sandbox.Engine
	library     *skills.Library
	db          *storage.DB
	auditWriter *storage.AuditWriter
	metrics     *monitor.Metrics
	detector    *monitor.SuspicionDetector
	tracer      *monitor.Tracer
}

func NewHandlers(engine *sandbox.Engine, library *skills.Library, db *storage.DB, auditWriter *storage.AuditWriter, metrics *monitor.Metrics) *Handlers {
	return &Handlers{
		engine:      engine,
		library:     library,
		db:          db,
		auditWriter: auditWriter,
		metrics:     metrics,
		detector:    monitor.NewSuspicionDetector(),
		tracer:      monitor.NewTracer(),
	}
}

func (h *Handlers) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}
	if req.Source == "" {
		writeError(w, "source is required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	vres := h.engine.Validate(sandbox.Submission{
		Source:    req.Source,
		Mode:      sandbox.Mode(req.Mode),
		EntryName: req.EntryName,
	})

	outcome, category := "accepted", ""
	if !vres.Valid {
		outcome = "rejected"
		category = vres.Errors[0].Category
	}
	h.metrics.RecordValidation(outcome, category)

	writeJSON(w, http.StatusOK, ValidateResponse{
		Valid:          vres.Valid,
		Errors:         vres.Errors,
		Warnings:       vres.Warnings,
		EntryNameFound: vres.EntryNameFound,
		SignatureOK:    vres.SignatureOK,
		ResolvedEntry:  vres.ResolvedEntry,
		Detections:     h.detector.AnalyzeSource(req.Source),
	})
}

func (h *Handlers) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	sub, skillName, err := h.buildSubmission(r.Context(), &req)
	if err != nil {
		if errors.Is(err, skills.ErrNotFound) {
			writeError(w, err.Error(), "SKILL_NOT_FOUND", http.StatusNotFound, r)
			return
		}
		writeError(w, err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	h.metrics.SourceSizeBytes.Observe(float64(len(sub.Source)))
	detections := h.detector.AnalyzeSource(sub.Source)

	h.metrics.ActiveExecutions.Inc()
	defer h.metrics.ActiveExecutions.Dec()

	ctx, span := h.tracer.StartSpan(r.Context(), "execute",
		monitor.AttrMode.String(string(sub.Mode)),
		monitor.AttrEntry.String(sub.EntryName),
	)
	defer span.End()

	start := time.Now()
	result, err := h.engine.Execute(ctx, sub)
	duration := time.Since(start)

	if result == nil && err != nil {
		switch {
		case sandbox.IsValidation(err):
			h.metrics.RecordValidation("rejected", "")
			writeError(w, err.Error(), "VALIDATION_REJECTED", http.StatusUnprocessableEntity, r)
		case errors.Is(err, sandbox.ErrBusy):
			writeError(w, "a fragment is already running on this session", "SESSION_BUSY", http.StatusConflict, r)
		case errors.Is(err, sandbox.ErrInvalidRequest):
			writeError(w, err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		default:
			log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("execution failed")
			writeError(w, "execution failed", "EXECUTION_FAILED", http.StatusInternalServerError, r)
		}
		return
	}

	status := executionStatus(result, err)
	h.metrics.RecordExecution(string(sub.Mode), status, duration.Seconds())
	for _, c := range result.Calls {
		h.metrics.RecordActionCall(c.Method, c.Success)
	}
	h.metrics.OutputSizeBytes.Observe(float64(len(result.Output)))

	detections = append(detections, h.detector.AnalyzeOutput(result.Output)...)

	span.SetAttributes(
		monitor.AttrExecID.String(result.ID),
		monitor.AttrSourceHash.String(result.SourceHash),
		monitor.AttrActionsTaken.Int(result.ActionsTaken),
		monitor.AttrTurnsElapsed.Int(result.TurnsElapsed),
		monitor.AttrDurationMS.Int64(result.Elapsed.Milliseconds()),
	)

	if skillName != "" {
		if uerr := h.library.RecordUse(r.Context(), skillName, result.Success); uerr != nil {
			log.Warn().Err(uerr).Str("skill", skillName).Msg("recording skill use failed")
		}
	}

	h.logAudit(result, sub, status, start, r)

	writeJSON(w, http.StatusOK, ExecuteResponse{
		ID:           result.ID,
		Success:      result.Success,
		Payload:      result.Payload,
		Error:        result.Error,
		Output:       result.Output,
		Messages:     result.Messages,
		APICalls:     result.Calls,
		Explore:      result.Explore,
		Duration:     result.Elapsed.String(),
		ActionsTaken: result.ActionsTaken,
		TurnsElapsed: result.TurnsElapsed,
		SourceHash:   result.SourceHash,
		Detections:   detections,
	})
}

// buildSubmission resolves an execute request into an engine submission,
// loading the skill source when one is named.
func (h *Handlers) buildSubmission(ctx context.Context, req *ExecuteRequest) (sandbox.Submission, string, error) {
	sub := sandbox.Submission{
		Source:    req.Source,
		Mode:      sandbox.Mode(req.Mode),
		EntryName: req.EntryName,
		Timeout:   req.Timeout.Duration,
	}
	for name, v := range req.Params {
		sub.Params = append(sub.Params, sandbox.Param{Name: name, Value: v})
	}

	if req.Skill == "" {
		if req.Source == "" {
			return sub, "", errors.New("source or skill is required")
		}
		return sub, "", nil
	}
	if req.Source != "" {
		return sub, "", errors.New("source and skill are mutually exclusive")
	}

	s, err := h.library.Get(ctx, req.Skill)
	if err != nil {
		return sub, "", err
	}
	sub.Source = s.Source
	sub.Mode = sandbox.ModeNamed
	sub.EntryName = s.Name
	return sub, s.Name, nil
}

func executionStatus(result *sandbox.ExecutionResult, err error) string {
	switch {
	case sandbox.IsTimeout(err):
		return "timeout"
	case err != nil || !result.Success:
		return "failed"
	default:
		return "completed"
	}
}

func (h *Handlers) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, "execution ID required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}
	if h.db == nil {
		writeError(w, "database not configured", "DB_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	exec, err := h.db.GetExecution(r.Context(), id)
	if err != nil {
		writeError(w, "execution not found", "NOT_FOUND", http.StatusNotFound, r)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (h *Handlers) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	filter := storage.ExecutionFilter{
		Mode:   r.URL.Query().Get("mode"),
		Status: r.URL.Query().Get("status"),
		Limit:  100,
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if s := r.URL.Query().Get("since"); s != "" {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, "since must be RFC3339", "INVALID_REQUEST", http.StatusBadRequest, r)
			return
		}
		filter.Since = &ts
	}
	if s := r.URL.Query().Get("until"); s != "" {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, "until must be RFC3339", "INVALID_REQUEST", http.StatusBadRequest, r)
			return
		}
		filter.Until = &ts
	}

	if h.db == nil {
		writeError(w, "database not configured", "DB_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	execs, err := h.db.ListExecutions(r.Context(), filter)
	if err != nil {
		writeError(w, "query failed", "INTERNAL", http.StatusInternalServerError, r)
		return
	}
	writeJSON(w, http.StatusOK, execs)
}

func (h *Handlers) HandleListSkills(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	writeJSON(w, http.StatusOK, h.library.List(category))
}

func (h *Handlers) HandleGetSkill(w http.ResponseWriter, r *http.Request) {
	s, err := h.library.Get(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, err.Error(), "NOT_FOUND", http.StatusNotFound, r)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) HandleSaveSkill(w http.ResponseWriter, r *http.Request) {
	var req SkillSaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	s, err := h.library.Save(r.Context(), req.Name, req.Source)
	if err != nil {
		switch {
		case errors.Is(err, skills.ErrBadName):
			writeError(w, err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		case errors.Is(err, skills.ErrInvalidSkill):
			h.metrics.RecordValidation("rejected", "")
			writeError(w, err.Error(), "VALIDATION_REJECTED", http.StatusUnprocessableEntity, r)
		default:
			log.Error().Err(err).Str("skill", req.Name).Msg("saving skill failed")
			writeError(w, "saving skill failed", "INTERNAL", http.StatusInternalServerError, r)
		}
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *Handlers) HandleDeleteSkill(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.library.Delete(r.Context(), name); err != nil {
		if errors.Is(err, skills.ErrNotFound) {
			writeError(w, err.Error(), "NOT_FOUND", http.StatusNotFound, r)
			return
		}
		writeError(w, "deleting skill failed", "INTERNAL", http.StatusInternalServerError, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "name": name})
}

func (h *Handlers) logAudit(result *sandbox.ExecutionResult, sub sandbox.Submission, status string, start time.Time, r *http.Request) {
	if h.auditWriter == nil {
		return
	}

	completedAt := time.Now()
	h.auditWriter.Log(&storage.Execution{
		ID:           result.ID,
		Mode:         string(sub.Mode),
		EntryName:    sub.EntryName,
		SourceHash:   result.SourceHash,
		Status:       status,
		Error:        result.Error,
		Output:       result.Output,
		DurationMS:   result.Elapsed.Milliseconds(),
		ActionsTaken: result.ActionsTaken,
		TurnsElapsed: result.TurnsElapsed,
		RequestIP:    r.RemoteAddr,
		APIKeyHash:   apiKeyHashFromContext(r.Context()),
		CreatedAt:    start,
		CompletedAt:  &completedAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, msg, code string, status int, r *http.Request) {
	writeJSON(w, status, ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	})
}
