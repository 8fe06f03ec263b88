package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/krigga/flappy-ton/internal/fairness"
	"github.com/krigga/flappy-ton/internal/store"
	"github.com/krigga/flappy-ton/internal/verify"
)

const (
	maxBodyBytes     = 16 << 20
	maxBatchRuns     = 1000
	maxFramesPerRun  = 1_000_000
	defaultTimeoutMs = 60000
	maxPerPage       = 200
)

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.errorHandler.Write(w, r, http.StatusBadRequest,
			NewError(ErrTypeValidation, "Invalid JSON format").WithCause(err))
		return false
	}
	return true
}

// validateRun checks the parts of a run request that do not need a replay.
func validateRun(req *verify.Request) *ErrorBuilder {
	if err := req.Seeds.Validate(); err != nil {
		return NewError(ErrTypeInvalidSeed, err.Error())
	}
	if len(req.Frames) == 0 {
		return NewError(ErrTypeInvalidFrames, "frames are required")
	}
	if len(req.Frames) > maxFramesPerRun {
		return NewError(ErrTypeInvalidFrames, fmt.Sprintf("too many frames (max %d)", maxFramesPerRun))
	}
	return nil
}

// replayErr maps a replay failure to a response.
func replayErr(err error) (int, *ErrorBuilder) {
	switch {
	case errors.Is(err, verify.ErrNoFrames),
		errors.Is(err, verify.ErrFrameOrder),
		errors.Is(err, verify.ErrFrameDelta),
		errors.Is(err, verify.ErrFramesTrailed):
		return http.StatusBadRequest, NewError(ErrTypeInvalidFrames, err.Error())
	default:
		return http.StatusInternalServerError, NewError(ErrTypeReplay, "Replay failed").WithCause(err)
	}
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GetVersionInfo())
}

func (s *Server) handleTuning(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, TuningResponse{
		Tuning:        s.verifier.Tuning(),
		EngineVersion: EngineVersion,
	})
}

// handleVerify replays one run and checks its claimed score
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verify.Request
	if !s.decode(w, r, &req) {
		return
	}
	if eb := validateRun(&req); eb != nil {
		s.errorHandler.Write(w, r, http.StatusBadRequest, eb)
		return
	}

	s.logger.Printf(
		"verify_request server_hash=%s client_hash=%s nonce=%d frames=%d",
		hashSeed(req.Seeds.Server), hashSeed(req.Seeds.Client), req.Nonce, len(req.Frames),
	)

	check, err := s.verifier.Verify(req)
	if err != nil {
		status, eb := replayErr(err)
		s.errorHandler.Write(w, r, status, eb.WithContext("nonce", req.Nonce))
		return
	}

	s.logger.Printf("verify_completed nonce=%d score=%d ticks=%d valid=%t", req.Nonce, check.Score, check.Ticks, check.Valid)
	s.writeJSON(w, http.StatusOK, VerifyResponse{Check: check, EngineVersion: EngineVersion})
}

// handleVerifyBatch replays many runs in parallel
func (s *Server) handleVerifyBatch(w http.ResponseWriter, r *http.Request) {
	var req verify.BatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Runs) == 0 {
		s.errorHandler.HandleValidationError(w, r, "runs", "at least one run is required")
		return
	}
	if len(req.Runs) > maxBatchRuns {
		s.errorHandler.HandleValidationError(w, r, "runs", fmt.Sprintf("too many runs (max %d)", maxBatchRuns))
		return
	}
	for i := range req.Runs {
		if eb := validateRun(&req.Runs[i]); eb != nil {
			s.errorHandler.Write(w, r, http.StatusBadRequest, eb.WithContext("index", i))
			return
		}
	}
	if req.TimeoutMs <= 0 {
		req.TimeoutMs = defaultTimeoutMs
	}

	res, err := s.verifier.VerifyBatch(r.Context(), req)
	if err != nil {
		s.errorHandler.Write(w, r, http.StatusInternalServerError, NewError(ErrTypeReplay, "Batch replay failed").WithCause(err))
		return
	}

	s.logger.Printf(
		"verify_batch_completed total=%d valid=%d invalid=%d failed=%d timed_out=%t",
		res.Summary.Total, res.Summary.Valid, res.Summary.Invalid, res.Summary.Failed, res.Summary.TimedOut,
	)
	s.writeJSON(w, http.StatusOK, VerifyBatchResponse{BatchResult: *res, EngineVersion: EngineVersion})
}

// handleSeedHash returns the commitment for a server seed
func (s *Server) handleSeedHash(w http.ResponseWriter, r *http.Request) {
	var req SeedHashRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ServerSeed == "" {
		s.errorHandler.HandleValidationError(w, r, "server_seed", "server_seed is required")
		return
	}
	s.writeJSON(w, http.StatusOK, SeedHashResponse{
		Hash:          fairness.HashServerSeed(req.ServerSeed),
		EngineVersion: EngineVersion,
	})
}

func (s *Server) requireDB(w http.ResponseWriter, r *http.Request) bool {
	if s.db == nil {
		s.errorHandler.Write(w, r, http.StatusServiceUnavailable,
			NewError(ErrTypeServiceUnavailable, "Run history is not available"))
		return false
	}
	return true
}

// handleListRuns pages through stored runs, newest first
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w, r) {
		return
	}

	q := store.RunsQuery{Page: 1, PerPage: 50}
	params := r.URL.Query()
	if v := params.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.errorHandler.HandleValidationError(w, r, "page", "page must be a positive integer")
			return
		}
		q.Page = n
	}
	if v := params.Get("per_page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPerPage {
			s.errorHandler.HandleValidationError(w, r, "per_page", fmt.Sprintf("per_page must be between 1 and %d", maxPerPage))
			return
		}
		q.PerPage = n
	}
	q.SubmittedOnly = params.Get("submitted") == "true"

	list, err := s.db.ListRuns(q)
	if err != nil {
		s.errorHandler.Write(w, r, http.StatusInternalServerError, NewError(ErrTypeInternal, "Failed to list runs").WithCause(err))
		return
	}
	for i := range list.Runs {
		list.Runs[i].ServerSeed = ""
	}
	s.writeJSON(w, http.StatusOK, RunsResponse{RunsList: list, EngineVersion: EngineVersion})
}

// handleGetRun returns one run and replays its recorded frames
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w, r) {
		return
	}
	id := chi.URLParam(r, "id")

	run, err := s.db.GetRun(id)
	if errors.Is(err, store.ErrNotFound) {
		s.errorHandler.Write(w, r, http.StatusNotFound, NewError(ErrTypeRunNotFound, "Run not found").WithContext("id", id))
		return
	}
	if err != nil {
		s.errorHandler.Write(w, r, http.StatusInternalServerError, NewError(ErrTypeInternal, "Failed to load run").WithCause(err))
		return
	}

	resp := RunResponse{Run: *run, EngineVersion: EngineVersion}
	frames, err := s.db.GetFrames(id)
	switch {
	case err != nil:
		resp.CheckError = err.Error()
	case len(frames) == 0:
		resp.CheckError = "no frames recorded"
	default:
		claimed := run.Score
		check, err := s.verifier.Verify(verify.Request{
			Seeds:        fairness.Seeds{Server: run.ServerSeed, Client: run.ClientSeed},
			Nonce:        run.Nonce,
			Frames:       frames,
			ClaimedScore: &claimed,
		})
		if err != nil {
			resp.CheckError = err.Error()
		} else {
			resp.Check = &check
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}
