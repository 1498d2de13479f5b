package apiServer

import (
	"encoding/json"
	"errors"
	"net/http"

	review "github.com/wileschulpusi/Review"
	"github.com/wileschulpusi/Review/internal/records"
	"github.com/wileschulpusi/Review/internal/registry"
	"github.com/wileschulpusi/Review/pkg/attest"
	"github.com/wileschulpusi/Review/pkg/faults"
	"github.com/wileschulpusi/Review/pkg/types"
)

type submitPaperRequest struct {
	ID                string `json:"id,omitempty"`
	Title             string `json:"title"`
	Submitter         string `json:"submitter"`
	ContentCiphertext string `json:"contentCiphertext"`
}

type submitReviewRequest struct {
	Reviewer           string `json:"reviewer"`
	ScoreCiphertext    string `json:"scoreCiphertext"`
	CommentsCiphertext []byte `json:"commentsCiphertext,omitempty"`
}

type verifyRequest struct {
	ClearValue uint64 `json:"clearValue"`
	Proof      string `json:"proof"` // hex signature
}

type aggregateResponse struct {
	Paper  types.Paper  `json:"paper"`
	Handle types.Handle `json:"handle"`
}

type errorResponse struct {
	Code  faults.Code `json:"code"`
	Error string      `json:"error"`
}

func statusFor(err error) int {
	switch faults.Classify(err) {
	case faults.NotFound:
		return http.StatusNotFound
	case faults.Conflict:
		return http.StatusConflict
	case faults.InvalidProof, faults.InvalidCiphertext:
		return http.StatusUnprocessableEntity
	case faults.PreconditionFailed:
		return http.StatusPreconditionFailed
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.WithField("error", err).Error("internal error")
	}
	writeJSON(w, status, errorResponse{Code: faults.Classify(err), Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) handleSubmitPaper(w http.ResponseWriter, r *http.Request) {
	var req submitPaperRequest
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := s.ledger.SubmitPaper(r.Context(), review.SubmitPaperInput{
		ID:                req.ID,
		Title:             req.Title,
		Submitter:         req.Submitter,
		ContentCiphertext: req.ContentCiphertext,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListPapers(w http.ResponseWriter, r *http.Request) {
	papers, err := s.ledger.ListPapers(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, papers)
}

func (s *Server) handleGetPaper(w http.ResponseWriter, r *http.Request) {
	p, err := s.ledger.GetPaper(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	var req submitReviewRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rev, err := s.ledger.SubmitReview(r.Context(), review.SubmitReviewInput{
		PaperID:            r.PathValue("id"),
		Reviewer:           req.Reviewer,
		ScoreCiphertext:    req.ScoreCiphertext,
		CommentsCiphertext: req.CommentsCiphertext,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rev)
}

func (s *Server) handleGetReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.ledger.GetReviews(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	p, h, err := s.ledger.AggregateScores(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, aggregateResponse{Paper: p, Handle: h})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	p, err := s.ledger.Publish(r.Context(), r.PathValue("id"))
	if err != nil {
		// Re-publishing is success-equivalent for callers: return the
		// published record instead of a hard failure.
		if errors.Is(err, records.ErrAlreadyPublished) {
			if p, getErr := s.ledger.GetPaper(r.Context(), r.PathValue("id")); getErr == nil {
				writeJSON(w, http.StatusOK, p)
				return
			}
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGetHandle(w http.ResponseWriter, r *http.Request) {
	h, err := s.ledger.GetHandle(r.Context(), types.HandleID(r.PathValue("id")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	proof, err := attest.ProofFromHex(req.Proof)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid proof hex: " + err.Error()})
		return
	}

	res, err := s.ledger.Verify(r.Context(), types.HandleID(r.PathValue("id")), req.ClearValue, proof)
	if err != nil {
		// Verification retries behave like reads: the stored value comes back
		// with a 200 instead of a conflict.
		if errors.Is(err, registry.ErrAlreadyVerified) {
			writeJSON(w, http.StatusOK, res)
			return
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDisclose(w http.ResponseWriter, r *http.Request) {
	h, err := s.ledger.GrantDisclosure(r.Context(), types.HandleID(r.PathValue("id")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}
