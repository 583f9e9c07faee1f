package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/syncgate/tokenserver/internal/util"
	"github.com/syncgate/tokenserver/issuer"
	"github.com/syncgate/tokenserver/storage"
)

// GetToken handles GET /1.0/sync/1.5.
// Issues a node-scoped bearer credential for the authenticated account.
// Error bodies are generic on purpose: the raw account identifier, the
// lookup key and secret material must never appear in a response or log.
func (a *API) GetToken(w http.ResponseWriter, r *http.Request) {
	req, err := a.extractTokenRequest(r)
	if err != nil {
		if errors.Is(err, ErrInvalidCredential) {
			a.audit.logFailure(AuditAuthFailed, r, "invalid credential")
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.issuer.IssueToken(r.Context(), *req)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			a.audit.logFailure(AuditAssignmentMissing, r, "no node assignment")
			writeError(w, http.StatusNotFound, "unknown account")
		case errors.Is(err, issuer.ErrClientStateMismatch):
			a.audit.logFailure(AuditClientStateMismatch, r, "client state mismatch")
			writeError(w, http.StatusUnauthorized, "invalid client state")
		default:
			// Configuration or transform failure. The wrapped error is safe
			// to log (no identifiers), but the response stays generic.
			writeInternalError(w, "credential minting failed", err)
		}
		return
	}

	a.audit.logEvent(AuditTokenIssued, r, result.HashedAccountID,
		slog.Int64("uid", result.UID),
		slog.Uint64("duration", result.Duration))
	writeJSON(w, http.StatusOK, result)
}

// PutAssignment handles PUT /admin/v1/assignments/{accountID}.
// Creates or replaces the node assignment for an account.
func (a *API) PutAssignment(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	req, ok := decodeJSON[PutAssignmentRequest](w, r, maxSmallBodySize)
	if !ok {
		return
	}
	if req.Node == "" {
		writeError(w, http.StatusBadRequest, "node is required")
		return
	}
	clientState, err := util.B64Decode(req.ClientState)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid base64 client_state")
		return
	}

	key := a.issuer.LookupKey(accountID)
	asg := &storage.Assignment{
		Node:          req.Node,
		UID:           req.UID,
		ClientState:   clientState,
		KeysChangedAt: req.KeysChangedAt,
		Generation:    req.Generation,
	}
	if err := a.repo.PutAssignment(r.Context(), key, asg); err != nil {
		writeInternalError(w, "failed to store assignment", err)
		return
	}

	a.audit.log(AuditAssignmentPut, r, slog.String("node", req.Node))
	writeJSON(w, http.StatusCreated, AssignmentResponse{
		Node:          asg.Node,
		UID:           asg.UID,
		ClientState:   util.B64Encode(asg.ClientState),
		KeysChangedAt: asg.KeysChangedAt,
		Generation:    asg.Generation,
	})
}

// GetAssignment handles GET /admin/v1/assignments/{accountID}.
func (a *API) GetAssignment(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	asg, err := a.repo.GetAssignment(r.Context(), a.issuer.LookupKey(accountID))
	if err != nil {
		mapError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AssignmentResponse{
		Node:          asg.Node,
		UID:           asg.UID,
		ClientState:   util.B64Encode(asg.ClientState),
		KeysChangedAt: asg.KeysChangedAt,
		Generation:    asg.Generation,
	})
}

// DeleteAssignment handles DELETE /admin/v1/assignments/{accountID}.
func (a *API) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	if err := a.repo.DeleteAssignment(r.Context(), a.issuer.LookupKey(accountID)); err != nil {
		mapError(w, err)
		return
	}

	a.audit.log(AuditAssignmentDeleted, r)
	writeJSON(w, http.StatusOK, struct{}{})
}

// ListAssignments handles GET /admin/v1/assignments.
func (a *API) ListAssignments(w http.ResponseWriter, r *http.Request) {
	keys, err := a.repo.ListAssignments(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list assignments", err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, ListAssignmentsResponse{Assignments: keys})
}
