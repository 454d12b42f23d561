/*
handlers.go - HTTP API handlers for the split engine

PURPOSE:
  Exposes the accounting engine via REST. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Expenses:
    POST   /api/groups/{groupID}/expenses           Direct expense entry
    GET    /api/groups/{groupID}/expenses           List with shares
    GET    /api/expenses/{id}                       Get one
    PUT    /api/expenses/{id}                       Full replace
    DELETE /api/expenses/{id}                       Delete (cascades shares)

  Balances / settlements:
    GET    /api/groups/{groupID}/balances           Net positions
    GET    /api/groups/{groupID}/settlements/plan   Optimizer output
    GET    /api/groups/{groupID}/settlements        Recorded payments
    POST   /api/groups/{groupID}/settlements        Mark a payment paid
    DELETE /api/settlements/{id}                    Unmark

  Receipt sessions:
    POST   /api/groups/{groupID}/receipt-sessions   From extraction output
    GET    /api/groups/{groupID}/receipt-sessions   List session headers
    GET    /api/receipt-sessions/{id}               Full claim state
    POST   /api/receipt-sessions/{id}/items/{itemID}/claim
    POST   /api/receipt-sessions/{id}/items/{itemID}/unclaim
    POST   /api/receipt-sessions/{id}/finalize
    POST   /api/receipt-sessions/{id}/reopen
    GET    /api/receipt-sessions/{id}/events        SSE stream (sse.go)

ERROR HANDLING:
  Errors map to JSON bodies with the status implied by the taxonomy:
  400 validation, 403 authorization, 404 not found, 409 state-machine
  violations (expired / not claimable), 500 everything else.

AUTHENTICATION:
  None here. Identity and group membership are the surrounding
  product's job; requests arrive with participant identities already
  resolved.
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chipin/split-engine/ledger"
	"github.com/chipin/split-engine/realtime"
	"github.com/chipin/split-engine/receipt"
	"github.com/chipin/split-engine/settle"
	"github.com/chipin/split-engine/store/sqlite"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Hub        *realtime.Hub
	Registry   *receipt.Registry
	Reconciler *receipt.Reconciler
}

// NewHandler wires the claim registry and reconciler over the store
// and the injected hub.
func NewHandler(store *sqlite.Store, hub *realtime.Hub) *Handler {
	return &Handler{
		Store:      store,
		Hub:        hub,
		Registry:   receipt.NewRegistry(store, hub),
		Reconciler: receipt.NewReconciler(store),
	}
}

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================

// CreateExpense records a directly-entered expense with its share set.
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	var req SaveExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	e, err := expenseFromRequest(groupID, "", &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.Store.CreateExpense(r.Context(), e); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseDTO(e))
}

// ListExpenses returns a group's expenses with shares.
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.Store.ListExpensesByGroup(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]ExpenseDTO, len(expenses))
	for i := range expenses {
		dtos[i] = toExpenseDTO(&expenses[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetExpense returns one expense with shares.
func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := h.Store.GetExpense(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(e))
}

// UpdateExpense fully replaces an expense and its share set.
func (h *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, err := h.Store.GetExpense(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req SaveExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	e, err := expenseFromRequest(existing.GroupID, id, &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.Store.UpdateExpense(r.Context(), e); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(e))
}

// DeleteExpense removes an expense; its shares cascade.
func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteExpense(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// =============================================================================
// BALANCE / SETTLEMENT HANDLERS
// =============================================================================

// loadBalances folds the group's records into net positions. At this
// boundary the roster is derived from the records themselves; the
// surrounding product supplies an explicit roster (members + unclaimed
// placeholders) when it calls the ledger package directly.
func (h *Handler) loadBalances(r *http.Request) ([]ledger.ParticipantBalance, error) {
	groupID := chi.URLParam(r, "groupID")
	expenses, err := h.Store.ListExpensesByGroup(r.Context(), groupID)
	if err != nil {
		return nil, err
	}
	settlements, err := h.Store.ListSettlementsByGroup(r.Context(), groupID)
	if err != nil {
		return nil, err
	}
	return ledger.ComputeBalances(expenses, settlements, nil), nil
}

// GetBalances returns per-participant net positions.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.loadBalances(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]BalanceDTO, len(balances))
	for i, b := range balances {
		dtos[i] = BalanceDTO{
			Participant: toParticipantDTO(b.Participant),
			TotalPaid:   b.TotalPaid,
			TotalOwed:   b.TotalOwed,
			Net:         b.Net,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSettlementPlan returns the optimizer's suggested payments.
// Computed on demand, never persisted.
func (h *Handler) GetSettlementPlan(w http.ResponseWriter, r *http.Request) {
	balances, err := h.loadBalances(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	txs := settle.Optimize(balances)
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = TransactionDTO{
			From:   toParticipantDTO(tx.From),
			To:     toParticipantDTO(tx.To),
			Amount: tx.Amount,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": dtos})
}

// CreateSettlement records a suggested payment as paid.
func (h *Handler) CreateSettlement(w http.ResponseWriter, r *http.Request) {
	var req CreateSettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec := &ledger.Settlement{
		GroupID: chi.URLParam(r, "groupID"),
		From:    req.From.toDomain(),
		To:      req.To.toDomain(),
		Amount:  req.Amount,
	}
	if req.PaidAt != nil {
		rec.PaidAt = *req.PaidAt
	}

	if err := h.Store.CreateSettlement(r.Context(), rec); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSettlementDTO(rec))
}

// ListSettlements returns a group's recorded payments.
func (h *Handler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Store.ListSettlementsByGroup(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]SettlementDTO, len(recs))
	for i := range recs {
		dtos[i] = toSettlementDTO(&recs[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// DeleteSettlement unmarks a payment.
func (h *Handler) DeleteSettlement(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteSettlement(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// =============================================================================
// RECEIPT SESSION HANDLERS
// =============================================================================

// CreateSession builds a claimable session from extraction output.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	roster := make([]receipt.RosterEntry, len(req.Participants))
	for i, p := range req.Participants {
		roster[i] = receipt.RosterEntry{
			Participant: p.Participant.toDomain(),
			DisplayName: p.DisplayName,
		}
	}

	ttl := time.Duration(req.TTLHours) * time.Hour
	sess, items, err := receipt.NewSession(
		chi.URLParam(r, "groupID"), req.Receipt, roster,
		req.CreatedBy.toDomain(), time.Now().UTC(), ttl,
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.Store.CreateSession(r.Context(), sess, items); err != nil {
		writeDomainError(w, err)
		return
	}

	slog.Info("receipt session created",
		"session_id", sess.ID, "group_id", sess.GroupID,
		"items", len(items), "participants", len(roster))

	h.writeSession(w, r, http.StatusCreated, sess, items)
}

// ListSessions returns a group's receipt sessions, newest first,
// without per-item claim state.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.Store.ListSessionsByGroup(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]SessionDTO, len(sessions))
	for i := range sessions {
		sess := &sessions[i]
		roster := make([]SessionParticipantDTO, len(sess.Participants))
		for j, p := range sess.Participants {
			roster[j] = SessionParticipantDTO{
				Participant: toParticipantDTO(p.Participant),
				DisplayName: p.DisplayName,
			}
		}
		dtos[i] = SessionDTO{
			ID:           sess.ID,
			GroupID:      sess.GroupID,
			Merchant:     sess.Merchant,
			Date:         sess.Date.Format("2006-01-02"),
			Subtotal:     sess.Subtotal,
			Tax:          sess.Tax,
			Tip:          sess.Tip,
			Total:        sess.Total,
			Status:       string(sess.Status),
			ExpiresAt:    sess.ExpiresAt.Format(time.RFC3339),
			CreatedBy:    toParticipantDTO(sess.CreatedBy),
			ExpenseID:    sess.ExpenseID,
			Participants: roster,
		}
		if sess.ReopenedBy != nil {
			p := toParticipantDTO(*sess.ReopenedBy)
			dtos[i].ReopenedBy = &p
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSession returns the session with full claim state. This is the
// authoritative read clients perform after every event.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	items, err := h.Store.ListItems(r.Context(), sess.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.writeSession(w, r, http.StatusOK, sess, items)
}

// ClaimItem adds the caller to an item's claimant set.
func (h *Handler) ClaimItem(w http.ResponseWriter, r *http.Request) {
	h.mutateClaim(w, r, h.Registry.Claim)
}

// UnclaimItem removes the caller from an item's claimant set.
func (h *Handler) UnclaimItem(w http.ResponseWriter, r *http.Request) {
	h.mutateClaim(w, r, h.Registry.Unclaim)
}

func (h *Handler) mutateClaim(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, sessionID, itemID string, p ledger.Participant) (*receipt.ClaimState, error)) {

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	state, err := op(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"), req.Participant.toDomain())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ClaimStateDTO{
		ItemID:         state.ItemID,
		Claimants:      toParticipantDTOs(state.Claimants),
		TotalClaims:    state.TotalClaims,
		SharePerPerson: state.SharePerPerson,
	})
}

// FinalizeSession converts the claim snapshot into the linked expense.
func (h *Handler) FinalizeSession(w http.ResponseWriter, r *http.Request) {
	var req FinalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Reconciler.Finalize(r.Context(), chi.URLParam(r, "id"), req.Participant.toDomain())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result := "updated"
	if res.Created {
		result = "created"
	}
	writeJSON(w, http.StatusOK, FinalizeResponseDTO{ExpenseID: res.ExpenseID, Result: result})
}

// ReopenSession returns a completed session to the claiming phase.
func (h *Handler) ReopenSession(w http.ResponseWriter, r *http.Request) {
	var req ReopenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Reconciler.Reopen(r.Context(), chi.URLParam(r, "id"), req.Participant.toDomain()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": string(receipt.StatusClaiming)})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) writeSession(w http.ResponseWriter, r *http.Request, status int, sess *receipt.Session, items []receipt.Item) {
	itemDTOs := make([]ItemDTO, len(items))
	for i, it := range items {
		claimants, err := h.Store.Claimants(r.Context(), it.ID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		itemDTOs[i] = ItemDTO{
			ID:             it.ID,
			Name:           it.Name,
			Price:          it.Price,
			Position:       it.Position,
			Claimants:      toParticipantDTOs(claimants),
			SharePerPerson: receipt.PerPersonShare(it.Price, len(claimants)),
		}
	}

	roster := make([]SessionParticipantDTO, len(sess.Participants))
	for i, p := range sess.Participants {
		roster[i] = SessionParticipantDTO{
			Participant: toParticipantDTO(p.Participant),
			DisplayName: p.DisplayName,
		}
	}

	dto := SessionDTO{
		ID:           sess.ID,
		GroupID:      sess.GroupID,
		Merchant:     sess.Merchant,
		Date:         sess.Date.Format("2006-01-02"),
		Subtotal:     sess.Subtotal,
		Tax:          sess.Tax,
		Tip:          sess.Tip,
		Total:        sess.Total,
		Status:       string(sess.Status),
		ExpiresAt:    sess.ExpiresAt.Format(time.RFC3339),
		CreatedBy:    toParticipantDTO(sess.CreatedBy),
		ExpenseID:    sess.ExpenseID,
		Participants: roster,
		Items:        itemDTOs,
	}
	if sess.ReopenedBy != nil {
		p := toParticipantDTO(*sess.ReopenedBy)
		dto.ReopenedBy = &p
	}
	writeJSON(w, status, dto)
}

func expenseFromRequest(groupID, id string, req *SaveExpenseRequest) (*ledger.Expense, error) {
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, &ledger.ValidationError{Field: "date", Message: "use YYYY-MM-DD"}
	}

	shares := make([]ledger.Share, len(req.Shares))
	for i, s := range req.Shares {
		shares[i] = ledger.Share{Participant: s.Participant.toDomain(), Amount: s.Amount}
	}

	e := &ledger.Expense{
		ID:          id,
		GroupID:     groupID,
		Description: req.Description,
		Amount:      req.Amount,
		Payer:       req.Payer.toDomain(),
		Date:        date,
		Shares:      shares,
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func toSettlementDTO(rec *ledger.Settlement) SettlementDTO {
	return SettlementDTO{
		ID:        rec.ID,
		GroupID:   rec.GroupID,
		From:      toParticipantDTO(rec.From),
		To:        toParticipantDTO(rec.To),
		Amount:    rec.Amount,
		PaidAt:    rec.PaidAt.Format(time.RFC3339),
		CreatedAt: rec.CreatedAt.Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the core error taxonomy to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case ledger.IsAuthorization(err):
		writeError(w, http.StatusForbidden, "Not allowed", err)
	case errors.Is(err, receipt.ErrSessionExpired),
		errors.Is(err, receipt.ErrSessionNotClaimable):
		writeError(w, http.StatusConflict, "Session state does not allow this", err)
	case ledger.IsValidation(err), errors.Is(err, receipt.ErrReconciliationInput):
		writeError(w, http.StatusBadRequest, "Invalid input", err)
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
