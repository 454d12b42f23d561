/*
reconcile.go - Claims + declared totals → exact per-participant shares

PURPOSE:
  Finalizing a session converts its claim snapshot into an Expense whose
  Shares sum to the declared total EXACTLY, not merely within epsilon,
  while tolerating extraction output whose item prices, subtotal, and
  total disagree with each other.

THE POLICY (reproduced exactly, in order):
  1. Item split: a claimed item's price splits evenly across its
     claimants; an unclaimed item's price splits evenly across ALL
     session participants (unclaimed cost is shared overhead).
  2. Subtotal reconciliation: the declared subtotal is more trustworthy
     than individually-parsed item prices. Any discrepancy beyond
     Epsilon is spread across participants proportionally to their base
     shares.
  3. Tax/tip allocation: proportional to the adjusted base share,
     baseShare × (tax + tip) / subtotal. A zero subtotal contributes
     zero.
  4. Final reconciliation: any residual against the declared total
     beyond Epsilon is absorbed by the finalizer (the payer), or spread
     proportionally when the Reconciler is configured to.
  5. Rounding: every share rounds to cents independently, EXCEPT the
     last participant in the deterministic ordering (finalizer sorts
     last): that participant receives total - Σ(other rounded shares),
     which is what makes the sum exact.
  6. Shares that round to nothing are dropped from the persisted set.

  Payer absorption of residuals is a policy choice, not a bug: a small
  remainder is least disruptive with the person initiating settlement.

DETERMINISM:
  Given fixed items/claims/participants/totals, Finalize is a pure
  function of its inputs. Running it twice (reopen, then finalize) yields
  byte-identical share sets, and the write path overwrites the
  session-linked expense in place, so retries are safe.
*/
package receipt

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chipin/split-engine/ledger"
)

// Reconciler finalizes and reopens sessions.
type Reconciler struct {
	store Store
	now   func() time.Time

	// SpreadRemainder spreads the final discrepancy across all
	// participants proportionally instead of handing it to the payer.
	SpreadRemainder bool
}

// NewReconciler creates a Reconciler with the payer-absorbs policy.
func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store, now: time.Now}
}

// FinalizeResult reports what Finalize wrote.
type FinalizeResult struct {
	ExpenseID string
	Created   bool // false when a reopened session's expense was updated
}

// Finalize reads a snapshot of the session's claims, computes exact
// shares, and writes the Expense atomically. Only the session creator
// or the last reopener may finalize.
func (rc *Reconciler) Finalize(ctx context.Context, sessionID string, requester ledger.Participant) (*FinalizeResult, error) {
	session, err := rc.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Expired(rc.now()) {
		return nil, ErrSessionExpired
	}
	if session.Status != StatusClaiming {
		// A resend of a finalize that already committed (client retry
		// after a timeout) answers with the existing expense instead
		// of a conflict.
		if session.Status == StatusCompleted && session.ExpenseID != "" && session.CanFinalize(requester) {
			return &FinalizeResult{ExpenseID: session.ExpenseID, Created: false}, nil
		}
		return nil, ErrSessionNotClaimable
	}
	if !session.CanFinalize(requester) {
		return nil, &NotFinalizerError{SessionID: sessionID, Requester: requester}
	}

	items, err := rc.store.ListItems(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	claims, err := rc.store.ClaimsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	shares, err := ComputeShares(session, items, claims, requester, rc.SpreadRemainder)
	if err != nil {
		return nil, err
	}

	expense := &ledger.Expense{
		ID:          session.ExpenseID, // empty on first finalize; store assigns
		GroupID:     session.GroupID,
		Description: expenseDescription(session),
		Amount:      session.Total,
		Payer:       requester,
		Date:        session.Date,
		Shares:      shares,
	}

	// The store re-checks the session's expense link inside its own
	// transaction, so a concurrent finalize that won the race is
	// reported here as an update of its expense, not a second create.
	created, err := rc.store.CompleteSession(ctx, sessionID, expense)
	if err != nil {
		return nil, err
	}

	slog.Info("session finalized",
		"session_id", sessionID, "expense_id", expense.ID,
		"amount", expense.Amount, "shares", len(shares), "created", created)

	return &FinalizeResult{ExpenseID: expense.ID, Created: created}, nil
}

// Reopen returns a completed, unexpired session to the claiming phase
// and records who reopened it; that participant is then authorized for
// the next finalize.
func (rc *Reconciler) Reopen(ctx context.Context, sessionID string, requester ledger.Participant) error {
	session, err := rc.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Expired(rc.now()) {
		return ErrSessionExpired
	}
	if session.Status != StatusCompleted {
		return ErrSessionNotClaimable
	}
	if !session.CanFinalize(requester) {
		return &NotFinalizerError{SessionID: sessionID, Requester: requester}
	}
	return rc.store.ReopenSession(ctx, sessionID, requester)
}

// =============================================================================
// SHARE COMPUTATION (pure)
// =============================================================================

// ComputeShares implements the reconciliation policy. Pure: no I/O, no
// clock, deterministic for fixed inputs. finalizer becomes the payer
// and sorts last for the rounding step.
func ComputeShares(session *Session, items []Item, claims map[string][]ledger.Participant, finalizer ledger.Participant, spreadRemainder bool) ([]ledger.Share, error) {
	if len(session.Participants) == 0 {
		return nil, &ReconciliationInputError{SessionID: session.ID, Reason: "session has no participants"}
	}
	if !session.HasParticipant(finalizer) {
		return nil, &ReconciliationInputError{SessionID: session.ID, Reason: "finalizer " + finalizer.Key() + " is not a session participant"}
	}

	// Deterministic ordering: participant key ascending, finalizer last.
	order := make([]ledger.Participant, 0, len(session.Participants))
	for _, r := range session.Participants {
		if r.Participant != finalizer {
			order = append(order, r.Participant)
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Key() < order[j].Key() })
	order = append(order, finalizer)

	base := make(map[string]decimal.Decimal, len(order))
	for _, p := range order {
		base[p.Key()] = decimal.Zero
	}

	// Step 1: item splits. Unclaimed items are shared overhead.
	itemsSum := decimal.Zero
	allCount := decimal.NewFromInt(int64(len(order)))
	for _, item := range items {
		itemsSum = itemsSum.Add(item.Price)

		claimants := claims[item.ID]
		if len(claimants) == 0 {
			per := item.Price.Div(allCount)
			for _, p := range order {
				base[p.Key()] = base[p.Key()].Add(per)
			}
			continue
		}
		per := item.Price.Div(decimal.NewFromInt(int64(len(claimants))))
		for _, c := range claimants {
			if _, ok := base[c.Key()]; !ok {
				// Claims are validated against the roster on write; a
				// stray row would silently shift money around.
				return nil, &ReconciliationInputError{SessionID: session.ID, Reason: "claimant " + c.Key() + " is not a session participant"}
			}
			base[c.Key()] = base[c.Key()].Add(per)
		}
	}

	// Step 2: trust the declared subtotal over the parsed item prices.
	itemsDiscrepancy := session.Subtotal.Sub(itemsSum)
	if itemsDiscrepancy.Abs().GreaterThan(ledger.Epsilon) {
		distributeProportionally(base, order, itemsDiscrepancy)
	}

	// Step 3: tax and tip, proportional to the adjusted base share.
	taxTip := session.Tax.Add(session.Tip)
	shares := make(map[string]decimal.Decimal, len(order))
	for _, p := range order {
		k := p.Key()
		shares[k] = base[k]
		if !taxTip.IsZero() && !session.Subtotal.IsZero() {
			shares[k] = shares[k].Add(base[k].Mul(taxTip).Div(session.Subtotal))
		}
	}

	// Step 4: residual against the declared total.
	computedSum := decimal.Zero
	for _, p := range order {
		computedSum = computedSum.Add(shares[p.Key()])
	}
	finalDiscrepancy := session.Total.Sub(computedSum)
	if finalDiscrepancy.Abs().GreaterThan(ledger.Epsilon) {
		if spreadRemainder {
			distributeProportionally(shares, order, finalDiscrepancy)
		} else {
			fk := finalizer.Key()
			shares[fk] = shares[fk].Add(finalDiscrepancy)
		}
	}

	// Step 5: round everyone but the last; the last takes the exact
	// remainder so the persisted set sums to the total to the cent.
	out := make([]ledger.Share, 0, len(order))
	runningSum := decimal.Zero
	for i, p := range order {
		var amount decimal.Decimal
		if i < len(order)-1 {
			amount = ledger.RoundCents(shares[p.Key()])
			runningSum = runningSum.Add(amount)
		} else {
			amount = session.Total.Sub(runningSum)
		}

		// Step 6: contributed nothing, so drop from the persisted set.
		if ledger.Negligible(amount) {
			continue
		}
		out = append(out, ledger.Share{Participant: p, Amount: amount})
	}

	return out, nil
}

// distributeProportionally adds delta to the amounts in proportion to
// their current values. When everything is zero there is no proportion
// to follow, so the delta splits evenly.
func distributeProportionally(amounts map[string]decimal.Decimal, order []ledger.Participant, delta decimal.Decimal) {
	total := decimal.Zero
	for _, p := range order {
		total = total.Add(amounts[p.Key()])
	}

	if total.IsZero() {
		per := delta.Div(decimal.NewFromInt(int64(len(order))))
		for _, p := range order {
			amounts[p.Key()] = amounts[p.Key()].Add(per)
		}
		return
	}

	for _, p := range order {
		k := p.Key()
		amounts[k] = amounts[k].Add(delta.Mul(amounts[k]).Div(total))
	}
}

func expenseDescription(s *Session) string {
	if s.Merchant == "" {
		return "Receipt " + s.Date.Format("Jan 2, 2006")
	}
	return s.Merchant + " - " + s.Date.Format("Jan 2, 2006")
}
