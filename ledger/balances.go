/*
balances.go - Per-participant net positions

PURPOSE:
  Turns raw expense, share, and settlement records into per-participant
  totals and net balance. This is the central calculation that answers
  "who owes whom, overall?".

KEY INSIGHT:
  Balance is a pure fold over persisted rows. There is no stored
  "balance" field that can drift out of sync. For every participant:

    totalPaid = Σ amount of expenses they paid
              + Σ settlements they sent
    totalOwed = Σ their share amounts
              + Σ settlements they received
    net       = totalPaid - totalOwed

INVARIANTS:
  - The sum of all net balances in a group is zero within Epsilon.
  - Bad rows here indicate a system bug, not user error: expenses whose
    shares do not sum to their amount make the fold panic rather than
    silently producing wrong balances.

ROSTER:
  The participant roster (members + unclaimed placeholders) is supplied
  by the caller. A claimed placeholder must not appear: its history was
  rewritten to the claiming member before it reached this package.

SEE ALSO:
  - settle/optimizer.go: consumes the balances produced here
*/
package ledger

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// ComputeBalances folds the group's expenses and settlements into one
// ParticipantBalance per participant. The result includes every roster
// participant (even with zero activity) plus any participant appearing
// in the records, sorted by participant key for determinism.
//
// No side effects; safe to call repeatedly.
func ComputeBalances(expenses []Expense, settlements []Settlement, roster []Participant) []ParticipantBalance {
	byKey := make(map[string]*ParticipantBalance)

	get := func(p Participant) *ParticipantBalance {
		b, ok := byKey[p.Key()]
		if !ok {
			b = &ParticipantBalance{
				Participant: p,
				TotalPaid:   decimal.Zero,
				TotalOwed:   decimal.Zero,
			}
			byKey[p.Key()] = b
		}
		return b
	}

	for _, p := range roster {
		get(p)
	}

	for i := range expenses {
		e := &expenses[i]
		assertShareSum(e)

		get(e.Payer).TotalPaid = get(e.Payer).TotalPaid.Add(e.Amount)
		for _, s := range e.Shares {
			get(s.Participant).TotalOwed = get(s.Participant).TotalOwed.Add(s.Amount)
		}
	}

	// A settlement improves the sender's position and reduces the
	// receiver's: the debtor effectively "paid", the creditor was repaid.
	for i := range settlements {
		s := &settlements[i]
		get(s.From).TotalPaid = get(s.From).TotalPaid.Add(s.Amount)
		get(s.To).TotalOwed = get(s.To).TotalOwed.Add(s.Amount)
	}

	out := make([]ParticipantBalance, 0, len(byKey))
	for _, b := range byKey {
		b.Net = b.TotalPaid.Sub(b.TotalOwed)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Participant.Key() < out[j].Participant.Key()
	})
	return out
}

// assertShareSum fails loudly on a corrupt expense row. Share sets are
// validated on every write path, so a violation here means the ledger
// would otherwise return wrong balances.
func assertShareSum(e *Expense) {
	sum := decimal.Zero
	for _, s := range e.Shares {
		sum = sum.Add(s.Amount)
	}
	if !WithinEpsilon(sum, e.Amount) {
		panic(fmt.Sprintf("ledger: expense %s shares sum to %s, amount is %s", e.ID, sum, e.Amount))
	}
}
