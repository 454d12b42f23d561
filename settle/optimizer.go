/*
Package settle turns net balances into a minimal list of payments.

PURPOSE:
  Greedy debt-matching: partition participants into creditors and
  debtors, then repeatedly match the largest debtor with the largest
  creditor until one side is exhausted.

GUARANTEES:
  - At most (#creditors + #debtors - 1) transactions, the standard
    bound for greedy debt simplification. Not provably globally minimal
    in every case, but never worse than pairwise settlement and
    typically optimal for groups of up to a few dozen.
  - Stateless and idempotent: a pure read-side computation, safe to
    call repeatedly. Persisting a payment ("mark paid") is a separate
    ledger.Settlement record, not a mutation of this output.

SEE ALSO:
  - ledger/balances.go: produces the input
  - ledger/types.go: Settlement, the persisted mark-paid record
*/
package settle

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/chipin/split-engine/ledger"
)

// Transaction is one suggested payment. It is never persisted; marking
// it paid records a ledger.Settlement instead.
type Transaction struct {
	From   ledger.Participant
	To     ledger.Participant
	Amount decimal.Decimal
}

// Optimize computes a small set of payments that drives every balance
// to within ledger.Epsilon of zero. Balances already within Epsilon of
// zero are ignored.
func Optimize(balances []ledger.ParticipantBalance) []Transaction {
	type party struct {
		p         ledger.Participant
		remaining decimal.Decimal
	}

	var creditors, debtors []party
	for _, b := range balances {
		switch {
		case b.Net.GreaterThan(ledger.Epsilon):
			creditors = append(creditors, party{p: b.Participant, remaining: b.Net})
		case b.Net.LessThan(ledger.Epsilon.Neg()):
			debtors = append(debtors, party{p: b.Participant, remaining: b.Net.Neg()})
		}
	}

	// Largest first; ties broken by key so output is deterministic.
	byAmountDesc := func(ps []party) func(i, j int) bool {
		return func(i, j int) bool {
			if !ps[i].remaining.Equal(ps[j].remaining) {
				return ps[i].remaining.GreaterThan(ps[j].remaining)
			}
			return ps[i].p.Key() < ps[j].p.Key()
		}
	}
	sort.Slice(creditors, byAmountDesc(creditors))
	sort.Slice(debtors, byAmountDesc(debtors))

	var txs []Transaction
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		amount := decimal.Min(debtors[i].remaining, creditors[j].remaining)

		if amount.GreaterThan(ledger.Epsilon) {
			txs = append(txs, Transaction{
				From:   debtors[i].p,
				To:     creditors[j].p,
				Amount: amount,
			})
		}

		debtors[i].remaining = debtors[i].remaining.Sub(amount)
		creditors[j].remaining = creditors[j].remaining.Sub(amount)

		if debtors[i].remaining.LessThanOrEqual(ledger.Epsilon) {
			i++
		}
		if creditors[j].remaining.LessThanOrEqual(ledger.Epsilon) {
			j++
		}
	}

	return txs
}
