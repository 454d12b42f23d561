package settle

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/chipin/split-engine/ledger"
)

func member(id string) ledger.Participant {
	return ledger.Participant{Kind: ledger.KindMember, ID: id}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func balance(p ledger.Participant, net string) ledger.ParticipantBalance {
	return ledger.ParticipantBalance{Participant: p, Net: dec(net)}
}

// applyTransactions folds txs back into the nets and returns the result.
func applyTransactions(balances []ledger.ParticipantBalance, txs []Transaction) map[string]decimal.Decimal {
	nets := make(map[string]decimal.Decimal)
	for _, b := range balances {
		nets[b.Participant.Key()] = b.Net
	}
	for _, tx := range txs {
		nets[tx.From.Key()] = nets[tx.From.Key()].Add(tx.Amount)
		nets[tx.To.Key()] = nets[tx.To.Key()].Sub(tx.Amount)
	}
	return nets
}

func TestOptimize_TwoCreditorsOneDebtor(t *testing.T) {
	// GIVEN: Alice +30, Bob +10, Carol -40
	// WHEN: Optimizing
	// THEN: Exactly 2 transactions: Carol→Alice 30, Carol→Bob 10

	alice, bob, carol := member("alice"), member("bob"), member("carol")
	balances := []ledger.ParticipantBalance{
		balance(alice, "30"),
		balance(bob, "10"),
		balance(carol, "-40"),
	}

	txs := Optimize(balances)

	if len(txs) != 2 {
		t.Fatalf("Expected 2 transactions, got %d: %+v", len(txs), txs)
	}
	if txs[0].From != carol || txs[0].To != alice || !txs[0].Amount.Equal(dec("30")) {
		t.Errorf("Expected carol→alice 30 first, got %+v", txs[0])
	}
	if txs[1].From != carol || txs[1].To != bob || !txs[1].Amount.Equal(dec("10")) {
		t.Errorf("Expected carol→bob 10 second, got %+v", txs[1])
	}
}

func TestOptimize_AppliedTransactionsZeroBalances(t *testing.T) {
	// GIVEN: Random zero-sum balance sets
	// WHEN: Applying the suggested transactions
	// THEN: Every net lands within Epsilon of zero

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 100; trial++ {
		n := rng.Intn(8) + 2
		balances := make([]ledger.ParticipantBalance, 0, n)
		sum := decimal.Zero
		for i := 0; i < n-1; i++ {
			net := decimal.NewFromInt(int64(rng.Intn(20001) - 10000)).Div(decimal.NewFromInt(100))
			sum = sum.Add(net)
			balances = append(balances, ledger.ParticipantBalance{
				Participant: member(fmt.Sprintf("p%d", i)),
				Net:         net,
			})
		}
		// Last participant closes the books.
		balances = append(balances, ledger.ParticipantBalance{
			Participant: member(fmt.Sprintf("p%d", n-1)),
			Net:         sum.Neg(),
		})

		txs := Optimize(balances)
		nets := applyTransactions(balances, txs)
		for key, net := range nets {
			if net.Abs().GreaterThan(ledger.Epsilon) {
				t.Fatalf("trial %d: %s left with net %s after settlement", trial, key, net)
			}
		}
	}
}

func TestOptimize_TransactionCountBound(t *testing.T) {
	// GIVEN: A zero-sum balance set
	// WHEN: Optimizing
	// THEN: At most creditors + debtors - 1 transactions

	balances := []ledger.ParticipantBalance{
		balance(member("a"), "25.50"),
		balance(member("b"), "14.50"),
		balance(member("c"), "10.00"),
		balance(member("d"), "-20.00"),
		balance(member("e"), "-30.00"),
	}

	txs := Optimize(balances)
	if len(txs) > 4 { // 3 creditors + 2 debtors - 1
		t.Errorf("Expected at most 4 transactions, got %d", len(txs))
	}
}

func TestOptimize_IgnoresEpsilonNoise(t *testing.T) {
	// GIVEN: Balances within Epsilon of zero
	// WHEN: Optimizing
	// THEN: No transactions are suggested

	balances := []ledger.ParticipantBalance{
		balance(member("a"), "0.01"),
		balance(member("b"), "-0.01"),
		balance(member("c"), "0.005"),
	}

	if txs := Optimize(balances); len(txs) != 0 {
		t.Errorf("Expected no transactions for epsilon noise, got %+v", txs)
	}
}

func TestOptimize_EmptyAndSettled(t *testing.T) {
	if txs := Optimize(nil); txs != nil {
		t.Errorf("Expected nil for empty input, got %+v", txs)
	}
	settled := []ledger.ParticipantBalance{
		balance(member("a"), "0"),
		balance(member("b"), "0"),
	}
	if txs := Optimize(settled); len(txs) != 0 {
		t.Errorf("Expected no transactions for settled group, got %+v", txs)
	}
}

func TestOptimize_DeterministicOnTies(t *testing.T) {
	// GIVEN: Two creditors with identical amounts
	// WHEN: Optimizing twice
	// THEN: Identical output (ties broken by participant key)

	balances := []ledger.ParticipantBalance{
		balance(member("zoe"), "10"),
		balance(member("amy"), "10"),
		balance(member("deb"), "-20"),
	}

	first := Optimize(balances)
	second := Optimize(balances)
	if len(first) != len(second) {
		t.Fatalf("Nondeterministic output length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].From != second[i].From || first[i].To != second[i].To || !first[i].Amount.Equal(second[i].Amount) {
			t.Errorf("Nondeterministic transaction at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
	// amy sorts before zoe on equal amounts
	if first[0].To != member("amy") {
		t.Errorf("Expected amy paid first on tie, got %+v", first[0])
	}
}
