/*
balances_test.go - Unit tests for the balance fold

CORE DESIGN:
- Balances are COMPUTED on-demand from expense/settlement rows, never stored
- The sum of all net balances in a group is always zero
- A settlement moves money: sender's TotalPaid up, receiver's TotalOwed up
*/
package ledger

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

func member(id string) Participant {
	return Participant{Kind: KindMember, ID: id}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// =============================================================================
// BALANCE CALCULATION TESTS
// =============================================================================

func TestComputeBalances_SingleExpense(t *testing.T) {
	// GIVEN: Alice paid 30 for a dinner split evenly three ways
	// WHEN: Computing balances
	// THEN: Alice is owed 20, Bob and Carol each owe 10

	alice, bob, carol := member("alice"), member("bob"), member("carol")
	expenses := []Expense{{
		ID:      "e1",
		GroupID: "g1",
		Amount:  dec("30"),
		Payer:   alice,
		Shares: []Share{
			{Participant: alice, Amount: dec("10")},
			{Participant: bob, Amount: dec("10")},
			{Participant: carol, Amount: dec("10")},
		},
	}}

	balances := ComputeBalances(expenses, nil, []Participant{alice, bob, carol})

	byKey := make(map[string]ParticipantBalance)
	for _, b := range balances {
		byKey[b.Participant.Key()] = b
	}

	if !byKey[alice.Key()].Net.Equal(dec("20")) {
		t.Errorf("Expected alice net +20, got %s", byKey[alice.Key()].Net)
	}
	if !byKey[bob.Key()].Net.Equal(dec("-10")) {
		t.Errorf("Expected bob net -10, got %s", byKey[bob.Key()].Net)
	}
	if !byKey[carol.Key()].Net.Equal(dec("-10")) {
		t.Errorf("Expected carol net -10, got %s", byKey[carol.Key()].Net)
	}
}

func TestComputeBalances_SettlementClearsDebt(t *testing.T) {
	// GIVEN: Bob owes Alice 10 from an expense, then pays her 10
	// WHEN: Computing balances including the settlement
	// THEN: Both nets are zero

	alice, bob := member("alice"), member("bob")
	expenses := []Expense{{
		ID:     "e1",
		Amount: dec("20"),
		Payer:  alice,
		Shares: []Share{
			{Participant: alice, Amount: dec("10")},
			{Participant: bob, Amount: dec("10")},
		},
	}}
	settlements := []Settlement{{
		ID:     "s1",
		From:   bob,
		To:     alice,
		Amount: dec("10"),
	}}

	balances := ComputeBalances(expenses, settlements, []Participant{alice, bob})

	for _, b := range balances {
		if !b.Net.IsZero() {
			t.Errorf("Expected %s net zero after settlement, got %s", b.Participant.Key(), b.Net)
		}
	}
}

func TestComputeBalances_RosterIncludedWithZeroActivity(t *testing.T) {
	// GIVEN: A roster participant with no expenses or settlements
	// WHEN: Computing balances
	// THEN: They appear with all-zero totals

	idle := Participant{Kind: KindPlaceholder, ID: "pending-dana"}
	balances := ComputeBalances(nil, nil, []Participant{idle})

	if len(balances) != 1 {
		t.Fatalf("Expected 1 balance, got %d", len(balances))
	}
	b := balances[0]
	if !b.TotalPaid.IsZero() || !b.TotalOwed.IsZero() || !b.Net.IsZero() {
		t.Errorf("Expected all-zero balance for idle roster member, got %+v", b)
	}
}

func TestComputeBalances_ZeroSumProperty(t *testing.T) {
	// GIVEN: Randomized expenses with exact even splits plus settlements
	// WHEN: Computing balances
	// THEN: Net balances sum to zero (the fold conserves money)

	rng := rand.New(rand.NewSource(42))
	roster := []Participant{member("a"), member("b"), member("c"), member("d")}

	var expenses []Expense
	for i := 0; i < 50; i++ {
		cents := int64(rng.Intn(40000) + 4) // up to 400.00
		cents -= cents % 4                  // divisible so shares are exact
		amount := decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))
		per := amount.Div(decimal.NewFromInt(4))

		shares := make([]Share, len(roster))
		for j, p := range roster {
			shares[j] = Share{Participant: p, Amount: per}
		}
		expenses = append(expenses, Expense{
			ID:     fmt.Sprintf("e%d", i),
			Amount: amount,
			Payer:  roster[rng.Intn(len(roster))],
			Shares: shares,
		})
	}

	var settlements []Settlement
	for i := 0; i < 10; i++ {
		from, to := rng.Intn(len(roster)), rng.Intn(len(roster))
		if from == to {
			continue
		}
		settlements = append(settlements, Settlement{
			ID:     fmt.Sprintf("s%d", i),
			From:   roster[from],
			To:     roster[to],
			Amount: decimal.NewFromInt(int64(rng.Intn(5000) + 1)).Div(decimal.NewFromInt(100)),
		})
	}

	balances := ComputeBalances(expenses, settlements, roster)

	sum := decimal.Zero
	for _, b := range balances {
		sum = sum.Add(b.Net)
	}
	if !sum.IsZero() {
		t.Errorf("Expected nets to sum to zero, got %s", sum)
	}
}

func TestComputeBalances_PanicsOnCorruptExpense(t *testing.T) {
	// GIVEN: An expense whose shares do not sum to its amount
	// WHEN: Computing balances
	// THEN: The fold panics instead of returning wrong numbers

	defer func() {
		if recover() == nil {
			t.Fatal("Expected panic on corrupt expense row")
		}
	}()

	corrupt := []Expense{{
		ID:     "bad",
		Amount: dec("100"),
		Payer:  member("alice"),
		Shares: []Share{{Participant: member("alice"), Amount: dec("1")}},
	}}
	ComputeBalances(corrupt, nil, nil)
}

func TestComputeBalances_DeterministicOrder(t *testing.T) {
	// GIVEN: The same inputs twice
	// WHEN: Computing balances
	// THEN: Output ordering is identical (sorted by participant key)

	roster := []Participant{member("zoe"), member("amy"), {Kind: KindPlaceholder, ID: "mid"}}
	a := ComputeBalances(nil, nil, roster)
	b := ComputeBalances(nil, nil, roster)

	for i := range a {
		if a[i].Participant != b[i].Participant {
			t.Fatalf("Ordering differs at %d: %v vs %v", i, a[i].Participant, b[i].Participant)
		}
	}
	for i := 1; i < len(a); i++ {
		if a[i-1].Participant.Key() >= a[i].Participant.Key() {
			t.Errorf("Expected sorted output, got %s before %s",
				a[i-1].Participant.Key(), a[i].Participant.Key())
		}
	}
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestExpenseValidate(t *testing.T) {
	alice, bob := member("alice"), member("bob")

	valid := Expense{
		Amount: dec("10"),
		Payer:  alice,
		Shares: []Share{
			{Participant: alice, Amount: dec("5")},
			{Participant: bob, Amount: dec("5")},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected valid expense, got %v", err)
	}

	// Shares off by more than Epsilon
	bad := valid
	bad.Shares = []Share{{Participant: alice, Amount: dec("5")}}
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for shares not summing to amount")
	}

	// Within Epsilon is accepted
	close := valid
	close.Shares = []Share{
		{Participant: alice, Amount: dec("5.00")},
		{Participant: bob, Amount: dec("5.01")},
	}
	if err := close.Validate(); err != nil {
		t.Errorf("Expected within-epsilon shares accepted, got %v", err)
	}

	// Duplicate participant
	dup := valid
	dup.Shares = []Share{
		{Participant: alice, Amount: dec("5")},
		{Participant: alice, Amount: dec("5")},
	}
	if err := dup.Validate(); err == nil {
		t.Error("Expected error for duplicate share participant")
	}

	// Empty shares
	empty := valid
	empty.Shares = nil
	if err := empty.Validate(); err == nil {
		t.Error("Expected error for empty share set")
	}
}

func TestSettlementValidate(t *testing.T) {
	alice, bob := member("alice"), member("bob")

	valid := Settlement{From: bob, To: alice, Amount: dec("10")}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected valid settlement, got %v", err)
	}

	self := Settlement{From: alice, To: alice, Amount: dec("10")}
	if err := self.Validate(); err == nil {
		t.Error("Expected error for self-settlement")
	}

	nonPositive := Settlement{From: bob, To: alice, Amount: dec("0")}
	if err := nonPositive.Validate(); err == nil {
		t.Error("Expected error for non-positive amount")
	}
}

func TestParticipantKeyDisambiguatesKinds(t *testing.T) {
	// GIVEN: A member and a placeholder sharing a raw id
	// THEN: Their keys differ

	m := Participant{Kind: KindMember, ID: "x"}
	p := Participant{Kind: KindPlaceholder, ID: "x"}
	if m.Key() == p.Key() {
		t.Error("Expected member:x and placeholder:x to have distinct keys")
	}
}
