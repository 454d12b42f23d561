/*
handlers_test.go - End-to-end HTTP tests over an in-memory database

Tests the full flows a client walks through:
- Direct expense entry → balances → settlement plan → mark paid
- Receipt session → claims → finalize → balances include the result
- Error taxonomy → HTTP status mapping
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/chipin/split-engine/realtime"
	"github.com/chipin/split-engine/store/sqlite"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(NewRouter(NewHandler(store, realtime.NewHub())))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func participant(id string) ParticipantDTO {
	return ParticipantDTO{Kind: "member", ID: id}
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestExpenseBalanceSettlementFlow(t *testing.T) {
	// GIVEN: alice paid 30 split evenly across three people
	// WHEN: Walking expense → balances → plan → mark paid
	// THEN: Each step reflects the previous one

	srv := newTestServer(t)

	var created ExpenseDTO
	status := doJSON(t, http.MethodPost, srv.URL+"/api/groups/g1/expenses", SaveExpenseRequest{
		Description: "Dinner",
		Amount:      amount("30.00"),
		Payer:       participant("alice"),
		Date:        "2026-03-14",
		Shares: []ShareDTO{
			{Participant: participant("alice"), Amount: amount("10.00")},
			{Participant: participant("bob"), Amount: amount("10.00")},
			{Participant: participant("carol"), Amount: amount("10.00")},
		},
	}, &created)
	if status != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", status)
	}
	if created.ID == "" {
		t.Fatal("Expected an expense id")
	}

	// Balances: alice +20, bob -10, carol -10
	var balances []BalanceDTO
	if status := doJSON(t, http.MethodGet, srv.URL+"/api/groups/g1/balances", nil, &balances); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	nets := map[string]decimal.Decimal{}
	for _, b := range balances {
		nets[b.Participant.ID] = b.Net
	}
	if !nets["alice"].Equal(amount("20")) || !nets["bob"].Equal(amount("-10")) {
		t.Errorf("Unexpected balances: %+v", nets)
	}

	// Plan: two payments to alice
	var plan struct {
		Transactions []TransactionDTO `json:"transactions"`
	}
	if status := doJSON(t, http.MethodGet, srv.URL+"/api/groups/g1/settlements/plan", nil, &plan); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if len(plan.Transactions) != 2 {
		t.Fatalf("Expected 2 suggested payments, got %+v", plan.Transactions)
	}
	for _, tx := range plan.Transactions {
		if tx.To.ID != "alice" || !tx.Amount.Equal(amount("10")) {
			t.Errorf("Unexpected transaction: %+v", tx)
		}
	}

	// Mark bob's payment as paid
	var settled SettlementDTO
	status = doJSON(t, http.MethodPost, srv.URL+"/api/groups/g1/settlements", CreateSettlementRequest{
		From:   participant("bob"),
		To:     participant("alice"),
		Amount: amount("10.00"),
	}, &settled)
	if status != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", status)
	}

	// Bob's balance is clear; only carol owes
	if status := doJSON(t, http.MethodGet, srv.URL+"/api/groups/g1/settlements/plan", nil, &plan); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if len(plan.Transactions) != 1 || plan.Transactions[0].From.ID != "carol" {
		t.Errorf("Expected only carol left owing, got %+v", plan.Transactions)
	}

	// Unmark and the payment is owed again
	if status := doJSON(t, http.MethodDelete, srv.URL+"/api/settlements/"+settled.ID, nil, nil); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if status := doJSON(t, http.MethodGet, srv.URL+"/api/groups/g1/settlements/plan", nil, &plan); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if len(plan.Transactions) != 2 {
		t.Errorf("Expected 2 payments after unmark, got %+v", plan.Transactions)
	}
}

func TestReceiptSessionFlow(t *testing.T) {
	// GIVEN: The burger/fries receipt, alice and bob
	// WHEN: Creating a session, claiming the burger, finalizing
	// THEN: The produced expense shows up in group balances

	srv := newTestServer(t)

	var session SessionDTO
	status := doJSON(t, http.MethodPost, srv.URL+"/api/groups/g1/receipt-sessions", map[string]any{
		"receipt": map[string]any{
			"merchant": "Luigi's",
			"items": []map[string]any{
				{"name": "Burger", "price": "12.00"},
				{"name": "Fries", "price": "4.00"},
			},
			"subtotal": "16.00",
			"tax":      "1.60",
			"total":    "17.60",
		},
		"participants": []map[string]any{
			{"participant": participant("alice"), "display_name": "Alice"},
			{"participant": participant("bob"), "display_name": "Bob"},
		},
		"created_by": participant("alice"),
	}, &session)
	if status != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", status)
	}
	if session.Status != "claiming" || len(session.Items) != 2 {
		t.Fatalf("Unexpected session: %+v", session)
	}

	var sessions []SessionDTO
	if status := doJSON(t, http.MethodGet, srv.URL+"/api/groups/g1/receipt-sessions", nil, &sessions); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if len(sessions) != 1 || sessions[0].ID != session.ID {
		t.Errorf("Expected the new session listed, got %+v", sessions)
	}

	burger := session.Items[0]
	claimURL := fmt.Sprintf("%s/api/receipt-sessions/%s/items/%s/claim", srv.URL, session.ID, burger.ID)

	var state ClaimStateDTO
	if status := doJSON(t, http.MethodPost, claimURL, ClaimRequest{Participant: participant("alice")}, &state); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if state.TotalClaims != 1 || !state.SharePerPerson.Equal(amount("12.00")) {
		t.Errorf("Unexpected claim state: %+v", state)
	}

	// Claiming again is a no-op, not a conflict
	if status := doJSON(t, http.MethodPost, claimURL, ClaimRequest{Participant: participant("alice")}, &state); status != http.StatusOK {
		t.Fatalf("Expected 200 on duplicate claim, got %d", status)
	}
	if state.TotalClaims != 1 {
		t.Errorf("Expected duplicate claim collapsed, got %+v", state)
	}

	// bob cannot finalize alice's session
	finalizeURL := fmt.Sprintf("%s/api/receipt-sessions/%s/finalize", srv.URL, session.ID)
	if status := doJSON(t, http.MethodPost, finalizeURL, FinalizeRequest{Participant: participant("bob")}, nil); status != http.StatusForbidden {
		t.Fatalf("Expected 403 for non-creator finalize, got %d", status)
	}

	var finalized FinalizeResponseDTO
	if status := doJSON(t, http.MethodPost, finalizeURL, FinalizeRequest{Participant: participant("alice")}, &finalized); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if finalized.Result != "created" || finalized.ExpenseID == "" {
		t.Fatalf("Unexpected finalize response: %+v", finalized)
	}

	// Claiming after completion is a state conflict
	if status := doJSON(t, http.MethodPost, claimURL, ClaimRequest{Participant: participant("bob")}, nil); status != http.StatusConflict {
		t.Errorf("Expected 409 claiming a completed session, got %d", status)
	}

	// The reconciled expense is now part of the ledger
	var expense ExpenseDTO
	if status := doJSON(t, http.MethodGet, srv.URL+"/api/expenses/"+finalized.ExpenseID, nil, &expense); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if !expense.Amount.Equal(amount("17.60")) || len(expense.Shares) != 2 {
		t.Errorf("Unexpected reconciled expense: %+v", expense)
	}

	var balances []BalanceDTO
	if status := doJSON(t, http.MethodGet, srv.URL+"/api/groups/g1/balances", nil, &balances); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	nets := map[string]decimal.Decimal{}
	for _, b := range balances {
		nets[b.Participant.ID] = b.Net
	}
	if !nets["bob"].Equal(amount("-2.20")) {
		t.Errorf("Expected bob owing 2.20, got %s", nets["bob"])
	}

	// Reopen, then finalize again updates the same expense
	reopenURL := fmt.Sprintf("%s/api/receipt-sessions/%s/reopen", srv.URL, session.ID)
	if status := doJSON(t, http.MethodPost, reopenURL, ReopenRequest{Participant: participant("alice")}, nil); status != http.StatusOK {
		t.Fatalf("Expected 200 on reopen, got %d", status)
	}
	if status := doJSON(t, http.MethodPost, finalizeURL, FinalizeRequest{Participant: participant("alice")}, &finalized); status != http.StatusOK {
		t.Fatalf("Expected 200 on re-finalize, got %d", status)
	}
	if finalized.Result != "updated" {
		t.Errorf("Expected updated, got %+v", finalized)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t)

	// Unknown expense → 404
	if status := doJSON(t, http.MethodGet, srv.URL+"/api/expenses/ghost", nil, nil); status != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", status)
	}

	// Shares not summing to the amount → 400
	status := doJSON(t, http.MethodPost, srv.URL+"/api/groups/g1/expenses", SaveExpenseRequest{
		Description: "Broken",
		Amount:      amount("30.00"),
		Payer:       participant("alice"),
		Date:        "2026-03-14",
		Shares:      []ShareDTO{{Participant: participant("alice"), Amount: amount("5.00")}},
	}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad share sum, got %d", status)
	}

	// Malformed date → 400
	status = doJSON(t, http.MethodPost, srv.URL+"/api/groups/g1/expenses", SaveExpenseRequest{
		Description: "Broken",
		Amount:      amount("10.00"),
		Payer:       participant("alice"),
		Date:        "14/03/2026",
		Shares:      []ShareDTO{{Participant: participant("alice"), Amount: amount("10.00")}},
	}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad date, got %d", status)
	}

	// Self-settlement → 400
	status = doJSON(t, http.MethodPost, srv.URL+"/api/groups/g1/settlements", CreateSettlementRequest{
		From:   participant("alice"),
		To:     participant("alice"),
		Amount: amount("10.00"),
	}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("Expected 400 for self settlement, got %d", status)
	}

	// Unknown session → 404 (SSE endpoint included)
	if status := doJSON(t, http.MethodGet, srv.URL+"/api/receipt-sessions/ghost", nil, nil); status != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", status)
	}
	if status := doJSON(t, http.MethodGet, srv.URL+"/api/receipt-sessions/ghost/events", nil, nil); status != http.StatusNotFound {
		t.Errorf("Expected 404 from events endpoint, got %d", status)
	}
}

func TestUpdateAndDeleteExpense(t *testing.T) {
	srv := newTestServer(t)

	var created ExpenseDTO
	doJSON(t, http.MethodPost, srv.URL+"/api/groups/g1/expenses", SaveExpenseRequest{
		Description: "Lunch",
		Amount:      amount("20.00"),
		Payer:       participant("alice"),
		Date:        "2026-03-14",
		Shares: []ShareDTO{
			{Participant: participant("alice"), Amount: amount("10.00")},
			{Participant: participant("bob"), Amount: amount("10.00")},
		},
	}, &created)

	// Full replace with a different split
	var updated ExpenseDTO
	status := doJSON(t, http.MethodPut, srv.URL+"/api/expenses/"+created.ID, SaveExpenseRequest{
		Description: "Lunch (corrected)",
		Amount:      amount("24.00"),
		Payer:       participant("alice"),
		Date:        "2026-03-14",
		Shares: []ShareDTO{
			{Participant: participant("alice"), Amount: amount("12.00")},
			{Participant: participant("bob"), Amount: amount("12.00")},
		},
	}, &updated)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if updated.Description != "Lunch (corrected)" || !updated.Amount.Equal(amount("24.00")) {
		t.Errorf("Unexpected update result: %+v", updated)
	}

	if status := doJSON(t, http.MethodDelete, srv.URL+"/api/expenses/"+created.ID, nil, nil); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if status := doJSON(t, http.MethodGet, srv.URL+"/api/expenses/"+created.ID, nil, nil); status != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", status)
	}
}
