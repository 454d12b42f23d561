package receipt_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chipin/split-engine/ledger"
	"github.com/chipin/split-engine/receipt"
)

func TestNewSession_FromExtraction(t *testing.T) {
	// GIVEN: Well-formed extraction output
	// WHEN: Building a session
	// THEN: Claiming phase, money rounded to cents, roster positions set

	now := time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)
	ext := receipt.ExtractedReceipt{
		Merchant: "Luigi's",
		Items: []receipt.ExtractedItem{
			{Name: "Burger", Price: dec("11.999")},
			{Price: dec("4.00")}, // unnamed
		},
		Subtotal: dec("16.00"),
		Tax:      dec("1.60"),
		Total:    dec("17.60"),
	}

	session, items, err := receipt.NewSession("g1", ext, roster("alice", "bob"), member("alice"), now, 0)
	require.NoError(t, err)

	assert.Equal(t, receipt.StatusClaiming, session.Status)
	assert.Equal(t, now.Add(receipt.DefaultSessionTTL), session.ExpiresAt)
	assert.Equal(t, member("alice"), session.CreatedBy)

	require.Len(t, items, 2)
	assert.True(t, items[0].Price.Equal(dec("12.00")), "prices are normalized to cents")
	assert.Equal(t, "Item", items[1].Name, "unnamed items get a placeholder name")

	for i, r := range session.Participants {
		assert.Equal(t, i, r.Position)
	}
}

func TestNewSession_NoItemsFallback(t *testing.T) {
	// GIVEN: Extraction that found totals but no line items
	// WHEN: Building a session
	// THEN: One placeholder item covering the subtotal keeps it splittable

	ext := receipt.ExtractedReceipt{
		Merchant: "Diner",
		Subtotal: dec("40.00"),
		Tax:      dec("4.00"),
		Total:    dec("44.00"),
	}

	_, items, err := receipt.NewSession("g1", ext, roster("alice"), member("alice"), time.Now(), 0)
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, "Diner total", items[0].Name)
	assert.True(t, items[0].Price.Equal(dec("40.00")))
}

func TestNewSession_NoItemsZeroSubtotalUsesTotal(t *testing.T) {
	// GIVEN: Degraded extraction with only a grand total
	// WHEN: Building a session
	// THEN: The fallback item carries the total

	ext := receipt.ExtractedReceipt{Total: dec("25.00")}

	_, items, err := receipt.NewSession("g1", ext, roster("alice"), member("alice"), time.Now(), 0)
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, "Receipt total", items[0].Name)
	assert.True(t, items[0].Price.Equal(dec("25.00")))
}

func TestNewSession_Validation(t *testing.T) {
	valid := receipt.ExtractedReceipt{Subtotal: dec("10"), Total: dec("10")}
	now := time.Now()

	cases := []struct {
		name   string
		group  string
		ext    receipt.ExtractedReceipt
		roster []receipt.RosterEntry
	}{
		{"empty group", "", valid, roster("alice")},
		{"empty roster", "g1", valid, nil},
		{"duplicate participant", "g1", valid, roster("alice", "alice")},
		{"negative tax", "g1", receipt.ExtractedReceipt{Tax: dec("-1"), Total: dec("10")}, roster("alice")},
		{"zero total", "g1", receipt.ExtractedReceipt{Subtotal: dec("10")}, roster("alice")},
		{"negative item price", "g1", receipt.ExtractedReceipt{
			Total: dec("10"),
			Items: []receipt.ExtractedItem{{Name: "Refund", Price: dec("-2")}},
		}, roster("alice")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := receipt.NewSession(tc.group, tc.ext, tc.roster, member("alice"), now, 0)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ledger.ErrValidation))
		})
	}
}
