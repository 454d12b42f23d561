/*
extract.go - Untrusted extraction payload → session + items

PURPOSE:
  The OCR/extraction collaborator returns merchant, date, items,
  subtotal, tax, tip, and total, possibly inconsistent with each
  other. This file validates what can be validated, normalizes money
  to cents, and degrades gracefully when item extraction failed,
  WITHOUT ever reconciling the numbers into agreement (that is
  reconcile.go's job, using the claims).

DEGRADED FALLBACK:
  If the payload carries no items at all, a single placeholder item is
  created covering the declared subtotal (or total when the subtotal is
  zero), so the session is still usable and manually splittable.

WHAT IS NOT CHECKED:
  subtotal == Σ item prices, and subtotal + tax + tip == total. The
  extraction source is known-unreliable; reconciliation corrects
  discrepancies against the declared figures at finalize time.
*/
package receipt

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chipin/split-engine/ledger"
)

// ExtractedItem is one line item as returned by the extraction service.
type ExtractedItem struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// ExtractedReceipt is the extraction service's output. All fields are
// untrusted input.
type ExtractedReceipt struct {
	Merchant string          `json:"merchant"`
	Date     time.Time       `json:"date"`
	Items    []ExtractedItem `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Tip      decimal.Decimal `json:"tip"`
	Total    decimal.Decimal `json:"total"`
}

// DefaultSessionTTL bounds how long a session accepts mutations.
const DefaultSessionTTL = 24 * time.Hour

// NewSession builds a claimable session and its items from extraction
// output. The participant roster is fixed here for the session's whole
// lifetime. Money is normalized to cents; item identity and ordering
// are assigned by the store on create.
func NewSession(groupID string, ext ExtractedReceipt, roster []RosterEntry, createdBy ledger.Participant, now time.Time, ttl time.Duration) (*Session, []Item, error) {
	if groupID == "" {
		return nil, nil, &ledger.ValidationError{Field: "group_id", Message: "must not be empty"}
	}
	if err := createdBy.Validate(); err != nil {
		return nil, nil, err
	}
	if len(roster) == 0 {
		return nil, nil, &ledger.ValidationError{Field: "participants", Message: "must not be empty"}
	}
	seen := make(map[string]bool, len(roster))
	for i := range roster {
		if err := roster[i].Participant.Validate(); err != nil {
			return nil, nil, err
		}
		k := roster[i].Participant.Key()
		if seen[k] {
			return nil, nil, &ledger.ValidationError{Field: "participants", Message: "duplicate participant " + k}
		}
		seen[k] = true
		roster[i].Position = i
	}
	for _, d := range []struct {
		field string
		v     decimal.Decimal
	}{
		{"subtotal", ext.Subtotal},
		{"tax", ext.Tax},
		{"tip", ext.Tip},
		{"total", ext.Total},
	} {
		if d.v.IsNegative() {
			return nil, nil, &ledger.ValidationError{Field: d.field, Message: "must not be negative"}
		}
	}
	if ext.Total.IsZero() {
		return nil, nil, &ledger.ValidationError{Field: "total", Message: "must be positive"}
	}

	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	date := ext.Date
	if date.IsZero() {
		date = now
	}

	s := &Session{
		GroupID:      groupID,
		Merchant:     ext.Merchant,
		Date:         date,
		Subtotal:     ledger.RoundCents(ext.Subtotal),
		Tax:          ledger.RoundCents(ext.Tax),
		Tip:          ledger.RoundCents(ext.Tip),
		Total:        ledger.RoundCents(ext.Total),
		Status:       StatusClaiming,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
		CreatedBy:    createdBy,
		Participants: roster,
	}

	items := make([]Item, 0, len(ext.Items))
	for i, it := range ext.Items {
		if it.Price.IsNegative() {
			return nil, nil, &ledger.ValidationError{Field: "items", Message: "item price must not be negative"}
		}
		name := it.Name
		if name == "" {
			name = "Item"
		}
		items = append(items, Item{
			Name:     name,
			Price:    ledger.RoundCents(it.Price),
			Position: i,
		})
	}

	// Extraction found nothing itemizable: fall back to one
	// manually-editable placeholder covering the declared amount.
	if len(items) == 0 {
		price := s.Subtotal
		if price.IsZero() {
			price = s.Total
		}
		items = append(items, Item{Name: fallbackItemName(s.Merchant), Price: price, Position: 0})
	}

	return s, items, nil
}

func fallbackItemName(merchant string) string {
	if merchant == "" {
		return "Receipt total"
	}
	return merchant + " total"
}
