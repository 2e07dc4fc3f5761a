package logschema

import "testing"

func TestValidate(t *testing.T) {
	err := Validate("liquidity_gap", map[string]interface{}{
		"side":   "ask",
		"gapPct": 0.7,
		"from":   100.3,
		"to":     101.0,
		"price":  100.3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = Validate("liquidity_gap", map[string]interface{}{
		"side": "ask",
	})
	if err == nil {
		t.Fatalf("expected error for missing fields")
	}
}

func TestUnknownEventPasses(t *testing.T) {
	if err := Validate("some_future_event", nil); err != nil {
		t.Fatalf("unknown event should pass: %v", err)
	}
}

func TestKnownEvents(t *testing.T) {
	names := Known()
	if len(names) != 6 {
		t.Fatalf("expected 6 schemas, got %d", len(names))
	}
	found := false
	for _, n := range names {
		if n == "price_breakthrough" {
			found = true
		}
	}
	if !found {
		t.Fatalf("price_breakthrough not found in schemas")
	}
}
