package game

import (
	"errors"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParseAgentType(t *testing.T) {
	valid := []string{"CONSERVATIVE", "aggressive", " Chaotic ", "INFORMATIVE"}
	for _, v := range valid {
		if _, err := ParseAgentType(v); err != nil {
			t.Fatalf("expected type %q to be valid: %v", v, err)
		}
	}

	invalid := []string{"", "RANDOM", "CHAOS"}
	for _, v := range invalid {
		if _, err := ParseAgentType(v); !errors.Is(err, ErrUnknownAgentType) {
			t.Fatalf("expected type %q to fail, got %v", v, err)
		}
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want LeaderboardCategory
	}{
		{in: "", want: CategoryProfit},
		{in: "profit", want: CategoryProfit},
		{in: "INFLUENCE", want: CategoryInfluence},
		{in: "betrayal", want: CategoryBetrayal},
	}
	for _, tc := range tests {
		got, err := ParseCategory(tc.in)
		if err != nil || got != tc.want {
			t.Fatalf("in=%q got=%q err=%v want=%q", tc.in, got, err, tc.want)
		}
	}
	if _, err := ParseCategory("fame"); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected unknown category error, got %v", err)
	}
}

func TestValidateAgentName(t *testing.T) {
	if err := validateAgentName("Moon Walker"); err != nil {
		t.Fatalf("expected valid agent name: %v", err)
	}
	invalid := []string{"", "   ", "admin bot", "ThisNameIsWayTooLongForAnAgentBadge"}
	for _, name := range invalid {
		if err := validateAgentName(name); !errors.Is(err, ErrInvalidAgentName) {
			t.Fatalf("expected %q to fail, got %v", name, err)
		}
	}
}

func TestMoneyAndUnitsFromYAML(t *testing.T) {
	var h Holding
	if err := yaml.Unmarshal([]byte("{symbol: BTC, amount: 0.5, price: 50000.25}"), &h); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if h.AmountUnits != Units(UnitScale/2) {
		t.Fatalf("amount units=%d want %d", h.AmountUnits, UnitScale/2)
	}
	if h.PriceMicros != Money(50_000*MicrosPerDollar+MicrosPerDollar/4) {
		t.Fatalf("price micros=%d", h.PriceMicros)
	}
	if err := yaml.Unmarshal([]byte("{price: lots}"), &h); err == nil {
		t.Fatalf("expected non-numeric price to fail")
	}
}

func TestHoldingsValueMicros(t *testing.T) {
	holdings := []Holding{
		{Symbol: "BTC", AmountUnits: Units(UnitScale / 2), PriceMicros: Money(50_000 * MicrosPerDollar)},
		{Symbol: "USDT", AmountUnits: Units(1_000 * UnitScale), PriceMicros: Money(MicrosPerDollar)},
	}
	if got, want := holdingsValueMicros(holdings), int64(26_000)*MicrosPerDollar; got != want {
		t.Fatalf("got %d want %d", got, want)
	}
}

func TestEvolvePriceStaysPositive(t *testing.T) {
	if got := evolvePrice(100, -5); got != 1 {
		t.Fatalf("got %d want 1", got)
	}
	if got := evolvePrice(1_000_000, 0.01); got != 1_010_000 {
		t.Fatalf("got %d want 1010000", got)
	}
}
