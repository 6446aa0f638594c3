package domain

import "testing"

func TestParsePrice(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  float64
	}{
		{name: "euro prefix", input: "€10", want: 10},
		{name: "dollar with decimals", input: "$12.50", want: 12.5},
		{name: "suffix currency", input: "10 EUR", want: 10},
		{name: "plain number", input: "42", want: 42},
		{name: "empty", input: "", want: 0},
		{name: "no digits", input: "free", want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParsePrice(tc.input); got != tc.want {
				t.Fatalf("ParsePrice(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestComputeTotals(t *testing.T) {
	totals := ComputeTotals(25)
	if totals.Total != 25 {
		t.Fatalf("total = %v, want 25", totals.Total)
	}
	if totals.Tax != 5 {
		t.Fatalf("tax = %v, want 5", totals.Tax)
	}
	if totals.GrandTotal != 30 {
		t.Fatalf("grand total = %v, want 30", totals.GrandTotal)
	}
}

func TestSelectionTotal(t *testing.T) {
	selections := []OptionSelection{
		{OptionID: "1", Price: "€10", Quantity: 2},
		{OptionID: "2", Price: "€5", Quantity: 1},
		{OptionID: "3", Price: "€99", Quantity: 0},
	}
	if got := SelectionTotal(selections); got != 25 {
		t.Fatalf("SelectionTotal = %v, want 25", got)
	}
}

func TestProviderEffectivePrice(t *testing.T) {
	opt := ServiceOption{ID: "opt-1", Price: "€10"}
	provider := Provider{
		PriceOverrides: map[string]map[string]string{
			"svc-1": {"opt-1": "€8"},
		},
	}

	if got := provider.EffectivePrice("svc-1", opt); got != "€8" {
		t.Fatalf("override price = %q, want €8", got)
	}
	if got := provider.EffectivePrice("svc-2", opt); got != "€10" {
		t.Fatalf("fallback price = %q, want €10", got)
	}
}
