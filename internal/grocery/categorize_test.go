package grocery

import "testing"

func TestCategorize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"milk", "Dairy"},
		{"Milk", "Dairy"},
		{"  eggs ", "Dairy"},
		{"chicken breast", "Meat & Seafood"},
		{"whole wheat bread", "Bakery"},
		{"frozen pizza", "Frozen"},
		{"ice cream", "Frozen"},
		{"organic baby spinach", "Produce"},
		{"tomatoes", "Produce"},
		{"blueberries", "Produce"},
		{"sparkling water bottles", "Beverages"},
		{"canned black beans", "Pantry"},
		{"dish soap refill", "Household"},
		{"batteries", "Household"},
		{"greek yogurt cups", "Dairy"},
		{"chocolate milk", "Dairy"},
		{"tortilla chips", "Snacks"},
		{"cookies", "Snacks"},
		{"peanut butter", "Pantry"},
		{"toothpaste", "Personal Care"},
	}
	for _, tt := range tests {
		if got := Categorize(tt.input); got != tt.want {
			t.Errorf("Categorize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCategorizeFallback(t *testing.T) {
	for _, input := range []string{"", "   ", "birthday card", "xyz123"} {
		if got := Categorize(input); got != Other {
			t.Errorf("Categorize(%q) = %q, want %q", input, got, Other)
		}
	}
}

func TestCategoriesCoverAisles(t *testing.T) {
	known := make(map[string]bool)
	for _, c := range Categories {
		known[c] = true
	}
	for _, a := range aisles {
		if !known[a.category] {
			t.Errorf("aisle %q missing from Categories", a.category)
		}
	}
}
