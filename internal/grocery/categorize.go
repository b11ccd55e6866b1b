// Package grocery tags shopping items with a store-aisle category.
package grocery

import "strings"

// Other is returned when no category matches.
const Other = "Other"

// Categories lists every category Categorize can return, in aisle order.
var Categories = []string{
	"Produce", "Dairy", "Meat & Seafood", "Bakery", "Frozen",
	"Pantry", "Beverages", "Snacks", "Household", "Personal Care", Other,
}

type aisle struct {
	category string
	words    []string // matched against whole words, singular form
	phrases  []string // matched as substrings, checked before words
}

// Order matters: phrases of earlier aisles win, so "ice cream" is frozen
// before "cream" can make it dairy.
var aisles = []aisle{
	{
		category: "Frozen",
		phrases:  []string{"ice cream", "frozen", "popsicle"},
		words:    []string{"waffle", "sorbet", "gelato"},
	},
	{
		category: "Household",
		phrases:  []string{"paper towel", "toilet paper", "trash bag", "garbage bag", "dish soap", "plastic wrap", "light bulb"},
		words:    []string{"laundry", "detergent", "cleaner", "sponge", "foil", "ziplock", "battery", "bleach", "napkin"},
	},
	{
		category: "Personal Care",
		phrases:  []string{"body wash", "band-aid", "hand soap"},
		words:    []string{"shampoo", "conditioner", "toothpaste", "toothbrush", "deodorant", "lotion", "sunscreen", "razor", "tissue", "floss"},
	},
	{
		category: "Meat & Seafood",
		phrases:  []string{"ground beef", "pork chop"},
		words:    []string{"chicken", "beef", "pork", "turkey", "bacon", "sausage", "ham", "steak", "salmon", "tuna", "shrimp", "fish", "lamb", "mince"},
	},
	{
		category: "Beverages",
		phrases:  []string{"sparkling water", "orange juice", "apple juice", "soda water"},
		words:    []string{"water", "juice", "soda", "coffee", "tea", "beer", "wine", "lemonade", "kombucha", "cola"},
	},
	{
		category: "Dairy",
		phrases:  []string{"sour cream", "cream cheese", "half and half"},
		words:    []string{"milk", "cheese", "yogurt", "yoghurt", "butter", "cream", "egg", "kefir", "quark"},
	},
	{
		category: "Bakery",
		phrases:  []string{"english muffin"},
		words:    []string{"bread", "bagel", "baguette", "croissant", "bun", "roll", "tortilla", "muffin", "pita", "loaf"},
	},
	{
		category: "Snacks",
		phrases:  []string{"fruit snack", "granola bar"},
		words:    []string{"chip", "crisp", "cracker", "cookie", "popcorn", "pretzel", "candy", "chocolate", "snack", "nut"},
	},
	{
		category: "Pantry",
		phrases:  []string{"peanut butter", "olive oil", "soy sauce", "maple syrup", "black bean"},
		words:    []string{"rice", "pasta", "flour", "sugar", "salt", "pepper", "oil", "vinegar", "cereal", "oat", "bean", "lentil", "honey", "jam", "sauce", "soup", "spice", "noodle", "can", "canned"},
	},
	{
		category: "Produce",
		phrases:  []string{"bell pepper", "sweet potato", "green onion"},
		words: []string{
			"apple", "banana", "orange", "lemon", "lime", "avocado", "tomato", "potato",
			"onion", "garlic", "lettuce", "spinach", "kale", "broccoli", "carrot", "celery",
			"cucumber", "mushroom", "corn", "grape", "berry", "strawberry", "blueberry",
			"herb", "cilantro", "parsley", "zucchini", "salad", "pear", "peach",
		},
	},
}

var words = func() map[string]string {
	m := make(map[string]string)
	for _, a := range aisles {
		for _, w := range a.words {
			if _, taken := m[w]; !taken {
				m[w] = a.category
			}
		}
	}
	return m
}()

// singulars returns the word followed by its likely singular forms.
func singulars(w string) []string {
	forms := []string{w}
	if len(w) < 4 || strings.HasSuffix(w, "ss") {
		return forms
	}
	if strings.HasSuffix(w, "ies") {
		forms = append(forms, w[:len(w)-3]+"y")
	}
	if strings.HasSuffix(w, "es") {
		forms = append(forms, w[:len(w)-2])
	}
	if strings.HasSuffix(w, "s") {
		forms = append(forms, w[:len(w)-1])
	}
	return forms
}

func tokenize(name string) []string {
	return strings.FieldsFunc(name, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r > 127)
	})
}

// Categorize returns the aisle category for an item name, or Other.
// Multi-word phrases are checked first, then the last matching word wins
// over earlier ones so "chocolate milk" lands in Dairy.
func Categorize(itemName string) string {
	name := strings.ToLower(strings.TrimSpace(itemName))
	if name == "" {
		return Other
	}

	for _, a := range aisles {
		for _, p := range a.phrases {
			if strings.Contains(name, p) {
				return a.category
			}
		}
	}

	tokens := tokenize(name)
	for i := len(tokens) - 1; i >= 0; i-- {
		for _, form := range singulars(tokens[i]) {
			if cat, ok := words[form]; ok {
				return cat
			}
		}
	}
	return Other
}
