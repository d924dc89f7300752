package constants

import (
	"strings"
)

// ItemType is the fixed category set a classification may resolve to.
type ItemType string

const (
	Event    ItemType = "event"
	Contact  ItemType = "contact"
	Expense  ItemType = "expense"
	Address  ItemType = "address"
	Note     ItemType = "note"
	Document ItemType = "document"
)

var allItemTypes = []ItemType{
	Event,
	Contact,
	Expense,
	Address,
	Note,
	Document,
}

func AsStringSlice() []string {
	result := make([]string, len(allItemTypes))
	for i, t := range allItemTypes {
		result[i] = string(t)
	}
	return result
}

// Canonicalize maps a free-text label onto the fixed type set.
// The second return is false when the label was not recognized.
func Canonicalize(input string) (ItemType, bool) {
	if input == "" {
		return Note, false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))

	synonyms := map[string]ItemType{
		"calendar":      Event,
		"meeting":       Event,
		"appointment":   Event,
		"person":        Contact,
		"business card": Contact,
		"receipt":       Expense,
		"invoice":       Expense,
		"bill":          Expense,
		"location":      Address,
		"place":         Address,
		"memo":          Note,
		"text":          Note,
		"file":          Document,
		"paper":         Document,
	}

	if t, ok := synonyms[normalized]; ok {
		return t, true
	}

	for _, t := range allItemTypes {
		if normalized == string(t) {
			return t, true
		}
	}

	return Note, false
}
