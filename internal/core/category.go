package core

import (
	"errors"
	"sort"
	"strings"
)

// OtherCategory is the selector value that switches to free-form text.
const OtherCategory = "기타"

// ExpenseCategories are offered by the entry and budget forms.
var ExpenseCategories = []string{"그로서리", "외식", "주유+주차", "고정비용"}

// IncomeCategories are offered for income entries.
var IncomeCategories = []string{"급여"}

var ErrEmptyCategory = errors.New("empty category")

// ResolveCategory returns the category to store for a form submission.
// Selecting OtherCategory (or "other") uses the trimmed custom text,
// which must not be empty. Any other selection is used as given.
func ResolveCategory(selected, customText string) (string, error) {
	selected = strings.TrimSpace(selected)
	if IsOtherCategory(selected) {
		custom := strings.TrimSpace(customText)
		if custom == "" {
			return "", ErrEmptyCategory
		}
		return custom, nil
	}
	if selected == "" {
		return "", ErrEmptyCategory
	}
	return selected, nil
}

func IsOtherCategory(s string) bool {
	return s == OtherCategory || strings.EqualFold(s, "other")
}

// IsPredefined reports whether category is one of the fixed choices.
// Edit forms show anything else as OtherCategory plus custom text.
func IsPredefined(category string) bool {
	for _, c := range ExpenseCategories {
		if c == category {
			return true
		}
	}
	for _, c := range IncomeCategories {
		if c == category {
			return true
		}
	}
	return false
}

// FilterCategories merges the fixed expense categories with the ones in use,
// deduplicated and sorted.
func FilterCategories(used []string) []string {
	set := make(map[string]struct{}, len(ExpenseCategories)+len(used))
	for _, c := range ExpenseCategories {
		set[c] = struct{}{}
	}
	for _, c := range used {
		if c = strings.TrimSpace(c); c != "" {
			set[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
