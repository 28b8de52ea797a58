package reflex

import (
	"regexp"
	"strings"

	"github.com/tsawler/prose/v3"
)

// placeMarker finds an explicit "at <place>" phrase at the end of an item list
var placeMarker = regexp.MustCompile(`(?i)\s+(?:at|bei|from|im|in the)\s+(.+)$`)

// itemSeparator splits "milk, eggs and bread" into items
var itemSeparator = regexp.MustCompile(`(?i)\s*,\s*|\s+(?:and|und|&)\s+`)

// splitPlace separates an explicit location from the rest of the text. Only
// an explicit marker counts; nothing is guessed from the items themselves.
func splitPlace(text string) (rest, place string) {
	loc := placeMarker.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, ""
	}
	rest = strings.TrimSpace(text[:loc[0]])
	phrase := strings.TrimSpace(text[loc[2]:loc[3]])
	return rest, narrowPlace(phrase)
}

// narrowPlace trims a place phrase down to the named entity inside it when
// prose finds one ("Edeka tomorrow" -> "Edeka")
func narrowPlace(phrase string) string {
	doc, err := prose.NewDocument(phrase)
	if err != nil {
		return phrase
	}
	for _, ent := range doc.Entities() {
		switch strings.ToUpper(ent.Label) {
		case "GPE", "ORG", "FAC", "LOC", "PERSON":
			if ent.Text != "" && strings.Contains(phrase, ent.Text) {
				return ent.Text
			}
		}
	}
	return phrase
}

// splitItems breaks an item list into separate titles
func splitItems(text string) []string {
	var items []string
	for _, part := range itemSeparator.Split(text, -1) {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}
