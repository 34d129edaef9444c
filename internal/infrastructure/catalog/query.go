package catalog

import (
	"regexp"
	"strings"

	"github.com/shelfmatch/backend/internal/domain"
)

// Package-level compiled regex patterns for query cleaning
var (
	// Matches size/quantity patterns like "128 fl oz", "1 gallon", "16.9oz"
	sizePatternRegex = regexp.MustCompile(
		`(?i)\b\d+\.?\d*\s*(?:fl\s*oz|oz|ml|liters?|l|gallons?|gal|lbs?|pounds?|kg|grams?|g|ct|count|pk|pack|ea|each|qt|quart|pt|pint)\b`,
	)

	// Characters that break search backends behind nginx proxies
	specialCharsRegex = regexp.MustCompile(`[#%+@!^*()=\[\]{}<>|\\~` + "`" + `]`)

	multiSpaceRegex = regexp.MustCompile(`\s+`)
)

// retailNoiseWords are common retail terms that add noise to catalog searches
var retailNoiseWords = []string{
	"party size", "family size", "value pack", "bonus size",
	"club pack", "mega size", "snack size", "fun size",
	"share size", "king size", "travel size",
}

// BuildQuery builds a focused catalog search query from the item's extracted
// text attributes. Shelf-crop extractions are noisy (partial label reads,
// size fragments), so size info and retail noise are stripped and the brand
// is prepended only when it isn't already part of the name.
func BuildQuery(item domain.DetectionItem) string {
	name := cleanProductName(item.ProductName)

	if item.Brand != "" {
		brandLower := strings.ToLower(item.Brand)
		nameLower := strings.ToLower(name)
		if !strings.Contains(nameLower, brandLower) {
			name = strings.TrimSpace(item.Brand + " " + name)
		}
	}

	return strings.TrimSpace(name)
}

// cleanProductName strips noise from an extracted product name.
func cleanProductName(name string) string {
	// Take only text before the first comma (strip size/packaging info)
	if idx := strings.Index(name, ","); idx > 0 {
		name = name[:idx]
	}

	name = strings.ReplaceAll(name, "&", " and ")
	name = specialCharsRegex.ReplaceAllString(name, " ")
	name = sizePatternRegex.ReplaceAllString(name, " ")

	nameLower := strings.ToLower(name)
	for _, noise := range retailNoiseWords {
		if idx := strings.Index(nameLower, noise); idx >= 0 {
			name = name[:idx] + name[idx+len(noise):]
			nameLower = strings.ToLower(name)
		}
	}

	name = multiSpaceRegex.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}
