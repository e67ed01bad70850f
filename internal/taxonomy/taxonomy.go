// Package taxonomy holds the closed category/subcategory table and the
// per-category decay rates used by clustering and selection. Grounded on
// original_source's RSS_FEEDS_CONFIG and SmartArticleService.TIME_DECAY_RATES.
package taxonomy

// GeneralCategory is the fallback category when a subcategory is unknown.
const GeneralCategory = "General"

// WorldNewsTopic is the virtual topic name all world-news regions fold into.
const WorldNewsTopic = "World News"

// subcategoryToCategory is the closed taxonomy table: every subcategory
// the clustering judge may emit maps to exactly one category.
var subcategoryToCategory = map[string]string{
	// World News regions
	"Africa":        "World News",
	"Asia":          "World News",
	"Europe":        "World News",
	"Middle East":   "World News",
	"North America": "World News",
	"South America": "World News",
	"Oceania":       "World News",

	// Politics
	"US Politics":     "Politics",
	"International Relations": "Politics",
	"Elections":       "Politics",
	"Policy":          "Politics",

	// Business
	"Markets":    "Business",
	"Economy":    "Business",
	"Corporate":  "Business",
	"Finance":    "Business",

	// Technology
	"AI & Machine Learning": "Technology",
	"Consumer Tech":         "Technology",
	"Cybersecurity":         "Technology",
	"Startups":              "Technology",

	// Science & Environment
	"Climate":      "Science & Environment",
	"Space":        "Science & Environment",
	"Research":     "Science & Environment",
	"Environment":  "Science & Environment",

	// Sports
	"Tennis":     "Sports",
	"Football":   "Sports",
	"Basketball": "Sports",
	"Olympics":   "Sports",

	// Arts & Culture
	"Film":       "Arts & Culture",
	"Music":      "Arts & Culture",
	"Books":      "Arts & Culture",
	"Television": "Arts & Culture",

	// Health
	"Public Health": "Health",
	"Medicine":      "Health",
	"Mental Health": "Health",

	// Lifestyle
	"Travel": "Lifestyle",
	"Food":   "Lifestyle",
	"Wellness": "Lifestyle",
}

// worldNewsRegions is the set of subcategories that fold into the single
// virtual "World News" topic at script-orchestration time.
var worldNewsRegions = map[string]struct{}{
	"Africa": {}, "Asia": {}, "Europe": {}, "Middle East": {},
	"North America": {}, "South America": {}, "Oceania": {},
}

// IsWorldNewsRegion reports whether subcategory is one of the seven
// world-news regions.
func IsWorldNewsRegion(subcategory string) bool {
	_, ok := worldNewsRegions[subcategory]
	return ok
}

// CategoryFor derives the category for a subcategory. Unknown
// subcategories fall back to GeneralCategory with an empty subcategory,
// per spec §4.1 step 5.
func CategoryFor(subcategory string) (category string, resolvedSubcategory string) {
	if cat, ok := subcategoryToCategory[subcategory]; ok {
		return cat, subcategory
	}
	return GeneralCategory, ""
}

// DefaultDecayRates is the fixed per-category exponential decay table
// (spec §4.3), keyed by category name with a "default" fallback entry.
func DefaultDecayRates() map[string]float64 {
	return map[string]float64{
		"World News":            0.05,
		"Politics":              0.02,
		"Business":               0.025,
		"Technology":             0.01,
		"Science & Environment":  0.005,
		"Sports":                 0.03,
		"Arts & Culture":         0.005,
		"Health":                 0.008,
		"Lifestyle":              0.005,
		"default":                0.02,
	}
}

// DecayRate looks up the rate for category, falling back to the "default"
// entry in rates when category is absent.
func DecayRate(rates map[string]float64, category string) float64 {
	if r, ok := rates[category]; ok {
		return r
	}
	return rates["default"]
}
