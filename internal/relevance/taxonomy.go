package relevance

import (
	"strings"

	"github.com/trailpost/affiliate-engine/internal/models"
)

// Category is an activity category detected from keywords
type Category struct {
	Name     string
	Keywords []string
}

// SeasonKeywords maps a season to the words that signal it
type SeasonKeywords struct {
	Season   models.Season
	Keywords []string
}

// Taxonomy is the fixed keyword vocabulary used to analyze content.
// Keywords match as substrings of the normalized text; a leading space
// anchors a keyword to the start of a word and a trailing one to its end.
type Taxonomy struct {
	Categories []Category
	Seasons    []SeasonKeywords
}

// DefaultTaxonomy returns the built-in outdoor travel taxonomy
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		Categories: []Category{
			{Name: "hiking", Keywords: []string{"hike", "hiking", "trail", "mountain", "backpack", "boots", "trekking", "trek", "summit"}},
			{Name: "camping", Keywords: []string{"camp", "tent", "sleeping bag", "backcountry", "bivy", "overnight"}},
			{Name: "canyoneering", Keywords: []string{"canyon", "narrows", "slot", "rappel", "wading"}},
			{Name: "climbing", Keywords: []string{"climb", "boulder", "belay", "crag", "via ferrata"}},
			{Name: "skiing", Keywords: []string{" ski ", " skis ", " skiing", "snowboard", "powder", "chairlift"}},
			{Name: "water", Keywords: []string{"kayak", "paddle", "raft", "canoe", "snorkel", "river", "lake"}},
			{Name: "cycling", Keywords: []string{"bike", "biking", "cycling", "gravel ride"}},
			{Name: "photography", Keywords: []string{"photo", "camera", "sunrise", "sunset", "astrophotography"}},
			{Name: "wildlife", Keywords: []string{"wildlife", "safari", "birding", "whale"}},
		},
		Seasons: []SeasonKeywords{
			{Season: models.Spring, Keywords: []string{"spring", "wildflower", "bloom", " march", " april"}},
			{Season: models.Summer, Keywords: []string{"summer", " june", " july", " august", "heat"}},
			{Season: models.Fall, Keywords: []string{" fall ", "autumn", "foliage", " september", " october", " november"}},
			{Season: models.Winter, Keywords: []string{"winter", "snow", " ski ", " skiing", " december", " january", " february"}},
		},
	}
}

// Analysis is what the taxonomy found in one piece of content
type Analysis struct {
	Categories []string
	Seasons    []models.Season
}

// HasCategory reports whether name was detected
func (a Analysis) HasCategory(name string) bool {
	for _, c := range a.Categories {
		if c == name {
			return true
		}
	}
	return false
}

// HasSeason reports whether season was detected
func (a Analysis) HasSeason(season models.Season) bool {
	for _, s := range a.Seasons {
		if s == season {
			return true
		}
	}
	return false
}

// normalize lower-cases text and collapses every run of non-alphanumeric
// characters to one space, padded so word-anchored keywords can match at
// either end
func normalize(parts ...string) string {
	var b strings.Builder
	b.WriteByte(' ')
	space := true
	for _, part := range parts {
		for _, r := range strings.ToLower(part) {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r > 127 {
				b.WriteRune(r)
				space = false
				continue
			}
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return b.String()
}

// Analyze detects the categories and seasons present in content, in
// taxonomy order
func (t Taxonomy) Analyze(content models.Content) Analysis {
	parts := append([]string{content.Title, content.Description}, content.Tags...)
	text := normalize(parts...)

	var analysis Analysis
	for _, category := range t.Categories {
		if containsAny(text, category.Keywords) {
			analysis.Categories = append(analysis.Categories, category.Name)
		}
	}
	for _, season := range t.Seasons {
		if containsAny(text, season.Keywords) {
			analysis.Seasons = append(analysis.Seasons, season.Season)
		}
	}
	return analysis
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
