package relevance

import (
	"math"
	"sort"

	"github.com/trailpost/affiliate-engine/internal/models"
)

// Weights are the contributions summed into a relevance score
type Weights struct {
	DomainSpecific float64
	CategoryMatch  float64
	PerSeason      float64
	BudgetFit      float64
}

// DefaultWeights returns the standard scoring weights
func DefaultWeights() Weights {
	return Weights{
		DomainSpecific: 0.3,
		CategoryMatch:  0.4,
		PerSeason:      0.2,
		BudgetFit:      0.1,
	}
}

// Limits caps how many items of each kind a ranking keeps
type Limits struct {
	Gear       int
	Activities int
}

// DefaultLimits keeps six gear items and four activities
func DefaultLimits() Limits {
	return Limits{Gear: 6, Activities: 4}
}

// Scorer ranks candidates against content. It holds no mutable state and
// is safe for concurrent use.
type Scorer struct {
	taxonomy Taxonomy
	weights  Weights
	limits   Limits
}

// NewScorer creates a scorer with the given taxonomy, weights and limits
func NewScorer(taxonomy Taxonomy, weights Weights, limits Limits) *Scorer {
	return &Scorer{taxonomy: taxonomy, weights: weights, limits: limits}
}

// NewDefaultScorer creates a scorer with the built-in taxonomy and defaults
func NewDefaultScorer() *Scorer {
	return NewScorer(DefaultTaxonomy(), DefaultWeights(), DefaultLimits())
}

// Analyze exposes the taxonomy analysis of content
func (s *Scorer) Analyze(content models.Content) Analysis {
	return s.taxonomy.Analyze(content)
}

type ranked struct {
	item  models.RecommendationItem
	index int
}

// Score ranks the candidates tagged with a category detected in content.
// Results are sorted by score descending, ties keep pool order, and each
// kind is truncated to its limit. prefs may be nil.
func (s *Scorer) Score(content models.Content, pool []models.Candidate, prefs *models.UserPreferences) []models.RecommendationItem {
	analysis := s.taxonomy.Analyze(content)
	if len(analysis.Categories) == 0 {
		return []models.RecommendationItem{}
	}

	var gear, activities []ranked
	for i, candidate := range pool {
		category, ok := firstDetected(candidate.Categories, analysis)
		if !ok {
			continue
		}

		entry := ranked{
			item: models.RecommendationItem{
				SourceCategory: category,
				Candidate:      candidate,
				RelevanceScore: s.scoreCandidate(candidate, analysis, prefs),
			},
			index: i,
		}
		if candidate.Kind == models.KindActivity {
			activities = append(activities, entry)
		} else {
			gear = append(gear, entry)
		}
	}

	gear = topN(gear, s.limits.Gear)
	activities = topN(activities, s.limits.Activities)

	merged := append(gear, activities...)
	sortRanked(merged)

	items := make([]models.RecommendationItem, 0, len(merged))
	for _, r := range merged {
		items = append(items, r.item)
	}
	return items
}

func (s *Scorer) scoreCandidate(c models.Candidate, analysis Analysis, prefs *models.UserPreferences) float64 {
	score := s.weights.CategoryMatch
	if c.DomainSpecific {
		score += s.weights.DomainSpecific
	}
	for _, season := range c.Seasons {
		if analysis.HasSeason(season) {
			score += s.weights.PerSeason
		}
	}
	if prefs != nil && prefs.Budget.Valid && c.Price.LessThanOrEqual(prefs.Budget.Decimal) {
		score += s.weights.BudgetFit
	}

	score = math.Max(0, math.Min(1, score))
	// strip float noise so equal sums compare equal
	return math.Round(score*1000) / 1000
}

func firstDetected(categories []string, analysis Analysis) (string, bool) {
	for _, c := range categories {
		if analysis.HasCategory(c) {
			return c, true
		}
	}
	return "", false
}

func sortRanked(items []ranked) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].item.RelevanceScore != items[j].item.RelevanceScore {
			return items[i].item.RelevanceScore > items[j].item.RelevanceScore
		}
		return items[i].index < items[j].index
	})
}

func topN(items []ranked, n int) []ranked {
	sortRanked(items)
	if n >= 0 && len(items) > n {
		return items[:n]
	}
	return items
}
