package relevance

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/trailpost/affiliate-engine/internal/models"
)

// candidateEntry is the on-disk shape of one catalog entry:
//
//	candidates:
//	  - vendor: rei
//	    product_id: "2236570"
//	    name: Flash 22 Daypack
//	    kind: gear
//	    categories: [hiking]
//	    seasons: [spring, summer]
//	    price: 49.95
//	    domain_specific: true
type candidateEntry struct {
	Vendor         string   `koanf:"vendor"`
	ProductID      string   `koanf:"product_id"`
	Name           string   `koanf:"name"`
	Kind           string   `koanf:"kind"`
	Categories     []string `koanf:"categories"`
	Seasons        []string `koanf:"seasons"`
	Price          float64  `koanf:"price"`
	DomainSpecific bool     `koanf:"domain_specific"`
}

func (e candidateEntry) candidate() (models.Candidate, error) {
	vendor, ok := models.ParseVendor(e.Vendor)
	if !ok {
		return models.Candidate{}, fmt.Errorf("unknown vendor %q", e.Vendor)
	}
	if strings.TrimSpace(e.ProductID) == "" {
		return models.Candidate{}, errors.New("product_id is required")
	}
	kind := models.CandidateKind(strings.ToLower(e.Kind))
	if kind != models.KindGear && kind != models.KindActivity {
		return models.Candidate{}, fmt.Errorf("kind must be gear or activity, got %q", e.Kind)
	}
	if len(e.Categories) == 0 {
		return models.Candidate{}, errors.New("at least one category is required")
	}

	c := models.Candidate{
		Vendor:         vendor,
		ProductID:      e.ProductID,
		Name:           e.Name,
		Kind:           kind,
		Price:          decimal.NewFromFloat(e.Price),
		DomainSpecific: e.DomainSpecific,
	}
	for _, category := range e.Categories {
		c.Categories = append(c.Categories, strings.ToLower(strings.TrimSpace(category)))
	}
	for _, season := range e.Seasons {
		c.Seasons = append(c.Seasons, models.Season(strings.ToLower(strings.TrimSpace(season))))
	}
	return c, nil
}

// LoadCatalog reads the candidate catalog YAML at path. Entries that fail
// validation are skipped with a warning; a missing file yields an empty
// catalog.
func LoadCatalog(path string) ([]models.Candidate, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		logrus.Warnf("Recommendation catalog %s not found, starting with an empty catalog", path)
		return nil, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load catalog %s: %w", path, err)
	}

	var entries []candidateEntry
	if err := k.Unmarshal("candidates", &entries); err != nil {
		return nil, fmt.Errorf("failed to decode catalog %s: %w", path, err)
	}

	candidates := make([]models.Candidate, 0, len(entries))
	for i, entry := range entries {
		c, err := entry.candidate()
		if err != nil {
			logrus.Warnf("Skipping catalog entry %d (%s): %v", i, entry.ProductID, err)
			continue
		}
		candidates = append(candidates, c)
	}

	logrus.Infof("Loaded %d recommendation candidates from %s", len(candidates), path)
	return candidates, nil
}
