package rates

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/trailpost/affiliate-engine/internal/models"
)

// rateEntry is the on-disk shape of one rate
type rateEntry struct {
	Kind        string  `koanf:"kind"`
	Amount      float64 `koanf:"amount"`
	OnePerClick bool    `koanf:"one_per_click"`
}

// tableFile is the on-disk shape of a rate table:
//
//	default:
//	  kind: percentage
//	  amount: 0.03
//	vendors:
//	  rei: {kind: percentage, amount: 0.05}
//	  alltrails: {kind: flat, amount: 25, one_per_click: true}
type tableFile struct {
	Default rateEntry            `koanf:"default"`
	Vendors map[string]rateEntry `koanf:"vendors"`
}

func (e rateEntry) rate() Rate {
	return Rate{
		Kind:        models.RateKind(e.Kind),
		Amount:      decimal.NewFromFloat(e.Amount),
		OnePerClick: e.OnePerClick,
	}
}

func entryFor(r Rate) rateEntry {
	return rateEntry{Kind: string(r.Kind), Amount: r.Amount.InexactFloat64(), OnePerClick: r.OnePerClick}
}

// Load builds a Table from the built-in defaults overlaid with the YAML file
// at path. An empty path yields the defaults. Each vendor entry in the file,
// and its default entry, replaces the built-in one whole: keys left out of
// a file entry take their zero value rather than the built-in value.
func Load(path string, fallback Rate) (*Table, error) {
	k := koanf.New(".")

	defaults := tableFile{Default: entryFor(fallback), Vendors: map[string]rateEntry{}}
	for vendor, rate := range DefaultTable(fallback).rates {
		defaults.Vendors[string(vendor)] = entryFor(rate)
	}
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load default rates: %w", err)
	}

	var parsed tableFile
	if err := k.Unmarshal("", &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse default rates: %w", err)
	}

	if path != "" {
		fk := koanf.New(".")
		if err := fk.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load rate table %s: %w", path, err)
		}
		var overlay tableFile
		if err := fk.Unmarshal("", &overlay); err != nil {
			return nil, fmt.Errorf("failed to parse rate table %s: %w", path, err)
		}
		if fk.Exists("default") {
			parsed.Default = overlay.Default
		}
		for name, entry := range overlay.Vendors {
			parsed.Vendors[name] = entry
		}
	}

	table := make(map[models.Vendor]Rate, len(parsed.Vendors))
	for name, entry := range parsed.Vendors {
		vendor, known := models.ParseVendor(name)
		if !known {
			logrus.WithField("vendor", name).Warn("Rate table entry for vendor outside the configured set")
		}
		table[vendor] = entry.rate()
	}

	return NewTable(table, parsed.Default.rate())
}

// Watch reloads the rate table whenever the file at path changes and swaps
// it into holder. A file that fails to load leaves the active table intact.
// The returned function stops watching.
func Watch(path string, fallback Rate, holder *Holder) (func(), error) {
	provider := file.Provider(path)
	err := provider.Watch(func(event interface{}, err error) {
		if err != nil {
			logrus.Errorf("Rate table watch error: %v", err)
			return
		}
		table, err := Load(path, fallback)
		if err != nil {
			logrus.Errorf("Rate table reload rejected: %v", err)
			return
		}
		holder.Swap(table)
		logrus.Infof("Rate table reloaded from %s (%d vendors)", path, table.Len())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch rate table %s: %w", path, err)
	}
	return func() {
		if err := provider.Unwatch(); err != nil {
			logrus.Debugf("Rate table unwatch: %v", err)
		}
	}, nil
}
