package models

import "strings"

// Vendor identifies an affiliate program partner
type Vendor string

const (
	VendorAmazon       Vendor = "amazon"
	VendorREI          Vendor = "rei"
	VendorBackcountry  Vendor = "backcountry"
	VendorGetYourGuide Vendor = "getyourguide"
	VendorViator       Vendor = "viator"
	VendorAllTrails    Vendor = "alltrails"
)

// Vendors lists every vendor the affiliate program is configured for
var Vendors = []Vendor{
	VendorAmazon,
	VendorREI,
	VendorBackcountry,
	VendorGetYourGuide,
	VendorViator,
	VendorAllTrails,
}

// ParseVendor normalizes a raw vendor name. The second return value reports
// whether the vendor belongs to the configured set.
func ParseVendor(raw string) (Vendor, bool) {
	v := Vendor(strings.ToLower(strings.TrimSpace(raw)))
	return v, v.Known()
}

// Known reports whether v is one of the configured vendors
func (v Vendor) Known() bool {
	for _, known := range Vendors {
		if v == known {
			return true
		}
	}
	return false
}

func (v Vendor) String() string {
	return string(v)
}
