package enrich

import (
	"context"
	"regexp"

	"github.com/tutordex/core/internal/model"
)

var postalCodeRE = regexp.MustCompile(`\b\d{6}\b`)

// Geocoder resolves an address string to a best-effort postal code,
// mirroring the optional external geocoder fallback. geocode.Client retries
// transient failures but keeps no in-process cache; lookups are cached only
// when it is wrapped in cache.RedisGeocoderCache.
type Geocoder interface {
	Lookup(ctx context.Context, address string) (postalCode string, ok bool, err error)
}

// FillPostalCodes scans rawText for explicit 6-digit postal codes when the
// extractor didn't emit any, installing them de-duplicated and
// order-preserving. When still empty and an address is present, geocoder
// (if non-nil) is consulted and the first result is written into
// PostalCodesEstimated.
func FillPostalCodes(ctx context.Context, a *model.Assignment, rawText string, geocoder Geocoder) {
	if len(a.PostalCodes) == 0 {
		seen := map[string]bool{}
		var found []string
		for _, m := range postalCodeRE.FindAllString(rawText, -1) {
			if !seen[m] {
				seen[m] = true
				found = append(found, m)
			}
		}
		a.PostalCodes = found
	}

	if len(a.PostalCodes) > 0 || len(a.PostalCodesEstimated) > 0 || geocoder == nil {
		return
	}
	if len(a.Addresses) == 0 {
		return
	}
	code, ok, err := geocoder.Lookup(ctx, a.Addresses[0])
	if err != nil || !ok || code == "" {
		return
	}
	a.PostalCodesEstimated = []string{code}
}
