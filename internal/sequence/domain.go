// Package sequence allocates year-scoped human readable codes such as PROJ-2024-007.
package sequence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind describes one family of codes.
type Kind struct {
	Prefix string
	Width  int
}

// Code families in use.
var (
	KindProject       = Kind{Prefix: "PROJ", Width: 3}
	KindQuote         = Kind{Prefix: "DEV", Width: 3}
	KindInvoice       = Kind{Prefix: "FACT", Width: 3}
	KindProduct       = Kind{Prefix: "PROD", Width: 4}
	KindPurchaseOrder = Kind{Prefix: "ACH", Width: 4}
)

// Kinds lists every registered code family.
func Kinds() []Kind {
	return []Kind{KindProject, KindQuote, KindInvoice, KindProduct, KindPurchaseOrder}
}

// KindByPrefix resolves a registered kind.
func KindByPrefix(prefix string) (Kind, bool) {
	for _, k := range Kinds() {
		if k.Prefix == prefix {
			return k, true
		}
	}
	return Kind{}, false
}

// YearPrefix returns "{PREFIX}-{YEAR}-".
func (k Kind) YearPrefix(year int) string {
	return fmt.Sprintf("%s-%d-", k.Prefix, year)
}

// Format renders the n-th code of the year.
func (k Kind) Format(year int, n int64) string {
	return fmt.Sprintf("%s%0*d", k.YearPrefix(year), k.Width, n)
}

// Parse extracts year and number from a code of this kind.
func (k Kind) Parse(code string) (year int, n int64, err error) {
	parts := strings.Split(code, "-")
	if len(parts) != 3 || parts[0] != k.Prefix {
		return 0, 0, fmt.Errorf("sequence: malformed %s code %q", k.Prefix, code)
	}
	year, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("sequence: malformed year in %q: %w", code, err)
	}
	n, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("sequence: malformed number in %q: %w", code, err)
	}
	return year, n, nil
}

// LastFromExisting scans codes for the year and returns the number carried by the
// lexicographically last match, or 0 when none match.
func (k Kind) LastFromExisting(year int, existing []string) (int64, error) {
	prefix := k.YearPrefix(year)
	matches := make([]string, 0, len(existing))
	for _, code := range existing {
		if strings.HasPrefix(code, prefix) {
			matches = append(matches, code)
		}
	}
	if len(matches) == 0 {
		return 0, nil
	}
	sort.Strings(matches)
	_, n, err := k.Parse(matches[len(matches)-1])
	if err != nil {
		return 0, err
	}
	return n, nil
}

// NextFromExisting is the scan-and-increment allocation over a snapshot of codes.
func (k Kind) NextFromExisting(year int, existing []string) (string, error) {
	last, err := k.LastFromExisting(year, existing)
	if err != nil {
		return "", err
	}
	return k.Format(year, last+1), nil
}
