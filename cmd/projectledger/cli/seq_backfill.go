package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/odyssey-erp/projectledger/internal/sequence"
)

// CodeLister returns every stored code of a kind.
type CodeLister func(ctx context.Context, kind sequence.Kind) ([]string, error)

// SeqCLI seeds code counters from rows that predate the code_sequences table.
type SeqCLI struct {
	list    CodeLister
	counter sequence.Counter
	gen     *sequence.Generator
}

// NewSeqCLI builds the helper.
func NewSeqCLI(list CodeLister, counter sequence.Counter) (*SeqCLI, error) {
	if list == nil || counter == nil {
		return nil, errors.New("seq cli: lister and counter required")
	}
	return &SeqCLI{list: list, counter: counter, gen: sequence.NewGenerator(nil)}, nil
}

// SeqBackfillOptions configures the backfill command execution.
type SeqBackfillOptions struct {
	// Prefixes restricts the run, e.g. PROJ or FACT. Empty means every kind.
	Prefixes   []string
	Apply      bool
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// SeqBackfillRow reports the counter state for one (prefix, year).
type SeqBackfillRow struct {
	Prefix string `json:"prefix"`
	Year   int    `json:"year"`
	Last   int64  `json:"last"`
	Next   string `json:"next"`
}

// SeqBackfillSummary captures the structured reporting outcome.
type SeqBackfillSummary struct {
	Mode      string           `json:"mode"`
	Rows      []SeqBackfillRow `json:"rows"`
	Malformed []string         `json:"malformed,omitempty"`
}

// BackfillCommand scans stored codes and, with Apply, raises each counter to the
// last existing number. It returns a process exit code.
func (c *SeqCLI) BackfillCommand(ctx context.Context, opts SeqBackfillOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	kinds, err := selectKinds(opts.Prefixes)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "seq backfill: %v\n", err)
		return 1
	}
	summary := SeqBackfillSummary{Mode: "dry", Rows: []SeqBackfillRow{}}
	if opts.Apply {
		summary.Mode = "apply"
	}
	for _, kind := range kinds {
		codes, err := c.list(ctx, kind)
		if err != nil {
			fmt.Fprintf(opts.Stderr, "seq backfill: list %s: %v\n", kind.Prefix, err)
			return 1
		}
		valid, years, malformed := splitCodes(kind, codes)
		summary.Malformed = append(summary.Malformed, malformed...)
		for _, year := range years {
			var last int64
			if opts.Apply {
				last, err = c.gen.Seed(ctx, c.counter, kind, year, valid)
			} else {
				last, err = kind.LastFromExisting(year, valid)
			}
			if err != nil {
				fmt.Fprintf(opts.Stderr, "seq backfill: %s %d: %v\n", kind.Prefix, year, err)
				return 1
			}
			summary.Rows = append(summary.Rows, SeqBackfillRow{
				Prefix: kind.Prefix,
				Year:   year,
				Last:   last,
				Next:   kind.Format(year, last+1),
			})
		}
	}

	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			fmt.Fprintf(opts.Stderr, "seq backfill: encode: %v\n", err)
			return 1
		}
		return 0
	}
	for _, row := range summary.Rows {
		fmt.Fprintf(opts.Stdout, "%-5s %d last=%d next=%s\n", row.Prefix, row.Year, row.Last, row.Next)
	}
	for _, code := range summary.Malformed {
		fmt.Fprintf(opts.Stderr, "seq backfill: skipped malformed code %q\n", code)
	}
	if !opts.Apply {
		fmt.Fprintln(opts.Stdout, "dry run: pass --apply to raise counters")
	}
	return 0
}

func selectKinds(prefixes []string) ([]sequence.Kind, error) {
	if len(prefixes) == 0 {
		return sequence.Kinds(), nil
	}
	kinds := make([]sequence.Kind, 0, len(prefixes))
	for _, p := range prefixes {
		kind, ok := sequence.KindByPrefix(strings.ToUpper(strings.TrimSpace(p)))
		if !ok {
			return nil, fmt.Errorf("unknown prefix %q", p)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

func splitCodes(kind sequence.Kind, codes []string) (valid []string, years []int, malformed []string) {
	seen := make(map[int]bool)
	for _, code := range codes {
		year, _, err := kind.Parse(code)
		if err != nil {
			malformed = append(malformed, code)
			continue
		}
		valid = append(valid, code)
		if !seen[year] {
			seen[year] = true
			years = append(years, year)
		}
	}
	sort.Ints(years)
	return valid, years, malformed
}
