package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/projectledger/internal/sequence"
)

type memoryCounter struct {
	values map[string]int64
}

func (c *memoryCounter) Increment(_ context.Context, prefix string, year int) (int64, error) {
	key := fmt.Sprintf("%s:%d", prefix, year)
	c.values[key]++
	return c.values[key], nil
}

func (c *memoryCounter) Raise(_ context.Context, prefix string, year int, floor int64) error {
	key := fmt.Sprintf("%s:%d", prefix, year)
	if c.values[key] < floor {
		c.values[key] = floor
	}
	return nil
}

func fixtureLister(codes map[string][]string) CodeLister {
	return func(_ context.Context, kind sequence.Kind) ([]string, error) {
		return codes[kind.Prefix], nil
	}
}

var legacy = map[string][]string{
	"PROJ": {"PROJ-2023-014", "PROJ-2024-002", "PROJ-2024-007", "PROJ-2024-x1"},
	"FACT": {"FACT-2024-031"},
}

func TestSeqBackfillDryRunLeavesCounters(t *testing.T) {
	counter := &memoryCounter{values: map[string]int64{}}
	cli, err := NewSeqCLI(fixtureLister(legacy), counter)
	require.NoError(t, err)

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := cli.BackfillCommand(context.Background(), SeqBackfillOptions{
		Prefixes:   []string{"proj"},
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Equal(t, 0, code, stderr.String())
	require.Empty(t, counter.values)

	var summary SeqBackfillSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, "dry", summary.Mode)
	require.Equal(t, []SeqBackfillRow{
		{Prefix: "PROJ", Year: 2023, Last: 14, Next: "PROJ-2023-015"},
		{Prefix: "PROJ", Year: 2024, Last: 7, Next: "PROJ-2024-008"},
	}, summary.Rows)
	require.Equal(t, []string{"PROJ-2024-x1"}, summary.Malformed)
}

func TestSeqBackfillApplyRaisesCounters(t *testing.T) {
	counter := &memoryCounter{values: map[string]int64{"FACT:2024": 40}}
	cli, err := NewSeqCLI(fixtureLister(legacy), counter)
	require.NoError(t, err)

	code := cli.BackfillCommand(context.Background(), SeqBackfillOptions{
		Apply:  true,
		Stdout: new(bytes.Buffer),
		Stderr: new(bytes.Buffer),
	})
	require.Equal(t, 0, code)
	require.EqualValues(t, 14, counter.values["PROJ:2023"])
	require.EqualValues(t, 7, counter.values["PROJ:2024"])
	// counters never move backwards
	require.EqualValues(t, 40, counter.values["FACT:2024"])
}

func TestSeqBackfillUnknownPrefix(t *testing.T) {
	cli, err := NewSeqCLI(fixtureLister(legacy), &memoryCounter{values: map[string]int64{}})
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	code := cli.BackfillCommand(context.Background(), SeqBackfillOptions{Prefixes: []string{"INV"}, Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), `unknown prefix "INV"`)
}
