package limits

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/adserve-lab/chargecounter/internal/core/counter"
)

func writeLimits(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestFileSystemSource_Load(t *testing.T) {
	dir := t.TempDir()
	writeLimits(t, dir, "limits.yaml", `
timezone: America/New_York
campaigns:
  camp-1:
    budget: "500.00"
groups:
  grp-1:
    budget: "100.00"
    caps:
      daily: 1000
      total: 50000
`)

	src, err := NewFileSystemSource(dir)
	require.NoError(t, err)
	require.Equal(t, 2, src.Count())
	require.Equal(t, "America/New_York", src.Location().String())

	budget, ok := src.CampaignBudget("camp-1")
	require.True(t, ok)
	require.True(t, decimal.RequireFromString("500.00").Equal(budget))

	budget, ok = src.GroupBudget("grp-1")
	require.True(t, ok)
	require.True(t, decimal.RequireFromString("100.00").Equal(budget))

	cap, ok := src.GroupCap("grp-1", counter.ControlDaily)
	require.True(t, ok)
	require.Equal(t, int64(1000), cap)

	_, ok = src.GroupCap("grp-1", counter.ControlHourly)
	require.False(t, ok)

	_, ok = src.CampaignBudget("camp-unknown")
	require.False(t, ok)
}

func TestFileSystemSource_MergesMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	writeLimits(t, dir, "a.yaml", "campaigns:\n  camp-1:\n    budget: \"10\"\n")
	writeLimits(t, dir, "b.yaml", "campaigns:\n  camp-2:\n    budget: \"20\"\n")

	src, err := NewFileSystemSource(dir)
	require.NoError(t, err)
	require.Equal(t, 2, src.Count())
}

func TestFileSystemSource_Errors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{
			name: "duplicate campaign across files",
			files: map[string]string{
				"a.yaml": "campaigns:\n  camp-1:\n    budget: \"10\"\n",
				"b.yaml": "campaigns:\n  camp-1:\n    budget: \"20\"\n",
			},
		},
		{
			name:  "malformed budget",
			files: map[string]string{"a.yaml": "campaigns:\n  camp-1:\n    budget: \"lots\"\n"},
		},
		{
			name:  "negative budget",
			files: map[string]string{"a.yaml": "campaigns:\n  camp-1:\n    budget: \"-5\"\n"},
		},
		{
			name:  "unknown cap control type",
			files: map[string]string{"a.yaml": "groups:\n  grp-1:\n    caps:\n      weekly: 10\n"},
		},
		{
			name:  "negative cap",
			files: map[string]string{"a.yaml": "groups:\n  grp-1:\n    caps:\n      daily: -1\n"},
		},
		{
			name:  "unknown timezone",
			files: map[string]string{"a.yaml": "timezone: Mars/Olympus\n"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tc.files {
				writeLimits(t, dir, name, content)
			}
			_, err := NewFileSystemSource(dir)
			require.Error(t, err)
		})
	}
}

func TestFileSystemSource_MissingDirIsEmpty(t *testing.T) {
	src, err := NewFileSystemSource(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	require.Equal(t, 0, src.Count())
}
