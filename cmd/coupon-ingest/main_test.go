package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFeed(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestNormalize(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "school-2024", want: "SCHOOL-2024", ok: true},
		{in: "  abc123  ", want: "ABC123", ok: true},
		{in: "short", ok: false},
		{in: "has space", ok: false},
		{in: "WAYTOOLONGFORAVOUCHER1", ok: false},
	} {
		got, ok := normalize(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestFindConfirmedCodes(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeFeed(t, dir, "a.gz", "DHAKA-001", "SYLHET-01", "ONLYINA1", "dhaka-001"),
		writeFeed(t, dir, "b.gz", "DHAKA-001", "KHULNA-01", "ONLYINB1"),
		writeFeed(t, dir, "c.gz", "SYLHET-01", "KHULNA-01", "DHAKA-001", "bad"),
	}

	ctx := context.Background()
	filters, err := buildBloomFilters(ctx, files, 1000)
	require.NoError(t, err)
	require.Len(t, filters, 3)

	codes, err := findConfirmedCodes(ctx, files, filters, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"DHAKA-001", "KHULNA-01", "SYLHET-01"}, codes)

	codes, err = findConfirmedCodes(ctx, files, filters, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"DHAKA-001"}, codes)
}

func TestStreamGzFile_Cancelled(t *testing.T) {
	path := writeFeed(t, t.TempDir(), "a.gz", "CODE-0001")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := streamGzFile(ctx, path, func(string) {})
	require.ErrorIs(t, err, context.Canceled)
}
