package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawACSV = `Order ID,Order Number,Customer Email,Customer Name,Product Name,Quantity,Unit Price,Grand Total,Net Revenue,Created At
A-1,1001,pat@example.com,Pat Doe,Annual Report,1,50,50,50,2024-03-01 10:00:00
A-2,1002,fraud@blocked.example,Bad Actor,Annual Report,1,50,50,50,2024-03-02 10:00:00
`

const rawBCSV = `Id,Name,Email,Billing Name,Lineitem name,Lineitem quantity,Lineitem price,Total,Created at
5001,#5001,kim@example.com,Kim Lee,Filing,1,40,40,2024-03-03 09:00:00
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestBuildCommand(t *testing.T) {
	dir := t.TempDir()
	rawA := writeFile(t, dir, "a.csv", rawACSV)
	rawB := writeFile(t, dir, "b.csv", rawBCSV)
	bannedFile := writeFile(t, dir, "banned.txt", "# chargebacks\nblocked.example\n\n")
	out := filepath.Join(dir, "clean.csv")

	var stdout bytes.Buffer
	cmd := newRootCmd(&stdout)
	cmd.SetArgs([]string{"build", "--raw-a", rawA, "--raw-b", rawB, "--banned", bannedFile, "--out", out, "--chunk-size", "1", "--log-level", "warn"})
	require.NoError(t, cmd.Execute())

	var res map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &res))
	assert.Equal(t, "completed", res["status"])
	assert.EqualValues(t, 2, res["written"])
	assert.EqualValues(t, 1, res["excluded"])
	assert.Equal(t, out, res["output"])

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "platform,"))
	assert.Contains(t, lines[1], "pat@example.com")
	assert.Contains(t, lines[2], "kim@example.com")
	assert.NotContains(t, string(data), "blocked.example")
}

func TestBuildCommand_BadBannedLine(t *testing.T) {
	dir := t.TempDir()
	rawA := writeFile(t, dir, "a.csv", rawACSV)
	rawB := writeFile(t, dir, "b.csv", rawBCSV)
	bannedFile := writeFile(t, dir, "banned.txt", "ok.example\nlocalhost\n")

	cmd := newRootCmd(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"build", "--raw-a", rawA, "--raw-b", rawB, "--banned", bannedFile, "--out", filepath.Join(dir, "x.csv")})
	err := cmd.Execute()
	assert.ErrorContains(t, err, "banned.txt:2")
}

func TestBuildCommand_RequiresInputs(t *testing.T) {
	cmd := newRootCmd(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"build", "--raw-a", "a.csv"})
	assert.ErrorContains(t, cmd.Execute(), "raw-b")
}

func TestBackfillCommand(t *testing.T) {
	dir := t.TempDir()
	rawA := writeFile(t, dir, "a.csv", rawACSV)
	rawB := writeFile(t, dir, "b.csv", rawBCSV)
	out := filepath.Join(dir, "clean.csv")

	build := newRootCmd(&bytes.Buffer{})
	build.SetArgs([]string{"build", "--raw-a", rawA, "--raw-b", rawB, "--out", out, "--log-level", "warn"})
	require.NoError(t, build.Execute())

	// Blank the date of the first data row.
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(string(data), "\n")
	cells := strings.Split(lines[1], ",")
	cells[3] = ""
	lines[1] = strings.Join(cells, ",")
	require.NoError(t, os.WriteFile(out, []byte(strings.Join(lines, "\n")), 0644))

	var stdout bytes.Buffer
	cmd := newRootCmd(&stdout)
	cmd.SetArgs([]string{"backfill-dates", "--raw-a", rawA, "--raw-b", rawB, "--clean-master", out, "--log-level", "warn"})
	require.NoError(t, cmd.Execute())

	var res map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &res))
	assert.EqualValues(t, 1, res["filled"])

	data, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, strings.Split(string(data), "\n")[1], "2024-03-01")
}
