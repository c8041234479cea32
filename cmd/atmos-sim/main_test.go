package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const distro = "../../configs/scenarios/distro.toml"

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(t.Context())
	return out.String(), errOut.String(), err
}

func TestRunPrintsSummary(t *testing.T) {
	out, logs, err := execute(t, "run", "--scenario", distro, "--mode", "accelerated", "--ticks", "3")
	require.NoError(t, err)
	assert.Contains(t, out, `scenario distro: 3 ticks`)
	assert.Contains(t, out, "pipe moles")
	assert.Contains(t, logs, "simulation stopped")
}

func TestRunNeedsScenario(t *testing.T) {
	_, _, err := execute(t, "run", "--mode", "accelerated", "--ticks", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--scenario is required")
}

func TestRunRejectsBadFlags(t *testing.T) {
	_, _, err := execute(t, "run", "--scenario", distro, "--mode", "sideways")
	require.Error(t, err)

	_, _, err = execute(t, "run", "--scenario", distro, "--dt", "0")
	require.Error(t, err)
}

func TestRunReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "atmos.yaml")
	abs, err := filepath.Abs(distro)
	require.NoError(t, err)
	body := "scenario: " + abs + "\nmode: accelerated\nticks: 2\nlog:\n  format: json\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))

	out, logs, err := execute(t, "run", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "2 ticks")
	assert.True(t, strings.HasPrefix(strings.TrimSpace(logs), "{"), "json logs expected, got %q", logs)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte(`
name = "bad"
[[entity]]
kind = "vent_pump"
name = "v"
pos = [0, 0]
dir = "N"
flux = 3
`), 0o644))
	orphan := filepath.Join(dir, "orphan.toml")
	require.NoError(t, os.WriteFile(orphan, []byte(`
name = "orphan"
[[region]]
from = [0, 0]
to = [0, 0]
air = "station"
[[entity]]
kind = "canister"
name = "can"
pos = [0, 0]
gas = "N2"
anchored = true
`), 0o644))

	out, errOut, err := execute(t, "validate", distro)
	require.NoError(t, err)
	assert.Contains(t, out, `ok   `+distro+`: "distro"`)
	assert.Empty(t, errOut)

	out, errOut, err = execute(t, "validate", distro, bad, orphan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 3 scenarios invalid")
	assert.Contains(t, out, "ok   "+distro)
	assert.Contains(t, errOut, "FAIL "+bad)
	assert.Contains(t, errOut, "FAIL "+orphan)
}

func TestKinds(t *testing.T) {
	out, _, err := execute(t, "kinds")
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	assert.Contains(t, lines, "vent_pump")
	assert.Contains(t, lines, "canister")
	assert.Contains(t, out, "directions: any of NSEW")
}
