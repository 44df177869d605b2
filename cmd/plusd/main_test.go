package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plus-control/plusd/internal/device/bkoem/sim"
)

// isolate keeps config, audit and journal files inside the test directory.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PLUSD_CONFIG", "")
	t.Setenv("PLUSD_AUDIT_DIR", filepath.Join(dir, "audit"))
	return dir
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func decodeLines(t *testing.T, out string) []map[string]any {
	t.Helper()
	var replies []map[string]any
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m), sc.Text())
		replies = append(replies, m)
	}
	return replies
}

func TestCommandsListsDefaults(t *testing.T) {
	out, err := run(t, "", "commands")
	require.NoError(t, err)
	for _, name := range []string{"Get", "ExamData", "RegistrationData", "Version", "RequestDeviceIds", "SendText", "GetImage"} {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, out, "Send command to the device.")
}

func TestVersionFlag(t *testing.T) {
	out, err := run(t, "", "--version")
	require.NoError(t, err)
	assert.Equal(t, "plusd dev\n", out)
}

func TestExecVersion(t *testing.T) {
	isolate(t)

	out, err := run(t, "", "exec", "--name", "Version", "--structured")
	require.NoError(t, err)

	replies := decodeLines(t, out)
	require.Len(t, replies, 1)
	assert.Equal(t, "SUCCESS", replies[0]["status"])
	assert.Equal(t, "Version", replies[0]["commandName"])
	assert.Equal(t, map[string]any{"server": "dev", "client": ""}, replies[0]["payload"])
}

func TestExecUnknownCommand(t *testing.T) {
	isolate(t)

	out, err := run(t, "", "exec", "--name", "Frobnicate")
	assert.ErrorContains(t, err, "UNKNOWN_COMMAND")

	replies := decodeLines(t, out)
	require.Len(t, replies, 1)
	assert.Equal(t, "FAIL", replies[0]["status"])
	assert.Contains(t, replies[0]["message"], "Error attempting to process command.")
}

func TestExecRequiresName(t *testing.T) {
	isolate(t)
	_, err := run(t, "", "exec")
	assert.ErrorContains(t, err, "--name is required")
}

func TestServeAgainstSimulator(t *testing.T) {
	dir := isolate(t)

	s := sim.New(sim.DefaultOptions())
	require.NoError(t, s.Start("127.0.0.1:0"))
	t.Cleanup(func() { _ = s.Close() })

	journal := filepath.Join(dir, "journal.db")
	cfgPath := filepath.Join(dir, "plusd.yaml")
	cfg := fmt.Sprintf(`audit:
  dir: %s
  journal: %s
devices:
  - id: us-01
    type: bkoem
    address: %s
`, filepath.Join(dir, "audit"), journal, s.Addr())
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))

	requests := strings.Join([]string{
		`{"clientId":1,"id":10,"name":"Get","device":"us-01","xml":"<Command><Parameter Name=\"Depth\"/></Command>","structured":true}`,
		`not json`,
		`{"clientId":1,"id":11,"name":"Frobnicate","xml":"<Command />"}`,
		`{"clientId":2,"id":12,"name":"RequestDeviceIds","xml":"<Command />"}`,
	}, "\n")

	out, err := run(t, requests, "serve", "--config", cfgPath)
	require.NoError(t, err)

	replies := decodeLines(t, out)
	require.Len(t, replies, 3)

	byMessage := func(substr string) map[string]any {
		for _, r := range replies {
			if msg, _ := r["message"].(string); strings.Contains(msg, substr) {
				return r
			}
		}
		t.Fatalf("no reply containing %q in %v", substr, replies)
		return nil
	}

	get := byMessage("Got Get command for device: us-01")
	assert.Equal(t, "SUCCESS", get["status"])
	assert.EqualValues(t, 10, get["originalId"])
	assert.Equal(t, map[string]any{"Depth": "50", "DeviceId": "us-01"}, get["payload"])

	assert.Equal(t, "FAIL", byMessage("Error attempting to process command.")["status"])
	assert.Equal(t, "SUCCESS", byMessage(`Message="us-01"`)["status"])

	assert.Contains(t, s.Queries(), `QUERY:GRAB_FRAME "OFF";`, "shutdown should disconnect the scanner")

	out, err = run(t, "", "journal", "--config", cfgPath, "--limit", "10")
	require.NoError(t, err)
	for _, name := range []string{"Get", "Frobnicate", "RequestDeviceIds"} {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, out, "FAIL")
}

// writeDeviceConfig writes a config with one bkoem device at addr and returns
// its path.
func writeDeviceConfig(t *testing.T, dir, addr string) string {
	t.Helper()
	cfgPath := filepath.Join(dir, "plusd.yaml")
	cfg := fmt.Sprintf(`audit:
  dir: %s
devices:
  - id: us-01
    type: bkoem
    address: %s
`, filepath.Join(dir, "audit"), addr)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	return cfgPath
}

func startSimulator(t *testing.T) *sim.Simulator {
	t.Helper()
	s := sim.New(sim.DefaultOptions())
	require.NoError(t, s.Start("127.0.0.1:0"))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestServeWithEvents(t *testing.T) {
	dir := isolate(t)
	cfgPath := writeDeviceConfig(t, dir, startSimulator(t).Addr())

	requests := strings.Join([]string{
		`{"clientId":3,"id":20,"name":"Get","device":"us-01","xml":"<Command />","structured":true}`,
		`{"clientId":3,"id":21,"name":"GetImage","xml":"<Command DeviceId=\"nope\" />"}`,
	}, "\n")

	out, err := run(t, requests, "serve", "--events", "--config", cfgPath)
	require.NoError(t, err)

	var replies, events []map[string]any
	for _, line := range decodeLines(t, out) {
		if e, ok := line["event"].(map[string]any); ok {
			events = append(events, e)
			continue
		}
		replies = append(replies, line)
	}
	require.Len(t, replies, 2)

	types := make(map[string]map[string]any)
	for _, e := range events {
		types[e["type"].(string)] = e
	}
	require.Contains(t, types, "commandCompleted")
	completed := types["commandCompleted"]
	assert.Equal(t, "us-01", completed["device"])
	assert.NotZero(t, completed["id"])
	data := completed["data"].(map[string]any)
	assert.Equal(t, "Get", data["command"])
	assert.EqualValues(t, 20, data["correlationId"])

	require.Contains(t, types, "commandFailed")
	assert.Equal(t, "GetImage", types["commandFailed"]["data"].(map[string]any)["command"])
}

func TestServeWithoutEventsWritesOnlyReplies(t *testing.T) {
	dir := isolate(t)
	cfgPath := writeDeviceConfig(t, dir, startSimulator(t).Addr())

	out, err := run(t, `{"clientId":1,"id":1,"name":"Version","xml":"<Command />"}`, "serve", "--config", cfgPath)
	require.NoError(t, err)

	lines := decodeLines(t, out)
	require.Len(t, lines, 1)
	assert.NotContains(t, lines[0], "event")
}

func TestStatus(t *testing.T) {
	dir := isolate(t)
	s := startSimulator(t)
	cfgPath := writeDeviceConfig(t, dir, s.Addr())

	out, err := run(t, "", "status", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "DEVICE")
	assert.Regexp(t, `us-01\s+bkoem\s+connected`, out)

	out, err = run(t, "", "status", "--json", "--config", cfgPath)
	require.NoError(t, err)
	lines := decodeLines(t, out)
	require.Len(t, lines, 1)
	assert.Equal(t, "us-01", lines[0]["id"])
	assert.Equal(t, true, lines[0]["connected"])

	assert.Contains(t, s.Queries(), `QUERY:GRAB_FRAME "OFF";`, "status should disconnect again")
}

func TestStatusReportsUnreachableDevice(t *testing.T) {
	dir := isolate(t)

	// a port nothing listens on
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	cfgPath := writeDeviceConfig(t, dir, addr)

	out, err := run(t, "", "status", "--config", cfgPath)
	assert.ErrorContains(t, err, "1 of 1 device(s) unavailable")
	assert.Regexp(t, `us-01\s+bkoem\s+unavailable`, out)
}

func TestJournalRequiresPath(t *testing.T) {
	isolate(t)
	_, err := run(t, "", "journal")
	assert.ErrorContains(t, err, "no journal configured")
}
