package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes a memoire.json under a temp dir and returns its path.
// Every config uses a SQLite file next to it so separate commands share data.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "memoire.json")
	body := fmt.Sprintf(`{"store": {"driver": "sqlite", "url": %q}, "infra": {"logLevel": "error"}%s}`,
		filepath.Join(dir, "memoire.db"), extra)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

// execute runs the root command with args and returns stdout and the error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	root := newRootCommand(newBuildMeta("dev", "linux", "amd64"))
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// =============================================================================
// Root and version
// =============================================================================

func TestRootCommand_WhenVersionFlag_ShouldPrintBuildMetadata(t *testing.T) {
	for _, flag := range []string{"--version", "-V"} {
		out := &bytes.Buffer{}
		root := newRootCommand(newBuildMeta("1.0.8", "linux", "amd64"))
		root.SetOut(out)
		root.SetArgs([]string{flag})
		require.NoError(t, root.Execute(), flag)
		assert.Equal(t, "memoire 1.0.8 linux/amd64", strings.TrimSpace(out.String()), flag)
	}
}

func TestRootCommand_WhenNoArgs_ShouldPrintHelp(t *testing.T) {
	out, err := execute(t)
	require.NoError(t, err)
	for _, sub := range []string{"ask", "refine", "tools", "prompts", "schedules", "serve", "check"} {
		assert.Contains(t, out, sub)
	}
}

func TestNewBuildMeta_WhenPlatformEmpty_ShouldUseRuntime(t *testing.T) {
	bm := newBuildMeta("dev", "", "")
	assert.NotEmpty(t, bm.GoOS)
	assert.NotEmpty(t, bm.GoArch)
}

// =============================================================================
// Commands
// =============================================================================

func TestRootCommand_WhenTools_ShouldListCatalogue(t *testing.T) {
	out, err := execute(t, "tools")
	require.NoError(t, err)
	for _, name := range []string{"add_chapter", "quick_capture", "add_daily_objective", "add_source", "add_task", "refine_prompt"} {
		assert.Contains(t, out, name)
	}
}

func TestRootCommand_WhenAsk_ShouldRunToolThroughAgent(t *testing.T) {
	cfg := writeConfig(t, "")
	out, err := execute(t, "--config", cfg, "ask", "--json", `/add_chapter {"name":"Méthodologie"}`)
	require.NoError(t, err)
	var resp struct {
		ActionsTaken []struct {
			ToolName string `json:"toolName"`
			EntityID string `json:"entityId"`
		} `json:"actionsTaken"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Len(t, resp.ActionsTaken, 1)
	assert.Equal(t, "add_chapter", resp.ActionsTaken[0].ToolName)
	assert.NotEmpty(t, resp.ActionsTaken[0].EntityID)
}

func TestRootCommand_WhenPromptsLogThenList_ShouldPersistAcrossRuns(t *testing.T) {
	cfg := writeConfig(t, "")
	_, err := execute(t, "-c", cfg, "prompts", "log", "--tag", "plan", "structure", "du", "chapitre", "3")
	require.NoError(t, err)

	out, err := execute(t, "-c", cfg, "prompts", "list", "-n", "5")

	require.NoError(t, err)
	assert.Contains(t, out, "structure du chapitre 3")
	assert.Contains(t, out, "manual,plan")
}

func TestRootCommand_WhenAskWithoutArgs_ShouldFail(t *testing.T) {
	_, err := execute(t, "ask")
	assert.Error(t, err)
}

func TestRootCommand_WhenCheck_ShouldRunCheck(t *testing.T) {
	cfg := writeConfig(t, "")
	out, err := execute(t, "--config", cfg, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Check complete")
}

func TestRootCommand_WhenCheckFails_ShouldReturnExitCodeErr(t *testing.T) {
	cfg := writeConfig(t, `, "agent": {"language": "de"}`)
	_, err := execute(t, "--config", cfg, "check")
	var ec exitCodeErr
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 1, ec.ExitCode())
}

func TestRootCommand_WhenConfigEnv_ShouldBeUsed(t *testing.T) {
	cfg := writeConfig(t, `, "gateway": {"port": 9123}`)
	t.Setenv("MEMOIRE_CONFIG", cfg)
	out, err := execute(t, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "port=9123", "config comes from MEMOIRE_CONFIG")
}

func TestRootCommand_WhenSchedulesListThenRun_ShouldUseConfiguredSchedules(t *testing.T) {
	cfg := writeConfig(t, `, "schedules": [{"name": "objectif", "cron": "0 8 * * 1-5", "instruction": "/add_daily_objective {\"title\":\"Écrire 500 mots\"}"}]`)

	out, err := execute(t, "-c", cfg, "schedules", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "objectif")
	assert.Contains(t, out, "0 8 * * 1-5")

	out, err = execute(t, "-c", cfg, "schedules", "run", "--json", "objectif")
	require.NoError(t, err)
	var resp struct {
		ResponseMessage string `json:"responseMessage"`
		ActionsTaken    []struct {
			ToolName string `json:"toolName"`
		} `json:"actionsTaken"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, "1 action réussie.", resp.ResponseMessage)
	require.Len(t, resp.ActionsTaken, 1)
	assert.Equal(t, "add_daily_objective", resp.ActionsTaken[0].ToolName)
}

func TestRootCommand_WhenSchedulesRunUnknownName_ShouldFail(t *testing.T) {
	cfg := writeConfig(t, "")
	_, err := execute(t, "-c", cfg, "schedules", "run", "nuit")
	assert.Error(t, err)
}

// =============================================================================
// serve
// =============================================================================

func TestRunServe_ShouldServeGatewayUntilShutdown(t *testing.T) {
	cfg := writeConfig(t, `, "gateway": {"port": 0}, "schedules": [{"name": "objectif", "cron": "0 8 * * 1-5", "instruction": "Ajoute l'objectif du jour"}]`)
	shutdown := make(chan struct{})
	oldCh, oldDelay := daemonShutdownCh, bannerLineDelay
	daemonShutdownCh, bannerLineDelay = shutdown, 0
	defer func() { daemonShutdownCh, bannerLineDelay = oldCh, oldDelay }()
	gatewayServerForTest.Store(nil)

	root := newRootCommand(newBuildMeta("dev", "linux", "amd64"))
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", cfg, "serve"})
	done := make(chan error, 1)
	go func() { done <- root.Execute() }()

	var addr string
	for i := 0; i < 100 && addr == ""; i++ {
		if srv := gatewayServerForTest.Load(); srv != nil {
			addr = srv.Addr()
		}
		time.Sleep(20 * time.Millisecond)
	}
	if addr == "" {
		close(shutdown)
		t.Skipf("gateway did not bind (sandbox?): %v", <-done)
	}
	port := addr[strings.LastIndex(addr, ":")+1:]

	resp, err := http.Get("http://127.0.0.1:" + port + "/v1/tools")
	if err == nil {
		resp.Body.Close()
	}
	close(shutdown)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
	assert.Contains(t, out.String(), "1 schedule(s)", "the banner reports schedules")
}

func TestRunServe_WhenScheduleInvalid_ShouldFail(t *testing.T) {
	cfg := writeConfig(t, `, "schedules": [{"cron": "not a cron", "instruction": "x"}]`)
	_, err := execute(t, "--config", cfg, "serve")
	assert.Error(t, err)
}

// =============================================================================
// runApp
// =============================================================================

func TestRunApp_ShouldMapErrorsToExitCodes(t *testing.T) {
	var stderr bytes.Buffer
	assert.Equal(t, 0, runApp([]string{"memoire", "tools"}, &stderr))
	assert.Equal(t, 1, runApp([]string{"memoire", "no-such-command"}, &stderr))
	assert.Contains(t, stderr.String(), "no-such-command")
}

func TestRunApp_WhenPlanningDegraded_ShouldExitTwo(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusInternalServerError)
	}))
	defer upstream.Close()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg := writeConfig(t, fmt.Sprintf(`, "agent": {"provider": "openai", "model": "gpt-4o-mini", "baseUrl": %q}`, upstream.URL))

	assert.Equal(t, 2, runApp([]string{"memoire", "--config", cfg, "ask", "Ajoute une tâche"}, &bytes.Buffer{}))
}

func TestGetVersion_WhenLdflagsSet_ShouldReturnIt(t *testing.T) {
	old := version
	version = "9.9.9"
	defer func() { version = old }()
	assert.Equal(t, "9.9.9", getVersion())
}
