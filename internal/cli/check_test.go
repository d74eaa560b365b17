package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memoire.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestRunCheck_WhenConfigMissing_ShouldNoteAndCompleteWithZero(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "nonexistent.json")

	var out, errOut bytes.Buffer
	code := RunCheck(context.Background(), cfgPath, CheckOptions{}, &out, &errOut)

	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "No config")
	assert.Contains(t, out.String(), "--fix")
	assert.Contains(t, out.String(), "Check complete.")
	_, err := os.Stat(cfgPath)
	assert.True(t, os.IsNotExist(err), "check without --fix must not write")
}

func TestRunCheck_WhenConfigMissingAndFix_ShouldWriteDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "memoire.yaml")
	oldWrite := configWriteDefault
	// keep the default sqlite file inside the temp dir
	configWriteDefault = func(path string) error {
		return os.WriteFile(path, []byte("gateway:\n  port: 8080\nstore:\n  driver: sqlite\n  url: "+filepath.Join(dir, "memoire.db")+"\n"), 0644)
	}
	defer func() { configWriteDefault = oldWrite }()

	var out, errOut bytes.Buffer
	code := RunCheck(context.Background(), cfgPath, CheckOptions{Fix: true}, &out, &errOut)

	assert.Equal(t, 0, code, out.String())
	assert.Contains(t, out.String(), "Wrote default config")
	assert.Contains(t, out.String(), "driver=sqlite ok.")
	_, err := os.Stat(cfgPath)
	assert.NoError(t, err)
}

func TestRunCheck_WhenConfigValid_ShouldReportSections(t *testing.T) {
	cfgPath := writeConfig(t, `{
		"gateway": {"port": 9000},
		"agent": {"provider": "local", "language": "fr"},
		"store": {"driver": "memory"},
		"schedules": [{"name": "objectif", "cron": "0 8 * * 1-5", "instruction": "Ajoute l'objectif du jour"}]
	}`)

	var out, errOut bytes.Buffer
	code := RunCheck(context.Background(), cfgPath, CheckOptions{}, &out, &errOut)

	assert.Equal(t, 0, code, out.String())
	s := out.String()
	for _, want := range []string{"Loaded", "provider=local", "driver=memory ok.", "port=9000", "No auth token", "1 schedule(s) ok.", "Check complete."} {
		assert.Contains(t, s, want)
	}
}

func TestRunCheck_WhenConfigInvalid_ShouldReturnOne(t *testing.T) {
	cfgPath := writeConfig(t, `{"agent": {"language": "de"}}`)

	var out, errOut bytes.Buffer
	code := RunCheck(context.Background(), cfgPath, CheckOptions{}, &out, &errOut)

	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "agent.language")
}

func TestRunCheck_WhenAPIKeyMissing_ShouldFail(t *testing.T) {
	oldSecret := getSecret
	getSecret = func(string) (string, error) { return "", nil }
	defer func() { getSecret = oldSecret }()
	cfgPath := writeConfig(t, `{"agent": {"provider": "anthropic"}, "store": {"driver": "memory"}}`)

	var out, errOut bytes.Buffer
	code := RunCheck(context.Background(), cfgPath, CheckOptions{}, &out, &errOut)

	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "ANTHROPIC_API_KEY")
	assert.Contains(t, out.String(), "Check failed.")
}

func TestRunCheck_WhenFallbackUnavailable_ShouldOnlyNote(t *testing.T) {
	oldSecret := getSecret
	getSecret = func(string) (string, error) { return "", nil }
	defer func() { getSecret = oldSecret }()
	cfgPath := writeConfig(t, `{"agent": {"provider": "local", "fallbacks": [{"provider": "openai"}]}, "store": {"driver": "memory"}}`)

	var out, errOut bytes.Buffer
	code := RunCheck(context.Background(), cfgPath, CheckOptions{}, &out, &errOut)

	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "fallback openai unavailable")
}

func TestRunCheck_WhenCronInvalid_ShouldFail(t *testing.T) {
	cfgPath := writeConfig(t, `{"store": {"driver": "memory"}, "schedules": [{"cron": "every morning", "instruction": "x"}]}`)

	var out, errOut bytes.Buffer
	code := RunCheck(context.Background(), cfgPath, CheckOptions{}, &out, &errOut)

	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), `schedules[0] "every morning"`)
}

func TestRunCheck_WhenStoreUnreachable_ShouldFail(t *testing.T) {
	cfgPath := writeConfig(t, `{"store": {"driver": "postgres", "url": "postgres://nobody@127.0.0.1:1/none?connect_timeout=1"}}`)

	var out, errOut bytes.Buffer
	code := RunCheck(context.Background(), cfgPath, CheckOptions{}, &out, &errOut)

	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "[Store]")
}

func TestRunCheck_WhenFixCannotWrite_ShouldReturnOne(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "missing-dir", "memoire.json")

	var out, errOut bytes.Buffer
	code := RunCheck(context.Background(), cfgPath, CheckOptions{Fix: true}, &out, &errOut)

	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "failed to write default config")
}
