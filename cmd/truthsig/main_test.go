package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"truthsig/internal/fusion"
	"truthsig/internal/pipeline"
	"truthsig/internal/store"
)

const signalsFixture = "../../internal/schema/testdata/external-signals.json"

// syncBuffer is read by the test while the watch command writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testEnv struct {
	dir        string
	configPath string
	dbPath     string
	auditPath  string
}

// setupTestEnv points every path the CLI touches into a temp dir.
func setupTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	env := testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.toml"),
		dbPath:     filepath.Join(dir, "data", "truthsig.db"),
		auditPath:  filepath.Join(dir, "logs", "audit.log"),
	}
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg-config"))
	t.Setenv("TRUTHSIG_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("TRUTHSIG_DB_PATH", env.dbPath)
	t.Setenv("TRUTHSIG_ARTIFACT_DIR", filepath.Join(dir, "artifacts"))
	t.Setenv("TRUTHSIG_AUDIT_PATH", env.auditPath)
	t.Setenv("TRUTHSIG_CRASH_DIR", filepath.Join(dir, "crashes"))
	t.Setenv("TRUTHSIG_FFMPEG", filepath.Join(dir, "bin", "ffmpeg"))
	t.Setenv("TRUTHSIG_FFPROBE", filepath.Join(dir, "bin", "ffprobe"))
	return env
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func (e testEnv) run(ctx context.Context, args ...string) (string, string, error) {
	resetFlags(rootCmd)
	var stdout, stderr syncBuffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append(args, "--config", e.configPath))
	err := rootCmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 48, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 48; x++ {
			img.Set(x, y, color.RGBA{90, 140, 60, 255})
		}
	}
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func auditActions(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var actions []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var ev struct {
			Action string `json:"action"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		actions = append(actions, ev.Action)
	}
	return actions
}

func TestAnalyze_JSON(t *testing.T) {
	env := setupTestEnv(t)
	img := writePNG(t, env.dir, "photo.png")

	out, _, err := env.run(context.Background(), "analyze", img, "--format", "json")
	require.NoError(t, err)

	var an pipeline.Analysis
	require.NoError(t, json.Unmarshal([]byte(out), &an))
	assert.Equal(t, "photo.png", an.Filename)
	assert.Equal(t, pipeline.MediaImage, an.MediaType)
	require.NotNil(t, an.Forensics.Image)
	assert.FileExists(t, an.Forensics.Image.HeatmapPath)
	assert.True(t, strings.HasPrefix(an.Forensics.Image.HeatmapPath, filepath.Join(env.dir, "artifacts")))
	assert.Equal(t, 49, an.TrustScore)
	assert.Equal(t, fusion.LabelLow, an.Label)

	assert.Equal(t, []string{"analysis_completed"}, auditActions(t, env.auditPath))
	assert.NoFileExists(t, env.dbPath)
}

func TestAnalyze_TextReport(t *testing.T) {
	env := setupTestEnv(t)
	img := writePNG(t, env.dir, "photo.png")

	out, _, err := env.run(context.Background(), "analyze", img)
	require.NoError(t, err)
	assert.Contains(t, out, "MEDIA TRUST ANALYSIS")
	assert.Contains(t, out, "photo.png")
	assert.Contains(t, out, "RATIONALE:")
}

func TestAnalyze_WithSignals(t *testing.T) {
	env := setupTestEnv(t)
	img := writePNG(t, env.dir, "photo.png")

	out, _, err := env.run(context.Background(), "analyze", img, "--signals", signalsFixture, "-f", "json")
	require.NoError(t, err)

	var an pipeline.Analysis
	require.NoError(t, json.Unmarshal([]byte(out), &an))
	assert.Equal(t, 64, an.TrustScore)
	assert.Equal(t, fusion.LabelMedium, an.Label)
}

func TestAnalyze_PartialFailure(t *testing.T) {
	env := setupTestEnv(t)
	img := writePNG(t, env.dir, "photo.png")
	missing := filepath.Join(env.dir, "missing.png")

	out, _, err := env.run(context.Background(), "analyze", img, missing, "--format", "json", "--save")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 file(s)")

	var analyses []pipeline.Analysis
	require.NoError(t, json.Unmarshal([]byte(out), &analyses))
	require.Len(t, analyses, 1)
	assert.Equal(t, "photo.png", analyses[0].Filename)

	assert.ElementsMatch(t, []string{"analysis_completed", "analysis_failed"}, auditActions(t, env.auditPath))

	st, err := store.Open(env.dbPath)
	require.NoError(t, err)
	defer st.Close()
	events, err := st.ListEvents(0)
	require.NoError(t, err)
	types := make([]store.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	assert.ElementsMatch(t, []store.EventType{store.EventScanCreated, store.EventScanFailed}, types)
}

func TestAnalyze_BadFormat(t *testing.T) {
	env := setupTestEnv(t)
	_, _, err := env.run(context.Background(), "analyze", "x.png", "--format", "pdf")
	assert.Error(t, err)
}

func TestAnalyze_InvalidConfig(t *testing.T) {
	env := setupTestEnv(t)
	require.NoError(t, os.WriteFile(env.configPath, []byte("[fusion]\nprior = 500.0\n"), 0o600))
	img := writePNG(t, env.dir, "photo.png")

	_, _, err := env.run(context.Background(), "analyze", img)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fusion")
}

func TestHistory(t *testing.T) {
	env := setupTestEnv(t)
	img := writePNG(t, env.dir, "photo.png")

	out, _, err := env.run(context.Background(), "analyze", img, "--save", "-f", "json")
	require.NoError(t, err)
	var saved pipeline.Analysis
	require.NoError(t, json.Unmarshal([]byte(out), &saved))

	out, _, err = env.run(context.Background(), "history", "-f", "json")
	require.NoError(t, err)
	var rows []struct {
		ID         string `json:"id"`
		SHA256     string `json:"sha256"`
		TrustScore int    `json:"trust_score"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, saved.ID, rows[0].ID)
	assert.Equal(t, saved.TrustScore, rows[0].TrustScore)

	out, _, err = env.run(context.Background(), "history", "--sha256", strings.ToUpper(saved.SHA256), "-f", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Len(t, rows, 1)

	out, _, err = env.run(context.Background(), "history", "--id", saved.ID, "-f", "json")
	require.NoError(t, err)
	var back pipeline.Analysis
	require.NoError(t, json.Unmarshal([]byte(out), &back))
	assert.Equal(t, saved.ID, back.ID)
	assert.Equal(t, saved.OneLineRationale, back.OneLineRationale)

	out, _, err = env.run(context.Background(), "history", "--verify")
	require.NoError(t, err)
	assert.Contains(t, out, "All archived analyses verified.")

	out, _, err = env.run(context.Background(), "history")
	require.NoError(t, err)
	assert.Contains(t, out, "photo.png")

	_, _, err = env.run(context.Background(), "history", "--id", "does-not-exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no archived analysis")
}

func TestFuse(t *testing.T) {
	env := setupTestEnv(t)

	out, _, err := env.run(context.Background(), "fuse", "--signals", signalsFixture, "--visual", "clear", "-f", "json")
	require.NoError(t, err)

	var a fusion.TrustAssessment
	require.NoError(t, json.Unmarshal([]byte(out), &a))
	assert.Equal(t, 64, a.TrustScore)
	assert.Equal(t, fusion.LabelMedium, a.Label)
	_, hasContainer := a.Signal("container.anomalies")
	assert.False(t, hasContainer)

	out, _, err = env.run(context.Background(), "fuse", "--signals", signalsFixture, "--visual", "CLEAR", "--container", "OK", "-f", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "**Trust:** MEDIUM")
}

func TestFuse_NeutralWithoutSignals(t *testing.T) {
	env := setupTestEnv(t)

	out, _, err := env.run(context.Background(), "fuse", "-f", "json")
	require.NoError(t, err)
	var a fusion.TrustAssessment
	require.NoError(t, json.Unmarshal([]byte(out), &a))
	assert.Equal(t, 45, a.TrustScore)
	assert.Equal(t, fusion.LabelLow, a.Label)
}

func TestFuse_Rejections(t *testing.T) {
	env := setupTestEnv(t)

	_, _, err := env.run(context.Background(), "fuse", "--visual", "BLURRY")
	assert.ErrorContains(t, err, "unknown visual status")

	_, _, err = env.run(context.Background(), "fuse", "--container", "BROKEN")
	assert.ErrorContains(t, err, "unknown container status")

	bad := filepath.Join(env.dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"provenance_state": 42}`), 0o600))
	_, _, err = env.run(context.Background(), "fuse", "--signals", bad)
	require.Error(t, err)
	assert.Equal(t, []string{"signals_rejected"}, auditActions(t, env.auditPath))
}

func TestWatch(t *testing.T) {
	env := setupTestEnv(t)
	require.NoError(t, os.WriteFile(env.configPath, []byte("[watch]\ndebounce_ms = 100\nparallel = 1\n"), 0o600))
	inbox := filepath.Join(env.dir, "inbox")
	writePNG(t, inbox, "drop.png")
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "notes.txt"), []byte("ignored"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resetFlags(rootCmd)
	var stdout, stderr syncBuffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"watch", inbox, "--config", env.configPath})

	done := make(chan error, 1)
	go func() { done <- rootCmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "drop.png\t49\tLOW")
	}, 15*time.Second, 50*time.Millisecond, "stderr: %s", stderr.String())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}

	assert.NotContains(t, stdout.String(), "notes.txt")
	actions := auditActions(t, env.auditPath)
	assert.Equal(t, "watch_started", actions[0])
	assert.Contains(t, actions, "analysis_completed")
	assert.Equal(t, "watch_stopped", actions[len(actions)-1])

	st, err := store.Open(env.dbPath)
	require.NoError(t, err)
	defer st.Close()
	records, err := st.ListAnalyses(0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "drop.png", records[0].Filename)
}

func TestWatch_NoPaths(t *testing.T) {
	env := setupTestEnv(t)
	_, _, err := env.run(context.Background(), "watch")
	assert.ErrorContains(t, err, "no directories to watch")
}

func TestVersion(t *testing.T) {
	env := setupTestEnv(t)
	out, _, err := env.run(context.Background(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "truthsig dev")
	assert.Contains(t, out, "ffmpeg:  missing")
	assert.Contains(t, out, "ffprobe: missing")
}

func TestWriteAnalyses_EmptyJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeAnalyses(&buf, "json", nil, false))
	assert.JSONEq(t, "[]", buf.String())
}
