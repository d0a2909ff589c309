package main

import (
	"bytes"
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/provmark/provmark/internal/imageio"
	"github.com/provmark/provmark/pkg/watermark"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLI_Workflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping CLI workflow in short mode")
	}
	pterm.DisableOutput()
	t.Cleanup(pterm.EnableOutput)

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	cfgPath := filepath.Join(dir, "provmark.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("keys:\n  kdf_iterations: 1000\nlog:\n  level: error\n"), 0o644))

	keyDir := filepath.Join(dir, "keys")
	render := filepath.Join(dir, "render.png")
	marked := filepath.Join(dir, "marked.png")

	img := image.NewNRGBA(image.Rect(0, 0, 640, 480))
	for i := range img.Pix {
		img.Pix[i] = uint8(i) &^ 1
	}
	require.NoError(t, imageio.Write(render, img, imageio.WriteOptions{}))

	_, err := execute(t, "--config", cfgPath, "keygen", "--output", keyDir, "--name", "test", "--algorithm", "ECDSA")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(keyDir, "test_private.pem"))
	assert.FileExists(t, filepath.Join(keyDir, "test_public.pem"))

	_, err = execute(t, "--config", cfgPath, "watermark", "embed", render, marked, "--user-id", "alice")
	require.NoError(t, err)

	_, err = execute(t, "--config", cfgPath, "sign", "--private-key", filepath.Join(keyDir, "test_private.pem"), "--meta", "user_id=alice", marked)
	require.NoError(t, err)
	assert.FileExists(t, marked+".sig")

	out, err := execute(t, "--config", cfgPath, "verify", "--public-key", filepath.Join(keyDir, "test_public.pem"), "--output", "json", marked, render)
	assert.True(t, errors.Is(err, errNotVerified), "the unsigned render fails the batch")

	var report verifyReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, verifySummary{Total: 2, Valid: 1, Unsigned: 1}, report.Summary)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "valid", report.Results[0].Status)
	assert.Equal(t, "ECDSA", report.Results[0].Algorithm)
	assert.True(t, report.Results[0].FingerprintMatch)
	assert.Equal(t, "unsigned", report.Results[1].Status)

	out, err = execute(t, "--config", cfgPath, "verify", "--public-key", filepath.Join(keyDir, "test_public.pem"), "--output", "yaml", marked)
	require.NoError(t, err)
	var yamlReport map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &yamlReport))
	assert.Contains(t, out, "status: valid")

	markedImg, _, err := imageio.Read(marked)
	require.NoError(t, err)
	out, err = execute(t, "--config", cfgPath, "watermark", "extract", marked, "--bits", "96")
	require.NoError(t, err)
	assert.Equal(t, watermark.NewCodec(watermark.DefaultConfig()).Extract(markedImg, 96)+"\n", out)

	data, err := os.ReadFile(marked)
	require.NoError(t, err)
	text, err := watermark.ReadTextMetadata(data)
	require.NoError(t, err)
	assert.Contains(t, text, `"user_id": "alice"`)
	data[len(data)-20] ^= 0xff
	require.NoError(t, os.WriteFile(marked, data, 0o644))

	_, err = execute(t, "--config", cfgPath, "verify", "--public-key", filepath.Join(keyDir, "test_public.pem"), marked)
	assert.True(t, errors.Is(err, errNotVerified), "tampered file must not verify")
}

func TestParseMetadata(t *testing.T) {
	md, err := parseMetadata([]string{"user_id=alice", "note=a=b", "empty="})
	require.NoError(t, err)
	assert.Equal(t, "alice", md["user_id"])
	assert.Equal(t, "a=b", md["note"])
	assert.Equal(t, "", md["empty"])

	md, err = parseMetadata(nil)
	require.NoError(t, err)
	assert.Nil(t, md)

	_, err = parseMetadata([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseMetadata([]string{"=value"})
	assert.Error(t, err)
}

func TestReadPasswordLine(t *testing.T) {
	pw, err := readPasswordLine(bytes.NewBufferString("  s3cret  \nignored\n"))
	require.NoError(t, err)
	assert.Equal(t, []byte("s3cret"), pw)

	pw, err = readPasswordLine(bytes.NewBufferString("no-newline"))
	require.NoError(t, err)
	assert.Equal(t, []byte("no-newline"), pw)

	_, err = readPasswordLine(bytes.NewBufferString("\n"))
	assert.Error(t, err)
}
