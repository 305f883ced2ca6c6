// SPDX-License-Identifier: MIT

package classify

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReferences(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bento"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "atori"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bento", "one.jpg"), []byte{0xff, 0xd8}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bento", "notes.txt"), []byte("skip me"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "atori", "call.wav"), []byte("RIFF"), 0o644))

	refs := LoadReferences(dir, []string{"bento", "atori", "missing"})
	require.Len(t, refs, 2)

	assert.Equal(t, "bento", refs[0].Label)
	assert.Equal(t, "image/jpeg", refs[0].MIME)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8}), refs[0].Data)

	assert.Equal(t, "atori", refs[1].Label)
	assert.Equal(t, "audio/wav", refs[1].MIME)
}

func TestLoadReferences_AbsentDir(t *testing.T) {
	assert.Nil(t, LoadReferences(filepath.Join(t.TempDir(), "nope"), []string{"bento"}))
	assert.Nil(t, LoadReferences("", []string{"bento"}))
}
