package upload

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"order.bpmn", true},
		{"ORDER.BPMN", true},
		{"diagram.Xml", true},
		{"notes.txt", false},
		{"bpmn", false},
		{"archive.bpmn.zip", false},
	}
	for _, tt := range tests {
		err := CheckName(tt.name)
		if tt.ok && err != nil {
			t.Errorf("CheckName(%q) = %v, want nil", tt.name, err)
		}
		if !tt.ok {
			assert.ErrorIs(t, err, ErrExtension, tt.name)
		}
	}
}

func TestDiskUploaderPutOpenDelete(t *testing.T) {
	dir := t.TempDir()
	u, err := NewDiskUploader(dir, "/files/", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxBytes, u.MaxBytes)

	res, err := u.Put(context.Background(), "Process.BPMN", strings.NewReader("<definitions/>"))
	require.NoError(t, err)
	assert.Equal(t, "Process.BPMN", res.Name)
	assert.Equal(t, int64(14), res.Size)
	assert.True(t, strings.HasSuffix(res.ID, ".bpmn"))
	assert.Equal(t, "/files/"+res.ID, res.URL)

	f, err := u.Open(res.ID)
	require.NoError(t, err)
	body, err := io.ReadAll(f)
	f.Close()
	require.NoError(t, err)
	assert.Equal(t, "<definitions/>", string(body))

	require.NoError(t, u.Delete(context.Background(), res.ID))
	_, err = u.Open(res.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, u.Delete(context.Background(), res.ID))
}

func TestDiskUploaderRejects(t *testing.T) {
	dir := t.TempDir()
	u, err := NewDiskUploader(dir, "/files", 8)
	require.NoError(t, err)

	_, err = u.Put(context.Background(), "a.png", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrExtension)

	_, err = u.Put(context.Background(), "a.xml", strings.NewReader("123456789"))
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected uploads leave nothing behind")

	_, err = u.Open("../" + filepath.Base(dir))
	assert.ErrorIs(t, err, ErrNotFound)
}
