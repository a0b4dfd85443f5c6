package vfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildScanFilter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("*.log\nbuild/\n"), 0644))

	filter := BuildScanFilter(dir, ".texpresso", true, []string{".git"}, []string{"vendor"})

	assert.False(t, filter(".texpresso", true), "control dir always excluded")
	assert.False(t, filter("vendor", true), "force-excluded")
	assert.False(t, filter("vendor/pkg.go", false), "force-excluded prefix")
	assert.True(t, filter(".git", true), "force-included overrides gitignore")
	assert.False(t, filter("debug.log", false), "gitignored")
	assert.False(t, filter("build", true), "gitignored directory")
	assert.True(t, filter("main.tex", false), "ordinary file passes")
}

func TestBuildScanFilterGitignoreDisabled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("*.log\n"), 0644))

	filter := BuildScanFilter(dir, ".texpresso", false, nil, nil)
	assert.True(t, filter("debug.log", false), "gitignore rules skipped when disabled")
}
