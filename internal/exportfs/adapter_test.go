// Copyright 2024 LatentFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package exportfs

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"texpressocore/internal/vfs"
)

func TestAdapterStatAndRead(t *testing.T) {
	v := vfs.New()
	v.LookupOrCreate("main.tex").SetFSData([]byte("\\documentclass{article}"))
	v.LookupOrCreate("chapters/intro.tex").SetFSData([]byte("intro"))

	a := NewAdapter(v, nil)

	fi, err := a.Stat("main.tex")
	require.NoError(t, err)
	assert.False(t, fi.IsDir())
	assert.EqualValues(t, len("\\documentclass{article}"), fi.Size())

	dirInfo, err := a.Stat("chapters")
	require.NoError(t, err)
	assert.True(t, dirInfo.IsDir())

	f, err := a.Open("chapters/intro.tex")
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "intro", string(data))
}

func TestAdapterReadDirListsImmediateChildren(t *testing.T) {
	v := vfs.New()
	v.LookupOrCreate("main.tex").SetFSData([]byte("x"))
	v.LookupOrCreate("chapters/intro.tex").SetFSData([]byte("y"))
	v.LookupOrCreate("chapters/body.tex").SetFSData([]byte("z"))

	a := NewAdapter(v, nil)
	entries, err := a.ReadDir("")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"main.tex", "chapters"}, names)
}

func TestAdapterRejectsWrites(t *testing.T) {
	a := NewAdapter(vfs.New(), nil)
	_, err := a.Create("new.tex")
	assert.Error(t, err)
	assert.Error(t, a.Remove("main.tex"))
}

func TestAttrCacheInvalidate(t *testing.T) {
	c := NewAttrCache(0)
	fi := &FileInfo{name: "x.tex", size: 3}
	c.set("x.tex", fi)
	assert.Equal(t, fi, c.get("x.tex"))

	c.Invalidate()
	assert.Nil(t, c.get("x.tex"))
}
