package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"git.fiblab.net/sim/evacuation/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPath(t *testing.T) {
	file := filepath.Join(t.TempDir(), "building.yaml")
	require.NoError(t, layout.Simple3x3().Save(file))

	p, err := NewPath(file)
	require.NoError(t, err)
	assert.Equal(t, file, p.File)
	assert.Equal(t, file, p.CacheName())

	p, err = NewPath("sim.building")
	require.NoError(t, err)
	assert.Equal(t, "sim", p.DB)
	assert.Equal(t, "building", p.Coll)
	assert.Equal(t, "sim.building", p.String())

	for _, bad := range []string{"", "  ", "a.b.c", "nodot", ".col"} {
		_, err := NewPath(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoadLayout(t *testing.T) {
	ctx := context.Background()
	file := filepath.Join(t.TempDir(), "building.yaml")
	require.NoError(t, layout.MultiFloor3x3().Save(file))
	p, err := NewPath(file)
	require.NoError(t, err)
	l, err := LoadLayout(ctx, p, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, l.TopFloor())

	// 缓存命中时不连接mongo
	cacheDir := t.TempDir()
	require.NoError(t, layout.Simple3x3().Save(filepath.Join(cacheDir, "sim.building.yaml")))
	p, err = NewPath("sim.building")
	require.NoError(t, err)
	l, err = LoadLayout(ctx, p, "", cacheDir)
	require.NoError(t, err)
	assert.Equal(t, "simple-3x3", l.Name)

	// 没有缓存也没有mongo_uri
	os.Remove(filepath.Join(cacheDir, "sim.building.yaml"))
	_, err = LoadLayout(ctx, p, "", cacheDir)
	assert.Error(t, err)
}
