package main

import (
	"math/rand"
	"testing"

	"github.com/lychee-technology/objgraph"
	"github.com/lychee-technology/objgraph/factory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBenchmark(t *testing.T) {
	config := objgraph.DefaultConfig()
	config.Model.Directory = "../../models"
	oc, err := factory.NewObjectContext(t.Context(), config, nil)
	require.NoError(t, err)
	defer oc.Close()

	opts := options{dinosaurs: 25, torchesEach: 2, chunkSize: 10, queries: 5}
	s, err := runBenchmark(t.Context(), oc, opts, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, 75, s.inserted)
	assert.Equal(t, 3, s.commits)
	assert.False(t, oc.HasChanges())

	rs, err := oc.Query(&objgraph.FetchRequest{EntityName: "Torch"})
	require.NoError(t, err)
	n, err := rs.Count()
	require.NoError(t, err)
	assert.Equal(t, 50, n)
}
