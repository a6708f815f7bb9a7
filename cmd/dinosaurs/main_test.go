package main

import (
	"bytes"
	"testing"

	"github.com/lychee-technology/objgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name   string
		models string
	}{
		{name: "built-in schema"},
		{name: "model directory", models: "../../models"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := objgraph.DefaultConfig()
			config.Model.Directory = tt.models

			var out bytes.Buffer
			require.NoError(t, run(t.Context(), config, &out))
			assert.Contains(t, out.String(), "All model objects saved successfully!")
			assert.Contains(t, out.String(), "Found 1 dinosaurs in context:")
			assert.Contains(t, out.String(), "  • Rex the T-Rex - 7000.0 kg - 2 torch(es)\n")
		})
	}
}
