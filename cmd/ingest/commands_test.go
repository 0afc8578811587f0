package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useConfig points the CLI at an in-memory graph with no run history.
func useConfig(t *testing.T) {
	t.Helper()
	path := writeFixture(t, "config.yaml", `
cache:
  type: memory
runlog:
  driver: none
logging:
  level: error
`)
	prev := configPath
	configPath = path
	t.Cleanup(func() { configPath = prev })
}

func TestIngestCommandWithInference(t *testing.T) {
	useConfig(t)

	parties := writeFixture(t, "parties.json", `[
  {"id": "p1", "name": "Alice", "email": "Shared@Example.com"},
  {"id": "p2", "name": "Bob", "email": "shared@example.com"}
]`)
	txs := writeFixture(t, "txs.yaml", `
- id: t1
  senderId: p1
  receiverId: p2
  amount: 50
`)

	var out, errOut bytes.Buffer
	cmd := newIngestCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--parties", parties, "--transactions", txs, "--infer", "--workers", "2"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Empty(t, errOut.String())

	text := out.String()
	assert.Contains(t, text, "parties: 2/2")
	assert.Contains(t, text, "transactions: 1/1")
	assert.Contains(t, text, "shared_email")
	assert.Contains(t, text, "composite")
}

func TestIngestCommandReportsTaskErrors(t *testing.T) {
	useConfig(t)

	txs := writeFixture(t, "txs.json", `[{"id": "t1", "senderId": "ghost", "receiverId": "p2", "amount": 5}]`)

	cmd := newIngestCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--transactions", txs})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transaction ingestion")
}

func TestIngestCommandRequiresInput(t *testing.T) {
	cmd := newIngestCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(nil)

	require.ErrorContains(t, cmd.ExecuteContext(context.Background()), "at least one of")
}

func TestMetricsCommandOnEmptyGraph(t *testing.T) {
	useConfig(t)

	var out, errOut bytes.Buffer
	cmd := newMetricsCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(nil)

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "nodes: 0")
	assert.Contains(t, out.String(), "relationships: 0")
	assert.Contains(t, errOut.String(), "warning: graph.uri is not set; metrics runs against an empty in-memory graph")
}

func TestStoredGraphCommandsWarnWithoutGraphURI(t *testing.T) {
	for name, build := range map[string]func() *cobra.Command{
		"infer":    newInferCmd,
		"clusters": newClustersCmd,
	} {
		t.Run(name, func(t *testing.T) {
			useConfig(t)

			var errOut bytes.Buffer
			cmd := build()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&errOut)
			cmd.SetArgs(nil)

			require.NoError(t, cmd.ExecuteContext(context.Background()))
			assert.Contains(t, errOut.String(), "warning: graph.uri is not set; "+name+" runs against an empty in-memory graph")
		})
	}
}

func TestPathCommandUnknownNode(t *testing.T) {
	useConfig(t)

	var out bytes.Buffer
	cmd := newPathCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"a", "b"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "source node a not found")
}

func TestPathCommandRejectsUnknownType(t *testing.T) {
	useConfig(t)

	cmd := newPathCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"a", "b", "--types", "FRIEND_OF"})

	require.Error(t, cmd.ExecuteContext(context.Background()))
}

func TestClustersCommandRejectsDistance(t *testing.T) {
	useConfig(t)

	cmd := newClustersCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--max-distance", "9"})

	require.Error(t, cmd.ExecuteContext(context.Background()))
}

func TestConfigFileMissing(t *testing.T) {
	prev := configPath
	configPath = filepath.Join(t.TempDir(), "missing.yaml")
	t.Cleanup(func() { configPath = prev })

	cmd := newMetricsCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs(nil)

	require.ErrorContains(t, cmd.ExecuteContext(context.Background()), "loading config")
}
