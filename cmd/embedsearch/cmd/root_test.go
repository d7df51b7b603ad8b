package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedsearch/embedsearch/pkg/version"
)

func TestVersionCmdPrintsVersionString(t *testing.T) {
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), version.Version)
}

func TestRootCmdRegistersAllSubcommands(t *testing.T) {
	root := NewRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "index", "search", "status", "clear", "version"} {
		assert.True(t, names[want], "expected subcommand %q to be registered", want)
	}
}

func TestIndexCmdRequiresPathArgument(t *testing.T) {
	cmd := newIndexCmd()
	cmd.SetArgs([]string{})
	assert.Error(t, cmd.Execute())
}

func TestClearCmdWithoutConfirmDoesNotError(t *testing.T) {
	cmd := newClearCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "confirmation_required")
}
