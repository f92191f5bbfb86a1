package main

import (
	"strings"
	"testing"

	"github.com/AzPepoze/gdrive-bisync/internal/version"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand_PrintsDetailedVersion(t *testing.T) {
	out, err := runCmd(t, "version")
	require.NoError(t, err)
	require.Equal(t, version.DetailedWithApp(), strings.TrimSpace(out))
}
