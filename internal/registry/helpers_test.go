package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"dynastore/internal/storage"
)

func openBoltEngine(t *testing.T, name string) *storage.BoltEngine {
	t.Helper()
	e, err := storage.OpenBolt(filepath.Join(t.TempDir(), name+".db"), name)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}
