package node

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dynastore/internal/clock"
	"dynastore/internal/config"
	"dynastore/internal/metrics"
	"dynastore/internal/storage"
)

func TestAssemble_MemoryTopology(t *testing.T) {
	cfg, err := config.Parse([]byte(`
node_id: 1
stores:
  - name: users
    engine: memory
  - name: sessions
    engine: memory
handoff:
  enabled: true
  engine: memory
`))
	require.NoError(t, err)

	repo, err := Assemble(cfg, Options{Logger: zap.NewNop()})
	require.NoError(t, err)

	assert.True(t, repo.HasStorageEngine("users"))
	assert.True(t, repo.HasStorageEngine("sessions"))
	assert.True(t, repo.HasLocalStore("users"))
	assert.True(t, repo.HasLocalStore("sessions"))
	assert.True(t, repo.HasHandoffStore())
	assert.False(t, repo.HasRoutedStore("users"), "no picker, no routed stores")

	// The local store stamps writes with this node's id.
	local, ok := repo.LocalStore("users")
	require.True(t, ok)
	vs := local.(*storage.VersionedStore)
	stamped, err := vs.Apply([]byte("k1"), storage.Versioned{Value: []byte("v1")})
	require.NoError(t, err)
	assert.EqualValues(t, 1, stamped.Counter(1))
}

func TestAssemble_BoltTopology(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Parse([]byte(`
node_id: 1
data_dir: ` + dir + `
stores:
  - name: users
    engine: bolt
`))
	require.NoError(t, err)

	repo, err := Assemble(cfg, Options{Logger: zap.NewNop()})
	require.NoError(t, err)
	defer func() {
		for _, e := range repo.AllStorageEngines() {
			e.Close()
		}
	}()

	engine, ok := repo.StorageEngine("users")
	require.True(t, ok)
	assert.Equal(t, storage.KindBolt, engine.Kind())
}

func TestAssemble_ReportsRegisteredStores(t *testing.T) {
	cfg, err := config.Parse([]byte(`
node_id: 1
stores:
  - name: users
    engine: memory
  - name: sessions
    engine: memory
handoff:
  enabled: true
`))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	_, err = Assemble(cfg, Options{Logger: zap.NewNop(), Metrics: m})
	require.NoError(t, err)

	// Two engines, two local stores, one handoff engine.
	families, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() == "registry_registered_stores" {
			found = true
			assert.Equal(t, 5.0, mf.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found, "registered-stores gauge must be exported")
}

func TestAssemble_RoutedStores(t *testing.T) {
	cfg, err := config.Parse([]byte(`
node_id: 1
stores:
  - name: users
    engine: memory
handoff:
  enabled: true
`))
	require.NoError(t, err)

	repo, err := Assemble(cfg, Options{
		Logger: zap.NewNop(),
		Pick:   func([]byte) []clock.NodeID { return []clock.NodeID{1} },
	})
	require.NoError(t, err)

	rs, ok := repo.RoutedStore("users")
	require.True(t, ok)
	assert.Equal(t, storage.KindRouted, rs.Kind())

	// A single-replica put lands in the local engine through the route.
	require.NoError(t, rs.Put([]byte("k1"), storage.Versioned{Value: []byte("v1")}))
	engine, _ := repo.StorageEngine("users")
	got, err := engine.Get([]byte("k1"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v1", string(got[0].Value))
}
