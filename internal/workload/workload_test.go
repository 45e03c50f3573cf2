package workload_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreobjects/coreobjects/internal/workload"
	"github.com/coreobjects/coreobjects/pkg/gc"
	"github.com/coreobjects/coreobjects/pkg/logger"
	"github.com/coreobjects/coreobjects/pkg/object"
	"github.com/coreobjects/coreobjects/pkg/types"
)

var cfg = types.WorkloadConfig{
	Seed:              42,
	Packages:          3,
	ObjectsPerPackage: 20,
	Churn:             0.3,
	Ticks:             5,
}

func newUniverse(t *testing.T) *object.Universe {
	t.Helper()
	u := object.NewUniverse(object.WithLogger(logger.NewNop()))
	require.NoError(t, workload.RegisterClasses(u))
	return u
}

func paths(u *object.Universe) []string {
	db := u.DB()
	var out []string
	for _, idx := range db.GetAllObjects(nil) {
		out = append(out, db.Entry(idx).Path)
	}
	sort.Strings(out)
	return out
}

func run(t *testing.T) (*object.Universe, *workload.Generator) {
	t.Helper()
	u := newUniverse(t)
	g := workload.New(cfg, logger.NewNop())
	require.NoError(t, g.Populate(u))

	c := gc.NewCollector(u, gc.WithLogger(logger.NewNop()))
	for i := 0; i < cfg.Ticks; i++ {
		require.NoError(t, g.Tick(u))
		c.Collect(0)
	}
	return u, g
}

func TestPopulate(t *testing.T) {
	u := newUniverse(t)
	g := workload.New(cfg, logger.NewNop())
	require.NoError(t, g.Populate(u))

	assert.Equal(t, 60, g.Live())
	assert.Equal(t, 60, g.Stats().Created)
	for _, name := range []string{"Level0", "Level1", "Level2"} {
		assert.NotNil(t, u.FindObject(name), name)
	}

	root, ok := object.Find[*workload.Actor](u, "Level0:Actor1")
	require.True(t, ok)
	assert.True(t, root.Flags().Has(types.FlagRootObject))
}

func TestSameSeedSameScene(t *testing.T) {
	u1, g1 := run(t)
	u2, g2 := run(t)

	assert.Equal(t, paths(u1), paths(u2))
	assert.Equal(t, g1.Stats(), g2.Stats())
}

func TestTickKeepsRootsAlive(t *testing.T) {
	u, g := run(t)

	for _, name := range []string{"Level0:Actor1", "Level1:Actor21", "Level2:Actor41"} {
		a, ok := object.Find[*workload.Actor](u, name)
		require.True(t, ok, name)
		assert.False(t, a.Flags().Has(types.FlagDeleted))
	}
	assert.Greater(t, g.Stats().Condemned+g.Stats().Dropped+g.Stats().Rewired, 0)
}

func TestTickOnEmptyScene(t *testing.T) {
	u := newUniverse(t)
	g := workload.New(types.WorkloadConfig{Seed: 1, Churn: 1}, logger.NewNop())
	require.NoError(t, g.Populate(u))
	assert.NoError(t, g.Tick(u))
	assert.Equal(t, 0, g.Live())
}
