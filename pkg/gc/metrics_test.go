package gc

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreobjects/coreobjects/pkg/object"
	"github.com/coreobjects/coreobjects/pkg/types"
)

type leaf struct {
	object.Base
	Next *leaf
}

func TestCollectorMetrics(t *testing.T) {
	u := object.NewUniverse()
	u.MustRegisterClass("Leaf", (*leaf)(nil))
	c := NewCollector(u, WithMetrics())

	root, err := object.Create[leaf](u, "Root", nil, types.FlagRootObject)
	require.NoError(t, err)
	_, err = object.Create[leaf](u, "Orphan", nil)
	require.NoError(t, err)
	root.Next, err = object.Create[leaf](u, "Kept", nil)
	require.NoError(t, err)

	cycles := testutil.ToFloat64(collectorCyclesCompleted)
	cleared := testutil.ToFloat64(collectorObjectsCleared)

	c.Collect(0)

	assert.Equal(t, cycles+1, testutil.ToFloat64(collectorCyclesCompleted))
	assert.Equal(t, cleared+1, testutil.ToFloat64(collectorObjectsCleared))
	assert.Equal(t, float64(1), testutil.ToFloat64(collectorLastClearCount))

	// A second collector must not register the collectors twice
	assert.NotPanics(t, func() { NewCollector(object.NewUniverse(), WithMetrics()) })
}

func TestBudget(t *testing.T) {
	assert.False(t, budget{}.exhausted(), "zero limit is unbounded")
}
