package geometry3D

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gocsd/utils"
)

func TestGenerateCuboid(t *testing.T) {
	p := CuboidParams{
		Bottom:      Point{-1, -2, -3},
		Top:         Point{2.5, 3.5, 4.5},
		Intervals:   [3]int{5, 10, 15},
		Type:        Hex8,
		FirstNodeID: 17,
	}
	{ // hex8
		m, err := GenerateCuboid(p)
		require.NoError(t, err)
		assert.Equal(t, 1056, len(m.Nodes))
		assert.Equal(t, 750, len(m.Elements))
		last := m.Nodes[len(m.Nodes)-1]
		assert.Equal(t, 7177, last.ID)
		for d, want := range []float64{2.5, 3.5, 4.5} {
			assert.InDelta(t, want, last.X[d], 1e-14)
		}
		first := m.Nodes[0]
		assert.Equal(t, 17, first.ID)
		assert.Equal(t, Point{-1, -2, -3}, first.X)
	}
	{ // quadratic cells use the intermediate lattice points
		p.Type = Hex27
		m, err := GenerateCuboid(p)
		require.NoError(t, err)
		assert.Equal(t, 11*21*31, len(m.Nodes))
		assert.Len(t, m.Elements[0].NodeIDs, 27)
		p.Type = Hex20
		m, err = GenerateCuboid(p)
		require.NoError(t, err)
		assert.Less(t, len(m.Nodes), 11*21*31)
	}
	{ // wedges come in pairs
		p.Type = Wedge6
		m, err := GenerateCuboid(p)
		require.NoError(t, err)
		assert.Equal(t, 1500, len(m.Elements))
		assert.Equal(t, 1056, len(m.Nodes))
		p.Type = Wedge15
		m, err = GenerateCuboid(p)
		require.NoError(t, err)
		assert.Len(t, m.Elements[1].NodeIDs, 15)
	}
	{ // rotation about z by 90 degrees maps the box onto itself rotated about the centre
		q := CuboidParams{Bottom: Point{0, 0, 0}, Top: Point{2, 2, 2}, Intervals: [3]int{1, 1, 1},
			Type: Hex8, Rotation: [3]float64{0, 0, 90}}
		m, err := GenerateCuboid(q)
		require.NoError(t, err)
		n, ok := m.NodeByID(0)
		require.True(t, ok)
		assert.InDelta(t, 0, n.X[0], 1e-12)
		assert.InDelta(t, 2, n.X[1], 1e-12)
		assert.InDelta(t, 0, n.X[2], 1e-12)
	}
	{ // validation
		bad := p
		bad.Top[1] = -5
		_, err := GenerateCuboid(bad)
		assert.ErrorIs(t, err, utils.ErrConfig)
		bad = p
		bad.Intervals[2] = 0
		_, err = GenerateCuboid(bad)
		assert.ErrorIs(t, err, utils.ErrConfig)
		_, err = NewCellType("tet4")
		assert.Error(t, err)
	}
}

func TestBins(t *testing.T) {
	var (
		line = GenerateLine(Point{0, 0, 0}, Point{10, 0, 0}, 10, 0, 0)
		bins = NewBins(line.BoundingBox().Pad(1), 1.5)
	)
	for _, e := range line.Elements {
		a, _ := line.NodeByID(e.NodeIDs[0])
		b, _ := line.NodeByID(e.NodeIDs[1])
		bins.Insert(e.ID, NewBoundingBox([]Point{a.X, b.X}))
	}
	c := bins.Candidates(NewBoundingBox([]Point{{4.2, 0, 0}}))
	assert.Contains(t, c, 4)
	assert.NotContains(t, c, 8)
	assert.Equal(t, 11, len(line.Nodes))
	assert.Error(t, line.Merge(GenerateLine(Point{0, 1, 0}, Point{1, 1, 0}, 1, 10, 20)))
	require.NoError(t, line.Merge(GenerateLine(Point{0, 1, 0}, Point{1, 1, 0}, 1, 11, 20)))
	assert.Equal(t, 13, len(line.Nodes))
}
