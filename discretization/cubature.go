package discretization

import (
	"sort"

	"gonum.org/v1/gonum/integrate/quad"

	"github.com/notargets/gocsd/utils"
)

// GaussLegendre returns the n point Gauss-Legendre rule on [-1,1] with the
// points in ascending order. The rules integrate polynomials exactly up to
// degree 2n-1.
func GaussLegendre(n int) (x, w []float64) {
	utils.Assert(n >= 1, "GaussLegendre", "need at least one point, have %d", n)
	x, w = make([]float64, n), make([]float64, n)
	quad.Legendre{}.FixedLocations(x, w, -1, 1)
	sort.Sort(rule{x, w})
	return
}

type rule struct{ x, w []float64 }

func (r rule) Len() int           { return len(r.x) }
func (r rule) Less(i, j int) bool { return r.x[i] < r.x[j] }
func (r rule) Swap(i, j int) {
	r.x[i], r.x[j] = r.x[j], r.x[i]
	r.w[i], r.w[j] = r.w[j], r.w[i]
}

// HexGauss is the tensor product rule on the reference hexahedron
// [-1,1]^3 with n points per direction.
func HexGauss(n int) (r, s, t, w []float64) {
	x, wx := GaussLegendre(n)
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				r = append(r, x[i])
				s = append(s, x[j])
				t = append(t, x[k])
				w = append(w, wx[i]*wx[j]*wx[k])
			}
		}
	}
	return
}
