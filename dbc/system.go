package dbc

import (
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/utils"
)

func (h *Handler) prescribed(values *mat.VecDense, dof int) float64 {
	if values == nil {
		return 0
	}
	return values.AtVec(dof)
}

// ApplyToSystem imposes the constraints on J x = b. Constrained rows become
// unit rows with b and x set to the prescribed increment (zero when values is
// nil). Rows of locsys nodes are rotated into the local frame first, so a
// constrained local direction c reads T[c,:] x_node = value. With Symmetric
// set, the constrained columns of plain DOFs are eliminated into b.
func (h *Handler) ApplyToSystem(J *utils.SparseOperator, x, b, values *mat.VecDense) {
	if h.Symmetric {
		h.eliminateColumns(J, b, values)
	}
	plain := make([]bool, h.ndof)
	for _, dof := range h.dbcDofs {
		if !h.inLocsys(dof) {
			plain[dof] = true
		}
	}
	J.ApplyDirichlet(plain, true)
	if len(h.trafo) > 0 {
		h.rotateRows(J)
		h.ToLocal(b)
		if x != nil {
			h.ToLocal(x)
		}
		if values != nil {
			h.ToLocal(values)
		}
	}
	for _, dof := range h.dbcDofs {
		v := h.prescribed(values, dof)
		b.SetVec(dof, v)
		if x != nil {
			x.SetVec(dof, v)
		}
	}
	if len(h.trafo) > 0 {
		// x and the prescribed values go back to the global frame, b stays
		// consistent with the rotated rows
		if x != nil {
			h.ToGlobal(x)
		}
		if values != nil {
			h.ToGlobal(values)
		}
	}
}

func (h *Handler) inLocsys(dof int) bool {
	if len(h.trafo) == 0 {
		return false
	}
	nd := h.dis.NumDofPerNode
	_, ok := h.trafo[dof-dof%nd]
	return ok
}

// rotateRows replaces the three rows of every locsys node by T times them and
// turns constrained local rows into rows of T.
func (h *Handler) rotateRows(J *utils.SparseOperator) {
	for base, T := range h.trafo {
		var (
			rows [3]map[int]float64
		)
		for k := 0; k < 3; k++ {
			cols, vals := J.Row(base + k)
			rows[k] = make(map[int]float64, len(cols))
			for n, c := range cols {
				rows[k][c] = vals[n]
			}
		}
		for i := 0; i < 3; i++ {
			var (
				cols []int
				vals []float64
			)
			if h.dbcMap[base+i] {
				cols = []int{base, base + 1, base + 2}
				vals = []float64{T[i][0], T[i][1], T[i][2]}
			} else {
				acc := make(map[int]float64)
				for k := 0; k < 3; k++ {
					for c, v := range rows[k] {
						acc[c] += T[i][k] * v
					}
				}
				for c, v := range acc {
					cols = append(cols, c)
					vals = append(vals, v)
				}
			}
			J.ReplaceRow(base+i, cols, vals)
		}
	}
}

func (h *Handler) eliminateColumns(J *utils.SparseOperator, b, values *mat.VecDense) {
	cols := make([]bool, h.ndof)
	for _, dof := range h.dbcDofs {
		if !h.inLocsys(dof) {
			cols[dof] = true
		}
	}
	if values != nil {
		J.DoNonZero(func(i, j int, v float64) {
			if cols[j] && !h.dbcMap[i] {
				b.SetVec(i, b.AtVec(i)-v*values.AtVec(j))
			}
		})
	}
	J.ZeroColumns(cols)
}

// ApplyToRHS sets the constrained entries of b to the prescribed values (zero
// for nil values). b is returned in the global frame.
func (h *Handler) ApplyToRHS(b, values *mat.VecDense) {
	h.ToLocal(b)
	if values != nil {
		h.ToLocal(values)
	}
	for _, dof := range h.dbcDofs {
		b.SetVec(dof, h.prescribed(values, dof))
	}
	h.ToGlobal(b)
	if values != nil {
		h.ToGlobal(values)
	}
}

// ExtractFreeDofs zeroes the constrained components of v.
func (h *Handler) ExtractFreeDofs(v *mat.VecDense) {
	h.ApplyToRHS(v, nil)
}

// InsertToDbc copies the constrained components of src into dst.
func (h *Handler) InsertToDbc(src, dst *mat.VecDense) {
	s := src
	if len(h.trafo) > 0 {
		s = utils.CloneVec(src)
		h.ToLocal(s)
	}
	h.ToLocal(dst)
	for _, dof := range h.dbcDofs {
		dst.SetVec(dof, s.AtVec(dof))
	}
	h.ToGlobal(dst)
}

// InsertFreeDofs copies the unconstrained components of src into dst.
func (h *Handler) InsertFreeDofs(src, dst *mat.VecDense) {
	keep := utils.CloneVec(dst)
	dst.CopyVec(src)
	h.InsertToDbc(keep, dst)
}

// ApplyToSystemSymmetric is ApplyToSystem with column elimination regardless
// of the handler setting.
func (h *Handler) ApplyToSystemSymmetric(J *utils.SparseOperator, x, b, values *mat.VecDense) {
	sym := h.Symmetric
	h.Symmetric = true
	h.ApplyToSystem(J, x, b, values)
	h.Symmetric = sym
}
