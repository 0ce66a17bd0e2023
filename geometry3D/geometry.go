package geometry3D

import (
	"fmt"
	"math"
)

type Point [3]float64

func (pt Point) Minus(rhs Point) Point { return Point{pt[0] - rhs[0], pt[1] - rhs[1], pt[2] - rhs[2]} }
func (pt Point) Plus(rhs Point) Point  { return Point{pt[0] + rhs[0], pt[1] + rhs[1], pt[2] + rhs[2]} }
func (pt Point) Scale(s float64) Point { return Point{s * pt[0], s * pt[1], s * pt[2]} }
func (pt Point) Dot(rhs Point) float64 { return pt[0]*rhs[0] + pt[1]*rhs[1] + pt[2]*rhs[2] }
func (pt Point) Norm() float64         { return math.Sqrt(pt.Dot(pt)) }

func (pt Point) Cross(rhs Point) Point {
	return Point{
		pt[1]*rhs[2] - pt[2]*rhs[1],
		pt[2]*rhs[0] - pt[0]*rhs[2],
		pt[0]*rhs[1] - pt[1]*rhs[0],
	}
}

type BoundingBox struct {
	XMin, XMax Point
}

func NewBoundingBox(Geometry []Point) (Box *BoundingBox) {
	if len(Geometry) == 0 {
		return nil
	}
	Box = &BoundingBox{XMin: Geometry[0], XMax: Geometry[0]}
	for _, point := range Geometry[1:] {
		Box.Add(point)
	}
	return
}

func (bb *BoundingBox) Add(point Point) {
	for i := 0; i < 3; i++ {
		bb.XMin[i] = math.Min(bb.XMin[i], point[i])
		bb.XMax[i] = math.Max(bb.XMax[i], point[i])
	}
}

func (bb *BoundingBox) Grow(newBB *BoundingBox) {
	bb.Add(newBB.XMin)
	bb.Add(newBB.XMax)
}

// Pad returns a copy enlarged by d on every side.
func (bb *BoundingBox) Pad(d float64) (bbOut *BoundingBox) {
	bbOut = &BoundingBox{}
	for i := 0; i < 3; i++ {
		bbOut.XMin[i], bbOut.XMax[i] = bb.XMin[i]-d, bb.XMax[i]+d
	}
	return
}

func (bb *BoundingBox) Centroid() Point { return bb.XMin.Plus(bb.XMax).Scale(0.5) }

func (bb *BoundingBox) PointInside(point Point) bool {
	for i := 0; i < 3; i++ {
		if point[i] < bb.XMin[i] || point[i] > bb.XMax[i] {
			return false
		}
	}
	return true
}

func (bb *BoundingBox) Overlaps(other *BoundingBox) bool {
	for i := 0; i < 3; i++ {
		if other.XMax[i] < bb.XMin[i] || other.XMin[i] > bb.XMax[i] {
			return false
		}
	}
	return true
}

func (bb *BoundingBox) String() string {
	return fmt.Sprintf("[%v, %v]", bb.XMin, bb.XMax)
}
