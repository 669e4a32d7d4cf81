// File: internal/annotate/poi.go
package annotate

import "math"

// Point is a pixel coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// BoundingBox is an integer pixel rectangle with a display label. Left/top
// are rounded down and right/bottom rounded up from the raw geometry, so the
// box always fully contains the source rectangle.
type BoundingBox struct {
	Label  string `json:"label"`
	Left   int    `json:"left"`
	Top    int    `json:"top"`
	Right  int    `json:"right"`
	Bottom int    `json:"bottom"`
}

// NewBoundingBox rounds raw, possibly fractional geometry into a BoundingBox.
func NewBoundingBox(label string, left, top, right, bottom float64) BoundingBox {
	return BoundingBox{
		Label:  label,
		Left:   int(math.Floor(left)),
		Top:    int(math.Floor(top)),
		Right:  int(math.Ceil(right)),
		Bottom: int(math.Ceil(bottom)),
	}
}

// POI is one interactable element: its free-form attributes, centroid and
// bounding box. Its mark id is its position in the extracted POI list, not a
// stable DOM identity.
type POI struct {
	Info            map[string]any `json:"info"`
	ElementCentroid Point          `json:"element_centroid"`
	BoundingBox     BoundingBox    `json:"bounding_box"`
}

// Centroids projects the centroid list out of a POI slice. Two snapshots are
// considered equivalent when their centroid lists match element for element.
func Centroids(pois []POI) []Point {
	out := make([]Point, len(pois))
	for i, p := range pois {
		out[i] = p.ElementCentroid
	}
	return out
}

// SameCentroids reports whether two centroid lists are identical in length
// and element order.
func SameCentroids(a, b []Point) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
