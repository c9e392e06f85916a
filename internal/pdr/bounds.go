package pdr

// Bounds decides where the walker may be. Both methods receive the current
// position and a candidate and return the accepted position, which may be
// the candidate, a clamped candidate, or from itself when it is rejected.
// Out-of-range candidates are routine and never an error.
//
// Resolve judges a step; Place judges an operator placement (start, initial
// position, calibration), which ignores movement rules tied to the cell
// being left.
type Bounds interface {
	Resolve(from, to Position) Position
	Place(from, to Position) Position
}

// AreaBounds is a rectangular validity region.
type AreaBounds struct {
	MinX float64 `json:"min_x"`
	MaxX float64 `json:"max_x"`
	MinY float64 `json:"min_y"`
	MaxY float64 `json:"max_y"`
}

// NewArea returns bounds spanning [0,width]×[0,height].
func NewArea(width, height float64) AreaBounds {
	return AreaBounds{MinX: 0, MaxX: width, MinY: 0, MaxY: height}
}

// NewCenteredArea returns bounds of the given size centered on the origin.
func NewCenteredArea(width, height float64) AreaBounds {
	return AreaBounds{
		MinX: -width / 2, MaxX: width / 2,
		MinY: -height / 2, MaxY: height / 2,
	}
}

// Contains reports whether p lies inside the region, edges included.
func (b AreaBounds) Contains(p Position) bool {
	return p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
}

// Clamp projects p onto the region.
func (b AreaBounds) Clamp(p Position) Position {
	return Position{
		X: Clamp(p.X, b.MinX, b.MaxX),
		Y: Clamp(p.Y, b.MinY, b.MaxY),
	}
}

// Resolve accepts to when inside the region and clamps it otherwise.
func (b AreaBounds) Resolve(_, to Position) Position {
	if b.Contains(to) {
		return to
	}
	return b.Clamp(to)
}

// Place clamps to onto the region.
func (b AreaBounds) Place(_, to Position) Position {
	return b.Clamp(to)
}

// Width returns the horizontal extent.
func (b AreaBounds) Width() float64 { return b.MaxX - b.MinX }

// Height returns the vertical extent.
func (b AreaBounds) Height() float64 { return b.MaxY - b.MinY }
