// Package warehouse models a gridded floor plan whose cells decide where a
// tracked walker may stand.
package warehouse

import (
	"math"

	"github.com/teslashibe/go-pdr/internal/pdr"
)

// CellType classifies a grid cell.
type CellType int

const (
	Wall CellType = iota
	Storage
	Aisle
	Start
	End
)

func (c CellType) String() string {
	switch c {
	case Storage:
		return "storage"
	case Aisle:
		return "aisle"
	case Start:
		return "start"
	case End:
		return "end"
	default:
		return "wall"
	}
}

// MarshalText encodes the cell type by name.
func (c CellType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Traversable reports whether a walker may stand on the cell.
func (c CellType) Traversable() bool {
	return c == Aisle || c == Start || c == End
}

// Restriction is a set of directions in which leaving an aisle cell is
// forbidden.
type Restriction uint8

const (
	RestrictLeft Restriction = 1 << iota
	RestrictRight
	RestrictUp
	RestrictDown
)

// Has reports whether r forbids d.
func (r Restriction) Has(d Restriction) bool {
	return d != 0 && r&d != 0
}

// Cell is one grid square.
type Cell struct {
	X               int         `json:"x"`
	Y               int         `json:"y"`
	Type            CellType    `json:"type"`
	StorageLocation string      `json:"storage_location,omitempty"`
	Restrictions    Restriction `json:"restrictions,omitempty"`
}

// Map is a parsed floor plan. Cells are indexed [y][x].
type Map struct {
	Width  int
	Height int
	Cells  [][]Cell
	Start  pdr.Position
	End    pdr.Position
}

// Extents returns the grid as rectangular bounds in cell coordinates.
func (m *Map) Extents() pdr.AreaBounds {
	return pdr.AreaBounds{
		MinX: 0, MaxX: float64(m.Width - 1),
		MinY: 0, MaxY: float64(m.Height - 1),
	}
}

// CellAt returns the cell under p, with p clamped onto the grid.
func (m *Map) CellAt(p pdr.Position) Cell {
	x := index(p.X, m.Width)
	y := index(p.Y, m.Height)
	return m.Cells[y][x]
}

func index(v float64, n int) int {
	i := int(math.Floor(v))
	if i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}

// Resolve implements pdr.Bounds. The candidate is clamped to the grid and
// the move is reverted when it lands on storage or a wall, or leaves an
// aisle in a restricted direction.
func (m *Map) Resolve(from, to pdr.Position) pdr.Position {
	clamped := m.Extents().Clamp(to)

	if !m.CellAt(clamped).Type.Traversable() {
		return from
	}

	current := m.CellAt(from)
	if current.Type == Aisle && current.Restrictions.Has(direction(from, clamped)) {
		return from
	}

	return clamped
}

// Place implements pdr.Bounds for operator placements. The target is
// clamped to the grid and rejected only when it is storage or a wall; the
// restrictions of the cell being left do not apply.
func (m *Map) Place(from, to pdr.Position) pdr.Position {
	clamped := m.Extents().Clamp(to)

	if !m.CellAt(clamped).Type.Traversable() {
		return from
	}
	return clamped
}

// direction classifies a move, horizontal component first. Screen
// coordinates: +y is down.
func direction(from, to pdr.Position) Restriction {
	dx := to.X - from.X
	dy := to.Y - from.Y
	switch {
	case dx > 0:
		return RestrictRight
	case dx < 0:
		return RestrictLeft
	case dy > 0:
		return RestrictDown
	case dy < 0:
		return RestrictUp
	}
	return 0
}

// StorageLocations lists storage codes in row-major order.
func (m *Map) StorageLocations() []string {
	var out []string
	for _, row := range m.Cells {
		for _, c := range row {
			if c.Type == Storage && c.StorageLocation != "" {
				out = append(out, c.StorageLocation)
			}
		}
	}
	return out
}

// AisleCells lists all aisle cells in row-major order.
func (m *Map) AisleCells() []Cell {
	var out []Cell
	for _, row := range m.Cells {
		for _, c := range row {
			if c.Type == Aisle {
				out = append(out, c)
			}
		}
	}
	return out
}
