package warehouse

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/teslashibe/go-pdr/internal/pdr"
)

var (
	ErrEmptyGrid      = errors.New("warehouse: empty grid")
	ErrMissingStart   = errors.New("warehouse: no START cell")
	ErrMissingEnd     = errors.New("warehouse: no END cell")
	ErrDuplicateStart = errors.New("warehouse: more than one START cell")
	ErrDuplicateEnd   = errors.New("warehouse: more than one END cell")
)

var (
	storageCode = regexp.MustCompile(`^[A-Z]\d+$`)
	rackCode    = regexp.MustCompile(`^PRB\d+$`)
)

// Parse builds a map from rows of cell tokens. Short rows are padded with
// walls. The grid must hold exactly one START and one END.
//
// Tokens: START, END, NP (wall), A:... (aisle, optional ;L ;R ;U ;D
// restrictions), storage codes matching [A-Z]\d+ or PRB\d+. Anything else
// is a wall.
func Parse(grid [][]string) (*Map, error) {
	height := len(grid)
	width := 0
	for _, row := range grid {
		if len(row) > width {
			width = len(row)
		}
	}
	if height == 0 || width == 0 {
		return nil, ErrEmptyGrid
	}

	m := &Map{
		Width:  width,
		Height: height,
		Cells:  make([][]Cell, height),
	}

	starts, ends := 0, 0
	for y, row := range grid {
		m.Cells[y] = make([]Cell, width)
		for x := 0; x < width; x++ {
			token := ""
			if x < len(row) {
				token = row[x]
			}
			c := parseCell(x, y, token)
			m.Cells[y][x] = c

			switch c.Type {
			case Start:
				starts++
				m.Start = pdr.Position{X: float64(x), Y: float64(y)}
			case End:
				ends++
				m.End = pdr.Position{X: float64(x), Y: float64(y)}
			}
		}
	}

	switch {
	case starts == 0:
		return nil, ErrMissingStart
	case ends == 0:
		return nil, ErrMissingEnd
	case starts > 1:
		return nil, ErrDuplicateStart
	case ends > 1:
		return nil, ErrDuplicateEnd
	}

	return m, nil
}

func parseCell(x, y int, token string) Cell {
	token = strings.TrimSpace(token)
	c := Cell{X: x, Y: y, Type: Wall}

	switch {
	case token == "START":
		c.Type = Start
	case token == "END":
		c.Type = End
	case strings.HasPrefix(token, "A:"):
		c.Type = Aisle
		c.Restrictions = parseRestrictions(token)
	case token == "NP":
		c.Type = Wall
	case storageCode.MatchString(token), rackCode.MatchString(token):
		c.Type = Storage
		c.StorageLocation = token
	}
	return c
}

func parseRestrictions(token string) Restriction {
	var r Restriction
	if strings.Contains(token, ";L") {
		r |= RestrictLeft
	}
	if strings.Contains(token, ";R") {
		r |= RestrictRight
	}
	if strings.Contains(token, ";U") {
		r |= RestrictUp
	}
	if strings.Contains(token, ";D") {
		r |= RestrictDown
	}
	return r
}

// ParseCSV reads a comma-separated grid and parses it.
func ParseCSV(r io.Reader) (*Map, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read map csv: %w", err)
	}
	return Parse(rows)
}

// LoadCSV parses the map stored at path.
func LoadCSV(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open map: %w", err)
	}
	defer f.Close()

	m, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
