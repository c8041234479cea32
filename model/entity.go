package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadEntity is returned when an entity handle cannot be parsed.
var ErrBadEntity = errors.New("malformed entity handle")

// Entity is a generation-checked handle. A handle whose generation no longer
// matches its slot refers to a deleted entity.
type Entity struct {
	Index      uint32
	Generation uint32
}

// NoEntity is the zero handle; it never refers to a live entity.
var NoEntity Entity

// Valid reports whether e was ever issued.
func (e Entity) Valid() bool { return e.Generation != 0 }

func (e Entity) String() string {
	return fmt.Sprintf("%d:%d", e.Index, e.Generation)
}

// ParseEntity parses the "index:generation" form produced by String.
func ParseEntity(s string) (Entity, error) {
	idx, gen, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return NoEntity, fmt.Errorf("%w: %q", ErrBadEntity, s)
	}
	i, err := strconv.ParseUint(idx, 10, 32)
	if err != nil {
		return NoEntity, fmt.Errorf("%w: %q", ErrBadEntity, s)
	}
	g, err := strconv.ParseUint(gen, 10, 32)
	if err != nil || g == 0 {
		return NoEntity, fmt.Errorf("%w: %q", ErrBadEntity, s)
	}
	return Entity{Index: uint32(i), Generation: uint32(g)}, nil
}

// Vec2i is an integer tile coordinate.
type Vec2i struct {
	X int
	Y int
}

func (v Vec2i) Add(o Vec2i) Vec2i { return Vec2i{X: v.X + o.X, Y: v.Y + o.Y} }

// Offset returns the neighbouring tile in direction d. d must be a single
// cardinal direction.
func (v Vec2i) Offset(d Direction) Vec2i {
	switch d {
	case North:
		return Vec2i{X: v.X, Y: v.Y + 1}
	case South:
		return Vec2i{X: v.X, Y: v.Y - 1}
	case East:
		return Vec2i{X: v.X + 1, Y: v.Y}
	case West:
		return Vec2i{X: v.X - 1, Y: v.Y}
	}
	return v
}

// Less orders tiles row-major so iteration is deterministic.
func (v Vec2i) Less(o Vec2i) bool {
	if v.Y != o.Y {
		return v.Y < o.Y
	}
	return v.X < o.X
}

func (v Vec2i) String() string { return fmt.Sprintf("(%d,%d)", v.X, v.Y) }

// Direction is a bit set of cardinal pipe directions.
type Direction uint8

const (
	North Direction = 1 << iota
	South
	East
	West

	NoDirection   Direction = 0
	AllDirections           = North | South | East | West
)

// Cardinals lists the four single directions in a fixed order.
var Cardinals = [4]Direction{North, South, East, West}

// Has reports whether every bit of o is set in d.
func (d Direction) Has(o Direction) bool { return o != 0 && d&o == o }

// Opposite mirrors every set direction.
func (d Direction) Opposite() Direction {
	var out Direction
	if d&North != 0 {
		out |= South
	}
	if d&South != 0 {
		out |= North
	}
	if d&East != 0 {
		out |= West
	}
	if d&West != 0 {
		out |= East
	}
	return out
}

func (d Direction) String() string {
	if d == NoDirection {
		return "-"
	}
	var b strings.Builder
	for _, c := range Cardinals {
		if d&c != 0 {
			b.WriteByte("NSEW"[cardinalIndex(c)])
		}
	}
	return b.String()
}

func cardinalIndex(d Direction) int {
	switch d {
	case North:
		return 0
	case South:
		return 1
	case East:
		return 2
	default:
		return 3
	}
}

// ParseDirections parses strings such as "NS" or "news".
func ParseDirections(s string) (Direction, error) {
	var out Direction
	for _, r := range strings.ToUpper(strings.TrimSpace(s)) {
		switch r {
		case 'N':
			out |= North
		case 'S':
			out |= South
		case 'E':
			out |= East
		case 'W':
			out |= West
		case '-', ' ':
		default:
			return NoDirection, fmt.Errorf("invalid direction %q in %q", r, s)
		}
	}
	return out, nil
}

// Transform places an entity on the tile grid.
type Transform struct {
	Pos      Vec2i
	Anchored bool
}
