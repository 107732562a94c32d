package grid

import "strings"

// RenderSize selects the map style.
type RenderSize int

const (
	Small RenderSize = iota
	Large
)

const (
	cellBase  = '*'
	cellEmpty = '#'
	cellOpen  = '.'
)

// Render draws the room as a fixed-width ASCII map. The base cell and cells
// flagged empty are marked; names and descriptions never change the drawing.
// The caller must hold the room lock.
func (r *Room) Render(size RenderSize) string {
	if size == Large {
		return r.renderLarge()
	}
	return r.renderSmall()
}

func (r *Room) cell(c Coord) rune {
	if c == r.State.Base {
		return cellBase
	}
	if p, ok := r.Points[c]; ok && p.Empty {
		return cellEmpty
	}
	return cellOpen
}

func (r *Room) renderSmall() string {
	b := r.State.Bounds
	var sb strings.Builder
	edge := "+" + strings.Repeat("-", b.Width()) + "+\n"
	sb.WriteString(edge)
	for y := b.Min.Y; y <= b.Max.Y; y++ {
		sb.WriteByte('|')
		for x := b.Min.X; x <= b.Max.X; x++ {
			sb.WriteRune(r.cell(Coord{X: x, Y: y}))
		}
		sb.WriteString("|\n")
	}
	sb.WriteString(edge)
	return sb.String()
}

func (r *Room) renderLarge() string {
	b := r.State.Bounds
	var sb strings.Builder
	edge := "+" + strings.Repeat("---+", b.Width()) + "\n"
	for y := b.Min.Y; y <= b.Max.Y; y++ {
		sb.WriteString(edge)
		sb.WriteByte('|')
		for x := b.Min.X; x <= b.Max.X; x++ {
			switch r.cell(Coord{X: x, Y: y}) {
			case cellBase:
				sb.WriteString(" * ")
			case cellEmpty:
				sb.WriteString("###")
			default:
				sb.WriteString("   ")
			}
			sb.WriteByte('|')
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(edge)
	return sb.String()
}
