package wu

import (
	"fmt"
	"image/color"
)

// buildPalette averages every non-empty box. Empty boxes are dropped, so the
// returned boxes are index-aligned with the palette.
func buildPalette(m moments, boxes []box) (color.Palette, []box) {
	pal := make(color.Palette, 0, len(boxes))
	kept := make([]box, 0, len(boxes))
	for _, b := range boxes {
		v := m.volume(b)
		if v.count == 0 {
			continue
		}
		pal = append(pal, v.mean())
		kept = append(kept, b)
	}
	return pal, kept
}

// cellTable maps every cube cell to the palette index of the box holding it.
type cellTable []uint8

func newCellTable(boxes []box) cellTable {
	t := make(cellTable, tableSize)
	for i, c := range boxes {
		for r := c.r0 + 1; r <= c.r1; r++ {
			for g := c.g0 + 1; g <= c.g1; g++ {
				row := cubeIndex(r, g, 0)
				for b := c.b0 + 1; b <= c.b1; b++ {
					t[row+b] = uint8(i)
				}
			}
		}
	}
	return t
}

// at returns the palette index stored for a cube cell. A cell outside the
// cube means the table and the histogram disagree on resolution.
func (t cellTable) at(r, g, b int) uint8 {
	if r < 1 || r >= indexCount || g < 1 || g >= indexCount || b < 1 || b >= indexCount {
		panic(fmt.Sprintf("wu: cell (%d,%d,%d) outside the %d-level color cube", r, g, b, indexCount-1))
	}
	return t[cubeIndex(r, g, b)]
}

// lookup returns the palette index for an 8-bit color.
func (t cellTable) lookup(r, g, b uint8) uint8 {
	return t.at(int(r>>shift)+1, int(g>>shift)+1, int(b>>shift)+1)
}
