package wu

import "image/color"

const (
	indexBits = 5
	// indexCount is the number of cells per axis including the zero boundary
	// at index 0.
	indexCount = 1<<indexBits + 1
	tableSize  = indexCount * indexCount * indexCount
	// shift reduces an 8-bit channel to a cube level.
	shift = 8 - indexBits
)

// moment holds the statistics of one cube cell. After cumulate it holds the
// aggregate over the sub-cube [0,r]x[0,g]x[0,b] instead.
type moment struct {
	count   int64
	r, g, b int64
	// a is carried so palette entries get the mean alpha of their box. It
	// plays no part in the cut criterion.
	a  int64
	sq float64 // sum of r²+g²+b²
}

func (m moment) plus(o moment) moment {
	return moment{
		count: m.count + o.count,
		r:     m.r + o.r,
		g:     m.g + o.g,
		b:     m.b + o.b,
		a:     m.a + o.a,
		sq:    m.sq + o.sq,
	}
}

func (m moment) minus(o moment) moment {
	return moment{
		count: m.count - o.count,
		r:     m.r - o.r,
		g:     m.g - o.g,
		b:     m.b - o.b,
		a:     m.a - o.a,
		sq:    m.sq - o.sq,
	}
}

// norm is |sum|², the squared length of the summed color vector.
func (m moment) norm() float64 {
	r, g, b := float64(m.r), float64(m.g), float64(m.b)
	return r*r + g*g + b*b
}

// mean returns the average color, rounded and clamped per channel.
func (m moment) mean() color.NRGBA {
	n := float64(m.count)
	return color.NRGBA{
		R: meanChannel(m.r, n),
		G: meanChannel(m.g, n),
		B: meanChannel(m.b, n),
		A: meanChannel(m.a, n),
	}
}

func meanChannel(sum int64, n float64) uint8 {
	v := float64(sum)/n + 0.5
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

func cubeIndex(r, g, b int) int {
	return (r*indexCount+g)*indexCount + b
}

// moments is a dense (indexCount)³ table of cell statistics.
type moments []moment

func newMoments() moments {
	return make(moments, tableSize)
}

func (m moments) add(r, g, b, a uint8) {
	c := &m[cubeIndex(int(r>>shift)+1, int(g>>shift)+1, int(b>>shift)+1)]
	ri, gi, bi := int64(r), int64(g), int64(b)
	c.count++
	c.r += ri
	c.g += gi
	c.b += bi
	c.a += int64(a)
	c.sq += float64(ri*ri + gi*gi + bi*bi)
}

// merge adds every cell of o into m.
func (m moments) merge(o moments) {
	for i := range m {
		m[i] = m[i].plus(o[i])
	}
}

// cumulate turns per-cell statistics into prefix sums along all three axes.
// Index 0 on every axis stays zero.
func (m moments) cumulate() {
	for r := 1; r < indexCount; r++ {
		for g := 1; g < indexCount; g++ {
			row := cubeIndex(r, g, 0)
			for b := 1; b < indexCount; b++ {
				m[row+b] = m[row+b].plus(m[row+b-1])
			}
		}
	}
	for r := 1; r < indexCount; r++ {
		for g := 1; g < indexCount; g++ {
			for b := 1; b < indexCount; b++ {
				i := cubeIndex(r, g, b)
				m[i] = m[i].plus(m[cubeIndex(r, g-1, b)])
			}
		}
	}
	for r := 1; r < indexCount; r++ {
		for g := 1; g < indexCount; g++ {
			for b := 1; b < indexCount; b++ {
				i := cubeIndex(r, g, b)
				m[i] = m[i].plus(m[cubeIndex(r-1, g, b)])
			}
		}
	}
}

// volume returns the aggregate statistics of box c. m must be cumulated.
func (m moments) volume(c box) moment {
	return m[cubeIndex(c.r1, c.g1, c.b1)].
		minus(m[cubeIndex(c.r1, c.g1, c.b0)]).
		minus(m[cubeIndex(c.r1, c.g0, c.b1)]).
		plus(m[cubeIndex(c.r1, c.g0, c.b0)]).
		minus(m[cubeIndex(c.r0, c.g1, c.b1)]).
		plus(m[cubeIndex(c.r0, c.g1, c.b0)]).
		plus(m[cubeIndex(c.r0, c.g0, c.b1)]).
		minus(m[cubeIndex(c.r0, c.g0, c.b0)])
}

// variance is the summed squared distance of the pixels in c from their mean.
// Empty boxes have zero variance.
func (m moments) variance(c box) float64 {
	v := m.volume(c)
	if v.count == 0 {
		return 0
	}
	return v.sq - v.norm()/float64(v.count)
}
