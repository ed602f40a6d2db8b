package wu

type axis int

const (
	red axis = iota
	green
	blue
)

var axes = [...]axis{red, green, blue}

// box is the sub-cube (r0,r1]x(g0,g1]x(b0,b1] in cube coordinates.
type box struct {
	r0, r1 int
	g0, g1 int
	b0, b1 int
}

// wholeCube covers every cell except the zero boundary.
var wholeCube = box{0, indexCount - 1, 0, indexCount - 1, 0, indexCount - 1}

func (c box) bounds(a axis) (lo, hi int) {
	switch a {
	case red:
		return c.r0, c.r1
	case green:
		return c.g0, c.g1
	default:
		return c.b0, c.b1
	}
}

func (c box) span(a axis) int {
	lo, hi := c.bounds(a)
	return hi - lo
}

// cut splits c at plane p along a. The lower half keeps (lo,p], the upper
// half gets (p,hi].
func (c box) cut(a axis, p int) (lower, upper box) {
	lower, upper = c, c
	switch a {
	case red:
		lower.r1, upper.r0 = p, p
	case green:
		lower.g1, upper.g0 = p, p
	default:
		lower.b1, upper.b0 = p, p
	}
	return lower, upper
}

func (c box) contains(r, g, b int) bool {
	return r > c.r0 && r <= c.r1 && g > c.g0 && g <= c.g1 && b > c.b0 && b <= c.b1
}

// split is the best cut found for a box. A zero gain means the box cannot
// be usefully split.
type split struct {
	axis  axis
	plane int
	gain  float64
}

// cutter partitions the color cube into boxes, one split at a time. boxes is
// kept in creation order: a split box keeps its slot for the lower half and
// the upper half is appended.
type cutter struct {
	m      moments
	boxes  []box
	splits []split
}

func newCutter(m moments) *cutter {
	c := &cutter{m: m}
	c.push(wholeCube)
	return c
}

func (c *cutter) push(b box) {
	c.boxes = append(c.boxes, b)
	c.splits = append(c.splits, c.bestSplit(b))
}

// run splits until maxColors boxes exist or no split reduces variance.
func (c *cutter) run(maxColors int) []box {
	for len(c.boxes) < maxColors && c.split() {
	}
	return c.boxes
}

// split performs the single most variance-reducing cut available. Ties go to
// the oldest box. It reports false when no box has a positive gain.
func (c *cutter) split() bool {
	next, gain := -1, 0.0
	for i, s := range c.splits {
		if s.gain > gain {
			next, gain = i, s.gain
		}
	}
	if next < 0 {
		return false
	}

	s := c.splits[next]
	lower, upper := c.boxes[next].cut(s.axis, s.plane)
	c.boxes[next] = lower
	c.splits[next] = c.bestSplit(lower)
	c.push(upper)
	return true
}

// bestSplit finds the axis and plane that maximize the variance removed by
// cutting b. The gain of a cut into halves L and R of the whole W is
//
//	|L|²/nL + |R|²/nR - |W|²/nW
//
// which equals variance(W) - variance(L) - variance(R). Among equal scores
// the axis with the widest span wins, then red before green before blue.
func (c *cutter) bestSplit(b box) split {
	whole := c.m.volume(b)
	if whole.count <= 1 {
		return split{}
	}

	var (
		best      split
		bestScore float64
		found     bool
	)
	for _, a := range axes {
		score, plane, ok := c.maximize(b, a, whole)
		if !ok {
			continue
		}
		if !found || score > bestScore || (score == bestScore && b.span(a) > b.span(best.axis)) {
			best = split{axis: a, plane: plane}
			bestScore = score
			found = true
		}
	}
	if !found {
		return split{}
	}

	best.gain = bestScore - whole.norm()/float64(whole.count)
	if best.gain <= 0 {
		return split{}
	}
	return best
}

// maximize sweeps every interior plane of b along a and returns the best
// score and the lowest plane achieving it. Planes leaving either half empty
// are skipped; ok is false if every plane was.
func (c *cutter) maximize(b box, a axis, whole moment) (score float64, plane int, ok bool) {
	lo, hi := b.bounds(a)
	plane = -1
	for p := lo + 1; p < hi; p++ {
		lower, _ := b.cut(a, p)
		l := c.m.volume(lower)
		if l.count == 0 {
			continue
		}
		r := whole.minus(l)
		if r.count == 0 {
			continue
		}
		s := l.norm()/float64(l.count) + r.norm()/float64(r.count)
		if plane < 0 || s > score {
			score, plane = s, p
		}
	}
	return score, plane, plane >= 0
}
