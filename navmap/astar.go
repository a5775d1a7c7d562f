package navmap

import (
	"container/heap"
	"math"

	"github.com/jakecoffman/cp"
)

type gridPos struct {
	x int
	y int
}

// grid is a square cell lattice laid over a window of the world.
type grid struct {
	origin cp.Vector
	cell   float64
	w, h   int
}

func newGrid(window cp.BB, cell float64) grid {
	return grid{
		origin: cp.Vector{X: window.L, Y: window.B},
		cell:   cell,
		w:      max(1, int(math.Ceil((window.R-window.L)/cell))),
		h:      max(1, int(math.Ceil((window.T-window.B)/cell))),
	}
}

func (g grid) index(p gridPos) int {
	return p.y*g.w + p.x
}

func (g grid) gridCoord(p cp.Vector) gridPos {
	gx := int(math.Floor((p.X - g.origin.X) / g.cell))
	gy := int(math.Floor((p.Y - g.origin.Y) / g.cell))
	return gridPos{x: max(0, min(gx, g.w-1)), y: max(0, min(gy, g.h-1))}
}

func (g grid) center(p gridPos) cp.Vector {
	half := g.cell * 0.5
	return cp.Vector{X: g.origin.X + float64(p.x)*g.cell + half, Y: g.origin.Y + float64(p.y)*g.cell + half}
}

func (g grid) gridPathToWorld(path []gridPos) []cp.Vector {
	if len(path) == 0 {
		return nil
	}
	out := make([]cp.Vector, 0, len(path))
	for _, p := range path {
		out = append(out, g.center(p))
	}
	return out
}

// astarPath searches the 8-connected lattice from start to goal. When the
// goal cannot be reached it returns the route to the reached cell closest
// to the goal and complete=false; a nil path means nothing but the start
// was reachable.
func astarPath(g grid, start, goal gridPos, blocked []bool) (path []gridPos, complete bool) {
	size := g.w * g.h
	open := &openSet{}
	heap.Init(open)

	cameFrom := make([]int, size)
	for i := range cameFrom {
		cameFrom[i] = -1
	}
	gScore := make([]float64, size)
	for i := range gScore {
		gScore[i] = math.Inf(1)
	}
	closed := make([]bool, size)

	startIdx := g.index(start)
	goalIdx := g.index(goal)
	gScore[startIdx] = 0
	heap.Push(open, &openItem{id: startIdx, f: heuristic(start, goal)})

	closest, closestH := startIdx, heuristic(start, goal)
	for open.Len() > 0 {
		current := heap.Pop(open).(*openItem)
		curIdx := current.id
		if closed[curIdx] {
			continue
		}
		closed[curIdx] = true
		cur := gridPos{x: curIdx % g.w, y: curIdx / g.w}

		if curIdx == goalIdx {
			return reconstructPath(g, cameFrom, startIdx, goalIdx), true
		}
		if h := heuristic(cur, goal); h < closestH {
			closest, closestH = curIdx, h
		}

		for _, n := range neighbors(g, cur, blocked) {
			idx := g.index(n)
			if blocked[idx] || closed[idx] {
				continue
			}
			tentativeG := gScore[curIdx] + stepCost(cur, n)
			if tentativeG < gScore[idx] {
				cameFrom[idx] = curIdx
				gScore[idx] = tentativeG
				heap.Push(open, &openItem{id: idx, f: tentativeG + heuristic(n, goal), g: tentativeG})
			}
		}
	}

	if closest == startIdx {
		return nil, false
	}
	return reconstructPath(g, cameFrom, startIdx, closest), false
}

func reconstructPath(g grid, cameFrom []int, startIdx, goalIdx int) []gridPos {
	if startIdx == goalIdx {
		return []gridPos{{x: startIdx % g.w, y: startIdx / g.w}}
	}
	if goalIdx < 0 || goalIdx >= len(cameFrom) || cameFrom[goalIdx] == -1 {
		return nil
	}

	path := make([]gridPos, 0, 32)
	cur := goalIdx
	for cur != -1 {
		path = append(path, gridPos{x: cur % g.w, y: cur / g.w})
		if cur == startIdx {
			break
		}
		cur = cameFrom[cur]
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// neighbors yields the free cells around p. Diagonals need both adjacent
// orthogonal cells free so routes never clip a corner.
func neighbors(g grid, p gridPos, blocked []bool) []gridPos {
	out := make([]gridPos, 0, 8)
	free := func(x, y int) bool {
		return x >= 0 && y >= 0 && x < g.w && y < g.h && !blocked[y*g.w+x]
	}
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			x, y := p.x+dx, p.y+dy
			if !free(x, y) {
				continue
			}
			if dx != 0 && dy != 0 && (!free(p.x+dx, p.y) || !free(p.x, p.y+dy)) {
				continue
			}
			out = append(out, gridPos{x: x, y: y})
		}
	}
	return out
}

func stepCost(a, b gridPos) float64 {
	if a.x != b.x && a.y != b.y {
		return math.Sqrt2
	}
	return 1
}

// heuristic is the octile distance.
func heuristic(a, b gridPos) float64 {
	dx := math.Abs(float64(a.x - b.x))
	dy := math.Abs(float64(a.y - b.y))
	return max(dx, dy) + (math.Sqrt2-1)*min(dx, dy)
}

type openItem struct {
	id    int
	f     float64
	g     float64
	index int
}

type openSet []*openItem

func (o openSet) Len() int { return len(o) }
func (o openSet) Less(i, j int) bool {
	if o[i].f == o[j].f {
		return o[i].g > o[j].g
	}
	return o[i].f < o[j].f
}
func (o openSet) Swap(i, j int) {
	o[i], o[j] = o[j], o[i]
	o[i].index = i
	o[j].index = j
}
func (o *openSet) Push(x any) {
	item := x.(*openItem)
	item.index = len(*o)
	*o = append(*o, item)
}
func (o *openSet) Pop() any {
	old := *o
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*o = old[:n-1]
	return item
}
