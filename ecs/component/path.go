package component

import (
	"slices"

	"github.com/milk9111/navcore/common"
)

// PathState is the lifecycle of a path.
type PathState uint8

const (
	PathUnderConstruction PathState = iota
	PathRunning
	PathNeedsAdaptation
	PathRunAndAdapt
	PathTryAlternative
	PathFinished
)

var pathStateNames = [...]string{"under_construction", "running", "needs_adaptation", "run_and_adapt", "try_alternative", "finished"}

func (s PathState) String() string {
	if int(s) < len(pathStateNames) {
		return pathStateNames[s]
	}
	return "unknown"
}

// pathTransitions lists the states reachable from each state other than by
// Clear, which is always legal.
var pathTransitions = map[PathState][]PathState{
	PathUnderConstruction: {PathRunning, PathFinished},
	PathRunning:           {PathNeedsAdaptation, PathRunAndAdapt, PathTryAlternative, PathFinished},
	PathNeedsAdaptation:   {PathRunning, PathTryAlternative, PathFinished},
	PathRunAndAdapt:       {PathRunning, PathNeedsAdaptation, PathTryAlternative, PathFinished},
	PathTryAlternative:    {PathRunning, PathNeedsAdaptation, PathFinished},
}

// reversalCos is the segment cosine below which consecutive segments count
// as a back-and-forth jump.
const reversalCos = -0.9

// Path is an ordered, mutable route. The zero value is an empty path under
// construction.
type Path struct {
	nodes   []Waypoint
	current int
	state   PathState

	reservedBegin int
	reservedEnd   int

	evaded []EvadedCollisionInfo

	restartWhenFinished bool
}

func NewPath(nodes ...Waypoint) *Path {
	p := &Path{}
	p.AddNodes(nodes...)
	return p
}

func (p *Path) State() PathState {
	return p.state
}

func (p *Path) Len() int {
	return len(p.nodes)
}

func (p *Path) IsEmpty() bool {
	return len(p.nodes) == 0
}

// Nodes returns the node sequence. Callers must not modify it.
func (p *Path) Nodes() []Waypoint {
	return p.nodes
}

func (p *Path) Node(i int) (Waypoint, error) {
	if i < 0 || i >= len(p.nodes) {
		return Waypoint{}, violation(ErrIndexOutOfRange, "node %d of %d", i, len(p.nodes))
	}
	return p.nodes[i], nil
}

// CurrentNodeIndex is never greater than Len; it equals Len once every node
// has been passed.
func (p *Path) CurrentNodeIndex() int {
	return p.current
}

func (p *Path) CurrentNode() (Waypoint, bool) {
	if p.current >= len(p.nodes) {
		return Waypoint{}, false
	}
	return p.nodes[p.current], true
}

func (p *Path) LastNode() (Waypoint, bool) {
	if len(p.nodes) == 0 {
		return Waypoint{}, false
	}
	return p.nodes[len(p.nodes)-1], true
}

// Remaining returns the nodes from the current one to the end.
func (p *Path) Remaining() []Waypoint {
	if p.current >= len(p.nodes) {
		return nil
	}
	return p.nodes[p.current:]
}

// IsActive reports whether the path is being followed.
func (p *Path) IsActive() bool {
	switch p.state {
	case PathRunning, PathRunAndAdapt, PathNeedsAdaptation, PathTryAlternative:
		return true
	}
	return false
}

// AddNode appends w unless it repeats the position of the tail node.
func (p *Path) AddNode(w Waypoint) {
	if n := len(p.nodes); n > 0 && p.nodes[n-1].Position == w.Position {
		p.nodes[n-1].Flags = p.nodes[n-1].Flags.Union(w.Flags)
		return
	}
	p.nodes = append(p.nodes, w)
}

func (p *Path) AddNodes(ws ...Waypoint) {
	for _, w := range ws {
		p.AddNode(w)
	}
}

func (p *Path) PopFront() error {
	if len(p.nodes) == 0 {
		return violation(ErrEmptyPath, "pop front")
	}
	return p.EraseNode(0)
}

func (p *Path) PopBack() error {
	if len(p.nodes) == 0 {
		return violation(ErrEmptyPath, "pop back")
	}
	return p.EraseNodesFromToPathEnd(len(p.nodes) - 1)
}

// InsertNode places w before index; index may equal Len to append.
func (p *Path) InsertNode(index int, w Waypoint) error {
	if index < 0 || index > len(p.nodes) {
		return violation(ErrIndexOutOfRange, "insert at %d of %d", index, len(p.nodes))
	}
	p.nodes = slices.Insert(p.nodes, index, w)
	if index < p.current {
		p.current++
	}
	p.shiftWindowForInsert(index, 1)
	return nil
}

// InsertNodes places ws before index, keeping their order.
func (p *Path) InsertNodes(index int, ws ...Waypoint) error {
	if index < 0 || index > len(p.nodes) {
		return violation(ErrIndexOutOfRange, "insert at %d of %d", index, len(p.nodes))
	}
	if len(ws) == 0 {
		return nil
	}
	p.nodes = slices.Insert(p.nodes, index, ws...)
	if index < p.current {
		p.current += len(ws)
	}
	p.shiftWindowForInsert(index, len(ws))
	return nil
}

func (p *Path) EraseNode(index int) error {
	if index < 0 || index >= len(p.nodes) {
		return violation(ErrIndexOutOfRange, "erase %d of %d", index, len(p.nodes))
	}
	return p.eraseRange(index, index+1)
}

// EraseNodesFromToPathEnd drops every node from index on.
func (p *Path) EraseNodesFromToPathEnd(index int) error {
	if index < 0 || index > len(p.nodes) {
		return violation(ErrIndexOutOfRange, "erase from %d of %d", index, len(p.nodes))
	}
	return p.eraseRange(index, len(p.nodes))
}

// EraseNodesBetween drops the nodes in [from, to).
func (p *Path) EraseNodesBetween(from, to int) error {
	if from < 0 || to > len(p.nodes) || from > to {
		return violation(ErrIndexOutOfRange, "erase [%d,%d) of %d", from, to, len(p.nodes))
	}
	return p.eraseRange(from, to)
}

func (p *Path) eraseRange(from, to int) error {
	n := to - from
	if n == 0 {
		return nil
	}
	p.nodes = slices.Delete(p.nodes, from, to)
	switch {
	case p.current >= to:
		p.current -= n
	case p.current > from:
		p.current = from
	}
	p.reservedBegin = shiftForErase(p.reservedBegin, from, to)
	p.reservedEnd = shiftForErase(p.reservedEnd, from, to)
	p.clampCursor()
	return nil
}

func shiftForErase(i, from, to int) int {
	switch {
	case i >= to:
		return i - (to - from)
	case i > from:
		return from
	}
	return i
}

func (p *Path) shiftWindowForInsert(index, n int) {
	if index <= p.reservedBegin && p.reservedBegin != p.reservedEnd {
		p.reservedBegin += n
		p.reservedEnd += n
		return
	}
	if index < p.reservedEnd {
		// Inserted nodes are not reserved; the window stops before them.
		p.reservedEnd = index
	}
}

func (p *Path) clampCursor() {
	if p.current > len(p.nodes) {
		p.current = len(p.nodes)
	}
	if p.reservedEnd > len(p.nodes) {
		p.reservedEnd = len(p.nodes)
	}
	if p.reservedBegin > p.reservedEnd {
		p.reservedBegin = p.reservedEnd
	}
}

// SelectNextNode advances the cursor. It returns false when the cursor was
// on the last node; the path is then finished and the cursor equals Len.
func (p *Path) SelectNextNode() bool {
	if p.state == PathFinished {
		return false
	}
	if p.current+1 < len(p.nodes) {
		p.current++
		return true
	}
	p.current = len(p.nodes)
	p.state = PathFinished
	return false
}

// FinishConstruction moves a path under construction or adaptation to
// running, or to finished when it has no nodes left. It also strips
// back-and-forth jumps ahead of the cursor. On a running path it does
// nothing.
func (p *Path) FinishConstruction() error {
	switch p.state {
	case PathRunning:
		return nil
	case PathUnderConstruction, PathNeedsAdaptation, PathRunAndAdapt, PathTryAlternative:
	default:
		return violation(ErrIllegalPathTransition, "finish construction from %s", p.state)
	}
	p.removeJumps()
	p.clampCursor()
	if p.current >= len(p.nodes) {
		p.current = len(p.nodes)
		p.state = PathFinished
		return nil
	}
	p.state = PathRunning
	return nil
}

func (p *Path) RequestAdaptation() error {
	return p.request(PathNeedsAdaptation)
}

func (p *Path) RequestRunAndAdapt() error {
	return p.request(PathRunAndAdapt)
}

func (p *Path) RequestTryToFindAnAlternative() error {
	return p.request(PathTryAlternative)
}

func (p *Path) request(to PathState) error {
	if p.state == to {
		return nil
	}
	if p.state == PathUnderConstruction {
		return violation(ErrPathUnderConstruction, "request %s", to)
	}
	if !slices.Contains(pathTransitions[p.state], to) {
		return violation(ErrIllegalPathTransition, "%s -> %s", p.state, to)
	}
	p.state = to
	return nil
}

// Clear empties the path and puts it back under construction.
func (p *Path) Clear() {
	p.nodes = p.nodes[:0]
	p.current = 0
	p.state = PathUnderConstruction
	p.reservedBegin = 0
	p.reservedEnd = 0
	p.evaded = nil
	p.restartWhenFinished = false
}

// OnPartialLocalRouterResultIntegrated records that a partial detour was
// spliced in, so a new search may start once the path finishes.
func (p *Path) OnPartialLocalRouterResultIntegrated() {
	p.restartWhenFinished = true
}

func (p *Path) RestartSearchWhenFinished() bool {
	return p.restartWhenFinished
}

// ReservationWindow returns the [begin, end) node range held in the
// reservation system.
func (p *Path) ReservationWindow() (begin, end int) {
	return p.reservedBegin, p.reservedEnd
}

func (p *Path) SetReservationWindow(begin, end int) error {
	if begin < 0 || begin > end || end > len(p.nodes) {
		return violation(ErrIndexOutOfRange, "reservation window [%d,%d) of %d", begin, end, len(p.nodes))
	}
	p.reservedBegin = begin
	p.reservedEnd = end
	return nil
}

func (p *Path) EvadedCollisions() []EvadedCollisionInfo {
	return p.evaded
}

// RecordEvadedCollision adds or replaces the record for info.Entity.
func (p *Path) RecordEvadedCollision(info EvadedCollisionInfo) {
	for i := range p.evaded {
		if p.evaded[i].Entity == info.Entity {
			p.evaded[i] = info
			return
		}
	}
	p.evaded = append(p.evaded, info)
}

func (p *Path) EvadedCollision(entity EntityID) (EvadedCollisionInfo, bool) {
	for _, e := range p.evaded {
		if e.Entity == entity {
			return e, true
		}
	}
	return EvadedCollisionInfo{}, false
}

func (p *Path) SetEvasionOutcome(entity EntityID, outcome EvasionOutcome) bool {
	for i := range p.evaded {
		if p.evaded[i].Entity == entity {
			p.evaded[i].Outcome = outcome
			return true
		}
	}
	return false
}

func (p *Path) ForgetEvadedCollision(entity EntityID) {
	p.evaded = slices.DeleteFunc(p.evaded, func(e EvadedCollisionInfo) bool {
		return e.Entity == entity
	})
}

// Clone returns a deep copy.
func (p *Path) Clone() *Path {
	c := *p
	c.nodes = slices.Clone(p.nodes)
	c.evaded = slices.Clone(p.evaded)
	return &c
}

// Equal compares logical state; nil and empty sequences are equal.
func (p *Path) Equal(o *Path) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.state == o.state &&
		p.current == o.current &&
		p.reservedBegin == o.reservedBegin &&
		p.reservedEnd == o.reservedEnd &&
		p.restartWhenFinished == o.restartWhenFinished &&
		slices.Equal(p.nodes, o.nodes) &&
		slices.Equal(p.evaded, o.evaded)
}

// removeJumps drops spike nodes ahead of the cursor where the route turns
// back on itself without a maneuver marker, and zero-length repeats.
func (p *Path) removeJumps() {
	i := max(p.current+1, 1)
	for i < len(p.nodes) {
		prev := p.nodes[i-1]
		node := p.nodes[i]
		in := node.Position.Sub(prev.Position)
		if in.LengthSq() <= common.Epsilon {
			p.nodes = slices.Delete(p.nodes, i, i+1)
			p.fixWindowAfterStrip(i)
			continue
		}
		if i+1 >= len(p.nodes) || node.AllowsReversal() {
			i++
			continue
		}
		out := p.nodes[i+1].Position.Sub(node.Position)
		if out.LengthSq() > common.Epsilon && in.Normalize().Dot(out.Normalize()) < reversalCos {
			p.nodes = slices.Delete(p.nodes, i, i+1)
			p.fixWindowAfterStrip(i)
			if i > max(p.current+1, 1) {
				i--
			}
			continue
		}
		i++
	}
}

func (p *Path) fixWindowAfterStrip(i int) {
	p.reservedBegin = shiftForErase(p.reservedBegin, i, i+1)
	p.reservedEnd = shiftForErase(p.reservedEnd, i, i+1)
}
