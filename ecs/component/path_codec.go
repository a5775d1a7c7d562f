package component

import (
	"fmt"

	"github.com/milk9111/navcore/wire"
)

// Encoded sizes of one path node and one evasion record.
const (
	waypointWireSize = 52
	evadedWireSize   = 26
)

func (p *Path) Write(w *wire.Writer) {
	w.Uint8(uint8(p.state))
	w.Count(len(p.nodes))
	for _, n := range p.nodes {
		n.Write(w)
	}
	w.Uint32(uint32(p.current))
	w.Uint32(uint32(p.reservedBegin))
	w.Uint32(uint32(p.reservedEnd))
	w.Count(len(p.evaded))
	for _, e := range p.evaded {
		e.Write(w)
	}
	w.Bool(p.restartWhenFinished)
}

func (p *Path) Read(r *wire.Reader) {
	p.state = PathState(r.Uint8())
	n := r.Count(waypointWireSize)
	p.nodes = nil
	if n > 0 {
		p.nodes = make([]Waypoint, n)
		for i := range p.nodes {
			p.nodes[i].Read(r)
		}
	}
	p.current = int(r.Uint32())
	p.reservedBegin = int(r.Uint32())
	p.reservedEnd = int(r.Uint32())
	m := r.Count(evadedWireSize)
	p.evaded = nil
	if m > 0 {
		p.evaded = make([]EvadedCollisionInfo, m)
		for i := range p.evaded {
			p.evaded[i].Read(r)
		}
	}
	p.restartWhenFinished = r.Bool()
}

func (p *Path) MarshalBinary() ([]byte, error) {
	w := wire.NewWriter(32 + 64*len(p.nodes))
	p.Write(w)
	return w.Bytes(), nil
}

func (p *Path) UnmarshalBinary(data []byte) error {
	r := wire.NewReader(data)
	var decoded Path
	decoded.Read(r)
	if err := r.Finish(); err != nil {
		return fmt.Errorf("navigation: decode path: %w", err)
	}
	if err := decoded.validate(); err != nil {
		return fmt.Errorf("navigation: decode path: %w", err)
	}
	*p = decoded
	return nil
}

func (p *Path) validate() error {
	if p.state > PathFinished {
		return fmt.Errorf("%w: unknown state %d", ErrIllegalPathTransition, p.state)
	}
	if p.current > len(p.nodes) || p.reservedBegin > p.reservedEnd || p.reservedEnd > len(p.nodes) {
		return fmt.Errorf("%w: cursor %d window [%d,%d) of %d", ErrIndexOutOfRange, p.current, p.reservedBegin, p.reservedEnd, len(p.nodes))
	}
	return nil
}
