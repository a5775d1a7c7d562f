package component

import (
	"fmt"

	"github.com/milk9111/navcore/wire"
)

// AreaConfiguration addresses one navigable area: the map it belongs to and
// the area id inside that map. It is comparable and used as a map key.
type AreaConfiguration struct {
	MapID  uint32
	AreaID uint32
}

func NewAreaConfiguration(mapID, areaID uint32) AreaConfiguration {
	return AreaConfiguration{MapID: mapID, AreaID: areaID}
}

// Hash packs both ids; equal configurations always hash equal.
func (a AreaConfiguration) Hash() uint64 {
	return uint64(a.MapID)<<32 | uint64(a.AreaID)
}

// Less orders by map, then area.
func (a AreaConfiguration) Less(o AreaConfiguration) bool {
	if a.MapID != o.MapID {
		return a.MapID < o.MapID
	}
	return a.AreaID < o.AreaID
}

func (a AreaConfiguration) String() string {
	return fmt.Sprintf("%d:%d", a.MapID, a.AreaID)
}

func (a AreaConfiguration) Write(w *wire.Writer) {
	w.Uint32(a.MapID)
	w.Uint32(a.AreaID)
}

func (a *AreaConfiguration) Read(r *wire.Reader) {
	a.MapID = r.Uint32()
	a.AreaID = r.Uint32()
}

func (a AreaConfiguration) MarshalBinary() ([]byte, error) {
	w := wire.NewWriter(8)
	a.Write(w)
	return w.Bytes(), nil
}

func (a *AreaConfiguration) UnmarshalBinary(data []byte) error {
	r := wire.NewReader(data)
	a.Read(r)
	return r.Finish()
}
