package component

import (
	"fmt"

	"github.com/milk9111/navcore/wire"
)

// Reservation claims an area for the closed time window [Begin, End].
type Reservation struct {
	Begin    float64
	End      float64
	Reserver EntityID
}

func NewReservation(begin, end float64, reserver EntityID) (Reservation, error) {
	if begin > end {
		return Reservation{}, fmt.Errorf("%w: [%g, %g]", ErrInvalidReservation, begin, end)
	}
	return Reservation{Begin: begin, End: end, Reserver: reserver}, nil
}

// Intersects reports closed-interval overlap; it is symmetric and every
// reservation intersects itself.
func (r Reservation) Intersects(o Reservation) bool {
	return r.End >= o.Begin && r.Begin <= o.End
}

func (r Reservation) Duration() float64 {
	return r.End - r.Begin
}

func (r Reservation) String() string {
	return fmt.Sprintf("[%g,%g]@%s", r.Begin, r.End, r.Reserver)
}

func (r Reservation) Write(w *wire.Writer) {
	w.Float64(r.Begin)
	w.Float64(r.End)
	w.Uint64(uint64(r.Reserver))
}

func (r *Reservation) Read(rd *wire.Reader) {
	r.Begin = rd.Float64()
	r.End = rd.Float64()
	r.Reserver = EntityID(rd.Uint64())
}

func (r Reservation) MarshalBinary() ([]byte, error) {
	w := wire.NewWriter(24)
	r.Write(w)
	return w.Bytes(), nil
}

func (r *Reservation) UnmarshalBinary(data []byte) error {
	rd := wire.NewReader(data)
	var decoded Reservation
	decoded.Read(rd)
	if err := rd.Finish(); err != nil {
		return fmt.Errorf("navigation: decode reservation: %w", err)
	}
	if decoded.Begin > decoded.End {
		return fmt.Errorf("navigation: decode reservation: %w", ErrInvalidReservation)
	}
	*r = decoded
	return nil
}
