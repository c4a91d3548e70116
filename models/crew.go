package models

import "time"

// Crew — экипаж командной лодки. Инвариант: MemberCount <= SeatCapacity,
// все участники разделяют (event, boat_class, sex, distance), а счётчик
// меняется только вместе с набором участников в одной транзакции.
type Crew struct {
	ID           int       `json:"id" db:"id"`
	EventID      int       `json:"event_id" db:"event_id"`
	BoatClass    BoatClass `json:"boat_class" db:"boat_class"`
	Sex          Sex       `json:"sex" db:"sex"`
	Distance     int64     `json:"distance" db:"distance"`
	Name         string    `json:"name" db:"name"`
	City         *string   `json:"city,omitempty" db:"city"`
	SeatCapacity int       `json:"seat_capacity" db:"seat_capacity"`
	MemberCount  int       `json:"member_count" db:"member_count"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`

	Members []*Registration `json:"members,omitempty" db:"-"`
}

func (c *Crew) IsFull() bool {
	return c.MemberCount >= c.SeatCapacity
}
