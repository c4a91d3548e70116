package models

import "time"

// RegistrationStatus представляет статусы заявки, соответствующие ENUM в БД.
type RegistrationStatus string

const (
	RegistrationStatusQueued         RegistrationStatus = "queued"
	RegistrationStatusWaitingForCrew RegistrationStatus = "waiting_for_crew"
	RegistrationStatusRegistered     RegistrationStatus = "registered"
	RegistrationStatusConfirmed      RegistrationStatus = "confirmed"
	RegistrationStatusDisqualified   RegistrationStatus = "disqualified"
	RegistrationStatusNoShow         RegistrationStatus = "no_show"
)

const (
	RoleCaptain = "captain"
	RoleMember  = "member"
)

// Registration — заявка спортсмена. Для одиночных классов одна строка
// покрывает все дистанции спортсмена в классе (crew_id всегда NULL).
// Для командных классов — одна строка на (спортсмен, класс, дистанция),
// после размещения всегда со ссылкой на экипаж.
type Registration struct {
	ID        int                `json:"id" db:"id"`
	AthleteID int                `json:"athlete_id" db:"athlete_id"`
	EventID   int                `json:"event_id" db:"event_id"`
	BoatClass BoatClass          `json:"boat_class" db:"boat_class"`
	Sex       Sex                `json:"sex" db:"sex"`
	Distances []int64            `json:"distances" db:"distances"`
	Status    RegistrationStatus `json:"status" db:"status"`
	Paid      bool               `json:"paid" db:"paid"`
	Cost      float64            `json:"cost" db:"cost"`
	CrewID    *int               `json:"crew_id,omitempty" db:"crew_id"`
	Role      string             `json:"role" db:"role"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"`

	Athlete *Athlete `json:"athlete,omitempty" db:"-"`
	Crew    *Crew    `json:"crew,omitempty" db:"-"`
}

// Distance возвращает единственную дистанцию командной заявки.
func (r *Registration) Distance() int64 {
	if len(r.Distances) == 0 {
		return 0
	}
	return r.Distances[0]
}

// IsEligibleForProtocol — попадает ли заявка в жеребьёвку.
func (r *Registration) IsEligibleForProtocol() bool {
	return r.Status == RegistrationStatusRegistered || r.Status == RegistrationStatusConfirmed
}
