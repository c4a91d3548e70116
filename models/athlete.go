package models

import "time"

// Sex — канонические значения пола, соответствующие ENUM в БД.
// Импортёр нормализует входные данные до этих значений.
type Sex string

const (
	SexMale   Sex = "M"
	SexFemale Sex = "F"
)

type Athlete struct {
	ID        int       `json:"id" db:"id"`
	LastName  string    `json:"last_name" db:"last_name"`
	FirstName string    `json:"first_name" db:"first_name"`
	Sex       Sex       `json:"sex" db:"sex"`
	BirthDate time.Time `json:"birth_date" db:"birth_date"`
	SportRank *string   `json:"sport_rank,omitempty" db:"sport_rank"`
	City      *string   `json:"city,omitempty" db:"city"`
	Country   *string   `json:"country,omitempty" db:"country"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (a *Athlete) FullName() string {
	if a.FirstName == "" {
		return a.LastName
	}
	return a.LastName + " " + a.FirstName
}
