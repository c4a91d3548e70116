package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventStatus представляет статусы мероприятия, соответствующие ENUM в БД.
type EventStatus string

const (
	EventStatusPlanned      EventStatus = "planned"
	EventStatusRegistration EventStatus = "registration"
	EventStatusInProgress   EventStatus = "in_progress"
	EventStatusCompleted    EventStatus = "completed"
)

// AgeBand — возрастная группа дисциплины. Label используется как идентификатор
// группы в ключах протоколов, поэтому должен быть уникален внутри (класс, пол).
type AgeBand struct {
	Label  string `json:"label"`
	MinAge int    `json:"min_age"`
	MaxAge int    `json:"max_age"`
}

func (b AgeBand) Contains(age int) bool {
	return age >= b.MinAge && age <= b.MaxAge
}

// DisciplineDefinition — разобранная конфигурация одной дисциплины (класса лодки).
type DisciplineDefinition struct {
	Sexes     []Sex           `json:"sexes"`
	Distances []int64         `json:"distances"`
	AgeBands  map[Sex][]AgeBand `json:"age_bands"`
}

func (d *DisciplineDefinition) HasSex(sex Sex) bool {
	for _, s := range d.Sexes {
		if s == sex {
			return true
		}
	}
	return false
}

func (d *DisciplineDefinition) HasDistance(distance int64) bool {
	for _, dist := range d.Distances {
		if dist == distance {
			return true
		}
	}
	return false
}

type DisciplineMap map[BoatClass]*DisciplineDefinition

func (m DisciplineMap) Definition(class BoatClass) (*DisciplineDefinition, bool) {
	def, ok := m[class]
	return def, ok
}

// Event — мероприятие. Конфигурация дисциплин хранится в БД как JSON и
// разбирается один раз через Disciplines(), а не при каждой классификации.
type Event struct {
	ID              int         `json:"id" db:"id"`
	Name            string      `json:"name" db:"name"`
	Date            time.Time   `json:"date" db:"date"`
	BaseCost        float64     `json:"base_cost" db:"base_cost"`
	Status          EventStatus `json:"status" db:"status"`
	Location        *string     `json:"location,omitempty" db:"location"`
	DisciplinesJSON string      `json:"-" db:"disciplines_json"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`

	parsed DisciplineMap `json:"-" db:"-"`
}

// Disciplines разбирает конфигурацию дисциплин (единожды на экземпляр) и
// проверяет, что метки возрастных групп не коллидируют внутри (класс, пол).
func (e *Event) Disciplines() (DisciplineMap, error) {
	if e.parsed != nil {
		return e.parsed, nil
	}
	if e.DisciplinesJSON == "" {
		return nil, fmt.Errorf("event %d has no discipline configuration", e.ID)
	}

	var raw map[BoatClass]*DisciplineDefinition
	if err := json.Unmarshal([]byte(e.DisciplinesJSON), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse disciplines for event %d: %w", e.ID, err)
	}

	for class, def := range raw {
		if def == nil {
			return nil, fmt.Errorf("event %d: empty definition for class %s", e.ID, class)
		}
		for sex, bands := range def.AgeBands {
			seen := make(map[string]struct{}, len(bands))
			for _, band := range bands {
				if band.MinAge > band.MaxAge {
					return nil, fmt.Errorf("event %d: class %s sex %s: band %q has min_age > max_age", e.ID, class, sex, band.Label)
				}
				if _, dup := seen[band.Label]; dup {
					return nil, fmt.Errorf("event %d: class %s sex %s: duplicate age band label %q", e.ID, class, sex, band.Label)
				}
				seen[band.Label] = struct{}{}
			}
		}
	}

	e.parsed = raw
	return e.parsed, nil
}

// Year — год проведения; возраст считается на 31 декабря этого года.
func (e *Event) Year() int {
	return e.Date.Year()
}
