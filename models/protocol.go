package models

import (
	"fmt"
	"time"
)

// LaneEntry — одна дорожка протокола. Protected помечает вручную
// отредактированные записи, которые перегенерация не имеет права трогать.
type LaneEntry struct {
	Lane           int     `json:"lane"`
	RegistrationID *int    `json:"registration_id,omitempty"`
	CrewID         *int    `json:"crew_id,omitempty"`
	Name           string  `json:"name"`
	City           *string `json:"city,omitempty"`
	SportRank      *string `json:"sport_rank,omitempty"`
	Place          *int    `json:"place,omitempty"`
	FinishTime     *string `json:"finish_time,omitempty"`
	Protected      bool    `json:"protected"`
}

// SameOccupant — занята ли дорожка тем же участником (по заявке или экипажу).
func (e *LaneEntry) SameOccupant(other *LaneEntry) bool {
	if e.CrewID != nil && other.CrewID != nil {
		return *e.CrewID == *other.CrewID
	}
	if e.RegistrationID != nil && other.RegistrationID != nil {
		return *e.RegistrationID == *other.RegistrationID
	}
	return false
}

// Protocol — стартовый/финишный протокол одного заезда
// (мероприятие, класс лодки, пол, дистанция, возрастная группа).
// Хранится как самодостаточный документ; Version обеспечивает
// оптимистичную конкуренцию при частичных обновлениях.
type Protocol struct {
	Key       string      `json:"key" db:"key"`
	EventID   int         `json:"event_id" db:"event_id"`
	BoatClass BoatClass   `json:"boat_class" db:"boat_class"`
	Sex       Sex         `json:"sex" db:"sex"`
	Distance  int64       `json:"distance" db:"distance"`
	AgeGroup  string      `json:"age_group" db:"age_group"`
	Entries   []LaneEntry `json:"entries" db:"-"`
	Version   int         `json:"version" db:"version"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// ProtocolKey строит составной ключ документа. Метка возрастной группы
// входит в ключ как есть, поэтому метки обязаны быть уникальны.
func ProtocolKey(eventID int, class BoatClass, sex Sex, distance int64, ageGroup string) string {
	return fmt.Sprintf("%d:%s:%s:%d:%s", eventID, class, sex, distance, ageGroup)
}

// Entry возвращает запись дорожки или nil, если дорожка не занята.
func (p *Protocol) Entry(lane int) *LaneEntry {
	for i := range p.Entries {
		if p.Entries[i].Lane == lane {
			return &p.Entries[i]
		}
	}
	return nil
}
