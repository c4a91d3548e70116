// Package protocols содержит жеребьёвку дорожек стартовых протоколов и
// hub трансляции обновлений. Жеребьёвка — чистая функция над уже
// отобранными кандидатами.
package protocols

import (
	"sort"

	"github.com/DiFlector/kgb-pulse/models"
)

// LaneDrawParams — вход жеребьёвки одного протокола.
// Candidates идут в стабильном порядке (по id спортсмена/экипажа);
// поле Lane у кандидатов игнорируется.
type LaneDrawParams struct {
	Existing   []models.LaneEntry
	Candidates []models.LaneEntry
	LaneLimit  int
}

type Generator interface {
	GenerateDraw(params LaneDrawParams) []models.LaneEntry

	GetName() string
}

type laneDrawGenerator struct{}

func NewLaneDrawGenerator() Generator {
	return &laneDrawGenerator{}
}

func (g *laneDrawGenerator) GetName() string {
	return "LaneDraw"
}

// GenerateDraw строит записи дорожек 1..LaneLimit.
// Правила перегенерации:
//   - защищённые записи сохраняются на своих дорожках как есть;
//   - незащищённые записи, чей участник всё ещё в пуле кандидатов,
//     остаются на месте вместе с результатами (место, время финиша);
//   - участник не может занимать две дорожки;
//   - свободные дорожки заполняются оставшимися кандидатами по порядку.
//
// При неизменном входе результат детерминирован и идемпотентен.
func (g *laneDrawGenerator) GenerateDraw(params LaneDrawParams) []models.LaneEntry {
	limit := params.LaneLimit
	occupied := make(map[int]models.LaneEntry, limit)

	for _, entry := range params.Existing {
		if entry.Protected {
			occupied[entry.Lane] = entry
		}
	}

	for _, entry := range params.Existing {
		if entry.Protected {
			continue
		}
		candidate := findCandidate(params.Candidates, entry)
		if candidate == nil {
			continue // участник выбыл из пула — дорожка освобождается
		}
		if _, busy := occupied[entry.Lane]; busy || entry.Lane < 1 || entry.Lane > limit {
			continue
		}
		if occupantPresent(occupied, entry) {
			continue
		}
		refreshed := entry
		refreshed.Name = candidate.Name
		refreshed.City = candidate.City
		refreshed.SportRank = candidate.SportRank
		occupied[entry.Lane] = refreshed
	}

	lane := 1
	for _, candidate := range params.Candidates {
		if occupantPresent(occupied, candidate) {
			continue
		}
		for lane <= limit {
			if _, busy := occupied[lane]; !busy {
				break
			}
			lane++
		}
		if lane > limit {
			break
		}
		candidate.Lane = lane
		occupied[lane] = candidate
		lane++
	}

	entries := make([]models.LaneEntry, 0, len(occupied))
	for _, entry := range occupied {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Lane < entries[j].Lane })
	return entries
}

func findCandidate(candidates []models.LaneEntry, entry models.LaneEntry) *models.LaneEntry {
	for i := range candidates {
		if candidates[i].SameOccupant(&entry) {
			return &candidates[i]
		}
	}
	return nil
}

func occupantPresent(occupied map[int]models.LaneEntry, entry models.LaneEntry) bool {
	for _, existing := range occupied {
		if existing.SameOccupant(&entry) {
			return true
		}
	}
	return false
}
