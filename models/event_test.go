package models

import (
	"testing"
	"time"
)

func TestDisciplinesParsesConfiguration(t *testing.T) {
	event := &Event{
		ID:   1,
		Date: time.Date(2025, time.July, 12, 0, 0, 0, 0, time.UTC),
		DisciplinesJSON: `{
			"K-1": {
				"sexes": ["M", "F"],
				"distances": [200, 500],
				"age_bands": {
					"M": [{"label": "Мужчины", "min_age": 19, "max_age": 120}]
				}
			}
		}`,
	}

	disciplines, err := event.Disciplines()
	if err != nil {
		t.Fatalf("Disciplines: %v", err)
	}

	def, ok := disciplines.Definition(BoatClassK1)
	if !ok {
		t.Fatal("K-1 definition missing")
	}
	if !def.HasSex(SexFemale) || def.HasSex("X") {
		t.Error("HasSex misbehaves")
	}
	if !def.HasDistance(500) || def.HasDistance(1000) {
		t.Error("HasDistance misbehaves")
	}
	if event.Year() != 2025 {
		t.Errorf("Year() = %d", event.Year())
	}
}

func TestDisciplinesParsedOnce(t *testing.T) {
	event := &Event{
		ID:              1,
		DisciplinesJSON: `{"K-1": {"sexes": ["M"], "distances": [500], "age_bands": {}}}`,
	}

	if _, err := event.Disciplines(); err != nil {
		t.Fatalf("Disciplines: %v", err)
	}
	// Порча исходного JSON не влияет: разбор кэшируется на экземпляре.
	event.DisciplinesJSON = `broken`
	second, err := event.Disciplines()
	if err != nil {
		t.Fatalf("Disciplines (cached): %v", err)
	}
	if _, ok := second.Definition(BoatClassK1); !ok {
		t.Error("cached parse lost the definition")
	}
}

func TestDisciplinesRejectsInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"empty", ""},
		{"malformed", `{not json}`},
		{"min greater than max", `{"K-1": {"sexes": ["M"], "distances": [500], "age_bands": {"M": [{"label": "A", "min_age": 30, "max_age": 20}]}}}`},
		{"duplicate labels", `{"K-1": {"sexes": ["M"], "distances": [500], "age_bands": {"M": [{"label": "A", "min_age": 0, "max_age": 18}, {"label": "A", "min_age": 19, "max_age": 120}]}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := &Event{ID: 1, DisciplinesJSON: tt.json}
			if _, err := event.Disciplines(); err == nil {
				t.Error("expected configuration error")
			}
		})
	}
}

func TestBoatClassConfigDefaults(t *testing.T) {
	cfg := DefaultBoatClassConfig()

	if !cfg.IsSingleSeat(BoatClassK1) || !cfg.IsSingleSeat(BoatClassC1) {
		t.Error("K-1 and C-1 are single seat")
	}
	if cfg.IsSingleSeat(BoatClassD10) {
		t.Error("D-10 is not single seat")
	}
	if cfg.Seats(BoatClassD10) != 10 {
		t.Errorf("D-10 seats = %d", cfg.Seats(BoatClassD10))
	}
	if cfg.LaneLimit(BoatClassD10) != 6 {
		t.Errorf("D-10 lane limit = %d", cfg.LaneLimit(BoatClassD10))
	}
	if cfg.LaneLimit(BoatClassK2) != 9 {
		t.Errorf("K-2 lane limit = %d", cfg.LaneLimit(BoatClassK2))
	}
	// Неизвестный класс получает безопасные значения по умолчанию.
	if cfg.Seats("OC-1") != 1 || cfg.LaneLimit("OC-1") != 9 {
		t.Error("unknown class must fall back to defaults")
	}
}

func TestProtocolKey(t *testing.T) {
	key := ProtocolKey(3, BoatClassK2, SexFemale, 500, "Женщины")
	if key != "3:K-2:F:500:Женщины" {
		t.Errorf("ProtocolKey = %q", key)
	}
}
