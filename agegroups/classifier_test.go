package agegroups

import (
	"testing"
	"time"

	"github.com/DiFlector/kgb-pulse/models"
)

func birth(year int) time.Time {
	return time.Date(year, time.June, 15, 0, 0, 0, 0, time.UTC)
}

func TestAge(t *testing.T) {
	tests := []struct {
		name      string
		birthYear int
		eventYear int
		want      int
	}{
		{"same year", 2025, 2025, 0},
		{"junior", 2010, 2025, 15},
		{"veteran", 1970, 2025, 55},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Age(birth(tt.birthYear), tt.eventYear); got != tt.want {
				t.Errorf("Age(%d, %d) = %d, want %d", tt.birthYear, tt.eventYear, got, tt.want)
			}
		})
	}
}

// Возраст считается на 31 декабря: день и месяц рождения не влияют.
func TestAgeIgnoresBirthDayAndMonth(t *testing.T) {
	early := time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2010, time.December, 31, 0, 0, 0, 0, time.UTC)

	if Age(early, 2025) != Age(late, 2025) {
		t.Errorf("age must depend only on birth year: %d != %d", Age(early, 2025), Age(late, 2025))
	}
}

func TestClassify(t *testing.T) {
	def := &models.DisciplineDefinition{
		Sexes:     []models.Sex{models.SexMale, models.SexFemale},
		Distances: []int64{200, 500},
		AgeBands: map[models.Sex][]models.AgeBand{
			models.SexMale: {
				{Label: "Юноши до 19", MinAge: 0, MaxAge: 18},
				{Label: "Мужчины", MinAge: 19, MaxAge: 39},
				{Label: "Ветераны 40+", MinAge: 40, MaxAge: 120},
			},
			models.SexFemale: {
				{Label: "Женщины", MinAge: 19, MaxAge: 120},
			},
		},
	}

	tests := []struct {
		name      string
		birthYear int
		sex       models.Sex
		wantLabel string
		wantOK    bool
	}{
		{"junior boundary", 2007, models.SexMale, "Юноши до 19", true},
		{"adult lower boundary", 2006, models.SexMale, "Мужчины", true},
		{"veteran", 1980, models.SexMale, "Ветераны 40+", true},
		{"female adult", 1990, models.SexFemale, "Женщины", true},
		{"female junior has no band", 2010, models.SexFemale, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, ok := Classify(birth(tt.birthYear), tt.sex, def, 2025)
			if ok != tt.wantOK || label != tt.wantLabel {
				t.Errorf("Classify(%d, %s) = (%q, %v), want (%q, %v)",
					tt.birthYear, tt.sex, label, ok, tt.wantLabel, tt.wantOK)
			}
		})
	}
}

// Перекрывающиеся диапазоны: побеждает первая подходящая группа.
func TestClassifyFirstMatchingBandWins(t *testing.T) {
	def := &models.DisciplineDefinition{
		AgeBands: map[models.Sex][]models.AgeBand{
			models.SexMale: {
				{Label: "Спорт", MinAge: 17, MaxAge: 34},
				{Label: "Открытая", MinAge: 0, MaxAge: 120},
			},
		},
	}

	label, ok := Classify(birth(2000), models.SexMale, def, 2025)
	if !ok || label != "Спорт" {
		t.Errorf("expected first matching band %q, got (%q, %v)", "Спорт", label, ok)
	}
}

func TestClassifyMissingDefinition(t *testing.T) {
	if _, ok := Classify(birth(2000), models.SexMale, nil, 2025); ok {
		t.Error("nil definition must not classify")
	}

	def := &models.DisciplineDefinition{AgeBands: map[models.Sex][]models.AgeBand{}}
	if _, ok := Classify(birth(2000), models.SexMale, def, 2025); ok {
		t.Error("missing sex bands must not classify")
	}
}
