// Package agegroups реализует классификацию спортсменов по возрастным
// группам дисциплины. Чистые функции без побочных эффектов.
package agegroups

import (
	"time"

	"github.com/DiFlector/kgb-pulse/models"
)

// Age считает соревновательный возраст: возраст на 31 декабря года
// проведения (день и месяц рождения не учитываются).
func Age(birthDate time.Time, eventYear int) int {
	return eventYear - birthDate.Year()
}

// Classify возвращает метку возрастной группы для спортсмена в данной
// дисциплине. Метка возвращается ровно в том виде, в каком задана в
// конфигурации (она же — часть ключа протокола). Побеждает первая группа,
// чей диапазон [MinAge, MaxAge] содержит возраст.
//
// ok=false означает "нет группы": спортсмен исключается из жеребьёвки по
// этому кортежу. Это не ошибка, а отчётный пробел конфигурации.
func Classify(birthDate time.Time, sex models.Sex, def *models.DisciplineDefinition, eventYear int) (label string, ok bool) {
	if def == nil {
		return "", false
	}
	bands, exists := def.AgeBands[sex]
	if !exists {
		return "", false
	}

	age := Age(birthDate, eventYear)
	for _, band := range bands {
		if band.Contains(age) {
			return band.Label, true
		}
	}
	return "", false
}
