package services

import (
	"github.com/DiFlector/kgb-pulse/models"
)

// --- Общие хелперы ---

func isValidRegistrationStatusTransition(current, next models.RegistrationStatus) bool {
	if current == next {
		return true
	}
	allowedTransitions := map[models.RegistrationStatus][]models.RegistrationStatus{
		models.RegistrationStatusQueued: {
			models.RegistrationStatusRegistered,
			models.RegistrationStatusDisqualified,
		},
		models.RegistrationStatusWaitingForCrew: {
			models.RegistrationStatusRegistered,
			models.RegistrationStatusDisqualified,
		},
		models.RegistrationStatusRegistered: {
			models.RegistrationStatusConfirmed,
			models.RegistrationStatusWaitingForCrew,
			models.RegistrationStatusDisqualified,
			models.RegistrationStatusNoShow,
		},
		models.RegistrationStatusConfirmed: {
			models.RegistrationStatusDisqualified,
			models.RegistrationStatusNoShow,
		},
		models.RegistrationStatusDisqualified: {},
		models.RegistrationStatusNoShow:       {},
	}
	for _, allowed := range allowedTransitions[current] {
		if next == allowed {
			return true
		}
	}
	return false
}

// distanceSet — множество дистанций, фактически заявленных участниками экипажа.
func distanceSet(members []*models.Registration) map[int64]struct{} {
	set := make(map[int64]struct{})
	for _, m := range members {
		for _, d := range m.Distances {
			set[d] = struct{}{}
		}
	}
	return set
}

func setsIntersect(a, b map[int64]struct{}) bool {
	for d := range a {
		if _, ok := b[d]; ok {
			return true
		}
	}
	return false
}
