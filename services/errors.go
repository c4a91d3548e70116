package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	// Ресурс не найден (универсальная)
	ErrNotFound = errors.New("requested resource not found")

	// Ошибки валидации и бизнес-правил
	ErrValidationFailed       = errors.New("validation failed")
	ErrRegistrationClosed     = errors.New("event registration is not open")
	ErrDistancesRequired      = errors.New("at least one distance is required")
	ErrUnknownBoatClass       = errors.New("boat class is not configured")
	ErrInvalidStatus          = errors.New("invalid registration status provided")
	ErrInvalidStatusChange    = errors.New("invalid registration status transition")
	ErrRegistrationNotInCrew  = errors.New("registration is not attached to a crew")
	ErrUnknownProtocolField   = errors.New("unknown protocol lane field")
	ErrProtectedOverride      = errors.New("lane entry is protected; explicit override required")

	// Конфликт вместимости: всплывает только после исчерпания внутренних повторов.
	ErrCapacityConflict = errors.New("crew capacity conflict, retries exhausted")
	// Конфликт версий документа протокола после исчерпания повторов.
	ErrProtocolConflict = errors.New("protocol document conflict, retries exhausted")

	// Ошибки, специфичные для сущностей (дублируют ErrNotFound, но дают контекст)
	ErrAthleteNotFound      = errors.New("athlete not found")
	ErrEventNotFound        = errors.New("event not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrCrewNotFound         = errors.New("crew not found")
	ErrProtocolNotFound     = errors.New("protocol not found")
	ErrLaneNotFound         = errors.New("protocol lane entry not found")
)

// ValidationError — отказ до любых изменений состояния, с деталями по полям,
// достаточными для исправления входных данных.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// IncompatibilityError — отказ слияния экипажей. Слияние отклоняется целиком,
// со всеми нарушенными ограничениями сразу; частичных слияний не бывает.
type IncompatibilityError struct {
	Reasons []string
}

func (e *IncompatibilityError) Error() string {
	return "crews are incompatible: " + strings.Join(e.Reasons, "; ")
}
