package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DiFlector/kgb-pulse/models"
	"github.com/DiFlector/kgb-pulse/repositories"
)

// CreateRegistrationInput — запрос на создание заявки. Поступает от
// импортёра (построчно) или из самостоятельной регистрации; коды класса
// лодки и пола уже нормализованы до значений моделей.
type CreateRegistrationInput struct {
	AthleteID int              `json:"athlete_id"`
	EventID   int              `json:"event_id"`
	BoatClass models.BoatClass `json:"boat_class"`
	Sex       models.Sex       `json:"sex"`
	Distances []int64          `json:"distances"`
	Role      string           `json:"role"`
	Paid      bool             `json:"paid"`
}

type RegistrationService interface {
	// Create создаёт заявку: для одиночного класса — одну строку на все
	// дистанции, для командного — строку на каждую дистанцию с немедленным
	// размещением в экипаж. Валидация против DisciplineDefinition выполняется
	// до любых изменений состояния.
	Create(ctx context.Context, input CreateRegistrationInput) ([]*models.Registration, error)
	GetByID(ctx context.Context, id int) (*models.Registration, error)
	ListByEvent(ctx context.Context, eventID int) ([]*models.Registration, error)
	// ConfirmPayment — реакция на подтверждение оплаты внешней подсистемой.
	ConfirmPayment(ctx context.Context, id int) (*models.Registration, error)
	// SetStatus — административный перевод статуса.
	SetStatus(ctx context.Context, id int, status models.RegistrationStatus) (*models.Registration, error)
}

type registrationService struct {
	regRepo     repositories.RegistrationRepository
	athleteRepo repositories.AthleteRepository
	eventRepo   repositories.EventRepository
	crewService CrewService
	costService CostService
	boatConfig  models.BoatClassConfig
	logger      *slog.Logger
}

func NewRegistrationService(
	regRepo repositories.RegistrationRepository,
	athleteRepo repositories.AthleteRepository,
	eventRepo repositories.EventRepository,
	crewService CrewService,
	costService CostService,
	boatConfig models.BoatClassConfig,
	logger *slog.Logger,
) RegistrationService {
	if boatConfig == nil {
		boatConfig = models.DefaultBoatClassConfig()
	}
	return &registrationService{
		regRepo:     regRepo,
		athleteRepo: athleteRepo,
		eventRepo:   eventRepo,
		crewService: crewService,
		costService: costService,
		boatConfig:  boatConfig,
		logger:      logger,
	}
}

func (s *registrationService) Create(ctx context.Context, input CreateRegistrationInput) ([]*models.Registration, error) {
	athlete, err := s.athleteRepo.GetByID(ctx, input.AthleteID)
	if err != nil {
		if errors.Is(err, repositories.ErrAthleteNotFound) {
			return nil, ErrAthleteNotFound
		}
		return nil, err
	}

	event, err := s.eventRepo.GetByID(ctx, input.EventID)
	if err != nil {
		if errors.Is(err, repositories.ErrEventNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	if event.Status != models.EventStatusRegistration {
		return nil, ErrRegistrationClosed
	}

	if err := validateRegistrationInput(event, athlete, input); err != nil {
		return nil, err
	}

	if s.boatConfig.IsSingleSeat(input.BoatClass) {
		return s.createSingleSeat(ctx, event, input)
	}
	return s.createMultiSeat(ctx, event, athlete, input)
}

// validateRegistrationInput проверяет заявку против конфигурации дисциплин
// мероприятия. Любое нарушение отклоняет заявку до изменений состояния.
func validateRegistrationInput(event *models.Event, athlete *models.Athlete, input CreateRegistrationInput) error {
	fields := make(map[string]string)

	disciplines, err := event.Disciplines()
	if err != nil {
		return fmt.Errorf("event %d disciplines are misconfigured: %w", event.ID, err)
	}

	def, ok := disciplines.Definition(input.BoatClass)
	if !ok {
		fields["boat_class"] = fmt.Sprintf("class %s is not offered by this event", input.BoatClass)
		return &ValidationError{Fields: fields}
	}

	if input.Sex != athlete.Sex {
		fields["sex"] = fmt.Sprintf("registration sex %s does not match athlete sex %s", input.Sex, athlete.Sex)
	}
	if !def.HasSex(input.Sex) {
		fields["sex"] = fmt.Sprintf("class %s is not offered for sex %s", input.BoatClass, input.Sex)
	}

	if len(input.Distances) == 0 {
		fields["distances"] = "at least one distance is required"
	}
	for _, distance := range input.Distances {
		if !def.HasDistance(distance) {
			fields["distances"] = fmt.Sprintf("distance %d is not offered for class %s", distance, input.BoatClass)
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (s *registrationService) createSingleSeat(ctx context.Context, event *models.Event, input CreateRegistrationInput) ([]*models.Registration, error) {
	status := models.RegistrationStatusQueued
	if input.Paid {
		status = models.RegistrationStatusRegistered
	}

	reg := &models.Registration{
		AthleteID: input.AthleteID,
		EventID:   input.EventID,
		BoatClass: input.BoatClass,
		Sex:       input.Sex,
		Distances: input.Distances,
		Status:    status,
		Paid:      input.Paid,
		Role:      models.RoleCaptain,
	}
	reg.Cost = s.costService.RegistrationCost(event, reg)

	if err := s.regRepo.Create(ctx, nil, reg); err != nil {
		return nil, mapRegistrationRepoError(err)
	}
	return []*models.Registration{reg}, nil
}

// createMultiSeat создаёт по строке на каждую дистанцию и сразу размещает
// каждую в экипаж. Строки независимы: ошибка одной дистанции не откатывает
// уже созданные (построчная семантика импортёра).
func (s *registrationService) createMultiSeat(ctx context.Context, event *models.Event, athlete *models.Athlete, input CreateRegistrationInput) ([]*models.Registration, error) {
	role := input.Role
	if role == "" {
		role = models.RoleMember
	}

	created := make([]*models.Registration, 0, len(input.Distances))
	for _, distance := range input.Distances {
		reg := &models.Registration{
			AthleteID: input.AthleteID,
			EventID:   input.EventID,
			BoatClass: input.BoatClass,
			Sex:       input.Sex,
			Distances: []int64{distance},
			Status:    models.RegistrationStatusWaitingForCrew,
			Paid:      input.Paid,
			Role:      role,
		}
		if err := s.regRepo.Create(ctx, nil, reg); err != nil {
			if len(created) > 0 {
				return created, mapRegistrationRepoError(err)
			}
			return nil, mapRegistrationRepoError(err)
		}

		crew, status, err := s.crewService.Allocate(ctx, reg, athlete)
		if err != nil {
			return created, fmt.Errorf("registration %d created but crew allocation failed: %w", reg.ID, err)
		}
		reg.Crew = crew
		reg.Status = status
		created = append(created, reg)
	}
	return created, nil
}

func (s *registrationService) GetByID(ctx context.Context, id int) (*models.Registration, error) {
	reg, err := s.regRepo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRegistrationRepoError(err)
	}
	return reg, nil
}

func (s *registrationService) ListByEvent(ctx context.Context, eventID int) ([]*models.Registration, error) {
	regs, err := s.regRepo.List(ctx, repositories.ListRegistrationsFilter{EventID: eventID})
	if err != nil {
		return nil, err
	}
	if regs == nil {
		return []*models.Registration{}, nil
	}
	return regs, nil
}

func (s *registrationService) ConfirmPayment(ctx context.Context, id int) (*models.Registration, error) {
	reg, err := s.regRepo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRegistrationRepoError(err)
	}

	if err := s.regRepo.UpdatePaid(ctx, nil, id, true); err != nil {
		return nil, mapRegistrationRepoError(err)
	}

	// Одиночные заявки оплата продвигает в Registered; командные строки
	// управляются заполненностью экипажа, а не оплатой.
	if reg.CrewID == nil && reg.Status == models.RegistrationStatusQueued {
		if err := s.regRepo.UpdateStatus(ctx, nil, id, models.RegistrationStatusRegistered); err != nil {
			return nil, mapRegistrationRepoError(err)
		}
	}

	return s.regRepo.GetByID(ctx, id)
}

func (s *registrationService) SetStatus(ctx context.Context, id int, status models.RegistrationStatus) (*models.Registration, error) {
	switch status {
	case models.RegistrationStatusQueued, models.RegistrationStatusWaitingForCrew,
		models.RegistrationStatusRegistered, models.RegistrationStatusConfirmed,
		models.RegistrationStatusDisqualified, models.RegistrationStatusNoShow:
	default:
		return nil, ErrInvalidStatus
	}

	reg, err := s.regRepo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRegistrationRepoError(err)
	}

	if !isValidRegistrationStatusTransition(reg.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusChange, reg.Status, status)
	}

	if err := s.regRepo.UpdateStatus(ctx, nil, id, status); err != nil {
		return nil, mapRegistrationRepoError(err)
	}
	reg.Status = status
	return reg, nil
}

func mapRegistrationRepoError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrRegistrationNotFound):
		return ErrRegistrationNotFound
	case errors.Is(err, repositories.ErrRegistrationAthleteInvalid):
		return ErrAthleteNotFound
	case errors.Is(err, repositories.ErrRegistrationEventInvalid):
		return ErrEventNotFound
	default:
		return err
	}
}
