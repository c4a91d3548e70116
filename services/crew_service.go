package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/DiFlector/kgb-pulse/models"
	"github.com/DiFlector/kgb-pulse/repositories"
)

// allocationRetries — сколько раз повторяется решение о размещении при
// конфликте сериализации, прежде чем всплывёт ErrCapacityConflict.
// Повтор принимает решение заново: заявка может попасть в другой экипаж
// или создать новый.
const allocationRetries = 3

type CrewService interface {
	// Allocate размещает командную заявку в старейший недоукомплектованный
	// экипаж либо создаёт новый. Вся проверка вместимости и мутация — в одной
	// транзакции с блокировкой строки экипажа.
	Allocate(ctx context.Context, reg *models.Registration, athlete *models.Athlete) (*models.Crew, models.RegistrationStatus, error)
	// Merge сливает исходные экипажи в целевой. Проверки выполняются до любых
	// изменений; при нарушении слияние отклоняется целиком.
	Merge(ctx context.Context, targetID int, sourceIDs []int) (*models.Crew, error)
	RemoveMember(ctx context.Context, registrationID int) error
	ListByEvent(ctx context.Context, eventID int) ([]*models.Crew, error)
}

type crewService struct {
	db            *sql.DB
	crewRepo      repositories.CrewRepository
	regRepo       repositories.RegistrationRepository
	eventRepo     repositories.EventRepository
	costService   CostService
	boatConfig    models.BoatClassConfig
	maxMergedSize int
	logger        *slog.Logger
}

func NewCrewService(
	db *sql.DB,
	crewRepo repositories.CrewRepository,
	regRepo repositories.RegistrationRepository,
	eventRepo repositories.EventRepository,
	costService CostService,
	boatConfig models.BoatClassConfig,
	maxMergedSize int,
	logger *slog.Logger,
) CrewService {
	if boatConfig == nil {
		boatConfig = models.DefaultBoatClassConfig()
	}
	return &crewService{
		db:            db,
		crewRepo:      crewRepo,
		regRepo:       regRepo,
		eventRepo:     eventRepo,
		costService:   costService,
		boatConfig:    boatConfig,
		maxMergedSize: maxMergedSize,
		logger:        logger,
	}
}

func (s *crewService) Allocate(ctx context.Context, reg *models.Registration, athlete *models.Athlete) (*models.Crew, models.RegistrationStatus, error) {
	event, err := s.eventRepo.GetByID(ctx, reg.EventID)
	if err != nil {
		if errors.Is(err, repositories.ErrEventNotFound) {
			return nil, "", ErrEventNotFound
		}
		return nil, "", err
	}

	var lastErr error
	for attempt := 0; attempt < allocationRetries; attempt++ {
		crew, status, err := s.allocateOnce(ctx, event, reg, athlete)
		if err == nil {
			return crew, status, nil
		}
		if !repositories.IsSerializationFailure(err) {
			return nil, "", err
		}
		lastErr = err
		s.logger.WarnContext(ctx, "crew allocation conflict, retrying",
			slog.Int("registration_id", reg.ID),
			slog.Int("attempt", attempt+1),
		)
	}
	return nil, "", fmt.Errorf("%w: %v", ErrCapacityConflict, lastErr)
}

func (s *crewService) allocateOnce(ctx context.Context, event *models.Event, reg *models.Registration, athlete *models.Athlete) (*models.Crew, models.RegistrationStatus, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to begin allocation transaction: %w", err)
	}
	defer tx.Rollback()

	crew, status, err := s.allocateInTx(ctx, tx, event, reg, athlete)
	if err != nil {
		return nil, "", err
	}

	if err := tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("failed to commit allocation: %w", err)
	}

	reg.CrewID = &crew.ID
	reg.Status = status
	return crew, status, nil
}

// allocateInTx — само решение о размещении; вызывающий владеет транзакцией.
func (s *crewService) allocateInTx(ctx context.Context, exec repositories.SQLExecutor, event *models.Event, reg *models.Registration, athlete *models.Athlete) (*models.Crew, models.RegistrationStatus, error) {
	crew, err := s.crewRepo.FindOldestAvailable(ctx, exec, reg.EventID, reg.BoatClass, reg.Sex, reg.Distance())
	if err != nil {
		return nil, "", err
	}

	if crew == nil {
		capacity := s.boatConfig.Seats(reg.BoatClass)
		crew = &models.Crew{
			EventID:      reg.EventID,
			BoatClass:    reg.BoatClass,
			Sex:          reg.Sex,
			Distance:     reg.Distance(),
			Name:         crewDisplayName(reg.BoatClass, athlete),
			City:         athlete.City,
			SeatCapacity: capacity,
			MemberCount:  0,
		}
		if err := s.crewRepo.Create(ctx, exec, crew); err != nil {
			return nil, "", err
		}
	}

	status := models.RegistrationStatusWaitingForCrew
	if crew.MemberCount+1 >= crew.SeatCapacity {
		status = models.RegistrationStatusRegistered
	}

	if err := s.regRepo.AttachToCrew(ctx, exec, reg.ID, crew.ID, status); err != nil {
		return nil, "", err
	}

	// Счётчик выводится из фактических строк, а не инкрементируется вслепую.
	count, err := s.crewRepo.RecountMembers(ctx, exec, crew.ID)
	if err != nil {
		return nil, "", err
	}
	crew.MemberCount = count

	if crew.IsFull() {
		if err := s.promoteWaitingMembers(ctx, exec, crew.ID); err != nil {
			return nil, "", err
		}
		status = models.RegistrationStatusRegistered
	}

	if err := s.costService.RecalculateCrew(ctx, exec, event, crew.ID); err != nil {
		return nil, "", err
	}

	return crew, status, nil
}

func (s *crewService) Merge(ctx context.Context, targetID int, sourceIDs []int) (*models.Crew, error) {
	if len(sourceIDs) == 0 {
		return nil, &ValidationError{Fields: map[string]string{"source_crew_ids": "at least one source crew is required"}}
	}
	for _, id := range sourceIDs {
		if id == targetID {
			return nil, &ValidationError{Fields: map[string]string{"source_crew_ids": "target crew cannot be its own source"}}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin merge transaction: %w", err)
	}
	defer tx.Rollback()

	// Блокируем экипажи в порядке возрастания id, чтобы исключить взаимные
	// блокировки встречных слияний.
	lockOrder := append([]int{targetID}, sourceIDs...)
	sort.Ints(lockOrder)

	crews := make(map[int]*models.Crew, len(lockOrder))
	for _, id := range lockOrder {
		crew, err := s.crewRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repositories.ErrCrewNotFound) {
				return nil, fmt.Errorf("%w: crew %d", ErrCrewNotFound, id)
			}
			return nil, err
		}
		crews[id] = crew
	}

	target := crews[targetID]
	sources := make([]*models.Crew, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		sources = append(sources, crews[id])
	}

	for _, crew := range crews {
		members, err := s.regRepo.ListByCrew(ctx, tx, crew.ID)
		if err != nil {
			return nil, err
		}
		crew.Members = members
	}

	if reasons := validateMerge(target, sources, s.maxMergedSize); len(reasons) > 0 {
		return nil, &IncompatibilityError{Reasons: reasons}
	}

	for _, source := range sources {
		if _, err := s.regRepo.ReassignCrew(ctx, tx, source.ID, targetID); err != nil {
			return nil, err
		}
		if err := s.crewRepo.Delete(ctx, tx, source.ID); err != nil {
			return nil, err
		}
	}

	count, err := s.crewRepo.RecountMembers(ctx, tx, targetID)
	if err != nil {
		return nil, err
	}
	target.MemberCount = count

	if target.IsFull() {
		if err := s.promoteWaitingMembers(ctx, tx, targetID); err != nil {
			return nil, err
		}
	}

	event, err := s.eventRepo.GetByID(ctx, target.EventID)
	if err != nil {
		return nil, err
	}
	if err := s.costService.RecalculateCrew(ctx, tx, event, targetID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit merge: %w", err)
	}

	s.logger.InfoContext(ctx, "crews merged",
		slog.Int("target_crew_id", targetID),
		slog.Any("source_crew_ids", sourceIDs),
		slog.Int("member_count", target.MemberCount),
	)
	target.Members = nil
	return target, nil
}

// validateMerge проверяет все ограничения слияния разом и возвращает полный
// список нарушений; пустой список означает допустимое слияние.
func validateMerge(target *models.Crew, sources []*models.Crew, maxMergedSize int) []string {
	var reasons []string

	// Однородность экипажа: слияние не смеет свести в одну лодку заявки
	// разных мероприятий или классов.
	for _, source := range sources {
		if source.EventID != target.EventID {
			reasons = append(reasons, fmt.Sprintf(
				"crew %d belongs to event %d, target crew %d belongs to event %d",
				source.ID, source.EventID, target.ID, target.EventID))
		}
		if source.BoatClass != target.BoatClass {
			reasons = append(reasons, fmt.Sprintf(
				"crew %d boat class %s differs from target crew %d class %s",
				source.ID, source.BoatClass, target.ID, target.BoatClass))
		}
	}

	total := len(target.Members)
	for _, source := range sources {
		total += len(source.Members)
	}
	if total > target.SeatCapacity {
		reasons = append(reasons, fmt.Sprintf(
			"combined member count %d exceeds target crew capacity %d", total, target.SeatCapacity))
	}
	if maxMergedSize > 0 && total > maxMergedSize {
		reasons = append(reasons, fmt.Sprintf(
			"combined member count %d exceeds merge limit %d", total, maxMergedSize))
	}

	sexes := make(map[models.Sex]struct{})
	for _, member := range target.Members {
		sexes[member.Sex] = struct{}{}
	}
	for _, source := range sources {
		for _, member := range source.Members {
			sexes[member.Sex] = struct{}{}
		}
	}
	if len(sexes) > 1 {
		reasons = append(reasons, "participants of target and source crews have different sexes")
	}

	targetDistances := distanceSet(target.Members)
	for _, source := range sources {
		if !setsIntersect(distanceSet(source.Members), targetDistances) {
			reasons = append(reasons, fmt.Sprintf(
				"crew %d shares no registered distances with target crew %d", source.ID, target.ID))
		}
	}

	return reasons
}

func (s *crewService) RemoveMember(ctx context.Context, registrationID int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	reg, err := s.regRepo.GetByIDForUpdate(ctx, tx, registrationID)
	if err != nil {
		if errors.Is(err, repositories.ErrRegistrationNotFound) {
			return ErrRegistrationNotFound
		}
		return err
	}
	if reg.CrewID == nil {
		return ErrRegistrationNotInCrew
	}
	crewID := *reg.CrewID

	crew, err := s.crewRepo.GetByIDForUpdate(ctx, tx, crewID)
	if err != nil {
		if errors.Is(err, repositories.ErrCrewNotFound) {
			return ErrCrewNotFound
		}
		return err
	}

	if err := s.regRepo.DetachFromCrew(ctx, tx, registrationID); err != nil {
		return err
	}
	if err := s.regRepo.UpdateStatus(ctx, tx, registrationID, models.RegistrationStatusQueued); err != nil {
		return err
	}

	count, err := s.crewRepo.RecountMembers(ctx, tx, crewID)
	if err != nil {
		return err
	}

	if count == 0 {
		// Экипаж уничтожается вместе с последним участником.
		if err := s.crewRepo.Delete(ctx, tx, crewID); err != nil {
			return err
		}
		return tx.Commit()
	}

	// Экипаж снова недоукомплектован: участники возвращаются в ожидание.
	members, err := s.regRepo.ListByCrew(ctx, tx, crewID)
	if err != nil {
		return err
	}
	for _, member := range members {
		if member.Status == models.RegistrationStatusRegistered {
			if err := s.regRepo.UpdateStatus(ctx, tx, member.ID, models.RegistrationStatusWaitingForCrew); err != nil {
				return err
			}
		}
	}

	event, err := s.eventRepo.GetByID(ctx, crew.EventID)
	if err != nil {
		return err
	}
	if err := s.costService.RecalculateCrew(ctx, tx, event, crewID); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *crewService) ListByEvent(ctx context.Context, eventID int) ([]*models.Crew, error) {
	crews, err := s.crewRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if crews == nil {
		return []*models.Crew{}, nil
	}
	return crews, nil
}

func (s *crewService) promoteWaitingMembers(ctx context.Context, exec repositories.SQLExecutor, crewID int) error {
	members, err := s.regRepo.ListByCrew(ctx, exec, crewID)
	if err != nil {
		return err
	}
	for _, member := range members {
		if member.Status == models.RegistrationStatusWaitingForCrew {
			if err := s.regRepo.UpdateStatus(ctx, exec, member.ID, models.RegistrationStatusRegistered); err != nil {
				return err
			}
		}
	}
	return nil
}

func crewDisplayName(class models.BoatClass, athlete *models.Athlete) string {
	if athlete != nil && athlete.City != nil && *athlete.City != "" {
		return fmt.Sprintf("%s %s", class, *athlete.City)
	}
	return fmt.Sprintf("%s сборный", class)
}
