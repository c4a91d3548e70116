package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/DiFlector/kgb-pulse/models"
	"github.com/DiFlector/kgb-pulse/repositories"
	"golang.org/x/sync/errgroup"
)

// CostSchedule — конфигурируемая шкала множителей стоимости: для одиночных
// классов аргумент — число дистанций, для экипажей — число участников.
// Шкала задаётся конфигурацией мероприятия, а не кодом.
type CostSchedule interface {
	Multiplier(count int) float64
}

// LinearSchedule — шкала по умолчанию: линейная, без скидок.
type LinearSchedule struct {
	PerUnit float64
}

func (s LinearSchedule) Multiplier(count int) float64 {
	if count < 1 {
		return 0
	}
	return s.PerUnit * float64(count)
}

// RecalculationReport — итог пакетного пересчёта. Пакет не прерывается на
// отдельной ошибке: неудачи копятся и возвращаются вместе с числом успехов.
type RecalculationReport struct {
	Updated  int      `json:"updated"`
	Failed   int      `json:"failed"`
	Failures []string `json:"failures,omitempty"`
}

type CostService interface {
	RegistrationCost(event *models.Event, reg *models.Registration) float64
	CrewTotalCost(event *models.Event, memberCount int) float64
	// RecalculateCrew переписывает cost каждой строки-участника экипажа.
	// Вызывается синхронно в той же транзакции, что и изменение состава:
	// устаревшая стоимость участника — это баг, а не eventual consistency.
	RecalculateCrew(ctx context.Context, exec repositories.SQLExecutor, event *models.Event, crewID int) error
	RecalculateEvent(ctx context.Context, eventID int) (*RecalculationReport, error)
}

type costService struct {
	db         *sql.DB
	schedule   CostSchedule
	eventRepo  repositories.EventRepository
	regRepo    repositories.RegistrationRepository
	crewRepo   repositories.CrewRepository
	boatConfig models.BoatClassConfig
	logger     *slog.Logger
}

func NewCostService(
	db *sql.DB,
	schedule CostSchedule,
	eventRepo repositories.EventRepository,
	regRepo repositories.RegistrationRepository,
	crewRepo repositories.CrewRepository,
	boatConfig models.BoatClassConfig,
	logger *slog.Logger,
) CostService {
	if schedule == nil {
		schedule = LinearSchedule{PerUnit: 1.0}
	}
	if boatConfig == nil {
		boatConfig = models.DefaultBoatClassConfig()
	}
	return &costService{
		db:         db,
		schedule:   schedule,
		eventRepo:  eventRepo,
		regRepo:    regRepo,
		crewRepo:   crewRepo,
		boatConfig: boatConfig,
		logger:     logger,
	}
}

// RegistrationCost — стоимость одиночной заявки: базовая стоимость мероприятия,
// умноженная на множитель от числа заявленных дистанций.
func (s *costService) RegistrationCost(event *models.Event, reg *models.Registration) float64 {
	return event.BaseCost * s.schedule.Multiplier(len(reg.Distances))
}

// CrewTotalCost — суммарная стоимость экипажа от размера состава.
// Делится поровну между участниками.
func (s *costService) CrewTotalCost(event *models.Event, memberCount int) float64 {
	return event.BaseCost * s.schedule.Multiplier(memberCount)
}

func (s *costService) RecalculateCrew(ctx context.Context, exec repositories.SQLExecutor, event *models.Event, crewID int) error {
	members, err := s.regRepo.ListByCrew(ctx, exec, crewID)
	if err != nil {
		return fmt.Errorf("failed to load crew %d members for cost recalculation: %w", crewID, err)
	}
	if len(members) == 0 {
		return nil
	}

	perMember := s.CrewTotalCost(event, len(members)) / float64(len(members))
	for _, member := range members {
		if err := s.regRepo.UpdateCost(ctx, exec, member.ID, perMember); err != nil {
			return fmt.Errorf("failed to update cost for registration %d: %w", member.ID, err)
		}
	}
	return nil
}

// RecalculateEvent пересчитывает стоимость всех заявок и экипажей мероприятия.
// Каждая строка/экипаж обрабатывается в собственной транзакции: ошибка одной
// не откатывает уже зафиксированные соседние. Повторный запуск с неизменными
// входными данными даёт неизменные стоимости.
func (s *costService) RecalculateEvent(ctx context.Context, eventID int) (*RecalculationReport, error) {
	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, ErrEventNotFound
	}

	registrations, err := s.regRepo.List(ctx, repositories.ListRegistrationsFilter{EventID: eventID})
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations for event %d: %w", eventID, err)
	}
	crews, err := s.crewRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list crews for event %d: %w", eventID, err)
	}

	report := &RecalculationReport{}
	var mu sync.Mutex
	recordFailure := func(desc string, err error) {
		mu.Lock()
		defer mu.Unlock()
		report.Failed++
		report.Failures = append(report.Failures, fmt.Sprintf("%s: %v", desc, err))
	}
	recordSuccess := func() {
		mu.Lock()
		defer mu.Unlock()
		report.Updated++
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, reg := range registrations {
		if reg.CrewID != nil {
			continue // участники экипажей пересчитываются по экипажу
		}
		if !s.boatConfig.IsSingleSeat(reg.BoatClass) {
			// Командная строка без экипажа (размещение не состоялось):
			// её цена назначается при размещении, а не по формуле одиночки.
			continue
		}
		reg := reg
		g.Go(func() error {
			cost := s.RegistrationCost(event, reg)
			if err := s.regRepo.UpdateCost(gCtx, nil, reg.ID, cost); err != nil {
				recordFailure(fmt.Sprintf("registration %d", reg.ID), err)
				return nil
			}
			recordSuccess()
			return nil
		})
	}

	for _, crew := range crews {
		crew := crew
		g.Go(func() error {
			if err := s.recalculateCrewInTx(gCtx, event, crew.ID); err != nil {
				recordFailure(fmt.Sprintf("crew %d", crew.ID), err)
				return nil
			}
			recordSuccess()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	s.logger.InfoContext(ctx, "event cost recalculation finished",
		slog.Int("event_id", eventID),
		slog.Int("updated", report.Updated),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

func (s *costService) recalculateCrewInTx(ctx context.Context, event *models.Event, crewID int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.RecalculateCrew(ctx, tx, event, crewID); err != nil {
		return err
	}
	return tx.Commit()
}
