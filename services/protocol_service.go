package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/DiFlector/kgb-pulse/agegroups"
	"github.com/DiFlector/kgb-pulse/models"
	"github.com/DiFlector/kgb-pulse/protocols"
	"github.com/DiFlector/kgb-pulse/repositories"
	"github.com/DiFlector/kgb-pulse/storage"
	"golang.org/x/sync/errgroup"
)

// protocolUpdateRetries — повторы read-modify-write при версионном конфликте.
// Обновления разных дорожек независимы и при повторе сливаются без потерь.
const protocolUpdateRetries = 5

// BuildReport — итог пакетной генерации протоколов мероприятия. Генерация
// не прерывается на отдельном кортеже: ошибки и отчётные пробелы
// (спортсмен без возрастной группы, недоукомплектованный экипаж) копятся.
type BuildReport struct {
	Keys     []string `json:"keys"`
	Failures []string `json:"failures,omitempty"`
	Gaps     []string `json:"gaps,omitempty"`
}

type ProtocolService interface {
	// BuildEventProtocols перебирает все кортежи (класс, пол, дистанция,
	// возрастная группа) из конфигурации дисциплин и создаёт либо обновляет
	// документ протокола каждого. Повторная генерация без изменений состава
	// даёт идентичные назначения дорожек; защищённые записи сохраняются.
	BuildEventProtocols(ctx context.Context, eventID int) (*BuildReport, error)
	GetProtocol(ctx context.Context, key string) (*models.Protocol, error)
	ListEventProtocols(ctx context.Context, eventID int) ([]*models.Protocol, error)
	// UpdateLaneField — запись результата в одну дорожку: пополевое слияние
	// в существующий документ, без перегенерации остальных записей.
	UpdateLaneField(ctx context.Context, key string, lane int, field string, value interface{}, override bool) (*models.Protocol, error)
}

type protocolService struct {
	protocolRepo repositories.ProtocolRepository
	regRepo      repositories.RegistrationRepository
	athleteRepo  repositories.AthleteRepository
	crewRepo     repositories.CrewRepository
	eventRepo    repositories.EventRepository
	generator    protocols.Generator
	hub          *protocols.Hub
	uploader     storage.FileUploader
	boatConfig   models.BoatClassConfig
	logger       *slog.Logger
}

func NewProtocolService(
	protocolRepo repositories.ProtocolRepository,
	regRepo repositories.RegistrationRepository,
	athleteRepo repositories.AthleteRepository,
	crewRepo repositories.CrewRepository,
	eventRepo repositories.EventRepository,
	generator protocols.Generator,
	hub *protocols.Hub,
	uploader storage.FileUploader,
	boatConfig models.BoatClassConfig,
	logger *slog.Logger,
) ProtocolService {
	if boatConfig == nil {
		boatConfig = models.DefaultBoatClassConfig()
	}
	return &protocolService{
		protocolRepo: protocolRepo,
		regRepo:      regRepo,
		athleteRepo:  athleteRepo,
		crewRepo:     crewRepo,
		eventRepo:    eventRepo,
		generator:    generator,
		hub:          hub,
		uploader:     uploader,
		boatConfig:   boatConfig,
		logger:       logger,
	}
}

// buildTask — один кортеж жеребьёвки.
type buildTask struct {
	class      models.BoatClass
	sex        models.Sex
	distance   int64
	ageGroup   string
	candidates []models.LaneEntry
	laneLimit  int
}

func (s *protocolService) BuildEventProtocols(ctx context.Context, eventID int) (*BuildReport, error) {
	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repositories.ErrEventNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}

	disciplines, err := event.Disciplines()
	if err != nil {
		return nil, err
	}

	regs, err := s.regRepo.List(ctx, repositories.ListRegistrationsFilter{
		EventID: eventID,
		Statuses: []models.RegistrationStatus{
			models.RegistrationStatusRegistered,
			models.RegistrationStatusConfirmed,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible registrations: %w", err)
	}

	athleteIDs := make([]int, 0, len(regs))
	seen := make(map[int]struct{}, len(regs))
	for _, reg := range regs {
		if _, ok := seen[reg.AthleteID]; !ok {
			seen[reg.AthleteID] = struct{}{}
			athleteIDs = append(athleteIDs, reg.AthleteID)
		}
	}
	athletes, err := s.athleteRepo.ListByIDs(ctx, athleteIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load athletes: %w", err)
	}

	crewList, err := s.crewRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load crews: %w", err)
	}
	crews := make(map[int]*models.Crew, len(crewList))
	for _, crew := range crewList {
		crews[crew.ID] = crew
	}

	report := &BuildReport{}
	tasks := s.collectBuildTasks(event, disciplines, regs, athletes, crews, report)

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, task := range tasks {
		task := task
		g.Go(func() error {
			key, err := s.buildOne(gCtx, event, task)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failures = append(report.Failures, fmt.Sprintf("%s: %v", task.describe(eventID), err))
				return nil
			}
			if key != "" {
				report.Keys = append(report.Keys, key)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	sort.Strings(report.Keys)
	s.logger.InfoContext(ctx, "event protocols built",
		slog.Int("event_id", eventID),
		slog.Int("protocols", len(report.Keys)),
		slog.Int("failures", len(report.Failures)),
		slog.Int("gaps", len(report.Gaps)),
	)
	return report, nil
}

func (t buildTask) describe(eventID int) string {
	return models.ProtocolKey(eventID, t.class, t.sex, t.distance, t.ageGroup)
}

// collectBuildTasks группирует заявки по кортежам. Кандидаты идут в
// стабильном порядке (по id спортсмена/экипажа), чтобы жеребьёвка была
// детерминированной между запусками.
func (s *protocolService) collectBuildTasks(
	event *models.Event,
	disciplines models.DisciplineMap,
	regs []*models.Registration,
	athletes map[int]*models.Athlete,
	crews map[int]*models.Crew,
	report *BuildReport,
) []buildTask {
	classes := make([]models.BoatClass, 0, len(disciplines))
	for class := range disciplines {
		classes = append(classes, class)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })

	var tasks []buildTask
	for _, class := range classes {
		def := disciplines[class]
		laneLimit := s.boatConfig.LaneLimit(class)
		singleSeat := s.boatConfig.IsSingleSeat(class)

		for _, sex := range def.Sexes {
			for _, distance := range def.Distances {
				var byGroup map[string][]models.LaneEntry
				if singleSeat {
					byGroup = s.collectSingleSeatCandidates(event, def, regs, athletes, class, sex, distance, report)
				} else {
					byGroup = s.collectCrewCandidates(event, def, regs, athletes, crews, class, sex, distance, report)
				}

				groups := make([]string, 0, len(byGroup))
				for group := range byGroup {
					groups = append(groups, group)
				}
				sort.Strings(groups)
				for _, group := range groups {
					tasks = append(tasks, buildTask{
						class:      class,
						sex:        sex,
						distance:   distance,
						ageGroup:   group,
						candidates: byGroup[group],
						laneLimit:  laneLimit,
					})
				}
			}
		}
	}
	return tasks
}

func (s *protocolService) collectSingleSeatCandidates(
	event *models.Event,
	def *models.DisciplineDefinition,
	regs []*models.Registration,
	athletes map[int]*models.Athlete,
	class models.BoatClass,
	sex models.Sex,
	distance int64,
	report *BuildReport,
) map[string][]models.LaneEntry {
	type candidate struct {
		athleteID int
		entry     models.LaneEntry
	}
	byGroup := make(map[string][]candidate)

	for _, reg := range regs {
		if reg.BoatClass != class || reg.Sex != sex {
			continue
		}
		registered := false
		for _, d := range reg.Distances {
			if d == distance {
				registered = true
				break
			}
		}
		if !registered {
			continue
		}

		athlete, ok := athletes[reg.AthleteID]
		if !ok {
			report.Gaps = append(report.Gaps, fmt.Sprintf("registration %d: athlete %d not found", reg.ID, reg.AthleteID))
			continue
		}
		label, ok := agegroups.Classify(athlete.BirthDate, sex, def, event.Year())
		if !ok {
			report.Gaps = append(report.Gaps, fmt.Sprintf(
				"athlete %d (%s): no age group for class %s sex %s", athlete.ID, athlete.FullName(), class, sex))
			continue
		}

		regID := reg.ID
		byGroup[label] = append(byGroup[label], candidate{
			athleteID: athlete.ID,
			entry: models.LaneEntry{
				RegistrationID: &regID,
				Name:           athlete.FullName(),
				City:           athlete.City,
				SportRank:      athlete.SportRank,
			},
		})
	}

	result := make(map[string][]models.LaneEntry, len(byGroup))
	for label, candidates := range byGroup {
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].athleteID < candidates[j].athleteID })
		entries := make([]models.LaneEntry, len(candidates))
		for i, c := range candidates {
			entries[i] = c.entry
		}
		result[label] = entries
	}
	return result
}

// collectCrewCandidates выставляет на жеребьёвку полные экипажи (одна дорожка
// на экипаж). Возрастная группа экипажа определяется по самому молодому
// участнику. Недоукомплектованный экипаж — отчётный пробел, не ошибка.
func (s *protocolService) collectCrewCandidates(
	event *models.Event,
	def *models.DisciplineDefinition,
	regs []*models.Registration,
	athletes map[int]*models.Athlete,
	crews map[int]*models.Crew,
	class models.BoatClass,
	sex models.Sex,
	distance int64,
	report *BuildReport,
) map[string][]models.LaneEntry {
	membersByCrew := make(map[int][]*models.Registration)
	for _, reg := range regs {
		if reg.BoatClass != class || reg.Sex != sex || reg.Distance() != distance {
			continue
		}
		if reg.CrewID == nil {
			continue // переходное состояние во время размещения
		}
		membersByCrew[*reg.CrewID] = append(membersByCrew[*reg.CrewID], reg)
	}

	crewIDs := make([]int, 0, len(membersByCrew))
	for crewID := range membersByCrew {
		crewIDs = append(crewIDs, crewID)
	}
	sort.Ints(crewIDs)

	byGroup := make(map[string][]models.LaneEntry)
	for _, crewID := range crewIDs {
		crew, ok := crews[crewID]
		if !ok {
			report.Gaps = append(report.Gaps, fmt.Sprintf("crew %d referenced by registrations but not found", crewID))
			continue
		}
		if !crew.IsFull() {
			report.Gaps = append(report.Gaps, fmt.Sprintf(
				"crew %d (%s): not full (%d/%d), excluded from draw", crew.ID, crew.Name, crew.MemberCount, crew.SeatCapacity))
			continue
		}

		youngest := youngestMemberBirthDate(membersByCrew[crewID], athletes)
		if youngest == nil {
			report.Gaps = append(report.Gaps, fmt.Sprintf("crew %d: member athletes not found", crewID))
			continue
		}
		label, ok := agegroups.Classify(*youngest, sex, def, event.Year())
		if !ok {
			report.Gaps = append(report.Gaps, fmt.Sprintf(
				"crew %d (%s): no age group for class %s sex %s", crew.ID, crew.Name, class, sex))
			continue
		}

		id := crew.ID
		byGroup[label] = append(byGroup[label], models.LaneEntry{
			CrewID: &id,
			Name:   crew.Name,
			City:   crew.City,
		})
	}
	return byGroup
}

func (s *protocolService) buildOne(ctx context.Context, event *models.Event, task buildTask) (string, error) {
	key := models.ProtocolKey(event.ID, task.class, task.sex, task.distance, task.ageGroup)

	for attempt := 0; attempt < protocolUpdateRetries; attempt++ {
		existing, err := s.protocolRepo.Get(ctx, key)
		if err != nil && !errors.Is(err, repositories.ErrProtocolNotFound) {
			return "", err
		}

		var existingEntries []models.LaneEntry
		if existing != nil {
			existingEntries = existing.Entries
		}
		entries := s.generator.GenerateDraw(protocols.LaneDrawParams{
			Existing:   existingEntries,
			Candidates: task.candidates,
			LaneLimit:  task.laneLimit,
		})

		if existing == nil {
			if len(entries) == 0 {
				return "", nil // нет участников — документ не создаётся
			}
			p := &models.Protocol{
				Key:       key,
				EventID:   event.ID,
				BoatClass: task.class,
				Sex:       task.sex,
				Distance:  task.distance,
				AgeGroup:  task.ageGroup,
				Entries:   entries,
			}
			if err := s.protocolRepo.Insert(ctx, p); err != nil {
				if errors.Is(err, repositories.ErrProtocolVersionConflict) {
					continue // документ успел появиться — сливаем с ним
				}
				return "", err
			}
			s.publishSnapshot(ctx, p)
			s.broadcast(key, "PROTOCOL_BUILT", p)
			return key, nil
		}

		if reflect.DeepEqual(existing.Entries, entries) {
			return key, nil // вход не менялся — запись не нужна
		}

		existing.Entries = entries
		if err := s.protocolRepo.UpdateDocument(ctx, existing, existing.Version); err != nil {
			if errors.Is(err, repositories.ErrProtocolVersionConflict) {
				continue
			}
			return "", err
		}
		s.publishSnapshot(ctx, existing)
		s.broadcast(key, "PROTOCOL_BUILT", existing)
		return key, nil
	}
	return "", ErrProtocolConflict
}

func (s *protocolService) GetProtocol(ctx context.Context, key string) (*models.Protocol, error) {
	p, err := s.protocolRepo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, repositories.ErrProtocolNotFound) {
			return nil, ErrProtocolNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *protocolService) ListEventProtocols(ctx context.Context, eventID int) ([]*models.Protocol, error) {
	list, err := s.protocolRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		return []*models.Protocol{}, nil
	}
	return list, nil
}

func (s *protocolService) UpdateLaneField(ctx context.Context, key string, lane int, field string, value interface{}, override bool) (*models.Protocol, error) {
	for attempt := 0; attempt < protocolUpdateRetries; attempt++ {
		p, err := s.protocolRepo.Get(ctx, key)
		if err != nil {
			if errors.Is(err, repositories.ErrProtocolNotFound) {
				return nil, ErrProtocolNotFound
			}
			return nil, err
		}

		entry := p.Entry(lane)
		if entry == nil {
			return nil, fmt.Errorf("%w: lane %d in protocol %s", ErrLaneNotFound, lane, key)
		}
		if entry.Protected && !override {
			return nil, ErrProtectedOverride
		}

		if err := applyLaneField(entry, field, value); err != nil {
			return nil, err
		}

		if err := s.protocolRepo.UpdateDocument(ctx, p, p.Version); err != nil {
			if errors.Is(err, repositories.ErrProtocolVersionConflict) {
				continue // параллельное обновление другой дорожки — повторяем слияние
			}
			if errors.Is(err, repositories.ErrProtocolNotFound) {
				return nil, ErrProtocolNotFound
			}
			return nil, err
		}

		s.broadcast(key, "LANE_UPDATED", map[string]interface{}{
			"key":   key,
			"lane":  lane,
			"field": field,
			"value": value,
		})
		return p, nil
	}
	return nil, ErrProtocolConflict
}

// applyLaneField применяет пополевое изменение. Ручная правка занятости
// дорожки (имя, флаг защиты) помечает запись защищённой; запись результата
// (место, время финиша) — обычный рабочий поток, защиту не включает.
func applyLaneField(entry *models.LaneEntry, field string, value interface{}) error {
	switch field {
	case "place":
		switch v := value.(type) {
		case nil:
			entry.Place = nil
		case float64:
			place := int(v)
			entry.Place = &place
		default:
			return &ValidationError{Fields: map[string]string{"value": "place must be a number or null"}}
		}
	case "finish_time":
		switch v := value.(type) {
		case nil:
			entry.FinishTime = nil
		case string:
			entry.FinishTime = &v
		default:
			return &ValidationError{Fields: map[string]string{"value": "finish_time must be a string or null"}}
		}
	case "name":
		v, ok := value.(string)
		if !ok || v == "" {
			return &ValidationError{Fields: map[string]string{"value": "name must be a non-empty string"}}
		}
		entry.Name = v
		entry.Protected = true
	case "protected":
		v, ok := value.(bool)
		if !ok {
			return &ValidationError{Fields: map[string]string{"value": "protected must be a boolean"}}
		}
		entry.Protected = v
	default:
		return fmt.Errorf("%w: %s", ErrUnknownProtocolField, field)
	}
	return nil
}

// publishSnapshot выгружает самодостаточный JSON-документ протокола в
// объектное хранилище. Ошибка публикации не срывает генерацию.
func (s *protocolService) publishSnapshot(ctx context.Context, p *models.Protocol) {
	if s.uploader == nil {
		return
	}
	payload, err := json.Marshal(p)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to marshal protocol snapshot", slog.String("key", p.Key), slog.Any("error", err))
		return
	}
	objectKey := fmt.Sprintf("protocols/%d/%s.json", p.EventID, p.Key)
	if _, err := s.uploader.Upload(ctx, objectKey, "application/json", bytes.NewReader(payload)); err != nil {
		s.logger.WarnContext(ctx, "failed to publish protocol snapshot", slog.String("key", p.Key), slog.Any("error", err))
	}
}

func (s *protocolService) broadcast(key, messageType string, payload interface{}) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastToRoom(key, protocols.WebSocketMessage{
		Type:    messageType,
		Payload: payload,
		RoomID:  key,
	})
}

func youngestMemberBirthDate(members []*models.Registration, athletes map[int]*models.Athlete) *time.Time {
	var youngest *time.Time
	for _, member := range members {
		athlete, ok := athletes[member.AthleteID]
		if !ok {
			return nil
		}
		birth := athlete.BirthDate
		if youngest == nil || birth.After(*youngest) {
			youngest = &birth
		}
	}
	return youngest
}
