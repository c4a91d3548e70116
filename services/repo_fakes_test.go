package services

import (
	"context"
	"sort"

	"github.com/DiFlector/kgb-pulse/models"
	"github.com/DiFlector/kgb-pulse/repositories"
)

// Фейковые репозитории в памяти для тестов сервисного слоя. Параметр exec
// игнорируется: фейки не транзакционны, проверяется логика решений.

type fakeEventRepo struct {
	events map[int]*models.Event
}

func newFakeEventRepo(events ...*models.Event) *fakeEventRepo {
	repo := &fakeEventRepo{events: make(map[int]*models.Event)}
	for _, event := range events {
		repo.events[event.ID] = event
	}
	return repo
}

func (r *fakeEventRepo) Create(ctx context.Context, event *models.Event) error {
	r.events[event.ID] = event
	return nil
}

func (r *fakeEventRepo) GetByID(ctx context.Context, id int) (*models.Event, error) {
	event, ok := r.events[id]
	if !ok {
		return nil, repositories.ErrEventNotFound
	}
	return event, nil
}

func (r *fakeEventRepo) UpdateStatus(ctx context.Context, id int, status models.EventStatus) error {
	event, ok := r.events[id]
	if !ok {
		return repositories.ErrEventNotFound
	}
	event.Status = status
	return nil
}

type fakeRegRepo struct {
	nextID int
	regs   map[int]*models.Registration
}

func newFakeRegRepo() *fakeRegRepo {
	return &fakeRegRepo{regs: make(map[int]*models.Registration)}
}

func (r *fakeRegRepo) sortedIDs() []int {
	ids := make([]int, 0, len(r.regs))
	for id := range r.regs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (r *fakeRegRepo) Create(ctx context.Context, exec repositories.SQLExecutor, reg *models.Registration) error {
	r.nextID++
	reg.ID = r.nextID
	r.regs[reg.ID] = reg
	return nil
}

func (r *fakeRegRepo) GetByID(ctx context.Context, id int) (*models.Registration, error) {
	reg, ok := r.regs[id]
	if !ok {
		return nil, repositories.ErrRegistrationNotFound
	}
	return reg, nil
}

func (r *fakeRegRepo) GetByIDForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Registration, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeRegRepo) List(ctx context.Context, filter repositories.ListRegistrationsFilter) ([]*models.Registration, error) {
	var out []*models.Registration
	for _, id := range r.sortedIDs() {
		reg := r.regs[id]
		if reg.EventID != filter.EventID {
			continue
		}
		if filter.BoatClass != nil && reg.BoatClass != *filter.BoatClass {
			continue
		}
		if filter.Sex != nil && reg.Sex != *filter.Sex {
			continue
		}
		if len(filter.Statuses) > 0 {
			matched := false
			for _, status := range filter.Statuses {
				if reg.Status == status {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		out = append(out, reg)
	}
	return out, nil
}

func (r *fakeRegRepo) ListByCrew(ctx context.Context, exec repositories.SQLExecutor, crewID int) ([]*models.Registration, error) {
	var out []*models.Registration
	for _, id := range r.sortedIDs() {
		reg := r.regs[id]
		if reg.CrewID != nil && *reg.CrewID == crewID {
			out = append(out, reg)
		}
	}
	return out, nil
}

func (r *fakeRegRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.RegistrationStatus) error {
	reg, ok := r.regs[id]
	if !ok {
		return repositories.ErrRegistrationNotFound
	}
	reg.Status = status
	return nil
}

func (r *fakeRegRepo) UpdateCost(ctx context.Context, exec repositories.SQLExecutor, id int, cost float64) error {
	reg, ok := r.regs[id]
	if !ok {
		return repositories.ErrRegistrationNotFound
	}
	reg.Cost = cost
	return nil
}

func (r *fakeRegRepo) UpdatePaid(ctx context.Context, exec repositories.SQLExecutor, id int, paid bool) error {
	reg, ok := r.regs[id]
	if !ok {
		return repositories.ErrRegistrationNotFound
	}
	reg.Paid = paid
	return nil
}

func (r *fakeRegRepo) AttachToCrew(ctx context.Context, exec repositories.SQLExecutor, id int, crewID int, status models.RegistrationStatus) error {
	reg, ok := r.regs[id]
	if !ok {
		return repositories.ErrRegistrationNotFound
	}
	reg.CrewID = &crewID
	reg.Status = status
	return nil
}

func (r *fakeRegRepo) DetachFromCrew(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	reg, ok := r.regs[id]
	if !ok {
		return repositories.ErrRegistrationNotFound
	}
	reg.CrewID = nil
	return nil
}

func (r *fakeRegRepo) ReassignCrew(ctx context.Context, exec repositories.SQLExecutor, fromCrewID, toCrewID int) (int, error) {
	moved := 0
	for _, reg := range r.regs {
		if reg.CrewID != nil && *reg.CrewID == fromCrewID {
			crewID := toCrewID
			reg.CrewID = &crewID
			moved++
		}
	}
	return moved, nil
}

func (r *fakeRegRepo) CountByCrew(ctx context.Context, exec repositories.SQLExecutor, crewID int) (int, error) {
	count := 0
	for _, reg := range r.regs {
		if reg.CrewID != nil && *reg.CrewID == crewID {
			count++
		}
	}
	return count, nil
}

type fakeCrewRepo struct {
	nextID int
	crews  map[int]*models.Crew
	regs   *fakeRegRepo
}

func newFakeCrewRepo(regs *fakeRegRepo) *fakeCrewRepo {
	return &fakeCrewRepo{crews: make(map[int]*models.Crew), regs: regs}
}

func (r *fakeCrewRepo) Create(ctx context.Context, exec repositories.SQLExecutor, crew *models.Crew) error {
	r.nextID++
	crew.ID = r.nextID
	r.crews[crew.ID] = crew
	return nil
}

func (r *fakeCrewRepo) GetByID(ctx context.Context, id int) (*models.Crew, error) {
	crew, ok := r.crews[id]
	if !ok {
		return nil, repositories.ErrCrewNotFound
	}
	return crew, nil
}

func (r *fakeCrewRepo) GetByIDForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Crew, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeCrewRepo) FindOldestAvailable(ctx context.Context, exec repositories.SQLExecutor, eventID int, class models.BoatClass, sex models.Sex, distance int64) (*models.Crew, error) {
	ids := make([]int, 0, len(r.crews))
	for id := range r.crews {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		crew := r.crews[id]
		if crew.EventID == eventID && crew.BoatClass == class && crew.Sex == sex &&
			crew.Distance == distance && crew.MemberCount < crew.SeatCapacity {
			return crew, nil
		}
	}
	return nil, nil
}

func (r *fakeCrewRepo) ListByEvent(ctx context.Context, eventID int) ([]*models.Crew, error) {
	ids := make([]int, 0, len(r.crews))
	for id := range r.crews {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var out []*models.Crew
	for _, id := range ids {
		if r.crews[id].EventID == eventID {
			out = append(out, r.crews[id])
		}
	}
	return out, nil
}

func (r *fakeCrewRepo) SetMemberCount(ctx context.Context, exec repositories.SQLExecutor, id, count int) error {
	crew, ok := r.crews[id]
	if !ok {
		return repositories.ErrCrewNotFound
	}
	crew.MemberCount = count
	return nil
}

func (r *fakeCrewRepo) RecountMembers(ctx context.Context, exec repositories.SQLExecutor, id int) (int, error) {
	crew, ok := r.crews[id]
	if !ok {
		return 0, repositories.ErrCrewNotFound
	}
	count, err := r.regs.CountByCrew(ctx, exec, id)
	if err != nil {
		return 0, err
	}
	crew.MemberCount = count
	return count, nil
}

func (r *fakeCrewRepo) Delete(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	delete(r.crews, id)
	return nil
}
