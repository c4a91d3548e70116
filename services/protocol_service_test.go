package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DiFlector/kgb-pulse/models"
	"github.com/DiFlector/kgb-pulse/protocols"
	"github.com/DiFlector/kgb-pulse/repositories"
)

// fakeProtocolRepo хранит документы в памяти и умеет имитировать
// версионные конфликты для проверки повторов read-modify-write.
type fakeProtocolRepo struct {
	docs          map[string]*models.Protocol
	conflictsLeft int
	updates       int
}

func newFakeProtocolRepo() *fakeProtocolRepo {
	return &fakeProtocolRepo{docs: make(map[string]*models.Protocol)}
}

func copyProtocol(p *models.Protocol) *models.Protocol {
	raw, _ := json.Marshal(p)
	var clone models.Protocol
	_ = json.Unmarshal(raw, &clone)
	return &clone
}

func (r *fakeProtocolRepo) Get(ctx context.Context, key string) (*models.Protocol, error) {
	p, ok := r.docs[key]
	if !ok {
		return nil, repositories.ErrProtocolNotFound
	}
	return copyProtocol(p), nil
}

func (r *fakeProtocolRepo) ListByEvent(ctx context.Context, eventID int) ([]*models.Protocol, error) {
	var out []*models.Protocol
	for _, p := range r.docs {
		if p.EventID == eventID {
			out = append(out, copyProtocol(p))
		}
	}
	return out, nil
}

func (r *fakeProtocolRepo) ListKeysByEvent(ctx context.Context, eventID int) ([]string, error) {
	var keys []string
	for key, p := range r.docs {
		if p.EventID == eventID {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (r *fakeProtocolRepo) Insert(ctx context.Context, p *models.Protocol) error {
	if _, ok := r.docs[p.Key]; ok {
		return repositories.ErrProtocolVersionConflict
	}
	p.Version = 1
	r.docs[p.Key] = copyProtocol(p)
	return nil
}

func (r *fakeProtocolRepo) UpdateDocument(ctx context.Context, p *models.Protocol, expectedVersion int) error {
	stored, ok := r.docs[p.Key]
	if !ok {
		return repositories.ErrProtocolNotFound
	}
	if r.conflictsLeft > 0 {
		r.conflictsLeft--
		return repositories.ErrProtocolVersionConflict
	}
	if stored.Version != expectedVersion {
		return repositories.ErrProtocolVersionConflict
	}
	p.Version = expectedVersion + 1
	r.docs[p.Key] = copyProtocol(p)
	r.updates++
	return nil
}

func (r *fakeProtocolRepo) Delete(ctx context.Context, key string) error {
	delete(r.docs, key)
	return nil
}

func seedProtocol(repo *fakeProtocolRepo) string {
	key := models.ProtocolKey(1, models.BoatClassK1, models.SexMale, 500, "Мужчины")
	regID := 10
	repo.docs[key] = &models.Protocol{
		Key:       key,
		EventID:   1,
		BoatClass: models.BoatClassK1,
		Sex:       models.SexMale,
		Distance:  500,
		AgeGroup:  "Мужчины",
		Version:   1,
		Entries: []models.LaneEntry{
			{Lane: 1, RegistrationID: &regID, Name: "Иванов Иван"},
		},
	}
	return key
}

func newTestProtocolService(repo repositories.ProtocolRepository) ProtocolService {
	return NewProtocolService(
		repo, nil, nil, nil, nil,
		protocols.NewLaneDrawGenerator(),
		nil, nil, nil,
		discardLogger(),
	)
}

func TestUpdateLaneFieldWritesResult(t *testing.T) {
	repo := newFakeProtocolRepo()
	key := seedProtocol(repo)
	svc := newTestProtocolService(repo)

	p, err := svc.UpdateLaneField(context.Background(), key, 1, "finish_time", "01:43.20", false)
	if err != nil {
		t.Fatalf("UpdateLaneField: %v", err)
	}

	entry := p.Entry(1)
	if entry.FinishTime == nil || *entry.FinishTime != "01:43.20" {
		t.Errorf("finish_time not applied: %+v", entry)
	}
	// Запись результата — рабочий поток, защиту не включает.
	if entry.Protected {
		t.Error("result write must not mark the entry protected")
	}

	p, err = svc.UpdateLaneField(context.Background(), key, 1, "place", float64(1), false)
	if err != nil {
		t.Fatalf("UpdateLaneField place: %v", err)
	}
	if entry := p.Entry(1); entry.Place == nil || *entry.Place != 1 {
		t.Errorf("place not applied: %+v", entry)
	}
}

func TestUpdateLaneFieldNameMarksProtected(t *testing.T) {
	repo := newFakeProtocolRepo()
	key := seedProtocol(repo)
	svc := newTestProtocolService(repo)

	p, err := svc.UpdateLaneField(context.Background(), key, 1, "name", "Вписан вручную", false)
	if err != nil {
		t.Fatalf("UpdateLaneField: %v", err)
	}

	entry := p.Entry(1)
	if entry.Name != "Вписан вручную" || !entry.Protected {
		t.Errorf("manual name edit must protect the entry: %+v", entry)
	}
}

func TestUpdateLaneFieldProtectedRequiresOverride(t *testing.T) {
	repo := newFakeProtocolRepo()
	key := seedProtocol(repo)
	repo.docs[key].Entries[0].Protected = true
	svc := newTestProtocolService(repo)

	_, err := svc.UpdateLaneField(context.Background(), key, 1, "place", float64(2), false)
	if !errors.Is(err, ErrProtectedOverride) {
		t.Fatalf("expected ErrProtectedOverride, got %v", err)
	}

	if _, err := svc.UpdateLaneField(context.Background(), key, 1, "place", float64(2), true); err != nil {
		t.Errorf("override must bypass protection, got %v", err)
	}
}

func TestUpdateLaneFieldValidation(t *testing.T) {
	repo := newFakeProtocolRepo()
	key := seedProtocol(repo)
	svc := newTestProtocolService(repo)

	if _, err := svc.UpdateLaneField(context.Background(), key, 1, "lane", 5, false); !errors.Is(err, ErrUnknownProtocolField) {
		t.Errorf("unknown field: expected ErrUnknownProtocolField, got %v", err)
	}
	if _, err := svc.UpdateLaneField(context.Background(), key, 1, "place", "first", false); !errors.Is(err, ErrValidationFailed) {
		t.Errorf("wrong value type: expected ErrValidationFailed, got %v", err)
	}
	if _, err := svc.UpdateLaneField(context.Background(), key, 9, "place", float64(1), false); !errors.Is(err, ErrLaneNotFound) {
		t.Errorf("empty lane: expected ErrLaneNotFound, got %v", err)
	}
	if _, err := svc.UpdateLaneField(context.Background(), "1:K-1:M:200:нет", 1, "place", float64(1), false); !errors.Is(err, ErrProtocolNotFound) {
		t.Errorf("missing protocol: expected ErrProtocolNotFound, got %v", err)
	}
}

func TestUpdateLaneFieldRetriesOnVersionConflict(t *testing.T) {
	repo := newFakeProtocolRepo()
	key := seedProtocol(repo)
	repo.conflictsLeft = 2
	svc := newTestProtocolService(repo)

	p, err := svc.UpdateLaneField(context.Background(), key, 1, "finish_time", "01:50.00", false)
	if err != nil {
		t.Fatalf("expected retry to succeed after conflicts, got %v", err)
	}
	if entry := p.Entry(1); entry.FinishTime == nil || *entry.FinishTime != "01:50.00" {
		t.Errorf("finish_time lost across retries: %+v", entry)
	}
	if repo.updates != 1 {
		t.Errorf("expected exactly one successful update, got %d", repo.updates)
	}
}

func TestUpdateLaneFieldGivesUpAfterRetries(t *testing.T) {
	repo := newFakeProtocolRepo()
	key := seedProtocol(repo)
	repo.conflictsLeft = protocolUpdateRetries
	svc := newTestProtocolService(repo)

	_, err := svc.UpdateLaneField(context.Background(), key, 1, "place", float64(1), false)
	if !errors.Is(err, ErrProtocolConflict) {
		t.Fatalf("expected ErrProtocolConflict after exhausted retries, got %v", err)
	}
}
