package services

import (
	"context"
	"testing"
	"time"

	"github.com/DiFlector/kgb-pulse/models"
)

func buildTestEvent(t *testing.T) (*models.Event, models.DisciplineMap) {
	t.Helper()
	event := &models.Event{
		ID:   1,
		Date: time.Date(2025, time.July, 12, 0, 0, 0, 0, time.UTC),
		DisciplinesJSON: `{
			"K-1": {
				"sexes": ["M"],
				"distances": [500],
				"age_bands": {
					"M": [
						{"label": "Юноши", "min_age": 0, "max_age": 18},
						{"label": "Мужчины", "min_age": 19, "max_age": 120}
					]
				}
			},
			"D-10": {
				"sexes": ["M"],
				"distances": [200],
				"age_bands": {
					"M": [{"label": "Мужчины", "min_age": 19, "max_age": 120}]
				}
			}
		}`,
	}
	disciplines, err := event.Disciplines()
	if err != nil {
		t.Fatalf("Disciplines: %v", err)
	}
	return event, disciplines
}

func eligibleReg(id, athleteID int, class models.BoatClass, distances ...int64) *models.Registration {
	return &models.Registration{
		ID:        id,
		AthleteID: athleteID,
		EventID:   1,
		BoatClass: class,
		Sex:       models.SexMale,
		Distances: distances,
		Status:    models.RegistrationStatusRegistered,
	}
}

func buildAthlete(id, birthYear int) *models.Athlete {
	return &models.Athlete{
		ID:        id,
		LastName:  "Спортсмен",
		Sex:       models.SexMale,
		BirthDate: time.Date(birthYear, time.March, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCollectBuildTasksSplitsSinglesByAgeGroup(t *testing.T) {
	event, disciplines := buildTestEvent(t)
	svc := newTestProtocolService(newFakeProtocolRepo()).(*protocolService)

	regs := []*models.Registration{
		eligibleReg(1, 101, models.BoatClassK1, 500), // 15 лет — юноши
		eligibleReg(2, 102, models.BoatClassK1, 500), // 30 лет — мужчины
		eligibleReg(3, 103, models.BoatClassK1, 500), // 25 лет — мужчины
	}
	athletes := map[int]*models.Athlete{
		101: buildAthlete(101, 2010),
		102: buildAthlete(102, 1995),
		103: buildAthlete(103, 2000),
	}

	report := &BuildReport{}
	tasks := svc.collectBuildTasks(event, disciplines, regs, athletes, nil, report)

	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks (one per age group), got %d", len(tasks))
	}
	byGroup := make(map[string]buildTask)
	for _, task := range tasks {
		byGroup[task.ageGroup] = task
	}
	if len(byGroup["Юноши"].candidates) != 1 {
		t.Errorf("expected 1 junior candidate, got %d", len(byGroup["Юноши"].candidates))
	}
	if len(byGroup["Мужчины"].candidates) != 2 {
		t.Errorf("expected 2 adult candidates, got %d", len(byGroup["Мужчины"].candidates))
	}
	if len(report.Gaps) != 0 {
		t.Errorf("unexpected gaps: %v", report.Gaps)
	}
}

func TestCollectBuildTasksReportsUnclassifiedAthlete(t *testing.T) {
	event, disciplines := buildTestEvent(t)
	svc := newTestProtocolService(newFakeProtocolRepo()).(*protocolService)

	// У D-10 нет юношеской группы: 15-летний участник — отчётный пробел.
	crewID := 1
	reg := eligibleReg(1, 101, models.BoatClassD10, 200)
	reg.CrewID = &crewID
	crews := map[int]*models.Crew{
		1: {ID: 1, BoatClass: models.BoatClassD10, Sex: models.SexMale, Distance: 200, SeatCapacity: 10, MemberCount: 10},
	}
	athletes := map[int]*models.Athlete{101: buildAthlete(101, 2010)}

	report := &BuildReport{}
	tasks := svc.collectBuildTasks(event, disciplines, []*models.Registration{reg}, athletes, crews, report)

	if len(tasks) != 0 {
		t.Errorf("unclassified crew must not produce a task, got %d", len(tasks))
	}
	if len(report.Gaps) != 1 {
		t.Errorf("expected one reported gap, got %v", report.Gaps)
	}
}

func TestCollectBuildTasksExcludesIncompleteCrews(t *testing.T) {
	event, disciplines := buildTestEvent(t)
	svc := newTestProtocolService(newFakeProtocolRepo()).(*protocolService)

	crewID := 1
	reg := eligibleReg(1, 101, models.BoatClassD10, 200)
	reg.CrewID = &crewID
	crews := map[int]*models.Crew{
		1: {ID: 1, BoatClass: models.BoatClassD10, Sex: models.SexMale, Distance: 200, SeatCapacity: 10, MemberCount: 6},
	}
	athletes := map[int]*models.Athlete{101: buildAthlete(101, 1995)}

	report := &BuildReport{}
	tasks := svc.collectBuildTasks(event, disciplines, []*models.Registration{reg}, athletes, crews, report)

	if len(tasks) != 0 {
		t.Errorf("incomplete crew must not be drawn, got %d tasks", len(tasks))
	}
	if len(report.Gaps) != 1 {
		t.Errorf("incomplete crew must be reported as a gap, got %v", report.Gaps)
	}
}

// Возрастная группа экипажа определяется по самому молодому участнику.
func TestCollectBuildTasksClassifiesCrewByYoungestMember(t *testing.T) {
	event, disciplines := buildTestEvent(t)
	svc := newTestProtocolService(newFakeProtocolRepo()).(*protocolService)

	crewID := 1
	young := eligibleReg(1, 101, models.BoatClassD10, 200)
	young.CrewID = &crewID
	older := eligibleReg(2, 102, models.BoatClassD10, 200)
	older.CrewID = &crewID

	crews := map[int]*models.Crew{
		1: {ID: 1, BoatClass: models.BoatClassD10, Sex: models.SexMale, Distance: 200, SeatCapacity: 2, MemberCount: 2},
	}
	athletes := map[int]*models.Athlete{
		101: buildAthlete(101, 2005), // 20 лет
		102: buildAthlete(102, 1980), // 45 лет
	}

	report := &BuildReport{}
	tasks := svc.collectBuildTasks(event, disciplines, []*models.Registration{young, older}, athletes, crews, report)

	if len(tasks) != 1 {
		t.Fatalf("expected one crew task, got %d", len(tasks))
	}
	if tasks[0].ageGroup != "Мужчины" {
		t.Errorf("crew age group = %q, want %q", tasks[0].ageGroup, "Мужчины")
	}
	if len(tasks[0].candidates) != 1 {
		t.Errorf("crew must occupy a single lane, got %d candidates", len(tasks[0].candidates))
	}
}

func TestBuildOneCreatesAndThenSkipsUnchanged(t *testing.T) {
	repo := newFakeProtocolRepo()
	svc := newTestProtocolService(repo).(*protocolService)
	event, _ := buildTestEvent(t)

	regID := 10
	task := buildTask{
		class:     models.BoatClassK1,
		sex:       models.SexMale,
		distance:  500,
		ageGroup:  "Мужчины",
		laneLimit: 9,
		candidates: []models.LaneEntry{
			{RegistrationID: &regID, Name: "Иванов Иван"},
		},
	}

	key, err := svc.buildOne(context.Background(), event, task)
	if err != nil {
		t.Fatalf("buildOne: %v", err)
	}
	stored := repo.docs[key]
	if stored == nil || stored.Version != 1 || len(stored.Entries) != 1 {
		t.Fatalf("protocol not created as expected: %+v", stored)
	}

	// Повторная генерация с тем же входом не пишет новую версию.
	if _, err := svc.buildOne(context.Background(), event, task); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if repo.docs[key].Version != 1 {
		t.Errorf("unchanged rebuild must not bump version, got %d", repo.docs[key].Version)
	}
	if repo.updates != 0 {
		t.Errorf("unchanged rebuild must not call UpdateDocument, got %d", repo.updates)
	}
}

func TestBuildOneSkipsEmptyTuple(t *testing.T) {
	repo := newFakeProtocolRepo()
	svc := newTestProtocolService(repo).(*protocolService)
	event, _ := buildTestEvent(t)

	key, err := svc.buildOne(context.Background(), event, buildTask{
		class:     models.BoatClassK1,
		sex:       models.SexMale,
		distance:  500,
		ageGroup:  "Юноши",
		laneLimit: 9,
	})
	if err != nil {
		t.Fatalf("buildOne: %v", err)
	}
	if key != "" {
		t.Errorf("empty tuple must not create a document, got key %q", key)
	}
	if len(repo.docs) != 0 {
		t.Errorf("no documents expected, got %d", len(repo.docs))
	}
}
