package services

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/DiFlector/kgb-pulse/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLinearScheduleMultiplier(t *testing.T) {
	schedule := LinearSchedule{PerUnit: 1.0}

	tests := []struct {
		count int
		want  float64
	}{
		{0, 0},
		{-1, 0},
		{1, 1},
		{2, 2},
		{10, 10},
	}
	for _, tt := range tests {
		if got := schedule.Multiplier(tt.count); got != tt.want {
			t.Errorf("Multiplier(%d) = %v, want %v", tt.count, got, tt.want)
		}
	}
}

func TestRegistrationCostScalesWithDistances(t *testing.T) {
	cs := NewCostService(nil, nil, nil, nil, nil, nil, discardLogger())
	event := &models.Event{BaseCost: 1000}

	// Одиночник на двух дистанциях платит базовую стоимость дважды.
	reg := &models.Registration{BoatClass: models.BoatClassK1, Distances: []int64{200, 500}}
	if got := cs.RegistrationCost(event, reg); got != 2000 {
		t.Errorf("RegistrationCost = %v, want 2000", got)
	}

	reg.Distances = []int64{500}
	if got := cs.RegistrationCost(event, reg); got != 1000 {
		t.Errorf("RegistrationCost = %v, want 1000", got)
	}
}

func TestCrewTotalCostSplitsEvenly(t *testing.T) {
	cs := NewCostService(nil, nil, nil, nil, nil, nil, discardLogger())
	event := &models.Event{BaseCost: 300}

	total := cs.CrewTotalCost(event, 4)
	if total != 1200 {
		t.Fatalf("CrewTotalCost = %v, want 1200", total)
	}
	perMember := total / 4
	if perMember != 300 {
		t.Errorf("per-member share = %v, want 300", perMember)
	}
}

// Командная строка без экипажа не считается одиночкой: пакетный пересчёт
// её не трогает, цену назначает размещение по экипажу.
func TestRecalculateEventSkipsCrewlessMultiSeatRows(t *testing.T) {
	ctx := context.Background()
	event := &models.Event{ID: 1, BaseCost: 1000, Status: models.EventStatusRegistration}

	regRepo := newFakeRegRepo()
	crewRepo := newFakeCrewRepo(regRepo)
	eventRepo := newFakeEventRepo(event)
	cs := NewCostService(nil, nil, eventRepo, regRepo, crewRepo, nil, discardLogger())

	single := &models.Registration{
		EventID:   1,
		BoatClass: models.BoatClassK1,
		Sex:       models.SexMale,
		Distances: []int64{200, 500},
		Status:    models.RegistrationStatusRegistered,
	}
	if err := regRepo.Create(ctx, nil, single); err != nil {
		t.Fatalf("create single: %v", err)
	}
	orphan := &models.Registration{
		EventID:   1,
		BoatClass: models.BoatClassD10,
		Sex:       models.SexMale,
		Distances: []int64{200},
		Status:    models.RegistrationStatusWaitingForCrew,
	}
	if err := regRepo.Create(ctx, nil, orphan); err != nil {
		t.Fatalf("create orphan: %v", err)
	}

	report, err := cs.RecalculateEvent(ctx, 1)
	if err != nil {
		t.Fatalf("RecalculateEvent: %v", err)
	}
	if report.Updated != 1 || report.Failed != 0 {
		t.Errorf("report = %+v, want 1 updated, 0 failed", report)
	}
	if single.Cost != 2000 {
		t.Errorf("single-seat cost = %v, want 2000", single.Cost)
	}
	if orphan.Cost != 0 {
		t.Errorf("crewless multi-seat row must keep its cost, got %v", orphan.Cost)
	}
}

type doublingSchedule struct{}

func (doublingSchedule) Multiplier(count int) float64 { return float64(count * 2) }

func TestCostServiceUsesInjectedSchedule(t *testing.T) {
	cs := NewCostService(nil, doublingSchedule{}, nil, nil, nil, nil, discardLogger())
	event := &models.Event{BaseCost: 100}

	reg := &models.Registration{Distances: []int64{200, 500, 1000}}
	if got := cs.RegistrationCost(event, reg); got != 600 {
		t.Errorf("RegistrationCost with injected schedule = %v, want 600", got)
	}
}
