package models

// BoatClass — класс лодки (код нормализуется импортёром до этих значений).
type BoatClass string

const (
	BoatClassK1  BoatClass = "K-1"
	BoatClassK2  BoatClass = "K-2"
	BoatClassK4  BoatClass = "K-4"
	BoatClassC1  BoatClass = "C-1"
	BoatClassC2  BoatClass = "C-2"
	BoatClassC4  BoatClass = "C-4"
	BoatClassD10 BoatClass = "D-10"
)

// BoatClassSpec задаёт вместимость лодки и количество дорожек в заезде.
// Лимиты дорожек — конфигурация соревнования, а не константа кода.
type BoatClassSpec struct {
	Seats     int `json:"seats"`
	LaneLimit int `json:"lane_limit"`
}

type BoatClassConfig map[BoatClass]BoatClassSpec

// DefaultBoatClassConfig — таблица по умолчанию: одиночки и малые экипажи
// идут в 9 дорожек, десятиместные лодки — в 6.
func DefaultBoatClassConfig() BoatClassConfig {
	return BoatClassConfig{
		BoatClassK1:  {Seats: 1, LaneLimit: 9},
		BoatClassK2:  {Seats: 2, LaneLimit: 9},
		BoatClassK4:  {Seats: 4, LaneLimit: 9},
		BoatClassC1:  {Seats: 1, LaneLimit: 9},
		BoatClassC2:  {Seats: 2, LaneLimit: 9},
		BoatClassC4:  {Seats: 4, LaneLimit: 9},
		BoatClassD10: {Seats: 10, LaneLimit: 6},
	}
}

func (c BoatClassConfig) Spec(class BoatClass) (BoatClassSpec, bool) {
	spec, ok := c[class]
	return spec, ok
}

func (c BoatClassConfig) Seats(class BoatClass) int {
	if spec, ok := c[class]; ok {
		return spec.Seats
	}
	return 1
}

func (c BoatClassConfig) LaneLimit(class BoatClass) int {
	if spec, ok := c[class]; ok && spec.LaneLimit > 0 {
		return spec.LaneLimit
	}
	return 9
}

func (c BoatClassConfig) IsSingleSeat(class BoatClass) bool {
	return c.Seats(class) == 1
}
