package scheduler

import "github.com/shaiso/Cronwheel/internal/domain"

// MisfireAction — решение по пропущенному срабатыванию.
type MisfireAction int

const (
	// MisfireSkip — пропустить срабатывание.
	MisfireSkip MisfireAction = iota

	// MisfireFireNow — выполнить один раз сейчас.
	MisfireFireNow
)

func (a MisfireAction) String() string {
	if a == MisfireFireNow {
		return "fire_now"
	}
	return "skip"
}

// DecideMisfire возвращает действие для пропущенного срабатывания.
// Неизвестная стратегия трактуется как DO_NOTHING.
func DecideMisfire(strategy domain.MisfireStrategy) MisfireAction {
	if strategy == domain.MisfireFireOnceNow {
		return MisfireFireNow
	}
	return MisfireSkip
}
