package scheduler

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RingSlots — количество слотов кольца (секунды минуты).
const RingSlots = 60

// RingEntry — одно срабатывание, отложенное в кольцо.
type RingEntry struct {
	JobID  uuid.UUID
	FireAt time.Time
}

// ringSlot — слот кольца со своим мьютексом.
type ringSlot struct {
	mu      sync.Mutex
	entries []RingEntry
}

// TimeRing — колесо из 60 слотов, индексированных секундой минуты.
//
// Scanner только добавляет записи (Push), Dispatcher только забирает
// слот целиком (Drain). Каждый слот защищён своим мьютексом, общего
// замка на всё кольцо нет.
type TimeRing struct {
	slots [RingSlots]ringSlot
}

// NewTimeRing создаёт пустое кольцо.
func NewTimeRing() *TimeRing {
	return &TimeRing{}
}

// SecondOf возвращает секунду минуты (0–59) для t.
func SecondOf(t time.Time) int {
	return slotIndex(int(t.Unix() % RingSlots))
}

func slotIndex(second int) int {
	return ((second % RingSlots) + RingSlots) % RingSlots
}

// Push кладёт срабатывание в слот SecondOf(fireAt).
// Повторное добавление того же (jobID, fireAt) игнорируется.
func (r *TimeRing) Push(fireAt time.Time, jobID uuid.UUID) bool {
	slot := &r.slots[SecondOf(fireAt)]

	slot.mu.Lock()
	defer slot.mu.Unlock()

	for _, e := range slot.entries {
		if e.JobID == jobID && e.FireAt.Equal(fireAt) {
			return false
		}
	}
	slot.entries = append(slot.entries, RingEntry{JobID: jobID, FireAt: fireAt})
	return true
}

// Drain забирает и очищает слот second.
func (r *TimeRing) Drain(second int) []RingEntry {
	slot := &r.slots[slotIndex(second)]

	slot.mu.Lock()
	defer slot.mu.Unlock()

	entries := slot.entries
	slot.entries = nil
	return entries
}

// Len возвращает общее количество записей во всех слотах.
func (r *TimeRing) Len() int {
	n := 0
	for i := range r.slots {
		slot := &r.slots[i]
		slot.mu.Lock()
		n += len(slot.entries)
		slot.mu.Unlock()
	}
	return n
}

// IsEmpty проверяет, пусто ли кольцо.
func (r *TimeRing) IsEmpty() bool {
	return r.Len() == 0
}

// Contains проверяет, лежит ли в кольце срабатывание (jobID, fireAt).
func (r *TimeRing) Contains(jobID uuid.UUID, fireAt time.Time) bool {
	slot := &r.slots[SecondOf(fireAt)]

	slot.mu.Lock()
	defer slot.mu.Unlock()

	for _, e := range slot.entries {
		if e.JobID == jobID && e.FireAt.Equal(fireAt) {
			return true
		}
	}
	return false
}
