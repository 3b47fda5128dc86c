package service

import (
	"sort"
	"time"

	"github.com/dreschagin/anomaly-engine/internal/domain/entity"
	"github.com/dreschagin/anomaly-engine/internal/domain/valueobject"
)

// WindowPolicy задает границы скользящего окна одного монитора
type WindowPolicy struct {
	Span              time.Duration // временная граница окна
	MaxCount          int           // верхняя граница по числу событий
	MinSamples        int           // минимум событий для выдачи сводки
	LatenessTolerance time.Duration // допуск на опоздавшие события

	// EmitStride прореживает сводки: одна на каждые N принятых событий.
	// Значения 0 и 1 означают сводку на каждое событие.
	EmitStride int
}

// SlidingWindow — упорядоченный по времени буфер последних событий одного
// монитора (Domain Service). Не потокобезопасен: каждым окном владеет
// ровно одна воркер-горутина своего шарда.
//
// Часы окна — событийное время: "сейчас" определяется самым свежим
// наблюдавшимся timestamp'ом, поэтому результат детерминирован и не
// зависит от времени доставки в пределах допуска на опоздание.
type SlidingWindow struct {
	monitorID string
	policy    WindowPolicy
	readings  []*entity.Reading // отсортированы по timestamp, старые в начале
	lateDrops uint64
	sinceEmit int // принятых событий с последней сводки
}

// NewSlidingWindow создает окно монитора
func NewSlidingWindow(monitorID string, policy WindowPolicy) *SlidingWindow {
	if policy.MinSamples < 1 {
		policy.MinSamples = 1
	}
	return &SlidingWindow{
		monitorID: monitorID,
		policy:    policy,
		readings:  make([]*entity.Reading, 0, policy.MaxCount),
	}
}

// Ingest добавляет событие в окно и возвращает свежую сводку.
// Возвращает nil когда событие отброшено как опоздавшее, когда в окне
// еще недостаточно данных или когда stride прореживания не дошел до
// очередной сводки — для потребителя это "данных пока нет", не ошибка.
func (w *SlidingWindow) Ingest(reading *entity.Reading) *valueobject.WindowSummary {
	if reading == nil || reading.MonitorID() != w.monitorID {
		return nil
	}

	newest := w.newestTimestamp()
	if !newest.IsZero() && reading.Timestamp().Before(newest.Add(-w.policy.LatenessTolerance)) {
		w.lateDrops++
		return nil
	}

	w.insertOrdered(reading)
	w.evict()
	w.sinceEmit++

	if len(w.readings) < w.policy.MinSamples {
		return nil
	}
	if stride := w.policy.EmitStride; stride > 1 && w.sinceEmit < stride {
		return nil
	}
	w.sinceEmit = 0

	summary := w.summarize()
	return &summary
}

// Len возвращает текущее число событий в окне
func (w *SlidingWindow) Len() int {
	return len(w.readings)
}

// LateDrops возвращает число отброшенных опоздавших событий
func (w *SlidingWindow) LateDrops() uint64 {
	return w.lateDrops
}

// insertOrdered вставляет событие с сохранением порядка по timestamp.
// События приходят почти упорядоченными, поэтому поиск идет с конца.
func (w *SlidingWindow) insertOrdered(reading *entity.Reading) {
	pos := len(w.readings)
	for pos > 0 && w.readings[pos-1].Timestamp().After(reading.Timestamp()) {
		pos--
	}
	w.readings = append(w.readings, nil)
	copy(w.readings[pos+1:], w.readings[pos:])
	w.readings[pos] = reading
}

// evict удаляет события за пределами временной и количественной границ
func (w *SlidingWindow) evict() {
	if len(w.readings) == 0 {
		return
	}

	cutoff := w.newestTimestamp().Add(-w.policy.Span)
	firstKept := 0
	for firstKept < len(w.readings) && w.readings[firstKept].Timestamp().Before(cutoff) {
		firstKept++
	}

	if over := len(w.readings) - firstKept - w.policy.MaxCount; over > 0 {
		firstKept += over
	}

	if firstKept > 0 {
		w.readings = append(w.readings[:0], w.readings[firstKept:]...)
	}
}

// summarize строит вектор признаков: среднее каждого сенсора по окну.
// Набор имен — объединение сенсоров всех событий окна; отсутствующее
// в событии значение считается нулем (как в обучающих данных).
func (w *SlidingWindow) summarize() valueobject.WindowSummary {
	sums := make(map[string]float64)
	for _, reading := range w.readings {
		for code, value := range reading.Sensors() {
			sums[code] += value
		}
	}

	names := make([]string, 0, len(sums))
	for code := range sums {
		names = append(names, code)
	}
	sort.Strings(names)

	values := make([]float64, len(names))
	count := float64(len(w.readings))
	for i, name := range names {
		values[i] = sums[name] / count
	}

	vector, _ := valueobject.NewOrderedFeatureVector(names, values)
	summary, _ := valueobject.NewWindowSummary(w.monitorID, w.newestTimestamp(), vector, len(w.readings))
	return summary
}

func (w *SlidingWindow) newestTimestamp() time.Time {
	if len(w.readings) == 0 {
		return time.Time{}
	}
	return w.readings[len(w.readings)-1].Timestamp()
}
