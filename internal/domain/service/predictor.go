package service

import (
	"math"
	"sort"

	"github.com/dreschagin/anomaly-engine/internal/domain/entity"
	"github.com/dreschagin/anomaly-engine/internal/domain/valueobject"
)

// Predictor вычисляет непрерывный счет аномальности по масштабированному
// вектору признаков (Domain Service). Не хранит состояния: один экземпляр
// безопасно использовать из любого числа шардов с одним артефактом.
type Predictor struct{}

// NewPredictor создает новый Predictor
func NewPredictor() *Predictor {
	return &Predictor{}
}

// Score возвращает счет в [0, 1). Данные масштабированы robust scaler'ом
// (медиана 0, размах 1), поэтому |значение| — это отклонение в единицах
// межквартильного размаха. Среднее абсолютное отклонение нормируется
// чувствительностью артефакта: score = d / (d + sensitivity).
// Детерминирован: одинаковые вход и версия артефакта дают одинаковый счет.
func (p *Predictor) Score(artifact *entity.ModelArtifact, scaled valueobject.FeatureVector) float64 {
	values := scaled.Values()
	if len(values) == 0 {
		return 0
	}

	var total float64
	for _, value := range values {
		total += math.Abs(value)
	}
	deviation := total / float64(len(values))

	return deviation / (deviation + artifact.Sensitivity())
}

// ContributingSensors возвращает до n признаков с наибольшим абсолютным
// отклонением — они и объясняют счет.
func (p *Predictor) ContributingSensors(scaled valueobject.FeatureVector, n int) []string {
	names := scaled.Names()
	values := scaled.Values()

	type contribution struct {
		name      string
		deviation float64
	}

	contributions := make([]contribution, len(names))
	for i, name := range names {
		contributions[i] = contribution{name: name, deviation: math.Abs(values[i])}
	}

	sort.Slice(contributions, func(i, j int) bool {
		if contributions[i].deviation != contributions[j].deviation {
			return contributions[i].deviation > contributions[j].deviation
		}
		return contributions[i].name < contributions[j].name
	})

	if n > len(contributions) {
		n = len(contributions)
	}

	top := make([]string, n)
	for i := 0; i < n; i++ {
		top[i] = contributions[i].name
	}
	return top
}
