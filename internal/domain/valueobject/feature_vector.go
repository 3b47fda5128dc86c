package valueobject

import (
	"errors"
	"fmt"
	"sort"
)

// FeatureVector — упорядоченный вектор признаков фиксированного размера
// (Value Object). Имена отсортированы, значения выровнены по именам.
type FeatureVector struct {
	names  []string
	values []float64
}

// NewFeatureVector создает вектор из map признаков; порядок — сортировка имен
func NewFeatureVector(features map[string]float64) (FeatureVector, error) {
	if len(features) == 0 {
		return FeatureVector{}, errors.New("feature vector cannot be empty")
	}

	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make([]float64, len(names))
	for i, name := range names {
		values[i] = features[name]
	}

	return FeatureVector{names: names, values: values}, nil
}

// NewOrderedFeatureVector создает вектор с заданным порядком имен
func NewOrderedFeatureVector(names []string, values []float64) (FeatureVector, error) {
	if len(names) == 0 {
		return FeatureVector{}, errors.New("feature vector cannot be empty")
	}
	if len(names) != len(values) {
		return FeatureVector{}, fmt.Errorf("names/values length mismatch: %d vs %d", len(names), len(values))
	}

	return FeatureVector{
		names:  append([]string(nil), names...),
		values: append([]float64(nil), values...),
	}, nil
}

// Names возвращает упорядоченные имена признаков
func (fv FeatureVector) Names() []string {
	return append([]string(nil), fv.names...)
}

// Values возвращает значения признаков в порядке имен
func (fv FeatureVector) Values() []float64 {
	return append([]float64(nil), fv.values...)
}

// Len возвращает размерность вектора
func (fv FeatureVector) Len() int {
	return len(fv.names)
}

// Value возвращает значение признака по имени
func (fv FeatureVector) Value(name string) (float64, bool) {
	for i, n := range fv.names {
		if n == name {
			return fv.values[i], true
		}
	}
	return 0, false
}

// ToMap возвращает вектор как map имя → значение
func (fv FeatureVector) ToMap() map[string]float64 {
	result := make(map[string]float64, len(fv.names))
	for i, name := range fv.names {
		result[name] = fv.values[i]
	}
	return result
}

// SameSchema проверяет совпадение набора и порядка признаков
func (fv FeatureVector) SameSchema(names []string) bool {
	if len(fv.names) != len(names) {
		return false
	}
	for i, name := range fv.names {
		if name != names[i] {
			return false
		}
	}
	return true
}
