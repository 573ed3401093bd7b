package utils

import (
	"math"
)

// math.go - математические утилиты для торговых операций
//
// Назначение:
// Округление объёмов ордеров под ограничения бирж. Все функции
// чистые, без побочных эффектов.

// RoundToPrecision округляет значение ВНИЗ до decimals знаков после запятой.
//
// Используется для подгонки объёма рыночного ордера под precision.amount
// биржи. Округление вниз гарантирует, что мы не превысим доступный баланс.
//
// Примеры:
//   - RoundToPrecision(0.123456, 3) = 0.123
//   - RoundToPrecision(1.999, 1) = 1.9
//   - RoundToPrecision(100.5, 0) = 100.0
func RoundToPrecision(value float64, decimals int) float64 {
	if decimals < 0 {
		return value
	}
	pow := math.Pow(10, float64(decimals))
	return math.Floor(value*pow) / pow
}

// RoundToLotSize округляет значение ВНИЗ до ближайшего кратного lotSize.
//
// Для бирж, задающих шаг объёма не числом знаков, а минимальным шагом.
// Если lotSize <= 0, возвращает исходное значение.
func RoundToLotSize(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Floor(value/lotSize) * lotSize
}

// DecimalsOfStep переводит шаг объёма ("0.001") в число знаков (3).
//
// Шаги >= 1 дают 0 знаков. Некорректный шаг дает 8 знаков
// (максимальная точность большинства бирж).
func DecimalsOfStep(step float64) int {
	if step <= 0 {
		return 8
	}
	if step >= 1 {
		return 0
	}
	return int(math.Round(-math.Log10(step)))
}

// Clamp ограничивает значение диапазоном [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
