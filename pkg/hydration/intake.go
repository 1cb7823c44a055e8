// Package hydration holds the daily water target formula and the
// arithmetic the reminder cycle derives from it.
package hydration

import (
	"fmt"
	"math"
)

type Gender string

const (
	Male   Gender = "male"
	Female Gender = "female"
)

const (
	childAgeLimit   = 13
	litersPerKilo   = 0.03
	childMaleBase   = 2.1
	childFemaleBase = 1.9
	adultMaleBase   = 2.5
	adultFemaleBase = 2.0
)

func (g Gender) Valid() bool {
	return g == Male || g == Female
}

// ComputeTarget returns the daily target in liters: the larger of the
// age/gender baseline and 30ml per kilogram of body weight.
// Inputs are expected to be validated by the caller.
func ComputeTarget(gender Gender, age int, weight float64) float64 {
	return math.Max(Baseline(gender, age), weight*litersPerKilo)
}

func Baseline(gender Gender, age int) float64 {
	if age <= childAgeLimit {
		if gender == Male {
			return childMaleBase
		}
		return childFemaleBase
	}
	if gender == Male {
		return adultMaleBase
	}
	return adultFemaleBase
}

// PerNotification splits the target evenly over limit reminders, rounded
// to centiliters.
func PerNotification(target float64, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	return Round2(target / float64(limit))
}

func Percentage(intake, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return 100 * intake / target
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func FormatLiters(v float64) string {
	return fmt.Sprintf("%.2f", Round2(v))
}
