// Package exercise classifies a pose against per-exercise form rules.
package exercise

import "strings"

// Kind identifies an exercise that has a registered classifier.
type Kind int

const (
	DownwardDog Kind = iota + 1
	Squat
	BicepCurl
)

var kindNames = map[Kind]string{
	DownwardDog: "Downward Dog",
	Squat:       "Squat",
	BicepCurl:   "Bicep Curl",
}

// Kinds returns every known exercise kind in declaration order.
func Kinds() []Kind {
	return []Kind{DownwardDog, Squat, BicepCurl}
}

// String returns the display name of the exercise.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// ParseKind resolves a display name to a Kind. Matching ignores case and
// surrounding whitespace.
func ParseKind(name string) (Kind, bool) {
	name = strings.TrimSpace(name)
	for _, k := range Kinds() {
		if strings.EqualFold(kindNames[k], name) {
			return k, true
		}
	}
	return 0, false
}
