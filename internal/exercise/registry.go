package exercise

import "github.com/ayusman/formcoach/internal/pose"

// Classifier maps one frame's pose to a form verdict. Classifiers are pure and
// must not retain the pose.
type Classifier func(pose.Pose) Result

// Registry maps each exercise kind to its classifier.
type Registry map[Kind]Classifier

// DefaultRegistry returns a registry with a classifier for every Kind.
func DefaultRegistry() Registry {
	return Registry{
		DownwardDog: AnalyzeDownwardDog,
		Squat:       AnalyzeSquat,
		BicepCurl:   AnalyzeBicepCurl,
	}
}

var defaultRegistry = DefaultRegistry()

// Analyze classifies p as the named exercise. Names without a classifier get
// the Unknown placeholder result.
func (r Registry) Analyze(p pose.Pose, name string) Result {
	kind, ok := ParseKind(name)
	if !ok {
		return Unknown(name)
	}
	return r.AnalyzeKind(p, kind)
}

// AnalyzeKind classifies p with the classifier registered for kind.
func (r Registry) AnalyzeKind(p pose.Pose, kind Kind) Result {
	classify, ok := r[kind]
	if !ok || classify == nil {
		return Unknown(kind.String())
	}
	return classify(p)
}

// Has reports whether a classifier is registered for name.
func (r Registry) Has(name string) bool {
	kind, ok := ParseKind(name)
	if !ok {
		return false
	}
	return r[kind] != nil
}

// Analyze classifies p with the default registry.
func Analyze(p pose.Pose, name string) Result {
	return defaultRegistry.Analyze(p, name)
}
