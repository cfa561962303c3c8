package exercise

// Difficulty grades an exercise for display.
type Difficulty string

const (
	Beginner     Difficulty = "beginner"
	Intermediate Difficulty = "intermediate"
	Advanced     Difficulty = "advanced"
)

// Entry is one selectable exercise in the catalog.
type Entry struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Difficulty Difficulty `json:"difficulty"`
	// Tracked is true when a classifier exists for the exercise.
	Tracked bool `json:"tracked"`
}

// Category groups catalog entries.
type Category struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Exercises []Entry `json:"exercises"`
}

// Catalog returns the exercises offered to the user, flagging those r can
// classify. Untracked exercises still run through a session and receive the
// placeholder result.
func Catalog(r Registry) []Category {
	cats := []Category{
		{
			ID:   "yoga",
			Name: "Yoga Poses",
			Exercises: []Entry{
				{ID: "y1", Name: "Downward Dog", Difficulty: Beginner},
				{ID: "y2", Name: "Warrior I", Difficulty: Beginner},
				{ID: "y3", Name: "Warrior II", Difficulty: Intermediate},
				{ID: "y4", Name: "Tree Pose", Difficulty: Beginner},
				{ID: "y5", Name: "Chair Pose", Difficulty: Intermediate},
				{ID: "y6", Name: "Crow Pose", Difficulty: Advanced},
			},
		},
		{
			ID:   "strength",
			Name: "Strength Exercises",
			Exercises: []Entry{
				{ID: "s1", Name: "Squat", Difficulty: Beginner},
				{ID: "s2", Name: "Plank", Difficulty: Beginner},
				{ID: "s3", Name: "Push-up", Difficulty: Intermediate},
				{ID: "s4", Name: "Deadlift", Difficulty: Intermediate},
				{ID: "s5", Name: "Lunge", Difficulty: Beginner},
				{ID: "s6", Name: "Burpee", Difficulty: Advanced},
				{ID: "s7", Name: "Bicep Curl", Difficulty: Beginner},
			},
		},
		{
			ID:   "cardio",
			Name: "Cardio Exercises",
			Exercises: []Entry{
				{ID: "c1", Name: "Jumping Jack", Difficulty: Beginner},
				{ID: "c2", Name: "High Knees", Difficulty: Beginner},
				{ID: "c3", Name: "Mountain Climber", Difficulty: Intermediate},
				{ID: "c4", Name: "Jump Squat", Difficulty: Intermediate},
				{ID: "c5", Name: "Burpee", Difficulty: Advanced},
			},
		},
	}

	for i := range cats {
		for j := range cats[i].Exercises {
			e := &cats[i].Exercises[j]
			e.Tracked = r.Has(e.Name)
		}
	}
	return cats
}
