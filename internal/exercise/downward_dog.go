package exercise

import (
	"math"

	"github.com/ayusman/formcoach/internal/pose"
)

const (
	dogMissingFeedback    = "Ensure full body visible to the camera"
	dogCorrectFeedback    = "Great job! Your Downward Dog pose looks correct."
	dogCorrectiveFeedback = "Adjust your pose. Hips should be higher, arms and legs straight."

	// dogMinLimbSpan is the vertical extent in pixels an arm or leg must cover
	// to count as extended.
	dogMinLimbSpan = 100.0
)

// AnalyzeDownwardDog checks for an inverted V: hips above the shoulders with
// arms and legs extended.
func AnalyzeDownwardDog(p pose.Pose) Result {
	kps, ok := p.FindAll(
		pose.LeftWrist, pose.RightWrist,
		pose.LeftAnkle, pose.RightAnkle,
		pose.LeftHip, pose.RightHip,
		pose.LeftShoulder, pose.RightShoulder,
	)
	if !ok {
		return Result{Feedback: dogMissingFeedback}
	}

	y := func(part pose.Part) float64 { return kps[part].Position.Y }

	avgHipY := (y(pose.LeftHip) + y(pose.RightHip)) / 2
	avgShoulderY := (y(pose.LeftShoulder) + y(pose.RightShoulder)) / 2
	hipsRaised := avgHipY < avgShoulderY

	armsStraight := math.Abs(y(pose.LeftWrist)-y(pose.LeftShoulder)) > dogMinLimbSpan &&
		math.Abs(y(pose.RightWrist)-y(pose.RightShoulder)) > dogMinLimbSpan

	legsStraight := math.Abs(y(pose.LeftAnkle)-y(pose.LeftHip)) > dogMinLimbSpan &&
		math.Abs(y(pose.RightAnkle)-y(pose.RightHip)) > dogMinLimbSpan

	if hipsRaised && armsStraight && legsStraight {
		return Result{IsCorrect: true, Feedback: dogCorrectFeedback}
	}
	return Result{Feedback: dogCorrectiveFeedback}
}
