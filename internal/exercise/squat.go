package exercise

import (
	"math"

	"github.com/ayusman/formcoach/internal/pose"
)

const (
	squatMissingFeedback   = "Position yourself so your full body is visible"
	squatKneesFeedback     = "Keep knees behind toes"
	squatBackFeedback      = "Keep back straight and chest up"
	squatDepthFeedback     = "Try to squat deeper"
	squatStanceFeedback    = "Widen stance to shoulder width"
	squatGoodFormFeedback  = "Good squat form"
	squatKneeToeTolerance  = 30.0
	squatMaxTorsoOffset    = 50.0
	squatMinStanceRatio    = 0.7
	squatShallowDepthLow   = 20.0
	squatShallowDepthHigh  = 50.0
	squatShallowKneeAngle  = 120.0
	squatStandingKneeAngle = 180.0
	squatFullDepthBend     = 90.0
)

// AnalyzeSquat measures knee bend and checks squat form.
//
// Depth is 0 when standing (knees at 180°) and 100 at a 90° bend. The form
// checks run in a fixed order and a later failure replaces the feedback of an
// earlier one, so the reported correction is the last failing check.
func AnalyzeSquat(p pose.Pose) Result {
	kps, ok := p.FindAll(
		pose.LeftHip, pose.RightHip,
		pose.LeftKnee, pose.RightKnee,
		pose.LeftAnkle, pose.RightAnkle,
		pose.LeftShoulder, pose.RightShoulder,
	)
	if !ok {
		return Result{
			Feedback: squatMissingFeedback,
			Metrics: map[string]float64{
				MetricDepth:     0,
				MetricKneeAngle: squatStandingKneeAngle,
			},
		}
	}

	at := func(part pose.Part) pose.Point { return kps[part].Position }

	leftKnee := pose.Angle(at(pose.LeftHip), at(pose.LeftKnee), at(pose.LeftAnkle))
	rightKnee := pose.Angle(at(pose.RightHip), at(pose.RightKnee), at(pose.RightAnkle))
	kneeAngle := (leftKnee + rightKnee) / 2
	depth := pose.Clamp((squatStandingKneeAngle-kneeAngle)/squatFullDepthBend*100, 0, 100)

	res := Result{
		IsCorrect: true,
		Feedback:  squatGoodFormFeedback,
		Metrics: map[string]float64{
			MetricDepth:     depth,
			MetricKneeAngle: kneeAngle,
		},
	}
	fail := func(msg string) {
		res.IsCorrect = false
		res.Feedback = msg
	}

	if at(pose.LeftKnee).X < at(pose.LeftAnkle).X-squatKneeToeTolerance ||
		at(pose.RightKnee).X > at(pose.RightAnkle).X+squatKneeToeTolerance {
		fail(squatKneesFeedback)
	}

	shoulderMid := pose.Midpoint(at(pose.LeftShoulder), at(pose.RightShoulder))
	hipMid := pose.Midpoint(at(pose.LeftHip), at(pose.RightHip))
	if math.Abs(shoulderMid.X-hipMid.X) > squatMaxTorsoOffset {
		fail(squatBackFeedback)
	}

	if depth > squatShallowDepthLow && depth < squatShallowDepthHigh && kneeAngle > squatShallowKneeAngle {
		fail(squatDepthFeedback)
	}

	stance := pose.Distance(at(pose.LeftAnkle), at(pose.RightAnkle))
	shoulders := pose.Distance(at(pose.LeftShoulder), at(pose.RightShoulder))
	if stance < squatMinStanceRatio*shoulders {
		fail(squatStanceFeedback)
	}

	return res
}
