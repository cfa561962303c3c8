package exercise

import "github.com/ayusman/formcoach/internal/pose"

const (
	curlMissingFeedback  = "Keep your arm and hip visible"
	curlSqueezeFeedback  = "Don't squeeze too much at the top"
	curlElbowFeedback    = "Keep your elbow close to your body"
	curlGoodFormFeedback = "Good curl form"

	curlMinElbowAngle = 60.0
	curlMaxElbowAngle = 160.0
	// Bending past this is over-squeezing at the top of the curl.
	curlSqueezeLimit = curlMinElbowAngle - 45
	// Maximum angle between torso and upper arm before the elbow has drifted.
	curlMaxArmDrift = 35.0
)

type armSide struct {
	shoulder, elbow, wrist, hip pose.Part
}

var (
	leftArm  = armSide{pose.LeftShoulder, pose.LeftElbow, pose.LeftWrist, pose.LeftHip}
	rightArm = armSide{pose.RightShoulder, pose.RightElbow, pose.RightWrist, pose.RightHip}
)

// AnalyzeBicepCurl tracks elbow flexion on the better visible arm.
//
// Depth is curl progress: 0 with the arm extended to 160° and 100 when the
// elbow closes to 60°.
func AnalyzeBicepCurl(p pose.Pose) Result {
	kps, ok := pickArm(p)
	if !ok {
		return Result{
			Feedback: curlMissingFeedback,
			Metrics: map[string]float64{
				MetricDepth:      0,
				MetricElbowAngle: 180,
			},
		}
	}

	elbow := pose.Angle(kps[0].Position, kps[1].Position, kps[2].Position)
	drift := pose.Angle(kps[3].Position, kps[0].Position, kps[1].Position)
	depth := pose.Interp(elbow, curlMinElbowAngle, curlMaxElbowAngle, 100, 0)

	res := Result{
		IsCorrect: true,
		Feedback:  curlGoodFormFeedback,
		Metrics: map[string]float64{
			MetricDepth:      depth,
			MetricElbowAngle: elbow,
		},
	}
	if elbow < curlSqueezeLimit {
		res.IsCorrect = false
		res.Feedback = curlSqueezeFeedback
	}
	if drift > curlMaxArmDrift {
		res.IsCorrect = false
		res.Feedback = curlElbowFeedback
	}
	return res
}

// pickArm returns shoulder, elbow, wrist and hip of the side with the highest
// total confidence among sides where all four are usable. Ties go to the
// right arm.
func pickArm(p pose.Pose) ([4]pose.Keypoint, bool) {
	var (
		best  [4]pose.Keypoint
		score float64
		found bool
	)
	for _, side := range []armSide{rightArm, leftArm} {
		kps, ok := p.FindAll(side.shoulder, side.elbow, side.wrist, side.hip)
		if !ok {
			continue
		}
		arm := [4]pose.Keypoint{kps[side.shoulder], kps[side.elbow], kps[side.wrist], kps[side.hip]}
		total := arm[0].Score + arm[1].Score + arm[2].Score + arm[3].Score
		if !found || total > score {
			best, score, found = arm, total, true
		}
	}
	return best, found
}
