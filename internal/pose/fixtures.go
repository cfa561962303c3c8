package pose

import "math"

// fixtureScore is the confidence assigned to every keypoint in the preset poses.
const fixtureScore = 0.9

func newFixture(points map[Part]Point) Pose {
	p := Pose{Score: fixtureScore}
	for _, part := range Parts {
		pt, ok := points[part]
		if !ok {
			continue
		}
		p.Keypoints = append(p.Keypoints, Keypoint{Part: part, Position: pt, Score: fixtureScore})
	}
	return p
}

func head(cx, y float64) map[Part]Point {
	return map[Part]Point{
		Nose:     {X: cx, Y: y},
		LeftEye:  {X: cx - 8, Y: y - 8},
		RightEye: {X: cx + 8, Y: y - 8},
		LeftEar:  {X: cx - 18, Y: y - 4},
		RightEar: {X: cx + 18, Y: y - 4},
	}
}

// StandingPose returns a person standing upright facing the camera with feet
// under the shoulders. Both knee angles are 178°.
func StandingPose() Pose {
	pts := head(320, 60)
	pts[LeftShoulder] = Point{X: 280, Y: 100}
	pts[RightShoulder] = Point{X: 360, Y: 100}
	pts[LeftElbow] = Point{X: 270, Y: 170}
	pts[RightElbow] = Point{X: 370, Y: 170}
	pts[LeftWrist] = Point{X: 265, Y: 240}
	pts[RightWrist] = Point{X: 375, Y: 240}
	pts[LeftHip] = Point{X: 290, Y: 250}
	pts[RightHip] = Point{X: 350, Y: 250}
	// A 1.75px sideways knee offset over 100px segments bends each knee by 2°.
	pts[LeftKnee] = Point{X: 288.25, Y: 350}
	pts[RightKnee] = Point{X: 351.75, Y: 350}
	pts[LeftAnkle] = Point{X: 290, Y: 450}
	pts[RightAnkle] = Point{X: 350, Y: 450}
	return newFixture(pts)
}

// SquatPose returns a person at the bottom of a squat: both knees bent to 90°,
// knees directly above the ankles, torso upright and stance at shoulder width.
func SquatPose() Pose {
	pts := head(340, 160)
	pts[LeftShoulder] = Point{X: 300, Y: 200}
	pts[RightShoulder] = Point{X: 380, Y: 200}
	pts[LeftElbow] = Point{X: 290, Y: 260}
	pts[RightElbow] = Point{X: 390, Y: 260}
	pts[LeftWrist] = Point{X: 300, Y: 300}
	pts[RightWrist] = Point{X: 380, Y: 300}
	pts[LeftHip] = Point{X: 200, Y: 350}
	pts[RightHip] = Point{X: 480, Y: 350}
	pts[LeftKnee] = Point{X: 300, Y: 350}
	pts[RightKnee] = Point{X: 380, Y: 350}
	pts[LeftAnkle] = Point{X: 300, Y: 450}
	pts[RightAnkle] = Point{X: 380, Y: 450}
	return newFixture(pts)
}

// DownwardDogPose returns an inverted-V pose: hips well above the shoulders with
// arms and legs extended.
func DownwardDogPose() Pose {
	pts := head(320, 330)
	pts[LeftShoulder] = Point{X: 230, Y: 300}
	pts[RightShoulder] = Point{X: 250, Y: 300}
	pts[LeftElbow] = Point{X: 200, Y: 360}
	pts[RightElbow] = Point{X: 220, Y: 360}
	pts[LeftWrist] = Point{X: 170, Y: 420}
	pts[RightWrist] = Point{X: 190, Y: 420}
	pts[LeftHip] = Point{X: 390, Y: 150}
	pts[RightHip] = Point{X: 410, Y: 150}
	pts[LeftKnee] = Point{X: 430, Y: 285}
	pts[RightKnee] = Point{X: 450, Y: 285}
	pts[LeftAnkle] = Point{X: 470, Y: 420}
	pts[RightAnkle] = Point{X: 490, Y: 420}
	return newFixture(pts)
}

// BicepCurlPose returns a standing person with both upper arms vertical and
// both elbows bent to elbowAngle degrees.
func BicepCurlPose(elbowAngle float64) Pose {
	pts := head(250, 90)
	theta := elbowAngle * math.Pi / 180
	const forearm = 100.0

	pts[LeftShoulder] = Point{X: 200, Y: 150}
	pts[RightShoulder] = Point{X: 300, Y: 150}
	pts[LeftElbow] = Point{X: 200, Y: 250}
	pts[RightElbow] = Point{X: 300, Y: 250}
	pts[LeftWrist] = Point{X: 200 - forearm*math.Sin(theta), Y: 250 - forearm*math.Cos(theta)}
	pts[RightWrist] = Point{X: 300 + forearm*math.Sin(theta), Y: 250 - forearm*math.Cos(theta)}
	pts[LeftHip] = Point{X: 200, Y: 350}
	pts[RightHip] = Point{X: 300, Y: 350}
	pts[LeftKnee] = Point{X: 200, Y: 450}
	pts[RightKnee] = Point{X: 300, Y: 450}
	pts[LeftAnkle] = Point{X: 200, Y: 550}
	pts[RightAnkle] = Point{X: 300, Y: 550}
	return newFixture(pts)
}

// With returns a copy of p with kp replacing any keypoint of the same part.
func (p Pose) With(kp Keypoint) Pose {
	out := Pose{Score: p.Score, Keypoints: make([]Keypoint, 0, len(p.Keypoints)+1)}
	replaced := false
	for _, existing := range p.Keypoints {
		if existing.Part == kp.Part {
			out.Keypoints = append(out.Keypoints, kp)
			replaced = true
			continue
		}
		out.Keypoints = append(out.Keypoints, existing)
	}
	if !replaced {
		out.Keypoints = append(out.Keypoints, kp)
	}
	return out
}

// Moved returns a copy of p with part relocated to pt.
func (p Pose) Moved(part Part, pt Point) Pose {
	kp, ok := p.lookup(part)
	if !ok {
		kp = Keypoint{Part: part, Score: fixtureScore}
	}
	kp.Position = pt
	return p.With(kp)
}

// WithScore returns a copy of p with the score of part replaced.
func (p Pose) WithScore(part Part, score float64) Pose {
	kp, ok := p.lookup(part)
	if !ok {
		return p
	}
	kp.Score = score
	return p.With(kp)
}

// lookup finds a keypoint regardless of its confidence.
func (p Pose) lookup(part Part) (Keypoint, bool) {
	for _, kp := range p.Keypoints {
		if kp.Part == part {
			return kp, true
		}
	}
	return Keypoint{}, false
}
