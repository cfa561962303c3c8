// Package pose provides the keypoint model produced by pose estimation and the
// geometry used to reason about it.
package pose

// Part identifies one of the 17 skeletal keypoints reported by the pose model.
// Names follow the PoseNet convention so they can be passed through JSON as-is.
type Part string

const (
	Nose          Part = "nose"
	LeftEye       Part = "leftEye"
	RightEye      Part = "rightEye"
	LeftEar       Part = "leftEar"
	RightEar      Part = "rightEar"
	LeftShoulder  Part = "leftShoulder"
	RightShoulder Part = "rightShoulder"
	LeftElbow     Part = "leftElbow"
	RightElbow    Part = "rightElbow"
	LeftWrist     Part = "leftWrist"
	RightWrist    Part = "rightWrist"
	LeftHip       Part = "leftHip"
	RightHip      Part = "rightHip"
	LeftKnee      Part = "leftKnee"
	RightKnee     Part = "rightKnee"
	LeftAnkle     Part = "leftAnkle"
	RightAnkle    Part = "rightAnkle"
)

// NumParts is the number of keypoints in a full skeleton.
const NumParts = 17

// ConfidenceThreshold is the score a keypoint must exceed to be usable.
const ConfidenceThreshold = 0.5

// Parts lists every keypoint in model index order.
var Parts = [NumParts]Part{
	Nose,
	LeftEye, RightEye,
	LeftEar, RightEar,
	LeftShoulder, RightShoulder,
	LeftElbow, RightElbow,
	LeftWrist, RightWrist,
	LeftHip, RightHip,
	LeftKnee, RightKnee,
	LeftAnkle, RightAnkle,
}

// Skeleton holds the pairs of adjacent keypoints joined when drawing a pose.
var Skeleton = [][2]Part{
	{Nose, LeftEye}, {LeftEye, LeftEar}, {Nose, RightEye}, {RightEye, RightEar},
	{LeftShoulder, RightShoulder},
	{LeftShoulder, LeftElbow}, {LeftElbow, LeftWrist},
	{RightShoulder, RightElbow}, {RightElbow, RightWrist},
	{LeftShoulder, LeftHip}, {RightShoulder, RightHip},
	{LeftHip, RightHip},
	{LeftHip, LeftKnee}, {LeftKnee, LeftAnkle},
	{RightHip, RightKnee}, {RightKnee, RightAnkle},
}

var partsByName = func() map[string]Part {
	m := make(map[string]Part, NumParts)
	for _, p := range Parts {
		m[string(p)] = p
	}
	return m
}()

// ParsePart returns the Part with the given name.
func ParsePart(name string) (Part, bool) {
	p, ok := partsByName[name]
	return p, ok
}

// Index returns the model index of the part, or -1 if it is not a known part.
func (p Part) Index() int {
	for i, q := range Parts {
		if q == p {
			return i
		}
	}
	return -1
}

// Point is a 2D position in image-pixel space. Y grows downward.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Keypoint is a single named landmark with its detection score.
type Keypoint struct {
	Part     Part    `json:"part"`
	Position Point   `json:"position"`
	Score    float64 `json:"score"`
}

// Pose is the set of keypoints estimated for one frame.
type Pose struct {
	Keypoints []Keypoint `json:"keypoints"`
	Score     float64    `json:"score,omitempty"`
}

// IsConfident reports whether kp scored above threshold.
func IsConfident(kp Keypoint, threshold float64) bool {
	return kp.Score > threshold
}

// Find returns the keypoint for part if it is present and confident.
// Low-confidence keypoints are reported as absent.
func (p Pose) Find(part Part) (Keypoint, bool) {
	for _, kp := range p.Keypoints {
		if kp.Part == part {
			if !IsConfident(kp, ConfidenceThreshold) {
				return Keypoint{}, false
			}
			return kp, true
		}
	}
	return Keypoint{}, false
}

// FindAll looks up every requested part. It succeeds only if all of them are
// present and confident.
func (p Pose) FindAll(parts ...Part) (map[Part]Keypoint, bool) {
	found := make(map[Part]Keypoint, len(parts))
	for _, part := range parts {
		kp, ok := p.Find(part)
		if !ok {
			return nil, false
		}
		found[part] = kp
	}
	return found, true
}

// Confident returns the keypoints that are usable at the default threshold.
func (p Pose) Confident() []Keypoint {
	var out []Keypoint
	for _, kp := range p.Keypoints {
		if IsConfident(kp, ConfidenceThreshold) {
			out = append(out, kp)
		}
	}
	return out
}

// Empty reports whether the pose has no usable keypoints.
func (p Pose) Empty() bool {
	return len(p.Confident()) == 0
}
