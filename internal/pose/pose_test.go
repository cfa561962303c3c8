package pose

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePart(t *testing.T) {
	for i, p := range Parts {
		got, ok := ParsePart(string(p))
		require.True(t, ok, "part %q should parse", p)
		assert.Equal(t, p, got)
		assert.Equal(t, i, p.Index())
	}

	_, ok := ParsePart("leftToe")
	assert.False(t, ok)
	assert.Equal(t, -1, Part("leftToe").Index())
}

func TestIsConfident(t *testing.T) {
	kp := Keypoint{Part: Nose, Score: 0.5}
	assert.False(t, IsConfident(kp, ConfidenceThreshold), "score equal to threshold is not confident")

	kp.Score = 0.51
	assert.True(t, IsConfident(kp, ConfidenceThreshold))
	assert.False(t, IsConfident(kp, 0.8))
}

func TestPose_Find(t *testing.T) {
	p := Pose{Keypoints: []Keypoint{
		{Part: LeftHip, Position: Point{X: 10, Y: 20}, Score: 0.9},
		{Part: RightHip, Position: Point{X: 0, Y: 0}, Score: 0.2},
	}}

	t.Run("confident keypoint is returned", func(t *testing.T) {
		kp, ok := p.Find(LeftHip)
		require.True(t, ok)
		assert.Equal(t, Point{X: 10, Y: 20}, kp.Position)
	})

	t.Run("low confidence keypoint is absent", func(t *testing.T) {
		kp, ok := p.Find(RightHip)
		assert.False(t, ok)
		assert.Equal(t, Keypoint{}, kp)
	})

	t.Run("missing keypoint is absent", func(t *testing.T) {
		_, ok := p.Find(Nose)
		assert.False(t, ok)
	})
}

func TestPose_FindAll(t *testing.T) {
	p := StandingPose()

	found, ok := p.FindAll(LeftHip, RightHip, LeftKnee)
	require.True(t, ok)
	assert.Len(t, found, 3)

	_, ok = p.WithScore(LeftKnee, 0.1).FindAll(LeftHip, RightHip, LeftKnee)
	assert.False(t, ok, "one unusable keypoint fails the whole lookup")
}

func TestPose_Confident(t *testing.T) {
	p := StandingPose().WithScore(Nose, 0.3).WithScore(LeftEar, 0.1)
	assert.Len(t, p.Confident(), NumParts-2)
	assert.False(t, p.Empty())
	assert.True(t, Pose{}.Empty())
}

func TestPose_JSON(t *testing.T) {
	raw := `{"keypoints":[{"part":"leftKnee","position":{"x":12.5,"y":40},"score":0.87}],"score":0.6}`

	var p Pose
	require.NoError(t, json.Unmarshal([]byte(raw), &p))

	kp, ok := p.Find(LeftKnee)
	require.True(t, ok)
	assert.Equal(t, 12.5, kp.Position.X)
	assert.Equal(t, 0.6, p.Score)
}

func TestFixtures(t *testing.T) {
	t.Run("standing knees are nearly straight", func(t *testing.T) {
		p := StandingPose()
		hip, _ := p.Find(LeftHip)
		knee, _ := p.Find(LeftKnee)
		ankle, _ := p.Find(LeftAnkle)
		assert.InDelta(t, 178, Angle(hip.Position, knee.Position, ankle.Position), 0.05)
	})

	t.Run("squat knees are at ninety degrees", func(t *testing.T) {
		p := SquatPose()
		for _, side := range [][3]Part{{LeftHip, LeftKnee, LeftAnkle}, {RightHip, RightKnee, RightAnkle}} {
			kps, ok := p.FindAll(side[0], side[1], side[2])
			require.True(t, ok)
			assert.InDelta(t, 90, Angle(kps[side[0]].Position, kps[side[1]].Position, kps[side[2]].Position), 1e-6)
		}
	})

	t.Run("curl elbow angle follows the argument", func(t *testing.T) {
		p := BicepCurlPose(75)
		kps, ok := p.FindAll(RightShoulder, RightElbow, RightWrist)
		require.True(t, ok)
		assert.InDelta(t, 75, Angle(kps[RightShoulder].Position, kps[RightElbow].Position, kps[RightWrist].Position), 1e-6)
	})

	t.Run("every fixture is a full skeleton", func(t *testing.T) {
		for _, p := range []Pose{StandingPose(), SquatPose(), DownwardDogPose(), BicepCurlPose(120)} {
			assert.Len(t, p.Confident(), NumParts)
		}
	})
}

func TestPose_Moved(t *testing.T) {
	p := StandingPose().Moved(LeftKnee, Point{X: 1, Y: 2})
	kp, ok := p.Find(LeftKnee)
	require.True(t, ok)
	assert.Equal(t, Point{X: 1, Y: 2}, kp.Position)
	assert.Len(t, p.Keypoints, NumParts)
}
