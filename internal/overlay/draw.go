// Package overlay renders pose feedback onto camera frames.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/ayusman/formcoach/internal/pose"
	"github.com/ayusman/formcoach/internal/tracker"
)

var (
	ColorCorrect   = color.RGBA{R: 0, G: 200, B: 0, A: 0}
	ColorIncorrect = color.RGBA{R: 230, G: 0, B: 0, A: 0}
	colorText      = color.RGBA{R: 255, G: 255, B: 255, A: 0}
	colorDown      = color.RGBA{R: 255, G: 160, B: 0, A: 0}
	colorUp        = color.RGBA{R: 0, G: 160, B: 255, A: 0}
	colorWaiting   = color.RGBA{R: 160, G: 160, B: 160, A: 0}
)

const (
	keypointRadius = 5
	lineThickness  = 2
	panelAlpha     = 0.5
)

// Stats is the text drawn in the top-left panel.
type Stats struct {
	Exercise string
	Feedback string
	RepCount int
	Depth    float64
	Tracked  bool
	Phase    tracker.Phase
	// Angle is the joint angle reported by the classifier, with its label.
	AngleLabel string
	Angle      float64
}

// Pose draws confident keypoints and the skeleton lines joining them, in
// green when correct is set and red otherwise.
func Pose(img *gocv.Mat, p pose.Pose, correct bool) {
	c := ColorIncorrect
	if correct {
		c = ColorCorrect
	}

	for _, pair := range pose.Skeleton {
		a, okA := p.Find(pair[0])
		b, okB := p.Find(pair[1])
		if !okA || !okB {
			continue
		}
		gocv.Line(img, pt(a.Position), pt(b.Position), c, lineThickness)
	}

	for _, kp := range p.Confident() {
		gocv.Circle(img, pt(kp.Position), keypointRadius, c, -1)
	}
}

// Panel draws the exercise statistics and a phase indicator.
func Panel(img *gocv.Mat, s Stats) {
	lines := []string{s.Exercise}
	if s.Tracked {
		lines = append(lines,
			fmt.Sprintf("Reps: %d", s.RepCount),
			fmt.Sprintf("Depth: %d%%", int(math.Round(s.Depth))),
		)
		if s.AngleLabel != "" {
			lines = append(lines, fmt.Sprintf("%s: %d deg", s.AngleLabel, int(math.Round(s.Angle))))
		}
	}
	if s.Feedback != "" {
		lines = append(lines, s.Feedback)
	}

	const lineHeight = 26
	box := image.Rect(10, 10, 330, 20+lineHeight*len(lines))
	shade(img, box)

	for i, l := range lines {
		gocv.PutText(img, l, image.Pt(20, 10+lineHeight*(i+1)), gocv.FontHersheySimplex, 0.6, colorText, 1)
	}

	if s.Tracked {
		center := image.Pt(box.Max.X-20, box.Min.Y+20)
		gocv.Circle(img, center, 8, PhaseColor(s.Phase), -1)
	}
}

// PhaseColor returns the indicator colour for a tracker phase.
func PhaseColor(p tracker.Phase) color.RGBA {
	switch p {
	case tracker.Down:
		return colorDown
	case tracker.Up:
		return colorUp
	default:
		return colorWaiting
	}
}

// shade darkens r in place, clipped to the image.
func shade(img *gocv.Mat, r image.Rectangle) {
	r = r.Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
	if r.Empty() {
		return
	}
	region := img.Region(r)
	defer region.Close()

	panel := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), region.Rows(), region.Cols(), region.Type())
	defer panel.Close()

	gocv.AddWeighted(region, 1-panelAlpha, panel, panelAlpha, 0, &region)
}

func pt(p pose.Point) image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}
