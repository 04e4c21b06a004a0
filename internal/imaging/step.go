package imaging

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

type StepKind string

const (
	StepResize     StepKind = "resize"
	StepFit        StepKind = "fit"
	StepFill       StepKind = "fill"
	StepRotate     StepKind = "rotate"
	StepFlip       StepKind = "flip"
	StepBrightness StepKind = "brightness"
	StepContrast   StepKind = "contrast"
	StepSaturation StepKind = "saturation"
	StepGamma      StepKind = "gamma"
	StepSharpen    StepKind = "sharpen"
	StepBlur       StepKind = "blur"
	StepGrayscale  StepKind = "grayscale"
	StepWatermark  StepKind = "watermark"
)

const (
	FlipHorizontal = "horizontal"
	FlipVertical   = "vertical"
)

// Step is a single transformation in a processing pipeline. Only the fields
// relevant to its Kind are interpreted; Validate enforces per-kind constraints.
type Step struct {
	Kind StepKind `json:"kind" yaml:"kind"`

	Width  int `json:"width,omitempty" yaml:"width,omitempty"`
	Height int `json:"height,omitempty" yaml:"height,omitempty"`

	Angle     float64 `json:"angle,omitempty" yaml:"angle,omitempty"`
	Direction string  `json:"direction,omitempty" yaml:"direction,omitempty"`

	// Percentage in [-100, 100] for brightness, contrast, and saturation.
	Amount float64 `json:"amount,omitempty" yaml:"amount,omitempty"`

	Gamma float64 `json:"gamma,omitempty" yaml:"gamma,omitempty"`
	Sigma float64 `json:"sigma,omitempty" yaml:"sigma,omitempty"`

	Text   string `json:"text,omitempty" yaml:"text,omitempty"`
	Anchor string `json:"anchor,omitempty" yaml:"anchor,omitempty"`

	// Opacity of the watermark in [0, 1]. Zero means unset and renders fully
	// opaque.
	Opacity float64 `json:"opacity,omitempty" yaml:"opacity,omitempty"`
}

func (s Step) Validate() error {
	switch s.Kind {
	case StepResize, StepFit, StepFill:
		if s.Width <= 0 || s.Height <= 0 {
			return fmt.Errorf("step %q requires positive width and height, got %dx%d", s.Kind, s.Width, s.Height)
		}
	case StepRotate:
		if s.Angle == 0 {
			return fmt.Errorf("step %q requires a non-zero angle", s.Kind)
		}
	case StepFlip:
		if s.Direction != FlipHorizontal && s.Direction != FlipVertical {
			return fmt.Errorf("step %q requires direction %q or %q, got %q", s.Kind, FlipHorizontal, FlipVertical, s.Direction)
		}
	case StepBrightness, StepContrast, StepSaturation:
		if s.Amount < -100 || s.Amount > 100 {
			return fmt.Errorf("step %q requires amount in [-100, 100], got %v", s.Kind, s.Amount)
		}
	case StepGamma:
		if s.Gamma <= 0 {
			return fmt.Errorf("step %q requires a positive gamma, got %v", s.Kind, s.Gamma)
		}
	case StepSharpen, StepBlur:
		if s.Sigma <= 0 {
			return fmt.Errorf("step %q requires a positive sigma, got %v", s.Kind, s.Sigma)
		}
	case StepGrayscale:
		// No parameters.
	case StepWatermark:
		if s.Text == "" {
			return fmt.Errorf("step %q requires non-empty text", s.Kind)
		}
		if s.Opacity < 0 || s.Opacity > 1 {
			return fmt.Errorf("step %q requires opacity in [0, 1], got %v", s.Kind, s.Opacity)
		}
		if s.Anchor != "" {
			if _, err := parseAnchor(s.Anchor); err != nil {
				return fmt.Errorf("step %q: %w", s.Kind, err)
			}
		}
	default:
		return fmt.Errorf("unknown step kind %q", s.Kind)
	}

	return nil
}

func (s Step) apply(img image.Image) (image.Image, error) {
	switch s.Kind {
	case StepResize:
		return imaging.Resize(img, s.Width, s.Height, imaging.Lanczos), nil
	case StepFit:
		return imaging.Fit(img, s.Width, s.Height, imaging.Lanczos), nil
	case StepFill:
		return imaging.Fill(img, s.Width, s.Height, imaging.Center, imaging.Lanczos), nil
	case StepRotate:
		return imaging.Rotate(img, s.Angle, color.Transparent), nil
	case StepFlip:
		if s.Direction == FlipVertical {
			return imaging.FlipV(img), nil
		}
		return imaging.FlipH(img), nil
	case StepBrightness:
		return imaging.AdjustBrightness(img, s.Amount), nil
	case StepContrast:
		return imaging.AdjustContrast(img, s.Amount), nil
	case StepSaturation:
		return imaging.AdjustSaturation(img, s.Amount), nil
	case StepGamma:
		return imaging.AdjustGamma(img, s.Gamma), nil
	case StepSharpen:
		return imaging.Sharpen(img, s.Sigma), nil
	case StepBlur:
		return imaging.Blur(img, s.Sigma), nil
	case StepGrayscale:
		return imaging.Grayscale(img), nil
	case StepWatermark:
		return applyWatermark(img, s)
	default:
		return nil, fmt.Errorf("unknown step kind %q", s.Kind)
	}
}

// ParseSteps decodes and validates a JSON-encoded step list, e.g. a Preset's
// Steps column or a Job's inline steps.
func ParseSteps(data []byte) ([]Step, error) {
	var steps []Step
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("error unmarshalling pipeline steps: %w", err)
	}

	if err := ValidateSteps(steps); err != nil {
		return nil, err
	}

	return steps, nil
}

func ValidateSteps(steps []Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("pipeline must contain at least one step")
	}

	for i, step := range steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("invalid step %d: %w", i, err)
		}
	}

	return nil
}
