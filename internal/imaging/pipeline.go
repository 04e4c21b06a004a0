// Package imaging implements the photo transformation engine: validated
// pipeline steps applied in order over decoded images, plus format-aware
// decode/encode helpers.
package imaging

import (
	"fmt"
	"image"
)

// Pipeline is an ordered list of transformation steps.
type Pipeline struct {
	steps []Step
}

func NewPipeline(steps []Step) (*Pipeline, error) {
	if err := ValidateSteps(steps); err != nil {
		return nil, err
	}

	return &Pipeline{steps: steps}, nil
}

func (p *Pipeline) Steps() []Step {
	return p.steps
}

// Run applies every step in order and returns the final image.
func (p *Pipeline) Run(img image.Image) (image.Image, error) {
	out := img
	for i, step := range p.steps {
		var err error
		out, err = step.apply(out)
		if err != nil {
			return nil, fmt.Errorf("error applying step %d (%s): %w", i, step.Kind, err)
		}
	}

	return out, nil
}
