package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func TestStepValidate(t *testing.T) {
	valid := []Step{
		{Kind: StepResize, Width: 100, Height: 50},
		{Kind: StepFit, Width: 1920, Height: 1080},
		{Kind: StepFill, Width: 256, Height: 256},
		{Kind: StepRotate, Angle: 90},
		{Kind: StepRotate, Angle: -12.5},
		{Kind: StepFlip, Direction: FlipHorizontal},
		{Kind: StepFlip, Direction: FlipVertical},
		{Kind: StepBrightness, Amount: -100},
		{Kind: StepContrast, Amount: 100},
		{Kind: StepSaturation, Amount: 0},
		{Kind: StepGamma, Gamma: 0.8},
		{Kind: StepSharpen, Sigma: 0.5},
		{Kind: StepBlur, Sigma: 3},
		{Kind: StepGrayscale},
		{Kind: StepWatermark, Text: "hi", Opacity: 0.5},
		{Kind: StepWatermark, Text: "hi", Opacity: 0}, // unset opacity renders opaque
		{Kind: StepWatermark, Text: "hi", Opacity: 1},
		{Kind: StepWatermark, Text: "hi", Anchor: "bottom-right"},
	}
	for _, step := range valid {
		assert.NoError(t, step.Validate(), "step %+v", step)
	}

	invalid := []Step{
		{Kind: "unknown"},
		{Kind: StepResize, Width: 0, Height: 50},
		{Kind: StepFit, Width: 100, Height: -1},
		{Kind: StepRotate, Angle: 0},
		{Kind: StepFlip, Direction: "diagonal"},
		{Kind: StepBrightness, Amount: 101},
		{Kind: StepSaturation, Amount: -150},
		{Kind: StepGamma, Gamma: 0},
		{Kind: StepSharpen, Sigma: -1},
		{Kind: StepWatermark, Text: ""},
		{Kind: StepWatermark, Text: "hi", Opacity: 1.5},
		{Kind: StepWatermark, Text: "hi", Opacity: -0.1},
		{Kind: StepWatermark, Text: "hi", Anchor: "middle-ish"},
	}
	for _, step := range invalid {
		assert.Error(t, step.Validate(), "step %+v", step)
	}
}

func TestParseSteps(t *testing.T) {
	steps, err := ParseSteps([]byte(`[{"kind":"fit","width":100,"height":80},{"kind":"grayscale"}]`))
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, StepFit, steps[0].Kind)
	assert.Equal(t, 100, steps[0].Width)

	_, err = ParseSteps([]byte(`[]`))
	assert.Error(t, err)

	_, err = ParseSteps([]byte(`[{"kind":"resize","width":-5,"height":10}]`))
	assert.Error(t, err)

	_, err = ParseSteps([]byte(`not json`))
	assert.Error(t, err)
}

func TestPipelineResize(t *testing.T) {
	pipeline, err := NewPipeline([]Step{{Kind: StepResize, Width: 10, Height: 20}})
	require.NoError(t, err)

	out, err := pipeline.Run(testImage(100, 100))
	require.NoError(t, err)
	assert.Equal(t, 10, out.Bounds().Dx())
	assert.Equal(t, 20, out.Bounds().Dy())
}

func TestPipelineFitPreservesAspectRatio(t *testing.T) {
	pipeline, err := NewPipeline([]Step{{Kind: StepFit, Width: 50, Height: 50}})
	require.NoError(t, err)

	out, err := pipeline.Run(testImage(200, 100))
	require.NoError(t, err)
	assert.Equal(t, 50, out.Bounds().Dx())
	assert.Equal(t, 25, out.Bounds().Dy())
}

func TestPipelineFillCrops(t *testing.T) {
	pipeline, err := NewPipeline([]Step{{Kind: StepFill, Width: 30, Height: 30}})
	require.NoError(t, err)

	out, err := pipeline.Run(testImage(200, 100))
	require.NoError(t, err)
	assert.Equal(t, 30, out.Bounds().Dx())
	assert.Equal(t, 30, out.Bounds().Dy())
}

func TestPipelineRotateSwapsDimensions(t *testing.T) {
	pipeline, err := NewPipeline([]Step{{Kind: StepRotate, Angle: 90}})
	require.NoError(t, err)

	out, err := pipeline.Run(testImage(60, 40))
	require.NoError(t, err)
	assert.Equal(t, 40, out.Bounds().Dx())
	assert.Equal(t, 60, out.Bounds().Dy())
}

func TestPipelineGrayscale(t *testing.T) {
	pipeline, err := NewPipeline([]Step{{Kind: StepGrayscale}})
	require.NoError(t, err)

	out, err := pipeline.Run(testImage(8, 8))
	require.NoError(t, err)

	r, g, b, _ := out.At(4, 4).RGBA()
	assert.Equal(t, r, g)
	assert.Equal(t, g, b)
}

func TestPipelineAppliesStepsInOrder(t *testing.T) {
	pipeline, err := NewPipeline([]Step{
		{Kind: StepResize, Width: 100, Height: 100},
		{Kind: StepFill, Width: 40, Height: 20},
		{Kind: StepFlip, Direction: FlipHorizontal},
	})
	require.NoError(t, err)

	out, err := pipeline.Run(testImage(300, 300))
	require.NoError(t, err)
	assert.Equal(t, 40, out.Bounds().Dx())
	assert.Equal(t, 20, out.Bounds().Dy())
}

func TestNewPipelineRejectsInvalidSteps(t *testing.T) {
	_, err := NewPipeline(nil)
	assert.Error(t, err)

	_, err = NewPipeline([]Step{{Kind: StepBlur, Sigma: -1}})
	assert.Error(t, err)
}
