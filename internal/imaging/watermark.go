package imaging

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

type anchor int

const (
	anchorCenter anchor = iota
	anchorTopLeft
	anchorTopRight
	anchorBottomLeft
	anchorBottomRight
)

func parseAnchor(s string) (anchor, error) {
	switch s {
	case "", "center":
		return anchorCenter, nil
	case "top-left":
		return anchorTopLeft, nil
	case "top-right":
		return anchorTopRight, nil
	case "bottom-left":
		return anchorBottomLeft, nil
	case "bottom-right":
		return anchorBottomRight, nil
	}
	return 0, fmt.Errorf("unknown anchor %q", s)
}

// watermarkMargin keeps corner watermarks off the image edge. Scaled up for
// large images so the offset stays visually proportional.
func watermarkMargin(bounds image.Rectangle) int {
	margin := bounds.Dx() / 50
	if m := bounds.Dy() / 50; m < margin {
		margin = m
	}
	if margin < 8 {
		margin = 8
	}
	return margin
}

func renderText(text string, c color.Color) *image.NRGBA {
	face := basicfont.Face7x13

	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()
	ascent := face.Metrics().Ascent.Ceil()

	label := image.NewNRGBA(image.Rect(0, 0, width, height))
	drawer := &font.Drawer{
		Dst:  label,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(0, ascent),
	}
	drawer.DrawString(text)

	return label
}

func applyWatermark(img image.Image, step Step) (image.Image, error) {
	pos, err := parseAnchor(step.Anchor)
	if err != nil {
		return nil, err
	}

	// Zero opacity means the step left it unset; render fully opaque.
	opacity := step.Opacity
	if opacity == 0 {
		opacity = 1
	}

	label := renderText(step.Text, color.White)

	bounds := img.Bounds()
	margin := watermarkMargin(bounds)

	var pt image.Point
	switch pos {
	case anchorCenter:
		pt = image.Pt(
			bounds.Min.X+(bounds.Dx()-label.Bounds().Dx())/2,
			bounds.Min.Y+(bounds.Dy()-label.Bounds().Dy())/2,
		)
	case anchorTopLeft:
		pt = image.Pt(bounds.Min.X+margin, bounds.Min.Y+margin)
	case anchorTopRight:
		pt = image.Pt(bounds.Max.X-label.Bounds().Dx()-margin, bounds.Min.Y+margin)
	case anchorBottomLeft:
		pt = image.Pt(bounds.Min.X+margin, bounds.Max.Y-label.Bounds().Dy()-margin)
	case anchorBottomRight:
		pt = image.Pt(bounds.Max.X-label.Bounds().Dx()-margin, bounds.Max.Y-label.Bounds().Dy()-margin)
	}

	return imaging.Overlay(img, label, pt, opacity), nil
}
