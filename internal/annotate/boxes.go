// File: internal/annotate/boxes.go
package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	// padding is the white border added around the screenshot so boxes near
	// the edges remain fully visible.
	padding = 25

	dashLength = 10
	gapLength  = 5

	// labelScale is the supersampling factor for label patches; rendering
	// large and downsampling gives anti-aliased text.
	labelScale = 4

	// labelAlpha is the premultiplied alpha of the label patch (50%).
	labelAlpha = 128

	jpegQuality = 90
)

var (
	boxColor  = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	padColor  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	patchRed  = color.RGBA{R: labelAlpha, G: 0, B: 0, A: labelAlpha}
	patchText = color.RGBA{R: labelAlpha, G: labelAlpha, B: labelAlpha, A: labelAlpha}
)

// AnnotateImage draws labeled dashed bounding boxes onto a screenshot and
// returns the annotated image as JPEG bytes. The source image is padded with
// a uniform white border and every box is offset by the padding amount. The
// output is deterministic for identical inputs.
func AnnotateImage(imageBytes []byte, boxes []BoundingBox) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}

	bounds := src.Bounds()
	padded := image.NewRGBA(image.Rect(0, 0, bounds.Dx()+2*padding, bounds.Dy()+2*padding))
	draw.Draw(padded, padded.Bounds(), image.NewUniform(padColor), image.Point{}, draw.Src)
	draw.Draw(padded, image.Rect(padding, padding, padding+bounds.Dx(), padding+bounds.Dy()), src, bounds.Min, draw.Src)

	for _, box := range boxes {
		drawDashedRectangle(padded, box)
		blendLabelPatch(padded, box)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, padded, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode annotated screenshot: %w", err)
	}
	return buf.Bytes(), nil
}

// drawDashedRectangle draws the four sides of box as dashed lines, offset by
// the canvas padding.
func drawDashedRectangle(img *image.RGBA, box BoundingBox) {
	left := box.Left + padding
	top := box.Top + padding
	right := box.Right + padding
	bottom := box.Bottom + padding

	drawDashedHLine(img, left, right, top)
	drawDashedHLine(img, left, right, bottom)
	drawDashedVLine(img, top, bottom, left)
	drawDashedVLine(img, top, bottom, right)
}

func drawDashedHLine(img *image.RGBA, x1, x2, y int) {
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	for x := x1; x <= x2; x += dashLength + gapLength {
		end := x + dashLength
		if end > x2 {
			end = x2
		}
		for px := x; px <= end; px++ {
			setClamped(img, px, y)
		}
	}
}

func drawDashedVLine(img *image.RGBA, y1, y2, x int) {
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	for y := y1; y <= y2; y += dashLength + gapLength {
		end := y + dashLength
		if end > y2 {
			end = y2
		}
		for py := y; py <= end; py++ {
			setClamped(img, x, py)
		}
	}
}

func setClamped(img *image.RGBA, x, y int) {
	if (image.Point{X: x, Y: y}).In(img.Bounds()) {
		img.SetRGBA(x, y, boxColor)
	}
}

// blendLabelPatch renders the box label as a semi-transparent patch anchored
// just above the box's top-left corner and alpha-blends it onto the canvas.
func blendLabelPatch(img *image.RGBA, box BoundingBox) {
	patch := renderLabelPatch(box.Label)
	if patch == nil {
		return
	}

	const offset = 2
	x := clamp(box.Left+padding-offset, 0, img.Bounds().Dx())
	y := clamp(box.Top+padding-patch.Bounds().Dy()-offset, 0, img.Bounds().Dy())

	dst := image.Rect(x, y, x+patch.Bounds().Dx(), y+patch.Bounds().Dy()).
		Intersect(img.Bounds())
	draw.Draw(img, dst, patch, image.Point{}, draw.Over)
}

// renderLabelPatch draws the label at labelScale resolution on a red
// background, then downsamples for anti-aliasing. Both the background and
// the white text are 50% opaque.
func renderLabelPatch(label string) *image.RGBA {
	if label == "" {
		return nil
	}

	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, label).Ceil()
	textHeight := face.Height
	if textWidth == 0 {
		return nil
	}

	// Crisp 1x text render on a transparent background.
	text := image.NewRGBA(image.Rect(0, 0, textWidth, textHeight))
	drawer := &font.Drawer{
		Dst:  text,
		Src:  image.NewUniform(patchText),
		Face: face,
		Dot:  fixed.Point26_6{X: 0, Y: fixed.I(face.Ascent)},
	}
	drawer.DrawString(label)

	large := image.NewRGBA(image.Rect(0, 0, labelScale*textWidth+20, labelScale*textHeight+20))
	draw.Draw(large, large.Bounds(), image.NewUniform(patchRed), image.Point{}, draw.Src)
	xdraw.NearestNeighbor.Scale(
		large,
		image.Rect(8, 8, 8+labelScale*textWidth, 8+labelScale*textHeight),
		text, text.Bounds(), xdraw.Over, nil,
	)

	final := image.NewRGBA(image.Rect(0, 0, textWidth+5, textHeight+5))
	xdraw.CatmullRom.Scale(final, final.Bounds(), large, large.Bounds(), xdraw.Src, nil)
	return final
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
