package pipeline

import (
	"context"
	"image"
	"math"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/cases"

	apperrors "github.com/leeforge/mediaedit/errors"
)

// strokeRadius draws the outline one pixel either side of the glyph edge,
// giving a 2px wide black stroke.
const strokeRadius = 1

// Typeface is one of the embedded Go fonts.
type Typeface string

const (
	FaceSans  Typeface = "sans"
	FaceMono  Typeface = "mono"
	FaceSerif Typeface = "serif"
)

var familyFaces = map[string]Typeface{
	"arial":           FaceSans,
	"helvetica":       FaceSans,
	"verdana":         FaceSans,
	"sans-serif":      FaceSans,
	"courier new":     FaceMono,
	"courier":         FaceMono,
	"monospace":       FaceMono,
	"times new roman": FaceSerif,
	"times":           FaceSerif,
	"georgia":         FaceSerif,
	"serif":           FaceSerif,
}

var typefaceTTF = map[Typeface][]byte{
	FaceSans:  goregular.TTF,
	FaceMono:  gomono.TTF,
	FaceSerif: gomedium.TTF,
}

// Parsed fonts are shared; faces are not safe for concurrent use and are
// built per render.
var parsedFonts sync.Map // map[Typeface]*opentype.Font

// ResolveFamily maps a CSS-like family list to one of the embedded faces.
// Only the first family is considered; unknown names fall back to sans.
func ResolveFamily(family string) Typeface {
	name := family
	if i := strings.IndexByte(name, ','); i >= 0 {
		name = name[:i]
	}
	name = strings.Trim(strings.TrimSpace(name), `"'`)
	name = cases.Fold().String(name)

	if tf, ok := familyFaces[name]; ok {
		return tf
	}
	return FaceSans
}

func faceFor(tf Typeface, size float64) (font.Face, error) {
	f, err := parsedFont(tf)
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingNone})
	if err != nil {
		return nil, apperrors.WrapWithType(err, apperrors.ErrorTypeInternal, "failed to build font face")
	}
	return face, nil
}

func parsedFont(tf Typeface) (*opentype.Font, error) {
	if f, ok := parsedFonts.Load(tf); ok {
		return f.(*opentype.Font), nil
	}
	f, err := opentype.Parse(typefaceTTF[tf])
	if err != nil {
		return nil, apperrors.WrapWithType(err, apperrors.ErrorTypeInternal, "failed to parse embedded font")
	}
	actual, _ := parsedFonts.LoadOrStore(tf, f)
	return actual.(*opentype.Font), nil
}

type textStage struct {
	overlay TextOverlay
	face    font.Face
	fill    image.Image
}

func newTextStage(o TextOverlay) (textStage, error) {
	col, err := ParseColor(o.Color)
	if err != nil {
		return textStage{}, err
	}
	face, err := faceFor(ResolveFamily(o.FontFamily), o.FontSize)
	if err != nil {
		return textStage{}, err
	}
	return textStage{overlay: o, face: face, fill: image.NewUniform(col)}, nil
}

func (textStage) Name() string { return "text" }

// Apply strokes the text in black and then fills it, with the baseline start
// at Position scaled to the current canvas.
func (s textStage) Apply(_ context.Context, canvas *image.NRGBA) (*image.NRGBA, error) {
	b := canvas.Bounds()
	x := int(math.Floor(s.overlay.Position.X / 100 * float64(b.Dx())))
	y := int(math.Floor(s.overlay.Position.Y / 100 * float64(b.Dy())))

	d := &font.Drawer{Dst: canvas, Src: image.Black, Face: s.face}
	for dy := -strokeRadius; dy <= strokeRadius; dy++ {
		for dx := -strokeRadius; dx <= strokeRadius; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			d.Dot = fixed.P(x+dx, y+dy)
			d.DrawString(s.overlay.Content)
		}
	}

	d.Src = s.fill
	d.Dot = fixed.P(x, y)
	d.DrawString(s.overlay.Content)
	return canvas, nil
}
