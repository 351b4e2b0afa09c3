package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/vector"
)

const (
	fontSize = 10.0

	// Default border sizes in pixels
	defaultTopBorder    = 30
	defaultLeftBorder   = 40
	defaultBottomBorder = 40
	defaultRightBorder  = 20

	defaultDatetimeFormat = time.DateTime

	hueStart = 236.0
	hueEnd   = 0.0
)

var (
	gridLineColor = color.RGBA{R: 0xdd, G: 0xdd, B: 0xdd, A: 0xff}
	obstacleColor = colorful.Color{R: 0.84, G: 0.15, B: 0.16}
	obstacleFill  = obstacleColor.BlendLab(colorful.Color{R: 1, G: 1, B: 1}, 0.55).Clamped()
	pendingColor  = color.RGBA{R: 0x99, G: 0x99, B: 0x99, A: 0xff}
)

// BorderConfig defines the sizes of white space around the grid
type BorderConfig struct {
	Top    int // Space for the column scale
	Left   int // Space for the row scale
	Bottom int // Space for the information bar
	Right  int // Right padding
}

// RenderConfig holds the options of the map renderer
type RenderConfig struct {
	CellPixels     int
	FontSize       float64
	DatetimeFormat string
	Location       *time.Location
	NoAnnotations  bool
	BorderConfig   BorderConfig
}

// MapRenderer draws a flight map onto an image.
type MapRenderer struct {
	config RenderConfig
}

func NewMapRenderer(config RenderConfig) (*MapRenderer, error) {
	if config.CellPixels <= 0 {
		config.CellPixels = defaultCellPixels
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	return &MapRenderer{config: config}, nil
}

// Render draws the grid, the obstacle cells, the flown path and the waypoint
// markers, in that order.
func (r *MapRenderer) Render(m *FlightMap) (*image.RGBA, error) {
	cell := r.config.CellPixels
	b := r.config.BorderConfig

	width := m.Columns()*cell + b.Left + b.Right
	height := m.Rows()*cell + b.Top + b.Bottom
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	area := image.Rect(b.Left, b.Top, b.Left+m.Columns()*cell, b.Top+m.Rows()*cell)
	r.drawGrid(img, area)

	if !r.config.NoAnnotations {
		ann, err := newAnnotator(annotatorConfig{
			DatetimeFormat: r.config.DatetimeFormat,
			Location:       r.config.Location,
			FontSize:       r.config.FontSize,
			CellPixels:     cell,
			Borders:        b,
		})
		if err != nil {
			return nil, fmt.Errorf("creating annotator: %w", err)
		}
		defer ann.Close()

		if err = ann.annotate(img, m); err != nil {
			return nil, fmt.Errorf("drawing annotations: %w", err)
		}
	}

	for _, o := range m.Obstacles {
		x, y := r.cellOrigin(m, float64(o.Record.GridX), float64(o.Record.GridY))
		draw.Draw(img, image.Rect(x+1, y+1, x+cell, y+cell), image.NewUniform(obstacleFill), image.Point{}, draw.Src)
	}

	r.drawPath(img, m)

	return img, nil
}

func (r *MapRenderer) drawGrid(img *image.RGBA, area image.Rectangle) {
	cell := r.config.CellPixels

	for x := area.Min.X; x <= area.Max.X; x += cell {
		for y := area.Min.Y; y <= area.Max.Y; y++ {
			img.Set(x, y, gridLineColor)
		}
	}
	for y := area.Min.Y; y <= area.Max.Y; y += cell {
		for x := area.Min.X; x <= area.Max.X; x++ {
			img.Set(x, y, gridLineColor)
		}
	}
}

// drawPath strokes the path between consecutive waypoints, colored from blue
// at the start to red at the end, then marks every waypoint. Sampled
// waypoints are filled, the rest are drawn in gray.
func (r *MapRenderer) drawPath(img *image.RGBA, m *FlightMap) {
	if len(m.Waypoints) == 0 {
		return
	}

	cell := float32(r.config.CellPixels)
	sampled := make(map[int]bool, len(m.Verdicts))
	for _, v := range m.Verdicts {
		sampled[v.Waypoint] = true
	}

	points := make([][2]float32, len(m.Waypoints))
	for i, w := range m.Waypoints {
		points[i] = r.cellCenter(m, w.Grid.X, w.Grid.Y)
	}

	for i := 1; i < len(points); i++ {
		c := pathColor(i-1, len(points))
		strokeSegment(img, points[i-1], points[i], cell/8, c)
	}

	for i, p := range points {
		var c color.Color = pendingColor
		if sampled[i] {
			c = pathColor(i, len(points))
		}
		fillCircle(img, p, cell/5, c)
	}
}

func (r *MapRenderer) cellOrigin(m *FlightMap, gx, gy float64) (int, int) {
	cell := r.config.CellPixels
	x := r.config.BorderConfig.Left + (int(math.Round(gx))-m.MinX)*cell
	y := r.config.BorderConfig.Top + (int(math.Round(gy))-m.MinY)*cell
	return x, y
}

func (r *MapRenderer) cellCenter(m *FlightMap, gx, gy float64) [2]float32 {
	cell := float64(r.config.CellPixels)
	x := float64(r.config.BorderConfig.Left) + (gx-float64(m.MinX)+0.5)*cell
	y := float64(r.config.BorderConfig.Top) + (gy-float64(m.MinY)+0.5)*cell
	return [2]float32{float32(x), float32(y)}
}

// pathColor maps the position of waypoint i along a path of n waypoints onto
// the blue to red hue range.
func pathColor(i, n int) color.Color {
	t := 0.0
	if n > 1 {
		t = float64(i) / float64(n-1)
	}
	hue := hueStart - t*(hueStart-hueEnd)
	return colorful.Hsv(hue, 1, 0.85)
}

func strokeSegment(img *image.RGBA, a, b [2]float32, width float32, c color.Color) {
	dx, dy := b[0]-a[0], b[1]-a[1]
	length := float32(math.Hypot(float64(dx), float64(dy)))
	if length == 0 {
		return
	}
	nx, ny := -dy/length*width/2, dx/length*width/2

	z := newRasterizer(img)
	z.MoveTo(a[0]+nx, a[1]+ny)
	z.LineTo(b[0]+nx, b[1]+ny)
	z.LineTo(b[0]-nx, b[1]-ny)
	z.LineTo(a[0]-nx, a[1]-ny)
	z.ClosePath()
	z.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{})
}

func fillCircle(img *image.RGBA, center [2]float32, radius float32, c color.Color) {
	const sides = 24

	z := newRasterizer(img)
	for i := 0; i < sides; i++ {
		sin, cos := math.Sincos(2 * math.Pi * float64(i) / sides)
		x, y := center[0]+radius*float32(cos), center[1]+radius*float32(sin)
		if i == 0 {
			z.MoveTo(x, y)
		} else {
			z.LineTo(x, y)
		}
	}
	z.ClosePath()
	z.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{})
}

func newRasterizer(img *image.RGBA) *vector.Rasterizer {
	size := img.Bounds().Size()
	z := vector.NewRasterizer(size.X, size.Y)
	z.DrawOp = draw.Over
	return z
}
