package app

import (
	"fmt"
	"image"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
)

const (
	dpi = 96.0

	minLabelSpacing = 28 // Pixels between two scale labels
)

type annotatorConfig struct {
	DatetimeFormat string
	Location       *time.Location
	FontSize       float64
	CellPixels     int
	Borders        BorderConfig
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, m *FlightMap) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawColumnScale(m); err != nil {
		return fmt.Errorf("drawing column scale: %w", err)
	}
	if err := a.drawRowScale(m); err != nil {
		return fmt.Errorf("drawing row scale: %w", err)
	}
	if err := a.drawInfoBar(img, m); err != nil {
		return fmt.Errorf("drawing info bar: %w", err)
	}

	return nil
}

// labelStep returns how many cells apart scale labels are drawn.
func (a *annotator) labelStep() int {
	step := 1
	for step*a.config.CellPixels < minLabelSpacing {
		step++
	}
	return step
}

func (a *annotator) drawColumnScale(m *FlightMap) error {
	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()
	textY := a.config.Borders.Top - fontHeight/2

	cell := a.config.CellPixels
	for x := m.MinX; x <= m.MaxX; x += a.labelStep() {
		label := strconv.Itoa(x)
		width := font.MeasureString(a.fontFace, label).Round()
		center := a.config.Borders.Left + (x-m.MinX)*cell + cell/2

		if _, err := a.context.DrawString(label, freetype.Pt(center-width/2, textY)); err != nil {
			return fmt.Errorf("drawing column label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawRowScale(m *FlightMap) error {
	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	cell := a.config.CellPixels
	for y := m.MinY; y <= m.MaxY; y += a.labelStep() {
		label := strconv.Itoa(y)
		width := font.MeasureString(a.fontFace, label).Round()
		center := a.config.Borders.Top + (y-m.MinY)*cell + cell/2
		textY := center + fontHeight/2 - metrics.Descent.Round()

		if _, err := a.context.DrawString(label, freetype.Pt(a.config.Borders.Left-width-5, textY)); err != nil {
			return fmt.Errorf("drawing row label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, m *FlightMap) error {
	var sb strings.Builder

	if m.Run != nil {
		sb.WriteString(fmt.Sprintf("Run %s", shortID(m.Run.ID)))
		sb.WriteString("; ")
		sb.WriteString(m.Run.StartTime.In(a.config.Location).Format(a.config.DatetimeFormat))
		if m.Run.FinalState != nil {
			sb.WriteString(fmt.Sprintf("; %s", *m.Run.FinalState))
		}
		if m.Run.EndTime != nil {
			sb.WriteString(fmt.Sprintf(" after %s", m.Run.EndTime.Sub(m.Run.StartTime).Round(time.Second)))
		}
		sb.WriteString("; ")
	}

	sb.WriteString(fmt.Sprintf("Waypoints: %s sampled of %s",
		humanize.Comma(int64(len(m.Verdicts))), humanize.Comma(int64(len(m.Waypoints)))))
	sb.WriteString(fmt.Sprintf("; Obstacles: %s", humanize.Comma(int64(len(m.Obstacles)))))

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	// Center text vertically in bottom border
	textY := img.Bounds().Max.Y - (a.config.Borders.Bottom-fontHeight)/2 - metrics.Descent.Round()

	pt := freetype.Pt(a.config.Borders.Left, textY)
	if _, err := a.context.DrawString(sb.String(), pt); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}

	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
