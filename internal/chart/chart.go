package chart

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"strconv"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/lox/aqiforecast/internal/forecast"
	"github.com/lox/aqiforecast/internal/models"
)

var (
	fontLabel font.Face
	fontTitle font.Face
	fontOnce  sync.Once
	fontErr   error

	// opentype faces cache glyphs and are not safe for concurrent use.
	renderMu sync.Mutex
)

func loadFonts() {
	fontOnce.Do(func() {
		regular, err := opentype.Parse(goregular.TTF)
		if err != nil {
			fontErr = fmt.Errorf("parse goregular: %w", err)
			return
		}
		fontLabel, err = opentype.NewFace(regular, &opentype.FaceOptions{
			Size:    13,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			fontErr = fmt.Errorf("create label face: %w", err)
			return
		}

		bold, err := opentype.Parse(gobold.TTF)
		if err != nil {
			fontErr = fmt.Errorf("parse gobold: %w", err)
			return
		}
		fontTitle, err = opentype.NewFace(bold, &opentype.FaceOptions{
			Size:    20,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			fontErr = fmt.Errorf("create title face: %w", err)
			return
		}
	})
}

const (
	DefaultWidth  = 1000
	DefaultHeight = 500

	marginLeft   = 60
	marginRight  = 24
	marginTop    = 48
	marginBottom = 40
)

var (
	colBackground = color.RGBA{15, 15, 26, 255}
	colGrid       = color.RGBA{42, 42, 78, 255}
	colText       = color.RGBA{238, 238, 238, 255}
	colMuted      = color.RGBA{136, 136, 160, 255}
	colHistory    = color.RGBA{79, 195, 247, 255}
	colForecast   = color.RGBA{255, 112, 67, 255}
	colBand       = color.NRGBA{255, 112, 67, 64}
)

// Data is everything drawn on one chart.
type Data struct {
	City     string
	History  []models.Point
	Forecast models.ForecastResult
	Width    int
	Height   int
}

// Render draws the history line, the forecast line and its uncertainty band
// on a shared date axis and returns the PNG bytes.
func Render(data Data) ([]byte, error) {
	loadFonts()
	if fontErr != nil {
		return nil, fmt.Errorf("load fonts: %w", fontErr)
	}
	if len(data.History) == 0 && len(data.Forecast.Points) == 0 {
		return nil, fmt.Errorf("nothing to draw for %s", data.City)
	}
	renderMu.Lock()
	defer renderMu.Unlock()

	if data.Width <= 0 {
		data.Width = DefaultWidth
	}
	if data.Height <= 0 {
		data.Height = DefaultHeight
	}

	img := image.NewRGBA(image.Rect(0, 0, data.Width, data.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(colBackground), image.Point{}, draw.Src)

	p := newPlot(data)
	p.drawGrid(img)
	p.drawBand(img, data.Forecast.Points)

	hist := make([]point, len(data.History))
	for i, h := range data.History {
		hist[i] = p.at(h.Date, h.AQI)
	}
	fc := make([]point, 0, len(data.Forecast.Points)+1)
	if len(data.History) > 0 {
		// Join the forecast to the last observation.
		fc = append(fc, hist[len(hist)-1])
	}
	for _, f := range data.Forecast.Points {
		fc = append(fc, p.at(f.Date, f.Predicted))
	}
	p.polyline(img, hist, 1.5, colHistory)
	p.polyline(img, fc, 2, colForecast)

	title := fmt.Sprintf("%s AQI: history and %d day forecast", data.City, data.Forecast.Horizon)
	drawText(img, title, marginLeft, 30, colText, fontTitle)
	p.drawLegend(img)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}
	return buf.Bytes(), nil
}

type point struct{ x, y float32 }

type plot struct {
	w, h       int
	start, end time.Time
	split      time.Time // last observed date
	ymax       float64
}

func newPlot(data Data) *plot {
	p := &plot{w: data.Width, h: data.Height}
	if len(data.History) > 0 {
		p.start = data.History[0].Date
		p.split = data.History[len(data.History)-1].Date
	}
	if n := len(data.Forecast.Points); n > 0 {
		if p.start.IsZero() {
			p.start = data.Forecast.Points[0].Date
		}
		p.end = data.Forecast.Points[n-1].Date
	} else {
		p.end = p.split
	}
	if !p.end.After(p.start) {
		p.end = p.start.AddDate(0, 0, 1)
	}

	for _, h := range data.History {
		p.ymax = math.Max(p.ymax, h.AQI)
	}
	for _, f := range data.Forecast.Points {
		p.ymax = math.Max(p.ymax, f.Upper)
	}
	p.ymax = niceCeil(p.ymax * 1.05)
	return p
}

func (p *plot) at(d time.Time, v float64) point {
	fx := float64(d.Sub(p.start)) / float64(p.end.Sub(p.start))
	fy := math.Max(0, v) / p.ymax
	pw := float64(p.w - marginLeft - marginRight)
	ph := float64(p.h - marginTop - marginBottom)
	return point{
		x: float32(marginLeft + fx*pw),
		y: float32(float64(p.h-marginBottom) - fy*ph),
	}
}

func (p *plot) drawGrid(img *image.RGBA) {
	// Horizontal lines at the AQI category boundaries that fall inside the plot.
	for _, c := range forecast.Categories[:len(forecast.Categories)-1] {
		if c.Max >= p.ymax {
			break
		}
		y := p.at(p.start, c.Max).y
		p.polyline(img, []point{{marginLeft, y}, {float32(p.w - marginRight), y}}, 1, colGrid)
		drawText(img, strconv.Itoa(int(c.Max)), 12, int(y)+4, colMuted, fontLabel)
	}
	base := float32(p.h - marginBottom)
	p.polyline(img, []point{{marginLeft, base}, {float32(p.w - marginRight), base}}, 1, colMuted)
	drawText(img, "0", 12, int(base)+4, colMuted, fontLabel)

	labels := []time.Time{p.start, p.end}
	if !p.split.IsZero() && p.split.After(p.start) && p.split.Before(p.end) {
		x := p.at(p.split, 0).x
		p.polyline(img, []point{{x, marginTop}, {x, base}}, 1, colGrid)
		labels = append(labels, p.split)
	}
	for _, d := range labels {
		s := d.Format(models.DateLayout)
		x := int(p.at(d, 0).x) - font.MeasureString(fontLabel, s).Ceil()/2
		x = max(2, min(x, p.w-font.MeasureString(fontLabel, s).Ceil()-2))
		drawText(img, s, x, p.h-marginBottom+22, colMuted, fontLabel)
	}
}

func (p *plot) drawBand(img *image.RGBA, pts []models.ForecastPoint) {
	if len(pts) == 0 {
		return
	}
	z := vector.NewRasterizer(p.w, p.h)
	z.DrawOp = draw.Over
	first := p.at(pts[0].Date, pts[0].Upper)
	z.MoveTo(first.x, first.y)
	for _, f := range pts[1:] {
		q := p.at(f.Date, f.Upper)
		z.LineTo(q.x, q.y)
	}
	for i := len(pts) - 1; i >= 0; i-- {
		q := p.at(pts[i].Date, pts[i].Lower)
		z.LineTo(q.x, q.y)
	}
	z.ClosePath()
	z.Draw(img, img.Bounds(), image.NewUniform(colBand), image.Point{})
}

// polyline strokes consecutive points as quads of the given width.
func (p *plot) polyline(img *image.RGBA, pts []point, width float32, col color.Color) {
	if len(pts) < 2 {
		return
	}
	z := vector.NewRasterizer(p.w, p.h)
	z.DrawOp = draw.Over
	half := width / 2
	for i := 1; i < len(pts); i++ {
		a, b := pts[i-1], pts[i]
		dx, dy := b.x-a.x, b.y-a.y
		l := float32(math.Hypot(float64(dx), float64(dy)))
		if l == 0 {
			continue
		}
		nx, ny := -dy/l*half, dx/l*half
		z.MoveTo(a.x+nx, a.y+ny)
		z.LineTo(b.x+nx, b.y+ny)
		z.LineTo(b.x-nx, b.y-ny)
		z.LineTo(a.x-nx, a.y-ny)
		z.ClosePath()
	}
	z.Draw(img, img.Bounds(), image.NewUniform(col), image.Point{})
}

func (p *plot) drawLegend(img *image.RGBA) {
	x := p.w - marginRight - 260
	items := []struct {
		label string
		col   color.Color
	}{
		{"Historical AQI", colHistory},
		{"Forecast (80% interval)", colForecast},
	}
	for _, it := range items {
		y := float32(24)
		p.polyline(img, []point{{float32(x), y}, {float32(x + 18), y}}, 3, it.col)
		drawText(img, it.label, x+24, int(y)+4, colText, fontLabel)
		x += 24 + font.MeasureString(fontLabel, it.label).Ceil() + 16
	}
}

func drawText(img *image.RGBA, text string, x, y int, col color.Color, face font.Face) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// niceCeil rounds v up to the next multiple of 50, with a floor of 100.
func niceCeil(v float64) float64 {
	if v < 100 {
		return 100
	}
	return math.Ceil(v/50) * 50
}
