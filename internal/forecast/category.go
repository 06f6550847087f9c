package forecast

import "math"

// Palette defines the dashboard colour scheme for an AQI category.
type Palette struct {
	// Background is the main page background color
	Background string
	// Card is the background for cards/panels
	Card string
	// CardBorder is an optional border/highlight for cards
	CardBorder string
	Text       string
	TextMuted  string
	// Accent is used for the forecast line and badges
	Accent string
}

// Category is one band of the Indian National Air Quality Index.
type Category struct {
	Name string
	// Min and Max are inclusive whole-number AQI bounds. Max is +Inf for the top band.
	Min     float64
	Max     float64
	Color   string
	Advice  string
	Palette Palette
}

// DefaultPalette is used before any forecast has been generated.
var DefaultPalette = Palette{
	Background: "#0f0f1a",
	Card:       "#1a1a2e",
	CardBorder: "#2a2a4e",
	Text:       "#eeeeee",
	TextMuted:  "#8888a0",
	Accent:     "#4fc3f7",
}

// Categories lists the AQI bands in ascending order.
var Categories = []Category{
	{
		Name:   "Good",
		Min:    0,
		Max:    50,
		Color:  "#55a84f",
		Advice: "Minimal impact.",
		Palette: Palette{
			Background: "#0e1a12",
			Card:       "#16261b",
			CardBorder: "#254030",
			Text:       "#e8f4ec",
			TextMuted:  "#7fa08a",
			Accent:     "#55a84f",
		},
	},
	{
		Name:   "Satisfactory",
		Min:    51,
		Max:    100,
		Color:  "#a3c853",
		Advice: "Minor breathing discomfort for sensitive people.",
		Palette: Palette{
			Background: "#131a0e",
			Card:       "#1d2616",
			CardBorder: "#324024",
			Text:       "#eef4e6",
			TextMuted:  "#90a07a",
			Accent:     "#a3c853",
		},
	},
	{
		Name:   "Moderate",
		Min:    101,
		Max:    200,
		Color:  "#fff833",
		Advice: "Breathing discomfort for people with lung or heart disease, children and older adults.",
		Palette: Palette{
			Background: "#1a190e",
			Card:       "#262416",
			CardBorder: "#403c24",
			Text:       "#f8f6e4",
			TextMuted:  "#a8a278",
			Accent:     "#f2e92e",
		},
	},
	{
		Name:   "Poor",
		Min:    201,
		Max:    300,
		Color:  "#f29c33",
		Advice: "Breathing discomfort for most people on prolonged exposure.",
		Palette: Palette{
			Background: "#1c140c",
			Card:       "#2a1e14",
			CardBorder: "#453020",
			Text:       "#fbefe2",
			TextMuted:  "#b08c6c",
			Accent:     "#f29c33",
		},
	},
	{
		Name:   "Very Poor",
		Min:    301,
		Max:    400,
		Color:  "#e93f33",
		Advice: "Respiratory illness on prolonged exposure.",
		Palette: Palette{
			Background: "#1c0e0e",
			Card:       "#2a1616",
			CardBorder: "#452424",
			Text:       "#fbe6e4",
			TextMuted:  "#b07a76",
			Accent:     "#e93f33",
		},
	},
	{
		Name:   "Severe",
		Min:    401,
		Max:    math.Inf(1),
		Color:  "#af2d24",
		Advice: "Affects healthy people and seriously impacts those with existing diseases.",
		Palette: Palette{
			Background: "#160808",
			Card:       "#241010",
			CardBorder: "#3c1a1a",
			Text:       "#f8dede",
			TextMuted:  "#a06a66",
			Accent:     "#d0453a",
		},
	},
}

// CategoryFor returns the band containing aqi. The value is rounded first so
// fractional readings between bands land in the nearer one; negative values
// count as Good.
func CategoryFor(aqi float64) Category {
	v := math.Round(aqi)
	for _, c := range Categories {
		if v <= c.Max {
			return c
		}
	}
	return Categories[len(Categories)-1]
}
