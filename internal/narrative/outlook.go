package narrative

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/lox/aqiforecast/internal/forecast"
	"github.com/lox/aqiforecast/internal/models"
)

// Rewriter turns a plain forecast summary into friendlier prose.
type Rewriter interface {
	Rewrite(ctx context.Context, summary string) (string, error)
}

// Outlooks produces short forecast summaries, memoised per dataset
// fingerprint, city and horizon.
type Outlooks struct {
	rewriter Rewriter
	timeout  time.Duration

	mu    sync.RWMutex
	cache map[string]string
}

// New returns an outlook writer. rw may be nil, in which case only the
// template summary is used.
func New(rw Rewriter) *Outlooks {
	return &Outlooks{
		rewriter: rw,
		timeout:  20 * time.Second,
		cache:    make(map[string]string),
	}
}

// Outlook returns the summary for res. A failed rewrite falls back to the
// template text and is not memoised.
func (o *Outlooks) Outlook(ctx context.Context, fingerprint string, res models.ForecastResult) string {
	if len(res.Points) == 0 {
		return ""
	}
	key := fmt.Sprintf("%s:%s:%d", fingerprint, res.City, res.Horizon)

	o.mu.RLock()
	text, ok := o.cache[key]
	o.mu.RUnlock()
	if ok {
		return text
	}

	text = Summarize(res)
	if o.rewriter != nil {
		rctx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()
		rewritten, err := o.rewriter.Rewrite(rctx, text)
		if err != nil {
			log.Printf("narrative: rewrite for %s failed, using template: %v", res.City, err)
			return text
		}
		text = rewritten
	}

	o.mu.Lock()
	o.cache[key] = text
	o.mu.Unlock()
	return text
}

// Reset forgets every memoised outlook.
func (o *Outlooks) Reset() {
	o.mu.Lock()
	o.cache = make(map[string]string)
	o.mu.Unlock()
}

// Summarize builds the deterministic two-sentence outlook: mean level with
// its category, then the peak day and the category's health advice.
func Summarize(res models.ForecastResult) string {
	if len(res.Points) == 0 {
		return ""
	}

	var sum float64
	peak := res.Points[0]
	for _, p := range res.Points {
		sum += p.Predicted
		if p.Predicted > peak.Predicted {
			peak = p
		}
	}
	mean := math.Round(sum / float64(len(res.Points)))
	meanCat := forecast.CategoryFor(mean)
	peakCat := forecast.CategoryFor(peak.Predicted)

	var b strings.Builder
	fmt.Fprintf(&b, "Over the next %d days %s's AQI is expected to average %.0f (%s)",
		res.Horizon, res.City, mean, meanCat.Name)
	if peakCat.Name != meanCat.Name {
		fmt.Fprintf(&b, ", peaking at %.0f (%s) on %s.", peak.Predicted, peakCat.Name, peak.Date.Format("2 Jan 2006"))
	} else {
		fmt.Fprintf(&b, ", peaking at %.0f on %s.", peak.Predicted, peak.Date.Format("2 Jan 2006"))
	}
	b.WriteString(" ")
	b.WriteString(peakCat.Advice)
	return b.String()
}
