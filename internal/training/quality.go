package training

import (
	"fmt"
	"time"

	"modelctl/internal/models"
	"modelctl/internal/stats"
)

// QualityReport is the outcome of validating a training data set.
type QualityReport struct {
	Valid  bool
	Score  float64 // 0-100
	Issues []string
}

// ScoreDataQuality scores a trade data set from 0 to 100, subtracting
// a penalty for each defect class. Validity against the configured
// floor is decided by the caller.
func ScoreDataQuality(trades []models.TradeOutcome, cfg models.TrainingConfig) QualityReport {
	report := QualityReport{Score: 100}
	if len(trades) == 0 {
		report.Score = 0
		report.Issues = append(report.Issues, "no trades collected")
		return report
	}

	if len(trades) < cfg.MinTradesThreshold {
		report.Score -= 25
		report.Issues = append(report.Issues, fmt.Sprintf("only %d trades, below threshold %d", len(trades), cfg.MinTradesThreshold))
	}

	missing := 0
	wins := 0
	profits := make([]float64, len(trades))
	symbols := make(map[string]int)
	seen := make(map[string]bool)
	duplicates := 0
	var earliest, latest time.Time

	for i, t := range trades {
		profits[i] = t.Profit
		if t.Profit > 0 {
			wins++
		}
		if t.TradeID == "" || t.ClosedAt.IsZero() || !t.ClosedAt.After(t.OpenedAt) {
			missing++
		}
		if t.TradeID != "" {
			if seen[t.TradeID] {
				duplicates++
			}
			seen[t.TradeID] = true
		}
		symbols[t.Symbol]++
		if earliest.IsZero() || t.ClosedAt.Before(earliest) {
			earliest = t.ClosedAt
		}
		if t.ClosedAt.After(latest) {
			latest = t.ClosedAt
		}
	}

	if missing > 0 {
		penalty := 100 * float64(missing) / float64(len(trades))
		if penalty > 20 {
			penalty = 20
		}
		report.Score -= penalty
		report.Issues = append(report.Issues, fmt.Sprintf("%d trades with missing or invalid fields", missing))
	}

	winRate := float64(wins) / float64(len(trades))
	if winRate < 0.30 || winRate > 0.80 {
		report.Score -= 15
		report.Issues = append(report.Issues, fmt.Sprintf("win rate %.2f outside expected 0.30-0.80 band", winRate))
	}

	if frac := outlierFraction(profits); frac > 0.05 {
		report.Score -= 10
		report.Issues = append(report.Issues, fmt.Sprintf("%.1f%% of trades are >3 sigma outliers", frac*100))
	}

	if cfg.LookbackDays > 0 {
		span := latest.Sub(earliest)
		window := time.Duration(cfg.LookbackDays) * 24 * time.Hour
		if span < window/2 {
			report.Score -= 10
			report.Issues = append(report.Issues, fmt.Sprintf("trades span %s, under half the %d-day window", span.Round(time.Hour), cfg.LookbackDays))
		}
	}

	for symbol, count := range symbols {
		if float64(count)/float64(len(trades)) > 0.80 {
			report.Score -= 10
			report.Issues = append(report.Issues, fmt.Sprintf("symbol %s dominates %d of %d trades", symbol, count, len(trades)))
			break
		}
	}

	if duplicates > 0 {
		report.Score -= 10
		report.Issues = append(report.Issues, fmt.Sprintf("%d duplicate trade ids", duplicates))
	}

	if report.Score < 0 {
		report.Score = 0
	}
	return report
}

// outlierFraction returns the fraction of values more than three
// standard deviations from the mean.
func outlierFraction(xs []float64) float64 {
	sd := stats.StdDev(xs)
	if sd == 0 {
		return 0
	}
	mean := stats.Mean(xs)
	outliers := 0
	for _, x := range xs {
		if x > mean+3*sd || x < mean-3*sd {
			outliers++
		}
	}
	return float64(outliers) / float64(len(xs))
}
