package monitoring

import (
	"math"

	"modelctl/internal/models"
	"modelctl/internal/stats"
)

// breakEvenBand treats trades within this absolute P&L of zero as
// breakeven for the distribution buckets.
const breakEvenBand = 1e-9

// ComputeMetrics derives ModelMetrics from an ordered sequence of
// closed-trade outcomes. The input order is the evaluation order used
// for the drawdown curve and consistency windows.
func ComputeMetrics(trades []models.TradeOutcome) models.ModelMetrics {
	m := models.ModelMetrics{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return m
	}

	returns := make([]float64, len(trades))
	var cumulative, peak, maxDrawdown float64
	for i, t := range trades {
		p := t.Profit
		returns[i] = p

		switch {
		case p > breakEvenBand:
			m.WinningTrades++
			m.TotalProfit += p
			m.Distribution.Profitable++
			if p > m.LargestWin {
				m.LargestWin = p
			}
		case p < -breakEvenBand:
			m.TotalLoss += -p
			m.Distribution.Unprofitable++
			if p < m.LargestLoss {
				m.LargestLoss = p
			}
		default:
			m.Distribution.Breakeven++
		}

		cumulative += p
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	m.NetProfit = m.TotalProfit - m.TotalLoss
	m.MaxDrawdown = maxDrawdown

	if m.TotalLoss > 0 {
		m.ProfitFactor = m.TotalProfit / m.TotalLoss
	} else if m.TotalProfit > 0 {
		m.ProfitFactor = math.Inf(1)
	}

	if m.WinningTrades > 0 {
		m.AverageWin = m.TotalProfit / float64(m.WinningTrades)
	}
	if m.Distribution.Unprofitable > 0 {
		m.AverageLoss = -m.TotalLoss / float64(m.Distribution.Unprofitable)
	}

	if sd := stats.StdDev(returns); sd > 0 {
		m.SharpeRatio = stats.Mean(returns) / sd
	}

	m.ConsistencyScore = consistencyScore(returns, 5)
	return m
}

// consistencyScore is the fraction of rolling windows whose summed
// return is net positive.
func consistencyScore(returns []float64, window int) float64 {
	if len(returns) < window {
		return 0
	}

	var sum float64
	for i := 0; i < window; i++ {
		sum += returns[i]
	}

	total := len(returns) - window + 1
	positive := 0
	if sum > 0 {
		positive++
	}
	for i := window; i < len(returns); i++ {
		sum += returns[i] - returns[i-window]
		if sum > 0 {
			positive++
		}
	}
	return float64(positive) / float64(total)
}

// PerformanceScore folds the headline metrics into a 0-100 composite.
// Win rate and profit factor dominate; drawdown and Sharpe adjust.
func PerformanceScore(m models.ModelMetrics) float64 {
	if m.TotalTrades == 0 {
		return 0
	}

	winComponent := clamp(m.WinRate/0.6, 0, 1) * 40

	pf := m.ProfitFactor
	if math.IsInf(pf, 1) {
		pf = 3
	}
	pfComponent := clamp(pf/3.0, 0, 1) * 30

	ddPenalty := clamp(m.MaxDrawdown/math.Max(m.TotalProfit, 1), 0, 1)
	ddComponent := (1 - ddPenalty) * 15

	sharpeComponent := clamp((m.SharpeRatio+1)/3, 0, 1) * 15

	return winComponent + pfComponent + ddComponent + sharpeComponent
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
