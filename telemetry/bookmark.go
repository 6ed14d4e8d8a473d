package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkEnergySurge     BookmarkType = "energy_surge"
	BookmarkDivergenceSpike BookmarkType = "divergence_spike"
	BookmarkDyeWashout      BookmarkType = "dye_washout"
	BookmarkSteadyState     BookmarkType = "steady_state"
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type" json:"type"`
	Step        int64        `csv:"step" json:"step"`
	Description string       `csv:"description" json:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"step", b.Step,
		"description", b.Description,
	)
}

// BookmarkDetector detects interesting moments in the flow.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	recentDyePeak      float64
	steadyWindowsCount int
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5 // minimum for steady state detection
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	if bd.historyFull || bd.historyIdx > 0 {
		if b := bd.checkEnergySurge(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkDivergenceSpike(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkDyeWashout(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkSteadyState(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	bd.addToHistory(stats)

	if stats.DyeTotal > bd.recentDyePeak {
		bd.recentDyePeak = stats.DyeTotal
	}

	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

// getHistory returns stored windows oldest first.
func (bd *BookmarkDetector) getHistory() []WindowStats {
	if !bd.historyFull {
		return bd.history[:bd.historyIdx]
	}
	out := make([]WindowStats, 0, bd.historySize)
	out = append(out, bd.history[bd.historyIdx:]...)
	return append(out, bd.history[:bd.historyIdx]...)
}

func (bd *BookmarkDetector) checkEnergySurge(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total float64
	for _, h := range history {
		total += h.KineticEnergy
	}
	avg := total / float64(len(history))
	if avg == 0 {
		return nil
	}

	if stats.KineticEnergy > avg*2.0 && stats.KineticEnergy > 1e-3 {
		return &Bookmark{
			Type:        BookmarkEnergySurge,
			Step:        stats.WindowEndStep,
			Description: fmt.Sprintf("Kinetic energy %.4g is %.1fx average (%.4g)", stats.KineticEnergy, stats.KineticEnergy/avg, avg),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkDivergenceSpike(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total float64
	for _, h := range history {
		total += h.MaxDivergence
	}
	avg := total / float64(len(history))
	if avg == 0 {
		return nil
	}

	if stats.MaxDivergence > avg*5.0 && stats.MaxDivergence > 1e-3 {
		return &Bookmark{
			Type:        BookmarkDivergenceSpike,
			Step:        stats.WindowEndStep,
			Description: fmt.Sprintf("Max divergence %.4g is %.1fx average (%.4g)", stats.MaxDivergence, stats.MaxDivergence/avg, avg),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkDyeWashout(stats WindowStats) *Bookmark {
	if bd.recentDyePeak < 1 {
		return nil
	}

	drop := 1.0 - stats.DyeTotal/bd.recentDyePeak
	if drop > 0.5 {
		oldPeak := bd.recentDyePeak
		// Reset peak after washout
		bd.recentDyePeak = stats.DyeTotal

		return &Bookmark{
			Type:        BookmarkDyeWashout,
			Step:        stats.WindowEndStep,
			Description: fmt.Sprintf("Dye fell %.0f%% from peak %.1f to %.1f", drop*100, oldPeak, stats.DyeTotal),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkSteadyState(stats WindowStats) *Bookmark {
	if stats.KineticEnergy <= 0 {
		bd.steadyWindowsCount = 0
		return nil
	}

	history := bd.getHistory()
	if len(history) < 4 {
		return nil
	}

	recent := history[len(history)-4:]
	var sum float64
	for _, h := range recent {
		sum += h.KineticEnergy
	}
	mean := sum / 4

	var variance float64
	for _, h := range recent {
		d := h.KineticEnergy - mean
		variance += d * d
	}
	variance /= 4

	cv2 := 0.0
	if mean > 0 {
		cv2 = variance / (mean * mean)
	}

	if mean > 0 && cv2 < 0.0025 { // CV < 5%
		bd.steadyWindowsCount++
	} else {
		bd.steadyWindowsCount = 0
	}

	if bd.steadyWindowsCount == 5 { // trigger exactly once
		return &Bookmark{
			Type:        BookmarkSteadyState,
			Step:        stats.WindowEndStep,
			Description: fmt.Sprintf("Kinetic energy steady near %.4g over 5+ windows", mean),
		}
	}
	return nil
}
