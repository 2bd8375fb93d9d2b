package platform

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/gammazero/deque"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"lautenbacher.net/adxld/adxl"
	u "lautenbacher.net/adxld/util"
)

const (
	maxSampleHistory = 500
	viewerTitle      = " ADXLD Sample Viewer "
	colWidth         = 24 // Width for each device's data column
)

// axisHistory keeps the recent values of one device's three axes.
type axisHistory [3]*deque.Deque[int]

func newAxisHistory() axisHistory {
	var h axisHistory
	for i := range h {
		h[i] = new(deque.Deque[int])
	}
	return h
}

func (h axisHistory) push(sample adxl.Sample) {
	x, y, z := sample.Axes()
	for i, v := range []int16{x, y, z} {
		if h[i].Len() == maxSampleHistory {
			h[i].PopFront()
		}
		h[i].PushBack(int(v))
	}
}

// SampleViewer is a TUI component for displaying live accelerometer data.
type SampleViewer struct {
	tuiApp      *tview.Application
	view        *tview.TextView
	history     map[string]axisHistory
	deviceNames []string
	mu          sync.Mutex
	ossignal    chan os.Signal
}

type sampleStats struct {
	min    int
	max    int
	mean   float64
	median float64
	stdDev float64
}

// NewSampleViewer creates and initializes a new SampleViewer.
func NewSampleViewer(ossignal chan os.Signal) *SampleViewer {
	return &SampleViewer{
		tuiApp:   tview.NewApplication(),
		history:  make(map[string]axisHistory),
		ossignal: ossignal,
	}
}

// Start runs the TUI and feeds it from samples until stopSignal is closed.
// It should be called as a goroutine.
func (sv *SampleViewer) Start(samples *u.AtomicMapEvent[adxl.Sample], stopSignal chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	sv.setupUI()

	go func() {
		for {
			select {
			case <-stopSignal:
				slog.Info("Stopping SampleViewer TUI...")
				sv.tuiApp.Stop()
				return
			case <-samples.Channel():
				sv.Update(samples.Value())
			}
		}
	}()

	if err := sv.tuiApp.Run(); err != nil {
		slog.Error("Error running SampleViewer TUI", "error", err)
		sv.ossignal <- os.Interrupt
	}
	slog.Info("SampleViewer TUI has stopped.")
}

// Update records the latest samples, prepares the display strings and
// schedules a TUI redraw. This method is safe for concurrent use.
func (sv *SampleViewer) Update(latest map[string]adxl.Sample) {
	sv.mu.Lock()
	sv.record(latest)
	text := sv.prepareDisplayText()
	sv.mu.Unlock()

	sv.tuiApp.QueueUpdateDraw(func() {
		sv.view.SetText(text)
	})
}

// record must be called with the mutex held.
func (sv *SampleViewer) record(latest map[string]adxl.Sample) {
	for name, sample := range latest {
		h, ok := sv.history[name]
		if !ok {
			h = newAxisHistory()
			sv.history[name] = h
			sv.deviceNames = append(sv.deviceNames, name)
			sort.Strings(sv.deviceNames)
		}
		h.push(sample)
	}
}

func (sv *SampleViewer) setupUI() {
	sv.view = tview.NewTextView()
	sv.view.SetDynamicColors(true)
	sv.view.SetTextAlign(tview.AlignLeft)
	sv.view.SetBackgroundColor(tcell.ColorDarkSlateGray)
	sv.view.SetBorder(true).SetTitle(viewerTitle).SetTitleColor(tcell.ColorLightBlue)

	intro := tview.NewTextView()
	intro.SetBorder(true).SetTitle(" ADXLD ").SetTitleColor(tcell.ColorLightBlue)
	intro.SetText("Raw axis values in LSB over the last " + fmt.Sprint(maxSampleHistory) + " samples.\n" +
		"Hit [#ff0000]q[-] to exit, [#ff0000]r[-] to reload config file and restart")
	intro.SetTextAlign(tview.AlignCenter)
	intro.SetDynamicColors(true)
	intro.SetBackgroundColor(tcell.ColorDarkSlateGray)

	layout := tview.NewFlex().SetDirection(tview.FlexRow)
	layout.AddItem(intro, 4, 1, false)
	layout.AddItem(sv.view, 0, 1, true)

	sv.tuiApp.SetRoot(layout, true).SetFocus(sv.view)
	sv.tuiApp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Rune() {
		case 'q', 'Q':
			sv.tuiApp.Stop()
			sv.ossignal <- os.Interrupt
		case 'r', 'R':
			sv.tuiApp.Stop()
			sv.ossignal <- syscall.SIGHUP
		}
		return event
	})
}

// prepareDisplayText generates the output from the current history.
// This method MUST be called with the mutex already held.
func (sv *SampleViewer) prepareDisplayText() string {
	var buf strings.Builder

	buf.WriteString(fmt.Sprintf("[yellow]%-12s[white]", " Device"))
	for _, axis := range []string{"X", "Y", "Z"} {
		buf.WriteString(fmt.Sprintf("[yellow]%-*s[white]", colWidth, " "+axis+" [min|mean|max] sd"))
	}
	buf.WriteString("\n")

	for _, name := range sv.deviceNames {
		buf.WriteString(fmt.Sprintf("[blue]%-12s[-]", " "+name))
		for _, values := range sv.history[name] {
			data := make([]int, values.Len())
			for i := range values.Len() {
				data[i] = values.At(i)
			}
			stats := calculateStats(data)
			buf.WriteString(fmt.Sprintf(" [%5d|%5.0f|%5d] %4.1f ", stats.min, math.Round(stats.mean), stats.max, stats.stdDev))
		}
		buf.WriteString("\n")
	}
	return buf.String()
}

func calculateStats(data []int) sampleStats {
	if len(data) == 0 {
		return sampleStats{}
	}

	var sum int
	min, max := data[0], data[0]
	for _, v := range data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}

	mean := float64(sum) / float64(len(data))

	sort.Ints(data)
	var median float64
	mid := len(data) / 2
	if len(data)%2 == 0 {
		median = float64(data[mid-1]+data[mid]) / 2.0
	} else {
		median = float64(data[mid])
	}

	var sumOfSquares float64
	for _, v := range data {
		sumOfSquares += (float64(v) - mean) * (float64(v) - mean)
	}
	stdDev := math.Sqrt(sumOfSquares / float64(len(data)))

	return sampleStats{
		min:    min,
		max:    max,
		mean:   mean,
		median: median,
		stdDev: stdDev,
	}
}
