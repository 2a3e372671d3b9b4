package display

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"

	"l2-order-book/internal/orderbook"
)

const (
	colorReset = "\x1b[0m"
	colorRed   = "\x1b[31m"
	colorGreen = "\x1b[32m"
	colorBlue  = "\x1b[34m"
	colorBold  = "\x1b[1m"
	clearHome  = "\x1b[H\x1b[2J"

	columnWidth = 16
)

type Source interface {
	View() orderbook.BookView
}

type Display struct {
	source   Source
	out      io.Writer
	ansi     bool
	title    string
	levels   int
	interval time.Duration
}

// NewStdout writes to the process stdout, with colors only when stdout is a
// terminal.
func NewStdout(source Source, title string, levels int, interval time.Duration) *Display {
	tty := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	return New(source, colorable.NewColorableStdout(), tty, title, levels, interval)
}

func New(source Source, out io.Writer, ansi bool, title string, levels int, interval time.Duration) *Display {
	return &Display{source: source, out: out, ansi: ansi, title: title, levels: levels, interval: interval}
}

// Run redraws the book every interval until ctx is cancelled.
func (d *Display) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		d.Draw()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *Display) Draw() {
	var buf bytes.Buffer
	if d.ansi {
		buf.WriteString(clearHome)
	}
	d.render(&buf, d.source.View())
	_, _ = d.out.Write(buf.Bytes())
}

func (d *Display) render(buf *bytes.Buffer, view orderbook.BookView) {
	d.line(buf, colorBold, d.title)
	d.line(buf, "", fmt.Sprintf("sequence %d  depth %d  updated %s",
		view.Sequence, view.DepthLimit, updatedAt(view.UpdatedAt)))
	buf.WriteString("\n")

	d.line(buf, colorBold, "Best Prices")
	d.row(buf, []cell{{"Best Ask", ""}, {"Best Bid", ""}, {"Spread", ""}})
	spread := "-"
	if view.HasBid && view.HasAsk {
		spread = formatFloat(view.BestAsk - view.BestBid)
	}
	d.row(buf, []cell{
		{priceOrDash(view.BestAsk, view.HasAsk), colorGreen},
		{priceOrDash(view.BestBid, view.HasBid), colorRed},
		{spread, ""},
	})
	buf.WriteString("\n")

	d.line(buf, colorBold, "Order Book")
	d.row(buf, []cell{{"Ask Price", ""}, {"Ask Qty", ""}, {"Bid Price", ""}, {"Bid Qty", ""}})
	rows := min(max(len(view.Asks), len(view.Bids)), d.levels)
	for i := 0; i < rows; i++ {
		cells := make([]cell, 0, 4)
		if i < len(view.Asks) {
			cells = append(cells, cell{formatFloat(view.Asks[i].Price), colorBlue}, cell{formatFloat(view.Asks[i].Quantity), ""})
		} else {
			cells = append(cells, cell{}, cell{})
		}
		if i < len(view.Bids) {
			cells = append(cells, cell{formatFloat(view.Bids[i].Price), colorBlue}, cell{formatFloat(view.Bids[i].Quantity), ""})
		} else {
			cells = append(cells, cell{}, cell{})
		}
		d.row(buf, cells)
	}
}

type cell struct {
	text  string
	color string
}

func (d *Display) row(buf *bytes.Buffer, cells []cell) {
	for _, c := range cells {
		text := runewidth.FillRight(runewidth.Truncate(c.text, columnWidth-1, "…"), columnWidth)
		d.colored(buf, c.color, text)
	}
	buf.WriteString("\n")
}

func (d *Display) line(buf *bytes.Buffer, color, text string) {
	d.colored(buf, color, text)
	buf.WriteString("\n")
}

func (d *Display) colored(buf *bytes.Buffer, color, text string) {
	if d.ansi && color != "" {
		buf.WriteString(color)
		buf.WriteString(text)
		buf.WriteString(colorReset)
		return
	}
	buf.WriteString(text)
}

func priceOrDash(price float64, ok bool) string {
	if !ok {
		return "-"
	}
	return formatFloat(price)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func updatedAt(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("15:04:05.000")
}
