package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Progress draws a single-line bar of finished files.
type Progress struct {
	w       io.Writer
	total   int
	current int
	failed  int
	mu      sync.Mutex
}

func NewProgress(w io.Writer, total int) *Progress {
	return &Progress{w: w, total: total}
}

func (p *Progress) Done(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current++
	if !ok {
		p.failed++
	}
	p.draw()
}

func (p *Progress) draw() {
	if p.total == 0 {
		return
	}
	width := 30
	percent := float64(p.current) / float64(p.total)
	filled := int(float64(width) * percent)

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	fmt.Fprintf(p.w, "\r [OPUSIFY] [%s] %d%% (%d/%d files, %d failed)", bar, int(percent*100), p.current, p.total, p.failed)

	if p.current == p.total {
		fmt.Fprintln(p.w)
	}
}
