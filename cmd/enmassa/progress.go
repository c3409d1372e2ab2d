package main

import (
	"fmt"
	"io"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/enmassa-dl/enmassa/pkg/events"
)

// renderer turns the pipeline event stream into terminal output: one mpb
// bar per active download, plain lines for everything else.
type renderer struct {
	out      io.Writer
	progress *mpb.Progress
	bars     map[string]*mpb.Bar
	quiet    bool
}

func newRenderer(out io.Writer, showProgress, quiet bool) *renderer {
	r := &renderer{
		out:   out,
		bars:  make(map[string]*mpb.Bar),
		quiet: quiet,
	}

	if showProgress {
		r.progress = mpb.New(
			mpb.WithOutput(out),
			mpb.WithWidth(48),
		)
	}

	return r
}

// consume renders events until the stream closes. It runs on its own
// goroutine; the bus guarantees a bounded buffer, so falling behind only
// coalesces progress updates.
func (r *renderer) consume(stream <-chan events.Event) {
	for evt := range stream {
		switch evt.Type {
		case events.EventHarvestPage:
			if evt.Err != nil {
				r.printf("page %d failed: %v\n", evt.Page, evt.Err)
			}

		case events.EventResolveFailed:
			r.printf("chapter %d: metadata unavailable: %v\n", evt.ChapterID, evt.Err)

		case events.EventDownloadStarted:
			r.startBar(evt)

		case events.EventDownloadProgress:
			r.updateBar(evt)

		case events.EventDownloadRestarted:
			r.printf("%s: server ignored resume request, restarting from zero\n", evt.FileName)
			if bar, ok := r.bars[evt.FileName]; ok {
				bar.SetCurrent(0)
			}

		case events.EventDownloadCompleted:
			r.completeBar(evt)

		case events.EventDownloadFailed:
			r.failBar(evt)
			r.printf("%s failed: %v\n", evt.FileName, evt.Err)

		case events.EventRunSummary:
			// The final summary is printed by main after stats aggregate.
		}
	}
}

func (r *renderer) startBar(evt events.Event) {
	if r.progress == nil {
		return
	}

	name := evt.FileName
	if len(name) > 40 {
		name = name[:37] + "..."
	}

	r.bars[evt.FileName] = r.progress.AddBar(0,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: 42, C: decor.DindentRight}),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f"),
		),
		mpb.BarRemoveOnComplete(),
	)
}

func (r *renderer) updateBar(evt events.Event) {
	bar, ok := r.bars[evt.FileName]
	if !ok {
		return
	}

	if evt.TotalSize > 0 {
		bar.SetTotal(evt.TotalSize, false)
	}

	bar.SetCurrent(evt.Bytes)
}

func (r *renderer) completeBar(evt events.Event) {
	if bar, ok := r.bars[evt.FileName]; ok {
		bar.SetTotal(evt.Bytes, true)
		delete(r.bars, evt.FileName)
	} else if !r.quiet && r.progress == nil {
		r.printf("%s done (%d bytes)\n", evt.FileName, evt.Bytes)
	}
}

func (r *renderer) failBar(evt events.Event) {
	if bar, ok := r.bars[evt.FileName]; ok {
		bar.Abort(true)
		delete(r.bars, evt.FileName)
	}
}

// finish waits for the progress container to drain its bars.
func (r *renderer) finish() {
	if r.progress != nil {
		r.progress.Wait()
	}
}

func (r *renderer) printf(format string, args ...interface{}) {
	if r.quiet {
		return
	}

	if r.progress != nil {
		// Route through mpb so lines do not tear active bars.
		r.progress.Write([]byte(fmt.Sprintf(format, args...)))
		return
	}

	fmt.Fprintf(r.out, format, args...)
}
