package report

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/signintech/gopdf"

	"medvoice/internal/consultation"
)

var (
	ErrNoReport        = errors.New("session has no report")
	ErrFontUnavailable = errors.New("no usable font for pdf rendering")
)

// DefaultFontPaths lists DejaVuSans locations on common Linux images.
var DefaultFontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

const (
	fontFamily  = "DejaVu"
	textWidth   = 500
	pageBottom  = 780
	lineSpacing = 14
)

// Renderer draws a stored consultation report as an A4 PDF.
type Renderer struct {
	FontPaths []string
}

func NewRenderer(fontPaths []string) *Renderer {
	if len(fontPaths) == 0 {
		fontPaths = DefaultFontPaths
	}
	return &Renderer{FontPaths: fontPaths}
}

func FileName(sessionID string) string {
	return fmt.Sprintf("report_%s.pdf", sessionID)
}

func (r *Renderer) Render(sess consultation.Session) ([]byte, error) {
	if sess.Report == nil {
		return nil, ErrNoReport
	}
	rep := sess.Report

	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()
	if err := r.loadFont(&pdf); err != nil {
		return nil, err
	}

	w := &writer{pdf: &pdf}
	w.heading(20, "Consultation Report")
	w.gap(10)

	w.line(11, "Session: "+sess.SessionID)
	w.line(11, "Date: "+rep.Timestamp)
	w.line(11, "Specialist: "+rep.Agent)
	w.line(11, "Patient: "+rep.User)
	w.gap(10)

	w.section("Chief complaint", rep.ChiefComplaint)
	w.section("Summary", rep.Summary)
	w.section("Duration", rep.Duration)
	w.section("Severity", string(rep.Severity))
	w.list("Symptoms", rep.Symptoms)
	w.list("Medications mentioned", rep.MedicationsMentioned)
	w.list("Recommendations", rep.Recommendations)

	w.gap(10)
	w.line(9, "Generated by an AI assistant. Not a medical diagnosis.")
	if w.err != nil {
		return nil, w.err
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) loadFont(pdf *gopdf.GoPdf) error {
	var lastErr error
	for _, path := range r.FontPaths {
		if err := pdf.AddTTFFont(fontFamily, path); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		return ErrFontUnavailable
	}
	return fmt.Errorf("%w: %v", ErrFontUnavailable, lastErr)
}

// writer keeps the first drawing error so the layout code stays linear.
type writer struct {
	pdf *gopdf.GoPdf
	err error
}

func (w *writer) font(size float64) {
	if w.err == nil {
		w.err = w.pdf.SetFont(fontFamily, "", size)
	}
}

func (w *writer) line(size float64, text string) {
	w.font(size)
	if w.err != nil {
		return
	}
	lines, err := w.pdf.SplitText(text, textWidth)
	if err != nil {
		lines = []string{text}
	}
	for _, l := range lines {
		if w.pdf.GetY() > pageBottom {
			w.pdf.AddPage()
			w.font(size)
		}
		if w.err == nil {
			w.err = w.pdf.Cell(nil, l)
		}
		w.pdf.Br(lineSpacing)
	}
}

func (w *writer) heading(size float64, text string) {
	w.line(size, text)
	w.gap(6)
}

func (w *writer) gap(h float64) {
	w.pdf.Br(h)
}

func (w *writer) section(title, body string) {
	w.line(13, title+":")
	w.line(11, body)
	w.gap(6)
}

func (w *writer) list(title string, items []string) {
	w.line(13, title+":")
	if len(items) == 0 {
		w.line(11, "- none")
	}
	for _, item := range items {
		w.line(11, "- "+strings.TrimSpace(item))
	}
	w.gap(6)
}
