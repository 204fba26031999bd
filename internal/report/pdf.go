package report

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/signintech/gopdf"
	"github.com/sirupsen/logrus"

	"github.com/gravilog-risk-core/internal/catalogue"
	"github.com/gravilog-risk-core/internal/domain"
)

const (
	fontFamily   = "report"
	pageMargin   = 50.0
	pageBottom   = 790.0
	contentWidth = 595.28 - 2*pageMargin
)

// FontCandidates are tried in order when no font path is configured. The
// DejaVu faces cover both Latin and Arabic script.
var FontCandidates = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/Library/Fonts/DejaVuSans.ttf",
}

// ErrNoFont is returned when no usable TTF font could be found.
var ErrNoFont = errors.New("no TTF font available for PDF reports")

// riskColors are the RGB colors of the risk level line.
var riskColors = map[domain.RiskLevel][3]uint8{
	domain.RiskLow:    {0x2e, 0x7d, 0x32},
	domain.RiskMedium: {0xef, 0x6c, 0x00},
	domain.RiskHigh:   {0xc6, 0x28, 0x28},
}

// PDFRenderer renders assessments as A4 PDF documents.
type PDFRenderer struct {
	texts     TextSource
	catalogue *catalogue.Catalogue
	fontPath  string
	logger    *logrus.Logger
}

// NewPDFRenderer creates a renderer using the configured font, or the first
// available candidate when none is configured.
func NewPDFRenderer(config domain.ReportConfig, texts TextSource, cat *catalogue.Catalogue, logger *logrus.Logger) (*PDFRenderer, error) {
	fontPath, err := ResolveFont(config.FontPath)
	if err != nil {
		return nil, err
	}
	logger.WithField("font", fontPath).Debug("PDF report font selected")
	return &PDFRenderer{
		texts:     texts,
		catalogue: cat,
		fontPath:  fontPath,
		logger:    logger,
	}, nil
}

// ResolveFont returns configured if set and readable, otherwise the first
// existing candidate.
func ResolveFont(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("report font %s: %w", configured, err)
		}
		return configured, nil
	}
	for _, p := range FontCandidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrNoFont
}

// ContentType implements domain.ReportRenderer.
func (r *PDFRenderer) ContentType() string {
	return "application/pdf"
}

// Render implements domain.ReportRenderer.
func (r *PDFRenderer) Render(a domain.Assessment) ([]byte, error) {
	doc := BuildDocument(a, r.texts, r.catalogue)

	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.SetMargins(pageMargin, pageMargin, pageMargin, pageMargin)
	pdf.AddPage()

	if err := pdf.AddTTFFont(fontFamily, r.fontPath); err != nil {
		return nil, fmt.Errorf("loading report font: %w", err)
	}

	w := &pdfWriter{pdf: &pdf, rtl: doc.RTL}

	if err := w.text(doc.Title, 18, 28); err != nil {
		return nil, err
	}
	w.pdf.Br(6)

	for i, line := range doc.Header {
		if i == len(doc.Header)-1 {
			c := riskColors[doc.RiskLevel]
			pdf.SetTextColor(c[0], c[1], c[2])
		}
		if err := w.text(line, 11, 16); err != nil {
			return nil, err
		}
	}
	pdf.SetTextColor(0, 0, 0)

	for _, s := range doc.Sections {
		w.pdf.Br(10)
		if err := w.text(s.Heading, 14, 20); err != nil {
			return nil, err
		}
		for _, l := range s.Lines {
			if err := w.text(l, 11, 15); err != nil {
				return nil, err
			}
		}
	}

	if doc.Footer != "" {
		w.pdf.Br(18)
		pdf.SetTextColor(0x61, 0x61, 0x61)
		if err := w.text(doc.Footer, 9, 12); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("writing PDF: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"session_id": a.SessionID,
		"locale":     a.Locale,
		"bytes":      buf.Len(),
	}).Debug("Rendered assessment report")

	return buf.Bytes(), nil
}

// pdfWriter writes wrapped lines and starts a new page when the current one is full.
type pdfWriter struct {
	pdf *gopdf.GoPdf
	rtl bool
}

func (w *pdfWriter) text(s string, size, lineHeight float64) error {
	if err := w.pdf.SetFont(fontFamily, "", size); err != nil {
		return fmt.Errorf("setting report font: %w", err)
	}
	lines, err := w.pdf.SplitText(s, contentWidth)
	if err != nil {
		// text wider than a line with no break opportunity
		lines = []string{s}
	}
	align := gopdf.Left | gopdf.Top
	if w.rtl {
		align = gopdf.Right | gopdf.Top
	}
	for _, l := range lines {
		if w.pdf.GetY()+lineHeight > pageBottom {
			w.pdf.AddPage()
			w.pdf.SetY(pageMargin)
		}
		w.pdf.SetX(pageMargin)
		rect := &gopdf.Rect{W: contentWidth, H: lineHeight}
		if err := w.pdf.CellWithOption(rect, l, gopdf.CellOption{Align: align}); err != nil {
			return fmt.Errorf("writing report line: %w", err)
		}
		w.pdf.Br(lineHeight)
	}
	return nil
}
