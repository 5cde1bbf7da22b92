package pdf

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"

	"makedeal/internal/models"
)

// HistoryReport is the input for a transition history export.
type HistoryReport struct {
	Deal        models.DealStageState
	Records     []models.TransitionRecord
	GeneratedAt time.Time
	// StageName resolves a stage key to its display name; nil prints keys.
	StageName func(key string) string
}

// ReportGenerator renders pipeline reports with gofpdf.
type ReportGenerator struct {
	RootDir  string // where saved reports go, e.g. "./files"
	FontPath string // TTF with Cyrillic coverage; core Helvetica is used when absent
	fontName string
}

func NewReportGenerator(rootDir, fontPath string) *ReportGenerator {
	return &ReportGenerator{
		RootDir:  filepath.Clean(rootDir),
		FontPath: fontPath,
	}
}

// WriteTransitionHistory renders the report to w.
func (g *ReportGenerator) WriteTransitionHistory(w io.Writer, data HistoryReport) error {
	pdf := g.newDocument(fmt.Sprintf("Stage history %s", data.Deal.DealID))
	pdf.AddPage()

	pdf.SetFont(g.fontName, "B", 16)
	pdf.CellFormat(0, 10, "Deal stage history", "", 1, "C", false, 0, "")
	pdf.SetFont(g.fontName, "", 10)
	pdf.CellFormat(0, 6, "Generated "+data.GeneratedAt.UTC().Format("02.01.2006 15:04 MST"), "", 1, "C", false, 0, "")
	g.hr(pdf)

	g.sectionTitle(pdf, "Deal")
	name := data.Deal.Name
	if name == "" {
		name = data.Deal.DealID
	}
	g.kvLine(pdf, "Deal", name)
	g.kvLine(pdf, "Current stage", data.stageName(data.Deal.CurrentStageKey))
	g.kvLine(pdf, "Days in stage", fmt.Sprintf("%d", data.Deal.DaysInStage))
	g.kvLine(pdf, "Probability", fmt.Sprintf("%d%%", data.Deal.Probability))
	g.kvLine(pdf, "Status", string(data.Deal.Status))
	if data.Deal.Amount > 0 {
		g.kvLine(pdf, "Amount", fmt.Sprintf("%.2f", data.Deal.Amount))
	}
	pdf.Ln(2)
	g.hr(pdf)

	g.sectionTitle(pdf, fmt.Sprintf("Transitions (%d)", len(data.Records)))
	if len(data.Records) == 0 {
		pdf.MultiCell(0, 6, "No stage changes recorded.", "", "L", false)
	} else {
		g.historyTable(pdf, data)
	}

	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(g.fontName, "", 9)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render history: %w", err)
	}
	return pdf.Output(w)
}

// RenderTransitionHistory returns the report as bytes.
func (g *ReportGenerator) RenderTransitionHistory(data HistoryReport) ([]byte, error) {
	var buf bytes.Buffer
	if err := g.WriteTransitionHistory(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveTransitionHistory writes the report under RootDir and returns its
// public path.
func (g *ReportGenerator) SaveTransitionHistory(data HistoryReport) (string, error) {
	absPath, err := g.ensureTarget(fmt.Sprintf("stage_history_%s.pdf", data.Deal.DealID))
	if err != nil {
		return "", err
	}
	f, err := os.Create(absPath)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	if err := g.WriteTransitionHistory(f, data); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return "/" + filepath.ToSlash(filepath.Base(absPath)), nil
}

// SavedReport resolves a report written by SaveTransitionHistory to its
// absolute path. Only the base name of name is used.
func (g *ReportGenerator) SavedReport(name string) (string, error) {
	name = filepath.Base(name)
	if filepath.Ext(name) != ".pdf" {
		return "", fmt.Errorf("report %s: %w", name, os.ErrNotExist)
	}
	absPath := filepath.Join(g.RootDir, name)
	if _, err := os.Stat(absPath); err != nil {
		return "", fmt.Errorf("report %s: %w", name, err)
	}
	return absPath, nil
}

var historyColumns = []struct {
	title string
	width float64
}{
	{"Date", 32},
	{"From", 34},
	{"To", 34},
	{"By", 28},
	{"Flags", 22},
	{"Reason", 20},
}

func (g *ReportGenerator) historyTable(pdf *gofpdf.Fpdf, data HistoryReport) {
	pdf.SetFont(g.fontName, "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for _, col := range historyColumns {
		pdf.CellFormat(col.width, 7, col.title, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(g.fontName, "", 9)
	for _, rec := range data.Records {
		from := "-"
		if rec.FromStageKey != nil {
			from = data.stageName(*rec.FromStageKey)
		}
		reason := ""
		if rec.Reason != nil {
			reason = *rec.Reason
		}
		cells := []string{
			rec.ChangedAt.UTC().Format("02.01.2006 15:04"),
			from,
			data.stageName(rec.ToStageKey),
			rec.ChangedBy,
			flags(rec),
			reason,
		}
		for i, col := range historyColumns {
			pdf.CellFormat(col.width, 6, truncate(pdf, cells[i], col.width-2), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
}

func flags(rec models.TransitionRecord) string {
	switch {
	case rec.OverrodeWarning && rec.Regression:
		return "override, back"
	case rec.OverrodeWarning:
		return "override"
	case rec.Regression:
		return "back"
	}
	return ""
}

func truncate(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...") > width {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}

func (d HistoryReport) stageName(key string) string {
	if d.StageName == nil {
		return key
	}
	if name := d.StageName(key); name != "" {
		return name
	}
	return key
}

// ===== helpers =====

func (g *ReportGenerator) newDocument(title string) *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetAuthor("Deal pipeline", true)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	g.addFont(pdf)
	return pdf
}

func (g *ReportGenerator) ensureTarget(filename string) (string, error) {
	if err := os.MkdirAll(g.RootDir, 0o755); err != nil {
		return "", fmt.Errorf("create files dir: %w", err)
	}
	filename = filepath.Base(filename)
	return filepath.Join(g.RootDir, filename), nil
}

func (g *ReportGenerator) addFont(pdf *gofpdf.Fpdf) {
	if g.FontPath != "" {
		if _, err := os.Stat(g.FontPath); err == nil {
			g.fontName = "DejaVu"
			pdf.AddUTF8Font(g.fontName, "", g.FontPath)
			pdf.AddUTF8Font(g.fontName, "B", g.FontPath)
			return
		}
	}
	g.fontName = "Helvetica"
}

func (g *ReportGenerator) sectionTitle(pdf *gofpdf.Fpdf, s string) {
	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 7, s, "", 1, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 11)
}

func (g *ReportGenerator) kvLine(pdf *gofpdf.Fpdf, key, val string) {
	pdf.SetFont(g.fontName, "B", 11)
	pdf.CellFormat(45, 6, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 6, val, "", 1, "L", false, 0, "")
}

func (g *ReportGenerator) hr(pdf *gofpdf.Fpdf) {
	y := pdf.GetY() + 1.5
	pdf.SetLineWidth(0.2)
	pdf.Line(20, y, 190, y)
	pdf.SetY(y + 2)
}
