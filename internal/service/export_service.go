package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campusmesh/sams-api/internal/models"
	appErrors "github.com/campusmesh/sams-api/pkg/errors"
	"github.com/campusmesh/sams-api/pkg/export"
)

// ExportFormat selects the rendering of a report export.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type courseReportProvider interface {
	CourseReport(ctx context.Context, actor models.Actor, courseID string) (*models.CourseReport, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	MaxRows int
}

// ExportFile is a rendered export ready to stream to the client.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders course attendance reports as CSV or PDF. Exports run
// synchronously inside the request; there is no artifact store.
type ExportService struct {
	reports courseReportProvider
	csv     csvRenderer
	pdf     pdfRenderer
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(reports courseReportProvider, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 5000
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{reports: reports, csv: csv, pdf: pdf, logger: logger, cfg: cfg}
}

// CourseReport renders the per-student attendance table of one course in the
// requested format. Authorization follows the underlying report: admins and
// the course's teacher.
func (s *ExportService) CourseReport(ctx context.Context, actor models.Actor, courseID string, format ExportFormat) (*ExportFile, error) {
	report, err := s.reports.CourseReport(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}
	if len(report.Students) > s.cfg.MaxRows {
		return nil, appErrors.Clone(appErrors.ErrValidation, "report exceeds the export row limit")
	}

	dataset := buildCourseReportDataset(report)

	var payload []byte
	var contentType string
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv"
	case ExportFormatPDF:
		title := fmt.Sprintf("Attendance Report %s", report.CourseCode)
		payload, err = s.pdf.Render(dataset, title)
		contentType = "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	file := &ExportFile{
		Filename:    buildExportFilename(report.CourseCode, format),
		ContentType: contentType,
		Data:        payload,
	}
	s.logger.Info("course report exported",
		zap.String("course_id", courseID),
		zap.String("format", string(format)),
		zap.Int("rows", len(report.Students)))
	return file, nil
}

func buildCourseReportDataset(report *models.CourseReport) export.Dataset {
	headers := []string{"Student No", "Student Name", "Sessions Held", "Present", "Late", "Absent", "Percentage"}
	rows := make([]map[string]string, 0, len(report.Students))
	for _, row := range report.Students {
		studentNo := ""
		if row.StudentNo != nil {
			studentNo = *row.StudentNo
		}
		rows = append(rows, map[string]string{
			"Student No":    studentNo,
			"Student Name":  row.StudentName,
			"Sessions Held": strconv.Itoa(row.SessionsHeld),
			"Present":       strconv.Itoa(row.Present),
			"Late":          strconv.Itoa(row.Late),
			"Absent":        strconv.Itoa(row.Absent),
			"Percentage":    strconv.FormatFloat(row.Percentage, 'f', 2, 64),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func buildExportFilename(courseCode string, format ExportFormat) string {
	code := strings.ToLower(strings.ReplaceAll(courseCode, " ", "_"))
	if code == "" {
		code = "course"
	}
	return fmt.Sprintf("attendance_%s_%s.%s", code, time.Now().UTC().Format("20060102"), format)
}
