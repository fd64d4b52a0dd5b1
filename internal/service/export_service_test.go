package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusmesh/sams-api/internal/models"
	appErrors "github.com/campusmesh/sams-api/pkg/errors"
)

type stubCourseReportProvider struct {
	report *models.CourseReport
	err    error
}

func (s *stubCourseReportProvider) CourseReport(_ context.Context, _ models.Actor, _ string) (*models.CourseReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.report, nil
}

func exportTestReport() *models.CourseReport {
	return &models.CourseReport{
		CourseID:     "course-1",
		CourseCode:   "CS 101",
		CourseName:   "Intro to CS",
		SessionsHeld: 10,
		Students: []models.CourseReportRow{
			{StudentID: "stu-1", StudentName: "Ada Lovelace", SessionsHeld: 10, Present: 8, Late: 1, Absent: 1, Percentage: 90},
			{StudentID: "stu-2", StudentName: "Ben Stone", SessionsHeld: 10, Present: 10, Percentage: 100},
		},
	}
}

func TestExportServiceCourseReportCSV(t *testing.T) {
	svc := NewExportService(&stubCourseReportProvider{report: exportTestReport()}, ExportConfig{}, zap.NewNop(), nil, nil)

	file, err := svc.CourseReport(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin}, "course-1", ExportFormatCSV)
	require.NoError(t, err)

	assert.Equal(t, "text/csv", file.ContentType)
	assert.True(t, strings.HasPrefix(file.Filename, "attendance_cs_101_"))
	assert.True(t, strings.HasSuffix(file.Filename, ".csv"))

	body := string(file.Data)
	assert.Contains(t, body, "Student Name")
	assert.Contains(t, body, "Ada Lovelace")
	assert.Contains(t, body, "90.00")
}

func TestExportServiceCourseReportPDF(t *testing.T) {
	svc := NewExportService(&stubCourseReportProvider{report: exportTestReport()}, ExportConfig{}, zap.NewNop(), nil, nil)

	file, err := svc.CourseReport(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin}, "course-1", ExportFormatPDF)
	require.NoError(t, err)

	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, strings.HasSuffix(file.Filename, ".pdf"))
	require.NotEmpty(t, file.Data)
	assert.Equal(t, "%PDF", string(file.Data[:4]))
}

func TestExportServiceCourseReportUnknownFormat(t *testing.T) {
	svc := NewExportService(&stubCourseReportProvider{report: exportTestReport()}, ExportConfig{}, zap.NewNop(), nil, nil)

	_, err := svc.CourseReport(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin}, "course-1", "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportServiceCourseReportRowLimit(t *testing.T) {
	report := exportTestReport()
	svc := NewExportService(&stubCourseReportProvider{report: report}, ExportConfig{MaxRows: 1}, zap.NewNop(), nil, nil)

	_, err := svc.CourseReport(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleAdmin}, "course-1", ExportFormatCSV)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportServiceCourseReportPropagatesDenied(t *testing.T) {
	svc := NewExportService(&stubCourseReportProvider{err: appErrors.Clone(appErrors.ErrPermissionDenied, "")},
		ExportConfig{}, zap.NewNop(), nil, nil)

	_, err := svc.CourseReport(context.Background(), models.Actor{ID: "teacher-1", Role: models.RoleTeacher}, "course-1", ExportFormatCSV)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPermissionDenied.Code, appErrors.FromError(err).Code)
}
