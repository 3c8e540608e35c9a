package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"student", "total"},
		Rows:    [][]string{{"Ani, S.", "8.70"}, {"Budi", "6.50"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "student,total\n\"Ani, S.\",8.70\nBudi,6.50\n", string(out))
}

func TestDatasetRejectsRaggedRows(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{Headers: []string{"a", "b"}, Rows: [][]string{{"1"}}})
	require.Error(t, err)

	_, err = NewPDFExporter().Render(Dataset{})
	require.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	rows := make([][]string, 0, 80)
	for i := 0; i < 80; i++ {
		rows = append(rows, []string{"student", "PRESENT", "1", "0", "0", "0", "1", "100"})
	}
	out, err := NewPDFExporter().Render(Dataset{
		Title:    "Attendance",
		Subtitle: "Class WEB-01",
		Headers:  []string{"student", "status", "present", "late", "absent", "excused", "total", "rate"},
		Rows:     rows,
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestCertificateRenderer(t *testing.T) {
	out, err := NewCertificateRenderer("").Render(CertificateContent{
		Code:        "CERT-3-001",
		StudentName: "Ani",
		CourseName:  "Web Programming",
		IssueDate:   time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
		VerifyURL:   "http://localhost:8080/api/v1/certificates/verify/CERT-3-001",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = NewCertificateRenderer("").Render(CertificateContent{StudentName: "Ani"})
	require.Error(t, err)
}
