package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"
)

// CertificateContent is what gets printed on a course certificate.
type CertificateContent struct {
	Code        string
	StudentName string
	CourseName  string
	ClassName   string
	IssueDate   time.Time
	VerifyURL   string
}

// CertificateRenderer draws a landscape certificate with a QR code pointing at the verification URL.
type CertificateRenderer struct {
	Issuer string
}

// NewCertificateRenderer builds a renderer signing documents as issuer.
func NewCertificateRenderer(issuer string) *CertificateRenderer {
	if issuer == "" {
		issuer = "Short Course Center"
	}
	return &CertificateRenderer{Issuer: issuer}
}

// Render returns the PDF bytes.
func (r *CertificateRenderer) Render(c CertificateContent) ([]byte, error) {
	if c.Code == "" || c.StudentName == "" {
		return nil, fmt.Errorf("certificate needs a code and a student name")
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pdf.SetDrawColor(40, 70, 120)
	pdf.SetLineWidth(1.5)
	pdf.Rect(10, 10, 277, 190, "D")
	pdf.SetLineWidth(0.4)
	pdf.Rect(14, 14, 269, 182, "D")

	pdf.SetY(32)
	pdf.SetFont("Times", "B", 30)
	pdf.CellFormat(0, 14, "CERTIFICATE OF COMPLETION", "", 1, "C", false, 0, "")
	pdf.SetFont("Times", "", 14)
	pdf.CellFormat(0, 10, "This certifies that", "", 1, "C", false, 0, "")
	pdf.Ln(2)
	pdf.SetFont("Times", "B", 26)
	pdf.CellFormat(0, 14, c.StudentName, "", 1, "C", false, 0, "")
	pdf.Ln(2)
	pdf.SetFont("Times", "", 14)
	pdf.CellFormat(0, 9, "has successfully completed the course", "", 1, "C", false, 0, "")
	pdf.SetFont("Times", "B", 18)
	pdf.CellFormat(0, 11, c.CourseName, "", 1, "C", false, 0, "")
	if c.ClassName != "" {
		pdf.SetFont("Times", "I", 12)
		pdf.CellFormat(0, 8, c.ClassName, "", 1, "C", false, 0, "")
	}

	pdf.SetXY(24, 160)
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(120, 7, "Certificate no. "+c.Code, "", 2, "L", false, 0, "")
	if !c.IssueDate.IsZero() {
		pdf.CellFormat(120, 7, "Issued on "+c.IssueDate.Format("2 January 2006"), "", 2, "L", false, 0, "")
	}
	pdf.CellFormat(120, 7, r.Issuer, "", 2, "L", false, 0, "")

	if c.VerifyURL != "" {
		png, err := qrcode.Encode(c.VerifyURL, qrcode.Medium, 256)
		if err != nil {
			return nil, fmt.Errorf("encode verification qr: %w", err)
		}
		name := "qr-" + strings.ToLower(c.Code)
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
		pdf.ImageOptions(name, 237, 150, 36, 36, false, opts, 0, "")
		pdf.SetXY(222, 187)
		pdf.SetFont("Arial", "", 7)
		pdf.CellFormat(66, 4, "Scan to verify", "", 0, "C", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}
