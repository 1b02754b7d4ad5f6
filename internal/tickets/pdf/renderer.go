package pdf

import (
	"bytes"
	"fmt"
	"image/png"
	"time"

	"github.com/signintech/gopdf"

	"parlomo-ticketing/internal/models"
)

const defaultFontPath = "./fonts/DejaVuSans.ttf"

// Renderer produces a printable A4 ticket with the embedded QR image.
type Renderer struct {
	fontPath string
}

func NewRenderer(fontPath string) *Renderer {
	if fontPath == "" {
		fontPath = defaultFontPath
	}
	return &Renderer{fontPath: fontPath}
}

func (r *Renderer) Render(ticket models.Ticket, ticketType *models.TicketType) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := pdf.AddTTFFont("ticket", r.fontPath); err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}
	if err := pdf.SetFont("ticket", "", 14); err != nil {
		return nil, fmt.Errorf("failed to set font: %w", err)
	}

	pdf.SetX(40)
	pdf.SetY(30)
	pdf.Cell(nil, "EVENT TICKET")

	pdf.SetY(60)
	writeTicketInfo(pdf, ticket, ticketType)

	if len(ticket.QRCode) > 0 {
		pdf.SetY(pdf.GetY() + 20)
		drawQRCode(pdf, ticket.QRCode)
	}

	pdf.SetY(260)
	pdf.SetX(50)
	pdf.Cell(nil, "Present this ticket at the venue entrance.")

	var buf bytes.Buffer
	if err := pdf.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTicketInfo(pdf *gopdf.GoPdf, ticket models.Ticket, ticketType *models.TicketType) {
	typeName := ticket.TicketTypeID
	if ticketType != nil {
		typeName = ticketType.Name
	}

	info := []struct {
		Label string
		Value string
	}{
		{"Ticket", ticket.Code},
		{"Type", typeName},
		{"Attendee", ticket.AttendeeName},
		{"Event", ticket.EventID},
		{"Seat", ticket.SeatID},
		{"Barcode", ticket.BarcodeNumber},
		{"Issued", ticket.GeneratedAt.Format(time.DateTime)},
	}

	for _, item := range info {
		if item.Value == "" {
			continue
		}
		pdf.SetX(40)
		pdf.Cell(nil, item.Label+": "+item.Value)
		pdf.Br(20)
	}
}

func drawQRCode(pdf *gopdf.GoPdf, qrCode []byte) {
	img, err := png.Decode(bytes.NewReader(qrCode))
	if err != nil {
		pdf.Cell(nil, "QR code unavailable")
		return
	}

	rect := &gopdf.Rect{W: 100, H: 100}
	if err := pdf.ImageFrom(img, 100, pdf.GetY(), rect); err != nil {
		pdf.Cell(nil, "QR code unavailable")
	}
}
