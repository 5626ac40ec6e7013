package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/blockon/contracts-service/internal/model"
)

type Generator struct {
	fontName string
}

func NewGenerator() *Generator {
	return &Generator{fontName: "Helvetica"}
}

// Generate renders the contract paper for a registered contract.
func (g *Generator) Generate(contract model.Contract) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetFont(g.fontName, "B", 16)
	pdf.CellFormat(0, 10, "Real Estate Transfer Contract", "", 1, "C", false, 0, "")

	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Contract No. %d — %s", contract.ContractIndex, contract.ContractType.Label()), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Contract date: %s", formatDate(contract.ContractDate)), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, "Parties", "", 1, "L", false, 0, "")
	addPartyRow(pdf, g.fontName, "Agent", contract.AgentAddress)
	addPartyRow(pdf, g.fontName, "Seller", contract.SellerAddress)
	addPartyRow(pdf, g.fontName, "Buyer", contract.BuyerAddress)
	pdf.Ln(4)

	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, "Property", "", 1, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 10)

	headers := []string{"Building type", "Name", "Address"}
	widths := []float64{40, 50, 80}
	drawTableRow(pdf, g.fontName, headers, widths, true)
	drawTableRow(pdf, g.fontName, []string{
		string(contract.BuildingType),
		safeValue(contract.BuildingName),
		safeValue(contract.BuildingAddress),
	}, widths, false)

	pdf.Ln(6)
	pdf.SetFont(g.fontName, "", 9)
	pdf.MultiCell(0, 5, fmt.Sprintf(
		"This contract was created on the distributed ledger by the agent account %s and assigned index %d. "+
			"The on-chain record is authoritative for the parties and the contract terms above.",
		contract.AgentAddress, contract.ContractIndex,
	), "", "L", false)

	pdf.Ln(8)
	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, "Signatures", "", 1, "L", false, 0, "")
	signatureBlock(pdf, g.fontName, "Seller")
	signatureBlock(pdf, g.fontName, "Buyer")
	signatureBlock(pdf, g.fontName, "Agent")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func addPartyRow(pdf *gofpdf.Fpdf, fontName, role, address string) {
	pdf.SetFont(fontName, "B", 10)
	pdf.CellFormat(25, 6, role, "", 0, "L", false, 0, "")
	pdf.SetFont(fontName, "", 10)
	pdf.CellFormat(0, 6, safeValue(address), "", 1, "L", false, 0, "")
}

func drawTableRow(pdf *gofpdf.Fpdf, fontName string, cols []string, widths []float64, header bool) {
	style := ""
	if header {
		style = "B"
	}
	pdf.SetFont(fontName, style, 10)
	for i, col := range cols {
		pdf.CellFormat(widths[i], 8, col, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)
}

func signatureBlock(pdf *gofpdf.Fpdf, fontName, label string) {
	pdf.SetFont(fontName, "", 11)
	pdf.CellFormat(0, 8, fmt.Sprintf("%s: ______________________", label), "", 1, "L", false, 0, "")
}

func safeValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return "—"
	}
	return value
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	return t.Format("2006-01-02")
}
