package excel

import (
	"github.com/xuri/excelize/v2"

	"github.com/blockon/contracts-service/internal/model"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate builds the contract ledger export: one summary sheet plus a
// detail sheet listing every registered contract.
func (g *Generator) Generate(contracts []model.Contract) ([]byte, error) {
	file := excelize.NewFile()

	summarySheet := "Summary"
	file.SetSheetName("Sheet1", summarySheet)
	if err := g.writeSummary(file, summarySheet, contracts); err != nil {
		return nil, err
	}

	detailSheet := "Contracts"
	file.NewSheet(detailSheet)
	if err := g.writeDetail(file, detailSheet, contracts); err != nil {
		return nil, err
	}

	file.SetActiveSheet(0)
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *Generator) writeSummary(file *excelize.File, sheet string, contracts []model.Contract) error {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	counts := map[model.ContractType]int{}
	for _, contract := range contracts {
		counts[contract.ContractType]++
	}

	set("A1", "Registered contracts")
	set("B1", len(contracts))
	set("A2", model.ContractTypeMonthlyRent.Label())
	set("B2", counts[model.ContractTypeMonthlyRent])
	set("A3", model.ContractTypeDepositLease.Label())
	set("B3", counts[model.ContractTypeDepositLease])
	set("A4", model.ContractTypeSale.Label())
	set("B4", counts[model.ContractTypeSale])

	_ = file.SetColWidth(sheet, "A", "A", 28)
	_ = file.SetColWidth(sheet, "B", "B", 14)
	return nil
}

func (g *Generator) writeDetail(file *excelize.File, sheet string, contracts []model.Contract) error {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	headers := []string{
		"Index",
		"Contract type",
		"Contract date",
		"Building type",
		"Building name",
		"Building address",
		"Agent account",
		"Seller account",
		"Buyer account",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		set(cell, header)
	}

	for rowIdx, contract := range contracts {
		row := rowIdx + 2
		values := []interface{}{
			contract.ContractIndex,
			contract.ContractType.Label(),
			contract.ContractDate.Format("2006-01-02"),
			string(contract.BuildingType),
			contract.BuildingName,
			contract.BuildingAddress,
			contract.AgentAddress,
			contract.SellerAddress,
			contract.BuyerAddress,
		}
		for colIdx, value := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, row)
			set(cell, value)
		}
	}

	_ = file.SetColWidth(sheet, "A", "A", 8)
	_ = file.SetColWidth(sheet, "B", "F", 20)
	_ = file.SetColWidth(sheet, "G", "I", 44)

	if len(contracts) == 0 {
		set("A2", "No contracts registered")
	}
	return nil
}
