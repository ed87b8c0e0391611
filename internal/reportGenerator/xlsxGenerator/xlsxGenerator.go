package xlsxGenerator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hyopark/stock_master_bridge/internal/model"
	"github.com/hyopark/stock_master_bridge/utils"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Security Master"

var headers = []string{"code", "name_kr", "name_en", "market", "category_l1", "category_l2", "is_active", "listed_date", "delisted_date"}

type XLSXGenerator struct{}

func New() *XLSXGenerator {
	return &XLSXGenerator{}
}

// Generate renders the security master into one xlsx sheet, returning the
// file bytes and extension.
func (g *XLSXGenerator) Generate(ctx context.Context, securities []model.Security) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XLSXGenerator.Generate"

	if len(securities) == 0 {
		return nil, "", errors.New("empty securities")
	}

	slog.Debug("Generate start", slog.String("rqID", rqID), slog.String("op", op), slog.Int("count", len(securities)))

	f := excelize.NewFile()
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Error("got error while closing file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", closeErr.Error()))
		}
	}()

	if _, err = f.NewSheet(sheetName); err != nil {
		slog.Error("got error while creating NewSheet", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	if err = g.fillSheet(f, securities); err != nil {
		return nil, "", err
	}

	if err = f.DeleteSheet("Sheet1"); err != nil {
		slog.Error("got error while deleting Sheet1", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		slog.Error("got error while saving file to bytes buffer", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	slog.Debug("Generate completed", slog.String("rqID", rqID), slog.String("op", op))

	return buf.Bytes(), ".xlsx", nil
}

func (g *XLSXGenerator) fillSheet(f *excelize.File, securities []model.Security) error {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Font: &excelize.Font{
			Bold: true,
			Size: 11,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{"#cfe2f3"},
		},
	})
	if err != nil {
		return err
	}

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStr(sheetName, cell, header); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("apply header style: %w", err)
		}
	}

	for i, security := range securities {
		row := i + 2
		values := []any{
			security.Code,
			security.NameKr,
			strOrEmpty(security.NameEn),
			security.Market,
			strOrEmpty(security.CategoryL1),
			strOrEmpty(security.CategoryL2),
			security.IsActive,
			strOrEmpty(security.ListedDate),
			strOrEmpty(security.DelistedDate),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return err
			}
		}
	}

	return nil
}

func strOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
