// Package export renders finance records as an Excel workbook for the
// treasurer's books.
package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/projection"
)

const (
	SheetSummary        = "Summary"
	SheetReimbursements = "Reimbursements"
	SheetLineItems      = "Line Items"
	SheetDeposits       = "Deposits"
)

var (
	reimbursementHeader = []interface{}{"ID", "Title", "Submitted By", "Department", "Payment Method", "Date of Purchase", "Amount", "Status", "Submitted At"}
	lineItemHeader      = []interface{}{"Reimbursement ID", "#", "Description", "Category", "Amount", "Receipt"}
	depositHeader       = []interface{}{"ID", "Title", "Submitted By", "Deposit Date", "Method", "Purpose", "Reference", "Amount", "Status", "Verified By"}
)

// Data is the content of one export
type Data struct {
	Reimbursements []*entity.Reimbursement
	Deposits       []*entity.Deposit
}

// WorkbookWriter builds finance workbooks
type WorkbookWriter struct {
	logger *zap.Logger
}

// NewWorkbookWriter creates a new workbook writer
func NewWorkbookWriter(logger *zap.Logger) *WorkbookWriter {
	return &WorkbookWriter{logger: logger}
}

// Write renders data as an xlsx document to w
func (ww *WorkbookWriter) Write(w io.Writer, data Data) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	for _, name := range []string{SheetReimbursements, SheetLineItems, SheetDeposits} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	if err := ww.writeSummary(f, data); err != nil {
		return err
	}
	if err := ww.writeReimbursements(f, data.Reimbursements); err != nil {
		return err
	}
	if err := ww.writeDeposits(f, data.Deposits); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	ww.logger.Info("Finance workbook exported",
		zap.Int("reimbursements", len(data.Reimbursements)),
		zap.Int("deposits", len(data.Deposits)))
	return nil
}

func (ww *WorkbookWriter) writeSummary(f *excelize.File, data Data) error {
	reimb := projection.Compute(data.Reimbursements, projection.Filter{})
	dep := projection.Compute(data.Deposits, projection.Filter{})

	rows := [][]interface{}{
		{"Collection", "Status", "Count", "Amount"},
	}
	for _, status := range []entity.Status{entity.StatusSubmitted, entity.StatusApproved, entity.StatusDeclined, entity.StatusPaid} {
		rows = append(rows, []interface{}{"Reimbursements", string(status), reimb.Count(status), money(reimb.SumFor(status))})
	}
	for _, status := range []entity.Status{entity.StatusPending, entity.StatusVerified, entity.StatusRejected} {
		rows = append(rows, []interface{}{"Deposits", string(status), dep.Count(status), money(dep.SumFor(status))})
	}
	return writeRows(f, SheetSummary, rows)
}

func (ww *WorkbookWriter) writeReimbursements(f *excelize.File, recs []*entity.Reimbursement) error {
	rows := [][]interface{}{reimbursementHeader}
	items := [][]interface{}{lineItemHeader}

	for _, r := range recs {
		rows = append(rows, []interface{}{
			r.ID,
			r.Title,
			submitter(r.SubmitterName, r.SubmittedBy),
			r.Department,
			r.PaymentMethod,
			r.DateOfPurchase.Format("2006-01-02"),
			money(r.Amount),
			string(r.Status),
			r.CreatedAt.UTC().Format("2006-01-02 15:04"),
		})
		for i, item := range r.LineItems {
			items = append(items, []interface{}{
				r.ID,
				i + 1,
				item.Description,
				item.Category,
				money(item.Amount),
				item.ReceiptRef,
			})
		}
	}

	if err := writeRows(f, SheetReimbursements, rows); err != nil {
		return err
	}
	return writeRows(f, SheetLineItems, items)
}

func (ww *WorkbookWriter) writeDeposits(f *excelize.File, deps []*entity.Deposit) error {
	rows := [][]interface{}{depositHeader}
	for _, d := range deps {
		rows = append(rows, []interface{}{
			d.ID,
			d.Title,
			submitter(d.SubmitterName, d.SubmittedBy),
			d.DepositDate.Format("2006-01-02"),
			d.DepositMethod,
			d.Purpose,
			d.ReferenceNumber,
			money(d.Amount),
			string(d.Status),
			d.VerifiedBy,
		})
	}
	return writeRows(f, SheetDeposits, rows)
}

// money rounds to cents for the spreadsheet; the store keeps the exact value
func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func submitter(name, id string) string {
	if name == "" {
		return id
	}
	return name
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
