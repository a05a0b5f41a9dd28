package utils

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ArowuTest/uptime-rewards-backend/internal/models"
	"github.com/ArowuTest/uptime-rewards-backend/internal/services"
	"golang.org/x/exp/slog"
)

// CSVImporter posts reward rows exported by other reward systems to the ledger.
//
// Required columns are amount and source, plus userId or walletAddress. The optional
// idempotencyKey column defaults to "import:<batch>:<line>", where line is the file
// line the row starts on, so re-importing the same file credits nothing twice. Rows
// naming node_uptime or a sessionId fail, those belong to node session payouts.
type CSVImporter struct {
	ledger *services.LedgerService
	users  *services.UserService
}

// ImportResult summarizes one import run
type ImportResult struct {
	Rows     int      `json:"rows"`
	Credited int      `json:"credited"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// NewCSVImporter creates a new CSVImporter
func NewCSVImporter(ledger *services.LedgerService, users *services.UserService) *CSVImporter {
	return &CSVImporter{ledger: ledger, users: users}
}

// ImportFile imports a CSV file, using its base name as the batch name
func (i *CSVImporter) ImportFile(ctx context.Context, filePath string) (*ImportResult, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return i.Import(ctx, file, filepath.Base(filePath))
}

// Import reads rows from r and credits each one. Row failures are collected, not fatal.
func (i *CSVImporter) Import(ctx context.Context, r io.Reader, batch string) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for idx, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = idx
	}
	for _, required := range []string{"amount", "source"} {
		if _, ok := columns[strings.ToLower(required)]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}
	_, hasUser := columns["userid"]
	_, hasWallet := columns["walletaddress"]
	if !hasUser && !hasWallet {
		return nil, fmt.Errorf("missing userId or walletAddress column")
	}

	field := func(record []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	result := &ImportResult{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return result, fmt.Errorf("read row: %w", err)
		}
		line, _ := reader.FieldPos(0)
		result.Rows++

		fail := func(err error) {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
		}

		amount, err := strconv.ParseInt(field(record, "amount"), 10, 64)
		if err != nil {
			fail(fmt.Errorf("invalid amount: %w", err))
			continue
		}
		if amount == 0 {
			result.Skipped++
			continue
		}

		userID, err := i.users.Resolve(ctx, field(record, "userid"), field(record, "walletaddress"), true)
		if err != nil {
			fail(err)
			continue
		}

		key := field(record, "idempotencykey")
		if key == "" {
			key = fmt.Sprintf("import:%s:%d", batch, line)
		}

		_, err = i.ledger.CreditExternal(ctx, services.CreditInput{
			UserID:         userID,
			Amount:         amount,
			Source:         models.LedgerSource(field(record, "source")),
			SessionID:      field(record, "sessionid"),
			IdempotencyKey: key,
		})
		if err != nil {
			fail(err)
			continue
		}
		result.Credited++
	}

	slog.Info("CSV import finished", "batch", batch,
		"rows", result.Rows, "credited", result.Credited, "skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}
