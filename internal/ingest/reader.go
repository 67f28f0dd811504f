package ingest

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

// ReadJSON decodes a JSON array of records.
func ReadJSON(r io.Reader) ([]domain.TransactionRecord, error) {
	var records []domain.TransactionRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	return records, nil
}

// ReadCSV parses fraud model output with a header row. Known columns map to
// record fields; any other column is kept in Extra, as a number when it parses
// as one.
func ReadCSV(r io.Reader) ([]domain.TransactionRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []domain.TransactionRecord
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		rec, err := parseRow(header, row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

func parseRow(header, row []string) (domain.TransactionRecord, error) {
	var rec domain.TransactionRecord
	for i, col := range header {
		if i >= len(row) {
			break
		}
		val := strings.TrimSpace(row[i])
		if val == "" {
			continue
		}
		if err := setField(&rec, col, val); err != nil {
			return rec, fmt.Errorf("column %s: %w", col, err)
		}
	}
	return rec, nil
}

func setField(rec *domain.TransactionRecord, col, val string) error {
	switch col {
	case domain.FieldTransactionID:
		rec.ID = val
	case "transaction_amount":
		return parseFloat(val, &rec.Amount)
	case "avg_amount_30d":
		return parseFloat(val, &rec.AvgAmount30d)
	case domain.FieldFraudScore:
		return parseFloat(val, &rec.FraudScore)
	case "velocity_1h":
		return parseInt(val, &rec.Velocity1h)
	case "geo_mismatch":
		return parseInt(val, &rec.GeoMismatch)
	case "high_velocity_flag":
		return parseInt(val, &rec.HighVelocityFlag)
	case domain.FieldFraudPrediction:
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		rec.FraudPrediction = n
	case "merchant_category":
		rec.MerchantCategory = val
	case "transaction_country":
		rec.TransactionCountry = val
	case "customer_country":
		rec.CustomerCountry = val
	case "device_fingerprint_changed":
		b, err := parseBool(val)
		if err != nil {
			return err
		}
		rec.DeviceFingerprintChanged = &b
	case "transaction_timestamp":
		ts, err := domain.ParseTimestamp(val)
		if err != nil {
			return err
		}
		rec.Timestamp = &domain.Timestamp{Time: ts}
	default:
		if domain.ReservedField(col) {
			// Output columns of an already explained file.
			return nil
		}
		if rec.Extra == nil {
			rec.Extra = make(map[string]any)
		}
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			rec.Extra[col] = f
		} else {
			rec.Extra[col] = val
		}
	}
	return nil
}

func parseFloat(val string, dst **float64) error {
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return err
	}
	*dst = &f
	return nil
}

func parseInt(val string, dst **int) error {
	n, err := strconv.Atoi(val)
	if err != nil {
		// Some exports write integer columns as 1.0
		f, ferr := strconv.ParseFloat(val, 64)
		if ferr != nil || f != float64(int(f)) {
			return err
		}
		n = int(f)
	}
	*dst = &n
	return nil
}

// parseBool accepts the spellings pandas and spreadsheets produce.
func parseBool(val string) (bool, error) {
	switch strings.ToLower(val) {
	case "true", "1", "yes", "t":
		return true, nil
	case "false", "0", "no", "f":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", val)
}

// ReadFile reads records from path, as CSV when the extension is .csv and
// as a JSON array otherwise.
func ReadFile(path string) ([]domain.TransactionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return ReadCSV(f)
	}
	return ReadJSON(f)
}
