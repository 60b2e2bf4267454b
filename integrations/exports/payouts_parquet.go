package exports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"yieldredirect/storage/audit"
)

// Amounts stay decimal strings so wei-scale values survive the export.
type payoutRow struct {
	Receipt  string `parquet:"name=receipt, type=BYTE_ARRAY, convertedtype=UTF8"`
	Account  string `parquet:"name=account, type=BYTE_ARRAY, convertedtype=UTF8"`
	Token    string `parquet:"name=token, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount   string `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	Implicit bool   `parquet:"name=implicit, type=BOOLEAN"`
	PaidAt   string `parquet:"name=paid_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// PayoutsParquet builds a snappy-compressed Parquet export for the supplied
// payouts and returns the serialised file alongside a checksum.
func PayoutsParquet(payouts []audit.Payout) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(buffer), new(payoutRow), 1)
	if err != nil {
		return nil, "", fmt.Errorf("exports: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, payout := range payouts {
		row := &payoutRow{
			Receipt:  payout.ReceiptID,
			Account:  payout.Account,
			Token:    payout.Token,
			Amount:   amountString(payout),
			Implicit: payout.Implicit,
			PaidAt:   payout.At.UTC().Format(time.RFC3339Nano),
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return nil, "", fmt.Errorf("exports: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, "", fmt.Errorf("exports: parquet flush: %w", err)
	}
	data := buffer.Bytes()
	return data, checksum(data), nil
}
