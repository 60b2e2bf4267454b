package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"strconv"
	"time"

	"yieldredirect/storage/audit"
)

// PayoutsCSV builds a CSV export for the supplied payouts and returns the
// serialised data alongside a SHA-256 checksum of the payload.
func PayoutsCSV(payouts []audit.Payout) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	header := []string{"receipt", "account", "token", "amount", "implicit", "paid_at"}
	if err := writer.Write(header); err != nil {
		return nil, "", err
	}
	for _, payout := range payouts {
		record := []string{
			payout.ReceiptID,
			payout.Account,
			payout.Token,
			amountString(payout),
			strconv.FormatBool(payout.Implicit),
			payout.At.UTC().Format(time.RFC3339Nano),
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	return data, checksum(data), nil
}

func amountString(payout audit.Payout) string {
	if payout.Amount == nil {
		return "0"
	}
	return payout.Amount.String()
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
