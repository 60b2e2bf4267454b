package exports

import (
	"bytes"
	"encoding/json"
	"time"

	"yieldredirect/storage/audit"
)

type payoutLine struct {
	Receipt  string `json:"receipt"`
	Account  string `json:"account"`
	Token    string `json:"token"`
	Amount   string `json:"amount"`
	Implicit bool   `json:"implicit"`
	PaidAt   string `json:"paid_at"`
}

// PayoutsJSONL builds a JSON Lines export for the supplied payouts and
// returns the serialised payload alongside a checksum.
func PayoutsJSONL(payouts []audit.Payout) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, payout := range payouts {
		line := payoutLine{
			Receipt:  payout.ReceiptID,
			Account:  payout.Account,
			Token:    payout.Token,
			Amount:   amountString(payout),
			Implicit: payout.Implicit,
			PaidAt:   payout.At.UTC().Format(time.RFC3339Nano),
		}
		if err := encoder.Encode(line); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	return data, checksum(data), nil
}
