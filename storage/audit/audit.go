package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"yieldredirect/core/events"
	"yieldredirect/core/types"
)

// ErrDSNRequired is returned when no database location is configured.
var ErrDSNRequired = errors.New("audit: dsn must be configured")

// ReceiptRecord is the persisted form of a committed operation.
type ReceiptRecord struct {
	ID        string    `gorm:"size:36;primaryKey"`
	Operation string    `gorm:"size:64;index"`
	Caller    string    `gorm:"size:128;index"`
	Events    string    `gorm:"type:text"`
	At        time.Time `gorm:"index"`
	CreatedAt time.Time
}

// PayoutRecord is one reward transfer extracted from a receipt.
type PayoutRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	ReceiptID string    `gorm:"size:36;index"`
	Account   string    `gorm:"size:128;index"`
	Token     string    `gorm:"size:32;index"`
	Amount    string    `gorm:"size:80"`
	Implicit  bool
	At        time.Time `gorm:"index"`
}

// Payout is a decoded PayoutRecord.
type Payout struct {
	ReceiptID string
	Account   string
	Token     string
	Amount    *big.Int
	Implicit  bool
	At        time.Time
}

// Filter narrows receipt and payout queries. Zero values match everything.
type Filter struct {
	Account   string
	Operation string
	Token     string
	Since     time.Time
	Until     time.Time
	Limit     int
}

// Store keeps the operation history in a SQL database through gorm.
type Store struct {
	db *gorm.DB
}

// Open connects to dsn. postgres:// URLs use the postgres driver; anything
// else is treated as a sqlite path or DSN.
func Open(dsn string) (*Store, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrDSNRequired
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}
	return New(db)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, ErrDSNRequired
	}
	if err := db.AutoMigrate(&ReceiptRecord{}, &PayoutRecord{}); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record persists receipt and the payouts it carries in one transaction.
func (s *Store) Record(ctx context.Context, receipt *types.Receipt) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("audit: store not configured")
	}
	if receipt == nil || receipt.ID == "" {
		return fmt.Errorf("audit: receipt id required")
	}
	encoded, err := json.Marshal(receipt.Events)
	if err != nil {
		return fmt.Errorf("audit: encode events: %w", err)
	}
	record := ReceiptRecord{
		ID:        receipt.ID,
		Operation: receipt.Operation,
		Caller:    receipt.Caller,
		Events:    string(encoded),
		At:        receipt.At.UTC(),
	}
	var payouts []PayoutRecord
	for _, evt := range receipt.EventsOfType(events.TypeRewardsClaimed) {
		implicit, _ := strconv.ParseBool(evt.Attributes["implicit"])
		payouts = append(payouts, PayoutRecord{
			ReceiptID: receipt.ID,
			Account:   evt.Attributes["account"],
			Token:     evt.Attributes["token"],
			Amount:    evt.Attributes["amount"],
			Implicit:  implicit,
			At:        record.At,
		})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("audit: insert receipt: %w", err)
		}
		if len(payouts) > 0 {
			if err := tx.Create(&payouts).Error; err != nil {
				return fmt.Errorf("audit: insert payouts: %w", err)
			}
		}
		return nil
	})
}

// Receipts returns matching receipts, newest first.
func (s *Store) Receipts(ctx context.Context, filter Filter) ([]*types.Receipt, error) {
	query := s.db.WithContext(ctx).Model(&ReceiptRecord{})
	if filter.Account != "" {
		query = query.Where("caller = ?", filter.Account)
	}
	if filter.Operation != "" {
		query = query.Where("operation = ?", filter.Operation)
	}
	query = applyWindow(query, filter)
	var records []ReceiptRecord
	if err := query.Order("at DESC").Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("audit: query receipts: %w", err)
	}
	out := make([]*types.Receipt, 0, len(records))
	for _, record := range records {
		receipt := &types.Receipt{
			ID:        record.ID,
			Operation: record.Operation,
			Caller:    record.Caller,
			At:        record.At.UTC(),
		}
		if record.Events != "" {
			if err := json.Unmarshal([]byte(record.Events), &receipt.Events); err != nil {
				return nil, fmt.Errorf("audit: decode receipt %s: %w", record.ID, err)
			}
		}
		out = append(out, receipt)
	}
	return out, nil
}

// Payouts returns matching payouts in chronological order.
func (s *Store) Payouts(ctx context.Context, filter Filter) ([]Payout, error) {
	query := s.db.WithContext(ctx).Model(&PayoutRecord{})
	if filter.Account != "" {
		query = query.Where("account = ?", filter.Account)
	}
	if filter.Token != "" {
		query = query.Where("token = ?", strings.ToUpper(filter.Token))
	}
	query = applyWindow(query, filter)
	var records []PayoutRecord
	if err := query.Order("at ASC").Order("id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("audit: query payouts: %w", err)
	}
	out := make([]Payout, 0, len(records))
	for _, record := range records {
		amount, ok := new(big.Int).SetString(record.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("audit: corrupt payout amount %q", record.Amount)
		}
		out = append(out, Payout{
			ReceiptID: record.ReceiptID,
			Account:   record.Account,
			Token:     record.Token,
			Amount:    amount,
			Implicit:  record.Implicit,
			At:        record.At.UTC(),
		})
	}
	return out, nil
}

func applyWindow(query *gorm.DB, filter Filter) *gorm.DB {
	if !filter.Since.IsZero() {
		query = query.Where("at >= ?", filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		query = query.Where("at < ?", filter.Until.UTC())
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	return query
}
