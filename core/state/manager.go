package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"yieldredirect/crypto"
	"yieldredirect/native/distributor"
	"yieldredirect/native/strategy"
	"yieldredirect/native/vault"
	"yieldredirect/storage"
)

// Manager stores every ledger record as JSON in a key/value database. It
// implements the state interfaces of the bank, params, strategy, vault and
// distributor engines.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database,
// usually a storage.Overlay scoped to one operation.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// KVPut encodes value as JSON under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("kv: decode %s: %w", key, err)
	}
	return true, nil
}

// KVDelete removes key.
func (m *Manager) KVDelete(key []byte) error {
	return m.db.Delete(key)
}

// --- params.StoreState ---

func (m *Manager) ParamStoreSet(name string, value []byte) error {
	return m.db.Put(ParamStoreKey(name), append([]byte(nil), value...))
}

func (m *Manager) ParamStoreGet(name string) ([]byte, bool, error) {
	data, err := m.db.Get(ParamStoreKey(name))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// --- bank.State ---

func (m *Manager) BankBalance(token string, addr crypto.Address) (*big.Int, error) {
	return m.amount(BalanceKey(token, addr))
}

func (m *Manager) SetBankBalance(token string, addr crypto.Address, amount *big.Int) error {
	return m.putAmount(BalanceKey(token, addr), amount)
}

func (m *Manager) BankAllowance(token string, owner, spender crypto.Address) (*big.Int, error) {
	return m.amount(AllowanceKey(token, owner, spender))
}

func (m *Manager) SetBankAllowance(token string, owner, spender crypto.Address, amount *big.Int) error {
	return m.putAmount(AllowanceKey(token, owner, spender), amount)
}

func (m *Manager) BankSupply(token string) (*big.Int, error) {
	return m.amount(SupplyKey(token))
}

func (m *Manager) SetBankSupply(token string, amount *big.Int) error {
	return m.putAmount(SupplyKey(token), amount)
}

func (m *Manager) amount(key []byte) (*big.Int, error) {
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	value, ok := new(big.Int).SetString(string(data), 10)
	if !ok {
		return nil, fmt.Errorf("state: corrupt amount under %s", key)
	}
	return value, nil
}

// putAmount stores decimal amounts; zero deletes the key so empty accounts
// leave no residue.
func (m *Manager) putAmount(key []byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return m.db.Delete(key)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative amount under %s", key)
	}
	return m.db.Put(key, []byte(amount.String()))
}

// --- strategy.State ---

func (m *Manager) StrategyRecord(id string) (*strategy.Record, error) {
	var record strategy.Record
	ok, err := m.KVGet(StrategyKey(id), &record)
	if err != nil || !ok {
		return nil, err
	}
	return &record, nil
}

func (m *Manager) PutStrategyRecord(record *strategy.Record) error {
	if record == nil {
		return fmt.Errorf("state: nil strategy record")
	}
	return m.KVPut(StrategyKey(record.ID), record)
}

// --- vault state ---

func (m *Manager) Vault() (*vault.Vault, error) {
	var v vault.Vault
	ok, err := m.KVGet(vaultKeyBytes, &v)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

func (m *Manager) PutVault(v *vault.Vault) error {
	return m.KVPut(vaultKeyBytes, v)
}

func (m *Manager) Depositor(addr crypto.Address) (*vault.Depositor, error) {
	var d vault.Depositor
	ok, err := m.KVGet(DepositorKey(addr), &d)
	if err != nil || !ok {
		return nil, err
	}
	return &d, nil
}

func (m *Manager) PutDepositor(d *vault.Depositor) error {
	return m.KVPut(DepositorKey(d.Address), d)
}

func (m *Manager) DeleteDepositor(addr crypto.Address) error {
	return m.db.Delete(DepositorKey(addr))
}

// Depositors lists every open vault position in key order.
func (m *Manager) Depositors() ([]*vault.Depositor, error) {
	var out []*vault.Depositor
	err := m.iterate(vaultDepositorPrefix, func(value []byte) error {
		var d vault.Depositor
		if err := json.Unmarshal(value, &d); err != nil {
			return err
		}
		out = append(out, &d)
		return nil
	})
	return out, err
}

// --- distributor state ---

func (m *Manager) Distributor() (*distributor.Distributor, error) {
	var d distributor.Distributor
	ok, err := m.KVGet(distributorKeyBytes, &d)
	if err != nil || !ok {
		return nil, err
	}
	return &d, nil
}

func (m *Manager) PutDistributor(d *distributor.Distributor) error {
	return m.KVPut(distributorKeyBytes, d)
}

func (m *Manager) DistributorClaim(addr crypto.Address) (*distributor.Claim, error) {
	var c distributor.Claim
	ok, err := m.KVGet(ClaimKey(addr), &c)
	if err != nil || !ok {
		return nil, err
	}
	return &c, nil
}

func (m *Manager) PutDistributorClaim(c *distributor.Claim) error {
	return m.KVPut(ClaimKey(c.Address), c)
}

func (m *Manager) DeleteDistributorClaim(addr crypto.Address) error {
	return m.db.Delete(ClaimKey(addr))
}

// DistributorClaims lists every stored claim in key order.
func (m *Manager) DistributorClaims() ([]*distributor.Claim, error) {
	var out []*distributor.Claim
	err := m.iterate(distributorClaimPfx, func(value []byte) error {
		var c distributor.Claim
		if err := json.Unmarshal(value, &c); err != nil {
			return err
		}
		out = append(out, &c)
		return nil
	})
	return out, err
}

func (m *Manager) iterate(prefix []byte, decode func(value []byte) error) error {
	var decodeErr error
	err := m.db.Iterate(prefix, func(key, value []byte) bool {
		if err := decode(value); err != nil {
			decodeErr = fmt.Errorf("state: decode %s: %w", key, err)
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	return decodeErr
}
