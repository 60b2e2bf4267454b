package genesis

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"yieldredirect/crypto"
	"yieldredirect/native/params"
	"yieldredirect/native/strategy"
)

// Spec is the on-disk genesis document.
type Spec struct {
	GenesisTime         string         `toml:"genesis_time"`
	DepositToken        string         `toml:"deposit_token"`
	TargetToken         string         `toml:"target_token"`
	PermittedFarmTokens []string       `toml:"permitted_farm_tokens"`
	InitialStrategy     string         `toml:"initial_strategy"`
	Roles               RolesSpec      `toml:"roles"`
	Params              ParamsSpec     `toml:"params"`
	Strategies          []StrategySpec `toml:"strategies"`
	Alloc               []AllocSpec    `toml:"alloc"`
}

type RolesSpec struct {
	Governance   string   `toml:"governance"`
	Keepers      []string `toml:"keepers"`
	FeeRecipient string   `toml:"fee_recipient"`
}

// ParamsSpec leaves every field optional; unset values keep the defaults.
type ParamsSpec struct {
	CallFeeBps       *uint32 `toml:"call_fee_bps"`
	ProfitFeeBps     *uint32 `toml:"profit_fee_bps"`
	WithdrawalFeeBps *uint32 `toml:"withdrawal_fee_bps"`
	EpochDuration    string  `toml:"epoch_duration"`
	TVLCap           string  `toml:"tvl_cap"`
	MigrationDelay   string  `toml:"migration_delay"`
}

type StrategySpec struct {
	ID                string `toml:"id"`
	FarmToken         string `toml:"farm_token"`
	EmissionPerSecond string `toml:"emission_per_second"`
	// Price is a rational such as "3/2" or "1.5".
	Price string `toml:"price"`
}

type AllocSpec struct {
	Address string `toml:"address"`
	Token   string `toml:"token"`
	Amount  string `toml:"amount"`
}

// Genesis is the validated, typed form of a Spec.
type Genesis struct {
	Time                time.Time
	DepositToken        string
	TargetToken         string
	PermittedFarmTokens []string
	InitialStrategy     string
	Roles               params.Roles
	Params              params.Parameters
	Strategies          []strategy.FarmConfig
	Alloc               []Allocation
}

// Allocation is an initial token balance.
type Allocation struct {
	Address crypto.Address
	Token   string
	Amount  *big.Int
}

// LoadSpec decodes a TOML genesis file.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	return ParseSpec(data)
}

// ParseSpec decodes a TOML genesis document and rejects unknown keys.
func ParseSpec(data []byte) (*Spec, error) {
	var spec Spec
	meta, err := toml.Decode(string(data), &spec)
	if err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("decode genesis: unknown key %s", undecoded[0].String())
	}
	return &spec, nil
}

// Resolve validates the spec and converts it into typed values.
func (s *Spec) Resolve() (*Genesis, error) {
	if s == nil {
		return nil, fmt.Errorf("genesis spec must not be nil")
	}
	g := &Genesis{
		DepositToken:    strings.ToUpper(strings.TrimSpace(s.DepositToken)),
		TargetToken:     strings.ToUpper(strings.TrimSpace(s.TargetToken)),
		InitialStrategy: strategy.NormalizeID(s.InitialStrategy),
	}
	if g.DepositToken == "" || g.TargetToken == "" {
		return nil, fmt.Errorf("genesis: deposit_token and target_token are required")
	}
	if g.InitialStrategy == "" {
		return nil, fmt.Errorf("genesis: initial_strategy is required")
	}
	for _, token := range s.PermittedFarmTokens {
		if trimmed := strings.ToUpper(strings.TrimSpace(token)); trimmed != "" {
			g.PermittedFarmTokens = append(g.PermittedFarmTokens, trimmed)
		}
	}

	ts, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return nil, err
	}
	g.Time = ts

	if g.Roles, err = s.Roles.resolve(); err != nil {
		return nil, err
	}
	if g.Params, err = s.Params.resolve(); err != nil {
		return nil, err
	}

	found := false
	for i, spec := range s.Strategies {
		cfg, err := spec.resolve(g.DepositToken)
		if err != nil {
			return nil, fmt.Errorf("genesis: strategies[%d]: %w", i, err)
		}
		if cfg.ID == g.InitialStrategy {
			found = true
		}
		g.Strategies = append(g.Strategies, cfg)
	}
	if !found {
		return nil, fmt.Errorf("genesis: initial_strategy %q is not declared", g.InitialStrategy)
	}

	for i, alloc := range s.Alloc {
		addr, err := crypto.ParseAddress(alloc.Address)
		if err != nil {
			return nil, fmt.Errorf("genesis: alloc[%d]: %w", i, err)
		}
		amount, err := parseAmount(alloc.Amount)
		if err != nil || amount.Sign() <= 0 {
			return nil, fmt.Errorf("genesis: alloc[%d]: invalid amount %q", i, alloc.Amount)
		}
		token := strings.ToUpper(strings.TrimSpace(alloc.Token))
		if token == "" {
			token = g.DepositToken
		}
		g.Alloc = append(g.Alloc, Allocation{Address: addr, Token: token, Amount: amount})
	}
	return g, nil
}

func (r RolesSpec) resolve() (params.Roles, error) {
	var roles params.Roles
	var err error
	if roles.Governance, err = crypto.ParseAddress(r.Governance); err != nil {
		return params.Roles{}, fmt.Errorf("genesis: roles.governance: %w", err)
	}
	if roles.FeeRecipient, err = crypto.ParseAddress(r.FeeRecipient); err != nil {
		return params.Roles{}, fmt.Errorf("genesis: roles.fee_recipient: %w", err)
	}
	for i, keeper := range r.Keepers {
		addr, err := crypto.ParseAddress(keeper)
		if err != nil {
			return params.Roles{}, fmt.Errorf("genesis: roles.keepers[%d]: %w", i, err)
		}
		roles.Keepers = append(roles.Keepers, addr)
	}
	return roles, nil
}

func (p ParamsSpec) resolve() (params.Parameters, error) {
	out := params.DefaultParameters()
	if p.CallFeeBps != nil {
		out.CallFeeBps = *p.CallFeeBps
	}
	if p.ProfitFeeBps != nil {
		out.ProfitFeeBps = *p.ProfitFeeBps
	}
	if p.WithdrawalFeeBps != nil {
		out.WithdrawalFeeBps = *p.WithdrawalFeeBps
	}
	if strings.TrimSpace(p.EpochDuration) != "" {
		d, err := time.ParseDuration(p.EpochDuration)
		if err != nil {
			return params.Parameters{}, fmt.Errorf("genesis: params.epoch_duration: %w", err)
		}
		out.EpochDuration = d
	}
	if strings.TrimSpace(p.MigrationDelay) != "" {
		d, err := time.ParseDuration(p.MigrationDelay)
		if err != nil {
			return params.Parameters{}, fmt.Errorf("genesis: params.migration_delay: %w", err)
		}
		out.MigrationDelay = d
	}
	if strings.TrimSpace(p.TVLCap) != "" {
		limit, err := parseAmount(p.TVLCap)
		if err != nil {
			return params.Parameters{}, fmt.Errorf("genesis: params.tvl_cap: %w", err)
		}
		out.TVLCap = limit
	}
	if err := params.Validate(out); err != nil {
		return params.Parameters{}, fmt.Errorf("genesis: %w", err)
	}
	return out, nil
}

func (s StrategySpec) resolve(depositToken string) (strategy.FarmConfig, error) {
	emission, err := parseAmount(s.EmissionPerSecond)
	if err != nil {
		return strategy.FarmConfig{}, fmt.Errorf("emission_per_second: %w", err)
	}
	price, ok := new(big.Rat).SetString(strings.TrimSpace(s.Price))
	if !ok {
		return strategy.FarmConfig{}, fmt.Errorf("invalid price %q", s.Price)
	}
	return strategy.FarmConfig{
		ID:                strategy.NormalizeID(s.ID),
		Token:             depositToken,
		FarmToken:         strings.ToUpper(strings.TrimSpace(s.FarmToken)),
		EmissionPerSecond: emission,
		Price:             price,
	}, nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

func parseGenesisTime(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("genesis: invalid genesis_time: %w", err)
	}
	return ts.UTC(), nil
}
