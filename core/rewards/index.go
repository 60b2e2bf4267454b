package rewards

import (
	"errors"
	"math/big"
)

// scale is the fixed-point unit of the accumulated reward per share.
const scale = int64(1_000_000_000_000_000_000)

var (
	scaleBig = big.NewInt(scale)

	errIndexDecrease = errors.New("rewards: accumulator may not decrease")
)

// Index is the accumulated-reward-per-share accumulator of a reward pool.
// Acc only ever grows. Carry keeps the remainder of reward*Scale that integer
// division could not hand out, so the next accrual re-injects it instead of
// leaking it.
type Index struct {
	Acc   *big.Int `json:"acc"`
	Carry *big.Int `json:"carry,omitempty"`
}

// NewIndex returns an accumulator starting at zero.
func NewIndex() *Index {
	return &Index{Acc: big.NewInt(0), Carry: big.NewInt(0)}
}

// Unit returns the scaling factor applied to the accumulator.
func Unit() *big.Int {
	return new(big.Int).Set(scaleBig)
}

// Clone returns a deep copy of the index.
func (i *Index) Clone() *Index {
	if i == nil {
		return NewIndex()
	}
	return &Index{Acc: copyBigInt(i.Acc), Carry: copyBigInt(i.Carry)}
}

// Value returns a copy of the accumulator.
func (i *Index) Value() *big.Int {
	if i == nil {
		return big.NewInt(0)
	}
	return copyBigInt(i.Acc)
}

// SetValue overrides the accumulator. Decreasing values are rejected.
func (i *Index) SetValue(value *big.Int) error {
	if i == nil {
		return nil
	}
	i.ensure()
	if value == nil || value.Cmp(i.Acc) < 0 {
		return errIndexDecrease
	}
	i.Acc = new(big.Int).Set(value)
	return nil
}

// Accrue credits reward across totalShares. It returns the accumulator
// increment and whether the index changed. Nothing happens when there are no
// shares or no reward; the reward is then left undistributed in the pool.
func (i *Index) Accrue(reward, totalShares *big.Int) (*big.Int, bool) {
	if i == nil || reward == nil || totalShares == nil {
		return big.NewInt(0), false
	}
	if reward.Sign() <= 0 || totalShares.Sign() <= 0 {
		return big.NewInt(0), false
	}
	i.ensure()
	numerator := new(big.Int).Mul(reward, scaleBig)
	numerator.Add(numerator, i.Carry)
	delta, remainder := new(big.Int).QuoRem(numerator, totalShares, new(big.Int))
	i.Carry = remainder
	if delta.Sign() == 0 {
		return delta, false
	}
	i.Acc.Add(i.Acc, delta)
	return new(big.Int).Set(delta), true
}

// Pending returns the reward earned by principal since checkpoint.
func (i *Index) Pending(principal, checkpoint *big.Int) *big.Int {
	if i == nil || principal == nil || principal.Sign() <= 0 {
		return big.NewInt(0)
	}
	diff := difference(i.Acc, checkpoint)
	if diff.Sign() <= 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(principal, diff)
	return out.Quo(out, scaleBig)
}

func (i *Index) ensure() {
	if i.Acc == nil {
		i.Acc = big.NewInt(0)
	}
	if i.Carry == nil {
		i.Carry = big.NewInt(0)
	}
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func difference(a, b *big.Int) *big.Int {
	if a == nil {
		return big.NewInt(0)
	}
	if b == nil {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Sub(a, b)
}
