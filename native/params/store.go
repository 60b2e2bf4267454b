package params

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StoreState captures the subset of state manager capabilities required by the
// parameter helpers.
type StoreState interface {
	ParamStoreSet(name string, value []byte) error
	ParamStoreGet(name string) ([]byte, bool, error)
}

// Store provides typed accessors for governance-controlled parameters.
type Store struct {
	state StoreState
}

// NewStore constructs a parameter store wrapper using the supplied state
// backend.
func NewStore(state StoreState) *Store {
	return &Store{state: state}
}

func (s *Store) withState() (StoreState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("params: state not configured")
	}
	return s.state, nil
}

// SetParameters validates and persists the parameter set.
func (s *Store) SetParameters(p Parameters) error {
	if err := Validate(p); err != nil {
		return err
	}
	return s.put(ParamsKeyParameters, p.Clone())
}

// Parameters loads the persisted parameters. When unset the defaults are
// returned.
func (s *Store) Parameters() (Parameters, error) {
	p := DefaultParameters()
	ok, err := s.get(ParamsKeyParameters, &p)
	if err != nil {
		return Parameters{}, err
	}
	if !ok {
		return DefaultParameters(), nil
	}
	return p.Clone(), nil
}

// SetRoles validates and persists the privileged principals.
func (s *Store) SetRoles(r Roles) error {
	if err := ValidateRoles(r); err != nil {
		return err
	}
	return s.put(ParamsKeyRoles, r)
}

// Roles loads the privileged principals. Missing roles are an error since
// every privileged operation depends on them.
func (s *Store) Roles() (Roles, error) {
	var r Roles
	ok, err := s.get(ParamsKeyRoles, &r)
	if err != nil {
		return Roles{}, err
	}
	if !ok {
		return Roles{}, fmt.Errorf("params: roles not initialised")
	}
	return r, nil
}

// SetPauses persists the supplied pause configuration.
func (s *Store) SetPauses(p Pauses) error {
	return s.put(ParamsKeyPauses, p)
}

// Pauses loads the persisted pause configuration. When unset, a zero-value
// configuration is returned.
func (s *Store) Pauses() (Pauses, error) {
	var p Pauses
	if _, err := s.get(ParamsKeyPauses, &p); err != nil {
		return Pauses{}, err
	}
	return p, nil
}

func (s *Store) put(key string, value interface{}) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("params: encode %s: %w", key, err)
	}
	return state.ParamStoreSet(key, encoded)
}

func (s *Store) get(key string, dst interface{}) (bool, error) {
	state, err := s.withState()
	if err != nil {
		return false, err
	}
	raw, ok, err := state.ParamStoreGet(key)
	if err != nil {
		return false, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("params: decode %s: %w", key, err)
	}
	return true, nil
}
