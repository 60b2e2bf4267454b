package common

import (
	"fmt"

	coreerrors "yieldredirect/core/errors"
)

var ErrModulePaused = coreerrors.New(coreerrors.KindTemporal, "module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}
