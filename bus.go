package rangefinder

import (
	"context"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

// Transactor performs a single combined bus cycle with the peripheral at
// the 7-bit address: w is sent first, then len(r) bytes are read after a
// repeated start. Either buffer may be empty but not both.
type Transactor interface {
	Tx(ctx context.Context, address byte, w, r []byte) error
}

// Releaser frees a bus left in a busy state by an interrupted transfer.
type Releaser interface {
	Release(ctx context.Context) error
}

type I2CBus interface {
	Transactor
	Releaser
}
