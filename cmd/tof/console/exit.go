package console

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// exit codes scripts can tell apart
const (
	CodeFailure = 1
	CodeConfig  = 2
	CodeTimeout = 3
)

func Exit(code int, msg string, args ...interface{}) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), code)
}

// ExitErr appends err in red to msg.
func ExitErr(code int, err error, msg string, args ...interface{}) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf("%s: %s", fmt.Sprintf(msg, args...), Red(err)), code)
}
