package authctl

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
)

const usage = `usage:
  authctl keygen -out <dir> [-bits 2048]
  authctl create-admin -d <dsn> -email <email> -name <name>`

// Run executes the command named by args[0] and returns the process exit
// code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "keygen":
		err = Keygen(args[1:], stdout)
	case "create-admin":
		err = CreateAdmin(ctx, args[1:], stdout)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n%s\n", args[0], usage)
		return 2
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "%s: %v\n", args[0], err)
		return 1
	}
	return 0
}
