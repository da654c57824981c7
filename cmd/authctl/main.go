package main

import (
	"context"
	"os"

	"github.com/dmitrijs2005/storeauth/internal/authctl"
)

func main() {
	os.Exit(authctl.Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
