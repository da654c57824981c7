package authctl

import (
	"flag"
	"fmt"
	"io"
	"path/filepath"

	"github.com/dmitrijs2005/storeauth/internal/filex"
	"github.com/dmitrijs2005/storeauth/internal/server/auth"
)

const (
	privateKeyFile = "private.key"
	publicKeyFile  = "public.key"
)

// Keygen writes private.key (PKCS#1, 0600) and public.key (PKIX, 0644) into
// the -out directory, creating it when missing.
func Keygen(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(w)
	out := fs.String("out", ".", "directory to write private.key and public.key to")
	bits := fs.Int("bits", auth.MinKeyBits, "RSA key size in bits")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dir, err := filex.EnsureDir(*out)
	if err != nil {
		return err
	}

	privatePEM, publicPEM, err := auth.GenerateKeyPair(*bits)
	if err != nil {
		return err
	}

	privatePath := filepath.Join(dir, privateKeyFile)
	if err := filex.WriteFileAtomic(privatePath, privatePEM, 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	publicPath := filepath.Join(dir, publicKeyFile)
	if err := filex.WriteFileAtomic(publicPath, publicPEM, 0o644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}

	fmt.Fprintf(w, "wrote %s\nwrote %s\n", privatePath, publicPath)
	return nil
}
