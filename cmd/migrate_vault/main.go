// Vault maintenance: upgrade legacy wallet files, move wallets between
// backends and change the vault password.
//
// Usage:
//
//	migrate_vault migrate --from-path old.cwt --to-backend badger --to-path ./db
//	migrate_vault list --path wallets.cwt
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/AlexZinkM/wallet-core/internal/crypto"
	"github.com/AlexZinkM/wallet-core/internal/log"
	"github.com/AlexZinkM/wallet-core/internal/registry"
	"github.com/AlexZinkM/wallet-core/internal/vault"
)

var (
	networkFlag = &cli.StringFlag{
		Name:    "network",
		Usage:   "network label written into sealed files",
		Value:   "mainnet-beta",
		EnvVars: []string{"SOLANA_NETWORK"},
	}
	fromBackendFlag = &cli.StringFlag{
		Name:  "from-backend",
		Usage: "source vault backend: file or badger",
		Value: vault.BackendFile,
	}
	fromPathFlag = &cli.StringFlag{
		Name:     "from-path",
		Usage:    "source vault location",
		Required: true,
	}
	toBackendFlag = &cli.StringFlag{
		Name:  "to-backend",
		Usage: "destination vault backend: file or badger",
		Value: vault.BackendFile,
	}
	toPathFlag = &cli.StringFlag{
		Name:     "to-path",
		Usage:    "destination vault location",
		Required: true,
	}
	newPasswordFlag = &cli.BoolFlag{
		Name:  "new-password",
		Usage: "seal the destination with a different password",
	}
	backendFlag = &cli.StringFlag{
		Name:  "backend",
		Usage: "vault backend: file or badger",
		Value: vault.BackendFile,
	}
	pathFlag = &cli.StringFlag{
		Name:     "path",
		Usage:    "vault location",
		Required: true,
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "migrate_vault"
	app.Usage = "wallet vault maintenance"
	app.Flags = []cli.Flag{networkFlag}
	app.Commands = []*cli.Command{
		{
			Name:   "migrate",
			Usage:  "Load a vault (upgrading legacy files) and write it to another location",
			Flags:  []cli.Flag{fromBackendFlag, fromPathFlag, toBackendFlag, toPathFlag, newPasswordFlag},
			Action: migrate,
		},
		{
			Name:   "list",
			Usage:  "Print the wallets stored in a vault (no secrets)",
			Flags:  []cli.Flag{backendFlag, pathFlag},
			Action: list,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)
	password, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	if len(password) == 0 {
		return nil, errors.New("password cannot be empty")
	}
	return password, nil
}

func newSealer(prompt string) (*crypto.Sealer, error) {
	password, err := readPassword(prompt)
	if err != nil {
		return nil, err
	}
	defer clear(password)
	return crypto.NewSealer(password, crypto.DefaultParams)
}

// openRegistry opens a vault and loads its wallets. Records that fail
// validation are dropped and logged by the registry.
func openRegistry(ctx context.Context, backend, path, network string, sealer *crypto.Sealer) (*registry.Registry, func() error, error) {
	if backend == vault.BackendMemory {
		return nil, nil, errors.New("memory vaults cannot be migrated")
	}
	store, closer, err := vault.Open(backend, path, network, sealer)
	if err != nil {
		return nil, nil, err
	}
	reg := registry.New(store, nil, registry.WithLogger(log.WithComponent("migrate")))
	if err := reg.Load(ctx); err != nil {
		closer.Close()
		return nil, nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return reg, closer.Close, nil
}

func migrate(c *cli.Context) error {
	network := c.String(networkFlag.Name)

	src, err := newSealer("source vault password: ")
	if err != nil {
		return err
	}
	defer src.Wipe()

	dst := src
	if c.Bool(newPasswordFlag.Name) {
		if dst, err = newSealer("destination vault password: "); err != nil {
			return err
		}
		defer dst.Wipe()
	}

	reg, closeSrc, err := openRegistry(c.Context, c.String(fromBackendFlag.Name), c.String(fromPathFlag.Name), network, src)
	if err != nil {
		return err
	}
	defer closeSrc()

	to, closeDst, err := vault.Open(c.String(toBackendFlag.Name), c.String(toPathFlag.Name), network, dst)
	if err != nil {
		return err
	}
	defer closeDst.Close()

	if err := reg.CopyTo(c.Context, to); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "migrated %d wallet(s) to %s\n", len(reg.Snapshot().Wallets), c.String(toPathFlag.Name))
	return nil
}

func list(c *cli.Context) error {
	sealer, err := newSealer("vault password: ")
	if err != nil {
		return err
	}
	defer sealer.Wipe()

	reg, closeSrc, err := openRegistry(c.Context, c.String(backendFlag.Name), c.String(pathFlag.Name), c.String(networkFlag.Name), sealer)
	if err != nil {
		return err
	}
	defer closeSrc()

	out, err := json.MarshalIndent(reg.Snapshot().Views(), "", "\t")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
