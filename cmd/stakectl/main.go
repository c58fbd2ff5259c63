package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stakeledger/cmd/internal/passphrase"
	"stakeledger/config"
	"stakeledger/crypto"
	"stakeledger/services/staked"
)

const (
	defaultPassEnv = "STAKECTL_PASS"
	defaultConfig  = "./staked.toml"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "init":
		return runInit(args[1:], stdout, stderr)
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "token":
		return runToken(args[1:], stdout, stderr)
	default:
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.Join([]string{
		"Usage: stakectl <command> [flags]",
		"",
		"Commands:",
		"  init     write a default config and genesis owned by a keystore key",
		"  keygen   generate a key and store it in an encrypted keystore",
		"  address  print the address held by a keystore",
		"  token    issue a bearer token for the staked API",
	}, "\n")
}

func runInit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfig, "Path of the config file to write")
	keystorePath := fs.String("keystore", "", "Owner keystore; generated when missing")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite existing config and genesis files")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg := config.Default()
	genesisPath := config.ResolvePath(*configPath, cfg.GenesisFile)
	if !*force {
		for _, path := range []string{*configPath, genesisPath} {
			if _, err := os.Stat(path); err == nil {
				fmt.Fprintf(stderr, "Error: %s already exists (use -force to overwrite)\n", path)
				return 1
			}
		}
	}

	ksPath := *keystorePath
	if ksPath == "" {
		ksPath = filepath.Join(filepath.Dir(*configPath), "owner.keystore")
	}
	owner, err := ownerAddress(ksPath, passphrase.NewSource(*passEnv, "owner keystore"), stdout)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if err := config.Save(*configPath, cfg); err != nil {
		fmt.Fprintf(stderr, "Error: write config: %v\n", err)
		return 1
	}
	if err := config.SaveGenesis(genesisPath, config.DefaultGenesis(owner)); err != nil {
		fmt.Fprintf(stderr, "Error: write genesis: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Config:  %s\n", *configPath)
	fmt.Fprintf(stdout, "Genesis: %s\n", genesisPath)
	fmt.Fprintf(stdout, "Owner:   %s\n", owner)
	return 0
}

// ownerAddress reads the keystore address, generating a new key when the
// file does not exist yet.
func ownerAddress(path string, pass *passphrase.Source, stdout io.Writer) (crypto.Address, error) {
	if _, err := os.Stat(path); err == nil {
		return crypto.KeystoreAddress(path)
	} else if !os.IsNotExist(err) {
		return crypto.Address{}, err
	}
	addr, err := generateKeystore(path, pass)
	if err != nil {
		return crypto.Address{}, err
	}
	fmt.Fprintf(stdout, "Generated owner keystore %s\n", path)
	return addr, nil
}

func generateKeystore(path string, pass *passphrase.Source) (crypto.Address, error) {
	secret, err := pass.Get()
	if err != nil {
		return crypto.Address{}, err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return crypto.Address{}, err
	}
	if err := crypto.SaveToKeystore(path, key, secret); err != nil {
		return crypto.Address{}, fmt.Errorf("write keystore: %w", err)
	}
	return key.PubKey().Address(), nil
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "", "Output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*out) == "" {
		fmt.Fprintln(stderr, "Error: -out is required")
		return 1
	}
	if !*force {
		if _, err := os.Stat(*out); err == nil {
			fmt.Fprintf(stderr, "Error: keystore file %s already exists (use -force to overwrite)\n", *out)
			return 1
		}
	}
	addr, err := generateKeystore(*out, passphrase.NewSource(*passEnv, "keystore"))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, addr.String())
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("keystore", "", "Keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, err := crypto.KeystoreAddress(*path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, addr.String())
	return 0
}

func runToken(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	secret := fs.String("secret", "", "Shared HS256 secret")
	secretEnv := fs.String("secret-env", "STAKED_JWT_SECRET", "Environment variable holding the secret when -secret is empty")
	issuer := fs.String("issuer", "stakectl", "Token issuer")
	subject := fs.String("sub", "", "Caller address")
	keystorePath := fs.String("keystore", "", "Read the caller address from a keystore instead of -sub")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	key := strings.TrimSpace(*secret)
	if key == "" && *secretEnv != "" {
		key = strings.TrimSpace(os.Getenv(*secretEnv))
	}
	if key == "" {
		fmt.Fprintln(stderr, "Error: a secret is required (-secret or -secret-env)")
		return 1
	}

	var (
		caller crypto.Address
		err    error
	)
	switch {
	case strings.TrimSpace(*keystorePath) != "":
		caller, err = crypto.KeystoreAddress(*keystorePath)
	case strings.TrimSpace(*subject) != "":
		caller, err = crypto.DecodeAddress(strings.TrimSpace(*subject))
	default:
		err = fmt.Errorf("-sub or -keystore is required")
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	token, err := staked.IssueToken(key, *issuer, caller, *ttl)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}
