package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"yieldredirect/cmd/internal/passphrase"
	"yieldredirect/crypto"
	"yieldredirect/gateway/middleware"
)

const (
	defaultEndpoint = "http://127.0.0.1:7090"
	endpointEnv     = "VAULTCTL_ENDPOINT"
	tokenEnv        = "VAULTCTL_TOKEN"
	secretEnv       = "VAULTCTL_JWT_SECRET"
)

type command struct {
	usage string
	run   func(ctx context.Context, args []string, out io.Writer) error
}

var commands = map[string]command{
	"keygen":             {"generate an account key", runKeygen},
	"token":              {"mint a bearer token for vaultd", runToken},
	"status":             {"show vault and distributor state", runStatus},
	"account":            {"show an account summary", runAccount},
	"approve":            {"approve the vault to pull deposit tokens", runApprove},
	"deposit":            {"deposit into the vault", runAmountCall("/v1/deposit")},
	"withdraw":           {"withdraw principal", runAmountCall("/v1/withdraw")},
	"emergency-withdraw": {"withdraw all principal without fees", runBareCall("/v1/emergency-withdraw")},
	"harvest":            {"claim pending rewards", runBareCall("/v1/harvest")},
	"convert":            {"convert strategy profits (keeper)", runBareCall("/v1/convert")},
	"payouts":            {"export the payout history", runPayouts},
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(os.Stderr)
		return errors.New("command required")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		usage(os.Stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
	return cmd.run(ctx, args[1:], out)
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "Usage: vaultctl <command> [flags]")
	fmt.Fprintln(w, "\nCommands:")
	for _, name := range names {
		fmt.Fprintf(w, "  %-20s %s\n", name, commands[name].usage)
	}
}

// connFlags are shared by every command that talks to vaultd.
type connFlags struct {
	endpoint string
	token    string
	caller   string
}

func bindConn(fs *flag.FlagSet) *connFlags {
	c := &connFlags{}
	fs.StringVar(&c.endpoint, "endpoint", "", "vaultd base URL (or set "+endpointEnv+")")
	fs.StringVar(&c.token, "token", "", "bearer token (or set "+tokenEnv+")")
	fs.StringVar(&c.caller, "caller", "", "caller address for servers running without auth")
	return c
}

func (c *connFlags) client() *client {
	endpoint := c.endpoint
	if endpoint == "" {
		endpoint = os.Getenv(endpointEnv)
	}
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	token := c.token
	if token == "" {
		token = os.Getenv(tokenEnv)
	}
	return newClient(endpoint, token, c.caller)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func runKeygen(_ context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("keygen")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	fmt.Fprintf(out, "address: %s\n", key.PubKey().Address().String())
	fmt.Fprintf(out, "private key: %s\n", hex.EncodeToString(key.Bytes()))
	return nil
}

func runToken(_ context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("token")
	subject := fs.String("subject", "", "account address the token acts for")
	scopes := fs.StringSlice("scopes", []string{middleware.ScopeRead, middleware.ScopeWrite}, "granted scopes")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime (0 disables expiry)")
	issuer := fs.String("issuer", "", "issuer claim")
	audience := fs.String("audience", "vaultd", "audience claim")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*subject) == "" {
		return errors.New("--subject is required")
	}
	addr, err := crypto.ParseAddress(*subject)
	if err != nil {
		return fmt.Errorf("invalid subject: %w", err)
	}
	secret, err := passphrase.NewSource(secretEnv, "JWT signing secret").Get()
	if err != nil {
		return err
	}
	token, err := middleware.MintToken([]byte(secret), *issuer, *audience, addr, *scopes, *ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func runStatus(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("status")
	conn := bindConn(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	c := conn.client()
	if err := c.do(ctx, "GET", "/v1/vault", nil, out); err != nil {
		return err
	}
	return c.do(ctx, "GET", "/v1/distributor", nil, out)
}

func runAccount(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("account")
	conn := bindConn(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: vaultctl account <address>")
	}
	addr, err := crypto.ParseAddress(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	return conn.client().do(ctx, "GET", "/v1/accounts/"+addr.String(), nil, out)
}

func runApprove(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("approve")
	conn := bindConn(fs)
	amount := fs.String("amount", "", "allowance in base units")
	token := fs.String("token", "", "token symbol (defaults to the vault token)")
	spender := fs.String("spender", "", "spender address (defaults to the vault)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*amount) == "" {
		return errors.New("--amount is required")
	}
	body := map[string]string{"amount": *amount}
	if *token != "" {
		body["token"] = *token
	}
	if *spender != "" {
		body["spender"] = *spender
	}
	return conn.client().do(ctx, "POST", "/v1/approve", body, out)
}

func runAmountCall(path string) func(context.Context, []string, io.Writer) error {
	return func(ctx context.Context, args []string, out io.Writer) error {
		fs := newFlagSet(path)
		conn := bindConn(fs)
		amount := fs.String("amount", "", "amount in base units")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if strings.TrimSpace(*amount) == "" {
			return errors.New("--amount is required")
		}
		return conn.client().do(ctx, "POST", path, map[string]string{"amount": *amount}, out)
	}
}

func runBareCall(path string) func(context.Context, []string, io.Writer) error {
	return func(ctx context.Context, args []string, out io.Writer) error {
		fs := newFlagSet(path)
		conn := bindConn(fs)
		if err := fs.Parse(args); err != nil {
			return err
		}
		return conn.client().do(ctx, "POST", path, nil, out)
	}
}

func runPayouts(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("payouts")
	conn := bindConn(fs)
	format := fs.String("format", "jsonl", "export format (jsonl|csv|parquet)")
	account := fs.String("account", "", "only payouts to this address")
	token := fs.String("token", "", "only payouts in this token")
	since := fs.String("since", "", "RFC3339 lower bound")
	if err := fs.Parse(args); err != nil {
		return err
	}
	query := url.Values{}
	query.Set("format", *format)
	for key, value := range map[string]string{"account": *account, "token": *token, "since": *since} {
		if value != "" {
			query.Set(key, value)
		}
	}
	return conn.client().do(ctx, "GET", "/v1/audit/payouts?"+query.Encode(), nil, out)
}
