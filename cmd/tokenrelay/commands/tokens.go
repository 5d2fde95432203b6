package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/tokenrelay/internal/app"
	"github.com/florianilch/tokenrelay/internal/tokens"
)

func tokensCommand() *cli.Command {
	return &cli.Command{
		Name:  "tokens",
		Usage: "inspect and manage stored tokens",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "print the known tokens",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "reveal",
						Usage: "print token values unmasked",
					},
				},
				Action: tokensShowAction,
			},
			{
				Name:      "set",
				Usage:     "store a token; reads the value from stdin when omitted",
				ArgsUsage: "KIND [VALUE]",
				Action:    tokensSetAction,
			},
			{
				Name:   "clear",
				Usage:  "forget all tokens",
				Action: tokensClearAction,
			},
		},
	}
}

func tokensShowAction(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(a *app.App) error {
		bag := a.Engine().Tokens(ctx)

		out := make(map[string]string, len(bag))
		for kind, value := range bag {
			if !cmd.Bool("reveal") {
				value = mask(value)
			}
			out[kind.String()] = value
		}

		enc := json.NewEncoder(cmd.Root().Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	})
}

func tokensSetAction(ctx context.Context, cmd *cli.Command) error {
	kind, err := tokens.ParseKind(cmd.Args().First())
	if err != nil {
		return err
	}

	value := cmd.Args().Get(1)
	if value == "" {
		if value, err = readSecret(cmd, kind); err != nil {
			return err
		}
	}
	if value == "" {
		return errors.New("token value cannot be empty")
	}

	return withApp(ctx, cmd, func(a *app.App) error {
		if a.Config().Storage.Type == app.StorageTypeEnv {
			return errors.New("env storage is read-only")
		}
		a.Engine().Store().Write(ctx, tokens.Bag{kind: value})
		fmt.Fprintf(cmd.Root().Writer, "stored %s\n", kind)
		return nil
	})
}

func tokensClearAction(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(a *app.App) error {
		if err := a.Engine().Store().Reset(ctx); err != nil {
			return fmt.Errorf("failed to clear tokens: %w", err)
		}
		fmt.Fprintln(cmd.Root().Writer, "cleared tokens")
		return nil
	})
}

// readSecret reads a token value without echo from a terminal, or the first
// line of piped input.
func readSecret(cmd *cli.Command, kind tokens.Kind) (string, error) {
	var r io.Reader = os.Stdin
	if cmd.Root().Reader != nil {
		r = cmd.Root().Reader
	}

	if f, ok := r.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		prompt := cmd.Root().ErrWriter
		if prompt == nil {
			prompt = os.Stderr
		}
		fmt.Fprintf(prompt, "%s: ", kind)
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		return strings.TrimSpace(string(secret)), nil
	}

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// mask keeps a short prefix so tokens can be told apart without exposing them.
func mask(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "****"
}
