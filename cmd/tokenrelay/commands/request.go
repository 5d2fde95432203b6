package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/tokenrelay/internal/app"
	"github.com/florianilch/tokenrelay/internal/httpclient"
)

func requestCommand() *cli.Command {
	return &cli.Command{
		Name:      "request",
		Usage:     "send one request with managed tokens and print the response body",
		ArgsUsage: "URL",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "method",
				Aliases: []string{"X"},
				Usage:   "HTTP method",
				Value:   http.MethodGet,
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "request body",
			},
			&cli.StringSliceFlag{
				Name:    "header",
				Aliases: []string{"H"},
				Usage:   "extra request header as 'Name: value'",
			},
			&cli.StringFlag{
				Name:  "upstream--base-url",
				Usage: "base URL for relative request URLs",
			},
		},
		Action: requestAction,
	}
}

func requestAction(ctx context.Context, cmd *cli.Command) error {
	target := cmd.Args().First()
	if target == "" {
		return errors.New("request URL required")
	}

	return withApp(ctx, cmd, func(a *app.App) error {
		req, err := newRequest(ctx, cmd, a.Config().Upstream.BaseURL, target)
		if err != nil {
			return err
		}

		a.Engine().Seed(ctx)

		resp, err := a.Client().Do(req)
		var respErr *httpclient.ResponseError
		if errors.As(err, &respErr) {
			defer respErr.Response.Body.Close()
			if _, cerr := io.Copy(cmd.Root().Writer, respErr.Response.Body); cerr != nil {
				return cerr
			}
			return fmt.Errorf("request failed: %s", respErr.Response.Status)
		}
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		_, err = io.Copy(cmd.Root().Writer, resp.Body)
		return err
	})
}

func newRequest(ctx context.Context, cmd *cli.Command, baseURL, target string) (*http.Request, error) {
	target, err := resolveURL(baseURL, target)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if data := cmd.String("data"); data != "" {
		body = strings.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(cmd.String("method")), target, body)
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	for _, h := range cmd.StringSlice("header") {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q, expected 'Name: value'", h)
		}
		req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// resolveURL returns target unchanged when absolute, otherwise appends it to baseURL.
func resolveURL(baseURL, target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid request URL: %w", err)
	}
	if u.IsAbs() {
		return target, nil
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(target, "/"), nil
}
