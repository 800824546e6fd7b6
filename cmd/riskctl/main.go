// Command riskctl is an operator CLI for the riskguard service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"google.golang.org/grpc/status"

	"github.com/and161185/riskguard/internal/heuristics"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const usageText = `riskctl
Usage:
  riskctl [-addr URL] [-grpc-addr HOST:PORT] [-cacert file | -insecure | -plaintext] <cmd> [args]

Commands:
  version
  token      -key <hs256 key> [-sub name] [-ttl 1h]    (saves admin token)
  status                                             (rate limiting on/off)
  enable
  disable
  health                                             (HTTP /healthz)
  grpc-health
  classify   -text <text> | -file <path|->            (server side)
  check      -text <text> | -file <path|->            (local, no server)
  route-check -route <path>                          (window and lockout for this client)
  fail       -route <path>                            (record a failed login)
  reset      -route <path>                            (clear failed logins)
`

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fail(err)
	}
}

// run dispatches subcommands. Output goes to out so tests can capture it.
func run(ctx context.Context, args []string, out io.Writer) error {
	global := flag.NewFlagSet("riskctl", flag.ContinueOnError)
	addr := global.String("addr", "http://localhost:8080", "HTTP base URL")
	grpcAddr := global.String("grpc-addr", "localhost:9090", "gRPC address")
	caPath := global.String("cacert", "", "CA cert (PEM) for gRPC TLS")
	skipVerify := global.Bool("insecure", false, "skip cert verify (dev)")
	plaintext := global.Bool("plaintext", false, "gRPC without TLS")
	global.Usage = func() { fmt.Fprint(global.Output(), usageText) }
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() < 1 {
		global.Usage()
		return errors.New("missing command")
	}
	cmd, rest := global.Arg(0), global.Args()[1:]

	api := &apiClient{base: *addr, http: &http.Client{Timeout: 10 * time.Second}}

	switch cmd {
	case "version":
		fmt.Fprintf(out, "riskctl %s (%s)\n", version, buildDate)
		return nil

	case "token":
		fs := flag.NewFlagSet("token", flag.ContinueOnError)
		key := fs.String("key", os.Getenv("ADMIN_JWT_KEY"), "HS256 signing key")
		sub := fs.String("sub", "riskctl", "token subject")
		ttl := fs.Duration("ttl", time.Hour, "token lifetime")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		tok, exp, err := mintAdminToken([]byte(*key), *sub, *ttl, time.Now())
		if err != nil {
			return err
		}
		if err := saveToken(tok, exp); err != nil {
			return err
		}
		fmt.Fprintln(out, "ok")
		return nil

	case "status", "enable", "disable":
		token, err := loadToken()
		if err != nil {
			return err
		}
		api.token = token
		var state struct {
			Enabled bool `json:"enabled"`
		}
		if cmd == "status" {
			err = api.do(ctx, http.MethodGet, "/api/admin/rate-limit", nil, &state)
		} else {
			err = api.do(ctx, http.MethodPost, "/api/admin/rate-limit", map[string]bool{"enabled": cmd == "enable"}, &state)
		}
		if err != nil {
			return err
		}
		printJSON(out, state)
		return nil

	case "health":
		var h map[string]string
		if err := api.do(ctx, http.MethodGet, "/healthz", nil, &h); err != nil {
			return err
		}
		printJSON(out, h)
		return nil

	case "grpc-health":
		st, err := grpcHealth(ctx, grpcOpts{addr: *grpcAddr, caPath: *caPath, skipVerify: *skipVerify, plaintext: *plaintext})
		if err != nil {
			return err
		}
		fmt.Fprintln(out, st.String())
		return nil

	case "classify", "check":
		text, err := textArg(cmd, rest)
		if err != nil {
			return err
		}
		var v heuristics.Verdict
		if cmd == "check" {
			v = heuristics.Classify(text)
		} else if err := api.do(ctx, http.MethodPost, "/api/heuristics/classify", map[string]string{"text": text}, &v); err != nil {
			return err
		}
		printJSON(out, v)
		return nil

	case "route-check", "fail", "reset":
		route, err := routeArg(cmd, rest)
		if err != nil {
			return err
		}
		body := map[string]string{"route": route}
		switch cmd {
		case "route-check":
			if err := api.do(ctx, http.MethodPost, "/api/ratelimit/check", body, nil); err != nil {
				return err
			}
			fmt.Fprintln(out, "allowed")
		case "fail":
			var res struct {
				LockedOut bool `json:"locked_out"`
			}
			if err := api.do(ctx, http.MethodPost, "/api/auth/failures", body, &res); err != nil {
				return err
			}
			printJSON(out, res)
		default:
			if err := api.do(ctx, http.MethodDelete, "/api/auth/failures", body, nil); err != nil {
				return err
			}
			fmt.Fprintln(out, "ok")
		}
		return nil

	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func textArg(name string, args []string) (string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	text := fs.String("text", "", "text to classify")
	file := fs.String("file", "", "read text from file (- for stdin)")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	switch {
	case *text != "" && *file != "":
		return "", errors.New("use either -text or -file")
	case *file != "":
		b, err := readAll(*file)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(b), "\n"), nil
	case *text != "":
		return *text, nil
	default:
		return "", errors.New("need -text or -file")
	}
}

func routeArg(name string, args []string) (string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	route := fs.String("route", "", "route path, e.g. /login")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if strings.TrimSpace(*route) == "" {
		return "", errors.New("need -route")
	}
	return *route, nil
}

func printJSON(out io.Writer, v any) {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
