// Command tokengen mints and inspects session tokens with the secrets from
// the environment (or .env). Useful for calling /auth/session by hand.
//
//	tokengen pair   -user-id user123 -email demo@themehackers.com
//	tokengen access -user-id user123 -json
//	tokengen verify -refresh <token>
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	jwttoken "thgate/internal/jwt_token"
	"thgate/internal/platform/config"
)

type tokenOutput struct {
	AccessToken  string            `json:"access_token,omitempty"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	Usage        map[string]string `json:"usage"`
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(".env")
	if err != nil {
		fail("load config: %v", err)
	}
	if cfg.JWT.AccessSecret == "" || cfg.JWT.RefreshSecret == "" {
		fail("JWT_SECRET and JWT_REFRESH_SECRET must be set; tokens signed with generated secrets are useless to a running server")
	}
	svc, err := jwttoken.NewJWTService(jwttoken.Config{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
	})
	if err != nil {
		fail("token service: %v", err)
	}
	ctx := context.Background()
	switch os.Args[1] {
	case "pair", "access":
		runMint(ctx, svc, cfg.Addr, os.Args[1], os.Args[2:])
	case "verify":
		runVerify(ctx, svc, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func runMint(ctx context.Context, svc *jwttoken.JWTService, addr, kind string, args []string) {
	fs := flag.NewFlagSet(kind, flag.ExitOnError)
	userID := fs.String("user-id", "user123", "user id (sub claim)")
	email := fs.String("email", "demo@themehackers.com", "email claim")
	fullName := fs.String("full-name", "ThemeHackers Demo User", "fullName claim")
	asJSON := fs.Bool("json", false, "print JSON")
	_ = fs.Parse(args)

	subject := jwttoken.Subject{UserID: *userID, Email: *email, FullName: *fullName}
	out := tokenOutput{Usage: map[string]string{}}

	if kind == "access" {
		token, err := svc.GenerateAccessToken(ctx, subject)
		if err != nil {
			fail("generate: %v", err)
		}
		out.AccessToken = token
	} else {
		pair, err := svc.GenerateTokens(ctx, subject)
		if err != nil {
			fail("generate: %v", err)
		}
		out.AccessToken = pair.AccessToken
		out.RefreshToken = pair.RefreshToken
		out.Usage["refresh"] = fmt.Sprintf(`curl -X POST -H "X-CSRF-Token: <token>" -b "refresh_token=%s" http://localhost%s/auth/refresh`, pair.RefreshToken, addr)
	}
	out.Usage["session"] = fmt.Sprintf(`curl -H "Authorization: Bearer %s" http://localhost%s/auth/session`, out.AccessToken, addr)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return
	}
	fmt.Printf("access token (valid %s):\n%s\n", svc.AccessTTL(), out.AccessToken)
	if out.RefreshToken != "" {
		fmt.Printf("\nrefresh token (valid %s):\n%s\n", svc.RefreshTTL(), out.RefreshToken)
	}
}

func runVerify(ctx context.Context, svc *jwttoken.JWTService, args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	refresh := fs.Bool("refresh", false, "verify as a refresh token")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fail("verify takes exactly one token")
	}

	validate := svc.ValidateAccessToken
	if *refresh {
		validate = svc.ValidateRefreshToken
	}
	claims, err := validate(ctx, fs.Arg(0))
	if err != nil {
		fail("invalid: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(claims)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tokengen pair|access|verify [flags]")
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
