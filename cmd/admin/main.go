package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"github.com/kevin07696/payment-reconciler/internal/adapters/secrets"
	"github.com/kevin07696/payment-reconciler/internal/config"
	"github.com/kevin07696/payment-reconciler/internal/middleware"
)

type adminEnv struct {
	Secrets config.SecretsConfig
	Admin   config.AdminConfig
}

func main() {
	var (
		action  = flag.String("action", "", "Action to perform: token, verify")
		subject = flag.String("subject", "", "Token subject, e.g. the back office user or shop name")
		scopes  = flag.String("scopes", middleware.ScopeAdmin, "Comma separated scopes")
		ttl     = flag.Duration("ttl", 24*time.Hour, "Token lifetime")
		token   = flag.String("token", "", "Token to verify")
	)
	flag.Parse()

	if *action == "" {
		fmt.Println("Usage: admin -action=<action> [options]")
		fmt.Println("Actions:")
		fmt.Println("  token  - Issue a bearer token for the payment API")
		fmt.Println("  verify - Check a bearer token and print its claims")
		fmt.Println()
		fmt.Println("Scopes:")
		fmt.Printf("  %s    - capture, cancel, refund and sync payments\n", middleware.ScopeAdmin)
		fmt.Printf("  %s - start checkouts from the storefront\n", middleware.ScopeCheckout)
		os.Exit(1)
	}

	auth, err := loadAuth(context.Background())
	if err != nil {
		log.Fatal("Failed to load token secret: ", err)
	}

	switch *action {
	case "token":
		if *subject == "" {
			log.Fatal("-subject is required")
		}
		signed, err := auth.IssueToken(*subject, splitScopes(*scopes), *ttl)
		if err != nil {
			log.Fatal("Failed to issue token: ", err)
		}
		fmt.Println(signed)

	case "verify":
		claims, err := auth.Verify(*token)
		if err != nil {
			log.Fatal("Token rejected: ", err)
		}
		out, _ := json.MarshalIndent(claims, "", "  ")
		fmt.Println(string(out))

	default:
		fmt.Printf("Unknown action: %s\n", *action)
		os.Exit(1)
	}
}

// loadAuth reads the signing secret from the same store the server uses
func loadAuth(ctx context.Context) (*middleware.AdminAuth, error) {
	var env adminEnv
	if err := envconfig.Process("", &env); err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	cfg := config.Config{Secrets: env.Secrets}
	store, err := secrets.NewStore(ctx, cfg.SecretStoreConfig(), logger)
	if err != nil {
		return nil, err
	}

	secret, err := store.GetSecret(ctx, env.Admin.JWTSecretName)
	if err != nil {
		return nil, err
	}
	return middleware.NewAdminAuth(secret, env.Admin.JWTIssuer, logger), nil
}

func splitScopes(s string) []string {
	var out []string
	for _, scope := range strings.Split(s, ",") {
		if scope = strings.TrimSpace(scope); scope != "" {
			out = append(out, scope)
		}
	}
	return out
}
