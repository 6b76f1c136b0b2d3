package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/domain/ports"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/domain/types"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/infrastructure/persistence"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/tenancy/services"
)

func main() {
	if len(os.Args) < 2 {
		fatalf("usage: tenantctl <create|activate|suspend|deactivate|update-config|list> [args]")
	}

	switch os.Args[1] {
	case "create":
		create(os.Args[2:])
	case "activate":
		setStatus(os.Args[2:], types.StatusActive)
	case "suspend":
		setStatus(os.Args[2:], types.StatusSuspended)
	case "deactivate":
		setStatus(os.Args[2:], types.StatusDeactivated)
	case "update-config":
		updateConfig(os.Args[2:])
	case "list":
		list(os.Args[2:])
	default:
		fatalf("unknown subcommand: %s", os.Args[1])
	}
}

func create(args []string) {
	fs := newFlagSet("create")
	url := fs.String("url", os.Getenv("DB_DSN"), "platform database connection string")
	name := fs.String("name", "", "tenant display name")
	subdomain := fs.String("subdomain", "", "tenant subdomain")
	email := fs.String("contact-email", "", "tenant contact email")
	tier := fs.String("tier", "", "subscription tier")
	configJSON := fs.String("config", "", "tenant config as JSON")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	var cfg types.TenantConfig
	if *configJSON != "" {
		if err := json.Unmarshal([]byte(*configJSON), &cfg); err != nil {
			fatal(err)
		}
	}

	ctx, cancel, svc, _ := dial(*url)
	defer cancel()
	rec, err := svc.CreateTenant(ctx, services.CreateTenantRequest{
		Name:         *name,
		Subdomain:    *subdomain,
		ContactEmail: *email,
		Tier:         *tier,
		Config:       cfg,
	})
	if err != nil {
		fatal(err)
	}
	printRecord(rec)
}

func setStatus(args []string, status types.TenantStatus) {
	fs := newFlagSet(string(status))
	url := fs.String("url", os.Getenv("DB_DSN"), "platform database connection string")
	id := fs.String("tenant", "", "tenant id")
	reason := fs.String("reason", "", "status reason")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if *id == "" {
		fatalf("missing --tenant")
	}

	ctx, cancel, svc, _ := dial(*url)
	defer cancel()

	var rec types.TenantRecord
	var err error
	switch status {
	case types.StatusActive:
		rec, err = svc.Activate(ctx, *id)
	case types.StatusSuspended:
		rec, err = svc.Suspend(ctx, *id, *reason)
	default:
		rec, err = svc.Deactivate(ctx, *id, *reason)
	}
	if err != nil {
		fatal(err)
	}
	printRecord(rec)
}

func updateConfig(args []string) {
	fs := newFlagSet("update-config")
	url := fs.String("url", os.Getenv("DB_DSN"), "platform database connection string")
	id := fs.String("tenant", "", "tenant id")
	configJSON := fs.String("config", "", "tenant config as JSON")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if *id == "" || *configJSON == "" {
		fatalf("missing --tenant or --config")
	}

	var cfg types.TenantConfig
	if err := json.Unmarshal([]byte(*configJSON), &cfg); err != nil {
		fatal(err)
	}

	ctx, cancel, svc, _ := dial(*url)
	defer cancel()
	rec, err := svc.UpdateConfig(ctx, *id, cfg)
	if err != nil {
		fatal(err)
	}
	printRecord(rec)
}

func list(args []string) {
	fs := newFlagSet("list")
	url := fs.String("url", os.Getenv("DB_DSN"), "platform database connection string")
	status := fs.String("status", "", "filter by status")
	limit := fs.Int("limit", 50, "max records")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	ctx, cancel, _, store := dial(*url)
	defer cancel()
	recs, err := store.List(ctx, types.TenantStatus(*status), *limit, 0)
	if err != nil {
		fatal(err)
	}
	for _, rec := range recs {
		fmt.Printf("%s\t%s\t%s\t%s\n", rec.TenantID, rec.Status, rec.Subdomain, rec.Name)
	}
}

func dial(url string) (context.Context, context.CancelFunc, *services.ProvisioningService, ports.TenantStore) {
	if url == "" {
		fatalf("missing --url (or DB_DSN)")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		cancel()
		fatal(err)
	}
	store := persistence.NewTenantPGStore(pool)
	return ctx, func() { cancel(); pool.Close() }, services.NewProvisioningService(store, nil), store
}

func printRecord(rec types.TenantRecord) {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(b))
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "tenantctl:", err)
	os.Exit(1)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "tenantctl: "+format+"\n", args...)
	os.Exit(1)
}
