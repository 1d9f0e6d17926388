package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/voiceinvoice/internal"
	"github.com/starford/voiceinvoice/internal/invoicing"
	"github.com/starford/voiceinvoice/internal/models"
	"github.com/starford/voiceinvoice/internal/store"
	pkgconfig "github.com/starford/voiceinvoice/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(cmd.String("config"), "", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

// offline runs fn against the local store without outbound services.
func offline(cmd *cli.Command, fn func(*invoicing.Service) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	svc, closer, err := internal.Offline(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()
	return fn(svc)
}

func printClients(w io.Writer, clients []models.Client) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tRATE")
	for _, c := range clients {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f/%s\n", c.ID, c.Name, c.Email, c.DefaultRate, c.RateType)
	}
	return tw.Flush()
}

func printInvoices(w io.Writer, invoices []models.Invoice, total int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NUMBER\tCLIENT\tTOTAL\tSENT")
	for _, inv := range invoices {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\n", inv.InvoiceNumber, inv.ClientID, inv.Total, inv.SentAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(tw, "\n%d of %d invoices\n", len(invoices), total)
	return tw.Flush()
}

func main() {
	cmd := &cli.Command{
		Name:    "voiceinvoice",
		Usage:   "Turn spoken job descriptions into emailed PDF invoices",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API with live events",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the invoicing tools over MCP stdio",
				Action: serveMCP,
			},
			{
				Name:  "clients",
				Usage: "Manage the client directory",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "List clients",
						Action: func(ctx context.Context, cmd *cli.Command) error {
							return offline(cmd, func(svc *invoicing.Service) error {
								clients, err := svc.ListClients(ctx)
								if err != nil {
									return err
								}
								return printClients(os.Stdout, clients)
							})
						},
					},
					{
						Name:  "add",
						Usage: "Add a client",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "name", Required: true},
							&cli.StringFlag{Name: "email", Required: true},
							&cli.StringFlag{Name: "address"},
							&cli.StringFlag{Name: "rate-type", Value: string(models.RateTypeHourly), Usage: "hourly, day or flat"},
							&cli.FloatFlag{Name: "rate"},
							&cli.StringFlag{Name: "notes"},
						},
						Action: func(ctx context.Context, cmd *cli.Command) error {
							return offline(cmd, func(svc *invoicing.Service) error {
								c, err := svc.CreateClient(ctx, models.Client{
									Name:        cmd.String("name"),
									Email:       cmd.String("email"),
									Address:     cmd.String("address"),
									RateType:    models.RateType(cmd.String("rate-type")),
									DefaultRate: cmd.Float("rate"),
									Notes:       cmd.String("notes"),
								})
								if err != nil {
									return err
								}
								fmt.Printf("created %s (%s)\n", c.Name, c.ID)
								return nil
							})
						},
					},
				},
			},
			{
				Name:  "invoices",
				Usage: "Inspect sent invoices",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "List invoices, newest first",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "client", Usage: "Client ID"},
							&cli.IntFlag{Name: "limit", Value: 50},
						},
						Action: func(ctx context.Context, cmd *cli.Command) error {
							return offline(cmd, func(svc *invoicing.Service) error {
								items, total, err := svc.ListInvoices(ctx, store.InvoiceFilter{
									ClientID: cmd.String("client"),
									Limit:    int(cmd.Int("limit")),
								})
								if err != nil {
									return err
								}
								return printInvoices(os.Stdout, items, total)
							})
						},
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
