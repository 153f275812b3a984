package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rongwang/assetverse-server/internal/models"
	"github.com/rongwang/assetverse-server/internal/service"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// defaultPackages is the catalog seeded into empty stores
var defaultPackages = []models.Package{
	{Name: "Basic", Price: decimal.RequireFromString("5"), EmployeeLimit: 5,
		Features: []string{"Asset Tracking", "Employee Management", "Basic Support"}},
	{Name: "Standard", Price: decimal.RequireFromString("8"), EmployeeLimit: 10,
		Features: []string{"All Basic features", "Advanced Analytics", "Priority Support"}},
	{Name: "Premium", Price: decimal.RequireFromString("15"), EmployeeLimit: 20,
		Features: []string{"All Standard features", "Custom Branding", "24/7 Support"}},
}

// seedPackages inserts the default catalog when no packages exist
func seedPackages(ctx context.Context, svc service.Service) error {
	existing, err := svc.ListPackages(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	for _, p := range defaultPackages {
		pkg := p
		if err := svc.CreatePackage(ctx, &pkg); err != nil {
			return fmt.Errorf("failed to seed package %s: %w", p.Name, err)
		}
	}
	return nil
}

func newPackagesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "packages",
		Short: "Manage the subscription package catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the package catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeFn, err := a.catalogService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			packages, err := svc.ListPackages(cmd.Context())
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Name", "Price", "Employees", "Features"})
			for _, p := range packages {
				t.AppendRow(table.Row{p.ID, p.Name, p.Price.StringFixed(2), p.EmployeeLimit, strings.Join(p.Features, ", ")})
			}
			t.AppendFooter(table.Row{"", "", "", "Total", len(packages)})
			t.Render()
			return nil
		},
	})

	var (
		name     string
		price    string
		limit    int
		features []string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a package to the catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			amount, err := decimal.NewFromString(price)
			if err != nil {
				return fmt.Errorf("invalid price %q: %w", price, err)
			}

			svc, closeFn, err := a.catalogService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			pkg := &models.Package{Name: name, Price: amount, EmployeeLimit: limit, Features: features}
			if err := svc.CreatePackage(cmd.Context(), pkg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created package %s (%s)\n", pkg.Name, pkg.ID)
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "package name")
	add.Flags().StringVar(&price, "price", "", "price in USD, e.g. 8 or 8.50")
	add.Flags().IntVar(&limit, "limit", 0, "number of employees the package allows")
	add.Flags().StringSliceVar(&features, "feature", nil, "feature line (repeatable)")
	_ = add.MarkFlagRequired("name")
	_ = add.MarkFlagRequired("price")
	_ = add.MarkFlagRequired("limit")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Insert the default catalog if the store has no packages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeFn, err := a.catalogService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			return seedPackages(cmd.Context(), svc)
		},
	})

	return cmd
}

// catalogService opens the store for a one-shot command. Payments are never
// reconciled from the CLI, so no gateway is configured.
func (a *app) catalogService(ctx context.Context) (service.Service, func(), error) {
	repo, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	svc := service.NewDefaultService(repo, nil, service.PaymentOptions{}, a.logger)
	return svc, func() { _ = repo.Close(context.Background()) }, nil
}
