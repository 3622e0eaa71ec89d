package main

import (
	"fmt"
	"strings"
	"time"

	"filemanager/routes"
	"filemanager/services"
	"filemanager/storage"
	"filemanager/utils"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var provisionAll bool

var provisionCmd = &cobra.Command{
	Use:   "provision-company [name...]",
	Short: "Create company folders under the storage root",
	Long: "Create the folder each company's employees are scoped to. Existing folders are left " +
		"alone, so the command is safe to re-run. With --all, every company in the database is provisioned.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !provisionAll {
			return fmt.Errorf("give at least one company name or --all")
		}

		ctx := cmd.Context()
		backend, err := storage.New(ctx, cfg.Storage.Type, cfg.Storage.Options())
		if err != nil {
			return fmt.Errorf("failed to initialize %s storage: %w", cfg.Storage.Type, err)
		}

		names := args
		var provider services.AuthorizationProvider
		if provisionAll {
			client, err := connectMongo(cfg)
			if err != nil {
				return err
			}
			defer disconnectMongo(client)

			authz := services.NewAuthorizationService(client.Database(cfg.Mongo.Database))
			provider = authz
			if names, err = authz.CompanyNames(ctx); err != nil {
				return err
			}
		}

		container, err := routes.NewServiceContainer(cfg, backend, provider, nil)
		if err != nil {
			return err
		}

		var failed int
		for _, name := range names {
			folder, created, err := container.FileTree.ProvisionCompanyFolder(ctx, name)
			switch {
			case err != nil:
				failed++
				utils.LogError(fmt.Sprintf("failed to provision %q", name), err)
			case created:
				fmt.Printf("created  %s\n", folder.Relative)
			default:
				fmt.Printf("exists   %s\n", folder.Relative)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d companies could not be provisioned", failed, len(names))
		}
		return nil
	},
}

var (
	tokenEmployee string
	tokenEmail    string
	tokenTTL      time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an employee token for development",
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.JWT.Expiration
		}
		token, err := utils.GenerateEmployeeToken(tokenEmployee, tokenEmail, cfg.JWT.Issuer, cfg.JWT.Secret, ttl)
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}
		fmt.Println(token)
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit log",
}

var auditLimit int

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the most recent audit records",
	RunE: func(cmd *cobra.Command, args []string) error {
		var reader services.AuditReader

		if cfg.Audit.Type == "badger" {
			sink, err := services.OpenBadgerAuditSink(cfg.Audit.BadgerDir)
			if err != nil {
				return err
			}
			defer sink.Close()
			reader = sink
		} else {
			client, err := connectMongo(cfg)
			if err != nil {
				return err
			}
			defer disconnectMongo(client)
			reader = services.NewMongoAuditSink(client.Database(cfg.Mongo.Database))
		}

		records, err := reader.Recent(cmd.Context(), auditLimit)
		if err != nil {
			return err
		}
		for _, r := range records {
			fmt.Printf("%s  %-14s %-10s %-24s %s\n",
				r.Timestamp.Local().Format(time.DateTime),
				humanize.Time(r.Timestamp),
				r.Operation,
				r.ActorID,
				strings.Join(r.Paths, " -> "))
		}
		return nil
	},
}

func init() {
	provisionCmd.Flags().BoolVar(&provisionAll, "all", false, "provision every company in the database")

	tokenCmd.Flags().StringVar(&tokenEmployee, "employee", "", "employee ObjectID")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default jwt.expiration)")
	_ = tokenCmd.MarkFlagRequired("employee")

	auditTailCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "number of records")
	auditCmd.AddCommand(auditTailCmd)
}
