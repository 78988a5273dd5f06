package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c360studio/semgate/aggregate"
	gateconfig "github.com/c360studio/semgate/config"
	"github.com/c360studio/semgate/ontology"
	"github.com/c360studio/semgate/processor/doorkeeper"
	"github.com/c360studio/semgate/resource"
)

var (
	errRejected = errors.New("rejected")
	errFailed   = errors.New("failed")
)

type validateOptions struct {
	graphPath  string
	resourceID string
	path       string
	withPID    bool
}

func validateCmd(flags *globalFlags) *cobra.Command {
	var opts validateOptions

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a resource graph file without a running service",
		Long: `Runs the resource edit pipeline against a JSON graph file and prints
the normalized graph or the failures. PID maintenance is skipped unless
--with-pid is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(flags.logLevel)
			return runValidate(cmd.Context(), flags.gateConfig, opts, cmd.OutOrStdout(), logger)
		},
	}

	cmd.Flags().StringVar(&opts.graphPath, "graph", "", "Resource graph JSON file")
	cmd.Flags().StringVar(&opts.resourceID, "resource-id", "", "Resource id (defaults to the node suffix)")
	cmd.Flags().StringVar(&opts.path, "path", "/", "Resource path")
	cmd.Flags().BoolVar(&opts.withPID, "with-pid", false, "Maintain PIDs against the configured registry")
	_ = cmd.MarkFlagRequired("graph")

	return cmd
}

type commitOptions struct {
	method        string
	transactionID int64
	resourceIDs   []int64
}

func commitCmd(flags *globalFlags) *cobra.Command {
	var opts commitOptions

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Run transaction rules and collection aggregation for a transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(flags.logLevel)
			return runCommit(cmd.Context(), flags.gateConfig, opts, cmd.OutOrStdout(), logger)
		},
	}

	cmd.Flags().StringVar(&opts.method, "method", aggregate.MethodCommit, "Transaction method")
	cmd.Flags().Int64Var(&opts.transactionID, "transaction", 0, "Transaction id")
	cmd.Flags().Int64SliceVar(&opts.resourceIDs, "resource", nil, "Resource ids touched by the transaction")
	_ = cmd.MarkFlagRequired("transaction")

	return cmd
}

func loadGate(gateConfigPath string, logger *slog.Logger) (*gateconfig.Config, *ontology.Snapshot, error) {
	cfg, err := gateconfig.NewLoader(logger).Load(gateConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load gate config: %w", err)
	}
	onto, err := ontology.Load(cfg.Ontology.Paths...)
	if err != nil {
		return nil, nil, fmt.Errorf("load ontology: %w", err)
	}
	return cfg, onto, nil
}

func runValidate(ctx context.Context, gateConfigPath string, opts validateOptions, out io.Writer, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, onto, err := loadGate(gateConfigPath, logger)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(opts.graphPath)
	if err != nil {
		return fmt.Errorf("read graph: %w", err)
	}
	var g resource.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return fmt.Errorf("parse graph: %w", err)
	}

	resourceID := opts.resourceID
	if resourceID == "" {
		resourceID = strings.TrimPrefix(g.Node, cfg.Namespaces.Repository)
	}

	svc, err := doorkeeper.NewService(cfg, onto, doorkeeper.Deps{
		DisablePID: !opts.withPID,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	resp := svc.Edit(ctx, &doorkeeper.EditRequest{ResourceID: resourceID, Path: opts.path, Graph: &g})
	if err := writeJSON(out, resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	if !resp.Valid {
		return fmt.Errorf("resource %s: %w", resourceID, errRejected)
	}
	return nil
}

func runCommit(ctx context.Context, gateConfigPath string, opts commitOptions, out io.Writer, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, onto, err := loadGate(gateConfigPath, logger)
	if err != nil {
		return err
	}
	dsn := cfg.DSN()
	if dsn == "" {
		return fmt.Errorf("database.dsn or %s is required", gateconfig.EnvDSN)
	}
	db, err := aggregate.Open(dsn, cfg.Database.MaxOpenConns)
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := doorkeeper.NewService(cfg, onto, doorkeeper.Deps{
		DB:         db,
		DisablePID: true,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	resp := svc.Commit(ctx, &doorkeeper.CommitRequest{
		Method:        opts.method,
		TransactionID: opts.transactionID,
		ResourceIDs:   opts.resourceIDs,
	})
	if err := writeJSON(out, resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	if !resp.OK {
		return fmt.Errorf("transaction %d: %w", opts.transactionID, errFailed)
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
