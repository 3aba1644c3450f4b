// Command pqlogd operates a pqlog event log against a SQLite-backed store,
// exposing submit, checkpoint, and audit operations over the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/northbridge-ins/pqlog"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "pqlogd",
		Short: "pqlogd operates a tamper-evident, post-quantum-signed claim event log",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v.SetEnvPrefix("PQLOG")
			v.AutomaticEnv()
			return nil
		},
	}

	root.PersistentFlags().String("db", "pqlog.db", "path to the SQLite database file")
	root.PersistentFlags().String("log-level", "info", "zerolog level: debug, info, warn, error")
	_ = v.BindPFlag("db", root.PersistentFlags().Lookup("db"))
	_ = v.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(newSubmitCmd(v), newCheckpointCmd(v), newAuditCmd(v))
	return root
}

func newLogger(v *viper.Viper) zerolog.Logger {
	level, err := zerolog.ParseLevel(v.GetString("log-level"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()
}

// openService loads the master seed and wires a Service over a SQLite store
// at the configured path. If MASTER_SEED is missing or invalid it refuses to
// continue, unless development mode is enabled (PQLOG_DEV=true), in which
// case it warns loudly and generates an ephemeral seed.
func openService(v *viper.Viper, logger zerolog.Logger) (*pqlog.Service, func() error, error) {
	store, err := pqlog.OpenSQLiteStore(v.GetString("db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	seed, err := pqlog.LoadMasterSeed(func(key string) (string, bool) {
		val := os.Getenv(key)
		return val, val != ""
	})
	if err != nil {
		if !v.GetBool("dev") {
			_ = store.Close()
			return nil, nil, fmt.Errorf("load master seed (set PQLOG_DEV=true to use an ephemeral development seed): %w", err)
		}
		logger.Warn().Err(err).Msg("MASTER_SEED not usable; generating an ephemeral development seed — signatures will not be reproducible across restarts")
		seed, err = pqlog.GenerateDevMasterSeed()
		if err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("generate dev master seed: %w", err)
		}
	}

	svc := pqlog.NewService(store, seed, pqlog.WithServiceLogger(logger))
	return svc, store.Close, nil
}

func newSubmitCmd(v *viper.Viper) *cobra.Command {
	var claimID, eventType, payload string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "append one claim event to the log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(v)
			svc, closeFn, err := openService(v, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			var payloadVal any = payload
			id, hash, err := svc.SubmitClaimEvent(cmd.Context(), claimID, eventType, payloadVal)
			if err != nil {
				return fmt.Errorf("submit: %w", err)
			}
			fmt.Printf("entry_id=%d chain_hash=%x\n", id, hash)
			return nil
		},
	}
	cmd.Flags().StringVar(&claimID, "claim-id", "", "claim identifier (required)")
	cmd.Flags().StringVar(&eventType, "event-type", "", "event type (required)")
	cmd.Flags().StringVar(&payload, "payload", "", "raw payload string to canonicalize and hash")
	_ = cmd.MarkFlagRequired("claim-id")
	_ = cmd.MarkFlagRequired("event-type")
	return cmd
}

func newCheckpointCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint",
		Short: "generate and persist the next signed checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(v)
			svc, closeFn, err := openService(v, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			summary, err := svc.RequestCheckpoint(cmd.Context())
			if err != nil {
				return fmt.Errorf("checkpoint: %w", err)
			}
			fmt.Printf("checkpoint_id=%d range=[%d,%d] merkle_root=%x signer=%s\n",
				summary.ID, summary.RangeLo, summary.RangeHi, summary.MerkleRoot, summary.SignerID)
			return nil
		},
	}
}

func newAuditCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "verify the full chain and every stored checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(v)
			svc, closeFn, err := openService(v, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			report, err := svc.Audit(ctx)
			if err != nil {
				return fmt.Errorf("audit: %w", err)
			}
			fmt.Printf("chain_ok=%v checkpoints_ok=%d checkpoint_faults=%d\n",
				report.ChainOK, report.CheckpointsOK, len(report.CheckpointFaults))
			if !report.ChainOK {
				fmt.Printf("chain fault: %v\n", report.ChainFault)
			}
			for _, f := range report.CheckpointFaults {
				fmt.Printf("checkpoint fault: %v\n", f)
			}
			if !report.ChainOK || len(report.CheckpointFaults) > 0 {
				return fmt.Errorf("audit found tampering")
			}
			return nil
		},
	}
}
