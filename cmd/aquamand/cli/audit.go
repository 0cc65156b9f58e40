package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tech4242/aquaman/internal/audit"
	"github.com/tech4242/aquaman/internal/config"
)

// exitAuditVerifyFailed is the exit code returned when the audit chain
// fails verification.
const exitAuditVerifyFailed = 4

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and verify the hash-chained audit log",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit log's hash chain end to end",
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail [n]",
	Short: "Show the last n audit entries, resolved through the sqlite index",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditTail,
}

var auditSessionCmd = &cobra.Command{
	Use:   "session <session-id>",
	Short: "Show every audit entry for one session ID, resolved through the sqlite index",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditSession,
}

func init() {
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditCmd.AddCommand(auditSessionCmd)
	rootCmd.AddCommand(auditCmd)
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := audit.NewStore(cfg.Audit.LogDir)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer store.Close()

	report, err := store.Verify()
	if err != nil {
		return fmt.Errorf("verifying audit log: %w", err)
	}

	if !report.OK {
		cmd.PrintErrf("audit chain broken at entry %d (of %d)\n", report.FirstBreakAt, report.EntryCount)
		os.Exit(exitAuditVerifyFailed)
	}
	cmd.Printf("ok: %d entries verified\n", report.EntryCount)
	return nil
}

// openIndexedStore opens the audit log and rebuilds an in-memory sqlite
// index over it, giving O(log n) tail/range lookups instead of scanning
// every segment for each query.
func openIndexedStore(ctx context.Context) (*audit.Store, *audit.Index, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	store, err := audit.NewStore(cfg.Audit.LogDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening audit log: %w", err)
	}

	idx, err := audit.OpenIndex(ctx, ":memory:", store)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("opening audit index: %w", err)
	}
	return store, idx, nil
}

func printResolvedEntries(cmd *cobra.Command, store *audit.Store, ids []string) error {
	for _, id := range ids {
		entry, found, err := store.EntryByID(id)
		if err != nil {
			return fmt.Errorf("resolving audit entry %s: %w", id, err)
		}
		if !found {
			continue // segment was rotated/pruned between index rebuild and lookup
		}
		line, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encoding audit entry %s: %w", id, err)
		}
		cmd.Println(string(line))
	}
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	n := 20
	if len(args) == 1 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil || parsed <= 0 {
			return fmt.Errorf("invalid entry count %q", args[0])
		}
		n = parsed
	}

	ctx := cmd.Context()
	store, idx, err := openIndexedStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	defer idx.Close()

	ids, err := idx.IndexedTail(ctx, n)
	if err != nil {
		return fmt.Errorf("querying audit index: %w", err)
	}
	return printResolvedEntries(cmd, store, ids)
}

func runAuditSession(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, idx, err := openIndexedStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	defer idx.Close()

	ids, err := idx.RangeBySession(ctx, args[0])
	if err != nil {
		return fmt.Errorf("querying audit index: %w", err)
	}
	return printResolvedEntries(cmd, store, ids)
}
