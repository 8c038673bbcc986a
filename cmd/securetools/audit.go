package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jkaninda/securetools/internal/console"
	"github.com/jkaninda/securetools/internal/security"
)

var auditQuery security.AuditQuery

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent entries of the tool call audit trail",
	Long: `Print audit events newest first from the configured sink (JSONL file,
SQLite or PostgreSQL). Events hold tool names, argument names and result
sizes only; argument values and tool output are never recorded.`,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().StringVar(&auditQuery.Tool, "tool", "", "only events for this tool")
	auditCmd.Flags().StringVar(&auditQuery.CorrelationID, "correlation-id", "", "only events of one chat turn or MCP call")
	auditCmd.Flags().StringVar(&auditQuery.Result, "result", "", "only events with this result (intent, success, failure, denied)")
	auditCmd.Flags().IntVarP(&auditQuery.Limit, "limit", "n", 20, "maximum number of events")
}

func runAudit(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	ctx := context.Background()

	db, err := openAuditDB(ctx, cfg, logger)
	if err != nil {
		return err
	}
	var events []security.AuditEvent
	if db != nil {
		defer db.Close()
		events, err = db.Audit().Query(ctx, auditQuery)
	} else {
		events, err = security.ReadAuditLog(cfg.AuditPath(), auditQuery)
	}
	if err != nil {
		return err
	}

	out := console.Stdio()
	if len(events) == 0 {
		out.Info("No audit events found.")
		return nil
	}
	return writeAuditTable(out, events)
}

func writeAuditTable(out *console.Console, events []security.AuditEvent) error {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tCALLER\tTOOL\tRESULT\tARGS\tBYTES\tCORRELATION")
	for _, ev := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			ev.Timestamp.Local().Format("2006-01-02 15:04:05"),
			ev.Caller,
			ev.Tool,
			ev.Result,
			strings.Join(ev.ArgumentKeys, ","),
			ev.ContentLength,
			ev.CorrelationID,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	out.Printf("%s", b.String())
	return nil
}
