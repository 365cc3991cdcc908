package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"lead_engine/config"
	"lead_engine/httputil"
	"lead_engine/models"
	"lead_engine/scheduler"
	"lead_engine/scraper"
	"lead_engine/storage"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run every enabled campaign once and exit",
	Args:  cobra.NoArgs,
	RunE:  runOnce,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the engine document without connecting to any store",
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

var csvTemplateCmd = &cobra.Command{
	Use:   "csv-template [path]",
	Short: "Write an example CSV import file (stdout when no path is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCSVTemplate,
}

var commandCmd = &cobra.Command{
	Use:       "command <name>",
	Short:     "Queue a command for the running daemon",
	Long:      "Queues run_now, reload_config, pause, resume or healthcheck in the operations database. The daemon picks it up within a few seconds.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(models.CmdRunNow), string(models.CmdReloadConfig), string(models.CmdPause), string(models.CmdResume), string(models.CmdHealthcheck)},
	RunE:      runCommand,
}

func init() {
	rootCmd.AddCommand(onceCmd, validateCmd, csvTemplateCmd, commandCmd)
}

func runOnce(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	a.verifyInference(ctx)

	log.Println("Running campaigns...")
	if !a.orchestrator.RunAll(ctx, scheduler.TriggerManual) {
		return fmt.Errorf("run not started: engine disabled or paused")
	}

	run := a.orchestrator.LastRun()
	if run == nil {
		return nil
	}
	log.Printf("Run complete: status=%s campaigns=%d records=%d stored=%d qualified=%d errors=%d",
		run.Status, run.CampaignsRun, run.RecordsFound, run.LeadsStored, run.LeadsQualified, run.ErrorsCount)
	if run.Status == models.RunStatusFailed {
		return fmt.Errorf("run failed: %s", run.Note)
	}
	return nil
}

func runValidate(cmd *cobra.Command, _ []string) error {
	env, err := config.Load()
	if err != nil {
		return err
	}
	path := env.ConfigPath
	if configPath != "" {
		path = configPath
	}

	doc, err := config.LoadDocument(path)
	if err != nil {
		return err
	}

	registry, _ := buildRegistry(env, config.NewHolder(path, doc), httputil.NewClients(&env.Proxy))
	return writeValidation(cmd.OutOrStdout(), path, doc, registry)
}

func writeValidation(w io.Writer, path string, doc *config.Document, registry *scraper.Registry) error {
	fmt.Fprintf(w, "%s: %d campaigns, %d sources, %d prompt templates\n", path, len(doc.Campaigns), len(doc.Sources), len(doc.Prompts))
	for _, c := range doc.Campaigns {
		var names []string
		for _, s := range doc.SourcesFor(c) {
			names = append(names, s.Name)
		}
		state := "enabled"
		if !c.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(w, "  campaign %s (%s): %s\n", c.Name, state, strings.Join(names, ", "))
	}

	warnings := doc.Warnings()
	for _, s := range registry.Unknown(doc) {
		warnings = append(warnings, "no scraper registered for source "+s)
	}
	for _, warn := range warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	if len(warnings) == 0 {
		fmt.Fprintln(w, "ok")
	}
	return nil
}

func runCSVTemplate(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return scraper.WriteTemplate(cmd.OutOrStdout())
	}

	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	if err := scraper.WriteTemplate(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
	return nil
}

func runCommand(cmd *cobra.Command, args []string) error {
	name := models.CommandType(args[0])
	if !name.Valid() {
		return fmt.Errorf("unknown command %q", args[0])
	}

	env, err := config.Load()
	if err != nil {
		return err
	}
	store, err := storage.NewSQLiteStore(env.DBPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer store.Close()

	id, err := store.EnqueueCommand(name)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "queued %s (id %d)\n", name, id)
	return nil
}
