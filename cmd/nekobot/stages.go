package main

import (
	"fmt"
	"slices"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/pipeline"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/registration"
)

var stagesFlags struct {
	markdown bool
}

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List registered stages and the configured pipeline order",
	RunE:  runStages,
}

func init() {
	stagesCmd.Flags().BoolVar(&stagesFlags.markdown, "markdown", false, "render as a Markdown table")
}

func runStages(cmd *cobra.Command, _ []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	cfg, err := config.Load(env.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", env.ConfigPath, err)
	}

	reg, err := registration.NewStageRegistry(cfg.Pipeline.Webhooks, nil)
	if err != nil {
		return err
	}
	order := cfg.Pipeline.Stages
	if len(order) == 0 {
		order = pipeline.DefaultOrder
	}
	// Validate the configured order the same way startup does.
	if _, err := reg.Build(order); err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), renderStages(reg.Names(), order, stagesFlags.markdown))
	return nil
}

// renderStages lists the active stages in order, then the registered but
// unused ones.
func renderStages(registered, order []string, markdown bool) string {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	w.AppendHeader(table.Row{"#", "Stage", "Active"})
	for i, name := range order {
		w.AppendRow(table.Row{i + 1, name, "yes"})
	}
	for _, name := range registered {
		if !slices.Contains(order, name) {
			w.AppendRow(table.Row{"-", name, "no"})
		}
	}
	if markdown {
		return w.RenderMarkdown() + "\n"
	}
	return w.Render() + "\n"
}
