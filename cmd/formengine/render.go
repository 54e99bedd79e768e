package main

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/formengine/internal/config"
	"github.com/ehr/formengine/internal/domain/console"
	"github.com/ehr/formengine/internal/domain/formengine"
)

// cliTarget is the render target used by one-shot CLI renders.
const cliTarget = "cli:" + console.DefaultRenderTarget

func renderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a form or table fragment to stdout",
	}

	formCmd := &cobra.Command{
		Use:   "form <kind>",
		Short: "Render a form such as crear-Cita or editar-Paciente",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, _ := cmd.Flags().GetString("key")
			svc, err := cliService()
			if err != nil {
				return err
			}
			return renderForm(cmd.Context(), svc, cmd.OutOrStdout(), args[0], key)
		},
	}
	formCmd.Flags().String("key", "", "Natural key of the record to prefill an edit form with")
	cmd.AddCommand(formCmd)

	tableCmd := &cobra.Command{
		Use:   "table <entity>",
		Short: "Render the table of an entity kind such as Paciente",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			svc, err := cliService()
			if err != nil {
				return err
			}
			return renderTable(cmd.Context(), svc, cmd.OutOrStdout(), args[0], limit, offset)
		},
	}
	tableCmd.Flags().Int("limit", 0, "Maximum rows to render, 0 for all")
	tableCmd.Flags().Int("offset", 0, "Rows to skip")
	cmd.AddCommand(tableCmd)

	return cmd
}

// cliService builds a service whose logs go to stderr so stdout carries only
// the fragment.
func cliService() (*console.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(zerolog.WarnLevel)
	return newService(cfg, newUpstreamClient(cfg, logger), console.NewInMemoryAuditRepo(), logger)
}

func renderForm(ctx context.Context, svc *console.Service, w io.Writer, kind, key string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	form, err := svc.RenderForm(ctx, cliTarget, kind, key)
	if err != nil {
		return err
	}
	return formengine.WriteForm(w, form)
}

func renderTable(ctx context.Context, svc *console.Service, w io.Writer, entity string, limit, offset int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	page, err := svc.RenderTable(ctx, cliTarget, entity, limit, offset)
	if err != nil {
		return err
	}
	return formengine.WriteTable(w, page.Table)
}
