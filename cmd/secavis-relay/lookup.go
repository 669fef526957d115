package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/secavis-relay/internal/pipeline"
)

func newLookupCmd() *cobra.Command {
	var (
		fiscalID    string
		noticeRef   string
		withCapture bool
	)
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Retrieve and register one notice, printing the result as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			out, err := app.Service().FetchAndRegister(cmd.Context(), pipeline.Request{
				FiscalID:  fiscalID,
				NoticeRef: noticeRef,
			})
			if err != nil {
				return fmt.Errorf("lookup %s/%s: %w", fiscalID, noticeRef, err)
			}
			if out.RecordErr != nil {
				app.Logger().Warn("result not recorded in ledger", zap.Error(out.RecordErr))
			}
			result := out.Result
			if !withCapture {
				result.Capture = ""
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&fiscalID, "fiscal-id", "", "fiscal identifier (numéro fiscal)")
	cmd.Flags().StringVar(&noticeRef, "notice-ref", "", "notice reference (référence de l'avis)")
	cmd.Flags().BoolVar(&withCapture, "with-capture", false, "include the base64 capture in the output")
	_ = cmd.MarkFlagRequired("fiscal-id")
	_ = cmd.MarkFlagRequired("notice-ref")
	return cmd
}
