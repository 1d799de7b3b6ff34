package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func historyCmd(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "列出最近的报告生成记录",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svcCtx, err := openService(cmd, root)
			if err != nil {
				return err
			}
			defer svcCtx.Close()

			reports, err := svcCtx.ReportModel.ListRecent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("查询报告记录失败: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(reports) == 0 {
				fmt.Fprintln(out, "No reports yet")
				return nil
			}
			for _, r := range reports {
				fmt.Fprintf(out, "%s  %-10s  %s  %s\n",
					r.UpdatedAt.Local().Format("2006-01-02 15:04"), r.Status, r.SourcePath, r.Title)
				switch {
				case r.ErrorMessage != "":
					fmt.Fprintf(out, "  error: %s\n", r.ErrorMessage)
				case r.OutputPath != "":
					fmt.Fprintf(out, "  -> %s (%d lines)\n", r.OutputPath, r.LineCount)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "显示的记录数")
	return cmd
}
