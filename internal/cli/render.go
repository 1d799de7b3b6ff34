package cli

import (
	"fmt"

	"github.com/fachebot/point-digest/internal/summarizer"
	"github.com/spf13/cobra"
)

type renderOptions struct {
	bundle     bool
	title      string
	outputDir  string
	noAbstract bool
	force      bool
	print      bool
}

func renderCmd(root *rootOptions) *cobra.Command {
	opts := &renderOptions{}
	cmd := &cobra.Command{
		Use:   "render <points-file>",
		Short: "为单个观点文件生成 HTML 报告",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svcCtx, err := openService(cmd, root)
			if err != nil {
				return err
			}
			defer svcCtx.Close()

			digestOpts := summarizer.Options{
				Bundle:       opts.bundle,
				Title:        opts.title,
				OutputDir:    opts.outputDir,
				SkipAbstract: opts.noAbstract,
				Force:        opts.force,
			}
			result, err := svcCtx.Summarizer.Digest(cmd.Context(), args[0], digestOpts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.print && result.Paragraph != "" {
				fmt.Fprint(out, result.Paragraph)
			}
			if result.Skipped {
				fmt.Fprintf(out, "unchanged: %s\n", result.OutputPath)
			} else {
				fmt.Fprintf(out, "%s (%d lines)\n", result.OutputPath, result.LineCount)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.bundle, "bundle", false, "输入为已分类好的 JSON 观点集合")
	cmd.Flags().StringVar(&opts.title, "title", "", "报告标题，默认从文件名推导")
	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", "", "报告输出目录")
	cmd.Flags().BoolVar(&opts.noAbstract, "no-abstract", false, "不生成导语")
	cmd.Flags().BoolVar(&opts.force, "force", false, "内容未变化时也重新生成")
	cmd.Flags().BoolVar(&opts.print, "print", false, "同时将段落输出到标准输出")
	return cmd
}
