package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/fachebot/point-digest/internal/config"
	"github.com/fachebot/point-digest/internal/logger"
	"github.com/fachebot/point-digest/internal/svc"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultConfigFile = "etc/config.yaml"

type rootOptions struct {
	configFile string
	verbose    bool
}

func Execute() error {
	// .env 不存在时忽略
	_ = godotenv.Load()
	return NewRoot().Execute()
}

// newServiceContext 可在测试中替换
var newServiceContext = svc.NewServiceContext

func NewRoot() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "point-digest",
		Short:         "将分类好的观点拼接成段落并生成 HTML 报告",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetVerbose(opts.verbose)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "f", defaultConfigFile, "the config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "输出 debug 日志")

	root.AddCommand(
		renderCmd(opts),
		watchCmd(opts),
		historyCmd(opts),
	)
	return root
}

// loadConfig 读取配置文件，默认配置文件不存在时使用默认配置
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	c, err := config.LoadFromFile(opts.configFile)
	if err == nil {
		return c, nil
	}
	if f := cmd.Flag("config"); errors.Is(err, fs.ErrNotExist) && (f == nil || !f.Changed) {
		logger.Debugf("配置文件 %s 不存在，使用默认配置", opts.configFile)
		c = config.Default()
		c.ApplyEnv()
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("读取配置文件失败: %w", err)
}

// openService 读取配置并创建服务上下文
func openService(cmd *cobra.Command, opts *rootOptions) (*svc.ServiceContext, error) {
	c, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}
	return newServiceContext(c)
}
