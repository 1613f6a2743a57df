package app

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hitoshi/deepthoughts/internal/config"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// NewRootCommand はdeepthoughtsのルートコマンドを生成する。
// サブコマンドを指定しない場合はserveとして起動する。
// フラグはviperにバインドされ、環境変数より優先される。
func NewRootCommand(w io.Writer) *cobra.Command {
	v := config.NewViper()

	root := &cobra.Command{
		Use:           "deepthoughts",
		Short:         "Identity and post resolver service",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(w, v)
		},
	}
	root.SetOut(stderrOr(w))
	root.SetErr(stderrOr(w))

	root.PersistentFlags().String("config", "",
		"Configuration file. Overridden by environment variables and flags.")
	root.PersistentFlags().String("store", "", "Store driver, one of [postgres, memory]")
	root.PersistentFlags().String("port", "", "HTTP listen port")
	for key, name := range map[string]string{
		config.KeyConfigFile:  "config",
		config.KeyStoreDriver: "store",
		config.KeyServerPort:  "port",
	} {
		// フラグ名の誤りは起動時に検出する
		if err := v.BindPFlag(key, root.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   string(CommandServe),
			Short: "Start the API server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(w, v)
			},
		},
		newMigrateCommand(w, v),
		&cobra.Command{
			Use:   string(CommandHealthcheck),
			Short: "Probe the local /health endpoint",
			Args:  cobra.NoArgs,
			// 軽量サブコマンドのため、設定の検証をスキップする
			RunE: func(cmd *cobra.Command, args []string) error {
				return runHealthcheck(v.GetString(config.KeyServerPort))
			},
		},
	)

	return root
}

// newMigrateCommand はmigrateサブコマンドを生成する。--downは設定ではなくコマンド固有のフラグ。
func newMigrateCommand(w io.Writer, v *viper.Viper) *cobra.Command {
	var down int
	cmd := &cobra.Command{
		Use:   string(CommandMigrate),
		Short: "Apply pending database migrations (or roll back with --down)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if down < 0 {
				return fmt.Errorf("--down must not be negative, got %d", down)
			}
			cfg, err := Init(w, v)
			if err != nil {
				return err
			}
			return runMigrate(cfg, down)
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "number of migrations to roll back")
	return cmd
}

func serve(w io.Writer, v *viper.Viper) error {
	cfg, err := Init(w, v)
	if err != nil {
		return err
	}
	return runServe(cfg)
}
