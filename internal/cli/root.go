package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/casefile/internal/config"
)

// Version is set at build time
var Version = "v0.1.0"

var (
	cfgFile  string
	verbose  bool
	logJSON  bool
	provider string
	modelID  string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "casefile",
	Short: "Casefile - question answering over investigative documents",
	Long: `Casefile answers questions about a set of case documents.

Every ingested document is uploaded to a searchable corpus and reduced to a
knowledge graph of entities, claims, events and key facts. Questions that
need everything of a kind ("list all people", "find all inconsistencies")
are answered from the graph; specific questions are answered by a chain of
search workers over the corpus, then synthesized into one answer.

Conflicting claims between documents are detected as documents arrive.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "casefile %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.casefile/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "completion provider (openai, anthropic, ollama)")
	rootCmd.PersistentFlags().StringVar(&modelID, "model", "", "completion model")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("llm.provider", rootCmd.PersistentFlags().Lookup("provider"))
	_ = viper.BindPFlag("llm.model", rootCmd.PersistentFlags().Lookup("model"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
		viper.AddConfigPath(".casefile")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".casefile"))
		}
	}

	// CASEFILE_* plus the vendor variables
	config.BindEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// bindFlag ties a command flag to a config key, so the flag wins over
// environment and file when set
func bindFlag(cmd *cobra.Command, key, flag string) {
	_ = viper.BindPFlag(key, cmd.Flags().Lookup(flag))
}
