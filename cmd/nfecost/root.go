package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/custonfe/nfe-cost-service/internal/logger"
	"github.com/custonfe/nfe-cost-service/internal/models"
	"github.com/custonfe/nfe-cost-service/internal/services"
)

// rootOptions are the persistent flags shared by every subcommand
type rootOptions struct {
	cfgFile string
	verbose bool
	policy  string

	config *models.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "nfecost",
		Short: "NF-e landed cost calculator",
		Long: `nfecost reads NF-e documents (XML or JSON), apportions freight, insurance,
discounts and other expenses over the line items and reports the landed cost
of every product. It can also compare the same products across invoices.

Example Usage:
  nfecost analyze nota.xml
  nfecost analyze nota.xml --factor 001=12
  nfecost compare ./notas --ai`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init()
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "config.yaml", "Path to the configuration file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output for debugging")
	cmd.PersistentFlags().StringVar(&opts.policy, "policy", "", "Allocation policy: exclusive or additive (overrides config)")

	cmd.AddCommand(
		newAnalyzeCmd(opts),
		newCompareCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func (o *rootOptions) init() error {
	config, err := models.LoadConfig(o.cfgFile)
	if err != nil {
		return err
	}
	if o.policy != "" {
		if o.policy != models.PolicyExclusive && o.policy != models.PolicyAdditive {
			return fmt.Errorf("unknown policy %q (use %s or %s)", o.policy, models.PolicyExclusive, models.PolicyAdditive)
		}
		config.Allocation.Policy = o.policy
	}
	o.config = config

	o.logger, err = logger.NewForCLI(o.verbose)
	return err
}

func (o *rootOptions) processor() *services.BatchProcessor {
	engine := services.NewAllocationEngine(o.config.Allocation.Policy)
	return services.NewBatchProcessor(engine, o.config.Batch.Concurrency, o.logger)
}

// collectFiles expands directories into the NF-e files they contain,
// sorted by path. Plain file arguments are kept as given.
func collectFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}

		var found []string
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isDocumentFile(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}

func isDocumentFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml", ".json":
		return true
	default:
		return false
	}
}

// readDocuments loads every file; the base name is the document source
func readDocuments(files []string) ([]services.RawDocument, error) {
	docs := make([]services.RawDocument, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		docs = append(docs, services.RawDocument{Source: filepath.Base(f), Data: data})
	}
	return docs, nil
}
