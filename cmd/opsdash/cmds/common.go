package cmds

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/opsdash/pkg/config"
)

type rootOptions struct {
	RepoRoot string
	Config   string
	Cfg      *config.File
}

func AddRootFlags(root *cobra.Command) {
	root.PersistentFlags().String("repo-root", "", "Repository root (defaults to current directory)")
	root.PersistentFlags().String("config", "", "Path to config file (defaults to .opsdash.yaml under repo-root)")
}

func getRootOptions(cmd *cobra.Command) (rootOptions, error) {
	repoRoot, err := cmd.Root().PersistentFlags().GetString("repo-root")
	if err != nil {
		return rootOptions{}, err
	}
	if repoRoot == "" {
		repoRoot, err = os.Getwd()
		if err != nil {
			return rootOptions{}, err
		}
	}
	repoRoot, err = filepath.Abs(repoRoot)
	if err != nil {
		return rootOptions{}, err
	}

	cfgPath, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return rootOptions{}, err
	}
	if cfgPath == "" {
		cfgPath = config.DefaultPath(repoRoot)
	} else if !filepath.IsAbs(cfgPath) {
		cfgPath = filepath.Join(repoRoot, cfgPath)
	}

	cfg, err := config.LoadOptional(cfgPath)
	if err != nil {
		return rootOptions{}, err
	}

	return rootOptions{
		RepoRoot: repoRoot,
		Config:   cfgPath,
		Cfg:      cfg,
	}, nil
}

// historyPath resolves the history database location relative to the
// repo root unless the config gives an absolute path.
func historyPath(opts rootOptions) string {
	p := opts.Cfg.HistoryDB
	if !filepath.IsAbs(p) {
		p = filepath.Join(opts.RepoRoot, p)
	}
	return p
}
