package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"dlst-go/internal/app"
	"dlst-go/internal/archive"
	"dlst-go/internal/config"
	"dlst-go/internal/dlst"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Extract", "KeysAdd").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		// A missing config is not fatal: run on defaults.
		cfg = config.NewConfig(defaults["base_dir"])
	}

	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "dlst",
	Short: "DLST container utilities",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:       %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:        %s\n", cfg.LogDir)
		fmt.Printf("Keyring:        %s\n", cfg.Keyring.Path)
		fmt.Printf("Extract Dest:   %s\n", cfg.Extract.DestDir)
		fmt.Printf("Extract Jobs:   %d\n", cfg.Extract.Jobs)
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list CONTAINER",
	Short: "List container entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("List")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.List(args[0])
		if err != nil {
			return err
		}

		var total int64
		for _, e := range entries {
			total += e.Size
		}
		fmt.Println(entryTable(entries))
		fmt.Printf("%d entries, %d bytes\n", len(entries), total)
		return nil
	},
}

// extract command
var extractCmd = &cobra.Command{
	Use:   "extract CONTAINER...",
	Short: "Decrypt container entries to disk",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyHex, _ := cmd.Flags().GetString("key")
		ivHex, _ := cmd.Flags().GetString("iv")
		workID, _ := cmd.Flags().GetString("work")
		out, _ := cmd.Flags().GetString("out")
		jobs, _ := cmd.Flags().GetInt("jobs")

		a, err := newApp("Extract")
		if err != nil {
			return err
		}
		defer a.Close()

		for _, path := range args {
			key, iv, err := a.ResolveKey(path, workID, keyHex, ivHex)
			if err != nil {
				return err
			}

			// Metadata-only pass for the progress total; no key needed.
			entries, err := a.List(path)
			if err != nil {
				return err
			}
			bar := newProgressBar(len(entries), path)

			dest, err := a.Extract(cmd.Context(), path, key, iv, app.ExtractOptions{
				Dest: out,
				Jobs: jobs,
				OnEntry: func(*dlst.Entry) {
					if bar != nil {
						bar.Add(1)
					}
				},
			})
			if err != nil {
				return err
			}
			fmt.Printf("Extracted %d entries to %s\n", len(entries), dest)
		}
		return nil
	},
}

// newProgressBar returns a bar when stderr is a terminal, nil otherwise.
func newProgressBar(total int, path string) *progressbar.ProgressBar {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(path),
		progressbar.OptionClearOnFinish(),
	)
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage stored work keys",
}

var keysAddCmd = &cobra.Command{
	Use:   "add WORK_ID",
	Short: "Store a key/IV pair for a work",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyHex, _ := cmd.Flags().GetString("key")
		ivHex, _ := cmd.Flags().GetString("iv")
		label, _ := cmd.Flags().GetString("label")

		if keyHex == "" {
			var err error
			if keyHex, err = promptSecret("AES key (hex): "); err != nil {
				return err
			}
		}
		if ivHex == "" {
			var err error
			if ivHex, err = promptSecret("IV (hex): "); err != nil {
				return err
			}
		}

		key, err := hex.DecodeString(strings.TrimSpace(keyHex))
		if err != nil {
			return fmt.Errorf("decoding key: %w", err)
		}
		iv, err := hex.DecodeString(strings.TrimSpace(ivHex))
		if err != nil {
			return fmt.Errorf("decoding iv: %w", err)
		}

		a, err := newApp("KeysAdd")
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.Keyring().Put(strings.ToUpper(args[0]), key, iv, label); err != nil {
			return err
		}
		fmt.Printf("Stored key for %s\n", strings.ToUpper(args[0]))
		return nil
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("KeysList")
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.Keyring().List()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No keys stored.")
			return nil
		}

		fmt.Println(keyTable(records))
		return nil
	},
}

var keysRemoveCmd = &cobra.Command{
	Use:   "rm WORK_ID",
	Short: "Remove a stored key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("KeysRemove")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Keyring().Remove(strings.ToUpper(args[0])); err != nil {
			return err
		}
		fmt.Printf("Removed key for %s\n", strings.ToUpper(args[0]))
		return nil
	},
}

var keysExportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Export the keyring, encrypted with a passphrase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := promptSecret("Passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := promptSecret("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		a, err := newApp("KeysExport")
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := os.OpenFile(args[0], os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("creating export file: %w", err)
		}
		defer f.Close()

		if err := a.Keyring().Export(f, passphrase); err != nil {
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("finalizing export file: %w", err)
		}
		fmt.Printf("Keyring exported to %s\n", args[0])
		return nil
	},
}

var keysImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import an exported keyring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := promptSecret("Passphrase: ")
		if err != nil {
			return err
		}

		a, err := newApp("KeysImport")
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening export file: %w", err)
		}
		defer f.Close()

		n, err := a.Keyring().Import(f, passphrase)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d key(s)\n", n)
		return nil
	},
}

// pack command
var packCmd = &cobra.Command{
	Use:   "pack DIR...",
	Short: "Repack extracted work directories into zip archives",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		a, err := newApp("Pack")
		if err != nil {
			return err
		}
		defer a.Close()

		for _, dir := range args {
			out := strings.TrimSuffix(dir, string(os.PathSeparator)) + ".zip"
			if err := archive.Pack(dir, out, archive.Options{
				Force:   force,
				Exclude: a.Config().Pack.Exclude,
			}); err != nil {
				return err
			}
			fmt.Printf("Packed %s\n", out)
		}
		return nil
	},
}

// promptSecret reads a line from the terminal without echoing it.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return string(secret), nil
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys subcommands
	keysCmd.AddCommand(keysAddCmd)
	keysAddCmd.Flags().String("key", "", "AES-128 key as hex")
	keysAddCmd.Flags().String("iv", "", "CBC IV as hex")
	keysAddCmd.Flags().String("label", "", "Free-form label for the work")
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysRemoveCmd)
	keysCmd.AddCommand(keysExportCmd)
	keysCmd.AddCommand(keysImportCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().String("key", "", "AES-128 key as hex (overrides the keyring)")
	extractCmd.Flags().String("iv", "", "CBC IV as hex")
	extractCmd.Flags().String("work", "", "Work ID for keyring lookup (default: inferred from the file name)")
	extractCmd.Flags().StringP("out", "o", "", "Destination directory")
	extractCmd.Flags().IntP("jobs", "j", 0, "Concurrent entries (default from config)")
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(packCmd)
	packCmd.Flags().BoolP("force", "f", false, "Overwrite existing archives")
}
