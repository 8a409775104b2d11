package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"tcm-go/internal/backup"
	"tcm-go/internal/database"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// passphraseEnv lets scripts supply the key passphrase without a terminal.
const passphraseEnv = "TCM_PASSPHRASE"

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the snapshot encryption key pair",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the snapshot encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		passphrase, err := readPassphrase("Passphrase for the private key: ", true)
		if err != nil {
			return err
		}

		kp := backup.NewKeyPair(cfg.Backup)
		if err := kp.Generate(passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		fmt.Printf("Public key:  %s\n", cfg.Backup.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Backup.PrivateKeyPath)
		if !cfg.Backup.Encrypt {
			fmt.Println("Set encrypt = true under [backup] to seal new snapshots.")
		}
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage database snapshots",
}

var backupNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Snapshot the database now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Snapshot")
		if err != nil {
			return err
		}
		defer a.Close()

		snap, err := a.Snapshot(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Stored %s (%d bytes)\n", snap.Name, snap.Size)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ListSnapshots")
		if err != nil {
			return err
		}
		defer a.Close()

		snaps, err := a.ListSnapshots(cmd.Context())
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			fmt.Println("No snapshots stored.")
			return nil
		}
		for _, s := range snaps {
			sealed := ""
			if s.Encrypted {
				sealed = "  [encrypted]"
			}
			fmt.Printf("%s  %s  %d%s\n", s.CreatedAt.Local().Format("2006-01-02 15:04:05"), s.Name, s.Size, sealed)
		}
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore NAME",
	Short: "Restore a snapshot to a new database file",
	Long: `Restore writes the snapshot to --to (default: catalog.restored.db next to the
live database). The live database is never overwritten; stop tcm and move the
restored file into place to use it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		dest, _ := cmd.Flags().GetString("to")
		if dest == "" {
			dest = filepath.Join(cfg.Database.DataDir, "catalog.restored"+filepath.Ext(database.FileName))
		}

		var passphrase string
		if backup.IsEncrypted(args[0]) {
			passphrase, err = readPassphrase("Passphrase: ", false)
			if err != nil {
				return err
			}
		}

		a, err := newApp(cmd.Context(), "RestoreSnapshot")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RestoreSnapshot(cmd.Context(), args[0], dest, passphrase); err != nil {
			return err
		}
		fmt.Printf("Restored %s to %s\n", args[0], dest)
		return nil
	},
}

// readPassphrase prompts on the terminal without echo. With confirm set the
// passphrase is asked for twice.
func readPassphrase(prompt string, confirm bool) (string, error) {
	if p := os.Getenv(passphraseEnv); p != "" {
		return p, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal for passphrase prompt: set %s", passphraseEnv)
	}

	fmt.Fprint(os.Stderr, prompt)
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if !confirm {
		return string(first), nil
	}

	fmt.Fprint(os.Stderr, "Repeat passphrase: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if string(first) != string(second) {
		return "", errors.New("passphrases do not match")
	}
	return string(first), nil
}

func init() {
	keysCmd.AddCommand(keysInitCmd)

	backupCmd.AddCommand(backupNowCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupRestoreCmd.Flags().String("to", "", "Destination database file")
}
