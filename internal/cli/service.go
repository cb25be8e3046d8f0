package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/filesentry/internal/systemd"
)

var (
	serviceUser  string
	servicePrint bool
)

func init() {
	rootCmd.AddCommand(serviceCmd)
	serviceCmd.Flags().StringVar(&serviceUser, "user", "", "Run the daemon as this user")
	serviceCmd.Flags().BoolVar(&servicePrint, "print", false, "Print the unit instead of installing it")
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Install the systemd service unit",
	Long:  "Writes /etc/systemd/system/filesentry.service pointing at this binary\nwith the current --config, --state-dir, --db, and --addr values.\nRun systemctl daemon-reload && systemctl enable --now filesentry afterwards.",
	RunE: func(cmd *cobra.Command, args []string) error {
		bin, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve binary path: %w", err)
		}
		params := systemd.UnitParams{
			BinaryPath: bin,
			ConfigPath: flagConfig,
			StateDir:   flagStateDir,
			DBPath:     flagDB,
			Addr:       flagAddr,
			User:       serviceUser,
		}

		if servicePrint {
			fmt.Print(systemd.Unit(params))
			return nil
		}
		if err := systemd.Install(systemd.UnitPath, params); err != nil {
			return err
		}
		fmt.Printf("Installed %s\n", systemd.UnitPath)
		fmt.Println("Next: systemctl daemon-reload && systemctl enable --now filesentry")
		return nil
	},
}
