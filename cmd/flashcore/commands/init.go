package commands

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/marmos91/flashcore/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Create a configuration file with default values and a freshly generated
device id. The device id keys snapshots and metrics, so it is generated
once at init time and persisted in the config.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.GetDefaultConfigPath()
		}

		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}

		cfg := config.GetDefaultConfig()
		cfg.Device.ID = uuid.New().String()

		if err := config.SaveConfig(cfg, path); err != nil {
			return err
		}

		fmt.Printf("Configuration file created at: %s\n", path)
		fmt.Printf("Device id: %s\n\n", cfg.Device.ID)
		fmt.Println("Next steps:")
		fmt.Println("  1. Edit the configuration file to match your device geometry")
		fmt.Println("  2. Run a provisioning scan: flashcore scan")
		fmt.Println("  3. Inspect wear statistics: flashcore stats")
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}
