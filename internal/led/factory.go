package led

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/smazurov/gpionode/internal/board"
)

// Kernel names of the Raspberry Pi activity LED, newest first.
var raspberryPiActivity = []string{"ACT", "led0"}

// New returns a controller for the board's status LED, or a no-op
// controller when the board has none under root.
func New(model, root string, logger *slog.Logger) Controller {
	if root == "" {
		root = SysfsRoot
	}
	if board.IsRaspberryPi(model) {
		for _, dev := range raspberryPiActivity {
			if _, err := os.Stat(filepath.Join(root, dev)); err == nil {
				logger.Info("Using status LED", "led", dev, "board_model", model)
				return newSysfs(root, map[string]string{StatusLED: dev})
			}
		}
	}
	logger.Info("No status LED found, LED control disabled", "board_model", model)
	return noop{logger: logger}
}
