package cmd

import (
	"fmt"
)

const banner = `
  _______    _
 |__   __|  | |
    | | ___ | | _____ _ __  ___  ___ _ ____   _____ _ __
    | |/ _ \| |/ / _ \ '_ \/ __|/ _ \ '__\ \ / / _ \ '__|
    | | (_) |   <  __/ | | \__ \  __/ |   \ V /  __/ |
    |_|\___/|_|\_\___|_| |_|___/\___|_|    \_/ \___|_|
`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Sync Storage Token Service - Version %s\x1b[0m\n\n", Version)
}
