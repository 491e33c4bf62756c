package cmd

import (
	"fmt"
)

const banner = `
  ____           _    ____            __ _
 |  _ \ ___  ___| |_ / ___|_ __ __ _ / _| |_
 | |_) / _ \/ __| __| |   | '__/ _` + "`" + ` | |_| __|
 |  __/ (_) \__ \ |_| |___| | | (_| |  _| |_
 |_|   \___/|___/\__|\____|_|  \__,_|_|  \__|

`

func printBanner() {
	fmt.Printf("\x1b[35m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Social media management API - Version %s\x1b[0m\n\n", Version)
}
