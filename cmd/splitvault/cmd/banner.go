package cmd

import (
	"fmt"
)

const banner = `
   _____       _ _ _ __      __         _ _
  / ____|     | (_) | \ \    / /        | | |
 | (___  _ __ | |_| |_ \ \  / /_ _ _   _| | |_
  \___ \| '_ \| | | __| \ \/ / _` + "`" + ` | | | | | __|
  ____) | |_) | | | |_   \  / (_| | |_| | | |_
 |_____/| .__/|_|_|\__|   \/ \__,_|\__,_|_|\__|
        | |
        |_|
`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Zero-Knowledge Storage Server - Version %s\x1b[0m\n\n", Version)
}
