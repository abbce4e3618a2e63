package main

import (
	"fmt"
	"os"

	"portsweep/cli"
)

// @title                       portsweep API
// @version                     1.0
// @description                 Asynchronous TCP connect scans of a single host over a port range.
// @license.name                MIT
// @license.url                 https://opensource.org/licenses/MIT
// @host                        localhost:8080
// @BasePath                    /api/v1
// @securityDefinitions.apikey  ApiKeyAuth
// @in                          header
// @name                        Authorization
func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
