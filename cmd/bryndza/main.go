// Command bryndza finds and drives UI elements across mobile, desktop and web.
package main

import "github.com/devicelab-dev/bryndza/pkg/cli"

func main() {
	cli.Execute()
}
