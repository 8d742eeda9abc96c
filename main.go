// Command readlater-migrate copies saved articles from Pocket to Omnivore.
package main

import (
	"github.com/JakeFAU/readlater-migrate/cmd"
)

func main() {
	cmd.Execute()
}
