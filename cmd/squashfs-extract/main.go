package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/squashfs/go-squashfs/cmd/squashfs-extract/extract"
)

func main() {
	if err := extract.Command().Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
