package main

import (
	"context"
	"fmt"
	"github.com/denismitr/mockup/cmd/initialize"
	"os"
	"time"
)

const usage = `usage: mockup <command> [flags]

commands:
  validate   check an upload against a variation and store it
  render     fit a stored upload into a variation mockup
  sign       print a signed url for an asset file
  verify     check a signed url, --out saves the file it grants
  purge      remove an asset with all its files, or one with --file
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	initialize.DotEnv()

	log := initialize.Logger()
	cfg := initialize.ConfigFromEnv()
	storage := initialize.LocalStorage(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	app := &app{
		cfg:     cfg,
		log:     log,
		storage: storage,
		out:     os.Stdout,
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "validate":
		app.validator = initialize.Validator(storage, log)
		err = app.validate(ctx, args)
	case "render":
		app.compositor = initialize.Compositor(cfg, storage, log)
		app.signer = initialize.SignerFromEnv()
		err = app.render(ctx, args)
	case "sign":
		app.signer = initialize.SignerFromEnv()
		err = app.sign(args)
	case "verify":
		app.signer = initialize.SignerFromEnv()
		err = app.verify(ctx, args)
	case "purge":
		err = app.purge(ctx, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		log.WithError(err).Error(os.Args[1] + " failed")
		os.Exit(1)
	}
}
