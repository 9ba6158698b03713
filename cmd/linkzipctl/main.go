// linkzipctl 运维命令行：短码编解码、管理 token、迁移、手动刷新 PhishTank。
package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "linkzipctl",
		Usage: "operator tool for the linkzip URL shortener",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "alphabet",
				Usage:   "short code alphabet (defaults to GENERATOR_STRING)",
				EnvVars: []string{"GENERATOR_STRING"},
			},
			&cli.UintFlag{
				Name:    "block-size",
				Usage:   "number of low bits to reverse (defaults to GENERATOR_BLOCK_SIZE)",
				EnvVars: []string{"GENERATOR_BLOCK_SIZE"},
			},
			&cli.IntFlag{
				Name:    "min-length",
				Usage:   "minimum code length (defaults to GENERATOR_MIN_LENGTH)",
				EnvVars: []string{"GENERATOR_MIN_LENGTH"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "encode",
				Usage:     "print the short code of each id",
				ArgsUsage: "<id>...",
				Action:    encodeCommand,
			},
			{
				Name:      "decode",
				Usage:     "print the id behind each short code",
				ArgsUsage: "<code>...",
				Action:    decodeCommand,
			},
			{
				Name:      "hash-token",
				Usage:     "bcrypt hash an admin token for TOKEN_HASH",
				ArgsUsage: "<token>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "cost", Value: 10, Usage: "bcrypt cost"},
				},
				Action: hashTokenCommand,
			},
			{
				Name:  "admin-token",
				Usage: "mint an admin JWT for /api/v1/admin (needs JWT_SECRET)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "subject", Value: "ops", Usage: "token subject"},
				},
				Action: adminTokenCommand,
			},
			{
				Name:   "migrate",
				Usage:  "apply SQL migrations to DB_DSN",
				Flags:  []cli.Flag{&cli.StringFlag{Name: "dir", Usage: "read migrations from this directory instead of the embedded ones"}},
				Action: migrateCommand,
			},
			{
				Name:  "phishtank-update",
				Usage: "download the PhishTank list into the configured store",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "cleanup-days", Usage: "delete entries not seen for this many days (defaults to PHISHTANK_CLEANUP_DAYS)"},
				},
				Action: phishTankUpdateCommand,
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
