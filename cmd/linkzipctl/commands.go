package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/bcrypt"

	"linkzip.local/internal/app/linkzip/phishtank"
	"linkzip.local/internal/app/linkzip/repo"
	"linkzip.local/internal/app/linkzip/shortcode"
	"linkzip.local/internal/platform/auth"
	"linkzip.local/internal/platform/config"
	"linkzip.local/internal/platform/db"
	"linkzip.local/internal/platform/migrate"
)

// codecFrom 命令行参数优先，其次是 .env / 环境变量里的 GENERATOR_*
func codecFrom(c *cli.Context) (*shortcode.Codec, int, error) {
	cfg := config.Load()
	alphabet := cfg.GeneratorString
	if c.IsSet("alphabet") {
		alphabet = c.String("alphabet")
	}
	block := cfg.GeneratorBlockSize
	if c.IsSet("block-size") {
		block = c.Uint("block-size")
	}
	minLen := cfg.GeneratorMinLength
	if c.IsSet("min-length") {
		minLen = c.Int("min-length")
	}
	codec, err := shortcode.New(alphabet, block)
	return codec, minLen, err
}

func encodeCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("encode: at least one id is required", 2)
	}
	codec, minLen, err := codecFrom(c)
	if err != nil {
		return err
	}
	for _, arg := range c.Args().Slice() {
		id, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return fmt.Errorf("encode %q: %w", arg, err)
		}
		code, err := codec.EncodeURL(id, minLen)
		if err != nil {
			return fmt.Errorf("encode %d: %w", id, err)
		}
		fmt.Fprintf(c.App.Writer, "%d\t%s\n", id, code)
	}
	return nil
}

func decodeCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("decode: at least one code is required", 2)
	}
	codec, _, err := codecFrom(c)
	if err != nil {
		return err
	}
	for _, code := range c.Args().Slice() {
		id, err := codec.DecodeURL(code)
		if err != nil {
			return fmt.Errorf("decode %q: %w", code, err)
		}
		fmt.Fprintf(c.App.Writer, "%s\t%d\n", code, id)
	}
	return nil
}

func hashTokenCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: linkzipctl hash-token <token>", 2)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(c.Args().First()), c.Int("cost"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(hash))
	return nil
}

func adminTokenCommand(c *cli.Context) error {
	cfg := config.Load()
	if cfg.JWTSecret == "" {
		return cli.Exit("JWT_SECRET is not set", 1)
	}
	ts, err := auth.NewHS256Service(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		return err
	}
	token, err := ts.Sign(c.String("subject"), auth.RoleAdmin)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, token)
	return nil
}

func migrateCommand(c *cli.Context) error {
	cfg := config.Load()
	ctx, cancel := context.WithTimeout(c.Context, time.Minute)
	defer cancel()

	pool, err := openPool(ctx, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	res, err := migrate.Up(ctx, pool, migrate.Options{Dir: c.String("dir")})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "source: %s\n", res.Source)
	for _, f := range res.AppliedFiles {
		fmt.Fprintf(c.App.Writer, "applied: %s\n", f)
	}
	fmt.Fprintf(c.App.Writer, "skipped: %d\n", len(res.SkippedFiles))
	return nil
}

func openPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := db.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func phishTankUpdateCommand(c *cli.Context) error {
	cfg := config.Load()
	if !cfg.PhishTankEnabled() {
		return cli.Exit("PHISHTANK is not set", 1)
	}
	if cfg.DBType == config.DBTypeInMemory {
		return errors.New("phishtank-update needs a persistent store, DB_TYPE is inmemory")
	}
	days := cfg.PhishTankCleanupDays
	if c.IsSet("cleanup-days") {
		days = c.Int("cleanup-days")
	}

	ctx, cancel := context.WithTimeout(c.Context, 10*time.Minute)
	defer cancel()
	store, closeStore, err := repo.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	u := phishtank.NewUpdater(phishtank.NewClient(cfg.PhishTank, cfg.APIName), store, nil)
	rep, err := u.Update(ctx, days)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "fetched: %d\ninserted: %d\ndeleted: %d\n", rep.Fetched, rep.Inserted, rep.Deleted)
	return nil
}
