package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kjk/guestbook/backup"
	"github.com/kjk/guestbook/deploy"
	"github.com/kjk/guestbook/guestbook"
	"github.com/kjk/guestbook/log"
	"github.com/kjk/guestbook/logtastic"
	"github.com/kjk/guestbook/u"
	"github.com/kjk/guestbook/web"
)

// GitCommitHash is set at build time with -ldflags "-X main.GitCommitHash=..."
var GitCommitHash string

// at most one backup upload per this window, which starts at the
// first post after the previous upload
const backupDelay = 30 * time.Second

func initLogging(opts *options) {
	log.Verbose = opts.verbose
	logtastic.Server = os.Getenv("LOGTASTIC_SERVER")
	logtastic.ApiKey = os.Getenv("LOGTASTIC_API_KEY")
	log.Init(&log.Config{
		Dir:     opts.logsDir,
		OnLog:   logtastic.Log,
		OnError: func(s string) { logtastic.LogError(nil, s) },
		OnEvent: func(name string, m map[string]any) {
			m["name"] = name
			logtastic.LogEvent(nil, m)
		},
	})
}

func checkDeployConfig(c *deploy.Config) error {
	if c.ServerIP == "" || c.Domain == "" {
		return errors.New("need DEPLOY_SERVER_IP and DEPLOY_DOMAIN in environment or .env")
	}
	return nil
}

func openBackup(ctx context.Context) *backup.Client {
	conf := backupConfig()
	if !conf.IsValid() {
		log.Logf("backup: not configured, set BACKUP_ACCESS, BACKUP_SECRET, BACKUP_BUCKET, BACKUP_ENDPOINT\n")
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	c, err := backup.New(ctx, conf)
	if err != nil {
		log.Errorf("backup.New() failed with '%s'\n", err)
		return nil
	}
	return c
}

func runServer(opts *options) error {
	ctx := context.Background()
	var store guestbook.Storage
	if opts.databaseURL != "" {
		if opts.restore {
			return errors.New("-restore only works with file storage")
		}
		pg, err := guestbook.OpenPostgres(opts.databaseURL)
		if err != nil {
			return fmt.Errorf("guestbook.OpenPostgres() failed with '%w'", err)
		}
		defer pg.Close()
		log.Logf("storing entries in postgres\n")
		store = pg
	} else {
		if err := os.MkdirAll(opts.dataDir, 0755); err != nil {
			return err
		}
		fileStore := guestbook.New(filepath.Join(opts.dataDir, guestbook.DefaultFileName))
		log.Logf("storing entries in '%s'\n", fileStore.Path())

		bc := openBackup(ctx)
		if opts.restore {
			if bc == nil {
				return errors.New("-restore needs backup configuration")
			}
			if _, err := bc.RestoreLatest(ctx, fileStore.Path()); err != nil {
				return err
			}
		}
		if bc != nil {
			auto := backup.NewAutoBackup(bc, backupDelay)
			fileStore.OnWrite = auto.OnWrite
			// don't lose entries posted just before shutdown
			defer auto.Flush()
		}
		store = fileStore
	}

	srv := web.NewServer(store, &web.Options{Addr: opts.addr})
	return srv.Run(ctx)
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(2)
	}
	u.Must(loadEnvFile(".env"))
	// re-read: DATABASE_URL could come from .env
	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}

	if opts.deploy || opts.setupAndRun {
		c := deployConfig()
		if opts.setupAndRun {
			deploy.SetupOnServerAndRun(c)
			return
		}
		if err := checkDeployConfig(c); err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", err)
			os.Exit(1)
		}
		deploy.ToServer(c)
		return
	}

	initLogging(opts)
	log.Logf("guestbook starting, commit: '%s'\n", GitCommitHash)
	err = runServer(opts)
	if err != nil {
		log.Errorf("%s\n", err)
	}
	logtastic.Stop(5 * time.Second)
	log.Close()
	if err != nil {
		os.Exit(1)
	}
}
