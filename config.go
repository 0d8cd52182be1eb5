package main

import (
	"errors"
	"flag"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/kjk/guestbook/backup"
	"github.com/kjk/guestbook/deploy"
	"github.com/kjk/guestbook/u"
	"github.com/kjk/guestbook/web"
)

const (
	projectName = "guestbook"

	defaultDeployPort = 9301
)

type options struct {
	addr        string
	dataDir     string
	logsDir     string
	databaseURL string
	verbose     bool
	restore     bool
	deploy      bool
	setupAndRun bool
}

func parseFlags(args []string, output io.Writer) (*options, error) {
	opts := &options{}
	flags := flag.NewFlagSet(projectName, flag.ContinueOnError)
	flags.SetOutput(output)
	flags.StringVar(&opts.addr, "addr", web.DefaultAddr, "HTTP server address")
	flags.StringVar(&opts.dataDir, "data-dir", "data", "directory for guestbook.json")
	flags.StringVar(&opts.logsDir, "logs-dir", "logs", "directory for log files")
	flags.StringVar(&opts.databaseURL, "database-url", "", "if given, entries are stored in Postgres instead of a file (default $DATABASE_URL)")
	flags.BoolVar(&opts.verbose, "verbose", false, "verbose logging")
	flags.BoolVar(&opts.restore, "restore", false, "restore guestbook.json from the latest backup before starting")
	flags.BoolVar(&opts.deploy, "deploy", false, "build and deploy to the server")
	flags.BoolVar(&opts.setupAndRun, "setup-and-run", false, "(on the server) install as a service and run")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if flags.NArg() > 0 {
		return nil, errors.New("unexpected arguments")
	}
	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.deploy && opts.setupAndRun {
		return nil, errors.New("-deploy and -setup-and-run are mutually exclusive")
	}
	return opts, nil
}

// loadEnvFile sets variables from .env file unless they're already
// set in the environment. A missing file is not an error.
func loadEnvFile(path string) error {
	d, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	for k, v := range u.ParseEnvMust(d) {
		if _, ok := os.LookupEnv(k); ok {
			continue
		}
		if err = os.Setenv(k, v); err != nil {
			return err
		}
	}
	return nil
}

func backupConfig() *backup.Config {
	c := backup.ConfigFromEnv()
	c.Prefix = projectName
	return c
}

func deployConfig() *deploy.Config {
	port := defaultDeployPort
	if s := os.Getenv("DEPLOY_PORT"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			port = n
		}
	}
	c := &deploy.Config{
		ProjectName:    projectName,
		Domain:         os.Getenv("DEPLOY_DOMAIN"),
		HTTPPort:       port,
		ServerIP:       os.Getenv("DEPLOY_SERVER_IP"),
		PrivateKeyPath: os.Getenv("DEPLOY_KEY_PATH"),
		EnvFilePath:    ".env",
	}
	if c.PrivateKeyPath == "" {
		c.PrivateKeyPath = "~/.ssh/id_ed25519"
	}
	deploy.InitializeDeployConfig(c)
	return c
}
