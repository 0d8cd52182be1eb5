// Package deploy builds the guestbook for linux, copies it to a server
// over ssh and runs it there as a systemd service behind caddy.
package deploy

import (
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/kjk/guestbook/log"
	"github.com/kjk/guestbook/u"
	"github.com/melbahja/goph"
	"github.com/pkg/sftp"
)

const (
	kPermExecutable = 0755

	// how many previous builds to keep in backup dir on the server
	keepArchivedBuilds = 5
)

type Config struct {
	ProjectName     string
	Domain          string
	HTTPPort        int
	ServerUser      string
	ServerIP        string
	PrivateKeyPath  string
	CaddyConfigPath string
	// if exists, copied to the server as .env
	EnvFilePath string

	// derived values (calculated by InitializeDeployConfig)
	ServerDir            string
	DataDir              string
	LogsDir              string
	CaddyConfigDelim     string
	CaddyConfig          string
	SystemdRunScriptPath string
	SystemdRunScriptTmpl string
	SystemdService       string
	SystemdServicePath   string
	SystemdServiceLink   string
}

func InitializeDeployConfig(c *Config) {
	if c.ServerUser == "" {
		c.ServerUser = "root"
	}
	if c.CaddyConfigPath == "" {
		c.CaddyConfigPath = "/etc/caddy/Caddyfile"
	}
	c.ServerDir = "/root/apps/" + c.ProjectName
	// data and logs outlive deploys
	c.DataDir = path.Join(c.ServerDir, "data")
	c.LogsDir = path.Join(c.ServerDir, "logs")
	c.CaddyConfigDelim = "# ---- " + c.Domain
	c.CaddyConfig = fmt.Sprintf(`%s {
	reverse_proxy localhost:%v
}`, c.Domain, c.HTTPPort)

	c.SystemdRunScriptPath = path.Join(c.ServerDir, "systemd-run.sh")

	c.SystemdRunScriptTmpl = `#!/bin/bash
cd {workDir}
exec ./{exeName} -addr localhost:{port} -data-dir {dataDir} -logs-dir {logsDir}
`

	c.SystemdService = fmt.Sprintf(`[Unit]
Description=%s
After=network.target

[Service]
ExecStart=%s
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`, c.Domain, c.SystemdRunScriptPath)

	c.SystemdServicePath = path.Join(c.ServerDir, c.ProjectName+".service")
	c.SystemdServiceLink = fmt.Sprintf("/etc/systemd/system/%s.service", c.ProjectName)
}

// RunScript returns content of systemd-run.sh that runs exeName
func (c *Config) RunScript(exeName string) string {
	s := c.SystemdRunScriptTmpl
	s = strings.ReplaceAll(s, "{workDir}", c.ServerDir)
	s = strings.ReplaceAll(s, "{exeName}", exeName)
	s = strings.ReplaceAll(s, "{port}", fmt.Sprintf("%d", c.HTTPPort))
	s = strings.ReplaceAll(s, "{dataDir}", c.DataDir)
	s = strings.ReplaceAll(s, "{logsDir}", c.LogsDir)
	return s
}

var (
	panicIf = u.PanicIf
	logf    = log.Logf
)

func must(err error) {
	u.PanicIfErr(err, "unexpected error: %s\n", err)
}

func sftpFileNotExistsMust(sftp *sftp.Client, path string) {
	_, err := sftp.Stat(path)
	panicIf(err == nil, "file '%s' already exists on the server\n", path)
}

func sftpMkdirAllMust(sftp *sftp.Client, path string) {
	err := sftp.MkdirAll(path)
	panicIf(err != nil, "sftp.MkdirAll('%s') failed with '%s'", path, err)
	logf("created '%s' dir on the server\n", path)
}

func sftpWriteFileMust(sftp *sftp.Client, path string, d []byte) {
	f, err := sftp.Create(path)
	panicIf(err != nil, "sftp.Create('%s') failed with '%s'", path, err)
	_, err = f.Write(d)
	err2 := f.Close()
	panicIf(err != nil || err2 != nil, "writing '%s' on the server failed with '%v' '%v'", path, err, err2)
	logf("wrote '%s' (%s) on the server\n", path, u.FormatSize(int64(len(d))))
}

func sshRunCommandMust(client *goph.Client, exe string, args ...string) {
	cmd, err := client.Command(exe, args...)
	panicIf(err != nil, "client.Command() failed with '%s'\n", err)
	logf("running '%s' on the server\n", cmd.String())
	out, err := cmd.CombinedOutput()
	logf("%s:\n%s\n", cmd.String(), string(out))
	panicIf(err != nil, "cmd.Output() failed with '%s'\n", err)
}

func copyToServerGzippedMust(client *goph.Client, sftp *sftp.Client, localPath, remotePath string) {
	remotePathGz := remotePath + ".gz"
	sftpFileNotExistsMust(sftp, remotePathGz)
	localPathGz := localPath + ".gz"
	must(u.GzipCompressFile(localPathGz, localPath))
	defer os.Remove(localPathGz)

	sizeStr := u.FormatSize(u.FileSize(localPathGz))
	logf("uploading '%s' (%s) to '%s'", localPathGz, sizeStr, remotePathGz)
	timeStart := time.Now()
	err := client.Upload(localPathGz, remotePathGz)
	panicIf(err != nil, "\nclient.Upload() failed with '%s'", err)
	logf(" took %s\n", u.FormatDuration(time.Since(timeStart)))

	// ungzip on the server
	sshRunCommandMust(client, "gzip", "-d", remotePathGz)
}

func deleteOldBuilds(c *Config) {
	pattern := c.ProjectName + "-*"
	files, err := filepath.Glob(pattern)
	must(err)
	for _, path := range files {
		err = os.Remove(path)
		must(err)
		logf("deleted %s\n", path)
	}
}

func writeToFileMust(path string, content string, perm os.FileMode) {
	logf("writing '%s'\n", path)
	must(os.MkdirAll(filepath.Dir(path), 0755))
	os.Remove(path)
	err := os.WriteFile(path, []byte(content), perm)
	must(err)
}

// ExeName returns name of the binary for a given git commit
// e.g. guestbook-2024-05-01-a1b2c3d
func ExeName(projectName, date, hashShort string) string {
	return fmt.Sprintf("%s-%s-%s", projectName, date, hashShort)
}

func buildForLinux(c *Config) string {
	hashShort, date := u.GetGitHashDateMust()
	exeName := ExeName(c.ProjectName, date, hashShort)

	ldFlags := "-X main.GitCommitHash=" + hashShort
	cmd := exec.Command("go", "build", "-o", exeName, "-ldflags", ldFlags, ".")
	cmd.Env = append(os.Environ(), "GOOS=linux", "GOARCH=amd64", "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	logf("%s:\n%s\n", cmd.String(), out)
	panicIf(err != nil, "go build failed")

	sizeStr := u.FormatSize(u.FileSize(exeName))
	logf("created '%s' of size %s\n", exeName, sizeStr)
	return exeName
}

/*
How deploying works:
- compile linux binary with name ${app}-YYYY-MM-DD-${hashShort}
- copy binary (and .env) to the server
- run it on the server with -setup-and-run which makes it
  a systemd service and points caddy at it
*/
func ToServer(c *Config) {
	deleteOldBuilds(c)
	exeName := buildForLinux(c)
	panicIf(!u.FileExists(exeName), "file '%s' doesn't exist", exeName)
	defer os.Remove(exeName)

	serverExePath := path.Join(c.ServerDir, exeName)

	keyPath := u.ExpandTildeInPath(c.PrivateKeyPath)
	panicIf(!u.FileExists(keyPath), "key file '%s' doesn't exist", keyPath)
	auth, err := goph.Key(keyPath, "")
	panicIf(err != nil, "goph.Key() failed with '%s'", err)
	client, err := goph.New(c.ServerUser, c.ServerIP, auth)
	panicIf(err != nil, "goph.New() failed with '%s'", err)
	defer client.Close()

	// one sftp client for multiple operations
	sftp, err := client.NewSftp()
	panicIf(err != nil, "client.NewSftp() failed with '%s'", err)
	defer sftp.Close()

	// check:
	// - caddy is installed
	// - binary doesn't already exist
	{
		_, err = sftp.Stat(c.CaddyConfigPath)
		panicIf(err != nil, "sftp.Stat() for '%s' failed with '%s'\nInstall caddy on the server?\n", c.CaddyConfigPath, err)

		sftpFileNotExistsMust(sftp, serverExePath)
	}

	sftpMkdirAllMust(sftp, c.ServerDir)
	sftpMkdirAllMust(sftp, c.DataDir)

	copyToServerGzippedMust(client, sftp, exeName, serverExePath)

	if c.EnvFilePath != "" && u.FileExists(c.EnvFilePath) {
		d, err := os.ReadFile(c.EnvFilePath)
		must(err)
		sftpWriteFileMust(sftp, path.Join(c.ServerDir, ".env"), d)
	}

	err = sftp.Chmod(serverExePath, kPermExecutable)
	panicIf(err != nil, "sftp.Chmod() failed with '%s'", err)

	sshRunCommandMust(client, serverExePath, "-setup-and-run")
	logf("Running on http://%s:%d or https://%s\n", c.ServerIP, c.HTTPPort, c.Domain)
}

// PidsToKill parses output of "ps ax" and returns pids of processes
// whose command contains projectName, except myPid
func PidsToKill(psOut string, projectName string, myPid int) []string {
	myPidStr := fmt.Sprintf("%d", myPid)
	var res []string
	for _, l := range strings.Split(psOut, "\n") {
		parts := strings.Fields(l)
		// PID TTY STAT TIME COMMAND
		if len(parts) < 5 {
			continue
		}
		pid := parts[0]
		name := parts[4]
		if !strings.Contains(name, projectName) {
			continue
		}
		// no suicide allowed
		if pid == myPidStr {
			continue
		}
		res = append(res, pid)
	}
	return res
}

func killOldInstances(c *Config) {
	// note: must use "ps ax" (and not e.g. "pkill") because we don't want to kill ourselves
	out := u.RunMust("ps", "ax")
	pids := PidsToKill(out, c.ProjectName, os.Getpid())
	for _, pid := range pids {
		u.RunLoggedMust("kill", pid)
	}
	if len(pids) == 0 {
		logf("no %s* processes to kill\n", c.ProjectName)
	}
}

// ArchivedToDelete returns archived builds except keep most recent ones.
// Build names sort by date because date is part of the name.
func ArchivedToDelete(files []string, keep int) []string {
	files = slices.Clone(files)
	slices.Sort(files)
	slices.Reverse(files)
	if len(files) <= keep {
		return nil
	}
	return files[keep:]
}

func archiveOldBuilds(c *Config, ownExeName string) {
	pattern := filepath.Join(c.ServerDir, c.ProjectName+"-*")
	files, err := filepath.Glob(pattern)
	must(err)
	logf("archiving previous deploys, pattern: '%s', %d files\n", pattern, len(files))
	backupDir := filepath.Join(c.ServerDir, "backup")
	for _, file := range files {
		name := filepath.Base(file)
		if name == ownExeName {
			continue
		}
		backupPath := filepath.Join(backupDir, name)
		err = os.MkdirAll(backupDir, 0755)
		u.PanicIfErr(err, "os.MkdirAll('%s') failed with %s\n", backupDir, err)
		err = os.Rename(file, backupPath)
		u.PanicIfErr(err, "os.Rename('%s', '%s') failed with %s\n", file, backupPath, err)
		logf("moved '%s' to '%s'\n", file, backupPath)
	}

	pattern = filepath.Join(backupDir, c.ProjectName+"-*")
	files, err = filepath.Glob(pattern)
	must(err)
	for _, file := range ArchivedToDelete(files, keepArchivedBuilds) {
		err = os.Remove(file)
		u.PanicIfErr(err, "os.Remove('%s') failed with %s\n", file, err)
		logf("deleted '%s'\n", file)
	}
}

// SetupOnServerAndRun is executed on the server by the binary
// we just uploaded
func SetupOnServerAndRun(c *Config) {
	logf("SetupOnServerAndRun: projectName: '%s'\n", c.ProjectName)

	if !u.FileExists(c.CaddyConfigPath) {
		logf("%s doesn't exist.\nMust install caddy?\n", c.CaddyConfigPath)
		os.Exit(1)
	}

	killOldInstances(c)

	ownExeName := filepath.Base(os.Args[0])
	must(os.MkdirAll(c.DataDir, 0755))

	// configure systemd to run us and restart on reboot
	{
		writeToFileMust(c.SystemdRunScriptPath, c.RunScript(ownExeName), kPermExecutable)

		// systemd .service file linked from /etc/systemd/system/
		writeToFileMust(c.SystemdServicePath, c.SystemdService, 0644)
		os.Remove(c.SystemdServiceLink)
		err := os.Symlink(c.SystemdServicePath, c.SystemdServiceLink)
		panicIf(err != nil, "os.Symlink(%s, %s) failed with '%s'", c.SystemdServicePath,
			c.SystemdServiceLink, err)
		logf("created symlink '%s' to '%s'\n", c.SystemdServiceLink, c.SystemdServicePath)

		serviceName := c.ProjectName + ".service"

		// daemon-reload needed if service file changed
		u.RunLoggedMust("systemctl", "daemon-reload")
		u.RunLoggedMust("systemctl", "enable", serviceName)
		u.RunLoggedMust("systemctl", "restart", serviceName)
	}

	// update and reload caddy config
	didReplace := u.AppendOrReplaceInFileMust(c.CaddyConfigPath, c.CaddyConfig, c.CaddyConfigDelim)
	if didReplace {
		u.RunLoggedMust("systemctl", "reload", "caddy")
	}

	archiveOldBuilds(c, ownExeName)
}
