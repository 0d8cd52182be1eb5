// Package backup uploads compressed snapshots of the guestbook file
// to S3-compatible storage and restores the most recent one.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kjk/guestbook/atomicfile"
	"github.com/kjk/guestbook/log"
	"github.com/kjk/guestbook/u"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	CodecBrotli = "br"
	CodecZstd   = "zstd"

	// DefaultPrefix is where backups go in the bucket if Config.Prefix is empty
	DefaultPrefix = "guestbook"
)

type Config struct {
	Access   string
	Secret   string
	Bucket   string
	Endpoint string
	Region   string
	// CodecBrotli (default) or CodecZstd
	Codec  string
	Prefix string
	// if set, logs http requests made to the storage
	RequestTrace io.Writer
}

// ConfigFromEnv reads BACKUP_* environment variables
func ConfigFromEnv() *Config {
	return &Config{
		Access:   os.Getenv("BACKUP_ACCESS"),
		Secret:   os.Getenv("BACKUP_SECRET"),
		Bucket:   os.Getenv("BACKUP_BUCKET"),
		Endpoint: os.Getenv("BACKUP_ENDPOINT"),
		Region:   os.Getenv("BACKUP_REGION"),
		Codec:    os.Getenv("BACKUP_CODEC"),
	}
}

// IsValid returns true if all fields required to connect are set
func (c *Config) IsValid() bool {
	if c == nil {
		return false
	}
	return c.Access != "" && c.Secret != "" && c.Bucket != "" && c.Endpoint != ""
}

func (c *Config) codec() string {
	if c.Codec == "" {
		return CodecBrotli
	}
	return c.Codec
}

func (c *Config) prefix() string {
	if c.Prefix == "" {
		return DefaultPrefix
	}
	return strings.Trim(c.Prefix, "/")
}

// endpoint can be "host:port" (https) or have explicit
// "http://" or "https://" prefix e.g. for local minio
func parseEndpoint(endpoint string) (string, bool) {
	if s, ok := strings.CutPrefix(endpoint, "http://"); ok {
		return s, false
	}
	s := strings.TrimPrefix(endpoint, "https://")
	return s, true
}

func checkCodec(codec string) error {
	switch codec {
	case CodecBrotli, CodecZstd:
		return nil
	}
	return fmt.Errorf("unknown codec '%s'", codec)
}

// Compress compresses d with codec (CodecBrotli or CodecZstd)
func Compress(codec string, d []byte) ([]byte, error) {
	switch codec {
	case CodecBrotli:
		return u.BrCompressDataBest(d)
	case CodecZstd:
		return u.ZstdCompressData(d)
	}
	return nil, checkCodec(codec)
}

// Decompress reverses Compress
func Decompress(codec string, d []byte) ([]byte, error) {
	switch codec {
	case CodecBrotli:
		return u.BrDecompressData(d)
	case CodecZstd:
		return u.ZstdDecompressData(d)
	}
	return nil, checkCodec(codec)
}

// RemotePath returns <prefix>/YYYY/MM-DD/HHMMSS.json.<codec>.
// Time is in UTC so that later backups sort after earlier ones.
func RemotePath(prefix string, codec string, t time.Time) string {
	name := t.UTC().Format("2006/01-02/150405") + ".json." + codec
	return path.Join(prefix, name)
}

// CodecFromRemotePath returns codec based on the extension of remotePath
// or "" if it's not a path created by RemotePath
func CodecFromRemotePath(remotePath string) string {
	ext := strings.TrimPrefix(path.Ext(remotePath), ".")
	if checkCodec(ext) != nil {
		return ""
	}
	if !strings.HasSuffix(strings.TrimSuffix(remotePath, "."+ext), ".json") {
		return ""
	}
	return ext
}

// LatestRemotePath returns the most recent backup among remotePaths
// or "" if there are none
func LatestRemotePath(remotePaths []string) string {
	var a []string
	for _, s := range remotePaths {
		if CodecFromRemotePath(s) != "" {
			a = append(a, s)
		}
	}
	if len(a) == 0 {
		return ""
	}
	sort.Strings(a)
	return a[len(a)-1]
}

type Client struct {
	Client *minio.Client
	config *Config
	Bucket string
}

// New connects to the storage and checks that the bucket exists
func New(ctx context.Context, config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("must provide config")
	}
	c := config
	if !c.IsValid() {
		return nil, errors.New("must provide Access, Secret, Bucket and Endpoint in config")
	}
	if err := checkCodec(c.codec()); err != nil {
		return nil, err
	}

	endpoint, secure := parseEndpoint(c.Endpoint)
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Access, c.Secret, ""),
		Region: c.Region,
		Secure: secure,
	})
	if err != nil {
		return nil, err
	}
	if c.RequestTrace != nil {
		mc.TraceOn(c.RequestTrace)
	}
	found, err := mc.BucketExists(ctx, c.Bucket)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("bucket '%s' doesn't exist", c.Bucket)
	}

	return &Client{
		Client: mc,
		config: c,
		Bucket: c.Bucket,
	}, nil
}

func (c *Client) UploadData(ctx context.Context, remotePath string, data []byte) (minio.UploadInfo, error) {
	opts := minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	}
	r := bytes.NewReader(data)
	return c.Client.PutObject(ctx, c.Bucket, remotePath, r, int64(len(data)), opts)
}

// UploadFile uploads a compressed copy of the file at localPath
// and returns the remote path it was uploaded as
func (c *Client) UploadFile(ctx context.Context, localPath string) (string, error) {
	timeStart := time.Now()
	d, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}
	codec := c.config.codec()
	compressed, err := Compress(codec, d)
	if err != nil {
		return "", err
	}
	remotePath := RemotePath(c.config.prefix(), codec, time.Now())
	if _, err = c.UploadData(ctx, remotePath, compressed); err != nil {
		return "", fmt.Errorf("upload of '%s' as '%s' failed with '%w'", localPath, remotePath, err)
	}
	dur := time.Since(timeStart)
	log.Logf("backup: uploaded '%s' (%s => %s) as '%s' in %s\n", localPath, u.FormatSize(int64(len(d))), u.FormatSize(int64(len(compressed))), remotePath, u.FormatDuration(dur))
	log.EventWithDuration("backup_upload", dur, "path", remotePath, "size", len(d), "compressed", len(compressed))
	return remotePath, nil
}

// ListRemotePaths returns paths of all objects under configured prefix
func (c *Client) ListRemotePaths(ctx context.Context) ([]string, error) {
	opts := minio.ListObjectsOptions{
		Prefix:    c.config.prefix() + "/",
		Recursive: true,
	}
	return listKeys(ctx, func(ctx context.Context) <-chan minio.ObjectInfo {
		return c.Client.ListObjects(ctx, c.Bucket, opts)
	})
}

// listKeys collects keys of listed objects. On error the listing
// is cancelled so the goroutine feeding the channel exits.
func listKeys(ctx context.Context, list func(context.Context) <-chan minio.ObjectInfo) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var res []string
	for obj := range list(ctx) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		res = append(res, obj.Key)
	}
	return res, nil
}

func (c *Client) DownloadData(ctx context.Context, remotePath string) ([]byte, error) {
	obj, err := c.Client.GetObject(ctx, c.Bucket, remotePath, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

// RestoreLatest downloads the most recent backup and atomically
// replaces dstPath with its decompressed content.
// Returns remote path of the backup.
func (c *Client) RestoreLatest(ctx context.Context, dstPath string) (string, error) {
	timeStart := time.Now()
	paths, err := c.ListRemotePaths(ctx)
	if err != nil {
		return "", err
	}
	remotePath := LatestRemotePath(paths)
	if remotePath == "" {
		return "", fmt.Errorf("no backups in '%s/%s'", c.Bucket, c.config.prefix())
	}
	compressed, err := c.DownloadData(ctx, remotePath)
	if err != nil {
		return "", err
	}
	d, err := Decompress(CodecFromRemotePath(remotePath), compressed)
	if err != nil {
		return "", fmt.Errorf("decompressing '%s' failed with '%w'", remotePath, err)
	}
	// ensure there's a dir for destination file
	if err = os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return "", err
	}
	if err = atomicfile.WriteFile(dstPath, d); err != nil {
		return "", err
	}
	dur := time.Since(timeStart)
	log.Logf("backup: restored '%s' from '%s' in %s\n", dstPath, remotePath, u.FormatDuration(dur))
	log.EventWithDuration("backup_restore", dur, "path", remotePath, "size", len(d))
	return remotePath, nil
}

func (c *Client) Remove(ctx context.Context, remotePath string) error {
	return c.Client.RemoveObject(ctx, c.Bucket, remotePath, minio.RemoveObjectOptions{})
}
