// Package ftp fetches assets over FTP with byte-offset resume, matching
// the part-file convention of the HTTP workers.
package ftp

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/enmassa-dl/enmassa/pkg/errors"
)

// Config holds FTP connection settings.
type Config struct {
	DialTimeout time.Duration
	Username    string
	Password    string
}

// DefaultConfig returns anonymous-access defaults.
func DefaultConfig() *Config {
	return &Config{
		DialTimeout: 10 * time.Second,
		Username:    "anonymous",
		Password:    "anonymous@example.com",
	}
}

// Fetcher opens FTP streams at a byte offset. Each Open dials its own
// connection, so one Fetcher can serve concurrent download workers.
type Fetcher struct {
	config *Config
}

// NewFetcher creates a fetcher. A nil config gets anonymous defaults.
func NewFetcher(config *Config) *Fetcher {
	if config == nil {
		config = DefaultConfig()
	}

	return &Fetcher{config: config}
}

// Open connects to the server in the URL and starts retrieving the file at
// offset. It returns the stream and the total remote size. A nil body with
// a nil error means offset is already at or past the end of the file, so
// nothing remains to transfer. FTP servers honor REST offsets or fail; a
// silent restart from zero cannot happen here.
func (f *Fetcher) Open(ctx context.Context, rawURL string, offset int64) (io.ReadCloser, int64, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, 0, errors.WrapWithURL(err, errors.CodeInvalidURL, "parsing ftp URL", rawURL)
	}

	filePath := parsed.Path
	if filePath == "" || filePath == "/" {
		return nil, 0, errors.NewWithDetails(errors.CodeInvalidURL, "ftp URL has no file path", rawURL)
	}

	conn, err := f.dial(ctx, parsed)
	if err != nil {
		return nil, 0, err
	}

	size, err := conn.FileSize(filePath)
	if err != nil {
		_ = conn.Quit()
		return nil, 0, errors.WrapWithURL(err, errors.CodeNotFound,
			fmt.Sprintf("querying size of %s", filePath), rawURL)
	}

	if offset >= size {
		_ = conn.Quit()
		return nil, size, nil
	}

	resp, err := conn.RetrFrom(filePath, uint64(offset))
	if err != nil {
		_ = conn.Quit()
		return nil, 0, errors.WrapWithURL(err, errors.CodeNetworkError,
			fmt.Sprintf("retrieving %s from offset %d", filePath, offset), rawURL)
	}

	return &transferBody{resp: resp, conn: conn}, size, nil
}

func (f *Fetcher) dial(ctx context.Context, parsed *url.URL) (*ftp.ServerConn, error) {
	host := parsed.Hostname()
	port := parsed.Port()
	if port == "" {
		port = "21"
	}

	server := host + ":" + port

	conn, err := ftp.Dial(server,
		ftp.DialWithTimeout(f.config.DialTimeout),
		ftp.DialWithContext(ctx))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeNetworkError,
			fmt.Sprintf("connecting to ftp server %s", server))
	}

	username := f.config.Username
	password := f.config.Password

	if parsed.User != nil {
		username = parsed.User.Username()
		if pwd, set := parsed.User.Password(); set {
			password = pwd
		}
	}

	if err := conn.Login(username, password); err != nil {
		_ = conn.Quit()
		return nil, errors.Wrap(err, errors.CodeClientError,
			fmt.Sprintf("ftp login failed for user %s", username))
	}

	return conn, nil
}

// transferBody ties the data stream to its control connection so closing
// the body also quits the session.
type transferBody struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (b *transferBody) Read(p []byte) (int, error) {
	return b.resp.Read(p)
}

func (b *transferBody) Close() error {
	err := b.resp.Close()

	if quitErr := b.conn.Quit(); quitErr != nil && err == nil {
		err = quitErr
	}

	return err
}
