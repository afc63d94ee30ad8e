package remotestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/textproto"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/slabworks/gradepipe/internal/model"
)

// Config holds FTP connection settings.
type Config struct {
	Addr     string        `yaml:"addr" mapstructure:"addr"`
	User     string        `yaml:"user" mapstructure:"user"`
	Password string        `yaml:"password" mapstructure:"password"`
	Path     string        `yaml:"path" mapstructure:"path"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// conn is the slice of *ftp.ServerConn the client uses, mockable in tests.
type conn interface {
	Retr(path string) (io.ReadCloser, error)
	Stor(path string, r io.Reader) error
	Rename(from, to string) error
	Quit() error
}

type dialFunc func(ctx context.Context) (conn, error)

// FTPClient stores the collection blob on an FTP server. Each operation
// dials, works, and quits; the debounced save cadence makes a persistent
// connection more trouble than it is worth.
type FTPClient struct {
	cfg  Config
	dial dialFunc
}

// NewFTP creates an FTP-backed remote store client.
func NewFTP(cfg Config) (*FTPClient, error) {
	if cfg.Addr == "" {
		return nil, eris.New("remotestore: ftp addr required")
	}
	if cfg.Path == "" {
		return nil, eris.New("remotestore: ftp path required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.User == "" {
		cfg.User = "anonymous"
		cfg.Password = "anonymous@"
	}

	c := &FTPClient{cfg: cfg}
	c.dial = c.dialServer
	return c, nil
}

func (c *FTPClient) dialServer(ctx context.Context) (conn, error) {
	addr := c.cfg.Addr
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "21")
	}

	sc, err := ftp.Dial(addr, ftp.DialWithTimeout(c.cfg.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "remotestore: ftp dial")
	}
	if err := sc.Login(c.cfg.User, c.cfg.Password); err != nil {
		sc.Quit()
		return nil, eris.Wrap(err, "remotestore: ftp login")
	}
	return serverConn{sc}, nil
}

// serverConn adapts *ftp.ServerConn to the conn interface.
type serverConn struct {
	sc *ftp.ServerConn
}

func (s serverConn) Retr(path string) (io.ReadCloser, error) { return s.sc.Retr(path) }
func (s serverConn) Stor(path string, r io.Reader) error     { return s.sc.Stor(path, r) }
func (s serverConn) Rename(from, to string) error            { return s.sc.Rename(from, to) }
func (s serverConn) Quit() error                             { return s.sc.Quit() }

// Load fetches and decodes the blob. A missing blob is a fresh store.
func (c *FTPClient) Load(ctx context.Context) (string, []model.Card, error) {
	cn, err := c.dial(ctx)
	if err != nil {
		return "", nil, err
	}
	defer cn.Quit()

	r, err := cn.Retr(c.cfg.Path)
	if err != nil {
		if isNotFound(err) {
			zap.L().Info("remote blob absent, starting empty", zap.String("path", c.cfg.Path))
			return "", []model.Card{}, nil
		}
		return "", nil, eris.Wrapf(err, "remotestore: retrieve %s", c.cfg.Path)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", nil, eris.Wrap(err, "remotestore: read blob")
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, eris.Wrap(err, "remotestore: decode blob")
	}
	if env.Cards == nil {
		env.Cards = []model.Card{}
	}
	return env.SavedAt.UTC().Format(time.RFC3339Nano), env.Cards, nil
}

// Save uploads the collection under a temporary name and renames it into
// place so a dropped connection never truncates the live blob.
func (c *FTPClient) Save(ctx context.Context, _ string, cards []model.Card) (string, error) {
	env := envelope{
		Version: envelopeVersion,
		SavedAt: time.Now().UTC(),
		Cards:   cards,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", eris.Wrap(err, "remotestore: encode blob")
	}

	cn, err := c.dial(ctx)
	if err != nil {
		return "", err
	}
	defer cn.Quit()

	tmp := c.cfg.Path + ".uploading"
	if err := cn.Stor(tmp, bytes.NewReader(data)); err != nil {
		return "", eris.Wrapf(err, "remotestore: store %s", tmp)
	}
	if err := cn.Rename(tmp, c.cfg.Path); err != nil {
		return "", eris.Wrapf(err, "remotestore: rename %s", c.cfg.Path)
	}

	return env.SavedAt.Format(time.RFC3339Nano), nil
}

// isNotFound reports whether an FTP error means the file does not exist.
func isNotFound(err error) bool {
	var proto *textproto.Error
	if errors.As(err, &proto) {
		return proto.Code == ftp.StatusFileUnavailable
	}
	return false
}
