package pgwire

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"time"

	pgproto3 "github.com/jackc/pgproto3/v2"
	log "github.com/sirupsen/logrus"
)

var ErrClosed = errors.New("pgwire: connection closed")

type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

func (cfg Config) Address() string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == "" {
		port = "5432"
	}
	return net.JoinHostPort(host, port)
}

// Error is an ErrorResponse sent by the server.
type Error struct {
	Severity string
	Code     string
	Message  string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("pgwire: %s: %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("pgwire: %s: %s (%s)", e.Severity, e.Message, e.Code)
}

type Result struct {
	Columns []string
	Rows    [][]string
	Tag     string
	Latency time.Duration
}

// Conn is a single PostgreSQL protocol 3 connection speaking only the simple
// query protocol.
type Conn struct {
	conn   net.Conn
	fe     *pgproto3.Frontend
	params map[string]string
	closed bool
}

func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", cfg.Address())
	if err != nil {
		return nil, fmt.Errorf("pgwire: %w", err)
	}

	c := &Conn{
		conn:   conn,
		fe:     pgproto3.NewFrontend(pgproto3.NewChunkReader(conn), conn),
		params: map[string]string{},
	}
	err = c.startup(ctx, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Conn) watch(ctx context.Context) func() bool {
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
	} else {
		c.conn.SetDeadline(time.Time{})
	}
	return context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Now())
	})
}

func (c *Conn) send(msg pgproto3.FrontendMessage) error {
	buf, err := msg.Encode(nil)
	if err == nil {
		_, err = c.conn.Write(buf)
	}
	if err != nil {
		return fmt.Errorf("pgwire: send %T: %w", msg, err)
	}
	return nil
}

func (c *Conn) receive(ctx context.Context) (pgproto3.BackendMessage, error) {
	msg, err := c.fe.Receive()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("pgwire: receive: %w", err)
	}
	return msg, nil
}

func md5Password(user, password string, salt [4]byte) string {
	sum := md5.Sum([]byte(password + user))
	sum = md5.Sum(append([]byte(hex.EncodeToString(sum[:])), salt[:]...))
	return "md5" + hex.EncodeToString(sum[:])
}

func (c *Conn) startup(ctx context.Context, cfg Config) error {
	stop := c.watch(ctx)
	defer stop()

	params := map[string]string{
		"user":             cfg.User,
		"application_name": "pkbench",
	}
	if cfg.Database != "" {
		params["database"] = cfg.Database
	}
	err := c.send(&pgproto3.StartupMessage{
		ProtocolVersion: pgproto3.ProtocolVersionNumber,
		Parameters:      params,
	})
	if err != nil {
		return err
	}

	for {
		msg, err := c.receive(ctx)
		if err != nil {
			return err
		}

		switch msg := msg.(type) {
		case *pgproto3.AuthenticationOk:
		case *pgproto3.AuthenticationCleartextPassword:
			err = c.send(&pgproto3.PasswordMessage{Password: cfg.Password})
			if err != nil {
				return err
			}
		case *pgproto3.AuthenticationMD5Password:
			err = c.send(&pgproto3.PasswordMessage{
				Password: md5Password(cfg.User, cfg.Password, msg.Salt),
			})
			if err != nil {
				return err
			}
		case *pgproto3.ParameterStatus:
			c.params[msg.Name] = msg.Value
		case *pgproto3.BackendKeyData:
		case *pgproto3.NoticeResponse:
			log.WithField("message", msg.Message).Info("pgwire notice")
		case *pgproto3.ErrorResponse:
			return &Error{Severity: msg.Severity, Code: msg.Code, Message: msg.Message}
		case *pgproto3.ReadyForQuery:
			log.WithFields(log.Fields{
				"address":  cfg.Address(),
				"user":     cfg.User,
				"database": cfg.Database,
			}).Debug("pgwire connected")
			return nil
		default:
			return fmt.Errorf("pgwire: unexpected startup message: %T", msg)
		}
	}
}

// Parameter returns a run time parameter reported by the server during
// startup, such as server_version.
func (c *Conn) Parameter(nam string) string {
	return c.params[nam]
}

// Exec sends sql as a simple query and waits for the server to be ready for
// the next one; the latency covers the whole round trip. Only the last result
// of a multiple statement query is returned.
func (c *Conn) Exec(ctx context.Context, sql string) (*Result, error) {
	if c.closed {
		return nil, ErrClosed
	}

	stop := c.watch(ctx)
	defer stop()

	start := time.Now()
	err := c.send(&pgproto3.Query{String: sql})
	if err != nil {
		return nil, err
	}

	res := &Result{}
	var qerr error
	for {
		msg, err := c.receive(ctx)
		if err != nil {
			return nil, err
		}

		switch msg := msg.(type) {
		case *pgproto3.RowDescription:
			res.Columns = res.Columns[:0]
			res.Rows = nil
			for _, fd := range msg.Fields {
				res.Columns = append(res.Columns, string(fd.Name))
			}
		case *pgproto3.DataRow:
			row := make([]string, len(msg.Values))
			for vdx, v := range msg.Values {
				if v == nil {
					row[vdx] = "NULL"
				} else {
					row[vdx] = string(v)
				}
			}
			res.Rows = append(res.Rows, row)
		case *pgproto3.CommandComplete:
			res.Tag = string(msg.CommandTag)
		case *pgproto3.EmptyQueryResponse:
		case *pgproto3.NoticeResponse:
			log.WithField("message", msg.Message).Info("pgwire notice")
		case *pgproto3.ParameterStatus:
			c.params[msg.Name] = msg.Value
		case *pgproto3.ErrorResponse:
			qerr = &Error{Severity: msg.Severity, Code: msg.Code, Message: msg.Message}
		case *pgproto3.ReadyForQuery:
			res.Latency = time.Since(start)
			if qerr != nil {
				return nil, qerr
			}
			return res, nil
		default:
			return nil, fmt.Errorf("pgwire: unexpected message: %T", msg)
		}
	}
}

func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	c.conn.SetDeadline(time.Now().Add(time.Second))
	err := c.send(&pgproto3.Terminate{})
	cerr := c.conn.Close()
	if err != nil {
		return err
	}
	return cerr
}
