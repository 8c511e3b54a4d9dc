// Package pgwiretest runs an in-process PostgreSQL protocol 3 backend with
// canned query results.
package pgwiretest

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	pgproto3 "github.com/jackc/pgproto3/v2"
	"github.com/lib/pq/oid"
	log "github.com/sirupsen/logrus"
)

type AuthMethod int

const (
	AuthTrust AuthMethod = iota
	AuthCleartext
	AuthMD5
)

// Result is returned for a query. Columns are sent as text; a nil Columns
// sends only the command tag.
type Result struct {
	Columns []string
	Types   []oid.Oid
	Rows    [][]string
	Tag     string
}

type Server struct {
	User     string
	Password string
	Auth     AuthMethod
	Results  map[string]*Result

	mutex    sync.Mutex
	l        net.Listener
	wg       sync.WaitGroup
	conns    map[net.Conn]struct{}
	queries  []string
	shutdown bool
}

// Start listens on a loopback port and returns the address.
func (svr *Server) Start() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}

	svr.mutex.Lock()
	svr.l = l
	svr.conns = map[net.Conn]struct{}{}
	svr.mutex.Unlock()

	svr.wg.Add(1)
	go svr.serve(l)
	return l.Addr().String(), nil
}

func (svr *Server) serve(l net.Listener) {
	defer svr.wg.Done()

	for {
		conn, err := l.Accept()
		if err != nil {
			svr.mutex.Lock()
			shutdown := svr.shutdown
			svr.mutex.Unlock()
			if !shutdown {
				log.WithField("error", err.Error()).Error("pgwiretest accept")
			}
			return
		}

		if !svr.trackConn(conn, true) {
			conn.Close()
			return
		}

		svr.wg.Add(1)
		go func() {
			defer svr.wg.Done()
			defer func() {
				if svr.trackConn(conn, false) {
					conn.Close()
				}
			}()

			svr.handleConn(conn, log.WithField("addr", conn.RemoteAddr().String()))
		}()
	}
}

func (svr *Server) trackConn(conn net.Conn, add bool) bool {
	svr.mutex.Lock()
	defer svr.mutex.Unlock()

	if add {
		if svr.shutdown {
			return false
		}
		svr.conns[conn] = struct{}{}
		return true
	}
	if _, ok := svr.conns[conn]; !ok {
		return false
	}
	delete(svr.conns, conn)
	return true
}

// Close stops listening, closes every connection, and waits for them to
// finish.
func (svr *Server) Close() error {
	svr.mutex.Lock()
	svr.shutdown = true
	var err error
	if svr.l != nil {
		err = svr.l.Close()
	}
	for conn := range svr.conns {
		conn.Close()
		delete(svr.conns, conn)
	}
	svr.mutex.Unlock()

	svr.wg.Wait()
	return err
}

// Queries returns every query received so far.
func (svr *Server) Queries() []string {
	svr.mutex.Lock()
	defer svr.mutex.Unlock()

	return append([]string(nil), svr.queries...)
}

func write(conn net.Conn, msg pgproto3.BackendMessage, entry *log.Entry) error {
	buf, err := msg.Encode(nil)
	if err == nil {
		_, err = conn.Write(buf)
	}
	if err != nil {
		entry.Errorf("send %T: %s", msg, err)
	}
	return err
}

func errorResponse(conn net.Conn, code, msg string, entry *log.Entry) {
	write(conn,
		&pgproto3.ErrorResponse{
			Severity: "ERROR",
			Code:     code,
			Message:  msg,
		}, entry)
}

func (svr *Server) handleConn(conn net.Conn, entry *log.Entry) {
	be := pgproto3.NewBackend(pgproto3.NewChunkReader(conn), conn)

	var user string
	for user == "" {
		msg, err := be.ReceiveStartupMessage()
		if err != nil {
			entry.Errorf("receive startup message: %s", err)
			return
		}

		switch msg := msg.(type) {
		case *pgproto3.StartupMessage:
			user = msg.Parameters["user"]
			if user == "" {
				errorResponse(conn, "28000", "no user specified", entry)
				return
			}
		case *pgproto3.SSLRequest:
			_, err := conn.Write([]byte("N"))
			if err != nil {
				entry.Errorf("send deny SSL request: %s", err)
				return
			}
		default:
			entry.Errorf("unknown startup message: %T", msg)
			return
		}
	}

	if !svr.authenticate(conn, be, user, entry) {
		return
	}

	for _, msg := range []pgproto3.BackendMessage{
		&pgproto3.AuthenticationOk{},
		&pgproto3.ParameterStatus{Name: "server_version", Value: "pgwiretest"},
		&pgproto3.BackendKeyData{ProcessID: 1, SecretKey: 2},
	} {
		if write(conn, msg, entry) != nil {
			return
		}
	}

	for {
		if write(conn, &pgproto3.ReadyForQuery{TxStatus: 'I'}, entry) != nil {
			return
		}

		msg, err := be.Receive()
		if err != nil {
			if err != io.EOF {
				entry.Errorf("receive: %s", err)
			}
			return
		}

		switch msg := msg.(type) {
		case *pgproto3.Query:
			svr.query(conn, msg.String, entry)
		case *pgproto3.Terminate:
			return
		default:
			entry.Errorf("unexpected message: %T", msg)
			errorResponse(conn, "08P01", fmt.Sprintf("unexpected message: %T", msg), entry)
		}
	}
}

func (svr *Server) authenticate(conn net.Conn, be *pgproto3.Backend, user string,
	entry *log.Entry) bool {

	var want string
	switch svr.Auth {
	case AuthTrust:
		return true
	case AuthCleartext:
		be.SetAuthType(pgproto3.AuthTypeCleartextPassword)
		if write(conn, &pgproto3.AuthenticationCleartextPassword{}, entry) != nil {
			return false
		}
		want = svr.Password
	case AuthMD5:
		var salt [4]byte
		_, err := rand.Read(salt[:])
		if err != nil {
			entry.Errorf("salt: %s", err)
			return false
		}
		be.SetAuthType(pgproto3.AuthTypeMD5Password)
		if write(conn, &pgproto3.AuthenticationMD5Password{Salt: salt}, entry) != nil {
			return false
		}
		sum := md5.Sum([]byte(svr.Password + svr.User))
		sum = md5.Sum(append([]byte(hex.EncodeToString(sum[:])), salt[:]...))
		want = "md5" + hex.EncodeToString(sum[:])
	}

	msg, err := be.Receive()
	if err != nil {
		entry.Errorf("receive password: %s", err)
		return false
	}
	pm, ok := msg.(*pgproto3.PasswordMessage)
	if !ok {
		entry.Errorf("expected password message: %T", msg)
		return false
	}
	if user != svr.User || pm.Password != want {
		errorResponse(conn, "28P01",
			fmt.Sprintf("password authentication failed for user \"%s\"", user), entry)
		return false
	}
	return true
}

func (svr *Server) query(conn net.Conn, sql string, entry *log.Entry) {
	sql = strings.TrimSpace(sql)
	svr.mutex.Lock()
	svr.queries = append(svr.queries, sql)
	svr.mutex.Unlock()

	if sql == "" {
		write(conn, &pgproto3.EmptyQueryResponse{}, entry)
		return
	}

	res, ok := svr.Results[sql]
	if !ok {
		errorResponse(conn, "42601", fmt.Sprintf("unexpected query: %s", sql), entry)
		return
	}

	if res.Columns != nil {
		var fields []pgproto3.FieldDescription
		for cdx, col := range res.Columns {
			typ := oid.T_text
			if cdx < len(res.Types) {
				typ = res.Types[cdx]
			}
			fields = append(fields,
				pgproto3.FieldDescription{
					Name:         []byte(col),
					DataTypeOID:  uint32(typ),
					DataTypeSize: typeSize(typ),
					TypeModifier: -1,
					Format:       0,
				})
		}
		if write(conn, &pgproto3.RowDescription{Fields: fields}, entry) != nil {
			return
		}

		for _, row := range res.Rows {
			values := make([][]byte, len(row))
			for vdx, v := range row {
				if v != "NULL" {
					values[vdx] = []byte(v)
				}
			}
			if write(conn, &pgproto3.DataRow{Values: values}, entry) != nil {
				return
			}
		}
	}

	tag := res.Tag
	if tag == "" {
		tag = fmt.Sprintf("SELECT %d", len(res.Rows))
	}
	write(conn, &pgproto3.CommandComplete{CommandTag: []byte(tag)}, entry)
}

func typeSize(typ oid.Oid) int16 {
	switch typ {
	case oid.T_bool:
		return 1
	case oid.T_int2:
		return 2
	case oid.T_int4, oid.T_float4:
		return 4
	case oid.T_int8, oid.T_float8:
		return 8
	default:
		return -1
	}
}
