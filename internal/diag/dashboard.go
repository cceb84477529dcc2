// Package diag implements C8: an observability-only, loopback-bound HTTP
// server exposing a job-table snapshot and a streaming log tail. It is not
// counted toward the seven core components and never mutates proxy state.
package diag

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/istopwg/ippinfra/internal/jobtable"
	"github.com/istopwg/ippinfra/internal/logging"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Dashboard serves GET /jobs (a JSON snapshot) and GET /logs (a WebSocket
// log-tail stream), both read-only views over the Job Table and Logger.
type Dashboard struct {
	table *jobtable.Table
	log   *logging.Logger
	addr  string
	srv   *http.Server

	mu      sync.Mutex
	clients map[*websocket.Conn]chan logging.Entry
}

// New constructs a Dashboard bound to addr, which must be a loopback
// address — this is observability tooling, not a remote management plane.
func New(table *jobtable.Table, log *logging.Logger, addr string) *Dashboard {
	d := &Dashboard{
		table:   table,
		log:     log,
		addr:    addr,
		clients: make(map[*websocket.Conn]chan logging.Entry),
	}
	log.SetOnEntry(d.fanOut)
	return d
}

// Start launches the HTTP server in a background goroutine and returns
// immediately; call Stop to shut it down.
func (d *Dashboard) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", d.handleJobs)
	mux.HandleFunc("/logs", d.handleLogs)

	d.srv = &http.Server{Addr: d.addr, Handler: mux}
	ln, err := newLoopbackListener(d.addr)
	if err != nil {
		return fmt.Errorf("diag: listen on %s: %w", d.addr, err)
	}

	go func() {
		if err := d.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			d.log.Warn("diagnostic dashboard stopped", "err", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the HTTP server down.
func (d *Dashboard) Stop() {
	if d.srv != nil {
		d.srv.Close()
	}
}

type jobView struct {
	RemoteJobID int32  `json:"remote_job_id"`
	RemoteState string `json:"remote_job_state"`
	LocalJobID  int32  `json:"local_job_id,omitempty"`
	LocalState  string `json:"local_job_state"`
}

func (d *Dashboard) handleJobs(w http.ResponseWriter, r *http.Request) {
	records := d.table.Snapshot()
	views := make([]jobView, 0, len(records))
	for _, rec := range records {
		views = append(views, jobView{
			RemoteJobID: rec.RemoteJobID,
			RemoteState: rec.Remote().String(),
			LocalJobID:  rec.LocalID(),
			LocalState:  rec.Local().String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

func (d *Dashboard) handleLogs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ch := make(chan logging.Entry, 32)
	d.mu.Lock()
	d.clients[conn] = ch
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.clients, conn)
		d.mu.Unlock()
		close(ch)
		conn.Close()
	}()

	for _, e := range d.log.Buffer() {
		if err := writeEntry(conn, e); err != nil {
			return
		}
	}

	for e := range ch {
		if err := writeEntry(conn, e); err != nil {
			return
		}
	}
}

func writeEntry(conn *websocket.Conn, e logging.Entry) error {
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(e)
}

// fanOut is installed as the Logger's onEntry callback; it never blocks on
// a slow client — a full buffer just drops that line for that client.
func (d *Dashboard) fanOut(e logging.Entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.clients {
		select {
		case ch <- e:
		default:
		}
	}
}

// newLoopbackListener refuses to bind anything but a loopback address —
// the dashboard is local diagnostic tooling, never a remote management
// plane.
func newLoopbackListener(addr string) (net.Listener, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	if host != "" && host != "localhost" {
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			return nil, fmt.Errorf("diag: refusing non-loopback address %q", addr)
		}
	}
	if host == "" {
		return nil, fmt.Errorf("diag: address %q has no host; use 127.0.0.1:port", addr)
	}
	return net.Listen("tcp", addr)
}
