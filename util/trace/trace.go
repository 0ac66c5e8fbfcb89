/*
 * PS2DMAC - Record DMA tags and channel states to SQLite
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package trace

import (
	"database/sql"
	"log/slog"
	"os"
	"sync"
	"time"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/pkg/errors"
	"github.com/rcornwell/PS2DMAC/emu/dmac"
	"github.com/rcornwell/PS2DMAC/emu/dmatag"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// DefaultBatch is the number of rows buffered before a write.
const DefaultBatch = 1000

// TagRow is one decoded tag.
type TagRow struct {
	Seq     uint64
	Channel string
	Addr    uint32 // Where the tag was read.
	Tag     dmatag.Tag
}

// StateRow is one channel state change.
type StateRow struct {
	Seq     uint64
	Channel string
	From    string
	To      string
	Err     string
}

// Recorder is a dmac.Tracer writing to a SQLite database. Every recorder
// has its own run id so several runs can share a file.
type Recorder struct {
	mu        sync.Mutex
	db        *sql.DB
	tagStmt   *sql.Stmt
	stateStmt *sql.Stmt
	path      string
	run       string
	seq       uint64
	tags      []TagRow
	states    []StateRow
	batchSize int
	closed    bool
}

var _ dmac.Tracer = (*Recorder)(nil)

// New opens or creates the trace database at path. An empty path picks a
// fresh file name in the current directory.
func New(path string) (*Recorder, error) {
	run := xid.New().String()
	if path == "" {
		path = "ps2dmac_trace_" + run + ".sqlite3"
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "trace %s", path)
	}
	// One writer, also keeps :memory: on a single connection.
	db.SetMaxOpenConns(1)

	r := &Recorder{db: db, path: path, run: run, batchSize: DefaultBatch}
	if err := r.createTables(); err != nil {
		db.Close()
		return nil, errors.WithMessagef(err, "trace %s", path)
	}
	if err := r.prepare(); err != nil {
		db.Close()
		return nil, errors.WithMessagef(err, "trace %s", path)
	}

	atexit.Register(func() {
		if err := r.Close(); err != nil {
			slog.Error("Trace flush failed", "path", path, "error", err)
		}
	})
	slog.Info("Trace is collected in database", "path", path, "run", run)
	return r, nil
}

func (r *Recorder) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run TEXT PRIMARY KEY,
			started TEXT,
			host TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS tags (
			run TEXT,
			seq INTEGER,
			channel TEXT,
			addr INTEGER,
			kind TEXT,
			qwc INTEGER,
			tag_addr INTEGER,
			irq INTEGER,
			spr INTEGER,
			pce TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS states (
			run TEXT,
			seq INTEGER,
			channel TEXT,
			from_state TEXT,
			to_state TEXT,
			error TEXT
		)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return errors.Wrap(err, "create table")
		}
	}
	host, _ := os.Hostname()
	_, err := r.db.Exec(`INSERT INTO runs VALUES (?, ?, ?)`, r.run, time.Now().Format(time.RFC3339), host)
	return errors.Wrap(err, "insert run")
}

func (r *Recorder) prepare() error {
	var err error
	r.tagStmt, err = r.db.Prepare(`INSERT INTO tags VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare tags")
	}
	r.stateStmt, err = r.db.Prepare(`INSERT INTO states VALUES (?, ?, ?, ?, ?, ?)`)
	return errors.Wrap(err, "prepare states")
}

// RunID returns the identifier rows of this recorder carry.
func (r *Recorder) RunID() string {
	return r.run
}

// Path of the database file.
func (r *Recorder) Path() string {
	return r.path
}

// SetBatchSize sets how many rows are buffered before they are written.
func (r *Recorder) SetBatchSize(n int) {
	r.mu.Lock()
	r.batchSize = max(n, 1)
	r.mu.Unlock()
}

// TagDecoded buffers a tag row.
func (r *Recorder) TagDecoded(id dmac.ChannelID, addr uint32, tag dmatag.Tag) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.seq++
	r.tags = append(r.tags, TagRow{Seq: r.seq, Channel: id.String(), Addr: addr, Tag: tag})
	r.flushIfFull()
}

// StateChanged buffers a state row.
func (r *Recorder) StateChanged(id dmac.ChannelID, from, to dmac.State, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.seq++
	row := StateRow{Seq: r.seq, Channel: id.String(), From: from.String(), To: to.String()}
	if err != nil {
		row.Err = err.Error()
	}
	r.states = append(r.states, row)
	r.flushIfFull()
}

func (r *Recorder) flushIfFull() {
	if len(r.tags)+len(r.states) < r.batchSize {
		return
	}
	if err := r.flush(); err != nil {
		slog.Error("Trace write failed", "path", r.path, "error", err)
	}
}

// Flush writes all buffered rows.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	return r.flush()
}

func (r *Recorder) flush() error {
	if len(r.tags) == 0 && len(r.states) == 0 {
		return nil
	}
	tx, err := r.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	tagStmt := tx.Stmt(r.tagStmt)
	stateStmt := tx.Stmt(r.stateStmt)
	for _, t := range r.tags {
		_, err = tagStmt.Exec(r.run, t.Seq, t.Channel, t.Addr, t.Tag.Kind.String(), t.Tag.QWC,
			t.Tag.Addr, t.Tag.IRQ, t.Tag.Region == dmatag.ScratchPad, t.Tag.Priority.String())
		if err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "insert tag %d", t.Seq)
		}
	}
	for _, s := range r.states {
		_, err = stateStmt.Exec(r.run, s.Seq, s.Channel, s.From, s.To, s.Err)
		if err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "insert state %d", s.Seq)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	r.tags = nil
	r.states = nil
	return nil
}

// Close flushes and closes the database. Later calls do nothing.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	err := r.flush()
	r.closed = true
	r.tagStmt.Close()
	r.stateStmt.Close()
	if cerr := r.db.Close(); err == nil {
		err = cerr
	}
	return err
}

// Tags reads back the tag rows of this run in order. Buffered rows are
// written first.
func (r *Recorder) Tags() ([]TagRow, error) {
	if err := r.Flush(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.New("trace closed")
	}
	rows, err := r.db.Query(`SELECT seq, channel, addr, kind, qwc, tag_addr, irq, spr, pce
		FROM tags WHERE run = ? ORDER BY seq`, r.run)
	if err != nil {
		return nil, errors.Wrap(err, "query tags")
	}
	defer rows.Close()

	var out []TagRow
	for rows.Next() {
		var row TagRow
		var kind, pce string
		var spr bool
		err := rows.Scan(&row.Seq, &row.Channel, &row.Addr, &kind, &row.Tag.QWC,
			&row.Tag.Addr, &row.Tag.IRQ, &spr, &pce)
		if err != nil {
			return nil, errors.Wrap(err, "scan tag")
		}
		row.Tag.Kind, _ = dmatag.KindFromName(kind)
		row.Tag.Priority = priorityFromName(pce)
		if spr {
			row.Tag.Region = dmatag.ScratchPad
		}
		out = append(out, row)
	}
	return out, errors.Wrap(rows.Err(), "tags")
}

// States reads back the state rows of this run in order.
func (r *Recorder) States() ([]StateRow, error) {
	if err := r.Flush(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.New("trace closed")
	}
	rows, err := r.db.Query(`SELECT seq, channel, from_state, to_state, error
		FROM states WHERE run = ? ORDER BY seq`, r.run)
	if err != nil {
		return nil, errors.Wrap(err, "query states")
	}
	defer rows.Close()

	var out []StateRow
	for rows.Next() {
		var row StateRow
		if err := rows.Scan(&row.Seq, &row.Channel, &row.From, &row.To, &row.Err); err != nil {
			return nil, errors.Wrap(err, "scan state")
		}
		out = append(out, row)
	}
	return out, errors.Wrap(rows.Err(), "states")
}

func priorityFromName(name string) dmatag.Priority {
	for _, p := range []dmatag.Priority{dmatag.PriorityLower, dmatag.PriorityRaise} {
		if p.String() == name {
			return p
		}
	}
	return dmatag.PriorityDisabled
}
