// Package environment contains the execution context shared by protocol
// engines: the scheduler, the logger, the result message and lookup tables.
package environment

import (
	"fmt"
	"net"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bluenviron/mediactl/pkg/scheduler"
)

// Environment is the execution context of a set of protocol engines.
// It is not safe for concurrent use, like the Scheduler it contains.
type Environment struct {
	Scheduler *scheduler.Scheduler
	Logger    *logrus.Logger

	resultMsg string

	// lazily allocated tables. They are freed when empty.
	media   *mediaTable
	sockets *socketTable
}

// New allocates an Environment.
// If sched is nil, a Scheduler with default parameters is allocated.
func New(sched *scheduler.Scheduler) *Environment {
	e := &Environment{
		Logger: logrus.New(),
	}

	if sched == nil {
		sched = &scheduler.Scheduler{}
	}

	if sched.Log == nil {
		sched.Log = e.Log("scheduler")
	}
	if sched.OnError == nil {
		sched.OnError = e.SetResultErr
	}
	sched.Initialize()

	e.Scheduler = sched
	return e
}

// Log returns a logger entry for a component.
func (e *Environment) Log(component string) *logrus.Entry {
	return e.Logger.WithField("component", component)
}

// ResultMsg returns the result message of the last failed operation.
func (e *Environment) ResultMsg() string {
	return e.resultMsg
}

// SetResultMsg replaces the result message with the concatenation of parts.
func (e *Environment) SetResultMsg(parts ...string) {
	e.resultMsg = strings.Join(parts, "")
}

// AppendResultMsg appends parts to the result message.
func (e *Environment) AppendResultMsg(parts ...string) {
	e.resultMsg += strings.Join(parts, "")
}

// SetResultErr replaces the result message with the text of err.
func (e *Environment) SetResultErr(err error) {
	if err == nil {
		return
	}
	e.resultMsg = err.Error()
}

// ResetResultMsg clears the result message.
func (e *Environment) ResetResultMsg() {
	e.resultMsg = ""
}

// HasTables reports whether any lookup table is allocated.
func (e *Environment) HasTables() bool {
	return e.media != nil || e.sockets != nil
}

type mediaTable struct {
	entries map[string]interface{}
	nextID  int
}

// AddMedium registers an object and returns the name assigned to it.
func (e *Environment) AddMedium(m interface{}) string {
	if e.media == nil {
		e.media = &mediaTable{entries: make(map[string]interface{})}
	}

	name := fmt.Sprintf("liveMedia%d", e.media.nextID)
	e.media.nextID++
	e.media.entries[name] = m

	return name
}

// LookupMedium finds an object by name.
func (e *Environment) LookupMedium(name string) (interface{}, bool) {
	if e.media == nil {
		e.SetResultMsg("Medium ", name, " does not exist")
		return nil, false
	}

	m, ok := e.media.entries[name]
	if !ok {
		e.SetResultMsg("Medium ", name, " does not exist")
		return nil, false
	}

	return m, true
}

// RemoveMedium unregisters an object.
func (e *Environment) RemoveMedium(name string) {
	if e.media == nil {
		return
	}

	delete(e.media.entries, name)

	if len(e.media.entries) == 0 {
		e.media = nil
	}
}

type socketEntry struct {
	conn     net.PacketConn
	refCount int
}

type socketTable struct {
	entries map[int]*socketEntry
}

// AcquireSocket returns the shared socket bound to a local port,
// opening it with open when it doesn't exist yet.
func (e *Environment) AcquireSocket(port int, open func() (net.PacketConn, error)) (net.PacketConn, error) {
	if e.sockets != nil {
		if se, ok := e.sockets.entries[port]; ok {
			se.refCount++
			return se.conn, nil
		}
	}

	conn, err := open()
	if err != nil {
		e.SetResultErr(err)
		return nil, err
	}

	if e.sockets == nil {
		e.sockets = &socketTable{entries: make(map[int]*socketEntry)}
	}

	e.sockets.entries[port] = &socketEntry{
		conn:     conn,
		refCount: 1,
	}

	return conn, nil
}

// ReleaseSocket releases a socket obtained with AcquireSocket.
// The socket is closed when it is not used anymore.
func (e *Environment) ReleaseSocket(port int) error {
	if e.sockets == nil {
		return fmt.Errorf("socket on port %d not found", port)
	}

	se, ok := e.sockets.entries[port]
	if !ok {
		return fmt.Errorf("socket on port %d not found", port)
	}

	se.refCount--
	if se.refCount > 0 {
		return nil
	}

	delete(e.sockets.entries, port)

	if len(e.sockets.entries) == 0 {
		e.sockets = nil
	}

	return se.conn.Close()
}
