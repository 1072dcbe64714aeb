// Package registry implements process-name registration and message
// routing by PID, grounded on
// original_source/src/concurrency/registry.rs's ProcessRegistry. The
// Rust original guards one HashMap-heavy struct behind a single Mutex;
// the Go translation keeps that same single-lock shape rather than
// splitting it into several finer-grained maps; rarely contended
// bookkeeping doesn't earn the complexity of fine-grained locking.
package registry

import (
	"fmt"
	"sync"
	"time"

	"tinytotvm/process"
)

type processInfo struct {
	pid          process.ID
	startTime    time.Time
	messageCount int
	supervisor   process.ID
	hasSupervisor bool
}

// Registry is the shared directory every scheduler worker consults to
// deliver messages, register names, and track per-pair sequence
// numbers.
type Registry struct {
	mu sync.Mutex

	senders   map[process.ID]func(process.Message) error
	nameToPID map[string]process.ID
	pidToName map[process.ID]map[string]bool
	info      map[process.ID]*processInfo
	sequences map[[2]process.ID]uint64
}

func New() *Registry {
	return &Registry{
		senders:   make(map[process.ID]func(process.Message) error),
		nameToPID: make(map[string]process.ID),
		pidToName: make(map[process.ID]map[string]bool),
		info:      make(map[process.ID]*processInfo),
		sequences: make(map[[2]process.ID]uint64),
	}
}

// RegisterProcess records how to deliver a message to pid. deliver is
// typically the target Proc's Mailbox.Send.
func (r *Registry) RegisterProcess(pid process.ID, deliver func(process.Message) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.senders[pid]; exists {
		return fmt.Errorf("process %d already registered", pid)
	}
	r.senders[pid] = deliver
	r.info[pid] = &processInfo{pid: pid, startTime: time.Now()}
	return nil
}

func (r *Registry) UnregisterProcess(pid process.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.senders, pid)
	for name := range r.pidToName[pid] {
		delete(r.nameToPID, name)
	}
	delete(r.pidToName, pid)
	delete(r.info, pid)
}

func (r *Registry) RegisterName(name string, pid process.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.senders[pid]; !ok {
		return fmt.Errorf("process %d not found", pid)
	}
	if _, taken := r.nameToPID[name]; taken {
		return fmt.Errorf("name %q already registered", name)
	}
	r.nameToPID[name] = pid
	if r.pidToName[pid] == nil {
		r.pidToName[pid] = make(map[string]bool)
	}
	r.pidToName[pid][name] = true
	return nil
}

func (r *Registry) UnregisterName(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pid, ok := r.nameToPID[name]
	if !ok {
		return fmt.Errorf("name %q not found", name)
	}
	delete(r.nameToPID, name)
	delete(r.pidToName[pid], name)
	if len(r.pidToName[pid]) == 0 {
		delete(r.pidToName, pid)
	}
	return nil
}

func (r *Registry) Whereis(name string) (process.ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pid, ok := r.nameToPID[name]
	return pid, ok
}

// SendMessage delivers message from->to, bumping the pair's sequence
// counter and the recipient's message count the way registry.rs does.
func (r *Registry) SendMessage(from, to process.ID, msg process.Message) error {
	r.mu.Lock()
	deliver, ok := r.senders[to]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("process %d not found", to)
	}
	key := [2]process.ID{from, to}
	r.sequences[key]++
	if info, ok := r.info[to]; ok {
		info.messageCount++
	}
	r.mu.Unlock()
	return deliver(msg)
}

// SendMessageFrom0 delivers as the system pseudo-process, registry.rs's
// send_message_simple (pid 0 stands in for "system sender").
func (r *Registry) SendMessageFrom0(to process.ID, msg process.Message) error {
	return r.SendMessage(0, to, msg)
}

func (r *Registry) SendNamed(name string, msg process.Message) error {
	pid, ok := r.Whereis(name)
	if !ok {
		return fmt.Errorf("process %q not found", name)
	}
	return r.SendMessageFrom0(pid, msg)
}
