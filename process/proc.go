package process

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"tinytotvm/bytecode"
	"tinytotvm/opcode"
	"tinytotvm/value"
	"tinytotvm/vmcore"
	"tinytotvm/vmerr"
)

// ID is a process identifier, original_source's ProcId.
type ID int64

// State is a process's scheduling state.
type State uint8

const (
	StateReady State = iota
	StateRunning
	StateWaiting
	StateExited
)

// Sender delivers a message to another process, wherever it is running.
type Sender interface {
	SendMessage(to ID, msg Message) error
}

// Spawner creates a new process from a function/closure entry point and
// hands it to the scheduler.
type Spawner interface {
	SpawnFunction(prog *bytecode.Program, addr int, captured map[string]value.Value) (ID, error)
}

// Registry resolves and holds registered process names.
type Registry interface {
	RegisterName(name string, pid ID) error
	UnregisterName(name string) error
	Whereis(name string) (ID, bool)
	SendNamed(name string, msg Message) error
}

// Proc is one isolated actor: its own interpreter, mailbox, links, and
// monitors. Grounded on original_source/src/concurrency/process.rs's
// TinyProc, translated from one Arc<Mutex<TinyProc>> per scheduler slot
// into a plain struct with no lock of its own: the scheduler keeps each
// Proc in one queue at a time and only one worker runs it. Only its
// Mailbox has a mutex.
type Proc struct {
	ID      ID
	Mailbox Mailbox
	Interp  *vmcore.Interpreter
	State   State

	Sender   Sender
	Spawner  Spawner
	Registry Registry

	Monitors    map[string]ID // monitor_ref -> target I'm watching
	MonitoredBy map[ID]string // watcher pid -> ref they used
	Linked      map[ID]bool
	TrapExit    bool
	ExitReason  string

	Supervisor            *SupervisorSpec
	Children              map[string]*ChildState
	SupervisorPID         ID
	HasSupervisorPID      bool
	restartIntensityCount int
	restartPeriodStart    time.Time

	reductionCount int
}

func New(id ID, prog *bytecode.Program, out io.Writer) *Proc {
	return &Proc{
		ID:          id,
		Interp:      vmcore.NewInterpreter(prog, out),
		State:       StateReady,
		Monitors:    make(map[string]ID),
		MonitoredBy: make(map[ID]string),
		Linked:      make(map[ID]bool),
	}
}

// NewSupervisor builds a process whose body is the minimal receive/yield
// loop original_source uses for supervisors: it exists to hold
// supervision bookkeeping and react to child-exit signals, not to run
// ordinary bytecode.
func NewSupervisor(id ID, spec SupervisorSpec, out io.Writer) *Proc {
	prog := &bytecode.Program{Instructions: []opcode.Instruction{
		{Code: opcode.Receive},
		{Code: opcode.Yield},
		{Code: opcode.Jmp, Addr: 0},
	}}
	p := New(id, prog, out)
	p.TrapExit = true
	p.Supervisor = &spec
	p.Children = make(map[string]*ChildState)
	p.restartPeriodStart = time.Now()
	return p
}

// StartAllChildren spawns every child in the supervisor's spec via the
// attached Spawner, recording each under its child ID.
func (p *Proc) StartAllChildren() error {
	if p.Supervisor == nil || p.Spawner == nil {
		return &vmerr.UnsupportedOperation{Operation: "start_all_children"}
	}
	for _, spec := range p.Supervisor.Children {
		childID, err := p.Spawner.SpawnFunction(spec.Program, 0, nil)
		if err != nil {
			return err
		}
		p.Children[spec.ID] = &ChildState{PID: childID, Spec: spec, LastRestart: time.Now()}
	}
	return nil
}

// RunUntilYield drives the interpreter until it yields, blocks on an
// empty mailbox, or exits, consuming at most budget reductions.
func (p *Proc) RunUntilYield(budget int) State {
	p.State = StateRunning
	p.reductionCount = 0
	for p.step(budget) {
	}
	return p.State
}

func (p *Proc) step(budget int) bool {
	if _, ok := p.Interp.Current(); !ok {
		p.exit("normal")
		return false
	}
	if p.reductionCount >= budget {
		p.State = StateReady
		return false
	}
	if p.drainSystemMessages() {
		return false
	}

	outcome, err := p.Interp.Step()
	p.reductionCount++
	if err != nil {
		p.exit(fmt.Sprintf("error: %v", err))
		return false
	}

	switch outcome {
	case vmcore.Halted:
		p.exit("normal")
		return false
	case vmcore.NeedsConcurrency:
		instr, _ := p.Interp.Current()
		yielded, err := p.execConcurrency(instr)
		if err != nil {
			p.exit(fmt.Sprintf("error: %v", err))
			return false
		}
		if yielded {
			p.State = StateWaiting
			return false
		}
		return true
	default:
		return true
	}
}

// drainSystemMessages handles link/unlink/monitor/trap_exit/exit signals
// immediately, the way process.rs's step() drains its mailbox at the top
// of every instruction cycle, and puts everything else back for RECEIVE
// to see. Returns true if the process exited as a result.
func (p *Proc) drainSystemMessages() bool {
	var requeue []Message
	for {
		msg, ok := p.Mailbox.TryRecv()
		if !ok {
			break
		}
		switch msg.Kind {
		case MsgExit:
			if p.Linked[msg.PID] {
				if p.TrapExit {
					requeue = append(requeue, msg)
				} else {
					p.Mailbox.PutFront(requeue)
					p.exit(fmt.Sprintf("exit_from_%d", msg.PID))
					return true
				}
			}
		case MsgTrapExit:
			p.TrapExit = msg.Trap
		case MsgLink:
			alreadyLinked := p.Linked[msg.PID]
			p.Linked[msg.PID] = true
			if !alreadyLinked && p.Sender != nil {
				p.Sender.SendMessage(msg.PID, LinkMessage(p.ID))
			}
		case MsgUnlink:
			delete(p.Linked, msg.PID)
		case MsgMonitor:
			p.MonitoredBy[msg.PID] = msg.Ref
		default:
			requeue = append(requeue, msg)
		}
	}
	p.Mailbox.PutFront(requeue)
	return false
}

// exit fans out Down/Exit notifications the way
// TinyProc::handle_process_exit does: Down to everything in Monitors AND
// everything in MonitoredBy, then Exit to every linked process.
func (p *Proc) exit(reason string) {
	p.ExitReason = reason
	p.State = StateExited
	if p.Sender == nil {
		return
	}
	for ref, target := range p.Monitors {
		p.Sender.SendMessage(target, DownMessage(p.ID, ref, reason))
	}
	for watcher, ref := range p.MonitoredBy {
		p.Sender.SendMessage(watcher, DownMessage(p.ID, ref, reason))
	}
	for linked := range p.Linked {
		p.Sender.SendMessage(linked, ExitMessage(p.ID, reason))
	}
	if p.HasSupervisorPID {
		p.Sender.SendMessage(p.SupervisorPID, SignalMessage(fmt.Sprintf("child_exit_%d_%s", p.ID, reason)))
	}
}

func (p *Proc) execConcurrency(instr opcode.Instruction) (yielded bool, err error) {
	switch instr.Code {
	case opcode.Send:
		v, err := p.Interp.Pop()
		if err != nil {
			return false, err
		}
		if p.Sender != nil {
			p.Sender.SendMessage(ID(instr.Int), ValueMessage(v.Clone()))
		}
		p.Interp.Advance()
		return false, nil

	case opcode.SendNamed:
		v, err := p.Interp.Pop()
		if err != nil {
			return false, err
		}
		if p.Registry != nil {
			p.Registry.SendNamed(instr.Str, ValueMessage(v.Clone()))
		}
		p.Interp.Advance()
		return false, nil

	case opcode.Receive:
		msg, ok := p.Mailbox.TryRecv()
		if !ok {
			return true, nil
		}
		p.Interp.Push(messageToValue(msg))
		p.Interp.Advance()
		return false, nil

	case opcode.ReceiveMatch:
		msg, rest, found := p.selectiveReceive(instr.Patterns)
		if !found {
			return true, nil
		}
		p.Mailbox.PutFront(rest)
		p.Interp.Push(messageToValue(msg))
		p.Interp.Advance()
		return false, nil

	case opcode.Yield:
		p.Interp.Advance()
		return true, nil

	case opcode.Spawn:
		fn, err := p.Interp.Pop()
		if err != nil {
			return false, err
		}
		if fn.Kind != value.KindFunction && fn.Kind != value.KindClosure {
			return false, &vmerr.TypeMismatch{Expected: "function", Got: fn.Debug(), Operation: "spawn"}
		}
		if p.Spawner == nil {
			return false, &vmerr.UnsupportedOperation{Operation: "spawn"}
		}
		childID, err := p.Spawner.SpawnFunction(p.Interp.Program, fn.Fn.Addr, fn.Cap)
		if err != nil {
			return false, err
		}
		p.Interp.Push(value.Int(int64(childID)))
		p.Interp.Advance()
		return false, nil

	case opcode.Monitor:
		target := ID(instr.Int)
		ref := fmt.Sprintf("mon_%d_%d_%s", p.ID, target, uuid.NewString())
		p.Monitors[ref] = target
		if p.Sender != nil {
			p.Sender.SendMessage(target, MonitorMessage(p.ID, ref))
		}
		p.Interp.Push(value.String(ref))
		p.Interp.Advance()
		return false, nil

	case opcode.Demonitor:
		delete(p.Monitors, instr.Str)
		p.Interp.Advance()
		return false, nil

	case opcode.Link:
		target := ID(instr.Int)
		p.Linked[target] = true
		if p.Sender != nil {
			p.Sender.SendMessage(target, LinkMessage(p.ID))
		}
		p.Interp.Advance()
		return false, nil

	case opcode.Unlink:
		target := ID(instr.Int)
		delete(p.Linked, target)
		if p.Sender != nil {
			p.Sender.SendMessage(target, UnlinkMessage(p.ID))
		}
		p.Interp.Advance()
		return false, nil

	case opcode.TrapExit:
		v, err := p.Interp.Pop()
		if err != nil {
			return false, err
		}
		p.TrapExit = v.Truthy()
		p.Interp.Advance()
		return false, nil

	case opcode.Register:
		if p.Registry != nil {
			if err := p.Registry.RegisterName(instr.Str, p.ID); err != nil {
				return false, &vmerr.RuntimeError{Message: err.Error()}
			}
		}
		p.Interp.Advance()
		return false, nil

	case opcode.Unregister:
		if p.Registry != nil {
			p.Registry.UnregisterName(instr.Str)
		}
		p.Interp.Advance()
		return false, nil

	case opcode.Whereis:
		if p.Registry != nil {
			if pid, ok := p.Registry.Whereis(instr.Str); ok {
				p.Interp.Push(value.Int(int64(pid)))
			} else {
				p.Interp.Push(value.Null())
			}
		} else {
			p.Interp.Push(value.Null())
		}
		p.Interp.Advance()
		return false, nil

	default:
		// StartSupervisor/SuperviseChild/RestartChild are driven from the
		// scheduler's Go API (NewSupervisor, StartAllChildren), not from
		// bytecode, matching how the original Rust runtime wires them
		// (TinyProc methods called by pool.rs, never opcode handlers).
		return false, &vmerr.UnsupportedOperation{Operation: instr.Code.String()}
	}
}

func (p *Proc) selectiveReceive(patterns []opcode.MessagePattern) (Message, []Message, bool) {
	var skipped []Message
	for {
		msg, ok := p.Mailbox.TryRecv()
		if !ok {
			break
		}
		if matchesAny(msg, patterns) {
			return msg, skipped, true
		}
		skipped = append(skipped, msg)
	}
	return Message{}, skipped, false
}

func matchesAny(msg Message, patterns []opcode.MessagePattern) bool {
	for _, pat := range patterns {
		if matchesPattern(msg, pat) {
			return true
		}
	}
	return false
}

func matchesPattern(msg Message, pat opcode.MessagePattern) bool {
	switch pat.Kind {
	case opcode.PatternAny:
		return true
	case opcode.PatternValue:
		pv, ok := pat.Value.(value.Value)
		return ok && msg.Kind == MsgValue && value.Equal(msg.Value, pv)
	case opcode.PatternSignal:
		return msg.Kind == MsgSignal && msg.Signal == pat.Str
	case opcode.PatternExit:
		return msg.Kind == MsgExit && (!pat.HasPID || ID(pat.PID) == msg.PID)
	case opcode.PatternDown:
		if msg.Kind != MsgDown {
			return false
		}
		if pat.HasPID && ID(pat.PID) != msg.PID {
			return false
		}
		if pat.HasRef && pat.Ref != msg.Ref {
			return false
		}
		return true
	case opcode.PatternLink:
		return msg.Kind == MsgLink && (!pat.HasPID || ID(pat.PID) == msg.PID)
	case opcode.PatternType:
		if msg.Kind != MsgValue {
			return false
		}
		switch pat.Str {
		case "int":
			return msg.Value.Kind == value.KindInt
		case "float":
			return msg.Value.Kind == value.KindFloat
		case "string":
			return msg.Value.Kind == value.KindString
		case "bool":
			return msg.Value.Kind == value.KindBool
		case "list":
			return msg.Value.Kind == value.KindList
		case "object":
			return msg.Value.Kind == value.KindObject
		default:
			return false
		}
	case opcode.PatternGuard:
		// Arbitrary predicate guards aren't expressible as a static
		// opcode operand; no guard pattern ever matches.
		return false
	default:
		return false
	}
}

func messageToValue(msg Message) value.Value {
	switch msg.Kind {
	case MsgValue:
		return msg.Value
	case MsgSignal:
		return value.String(msg.Signal)
	case MsgExit:
		obj := value.NewObject()
		obj.Set("type", value.String("exit"))
		obj.Set("pid", value.Int(int64(msg.PID)))
		obj.Set("reason", value.String(msg.Reason))
		return obj
	case MsgDown:
		obj := value.NewObject()
		obj.Set("type", value.String("down"))
		obj.Set("pid", value.Int(int64(msg.PID)))
		obj.Set("ref", value.String(msg.Ref))
		obj.Set("reason", value.String(msg.Reason))
		return obj
	case MsgLink:
		obj := value.NewObject()
		obj.Set("type", value.String("link"))
		obj.Set("pid", value.Int(int64(msg.PID)))
		return obj
	default:
		return value.Null()
	}
}
