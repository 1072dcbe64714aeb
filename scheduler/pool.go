package scheduler

import (
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"tinytotvm/bytecode"
	"tinytotvm/process"
	"tinytotvm/registry"
	"tinytotvm/value"
	"tinytotvm/vmcore"
)

// Pool owns every worker, the shared submission queue, the process
// registry, and the next-PID counter. It implements process.Sender,
// process.Spawner, and process.Registry directly -- the Rust original
// wraps those concerns in separate SchedulerPoolMessageSender /
// SchedulerPoolProcessSpawner structs so they can be handed out as
// cloned Arc<dyn Trait> objects; Go interfaces satisfied by a single
// receiver make that indirection unnecessary.
type Pool struct {
	workers []*Worker

	mu      sync.Mutex
	running map[process.ID]*process.Proc

	submissionMu sync.Mutex
	submission   []*process.Proc

	nextPID  atomic.Int64
	registry *registry.Registry

	shuttingDown atomic.Bool
	wg           sync.WaitGroup

	reductionBudget int
	out             io.Writer
	loader          vmcore.ModuleLoader
}

type Config struct {
	Workers         int
	ReductionBudget int
	Out             io.Writer
	Loader          vmcore.ModuleLoader
}

// New builds a pool with cfg.Workers worker goroutines, defaulting to
// the number of available CPU cores the way
// SchedulerPool::new_with_default_threads does.
func New(cfg Config) *Pool {
	n := cfg.Workers
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	budget := cfg.ReductionBudget
	if budget <= 0 {
		budget = 1000
	}
	p := &Pool{
		running:         make(map[process.ID]*process.Proc),
		registry:        registry.New(),
		reductionBudget: budget,
		out:             cfg.Out,
		loader:          cfg.Loader,
	}
	p.nextPID.Store(1)

	p.workers = make([]*Worker, n)
	for i := range p.workers {
		p.workers[i] = newWorker(i)
	}
	for _, w := range p.workers {
		w.setSiblings(p.workers)
	}
	return p
}

// Start launches one goroutine per worker.
func (p *Pool) Start() {
	for _, w := range p.workers {
		w := w
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.run(p)
		}()
	}
}

// Shutdown signals every worker loop to stop and waits for them to exit.
func (p *Pool) Shutdown() {
	p.shuttingDown.Store(true)
	p.wg.Wait()
}

func (p *Pool) isShuttingDown() bool { return p.shuttingDown.Load() }

// WaitForCompletion blocks until no process is running or queued. Used
// by the CLI's `run` command, which wants the whole program (every
// spawned process) to finish before it exits.
func (p *Pool) WaitForCompletion() {
	for {
		p.mu.Lock()
		n := len(p.running)
		p.mu.Unlock()
		p.submissionMu.Lock()
		q := len(p.submission)
		p.submissionMu.Unlock()
		if n == 0 && q == 0 {
			return
		}
		runtime.Gosched()
	}
}

func (p *Pool) popSubmission() (*process.Proc, bool) {
	p.submissionMu.Lock()
	defer p.submissionMu.Unlock()
	if len(p.submission) == 0 {
		return nil, false
	}
	proc := p.submission[0]
	p.submission = p.submission[1:]
	return proc, true
}

// execute runs one process to its next yield point and requeues or
// retires it, mirroring
// Scheduler::execute_process_with_cleanup.
func (p *Pool) execute(w *Worker, proc *process.Proc) {
	state := proc.RunUntilYield(p.reductionBudget)
	switch state {
	case process.StateExited:
		p.mu.Lock()
		delete(p.running, proc.ID)
		p.mu.Unlock()
		p.registry.UnregisterProcess(proc.ID)
	default:
		w.Push(proc)
	}
}

// SpawnProgram creates a new top-level process running prog from
// instruction 0, wires it into the registry and submission queue, and
// returns its PID. This is the CLI's entry point for `run`.
func (p *Pool) SpawnProgram(prog *bytecode.Program) (process.ID, error) {
	return p.spawn(prog, 0, nil)
}

// SpawnFunction implements process.Spawner: SPAWN pops a function or
// closure value and hands its (program, entry address, captures) here.
func (p *Pool) SpawnFunction(prog *bytecode.Program, addr int, captured map[string]value.Value) (process.ID, error) {
	return p.spawn(prog, addr, captured)
}

func (p *Pool) spawn(prog *bytecode.Program, addr int, captured map[string]value.Value) (process.ID, error) {
	pid := process.ID(p.nextPID.Add(1) - 1)
	proc := process.New(pid, prog, p.out)
	proc.Interp.PC = addr
	proc.Interp.Modules = vmcore.NewModuleSystem(p.loader)
	if len(captured) > 0 {
		frame := proc.Interp.CurrentFrame()
		for k, v := range captured {
			frame[k] = v
		}
	}
	proc.Sender = p
	proc.Spawner = p
	proc.Registry = p

	if err := p.registry.RegisterProcess(pid, func(msg process.Message) error {
		proc.Mailbox.Send(msg)
		return nil
	}); err != nil {
		return 0, err
	}

	p.mu.Lock()
	p.running[pid] = proc
	p.mu.Unlock()

	p.submissionMu.Lock()
	p.submission = append(p.submission, proc)
	p.submissionMu.Unlock()

	return pid, nil
}

// SpawnSupervisor starts a supervisor process and all of its configured
// children.
func (p *Pool) SpawnSupervisor(spec process.SupervisorSpec) (process.ID, error) {
	pid := process.ID(p.nextPID.Add(1) - 1)
	sup := process.NewSupervisor(pid, spec, p.out)
	sup.Sender = p
	sup.Spawner = p
	sup.Registry = p

	if err := p.registry.RegisterProcess(pid, func(msg process.Message) error {
		sup.Mailbox.Send(msg)
		return nil
	}); err != nil {
		return 0, err
	}

	p.mu.Lock()
	p.running[pid] = sup
	p.mu.Unlock()

	if err := sup.StartAllChildren(); err != nil {
		return pid, err
	}
	for _, child := range sup.Children {
		p.mu.Lock()
		if cp, ok := p.running[child.PID]; ok {
			cp.HasSupervisorPID = true
			cp.SupervisorPID = pid
		}
		p.mu.Unlock()
	}

	p.submissionMu.Lock()
	p.submission = append(p.submission, sup)
	p.submissionMu.Unlock()

	return pid, nil
}

// SendMessage implements process.Sender.
func (p *Pool) SendMessage(to process.ID, msg process.Message) error {
	return p.registry.SendMessageFrom0(to, msg)
}

// RegisterName / UnregisterName / Whereis / SendNamed implement
// process.Registry.
func (p *Pool) RegisterName(name string, pid process.ID) error { return p.registry.RegisterName(name, pid) }
func (p *Pool) UnregisterName(name string) error                { return p.registry.UnregisterName(name) }
func (p *Pool) Whereis(name string) (process.ID, bool)           { return p.registry.Whereis(name) }
func (p *Pool) SendNamed(name string, msg process.Message) error { return p.registry.SendNamed(name, msg) }

// RunningCount reports how many processes are currently tracked, for
// diagnostics/metrics.
func (p *Pool) RunningCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

// Snapshot renders a one-line-per-process summary for the remote
// console device, mirroring the teacher's PrintCurrentState debug dumps
// (vm/run.go) but over the process table instead of register file.
func (p *Pool) Snapshot() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "processes: %d\n", len(p.running))
	for pid, proc := range p.running {
		fmt.Fprintf(&b, "  pid=%d state=%d mailbox=%d\n", pid, proc.State, proc.Mailbox.Len())
	}
	return b.String()
}
