// Package opcode enumerates the instruction vocabulary shared by the
// stack bytecode, the text assembler, and the register-IR lowering
// source. The set mirrors original_source/src/vm/opcode.rs, translated
// from a Rust sum type into a Go discriminated struct in the same spirit
// as the teacher's Bytecode+Instruction split (vm/bytecode.go): a small
// tag enum plus a payload struct that only some tags populate.
package opcode

// Code tags one of the ~110 instruction forms.
type Code uint8

const (
	PushInt Code = iota
	PushFloat
	PushStr
	PushBool
	Add
	AddF
	Sub
	SubF
	Mul
	MulF
	Div
	DivF
	Concat
	Print
	Halt
	Jmp
	Jz
	Call
	Ret
	Dup
	Store
	Load
	Delete
	Eq
	Ne
	Gt
	Lt
	Ge
	Le
	EqF
	NeF
	GtF
	LtF
	GeF
	LeF
	True
	False
	Not
	And
	Or
	Null
	MakeList
	Len
	Index
	DumpScope

	// Object operations.
	MakeObject
	SetField
	GetField
	HasField
	DeleteField
	Keys

	// Function / closure operations.
	MakeFunction
	CallFunction
	MakeLambda
	Capture

	// Exception handling.
	Try
	Catch
	Throw
	EndTry

	// Module system.
	Import
	Export

	// Concurrency.
	Spawn
	Receive
	ReceiveMatch
	Yield
	Send
	Monitor
	Demonitor
	Link
	Unlink
	TrapExit
	Register
	Unregister
	Whereis
	SendNamed
	StartSupervisor
	SuperviseChild
	RestartChild

	// I/O placeholder opcodes (non-goal surface, recognized but stubbed --
	// see original_source/src/vm/opcode.rs for the exhaustive original
	// list; these route to vmerr.UnsupportedOperation in the interpreter).
	ReadFile
	WriteFile
	ReadLine
	ReadChar
	ReadInput
	AppendFile
	FileExists
	FileSize
	DeleteFile
	ListDir
	ReadBytes
	WriteBytes
	GetEnv
	SetEnv
	GetArgs
	Exec
	ExecCapture
	Exit
	GetTime
	Sleep
	FormatTime
	HttpGet
	HttpPost
	TcpConnect
	TcpListen
	TcpSend
	TcpRecv
	UdpBind
	UdpSend
	UdpRecv
	DnsResolve
	AsyncRead
	AsyncWrite
	Await
	StreamCreate
	StreamRead
	StreamWrite
	StreamClose
	JsonParse
	JsonStringify
	CsvParse
	CsvWrite
	Compress
	Decompress
	Encrypt
	Decrypt
	Hash
	DbConnect
	DbQuery
	DbExec

	numCodes
)

// MessagePatternKind tags one alternative of RECEIVE_MATCH's pattern
// list (spec.md §4.7).
type MessagePatternKind uint8

const (
	PatternAny MessagePatternKind = iota
	PatternValue
	PatternSignal
	PatternExit
	PatternDown
	PatternLink
	PatternType
	PatternGuard
)

// MessagePattern is one alternative accepted by RECEIVE_MATCH.
type MessagePattern struct {
	Kind MessagePatternKind

	// PatternValue
	Value interface{} // holds value.Value; kept as interface{} to avoid
	// an import cycle between opcode and value (value.Value is self
	// contained and doesn't need to know about opcodes).

	// PatternSignal / PatternType / PatternGuard
	Str string

	// PatternExit / PatternDown / PatternLink: optional target PID.
	HasPID bool
	PID    int64

	// PatternDown additionally carries an optional monitor ref.
	HasRef bool
	Ref    string
}

// Instruction is one decoded bytecode instruction: a tag plus whichever
// payload fields that tag uses. Keeping a single flat struct (instead of
// one type per opcode) matches the teacher's Instruction layout in
// vm/compile.go, which also favors one reusable struct with unused
// fields left zero over per-opcode types.
type Instruction struct {
	Code Code

	Int    int64
	Float  float64
	Str    string
	Bool   bool
	Addr   int
	Count  int
	Params []string

	Patterns []MessagePattern
}

// mnemonics maps each Code to its canonical lower_snake_case text-assembler
// name, the direction the teacher's strToInstrMap/instrToStrMap tables run
// (vm/vm.go's init()).
var mnemonics = map[Code]string{
	PushInt: "push_int", PushFloat: "push_float", PushStr: "push_str", PushBool: "push_bool",
	Add: "add", AddF: "add_f", Sub: "sub", SubF: "sub_f", Mul: "mul", MulF: "mul_f",
	Div: "div", DivF: "div_f", Concat: "concat", Print: "print", Halt: "halt",
	Jmp: "jmp", Jz: "jz", Call: "call", Ret: "ret", Dup: "dup",
	Store: "store", Load: "load", Delete: "delete",
	Eq: "eq", Ne: "ne", Gt: "gt", Lt: "lt", Ge: "ge", Le: "le",
	EqF: "eq_f", NeF: "ne_f", GtF: "gt_f", LtF: "lt_f", GeF: "ge_f", LeF: "le_f",
	True: "true", False: "false", Not: "not", And: "and", Or: "or", Null: "null",
	MakeList: "make_list", Len: "len", Index: "index", DumpScope: "dump_scope",
	MakeObject: "make_object", SetField: "set_field", GetField: "get_field",
	HasField: "has_field", DeleteField: "delete_field", Keys: "keys",
	MakeFunction: "make_function", CallFunction: "call_function",
	MakeLambda: "make_lambda", Capture: "capture",
	Try: "try", Catch: "catch", Throw: "throw", EndTry: "end_try",
	Import: "import", Export: "export",
	Spawn: "spawn", Receive: "receive", ReceiveMatch: "receive_match", Yield: "yield",
	Send: "send", Monitor: "monitor", Demonitor: "demonitor",
	Link: "link", Unlink: "unlink", TrapExit: "trap_exit",
	Register: "register", Unregister: "unregister", Whereis: "whereis", SendNamed: "send_named",
	StartSupervisor: "start_supervisor", SuperviseChild: "supervise_child", RestartChild: "restart_child",
	ReadFile: "read_file", WriteFile: "write_file", ReadLine: "read_line", ReadChar: "read_char",
	ReadInput: "read_input", AppendFile: "append_file", FileExists: "file_exists", FileSize: "file_size",
	DeleteFile: "delete_file", ListDir: "list_dir", ReadBytes: "read_bytes", WriteBytes: "write_bytes",
	GetEnv: "get_env", SetEnv: "set_env", GetArgs: "get_args", Exec: "exec", ExecCapture: "exec_capture",
	Exit: "exit", GetTime: "get_time", Sleep: "sleep", FormatTime: "format_time",
	HttpGet: "http_get", HttpPost: "http_post", TcpConnect: "tcp_connect", TcpListen: "tcp_listen",
	TcpSend: "tcp_send", TcpRecv: "tcp_recv", UdpBind: "udp_bind", UdpSend: "udp_send", UdpRecv: "udp_recv",
	DnsResolve: "dns_resolve", AsyncRead: "async_read", AsyncWrite: "async_write", Await: "await",
	StreamCreate: "stream_create", StreamRead: "stream_read", StreamWrite: "stream_write", StreamClose: "stream_close",
	JsonParse: "json_parse", JsonStringify: "json_stringify", CsvParse: "csv_parse", CsvWrite: "csv_write",
	Compress: "compress", Decompress: "decompress", Encrypt: "encrypt", Decrypt: "decrypt", Hash: "hash",
	DbConnect: "db_connect", DbQuery: "db_query", DbExec: "db_exec",
}

var mnemonicToCode map[string]Code

func init() {
	mnemonicToCode = make(map[string]Code, len(mnemonics))
	for code, name := range mnemonics {
		mnemonicToCode[name] = code
	}
}

func (c Code) String() string {
	if name, ok := mnemonics[c]; ok {
		return name
	}
	return "?unknown?"
}

// Lookup resolves a mnemonic to its Code, the assembler's pass-two
// dictionary lookup.
func Lookup(mnemonic string) (Code, bool) {
	code, ok := mnemonicToCode[mnemonic]
	return code, ok
}

// concurrencyCodes is the set the register VM refuses to execute
// (spec.md §4.9: "Concurrency opcodes are unsupported here").
var concurrencyCodes = map[Code]bool{
	Spawn: true, Receive: true, ReceiveMatch: true, Yield: true, Send: true,
	Monitor: true, Demonitor: true, Link: true, Unlink: true, TrapExit: true,
	Register: true, Unregister: true, Whereis: true, SendNamed: true,
	StartSupervisor: true, SuperviseChild: true, RestartChild: true,
}

func (c Code) IsConcurrency() bool { return concurrencyCodes[c] }

// ioStubCodes is the set of unimplemented I/O instruction forms that
// parse and dispatch but always fail with UnsupportedOperation.
var ioStubCodes = map[Code]bool{
	ReadFile: true, WriteFile: true, Exit: true,
	ReadLine: true, ReadChar: true, ReadInput: true, AppendFile: true, FileExists: true,
	FileSize: true, DeleteFile: true, ListDir: true, ReadBytes: true, WriteBytes: true,
	GetEnv: true, SetEnv: true, GetArgs: true, Exec: true, ExecCapture: true,
	GetTime: true, Sleep: true, FormatTime: true,
	HttpGet: true, HttpPost: true, TcpConnect: true, TcpListen: true, TcpSend: true, TcpRecv: true,
	UdpBind: true, UdpSend: true, UdpRecv: true, DnsResolve: true,
	AsyncRead: true, AsyncWrite: true, Await: true,
	StreamCreate: true, StreamRead: true, StreamWrite: true, StreamClose: true,
	JsonParse: true, JsonStringify: true, CsvParse: true, CsvWrite: true,
	Compress: true, Decompress: true, Encrypt: true, Decrypt: true, Hash: true,
	DbConnect: true, DbQuery: true, DbExec: true,
}

func (c Code) IsIOStub() bool { return ioStubCodes[c] }

// RewriteAddrs shifts every jump/call/function target in instrs by base.
// Used when a module's instruction vector is appended to a host program
// (spec.md §4.5) so its internal control-flow targets still point at the
// right place after relocation.
func RewriteAddrs(instrs []Instruction, base int) []Instruction {
	out := make([]Instruction, len(instrs))
	for i, instr := range instrs {
		switch instr.Code {
		case Jmp, Jz, Call, Try, MakeFunction, MakeLambda:
			instr.Addr += base
		}
		out[i] = instr
	}
	return out
}

// RequiresOperand mirrors the teacher's Bytecode.RequiresOpArg (vm/vm.go):
// true for instruction forms the text assembler expects a trailing
// argument for.
func (c Code) RequiresOperand() bool {
	switch c {
	case PushInt, PushFloat, PushStr, PushBool,
		Jmp, Jz, Call, Store, Load, Delete,
		MakeList, SetField, GetField, HasField, DeleteField,
		MakeFunction, MakeLambda, Capture,
		Try, Import, Export,
		Send, Monitor, Demonitor, Link, Unlink,
		Register, Unregister, Whereis, SendNamed,
		SuperviseChild, RestartChild, ReceiveMatch:
		return true
	default:
		return false
	}
}
