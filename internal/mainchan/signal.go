package mainchan

// posixSignalNumbers maps the RFC 4254 "exit-signal" name strings (the
// portion after "SIG") to the conventional POSIX signal number spec.md
// §4.5 calls "host-defined": these numbers are stable across every Unix
// target this core runs on, so the table is a fixed constant rather than a
// runtime syscall lookup.
var posixSignalNumbers = map[string]uint32{
	"HUP":  1,
	"INT":  2,
	"QUIT": 3,
	"ILL":  4,
	"TRAP": 5,
	"ABRT": 6,
	"BUS":  7,
	"FPE":  8,
	"KILL": 9,
	"USR1": 10,
	"SEGV": 11,
	"USR2": 12,
	"PIPE": 13,
	"ALRM": 14,
	"TERM": 15,
}

// lookupSignal resolves a textual exit-signal name to its number, per
// spec.md §4.5 "attempt to map the name to a host-defined signal number".
func lookupSignal(name string) (uint32, bool) {
	n, ok := posixSignalNumbers[name]
	return n, ok
}
