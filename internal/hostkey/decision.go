// Package hostkey implements the host-key verification decision logic of
// spec.md §4.6: manual-list override, persistent-cache arbitration
// (MATCH/ABSENT/MISMATCH), and the interactive-vs-batch prompt collapse.
package hostkey

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// CacheStatus is the three-way answer a Store gives for a (host, port,
// keytype) lookup, per spec.md §4.6 step 2.
type CacheStatus int

const (
	StatusMatch CacheStatus = iota
	StatusAbsent
	StatusMismatch
)

// Store is the persistent host-key cache interface spec.md §6 fixes: exact-
// match lookup keyed by (host, port, keytype), plus store/overwrite.
// internal/hostkey.PocketBaseStore is the concrete implementation backing
// it against the PocketBase-managed database.
type Store interface {
	Check(host string, port int, keytype, keystring string) (CacheStatus, error)
	Store(host string, port int, keytype, keystring string) error
}

// Prompter asks the user an interactive yes/no question. In batch/non-
// interactive mode the caller never invokes it — see Decide's interactive
// parameter.
type Prompter interface {
	Confirm(message string) bool
}

// ResultKind is the outcome of a host-key decision, spec.md §4.6 "typed
// SeatPromptResult".
type ResultKind int

const (
	KindOK ResultKind = iota
	KindUserAbort
	KindSWAbort
)

// Result is the decision outcome. Msg is populated only for KindSWAbort.
type Result struct {
	Kind ResultKind
	Msg  string
}

func ok() Result             { return Result{Kind: KindOK} }
func swAbort(msg string) Result { return Result{Kind: KindSWAbort, Msg: msg} }

// KeyInfo carries the presented host key and its computed fingerprints,
// spec.md §4.6's input list.
type KeyInfo struct {
	Host     string
	Port     int
	KeyType  string
	KeyBlob  []byte // raw public key bytes, nullable for cert-only presentations
	KeyString string // canonical stored form compared against the cache

	FingerprintSHA256 string // "ssh-rsa 2048 SHA256:aBcD..." form
	FingerprintMD5    string

	// CertCA is the base64 CA public blob a certificate was signed by, set
	// only when KeyBlob represents a certificate (spec.md §4.6 step 2's
	// cert-specific MISMATCH wording).
	CertCA string
}

// Decide implements spec.md §4.6's algorithm. manualList holds configured
// acceptable keys, each either a bare fingerprint ("SHA256:aBcD...") or a
// full "alg bits SHA256:aBcD..." triple as issued by fingerprint tools.
// interactive is false in batch mode (spec.md §9's "Vtable dispatch" note
// doesn't apply here, but the batch collapse rule does): any prompt path
// then becomes KindSWAbort instead of asking prompt.
func Decide(info KeyInfo, manualList []string, store Store, prompt Prompter, interactive bool) Result {
	if len(manualList) > 0 {
		return decideManual(info, manualList)
	}
	return decideCache(info, store, prompt, interactive)
}

// decideManual implements step 1: fingerprint-hash-part and raw-blob match
// against every configured entry.
func decideManual(info KeyInfo, manualList []string) Result {
	want := fingerprintHashPart(info.FingerprintSHA256)
	wantBlob := ""
	if len(info.KeyBlob) > 0 {
		wantBlob = base64.StdEncoding.EncodeToString(info.KeyBlob)
	}
	for _, entry := range manualList {
		if fingerprintHashPart(entry) == want {
			return ok()
		}
		if wantBlob != "" && entry == wantBlob {
			return ok()
		}
	}
	return swAbort("not in manually configured list")
}

// fingerprintHashPart strips a leading "alg bits " prefix, if present,
// leaving just the "SHA256:..." or "MD5:..." tail (spec.md §4.6 step 1).
func fingerprintHashPart(s string) string {
	fields := strings.Fields(s)
	return fields[len(fields)-1]
}

// decideCache implements steps 2-3: cache lookup, prompt selection, and the
// batch-mode collapse.
func decideCache(info KeyInfo, store Store, prompt Prompter, interactive bool) Result {
	status, err := store.Check(info.Host, info.Port, info.KeyType, info.KeyString)
	if err != nil {
		status = StatusAbsent
	}

	switch status {
	case StatusMatch:
		return ok()

	case StatusAbsent:
		msg := fmt.Sprintf("not cached; fingerprint is %s; store?", info.FingerprintSHA256)
		if !interactive {
			return swAbort("host key not cached and running non-interactively")
		}
		if prompt.Confirm(msg) {
			if err := store.Store(info.Host, info.Port, info.KeyType, info.KeyString); err != nil {
				return swAbort(fmt.Sprintf("failed to store host key: %v", err))
			}
			return ok()
		}
		return Result{Kind: KindUserAbort}

	case StatusMismatch:
		msg := fmt.Sprintf("WARNING: cached key did not match; peer offered %s; overwrite?", info.FingerprintSHA256)
		if info.CertCA != "" {
			msg = fmt.Sprintf("WARNING: certificate CA does not match cache; peer offered %s; overwrite?", info.FingerprintSHA256)
		}
		if !interactive {
			return swAbort("cached key did not match and running non-interactively")
		}
		if prompt.Confirm(msg) {
			if err := store.Store(info.Host, info.Port, info.KeyType, info.KeyString); err != nil {
				return swAbort(fmt.Sprintf("failed to overwrite host key: %v", err))
			}
			return ok()
		}
		return Result{Kind: KindUserAbort}

	default:
		return swAbort("unknown cache status")
	}
}
