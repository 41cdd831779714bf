package hostkey

import "testing"

type fakeStore struct {
	status   CacheStatus
	stored   string
	storeErr error
}

func (f *fakeStore) Check(host string, port int, keytype, keystring string) (CacheStatus, error) {
	return f.status, nil
}
func (f *fakeStore) Store(host string, port int, keytype, keystring string) error {
	f.stored = keystring
	return f.storeErr
}

type fakePrompt struct{ answer bool }

func (p fakePrompt) Confirm(string) bool { return p.answer }

func TestManualListMatchByFingerprint(t *testing.T) {
	info := KeyInfo{FingerprintSHA256: "ssh-rsa 2048 SHA256:aBcD..."}
	r := Decide(info, []string{"SHA256:aBcD..."}, nil, nil, true)
	if r.Kind != KindOK {
		t.Fatalf("expected KindOK, got %v (%s)", r.Kind, r.Msg)
	}
}

func TestManualListNoMatchIsSWAbort(t *testing.T) {
	info := KeyInfo{FingerprintSHA256: "ssh-rsa 2048 SHA256:zzzz"}
	r := Decide(info, []string{"SHA256:aBcD..."}, nil, nil, true)
	if r.Kind != KindSWAbort {
		t.Fatalf("expected KindSWAbort, got %v", r.Kind)
	}
}

func TestCachedMismatchInBatchModeIsSWAbortWithoutMutation(t *testing.T) {
	store := &fakeStore{status: StatusMismatch}
	info := KeyInfo{KeyString: "newkey", FingerprintSHA256: "ssh-rsa 2048 SHA256:new"}
	r := Decide(info, nil, store, fakePrompt{answer: true}, false)
	if r.Kind != KindSWAbort {
		t.Fatalf("expected KindSWAbort, got %v", r.Kind)
	}
	if store.stored != "" {
		t.Fatalf("expected no cache mutation in batch mode, got %q", store.stored)
	}
}

func TestAbsentInteractiveAcceptStores(t *testing.T) {
	store := &fakeStore{status: StatusAbsent}
	info := KeyInfo{KeyString: "freshkey", FingerprintSHA256: "ssh-ed25519 256 SHA256:fresh"}
	r := Decide(info, nil, store, fakePrompt{answer: true}, true)
	if r.Kind != KindOK {
		t.Fatalf("expected KindOK, got %v (%s)", r.Kind, r.Msg)
	}
	if store.stored != "freshkey" {
		t.Fatalf("expected key to be stored, got %q", store.stored)
	}
}

func TestAbsentInteractiveDeclineIsUserAbort(t *testing.T) {
	store := &fakeStore{status: StatusAbsent}
	r := Decide(KeyInfo{}, nil, store, fakePrompt{answer: false}, true)
	if r.Kind != KindUserAbort {
		t.Fatalf("expected KindUserAbort, got %v", r.Kind)
	}
}

func TestCacheMatchIsOK(t *testing.T) {
	store := &fakeStore{status: StatusMatch}
	r := Decide(KeyInfo{}, nil, store, fakePrompt{}, false)
	if r.Kind != KindOK {
		t.Fatalf("expected KindOK, got %v", r.Kind)
	}
}
