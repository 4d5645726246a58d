package mailcore

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

type recordingPrompter struct {
	confirmAnswer bool
	confirmErr    error
}

func (p recordingPrompter) Confirm(prompt string, def bool) (bool, error) {
	if p.confirmErr != nil {
		return false, p.confirmErr
	}
	return p.confirmAnswer, nil
}

func (p recordingPrompter) Input(prompt string) (string, error) { return "", nil }
func (p recordingPrompter) PressAnyKey(prompt string) error     { return nil }

func TestQuadOptionResolveYesNo(t *testing.T) {
	if ok, err := OptionYes.Resolve(nil, "x"); err != nil || !ok {
		t.Fatalf("OptionYes.Resolve = %v, %v", ok, err)
	}
	if ok, err := OptionNo.Resolve(nil, "x"); err != nil || ok {
		t.Fatalf("OptionNo.Resolve = %v, %v", ok, err)
	}
}

func TestQuadOptionResolveAskDefaultsWithoutPrompter(t *testing.T) {
	if ok, _ := OptionAskYes.Resolve(nil, "x"); !ok {
		t.Fatal("OptionAskYes.Resolve with nil Prompter should default true")
	}
	if ok, _ := OptionAskNo.Resolve(nil, "x"); ok {
		t.Fatal("OptionAskNo.Resolve with nil Prompter should default false")
	}
}

func TestQuadOptionResolveAskConsultsPrompter(t *testing.T) {
	p := recordingPrompter{confirmAnswer: false}
	if ok, err := OptionAskYes.Resolve(p, "x"); err != nil || ok {
		t.Fatalf("OptionAskYes.Resolve with a prompter answering false = %v, %v", ok, err)
	}
}

func TestTristateString(t *testing.T) {
	cases := map[Tristate]string{Unknown: "unknown", Supported: "supported", Unsupported: "unsupported"}
	for ts, want := range cases {
		if got := ts.String(); got != want {
			t.Fatalf("%v.String() = %q, want %q", ts, got, want)
		}
	}
}

func TestRuntimeRegisterAccountDeduplicatesByMatch(t *testing.T) {
	rt := NewRuntime(DefaultRuntimeConfig(), nil, nil)
	a := &Account{Scheme: "imap", Host: "mail.example.com", User: "alice"}
	b := &Account{Scheme: "imap", Host: "mail.example.com", User: "alice", Mailbox: "Archive"}

	got1 := rt.RegisterAccount(a)
	got2 := rt.RegisterAccount(b)
	if got1 != got2 {
		t.Fatalf("RegisterAccount: expected the second call to return the first's existing match")
	}
	if len(rt.Accounts()) != 1 {
		t.Fatalf("Accounts() = %v, want exactly one registered account", rt.Accounts())
	}
}

func TestRuntimeFindAccount(t *testing.T) {
	rt := NewRuntime(DefaultRuntimeConfig(), nil, nil)
	rt.RegisterAccount(&Account{Scheme: "IMAP", Host: "Mail.Example.com", User: "alice"})

	if rt.FindAccount("imap", "mail.example.com", "alice") == nil {
		t.Fatal("FindAccount: expected a case-insensitive scheme/host match")
	}
	if rt.FindAccount("imap", "mail.example.com", "bob") != nil {
		t.Fatal("FindAccount: expected no match for a different user")
	}
}

func TestRuntimeMetricsOptIn(t *testing.T) {
	rt := NewRuntime(DefaultRuntimeConfig(), nil, nil)
	if rt.Metrics() != nil {
		t.Fatal("Metrics() should be nil before EnableMetrics is called")
	}
	m := rt.EnableMetrics(prometheus.NewRegistry())
	if m == nil || rt.Metrics() != m {
		t.Fatal("EnableMetrics should attach and return the same instrumentation")
	}
}
