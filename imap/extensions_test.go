package imap

import "testing"

func TestGetACLParsesEntries(t *testing.T) {
	sess, fs := newTestSession(t, "* OK Ready")
	sess.Caps.Add(CapACL)

	errCh := make(chan error, 1)
	var entries []ACLEntry
	go func() {
		var err error
		entries, err = sess.GetACL("INBOX")
		errCh <- err
	}()

	if line := fs.readLine(); line != "A0001 GETACL INBOX" {
		t.Fatalf("server saw %q", line)
	}
	fs.send(`* ACL INBOX alice lrsw bob lr`)
	fs.send("A0001 OK GETACL completed")

	if err := <-errCh; err != nil {
		t.Fatalf("GetACL: %v", err)
	}
	want := []ACLEntry{{Identifier: "alice", Rights: "lrsw"}, {Identifier: "bob", Rights: "lr"}}
	if len(entries) != len(want) || entries[0] != want[0] || entries[1] != want[1] {
		t.Fatalf("entries = %+v, want %+v", entries, want)
	}
}

func TestGetACLRejectedWithoutCapability(t *testing.T) {
	sess, _ := newTestSession(t, "* OK Ready")
	if _, err := sess.GetACL("INBOX"); err == nil {
		t.Fatal("expected an error when ACL isn't advertised")
	}
}

func TestDeleteACLSendsCommand(t *testing.T) {
	sess, fs := newTestSession(t, "* OK Ready")
	sess.Caps.Add(CapACL)

	errCh := make(chan error, 1)
	go func() { errCh <- sess.DeleteACL("INBOX", "alice") }()

	if line := fs.readLine(); line != `A0001 DELETEACL INBOX "alice"` {
		t.Fatalf("server saw %q", line)
	}
	fs.send("A0001 OK DELETEACL completed")

	if err := <-errCh; err != nil {
		t.Fatalf("DeleteACL: %v", err)
	}
}

func TestMyRightsParsesAndUpdatesACL(t *testing.T) {
	sess, fs := newTestSession(t, "* OK Ready")
	sess.Caps.Add(CapACL)

	errCh := make(chan error, 1)
	var rights ACLRights
	go func() {
		var err error
		rights, err = sess.MyRights("INBOX")
		errCh <- err
	}()

	if line := fs.readLine(); line != "A0001 MYRIGHTS INBOX" {
		t.Fatalf("server saw %q", line)
	}
	fs.send("* MYRIGHTS INBOX lrswipkxtea")
	fs.send("A0001 OK MYRIGHTS completed")

	if err := <-errCh; err != nil {
		t.Fatalf("MyRights: %v", err)
	}
	if rights != "lrswipkxtea" {
		t.Fatalf("rights = %q, want %q", rights, "lrswipkxtea")
	}
	if sess.ACL["INBOX"] != rights {
		t.Fatalf("ACL[INBOX] = %q, want it to mirror MyRights's return value", sess.ACL["INBOX"])
	}
}

func TestGetQuotaParsesResources(t *testing.T) {
	sess, fs := newTestSession(t, "* OK Ready")
	sess.Caps.Add(CapQuota)

	errCh := make(chan error, 1)
	var resources []QuotaResource
	go func() {
		var err error
		resources, err = sess.GetQuota("")
		errCh <- err
	}()

	if line := fs.readLine(); line != `A0001 GETQUOTA ""` {
		t.Fatalf("server saw %q", line)
	}
	fs.send(`* QUOTA "" (STORAGE 10 512000)`)
	fs.send("A0001 OK GETQUOTA completed")

	if err := <-errCh; err != nil {
		t.Fatalf("GetQuota: %v", err)
	}
	if len(resources) != 1 || resources[0] != (QuotaResource{Name: "STORAGE", Usage: 10, Limit: 512000}) {
		t.Fatalf("resources = %+v", resources)
	}
}

func TestSortIssuesUIDVariant(t *testing.T) {
	sess, fs := newTestSession(t, "* OK Ready")
	sess.Caps.Add(CapSort)

	errCh := make(chan error, 1)
	var nums []uint32
	go func() {
		var err error
		nums, err = sess.Sort("ARRIVAL", "ALL", true)
		errCh <- err
	}()

	if line := fs.readLine(); line != "A0001 UID SORT (ARRIVAL) UTF-8 ALL" {
		t.Fatalf("server saw %q", line)
	}
	fs.send("* SORT 3 1 2")
	fs.send("A0001 OK SORT completed")

	if err := <-errCh; err != nil {
		t.Fatalf("Sort: %v", err)
	}
	want := []uint32{3, 1, 2}
	if len(nums) != len(want) {
		t.Fatalf("nums = %v, want %v", nums, want)
	}
	for i := range want {
		if nums[i] != want[i] {
			t.Fatalf("nums = %v, want %v", nums, want)
		}
	}
}

func TestIDExchangesFields(t *testing.T) {
	sess, fs := newTestSession(t, "* OK Ready")
	sess.Caps.Add(CapID)

	errCh := make(chan error, 1)
	var got map[string]string
	go func() {
		var err error
		got, err = sess.ID(map[string]string{"name": "mailcore"})
		errCh <- err
	}()

	if line := fs.readLine(); line != `A0001 ID ("name" "mailcore")` {
		t.Fatalf("server saw %q", line)
	}
	fs.send(`* ID ("name" "testserver" "version" "1.0")`)
	fs.send("A0001 OK ID completed")

	if err := <-errCh; err != nil {
		t.Fatalf("ID: %v", err)
	}
	if got["name"] != "testserver" || got["version"] != "1.0" {
		t.Fatalf("ID = %+v", got)
	}
}

func TestIDWithNoFieldsSendsNIL(t *testing.T) {
	sess, fs := newTestSession(t, "* OK Ready")
	sess.Caps.Add(CapID)

	errCh := make(chan error, 1)
	go func() {
		_, err := sess.ID(nil)
		errCh <- err
	}()

	if line := fs.readLine(); line != "A0001 ID NIL" {
		t.Fatalf("server saw %q", line)
	}
	fs.send("* ID NIL")
	fs.send("A0001 OK ID completed")

	if err := <-errCh; err != nil {
		t.Fatalf("ID: %v", err)
	}
}

func TestSetMetadataSendsEntry(t *testing.T) {
	sess, fs := newTestSession(t, "* OK Ready")
	sess.Caps.Add(CapMetadata)

	errCh := make(chan error, 1)
	go func() { errCh <- sess.SetMetadata("INBOX", "/private/comment", strPtr("hello")) }()

	if line := fs.readLine(); line != `A0001 SETMETADATA INBOX ("/private/comment" "hello")` {
		t.Fatalf("server saw %q", line)
	}
	fs.send("A0001 OK SETMETADATA completed")

	if err := <-errCh; err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
}

func TestSetMetadataNilValueRemoves(t *testing.T) {
	sess, fs := newTestSession(t, "* OK Ready")
	sess.Caps.Add(CapMetadata)

	errCh := make(chan error, 1)
	go func() { errCh <- sess.SetMetadata("INBOX", "/private/comment", nil) }()

	if line := fs.readLine(); line != `A0001 SETMETADATA INBOX ("/private/comment" NIL)` {
		t.Fatalf("server saw %q", line)
	}
	fs.send("A0001 OK SETMETADATA completed")

	if err := <-errCh; err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
}

func strPtr(s string) *string { return &s }
