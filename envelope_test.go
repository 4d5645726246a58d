package mailcore

import "testing"

func TestAddressStringWithAndWithoutName(t *testing.T) {
	named := Address{Name: "Alice", Mailbox: "alice", Host: "example.com"}
	if got, want := named.String(), "Alice <alice@example.com>"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}

	bare := Address{Mailbox: "alice", Host: "example.com"}
	if got, want := bare.String(), "alice@example.com"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("Mon, 2 Jan 2006 15:04:05 -0700")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if got.Year() != 2006 || got.Month().String() != "January" || got.Day() != 2 {
		t.Fatalf("ParseDate = %v", got)
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	if _, err := ParseDate("not a date"); err == nil {
		t.Fatal("ParseDate: expected an error for an unparseable date")
	}
}
