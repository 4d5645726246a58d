// Capability discovery for the POP client (SPEC_FULL.md §4.F). Unlike IMAP's
// single CAPABILITY bitset, POP's CAPA response is itself optional, so a
// handful of capabilities are modeled tri-state: known-yes, known-no, or
// unknown because the server never answered CAPA and AUTH was used instead.
package pop

import "strings"

// Tri is a tri-state capability flag: a server that never answered CAPA
// leaves USER/UIDL/TOP at TriUnknown rather than assuming either way.
type Tri int

const (
	TriUnknown Tri = iota
	TriYes
	TriNo
)

// Capabilities is the capability set collected from CAPA (or, failing
// that, AUTH) during one of the three discovery passes spec.md §4.F
// names: initial, post-STLS, post-auth.
type Capabilities struct {
	// CapaSupported is false when the server rejected CAPA outright, in
	// which case User/UIDL/TOP stay TriUnknown and SASL is populated (if
	// at all) from a bare AUTH instead.
	CapaSupported bool
	STLS          bool
	User          Tri
	UIDL          Tri
	TOP           Tri
	SASL          []string
	LoginDelay    int
	Expire        int
}

// parseCapaLines turns CAPA's dot-terminated multiline body into a
// Capabilities value. Unrecognised lines are ignored, matching real-world
// servers that advertise extensions this client has no use for.
func parseCapaLines(lines []string) Capabilities {
	caps := Capabilities{CapaSupported: true, User: TriNo, UIDL: TriNo, TOP: TriNo}
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch strings.ToUpper(fields[0]) {
		case "STLS":
			caps.STLS = true
		case "USER":
			caps.User = TriYes
		case "UIDL":
			caps.UIDL = TriYes
		case "TOP":
			caps.TOP = TriYes
		case "SASL":
			caps.SASL = fields[1:]
		case "LOGIN-DELAY":
			if len(fields) > 1 {
				caps.LoginDelay = atoiOrZero(fields[1])
			}
		case "EXPIRE":
			if len(fields) > 1 && fields[1] != "NEVER" {
				caps.Expire = atoiOrZero(fields[1])
			}
		}
	}
	return caps
}

// parseAuthLines extracts SASL mechanism names from a bare AUTH response,
// the fallback a server without CAPA still usually supports.
func parseAuthLines(lines []string) []string {
	var mechs []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		mechs = append(mechs, strings.ToUpper(line))
	}
	return mechs
}

func atoiOrZero(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
