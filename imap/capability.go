// Capability tokens (RFC 9051 §7.2.1 and the extension RFCs cataloged
// below) and a concurrency-safe CapSet the session updates from the
// greeting, CAPABILITY response, and post-STARTTLS/post-AUTHENTICATE
// re-probe.
package imap

import (
	"strings"
	"sync"
)

// Cap is one token from a CAPABILITY response.
type Cap string

// Core protocol versions.
const (
	CapIMAP4rev1 Cap = "IMAP4rev1"
	CapIMAP4rev2 Cap = "IMAP4rev2"
)

// SASL mechanism advertisements, each spelled "AUTH=<mechanism>".
const (
	CapAuthPlain           Cap = "AUTH=PLAIN"
	CapAuthLogin           Cap = "AUTH=LOGIN"
	CapAuthCRAMMD5         Cap = "AUTH=CRAM-MD5"
	CapAuthSCRAMSHA1       Cap = "AUTH=SCRAM-SHA-1"
	CapAuthSCRAMSHA256     Cap = "AUTH=SCRAM-SHA-256"
	CapAuthSCRAMSHA1Plus   Cap = "AUTH=SCRAM-SHA-1-PLUS"
	CapAuthSCRAMSHA256Plus Cap = "AUTH=SCRAM-SHA-256-PLUS"
	CapAuthXOAuth2         Cap = "AUTH=XOAUTH2"
	CapAuthOAuthBearer     Cap = "AUTH=OAUTHBEARER"
	CapAuthExternal        Cap = "AUTH=EXTERNAL"
	CapAuthAnonymous       Cap = "AUTH=ANONYMOUS"
)

// Connection-lifecycle and negotiation extensions.
const (
	CapSASLIR          Cap = "SASL-IR"          // RFC 4959
	CapStartTLS        Cap = "STARTTLS"         // RFC 3501
	CapLogindisabled   Cap = "LOGINDISABLED"    // RFC 3501
	CapIdle            Cap = "IDLE"             // RFC 2177
	CapEnable          Cap = "ENABLE"           // RFC 5161
	CapCompressDeflate Cap = "COMPRESS=DEFLATE" // RFC 4978
	CapUnauthenticate  Cap = "UNAUTHENTICATE"   // RFC 8437
	CapUnselect        Cap = "UNSELECT"         // RFC 3691
	CapUTF8Accept      Cap = "UTF8=ACCEPT"      // RFC 6855
	CapUTF8Only        Cap = "UTF8=ONLY"        // RFC 6855
	CapLiteralPlus     Cap = "LITERAL+"         // RFC 7888
	CapLiteralMinus    Cap = "LITERAL-"         // RFC 7888 / RFC 9051
	CapAppendLimit     Cap = "APPENDLIMIT"      // RFC 7889
	CapMessageLimit    Cap = "MESSAGELIMIT"     // RFC 9738
	CapInProgress      Cap = "INPROGRESS"       // RFC 9585
)

// Mailbox and namespace extensions.
const (
	CapNamespace        Cap = "NAMESPACE"          // RFC 2342
	CapID               Cap = "ID"                 // RFC 2971
	CapChildren         Cap = "CHILDREN"            // RFC 3348
	CapMultiAppend      Cap = "MULTIAPPEND"         // RFC 3502
	CapBinary           Cap = "BINARY"              // RFC 3516
	CapACL              Cap = "ACL"                 // RFC 4314
	CapUIDPlus          Cap = "UIDPLUS"             // RFC 4315
	CapURLAuth          Cap = "URLAUTH"             // RFC 4467
	CapCatenate         Cap = "CATENATE"            // RFC 4469
	CapListExtended     Cap = "LIST-EXTENDED"       // RFC 5258
	CapListStatus       Cap = "LIST-STATUS"         // RFC 5819
	CapSpecialUse       Cap = "SPECIAL-USE"         // RFC 6154
	CapCreateSpecialUse Cap = "CREATE-SPECIAL-USE"  // RFC 6154
	CapMove             Cap = "MOVE"                // RFC 6851
	CapObjectID         Cap = "OBJECTID"            // RFC 8474
	CapReplace          Cap = "REPLACE"             // RFC 8508
	CapSaveDate         Cap = "SAVEDATE"            // RFC 8514
	CapPreview          Cap = "PREVIEW"             // RFC 8970
	CapUIDOnly          Cap = "UIDONLY"             // RFC 9586
	CapListMetadata     Cap = "LIST-METADATA"       // RFC 9590
	CapJMAPAccess       Cap = "JMAPACCESS"          // RFC 9698
)

// Search, sort, and result-set extensions.
const (
	CapESearch              Cap = "ESEARCH"               // RFC 4731
	CapWithin               Cap = "WITHIN"                // RFC 5032
	CapSearchRes            Cap = "SEARCHRES"             // RFC 5182
	CapLanguage             Cap = "LANGUAGE"              // RFC 5255
	CapSort                 Cap = "SORT"                  // RFC 5256
	CapThreadOrderedSubject Cap = "THREAD=ORDEREDSUBJECT" // RFC 5256
	CapThreadReferences     Cap = "THREAD=REFERENCES"     // RFC 5256
	CapConvert              Cap = "CONVERT"               // RFC 5259
	CapContextSearch        Cap = "CONTEXT=SEARCH"        // RFC 5267
	CapContextSort          Cap = "CONTEXT=SORT"          // RFC 5267
	CapESort                Cap = "ESORT"                 // RFC 5267
	CapSortDisplay          Cap = "SORT=DISPLAY"          // RFC 5957
	CapSearchFuzzy          Cap = "SEARCH=FUZZY"          // RFC 6203
	CapCondStore            Cap = "CONDSTORE"             // RFC 7162
	CapQResync              Cap = "QRESYNC"               // RFC 7162
	CapMultiSearch          Cap = "MULTISEARCH"           // RFC 7377
	CapPartial              Cap = "PARTIAL"               // RFC 9394
)

// Server-side metadata, quota, and policy extensions.
const (
	CapMetadata           Cap = "METADATA"                      // RFC 5464
	CapMetadataServer     Cap = "METADATA-SERVER"                // RFC 5464
	CapNotify             Cap = "NOTIFY"                         // RFC 5465
	CapFilters            Cap = "FILTERS"                        // RFC 5466
	CapQuota              Cap = "QUOTA"                          // RFC 9208
	CapQuotaResStorage    Cap = "QUOTA=RES-STORAGE"              // RFC 9208
	CapQuotaResMessage    Cap = "QUOTA=RES-MESSAGE"               // RFC 9208
	CapQuotaResMailbox    Cap = "QUOTA=RES-MAILBOX"               // RFC 9208
	CapQuotaResAnnotation Cap = "QUOTA=RES-ANNOTATION-STORAGE"    // RFC 9208
	CapStatusSize         Cap = "STATUS=SIZE"                    // RFC 8438
	CapListMyRights       Cap = "LIST-MYRIGHTS"                  // RFC 8440
	CapOAuthBearer        Cap = "OAUTHBEARER"                    // RFC 7628
)

// CapSet is a concurrency-safe collection of capability tokens, read from
// multiple goroutines (command submission) while the response reader
// updates it after a fresh CAPABILITY listing.
type CapSet struct {
	mu   sync.RWMutex
	toks map[Cap]struct{}
}

// NewCapSet builds a CapSet seeded with the given tokens.
func NewCapSet(toks ...Cap) *CapSet {
	cs := &CapSet{toks: make(map[Cap]struct{}, len(toks))}
	cs.Add(toks...)
	return cs
}

// Has reports whether c is present.
func (cs *CapSet) Has(c Cap) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	_, ok := cs.toks[c]
	return ok
}

// HasAuth reports whether an AUTH= capability advertises mechanism,
// case-insensitively.
func (cs *CapSet) HasAuth(mechanism string) bool {
	return cs.Has(Cap("AUTH=" + strings.ToUpper(mechanism)))
}

// Add inserts toks, a no-op for any already present.
func (cs *CapSet) Add(toks ...Cap) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, c := range toks {
		cs.toks[c] = struct{}{}
	}
}

// Remove deletes toks, a no-op for any not present.
func (cs *CapSet) Remove(toks ...Cap) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, c := range toks {
		delete(cs.toks, c)
	}
}

// All returns every token currently held, in no particular order.
func (cs *CapSet) All() []Cap {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]Cap, 0, len(cs.toks))
	for c := range cs.toks {
		out = append(out, c)
	}
	return out
}

// Len reports how many tokens are held.
func (cs *CapSet) Len() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.toks)
}

// String renders the set as a space-joined token list, the same shape a
// CAPABILITY response line carries.
func (cs *CapSet) String() string {
	toks := cs.All()
	strs := make([]string, len(toks))
	for i, c := range toks {
		strs[i] = string(c)
	}
	return strings.Join(strs, " ")
}

// Clone returns an independent copy, used before a STARTTLS/AUTHENTICATE
// capability re-probe discards the pre-negotiation set per RFC 9051 §7.1's
// "a server is not required to announce it again" guidance — callers that
// want the pre-negotiation snapshot for diagnostics take it here first.
func (cs *CapSet) Clone() *CapSet {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	clone := &CapSet{toks: make(map[Cap]struct{}, len(cs.toks))}
	for c := range cs.toks {
		clone.toks[c] = struct{}{}
	}
	return clone
}
