package imap

// Command verbs (RFC 9051 §6 and the extension RFCs), grouped by the
// minimum connection state each requires. commandMinState backs queue's
// state-mismatch warning below; the constants themselves are what callers
// pass to Command/queue.
const (
	CommandCapability = "CAPABILITY"
	CommandNoop       = "NOOP"
	CommandLogout     = "LOGOUT"
)

const (
	CommandStartTLS     = "STARTTLS"
	CommandAuthenticate = "AUTHENTICATE"
	CommandLogin        = "LOGIN"
)

const (
	CommandEnable      = "ENABLE"
	CommandSelect      = "SELECT"
	CommandExamine     = "EXAMINE"
	CommandCreate      = "CREATE"
	CommandDelete      = "DELETE"
	CommandRename      = "RENAME"
	CommandSubscribe   = "SUBSCRIBE"
	CommandUnsubscribe = "UNSUBSCRIBE"
	CommandList        = "LIST"
	CommandLsub        = "LSUB"
	CommandNamespace   = "NAMESPACE"
	CommandStatus      = "STATUS"
	CommandAppend      = "APPEND"
	CommandIdle        = "IDLE"
)

const (
	CommandClose    = "CLOSE"
	CommandUnselect = "UNSELECT"
	CommandExpunge  = "EXPUNGE"
	CommandSearch   = "SEARCH"
	CommandFetch    = "FETCH"
	CommandStore    = "STORE"
	CommandCopy     = "COPY"
	CommandMove     = "MOVE"
	CommandSort     = "SORT"
	CommandThread   = "THREAD"
	CommandUID      = "UID"
)

const (
	CommandID             = "ID"
	CommandCompress       = "COMPRESS"
	CommandGetQuota       = "GETQUOTA"
	CommandGetQuotaRoot   = "GETQUOTAROOT"
	CommandSetQuota       = "SETQUOTA"
	CommandSetACL         = "SETACL"
	CommandDeleteACL      = "DELETEACL"
	CommandGetACL         = "GETACL"
	CommandListRights     = "LISTRIGHTS"
	CommandMyRights       = "MYRIGHTS"
	CommandSetMetadata    = "SETMETADATA"
	CommandGetMetadata    = "GETMETADATA"
	CommandReplace        = "REPLACE"
	CommandUnauthenticate = "UNAUTHENTICATE"
	CommandNotify         = "NOTIFY"
)

// commandMinState maps a verb to the earliest ConnState RFC 9051 allows it
// in. Verbs absent from the map (extension commands whose state depends on
// the specific extension, e.g. COMPRESS) aren't checked.
var commandMinState = map[string]ConnState{
	CommandCapability: ConnStateNotAuthenticated,
	CommandNoop:       ConnStateNotAuthenticated,
	CommandLogout:     ConnStateNotAuthenticated,
	CommandStartTLS:   ConnStateNotAuthenticated,

	CommandAuthenticate: ConnStateNotAuthenticated,
	CommandLogin:        ConnStateNotAuthenticated,

	CommandEnable:      ConnStateAuthenticated,
	CommandSelect:      ConnStateAuthenticated,
	CommandExamine:     ConnStateAuthenticated,
	CommandCreate:      ConnStateAuthenticated,
	CommandDelete:      ConnStateAuthenticated,
	CommandRename:      ConnStateAuthenticated,
	CommandSubscribe:   ConnStateAuthenticated,
	CommandUnsubscribe: ConnStateAuthenticated,
	CommandList:        ConnStateAuthenticated,
	CommandLsub:        ConnStateAuthenticated,
	CommandNamespace:   ConnStateAuthenticated,
	CommandStatus:      ConnStateAuthenticated,
	CommandAppend:      ConnStateAuthenticated,
	CommandIdle:        ConnStateAuthenticated,

	CommandClose:    ConnStateSelected,
	CommandUnselect: ConnStateSelected,
	CommandExpunge:  ConnStateSelected,
	CommandSearch:   ConnStateSelected,
	CommandFetch:    ConnStateSelected,
	CommandStore:    ConnStateSelected,
	CommandCopy:     ConnStateSelected,
	CommandMove:     ConnStateSelected,
	CommandSort:     ConnStateSelected,
	CommandThread:   ConnStateSelected,
	CommandUID:      ConnStateSelected,
}

// checkCommandState reports whether verb is known to require a later
// connection state than s currently holds. It never blocks the command —
// servers are the authority on state errors — it only gives queue enough
// information to log a warning a caller can notice before the server
// rejects the command with a BAD/NO response.
func checkCommandState(verb string, current ConnState) (required ConnState, mismatched bool) {
	required, known := commandMinState[verb]
	if !known {
		return 0, false
	}
	return required, current < required
}
