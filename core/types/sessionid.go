package types

import "github.com/google/uuid"

// SessionIdKind tags the purpose of a Session, used only to disambiguate
// logs and scope identifier generation (spec.md §3).
type SessionIdKind int

const (
	SessionTxn SessionIdKind = iota
	SessionPrologueMeta
	SessionTxnMeta
	SessionEpilogueMeta
	SessionBlockMeta
	SessionGenesis
	SessionView
	SessionVoid
)

func (k SessionIdKind) String() string {
	switch k {
	case SessionTxn:
		return "txn"
	case SessionPrologueMeta:
		return "prologue_meta"
	case SessionTxnMeta:
		return "txn_meta"
	case SessionEpilogueMeta:
		return "epilogue_meta"
	case SessionBlockMeta:
		return "block_meta"
	case SessionGenesis:
		return "genesis"
	case SessionView:
		return "view"
	default:
		return "void"
	}
}

// SessionId identifies one unit of work against the Runtime for logging and
// identifier-generation scoping. The UUID is derived deterministically from
// the transaction hash plus kind so re-execution (e.g. a speculative re-run)
// reproduces the same id.
type SessionId struct {
	Kind SessionIdKind
	TxnHash  [32]byte
	ScopeTag string
}

func NewTxnSessionId(txnHash [32]byte) SessionId {
	return SessionId{Kind: SessionTxn, TxnHash: txnHash}
}

func NewMetaSessionId(kind SessionIdKind, txnHash [32]byte) SessionId {
	return SessionId{Kind: kind, TxnHash: txnHash}
}

func VoidSessionId() SessionId {
	return SessionId{Kind: SessionVoid}
}

// UUID derives a deterministic, human-loggable identifier scoped to this
// session — used by natives that need a fresh identifier per session
// (spec.md §3: SessionId "used only to disambiguate logs and scope
// identifier generation").
func (id SessionId) UUID() uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, append([]byte(id.Kind.String()+id.ScopeTag), id.TxnHash[:]...))
}

func (id SessionId) String() string {
	return id.Kind.String() + ":" + id.UUID().String()
}
