package vm

import (
	"fmt"

	"github.com/young-rocks/aptos-core/core/gas"
	"github.com/young-rocks/aptos-core/core/types"
)

// MoveAbortError is how a Runtime implementation reports a Move `abort`
// distinctly from a generic execution failure, so the pipeline can attach
// AbortInfo (spec.md §4.2 "MoveAbort enrichment") instead of collapsing
// every failure into ExecutionFailure.
type MoveAbortError struct {
	Location types.AbortLocation
	Code     uint64
}

func (e *MoveAbortError) Error() string {
	return fmt.Sprintf("move abort: location=%v code=%d", e.Location, e.Code)
}

// SequenceNumberTooNewError is how the account prologue's sequence-number
// check reports a gap, distinct from every other prologue rejection: spec.md
// §4.2 stage 1 treats it as "a valid validator outcome", not an attack
// signal, even though its final disposition is still Discard.
type SequenceNumberTooNewError struct{}

func (*SequenceNumberTooNewError) Error() string { return "sequence number too new" }

// PublishRequest is the side effect a native (code::publish_package_txn)
// leaves in a Session's native context asking the VM to publish a module
// bundle after the current entry function returns (spec.md GLOSSARY, §4.2
// stage 6).
type PublishRequest struct {
	ExpectedModules []string
	AllowedDeps     map[[32]byte]map[string]struct{} // address -> allowed dep short names ("" = wildcard)
	Bundle          [][]byte
	DestinationAddr [32]byte
}

// CallResult is what executing a script/entry function/bypass-visibility
// function returns: any return values plus a possible VM-level error.
type CallResult struct {
	ReturnValues [][]byte
}

// Session is one unit of work against the Runtime (spec.md §3, §6). It owns
// a resolver and a SessionId, produces exactly one ChangeSet via Finish, and
// must not be finished twice.
type Session interface {
	LoadFunction(module types.ModuleId, function string, tyArgs []string) error
	LoadScript(code []byte) error

	ExecuteScript(code []byte, tyArgs []string, args [][]byte, signers [][32]byte, meter gas.Meter) (CallResult, error)
	ExecuteEntryFunction(module types.ModuleId, function string, tyArgs []string, args [][]byte, signers [][32]byte, meter gas.Meter) (CallResult, error)
	// ExecuteFunctionBypassVisibility is used for view functions and system
	// module calls where the caller is not the module itself (spec.md §6).
	ExecuteFunctionBypassVisibility(module types.ModuleId, function string, tyArgs []string, args [][]byte, signers [][32]byte, meter gas.Meter) (CallResult, error)

	PublishModuleBundleWithCompatConfig(modules [][]byte, addr [32]byte, compat Compatibility, meter gas.Meter) error

	// ExtractPublishRequest drains any pending publish request left by a
	// native call during this session (spec.md GLOSSARY "Publish request").
	ExtractPublishRequest() (*PublishRequest, bool)

	ExistsModule(id types.ModuleId) (bool, error)

	// Finish consumes the session and produces its ChangeSet. Calling it
	// twice is a programming error (spec.md §3 "cannot be finished twice").
	Finish() (*types.ChangeSet, error)
}

// Compatibility controls module-upgrade checking for a publish (spec.md
// §4.2 stage 5/6).
type Compatibility struct {
	Upgradable           bool
	CheckStructLayout    bool
	CheckFriendLinking   bool
}

// DeserializerConfig bounds the module-bundle deserialization a pending
// publish request is checked against (spec.md §4.2 stage 6
// "DeserializerConfig{max_version, max_identifier_size}").
type DeserializerConfig struct {
	MaxVersion        uint32
	MaxIdentifierSize int
}

// ModuleMetadata is the parsed shape of one module in a publish bundle: just
// enough for the publish-validation rules (spec.md §4.2 stage 6) without
// this core ever touching Move bytecode itself.
type ModuleMetadata struct {
	ShortName string
	Deps      []types.ModuleId
}

// Runtime is the black-box Move VM this core drives (spec.md §1 "treated as
// a black-box Runtime with load/execute/finish operations", §6).
type Runtime interface {
	NewSession(resolver MoveResolver, id types.SessionId) Session

	// ParseModuleMetadata extracts a module's short name and immediate
	// dependencies under the given deserialization bounds, for publish
	// validation (spec.md §4.2 stage 6).
	ParseModuleMetadata(code []byte, cfg DeserializerConfig) (ModuleMetadata, error)

	// InvalidateLoaderCache must be called after any failed publish that may
	// have partially loaded modules into the runtime's shared loader cache
	// (spec.md §9 "Loader-cache invalidation", §4.2 stage 9).
	InvalidateLoaderCache()
}
