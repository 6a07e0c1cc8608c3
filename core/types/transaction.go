package types

// AuthenticatorKind enumerates the transaction authenticator shapes the
// prologue gates on (spec.md §3 metadata, SPEC_FULL §3).
type AuthenticatorKind int

const (
	AuthEd25519 AuthenticatorKind = iota
	AuthMultiEd25519
	AuthMultiAgent
	AuthFeePayer
	AuthSingleSender
)

// PayloadKind discriminates a user transaction's payload (spec.md §3).
type PayloadKind int

const (
	PayloadScript PayloadKind = iota
	PayloadEntryFunction
	PayloadMultisig
	PayloadModuleBundle // deprecated, disabled by default (spec.md §4.2 stage 5, §5)
)

// ModuleId names one on-chain module by its publishing address and short
// name, e.g. 0x1::account.
type ModuleId struct {
	Address [32]byte
	Name    string
}

type ScriptPayload struct {
	Code    []byte
	TyArgs  []string
	Args    [][]byte
}

type EntryFunctionPayload struct {
	Module   ModuleId
	Function string
	TyArgs   []string
	Args     [][]byte
}

type MultisigPayload struct {
	MultisigAddress [32]byte
	// InnerPayload is the transaction-provided (not-yet-verified) proposed
	// inner EntryFunction bytes; nil means "fetch whatever is on-chain"
	// (spec.md §4.3 step 2).
	InnerPayload []byte
}

type ModuleBundlePayload struct {
	Modules [][]byte
}

// Payload is a tagged union over the four payload kinds (spec.md §3).
type Payload struct {
	Kind           PayloadKind
	Script         *ScriptPayload
	EntryFunction  *EntryFunctionPayload
	Multisig       *MultisigPayload
	ModuleBundle   *ModuleBundlePayload
}

// TransactionMetadata is the data extracted from a SignedTxn relevant to the
// pipeline (spec.md §3, SPEC_FULL §3 supplement from aptos_vm.rs).
type TransactionMetadata struct {
	Sender             [32]byte
	SecondarySigners   [][32]byte
	FeePayer           *[32]byte
	SequenceNumber     uint64
	MaxGasAmount       uint64
	GasUnitPrice       uint64
	ExpirationTimestamp uint64
	ChainId            uint8
	ScriptHash          []byte
	TransactionSize     uint64
	Authenticator       AuthenticatorKind
	IsSimulation        bool
}

// AllSigners returns sender + secondary signers (+ fee payer, if present)
// used by the duplicate-signer check (spec.md §4.2 stage 1).
func (m TransactionMetadata) AllSigners() [][32]byte {
	out := make([][32]byte, 0, len(m.SecondarySigners)+2)
	out = append(out, m.Sender)
	out = append(out, m.SecondarySigners...)
	if m.FeePayer != nil {
		out = append(out, *m.FeePayer)
	}
	return out
}

// UserTransaction bundles a payload with its metadata (spec.md §3 "User(SignedTxn)").
type UserTransaction struct {
	Metadata TransactionMetadata
	Payload  Payload
	Hash     [32]byte
}

// BlockMetadataTransaction (spec.md §3).
type BlockMetadataTransaction struct {
	Round              uint64
	Timestamp          uint64
	Proposer           [32]byte
	PreviousVoteBitvec []byte
}

// WriteSetPayloadKind discriminates a Genesis transaction's write-set
// payload (spec.md §3, §6 "Waypoint / genesis write sets").
type WriteSetPayloadKind int

const (
	WriteSetDirect WriteSetPayloadKind = iota
	WriteSetScript
)

type GenesisTransaction struct {
	Kind   WriteSetPayloadKind
	Direct *ChangeSet    // meaningful when Kind == WriteSetDirect
	Script *ScriptPayload // meaningful when Kind == WriteSetScript, run as reserved_vm_address()
}

// TransactionKind discriminates the top-level Transaction variant (spec.md §3).
type TransactionKind int

const (
	TransactionUser TransactionKind = iota
	TransactionBlockMetadata
	TransactionGenesis
	TransactionStateCheckpoint
	TransactionValidator
)

// Transaction is the tagged variant at the root of the data model (spec.md §3).
type Transaction struct {
	Kind           TransactionKind
	User           *UserTransaction
	BlockMetadata  *BlockMetadataTransaction
	Genesis        *GenesisTransaction
}

func (t Transaction) Hash() [32]byte {
	if t.User != nil {
		return t.User.Hash
	}
	return [32]byte{}
}
