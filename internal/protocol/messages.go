package protocol

// HELLO (client -> server). The address is the caller identity bound to the
// session; payment custody and signature auth live outside this server, so
// the address is taken at face value except for operator sessions, which
// must also present the operator token when one is configured.
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Address         string     `json:"address"`
	ClientName      string     `json:"client_name,omitempty"`
	Auth            *HelloAuth `json:"auth,omitempty"`
}

type HelloAuth struct {
	OperatorToken string `json:"operator_token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	SessionID       string     `json:"session_id"`
	Address         string     `json:"address"`
	Operator        bool       `json:"operator,omitempty"`
	Drop            DropParams `json:"drop"`
	State           StateObs   `json:"state"`
}

// DropParams are the fixed collection parameters.
type DropParams struct {
	MaxSupply    int      `json:"max_supply"`
	Finishes     []string `json:"finishes"`
	PoolCaps     []int    `json:"pool_caps"`
	UnitPriceWei string   `json:"unit_price_wei"`
	JackpotWei   string   `json:"jackpot_wei"`
	MaxPerCall   int      `json:"max_per_call"`
	MaxJackpots  int      `json:"max_jackpots"`
}

// StateObs is the read-only view of the live drop state.
type StateObs struct {
	Phase           string `json:"phase"`
	TotalIssued     int    `json:"total_issued"`
	Remaining       int    `json:"remaining"`
	IssuedByFinish  []int  `json:"issued_by_finish"`
	JackpotsAwarded int    `json:"jackpots_awarded"`
	AllowlistRoot   string `json:"allowlist_root"`
	VaultWei        string `json:"vault_wei"`
	OpSeq           uint64 `json:"op_seq"`
	OpDigest        string `json:"op_digest"`
}

// ACT (client -> server): a batch of instants executed in order, each acked
// with its own RESULT.
type ActMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Instants        []InstantReq `json:"instants"`
}

// Instant types.
const (
	InstPresaleMint = "PRESALE_MINT"
	InstPublicMint  = "PUBLIC_MINT"
	InstClaim       = "CLAIM_JACKPOT"
	InstTransfer    = "TRANSFER"
	InstApprove     = "APPROVE"
	InstSetPhase    = "SET_PHASE"
	InstSetRoot     = "SET_ALLOWLIST_ROOT"
	InstWithdraw    = "WITHDRAW"
	InstGetState    = "GET_STATE"
	InstGetGem      = "GET_GEM"
	InstGetFinish   = "GET_FINISH"
)

type InstantReq struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	// PRESALE_MINT / PUBLIC_MINT
	Amount   int      `json:"amount,omitempty"`
	ValueWei string   `json:"value_wei,omitempty"`
	Proof    []string `json:"proof,omitempty"` // 0x-hex sibling digests

	// CLAIM_JACKPOT: exactly six gem ids, one per finish.
	GemIDs []uint32 `json:"gem_ids,omitempty"`

	// TRANSFER / APPROVE
	GemID uint32 `json:"gem_id,omitempty"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`

	// SET_PHASE / SET_ALLOWLIST_ROOT / GET_FINISH
	Phase  string `json:"phase,omitempty"`
	Root   string `json:"root,omitempty"`
	Finish string `json:"finish,omitempty"`
}

// RESULT (server -> client)
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ResultFor       string `json:"result_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`

	Minted    []MintedGem `json:"minted,omitempty"`
	PayoutWei string      `json:"payout_wei,omitempty"`
	State     *StateObs   `json:"state,omitempty"`
	Gem       *GemObs     `json:"gem,omitempty"`
	Meta      *FinishMeta `json:"meta,omitempty"`
}

type MintedGem struct {
	GemID  uint32 `json:"gem_id"`
	Finish string `json:"finish"`
}

type GemObs struct {
	GemID  uint32 `json:"gem_id"`
	Finish string `json:"finish"`
	Used   bool   `json:"used"`
	Owner  string `json:"owner"`
}

type FinishMeta struct {
	Finish string `json:"finish"`
	Cap    int    `json:"cap"`
	Issued int    `json:"issued"`
	Ref    string `json:"ref"`
}

// EVENT (server -> client broadcast)
const (
	EventMinted  = "MINTED"
	EventJackpot = "JACKPOT"
	EventPhase   = "PHASE"
)

type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Event           string `json:"event"`
	OpSeq           uint64 `json:"op_seq"`

	Address   string      `json:"address,omitempty"`
	Minted    []MintedGem `json:"minted,omitempty"`
	GemIDs    []uint32    `json:"gem_ids,omitempty"`
	PayoutWei string      `json:"payout_wei,omitempty"`
	Phase     string      `json:"phase,omitempty"`
}
