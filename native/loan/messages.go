package loan

// Message is an outbound instruction assembled by the engine. The engine only
// guarantees the instruction is well-formed; delivery and success belong to
// the surrounding execution environment.
type Message interface {
	message()
}

// BankSend is a plain fungible-asset payment instruction.
type BankSend struct {
	To     string `json:"to"`
	Amount Coin   `json:"amount"`
}

func (BankSend) message() {}

// AssetTransfer instructs the asset's own contract to move a token between
// accounts. From is only meaningful for multi-token standards; single-owner
// NFT transfers name the recipient alone.
type AssetTransfer struct {
	Asset     Asset  `json:"asset"`
	From      string `json:"from,omitempty"`
	Recipient string `json:"recipient"`
}

func (AssetTransfer) message() {}

// FeeTypeFunds tags fee deposits that originate from loan interest.
const FeeTypeFunds = "funds"

// DepositFees hands a lump fee payment to the external fee distributor,
// tagged with the asset-issuing contracts involved so revenue can be shared
// downstream.
type DepositFees struct {
	Distributor    string   `json:"distributor"`
	AssetContracts []string `json:"asset_contracts"`
	FeeType        string   `json:"fee_type"`
	Funds          Coin     `json:"funds"`
}

func (DepositFees) message() {}

// OwnerOracle answers the "who currently owns token X" query used as a
// pre-transfer safety check at acceptance time. A failed or mismatching
// answer aborts the acceptance entirely.
type OwnerOracle interface {
	OwnerOf(contract, tokenID string) (string, error)
}
