package loan

import (
	"math/big"
	"strings"
)

// LoanState tracks a collateral listing through its lifecycle. All states
// other than LoanPublished are terminal for offer activity; records are never
// deleted, terminal states are permanent history.
type LoanState uint8

const (
	LoanPublished LoanState = iota
	LoanStarted
	LoanDefaulted
	LoanEnded
	LoanAssetWithdrawn
)

// String returns the canonical lowercase name used in events and errors.
func (s LoanState) String() string {
	switch s {
	case LoanPublished:
		return "published"
	case LoanStarted:
		return "started"
	case LoanDefaulted:
		return "defaulted"
	case LoanEnded:
		return "ended"
	case LoanAssetWithdrawn:
		return "asset_withdrawn"
	default:
		return "unknown"
	}
}

// Valid reports whether the state value is within the supported range.
func (s LoanState) Valid() bool {
	return s <= LoanAssetWithdrawn
}

// OfferState tracks a lender offer. LoanPublished collateral is the only
// context in which an offer can change state; Accepted, Cancelled and Refused
// are terminal.
type OfferState uint8

const (
	OfferPublished OfferState = iota
	OfferAccepted
	OfferRefused
	OfferCancelled
)

// String returns the canonical lowercase name used in events and errors.
func (s OfferState) String() string {
	switch s {
	case OfferPublished:
		return "published"
	case OfferAccepted:
		return "accepted"
	case OfferRefused:
		return "refused"
	case OfferCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Valid reports whether the state value is within the supported range.
func (s OfferState) Valid() bool {
	return s <= OfferCancelled
}

// Coin is a fungible amount in a single denomination.
type Coin struct {
	Denom  string   `json:"denom"`
	Amount *big.Int `json:"amount"`
}

// NewCoin is a convenience constructor used heavily in tests.
func NewCoin(denom string, amount int64) Coin {
	return Coin{Denom: denom, Amount: big.NewInt(amount)}
}

// Clone returns a deep copy with a non-nil amount.
func (c Coin) Clone() Coin {
	amount := big.NewInt(0)
	if c.Amount != nil {
		amount = new(big.Int).Set(c.Amount)
	}
	return Coin{Denom: c.Denom, Amount: amount}
}

// Equal reports denomination and amount equality.
func (c Coin) Equal(other Coin) bool {
	if c.Denom != other.Denom {
		return false
	}
	left := big.NewInt(0)
	if c.Amount != nil {
		left = c.Amount
	}
	right := big.NewInt(0)
	if other.Amount != nil {
		right = other.Amount
	}
	return left.Cmp(right) == 0
}

// Validate rejects coins without a denomination or with a negative amount.
func (c Coin) Validate() error {
	if strings.TrimSpace(c.Denom) == "" {
		return ErrInvalidDenom
	}
	if c.Amount == nil || c.Amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// LoanTerms is the value type embedded in collaterals and offers: what is
// lent, what is owed on top, and how long the borrower has.
type LoanTerms struct {
	Principal        Coin     `json:"principal"`
	Interest         *big.Int `json:"interest"`
	DurationInBlocks uint64   `json:"duration_in_blocks"`
}

// Clone returns a deep copy of the terms.
func (t LoanTerms) Clone() LoanTerms {
	interest := big.NewInt(0)
	if t.Interest != nil {
		interest = new(big.Int).Set(t.Interest)
	}
	return LoanTerms{
		Principal:        t.Principal.Clone(),
		Interest:         interest,
		DurationInBlocks: t.DurationInBlocks,
	}
}

// Validate checks the structural soundness of the terms. Interest is owed in
// the principal's denomination, so only the amount is carried.
func (t LoanTerms) Validate() error {
	if err := t.Principal.Validate(); err != nil {
		return err
	}
	if t.Interest == nil || t.Interest.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// AssetKind identifies the token standard a collateral asset follows.
type AssetKind uint8

const (
	// AssetNFT is a single-owner non-fungible token.
	AssetNFT AssetKind = iota + 1
	// AssetMultiToken is a valued token on a multi-token standard; Value
	// carries the number of units pledged.
	AssetMultiToken
)

// Asset references a token held by an external asset contract. The engine
// never holds the asset itself, only instructions referencing it.
type Asset struct {
	Kind     AssetKind `json:"kind"`
	Contract string    `json:"contract"`
	TokenID  string    `json:"token_id"`
	Value    *big.Int  `json:"value,omitempty"`
}

// Clone returns a deep copy of the asset reference.
func (a Asset) Clone() Asset {
	clone := a
	if a.Value != nil {
		clone.Value = new(big.Int).Set(a.Value)
	}
	return clone
}

// Equal reports full identity equality, used for preview membership checks.
func (a Asset) Equal(other Asset) bool {
	if a.Kind != other.Kind || a.Contract != other.Contract || a.TokenID != other.TokenID {
		return false
	}
	if a.Value == nil && other.Value == nil {
		return true
	}
	if a.Value == nil || other.Value == nil {
		return false
	}
	return a.Value.Cmp(other.Value) == 0
}

// Validate rejects malformed asset references.
func (a Asset) Validate() error {
	switch a.Kind {
	case AssetNFT:
	case AssetMultiToken:
		if a.Value == nil || a.Value.Sign() <= 0 {
			return ErrInvalidAmount
		}
	default:
		return ErrUnknownAssetKind
	}
	if strings.TrimSpace(a.Contract) == "" || strings.TrimSpace(a.TokenID) == "" {
		return ErrInvalidAsset
	}
	return nil
}

// Collateral is a borrower's listing of assets against which a loan may be
// made. Identity is (Borrower, LoanID); LoanID is minted from the borrower's
// sequence counter and never reused. The asset list is immutable after
// creation.
type Collateral struct {
	Borrower    string     `json:"borrower"`
	LoanID      uint64     `json:"loan_id"`
	Terms       *LoanTerms `json:"terms,omitempty"`
	Assets      []Asset    `json:"assets"`
	ListTime    int64      `json:"list_time"`
	State       LoanState  `json:"state"`
	OfferCount  uint64     `json:"offer_count"`
	ActiveOffer string     `json:"active_offer,omitempty"`
	StartBlock  uint64     `json:"start_block,omitempty"`
	Comment     string     `json:"comment,omitempty"`
	Preview     *Asset     `json:"preview,omitempty"`
}

// Clone returns a deep copy so callers can mutate freely.
func (c *Collateral) Clone() *Collateral {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Terms != nil {
		terms := c.Terms.Clone()
		clone.Terms = &terms
	}
	clone.Assets = make([]Asset, len(c.Assets))
	for i, asset := range c.Assets {
		clone.Assets[i] = asset.Clone()
	}
	if c.Preview != nil {
		preview := c.Preview.Clone()
		clone.Preview = &preview
	}
	return &clone
}

// HasAsset reports whether the asset is a member of the collateral's list.
func (c *Collateral) HasAsset(asset Asset) bool {
	if c == nil {
		return false
	}
	for _, member := range c.Assets {
		if member.Equal(asset) {
			return true
		}
	}
	return false
}

// Offer is a lender's proposal against a specific collateral, with principal
// escrowed at proposal time. GlobalID is the string form of the contract-wide
// offer counter; OfferID is the position within the collateral's offer
// sequence and is display-only.
type Offer struct {
	GlobalID       string     `json:"global_id"`
	Lender         string     `json:"lender"`
	Borrower       string     `json:"borrower"`
	LoanID         uint64     `json:"loan_id"`
	OfferID        uint64     `json:"offer_id"`
	Terms          LoanTerms  `json:"terms"`
	State          OfferState `json:"state"`
	ListTime       int64      `json:"list_time"`
	DepositedFunds *Coin      `json:"deposited_funds,omitempty"`
	Comment        string     `json:"comment,omitempty"`
}

// Clone returns a deep copy so callers can mutate freely.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Terms = o.Terms.Clone()
	if o.DepositedFunds != nil {
		funds := o.DepositedFunds.Clone()
		clone.DepositedFunds = &funds
	}
	return &clone
}

// ContractConfig is the long-lived configuration aggregate: ownership
// (two-phase handover), fee routing and the global offer counter.
type ContractConfig struct {
	Name             string `json:"name"`
	Owner            string `json:"owner"`
	ProposedOwner    string `json:"proposed_owner,omitempty"`
	FeeDistributor   string `json:"fee_distributor"`
	FeeRateBps       uint32 `json:"fee_rate_bps"`
	GlobalOfferCount uint64 `json:"global_offer_count"`
}

// Clone returns a copy of the config.
func (c *ContractConfig) Clone() *ContractConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// BorrowerInfo carries the per-borrower collateral sequence. LastCollateralID
// only ever increases; it mints the next loan id.
type BorrowerInfo struct {
	LastCollateralID uint64 `json:"last_collateral_id"`
}
