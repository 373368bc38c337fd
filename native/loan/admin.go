package loan

import (
	"strconv"
	"strings"
)

// isOwner authorizes contract administration calls.
func (e *Engine) isOwner(caller string) (*ContractConfig, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, err := e.state.ContractConfig()
	if err != nil {
		return nil, err
	}
	if caller != cfg.Owner {
		return nil, ErrUnauthorized
	}
	return cfg, nil
}

// SetOwner proposes a new contract owner. Ownership only moves when the
// proposed owner claims it, so a typo here cannot brick administration.
func (e *Engine) SetOwner(caller, newOwner string) error {
	cfg, err := e.isOwner(caller)
	if err != nil {
		return err
	}
	newOwner = strings.TrimSpace(newOwner)
	if newOwner == "" {
		return ErrEmptyAddress
	}
	cfg.ProposedOwner = newOwner
	if err := e.state.PutContractConfig(cfg); err != nil {
		return err
	}
	e.emit(newParamChangedEvent("proposed_owner", newOwner))
	return nil
}

// ClaimOwnership completes a two-phase ownership transfer. Only the proposed
// owner may call it.
func (e *Engine) ClaimOwnership(caller string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	cfg, err := e.state.ContractConfig()
	if err != nil {
		return err
	}
	if cfg.ProposedOwner == "" {
		return ErrNoProposedOwner
	}
	if caller != cfg.ProposedOwner {
		return ErrUnauthorized
	}
	cfg.Owner = cfg.ProposedOwner
	cfg.ProposedOwner = ""
	if err := e.state.PutContractConfig(cfg); err != nil {
		return err
	}
	e.emit(newParamChangedEvent("owner", cfg.Owner))
	return nil
}

// SetFeeDistributor points fee routing at a new distributor contract.
func (e *Engine) SetFeeDistributor(caller, distributor string) error {
	cfg, err := e.isOwner(caller)
	if err != nil {
		return err
	}
	distributor = strings.TrimSpace(distributor)
	if distributor == "" {
		return ErrEmptyAddress
	}
	cfg.FeeDistributor = distributor
	if err := e.state.PutContractConfig(cfg); err != nil {
		return err
	}
	e.emit(newParamChangedEvent("fee_distributor", distributor))
	return nil
}

// SetFeeRate updates the share of interest kept by the protocol. A rate of
// 100% or more is rejected.
func (e *Engine) SetFeeRate(caller string, feeRateBps uint32) error {
	cfg, err := e.isOwner(caller)
	if err != nil {
		return err
	}
	if uint64(feeRateBps) >= feeDenominator.Uint64() {
		return ErrFeeRateOutOfRange
	}
	cfg.FeeRateBps = feeRateBps
	if err := e.state.PutContractConfig(cfg); err != nil {
		return err
	}
	e.emit(newParamChangedEvent("fee_rate_bps", strconv.FormatUint(uint64(feeRateBps), 10)))
	return nil
}
