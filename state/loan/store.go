package loan

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	nativeloan "nftlend/native/loan"
	"nftlend/storage"
)

// Store persists the loan module's records on an ordered key-value database.
// Offers are stored once under their numeric global id and pointed to by two
// secondary indices (lender, and borrower+loan); index keys are built from
// identity fields that never change after creation, so updates rewrite in
// place and nothing ever needs re-indexing. The store never deletes.
//
// Numeric key components are big-endian encoded so lexicographic iteration
// order equals numeric order.
type Store struct {
	db storage.Database
}

var errConfigMissing = errors.New("loan state: contract config not initialised")

const (
	configKey         = "loan/config"
	borrowerPrefix    = "loan/borrower/"
	collateralPrefix  = "loan/collateral/"
	offerPrefix       = "loan/offer/"
	lenderIndexPrefix = "loan/idx/lender/"
	loanIndexPrefix   = "loan/idx/loan/"
)

// NewStore wraps a database handle.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func be8(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

func collateralKey(borrower string, loanID uint64) []byte {
	key := []byte(collateralPrefix + borrower + "/")
	return append(key, be8(loanID)...)
}

func offerKey(globalID uint64) []byte {
	return append([]byte(offerPrefix), be8(globalID)...)
}

func lenderIndexKey(lender string, globalID uint64) []byte {
	key := []byte(lenderIndexPrefix + lender + "/")
	return append(key, be8(globalID)...)
}

func loanIndexKey(borrower string, loanID, globalID uint64) []byte {
	key := []byte(loanIndexPrefix + borrower + "/")
	key = append(key, be8(loanID)...)
	key = append(key, '/')
	return append(key, be8(globalID)...)
}

func parseGlobalID(globalID string) (uint64, error) {
	id, err := strconv.ParseUint(globalID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("loan state: malformed global offer id %q: %w", globalID, err)
	}
	return id, nil
}

func (s *Store) put(key []byte, record any) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.db.Put(key, encoded)
}

func (s *Store) get(key []byte, record any) (bool, error) {
	encoded, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(encoded, record)
}

// ContractConfig loads the configuration aggregate; the store must have been
// seeded first.
func (s *Store) ContractConfig() (*nativeloan.ContractConfig, error) {
	cfg := &nativeloan.ContractConfig{}
	ok, err := s.get([]byte(configKey), cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errConfigMissing
	}
	return cfg, nil
}

// PutContractConfig persists the configuration aggregate.
func (s *Store) PutContractConfig(cfg *nativeloan.ContractConfig) error {
	if cfg == nil {
		return errors.New("loan state: nil contract config")
	}
	return s.put([]byte(configKey), cfg)
}

// EnsureContractConfig seeds the config on first start and leaves an existing
// one untouched.
func (s *Store) EnsureContractConfig(defaults *nativeloan.ContractConfig) error {
	ok, err := s.db.Has([]byte(configKey))
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return s.PutContractConfig(defaults)
}

// BorrowerInfo loads the per-borrower collateral sequence.
func (s *Store) BorrowerInfo(borrower string) (*nativeloan.BorrowerInfo, bool, error) {
	info := &nativeloan.BorrowerInfo{}
	ok, err := s.get([]byte(borrowerPrefix+borrower), info)
	if err != nil {
		return nil, false, err
	}
	return info, ok, nil
}

// PutBorrowerInfo persists the per-borrower collateral sequence.
func (s *Store) PutBorrowerInfo(borrower string, info *nativeloan.BorrowerInfo) error {
	if info == nil {
		return errors.New("loan state: nil borrower info")
	}
	return s.put([]byte(borrowerPrefix+borrower), info)
}

// Collateral loads one collateral record.
func (s *Store) Collateral(borrower string, loanID uint64) (*nativeloan.Collateral, bool, error) {
	collateral := &nativeloan.Collateral{}
	ok, err := s.get(collateralKey(borrower, loanID), collateral)
	if err != nil {
		return nil, false, err
	}
	return collateral, ok, nil
}

// PutCollateral persists one collateral record under its identity key.
func (s *Store) PutCollateral(collateral *nativeloan.Collateral) error {
	if collateral == nil {
		return errors.New("loan state: nil collateral")
	}
	if !collateral.State.Valid() {
		return fmt.Errorf("loan state: invalid collateral state %d", collateral.State)
	}
	return s.put(collateralKey(collateral.Borrower, collateral.LoanID), collateral)
}

// Offer loads one offer record by its global id.
func (s *Store) Offer(globalID string) (*nativeloan.Offer, bool, error) {
	id, err := parseGlobalID(globalID)
	if err != nil {
		return nil, false, err
	}
	offer := &nativeloan.Offer{}
	ok, err := s.get(offerKey(id), offer)
	if err != nil {
		return nil, false, err
	}
	return offer, ok, nil
}

// PutOffer persists the record and both secondary index entries in one
// atomic batch, so a crash cannot strand a record without its index
// pointers. Index keys derive from immutable identity fields, so rewriting
// them on every update is a no-op after the first insert.
func (s *Store) PutOffer(offer *nativeloan.Offer) error {
	if offer == nil {
		return errors.New("loan state: nil offer")
	}
	if !offer.State.Valid() {
		return fmt.Errorf("loan state: invalid offer state %d", offer.State)
	}
	id, err := parseGlobalID(offer.GlobalID)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(offer)
	if err != nil {
		return err
	}
	pointer := []byte(offer.GlobalID)
	batch := s.db.NewBatch()
	batch.Put(offerKey(id), encoded)
	batch.Put(lenderIndexKey(offer.Lender, id), pointer)
	batch.Put(loanIndexKey(offer.Borrower, offer.LoanID, id), pointer)
	return s.db.Write(batch)
}

// CollateralsByBorrower returns up to limit collaterals in descending loan id
// order, starting strictly below the optional cursor.
func (s *Store) CollateralsByBorrower(borrower string, startAfter *uint64, limit int) ([]*nativeloan.Collateral, error) {
	prefix := []byte(collateralPrefix + borrower + "/")
	collaterals := make([]*nativeloan.Collateral, 0, limit)
	var iterErr error
	err := s.db.Iterate(prefix, true, func(key, value []byte) bool {
		if len(key) != len(prefix)+8 {
			return true
		}
		loanID := binary.BigEndian.Uint64(key[len(prefix):])
		if startAfter != nil && loanID >= *startAfter {
			return true
		}
		collateral := &nativeloan.Collateral{}
		if iterErr = json.Unmarshal(value, collateral); iterErr != nil {
			return false
		}
		collaterals = append(collaterals, collateral)
		return len(collaterals) < limit
	})
	if err != nil {
		return nil, err
	}
	return collaterals, iterErr
}

// CollateralsAll returns up to limit collaterals across all borrowers in
// descending (borrower, loan id) key order, starting strictly below the
// optional cursor.
func (s *Store) CollateralsAll(startAfter *nativeloan.CollateralCursor, limit int) ([]*nativeloan.Collateral, error) {
	prefix := []byte(collateralPrefix)
	var bound []byte
	if startAfter != nil {
		bound = collateralKey(startAfter.Borrower, startAfter.LoanID)
	}
	collaterals := make([]*nativeloan.Collateral, 0, limit)
	var iterErr error
	err := s.db.Iterate(prefix, true, func(key, value []byte) bool {
		if bound != nil && bytes.Compare(key, bound) >= 0 {
			return true
		}
		collateral := &nativeloan.Collateral{}
		if iterErr = json.Unmarshal(value, collateral); iterErr != nil {
			return false
		}
		collaterals = append(collaterals, collateral)
		return len(collaterals) < limit
	})
	if err != nil {
		return nil, err
	}
	return collaterals, iterErr
}

// offersByIndex pages one secondary index. Keys that are not exactly
// prefix+id are skipped: an account name containing '/' would otherwise read
// as an extension of another account's prefix.
func (s *Store) offersByIndex(prefix []byte, startAfter *uint64, limit int) ([]*nativeloan.Offer, error) {
	offers := make([]*nativeloan.Offer, 0, limit)
	var iterErr error
	err := s.db.Iterate(prefix, true, func(key, value []byte) bool {
		if len(key) != len(prefix)+8 {
			return true
		}
		globalID := binary.BigEndian.Uint64(key[len(key)-8:])
		if startAfter != nil && globalID >= *startAfter {
			return true
		}
		offer := &nativeloan.Offer{}
		var ok bool
		ok, iterErr = s.get(offerKey(globalID), offer)
		if iterErr != nil {
			return false
		}
		if !ok {
			iterErr = fmt.Errorf("loan state: dangling offer index %q", string(value))
			return false
		}
		offers = append(offers, offer)
		return len(offers) < limit
	})
	if err != nil {
		return nil, err
	}
	return offers, iterErr
}

// OffersByLender returns up to limit of the lender's offers in descending
// global id order.
func (s *Store) OffersByLender(lender string, startAfter *uint64, limit int) ([]*nativeloan.Offer, error) {
	return s.offersByIndex([]byte(lenderIndexPrefix+lender+"/"), startAfter, limit)
}

// OffersByLoan returns up to limit of one collateral's offers in descending
// global id order.
func (s *Store) OffersByLoan(borrower string, loanID uint64, startAfter *uint64, limit int) ([]*nativeloan.Offer, error) {
	prefix := []byte(loanIndexPrefix + borrower + "/")
	prefix = append(prefix, be8(loanID)...)
	prefix = append(prefix, '/')
	return s.offersByIndex(prefix, startAfter, limit)
}
