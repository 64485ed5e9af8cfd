package vaults

import (
	ssz "github.com/ferranbt/fastssz"
	"github.com/pkg/errors"
	blst "github.com/supranational/blst/bindings/go"
)

// domainDeposit is DOMAIN_DEPOSIT from the beacon-chain spec (§4.6.1).
var domainDeposit = [4]byte{0x03, 0x00, 0x00, 0x00}

var depositSignatureDST = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSZ_RO_POP_")

// depositMessage is the SSZ container hash_tree_root'd for deposit
// signature verification (§4.6.1): (pubkey, withdrawal_credentials,
// amount_gwei).
type depositMessage struct {
	Pubkey                [48]byte
	WithdrawalCredentials [32]byte
	AmountGwei            uint64
}

func (d *depositMessage) HashTreeRoot() ([32]byte, error) {
	return ssz.HashWithDefaultHasher(d)
}

func (d *depositMessage) HashTreeRootWith(hh *ssz.Hasher) error {
	indx := hh.Index()
	hh.PutBytes(d.Pubkey[:])
	hh.PutBytes(d.WithdrawalCredentials[:])
	hh.PutUint64(d.AmountGwei)
	hh.Merkleize(indx)
	return nil
}

// forkData is the ForkData SSZ container used by compute_fork_data_root.
type forkData struct {
	CurrentVersion        [4]byte
	GenesisValidatorsRoot [32]byte
}

func (f *forkData) HashTreeRoot() ([32]byte, error) {
	return ssz.HashWithDefaultHasher(f)
}

func (f *forkData) HashTreeRootWith(hh *ssz.Hasher) error {
	indx := hh.Index()
	hh.PutBytes(f.CurrentVersion[:])
	hh.PutBytes(f.GenesisValidatorsRoot[:])
	hh.Merkleize(indx)
	return nil
}

// signingData wraps an object root with a signature domain before it is
// signed/verified (compute_signing_root).
type signingData struct {
	ObjectRoot [32]byte
	Domain     [32]byte
}

func (s *signingData) HashTreeRoot() ([32]byte, error) {
	return ssz.HashWithDefaultHasher(s)
}

func (s *signingData) HashTreeRootWith(hh *ssz.Hasher) error {
	indx := hh.Index()
	hh.PutBytes(s.ObjectRoot[:])
	hh.PutBytes(s.Domain[:])
	hh.Merkleize(indx)
	return nil
}

// computeDomain implements compute_domain(domain_type, fork_version,
// genesis_validators_root) for the deposit domain: the genesis validators
// root is always the zero hash for deposit-message verification (§4.6.1),
// since deposits are valid from genesis onward regardless of which fork
// later activated the validator.
func computeDomain(forkVersion [4]byte) ([32]byte, error) {
	fd := forkData{CurrentVersion: forkVersion}
	forkDataRoot, err := fd.HashTreeRoot()
	if err != nil {
		return [32]byte{}, err
	}
	var domain [32]byte
	copy(domain[:4], domainDeposit[:])
	copy(domain[4:], forkDataRoot[:28])
	return domain, nil
}

// VerifyDepositSignature implements §4.6.1: it rebuilds the signing root
// for (pubkey, withdrawal_credentials, amount_gwei) under the deposit
// domain and checks it against the supplied BLS12-381 G2 signature.
func VerifyDepositSignature(pubkey [48]byte, withdrawalCredentials [32]byte, amountGwei uint64, signature [96]byte, genesisForkVersion [4]byte) (bool, error) {
	msg := depositMessage{Pubkey: pubkey, WithdrawalCredentials: withdrawalCredentials, AmountGwei: amountGwei}
	objectRoot, err := msg.HashTreeRoot()
	if err != nil {
		return false, errors.Wrap(err, "hash deposit message")
	}
	domain, err := computeDomain(genesisForkVersion)
	if err != nil {
		return false, errors.Wrap(err, "compute deposit domain")
	}
	sd := signingData{ObjectRoot: objectRoot, Domain: domain}
	signingRoot, err := sd.HashTreeRoot()
	if err != nil {
		return false, errors.Wrap(err, "hash signing data")
	}

	pub := new(blst.P1Affine).Uncompress(pubkey[:])
	if pub == nil {
		return false, nil
	}
	sig := new(blst.P2Affine).Uncompress(signature[:])
	if sig == nil {
		return false, nil
	}
	return sig.Verify(true, pub, true, signingRoot[:], depositSignatureDST), nil
}
