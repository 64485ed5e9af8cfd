package consensus

import "github.com/ethereum/go-ethereum/crypto"

// keccak256 is the hash function named throughout §4.4/§6.1
// ("keccak256(abi.encode(ReportTuple))").
func keccak256(data []byte) []byte {
	return crypto.Keccak256(data)
}
