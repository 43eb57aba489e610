package crypto

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Signer holds the hot-wallet key. It signs EIP-712 payloads for quotes and
// EIP-1559 transactions for submission.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int64
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
	}, nil
}

// Address returns the checksummed wallet address.
func (s *Signer) Address() string { return s.address.Hex() }

// Account returns the wallet address.
func (s *Signer) Account() common.Address { return s.address }

// SignTx signs tx for chainID.
func (s *Signer) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: sign tx: %w", err)
	}
	return signed, nil
}

// SignTypedData hashes td per EIP-712 and returns a 65-byte 0x-hex
// signature with v in {27,28}.
func (s *Signer) SignTypedData(ctx context.Context, td domain.TypedData) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	typed, err := toAPITypedData(td)
	if err != nil {
		return "", err
	}
	if typed.Domain.ChainId != nil && s.chainID != 0 {
		if (*big.Int)(typed.Domain.ChainId).Cmp(big.NewInt(s.chainID)) != 0 {
			return "", fmt.Errorf("crypto/signer: typed data for chain %s, signer is on %d",
				(*big.Int)(typed.Domain.ChainId), s.chainID)
		}
	}
	digest, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: hash typed data: %w", err)
	}
	return s.signDigest(digest)
}

// signDigest signs a 32-byte digest and returns r || s || v as hex.
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; EIP-712 expects v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}

func toAPITypedData(td domain.TypedData) (apitypes.TypedData, error) {
	var out apitypes.TypedData
	if err := json.Unmarshal(td.Types, &out.Types); err != nil {
		return out, fmt.Errorf("crypto/signer: decode types: %w", err)
	}
	if err := json.Unmarshal(td.Domain, &out.Domain); err != nil {
		return out, fmt.Errorf("crypto/signer: decode domain: %w", err)
	}
	msg, err := decodeMessage(td.Message)
	if err != nil {
		return out, err
	}
	out.Message = msg
	out.PrimaryType = td.PrimaryType
	if out.PrimaryType == "" {
		return out, fmt.Errorf("crypto/signer: missing primary type")
	}
	if _, ok := out.Types["EIP712Domain"]; !ok {
		out.Types["EIP712Domain"] = domainType(out.Domain)
	}
	return out, nil
}

// decodeMessage keeps integers as strings so uint256 values survive intact.
func decodeMessage(raw json.RawMessage) (apitypes.TypedDataMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("crypto/signer: decode message: %w", err)
	}
	return normalizeNumbers(m).(map[string]interface{}), nil
}

func normalizeNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		return t.String()
	case map[string]interface{}:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case []interface{}:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
		return t
	default:
		return v
	}
}

// domainType lists the domain fields present, in EIP-712 order.
func domainType(d apitypes.TypedDataDomain) []apitypes.Type {
	var out []apitypes.Type
	if d.Name != "" {
		out = append(out, apitypes.Type{Name: "name", Type: "string"})
	}
	if d.Version != "" {
		out = append(out, apitypes.Type{Name: "version", Type: "string"})
	}
	if d.ChainId != nil {
		out = append(out, apitypes.Type{Name: "chainId", Type: "uint256"})
	}
	if d.VerifyingContract != "" {
		out = append(out, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	if d.Salt != "" {
		out = append(out, apitypes.Type{Name: "salt", Type: "bytes32"})
	}
	return out
}
