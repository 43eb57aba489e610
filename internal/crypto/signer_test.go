package crypto

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alanyoungcy/swapbot/internal/domain"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func permitTypedData(chainID string) domain.TypedData {
	return domain.TypedData{
		Domain: json.RawMessage(`{"name":"Permit2","chainId":` + chainID + `,"verifyingContract":"0x000000000022D473030F116dDEE9F6B43aC78BA3"}`),
		Types: json.RawMessage(`{
			"PermitTransferFrom":[{"name":"permitted","type":"TokenPermissions"},{"name":"spender","type":"address"},{"name":"nonce","type":"uint256"},{"name":"deadline","type":"uint256"}],
			"TokenPermissions":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}]
		}`),
		Message: json.RawMessage(`{
			"permitted":{"token":"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913","amount":"115792089237316195423570985008687907853269984665640564039457584007913129639935"},
			"spender":"0x0000000000001fF3684f28c67538d4D072C22734",
			"nonce":2241959297937691820908574931991575,
			"deadline":1716666666
		}`),
		PrimaryType: "PermitTransferFrom",
	}
}

func TestSignTypedDataRecoversSigner(t *testing.T) {
	s, err := NewSigner("0x"+testKey, 8453)
	require.NoError(t, err)

	td := permitTypedData("8453")
	sig, err := s.SignTypedData(context.Background(), td)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(sig, "0x"))

	raw, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	require.NoError(t, err)
	require.Len(t, raw, 65)
	assert.Contains(t, []byte{27, 28}, raw[64])

	typed, err := toAPITypedData(td)
	require.NoError(t, err)
	digest, _, err := apitypes.TypedDataAndHash(typed)
	require.NoError(t, err)

	raw[64] -= 27
	pub, err := ethcrypto.SigToPub(digest, raw)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), ethcrypto.PubkeyToAddress(*pub).Hex())
}

func TestSignTypedDataKeepsLargeIntegers(t *testing.T) {
	msg, err := decodeMessage(json.RawMessage(`{"nonce":2241959297937691820908574931991575}`))
	require.NoError(t, err)
	assert.Equal(t, "2241959297937691820908574931991575", msg["nonce"])
}

func TestSignTypedDataRejectsOtherChain(t *testing.T) {
	s, err := NewSigner(testKey, 8453)
	require.NoError(t, err)

	_, err = s.SignTypedData(context.Background(), permitTypedData("1"))
	require.Error(t, err)
}

func TestSignTypedDataRejectsGarbage(t *testing.T) {
	s, err := NewSigner(testKey, 8453)
	require.NoError(t, err)

	_, err = s.SignTypedData(context.Background(), domain.TypedData{Types: json.RawMessage(`[`)})
	require.Error(t, err)
}

func TestLoadSignerFromEncryptedFile(t *testing.T) {
	blob, err := EncryptKey(testKey, "hunter2")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	s, err := LoadSigner(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"}, 8453)
	require.NoError(t, err)

	direct, err := NewSigner(testKey, 8453)
	require.NoError(t, err)
	assert.Equal(t, direct.Address(), s.Address())

	_, err = LoadSigner(KeyConfig{EncryptedKeyPath: path, KeyPassword: "wrong"}, 8453)
	require.Error(t, err)
}

func TestLoadKeyRawValidation(t *testing.T) {
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + strings.ToUpper(testKey)})
	require.NoError(t, err)
	assert.Equal(t, testKey, got)

	_, err = LoadKey(KeyConfig{RawPrivateKey: "0x1234"})
	assert.ErrorContains(t, err, "32 bytes")

	_, err = LoadKey(KeyConfig{})
	assert.ErrorContains(t, err, "no wallet key")
}
