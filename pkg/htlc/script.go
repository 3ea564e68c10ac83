package htlc

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

const (
	hashLen    = 32
	hash160Len = 20
)

// ScriptOpts carries everything needed to build the UTXO-chain locking
// script for one swap leg.
type ScriptOpts struct {
	// SenderPubKeyHash is the hash160 of the key allowed to refund after the
	// locktime.
	SenderPubKeyHash []byte
	// ReceiverPubKeyHash is the hash160 of the key allowed to claim with the
	// preimage.
	ReceiverPubKeyHash []byte
	// Hashlock is the SHA-256 hash the preimage must match.
	Hashlock []byte
	// Locktime is the absolute unix-epoch CLTV expiry of the refund branch.
	Locktime int64
}

func (o ScriptOpts) validate() error {
	if len(o.SenderPubKeyHash) != hash160Len {
		return fmt.Errorf("sender pubkey hash must be %d bytes", hash160Len)
	}
	if len(o.ReceiverPubKeyHash) != hash160Len {
		return fmt.Errorf("receiver pubkey hash must be %d bytes", hash160Len)
	}
	if len(o.Hashlock) != hashLen {
		return fmt.Errorf("hashlock must be %d bytes", hashLen)
	}
	if o.Locktime <= 0 {
		return fmt.Errorf("locktime must be greater than 0")
	}
	return nil
}

// LockingScript builds the HTLC redeem script. The first branch releases the
// funds to the receiver against the SHA-256 preimage, the second refunds the
// sender once the CLTV locktime passes:
//
//	OP_IF
//	  OP_SHA256 <hashlock> OP_EQUALVERIFY
//	  OP_DUP OP_HASH160 <receiver pkh>
//	OP_ELSE
//	  <locktime> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	  OP_DUP OP_HASH160 <sender pkh>
//	OP_ENDIF
//	OP_EQUALVERIFY OP_CHECKSIG
func LockingScript(opts ScriptOpts) ([]byte, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid script opts: %w", err)
	}

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(opts.Hashlock)
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_DUP)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(opts.ReceiverPubKeyHash)
	builder.AddOp(txscript.OP_ELSE)
	builder.AddInt64(opts.Locktime)
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddOp(txscript.OP_DUP)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(opts.SenderPubKeyHash)
	builder.AddOp(txscript.OP_ENDIF)
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_CHECKSIG)

	script, err := builder.Script()
	if err != nil {
		return nil, fmt.Errorf("failed to build locking script: %w", err)
	}
	return script, nil
}

// P2SHAddress wraps the redeem script into the pay-to-script-hash address
// that receives the lock funding output.
func P2SHAddress(redeemScript []byte, net *chaincfg.Params) (*btcutil.AddressScriptHash, error) {
	addr, err := btcutil.NewAddressScriptHash(redeemScript, net)
	if err != nil {
		return nil, fmt.Errorf("failed to derive p2sh address: %w", err)
	}
	return addr, nil
}

// ClaimSigScript assembles the scriptSig spending the hashlock branch:
// <sig> <pubkey> <preimage> OP_TRUE <redeem script>.
func ClaimSigScript(sig, pubKey, preimage, redeemScript []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddData(sig).
		AddData(pubKey).
		AddData(preimage).
		AddOp(txscript.OP_TRUE).
		AddData(redeemScript).
		Script()
}

// RefundSigScript assembles the scriptSig spending the CLTV branch:
// <sig> <pubkey> OP_FALSE <redeem script>. The spending transaction must set
// nLockTime to the script locktime and a non-final input sequence.
func RefundSigScript(sig, pubKey, redeemScript []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddData(sig).
		AddData(pubKey).
		AddOp(txscript.OP_FALSE).
		AddData(redeemScript).
		Script()
}

// ExtractPreimage scans a claim scriptSig for the 32-byte push matching the
// hashlock. This is how the resolver learns the secret revealed on-chain.
func ExtractPreimage(sigScript, hashlock []byte) ([]byte, bool) {
	pushes, err := txscript.PushedData(sigScript)
	if err != nil {
		return nil, false
	}
	for _, push := range pushes {
		if len(push) != hashLen {
			continue
		}
		sum := sha256.Sum256(push)
		if subtle.ConstantTimeCompare(sum[:], hashlock) == 1 {
			return push, true
		}
	}
	return nil, false
}
