// Package utxo implements the UTXO-chain adapter. Locks are P2SH outputs
// paying to the HTLC redeem script; the contract id encodes the redeem
// script together with the funding outpoint as
// hex(redeemScript):txid:vout, so the adapter itself stays stateless.
package utxo

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/hashlocked/swapd/internal/core/domain"
	"github.com/hashlocked/swapd/internal/core/ports"
	"github.com/hashlocked/swapd/internal/infrastructure/esplora"
	"github.com/hashlocked/swapd/pkg/htlc"
)

const (
	defaultFee = 100_000
	dustLimit  = 546
)

type Config struct {
	Explorer esplora.Service
	Net      *chaincfg.Params

	// Fee is the flat fee in native smallest units applied to every
	// transaction the adapter builds.
	Fee uint64

	// MinConfirmations gates which funding outputs count as spendable.
	MinConfirmations uint64
}

type Adapter struct {
	explorer esplora.Service
	net      *chaincfg.Params
	fee      uint64
	minConf  uint64
}

func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.Explorer == nil {
		return nil, fmt.Errorf("missing explorer client")
	}
	if cfg.Net == nil {
		return nil, fmt.Errorf("missing network params")
	}
	fee := cfg.Fee
	if fee == 0 {
		fee = defaultFee
	}
	return &Adapter{
		explorer: cfg.Explorer,
		net:      cfg.Net,
		fee:      fee,
		minConf:  cfg.MinConfirmations,
	}, nil
}

func (a *Adapter) Chain() domain.Chain {
	return domain.ChainUTXO
}

func (a *Adapter) CreateLock(
	ctx context.Context, params domain.HTLCParameters, creds ports.Credentials,
) (*ports.LockResult, error) {
	senderPKH, err := a.pubKeyHash(params.Sender)
	if err != nil {
		return nil, &domain.ValidationError{Field: "sender", Reason: err.Error()}
	}
	receiverPKH, err := a.pubKeyHash(params.Receiver)
	if err != nil {
		return nil, &domain.ValidationError{Field: "receiver", Reason: err.Error()}
	}
	hashlock, err := hex.DecodeString(params.Hashlock)
	if err != nil {
		return nil, &domain.ValidationError{Field: "hashlock", Reason: "must be hex-encoded"}
	}

	redeemScript, err := htlc.LockingScript(htlc.ScriptOpts{
		SenderPubKeyHash:   senderPKH,
		ReceiverPubKeyHash: receiverPKH,
		Hashlock:           hashlock,
		Locktime:           params.Timelock,
	})
	if err != nil {
		return nil, &domain.ValidationError{Field: "params", Reason: err.Error()}
	}
	p2shAddr, err := htlc.P2SHAddress(redeemScript, a.net)
	if err != nil {
		return nil, err
	}
	lockPkScript, err := txscript.PayToAddrScript(p2shAddr)
	if err != nil {
		return nil, err
	}

	wif, fundAddr, err := a.signer(creds)
	if err != nil {
		return nil, err
	}
	fundPkScript, err := txscript.PayToAddrScript(fundAddr)
	if err != nil {
		return nil, err
	}

	utxos, err := a.explorer.GetUTXOs(ctx, fundAddr.EncodeAddress())
	if err != nil {
		return nil, a.netErr("list utxos", err)
	}

	var tip int64
	if a.minConf > 1 {
		tip, err = a.explorer.GetBlockHeight(ctx)
		if err != nil {
			return nil, a.netErr("tip height", err)
		}
	}

	selected, total, err := selectUTXOs(utxos, params.Amount+a.fee, tip, a.minConf)
	if err != nil {
		return nil, &domain.InsufficientFundsError{
			Token:     a.net.Name,
			Required:  params.Amount + a.fee,
			Available: total,
		}
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	for _, u := range selected {
		hash, err := chainhash.NewHashFromStr(u.Txid)
		if err != nil {
			return nil, fmt.Errorf("bad utxo txid %s: %w", u.Txid, err)
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, u.Vout), nil, nil))
	}
	tx.AddTxOut(wire.NewTxOut(int64(params.Amount), lockPkScript))
	if change := total - params.Amount - a.fee; change > dustLimit {
		tx.AddTxOut(wire.NewTxOut(int64(change), fundPkScript))
	}

	for i := range tx.TxIn {
		sigScript, err := txscript.SignatureScript(
			tx, i, fundPkScript, txscript.SigHashAll, wif.PrivKey, wif.CompressPubKey,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to sign input %d: %w", i, err)
		}
		tx.TxIn[i].SignatureScript = sigScript
	}

	txid, err := a.broadcast(ctx, tx)
	if err != nil {
		return nil, err
	}

	return &ports.LockResult{
		ContractId: encodeContractId(redeemScript, txid, 0),
		TxRef:      txid,
	}, nil
}

func (a *Adapter) Claim(
	ctx context.Context, contractId string, preimage []byte, creds ports.Credentials,
) (*ports.ClaimResult, error) {
	lock, err := decodeContractId(contractId)
	if err != nil {
		return nil, &domain.ValidationError{Field: "contract_id", Reason: err.Error()}
	}
	if !htlc.Verify(preimage, lock.hashlock) {
		return nil, &domain.HashlockMismatchError{
			Expected: hex.EncodeToString(lock.hashlock),
			Got:      hex.EncodeToString(preimage),
		}
	}

	spend, err := a.explorer.GetOutspend(ctx, lock.txid, lock.vout)
	if err != nil {
		return nil, a.netErr("outspend", err)
	}
	if spend.Spent {
		settled, err := a.settledBy(ctx, spend, lock)
		if err != nil {
			return nil, err
		}
		if settled.claimed {
			return &ports.ClaimResult{TxRef: spend.Txid}, nil
		}
		return nil, fmt.Errorf("lock %s:%d already refunded", lock.txid, lock.vout)
	}

	if now := time.Now().Unix(); now >= lock.locktime {
		return nil, &domain.TimelockExpiredError{
			ContractId: contractId,
			Timelock:   lock.locktime,
			Now:        now,
		}
	}

	wif, claimAddr, err := a.signer(creds)
	if err != nil {
		return nil, err
	}

	tx, err := a.spendLock(ctx, lock, claimAddr, 0)
	if err != nil {
		return nil, err
	}
	sig, err := txscript.RawTxInSignature(
		tx, 0, lock.redeemScript, txscript.SigHashAll, wif.PrivKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to sign claim: %w", err)
	}
	pubKey := wif.SerializePubKey()
	tx.TxIn[0].SignatureScript, err = htlc.ClaimSigScript(
		sig, pubKey, preimage, lock.redeemScript,
	)
	if err != nil {
		return nil, err
	}

	txid, err := a.broadcast(ctx, tx)
	if err != nil {
		return nil, err
	}
	return &ports.ClaimResult{TxRef: txid}, nil
}

func (a *Adapter) Refund(
	ctx context.Context, contractId string, creds ports.Credentials,
) (*ports.RefundResult, error) {
	lock, err := decodeContractId(contractId)
	if err != nil {
		return nil, &domain.ValidationError{Field: "contract_id", Reason: err.Error()}
	}

	spend, err := a.explorer.GetOutspend(ctx, lock.txid, lock.vout)
	if err != nil {
		return nil, a.netErr("outspend", err)
	}
	if spend.Spent {
		settled, err := a.settledBy(ctx, spend, lock)
		if err != nil {
			return nil, err
		}
		if settled.claimed {
			return nil, fmt.Errorf("lock %s:%d already claimed", lock.txid, lock.vout)
		}
		return &ports.RefundResult{TxRef: spend.Txid}, nil
	}

	if now := time.Now().Unix(); now < lock.locktime {
		return nil, &domain.TimelockNotExpiredError{
			ContractId: contractId,
			Timelock:   lock.locktime,
			Now:        now,
		}
	}

	wif, refundAddr, err := a.signer(creds)
	if err != nil {
		return nil, err
	}

	// CLTV needs the spending transaction to commit to the locktime and use
	// a non-final sequence
	tx, err := a.spendLock(ctx, lock, refundAddr, uint32(lock.locktime))
	if err != nil {
		return nil, err
	}
	sig, err := txscript.RawTxInSignature(
		tx, 0, lock.redeemScript, txscript.SigHashAll, wif.PrivKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refund: %w", err)
	}
	tx.TxIn[0].SignatureScript, err = htlc.RefundSigScript(
		sig, wif.SerializePubKey(), lock.redeemScript,
	)
	if err != nil {
		return nil, err
	}

	txid, err := a.broadcast(ctx, tx)
	if err != nil {
		return nil, err
	}
	return &ports.RefundResult{TxRef: txid}, nil
}

func (a *Adapter) QueryStatus(
	ctx context.Context, contractId string,
) (*ports.ContractState, error) {
	lock, err := decodeContractId(contractId)
	if err != nil {
		return nil, &domain.ValidationError{Field: "contract_id", Reason: err.Error()}
	}

	value, err := a.lockValue(ctx, lock)
	if err != nil {
		return nil, err
	}

	state := &ports.ContractState{
		Amount:   value,
		Hashlock: hex.EncodeToString(lock.hashlock),
		Timelock: lock.locktime,
	}

	status, err := a.explorer.GetTxStatus(ctx, lock.txid)
	if err != nil {
		return nil, a.netErr("tx status", err)
	}
	if status.Confirmed {
		tip, err := a.explorer.GetBlockHeight(ctx)
		if err != nil {
			return nil, a.netErr("tip height", err)
		}
		if tip >= status.BlockHeight {
			state.Confirmations = uint64(tip-status.BlockHeight) + 1
		}
	}

	spend, err := a.explorer.GetOutspend(ctx, lock.txid, lock.vout)
	if err != nil {
		return nil, a.netErr("outspend", err)
	}
	if !spend.Spent {
		return state, nil
	}

	settled, err := a.settledBy(ctx, spend, lock)
	if err != nil {
		return nil, err
	}
	if settled.claimed {
		state.Withdrawn = true
		state.Preimage = settled.preimage
	} else {
		state.Refunded = true
	}
	return state, nil
}

func (a *Adapter) Connected(ctx context.Context) error {
	if _, err := a.explorer.GetBlockHeight(ctx); err != nil {
		return a.netErr("tip height", err)
	}
	return nil
}

func (a *Adapter) SignerBalance(
	ctx context.Context, creds ports.Credentials,
) (uint64, error) {
	_, addr, err := a.signer(creds)
	if err != nil {
		return 0, err
	}
	utxos, err := a.explorer.GetUTXOs(ctx, addr.EncodeAddress())
	if err != nil {
		return 0, a.netErr("list utxos", err)
	}
	var total uint64
	for _, u := range utxos {
		if u.Confirmed {
			total += u.Value
		}
	}
	return total, nil
}

// spendLock builds the single-input transaction spending the lock output to
// dest, flat fee deducted. A non-zero locktime marks a refund spend.
func (a *Adapter) spendLock(
	ctx context.Context, lock *lockOutput, dest btcutil.Address, locktime uint32,
) (*wire.MsgTx, error) {
	value, err := a.lockValue(ctx, lock)
	if err != nil {
		return nil, err
	}
	if value <= a.fee {
		return nil, &domain.InsufficientFundsError{
			Token:     a.net.Name,
			Required:  a.fee,
			Available: value,
		}
	}

	destScript, err := txscript.PayToAddrScript(dest)
	if err != nil {
		return nil, err
	}

	hash, err := chainhash.NewHashFromStr(lock.txid)
	if err != nil {
		return nil, fmt.Errorf("bad lock txid %s: %w", lock.txid, err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	txIn := wire.NewTxIn(wire.NewOutPoint(hash, lock.vout), nil, nil)
	if locktime > 0 {
		tx.LockTime = locktime
		txIn.Sequence = wire.MaxTxInSequenceNum - 1
	}
	tx.AddTxIn(txIn)
	tx.AddTxOut(wire.NewTxOut(int64(value-a.fee), destScript))
	return tx, nil
}

// lockValue reads the funding output value from the lock transaction.
func (a *Adapter) lockValue(ctx context.Context, lock *lockOutput) (uint64, error) {
	txHex, err := a.explorer.GetTxHex(ctx, lock.txid)
	if err != nil {
		return 0, a.netErr("fetch lock tx", err)
	}
	tx, err := decodeTx(txHex)
	if err != nil {
		return 0, err
	}
	if int(lock.vout) >= len(tx.TxOut) {
		return 0, fmt.Errorf("lock tx %s has no output %d", lock.txid, lock.vout)
	}
	return uint64(tx.TxOut[lock.vout].Value), nil
}

type settlement struct {
	claimed  bool
	preimage []byte
}

// settledBy inspects the transaction that spent the lock: a spend carrying
// the preimage is a claim, anything else took the refund branch.
func (a *Adapter) settledBy(
	ctx context.Context, spend *esplora.Outspend, lock *lockOutput,
) (*settlement, error) {
	txHex, err := a.explorer.GetTxHex(ctx, spend.Txid)
	if err != nil {
		return nil, a.netErr("fetch spend tx", err)
	}
	tx, err := decodeTx(txHex)
	if err != nil {
		return nil, err
	}
	if int(spend.Vin) >= len(tx.TxIn) {
		return nil, fmt.Errorf("spend tx %s has no input %d", spend.Txid, spend.Vin)
	}

	sigScript := tx.TxIn[spend.Vin].SignatureScript
	if preimage, ok := htlc.ExtractPreimage(sigScript, lock.hashlock); ok {
		return &settlement{claimed: true, preimage: preimage}, nil
	}
	return &settlement{}, nil
}

func (a *Adapter) signer(creds ports.Credentials) (*btcutil.WIF, btcutil.Address, error) {
	wif, err := btcutil.DecodeWIF(creds.PrivateKey)
	if err != nil {
		return nil, nil, &domain.ValidationError{
			Field: "private_key", Reason: "not a valid wif key",
		}
	}
	if !wif.IsForNet(a.net) {
		return nil, nil, &domain.ValidationError{
			Field: "private_key", Reason: "wif key is for another network",
		}
	}
	addr, err := btcutil.NewAddressPubKeyHash(
		btcutil.Hash160(wif.SerializePubKey()), a.net,
	)
	if err != nil {
		return nil, nil, err
	}
	return wif, addr, nil
}

func (a *Adapter) pubKeyHash(address string) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, a.net)
	if err != nil {
		return nil, fmt.Errorf("not a valid address: %s", err)
	}
	pkh, ok := addr.(*btcutil.AddressPubKeyHash)
	if !ok {
		return nil, fmt.Errorf("address must be pay-to-pubkey-hash")
	}
	return pkh.ScriptAddress(), nil
}

func (a *Adapter) broadcast(ctx context.Context, tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("failed to serialize tx: %w", err)
	}
	txid, err := a.explorer.Broadcast(ctx, hex.EncodeToString(buf.Bytes()))
	if err != nil {
		return "", a.netErr("broadcast", err)
	}
	return txid, nil
}

func (a *Adapter) netErr(op string, err error) error {
	return &domain.NetworkError{Chain: domain.ChainUTXO, Op: op, Err: err}
}

// selectUTXOs picks confirmed outputs greedily until target is covered.
// A minConf above 1 additionally requires tip-relative confirmation depth.
func selectUTXOs(
	utxos []esplora.UTXO, target uint64, tip int64, minConf uint64,
) ([]esplora.UTXO, uint64, error) {
	var selected []esplora.UTXO
	var total uint64
	for _, u := range utxos {
		if !u.Confirmed {
			continue
		}
		if minConf > 1 && tip-u.BlockHeight+1 < int64(minConf) {
			continue
		}
		selected = append(selected, u)
		total += u.Value
		if total >= target {
			return selected, total, nil
		}
	}
	return nil, total, fmt.Errorf("insufficient confirmed utxos")
}

func decodeTx(txHex string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode raw tx: %w", err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to parse raw tx: %w", err)
	}
	return tx, nil
}

// lockOutput is the decoded form of a contract id.
type lockOutput struct {
	redeemScript []byte
	hashlock     []byte
	locktime     int64
	txid         string
	vout         uint32
}

func encodeContractId(redeemScript []byte, txid string, vout uint32) string {
	return fmt.Sprintf("%s:%s:%d", hex.EncodeToString(redeemScript), txid, vout)
}

func decodeContractId(contractId string) (*lockOutput, error) {
	parts := strings.Split(contractId, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("contract id must be redeemScript:txid:vout")
	}
	redeemScript, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("redeem script must be hex-encoded")
	}
	vout, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("bad vout: %s", parts[2])
	}
	hashlock, locktime, err := parseRedeemScript(redeemScript)
	if err != nil {
		return nil, err
	}
	return &lockOutput{
		redeemScript: redeemScript,
		hashlock:     hashlock,
		locktime:     locktime,
		txid:         parts[1],
		vout:         uint32(vout),
	}, nil
}

// parseRedeemScript recovers the hashlock and CLTV locktime from a redeem
// script with the layout produced by the locking script builder.
func parseRedeemScript(script []byte) (hashlock []byte, locktime int64, err error) {
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	var prevData []byte
	for tokenizer.Next() {
		switch tokenizer.Opcode() {
		case txscript.OP_CHECKLOCKTIMEVERIFY:
			if prevData == nil {
				return nil, 0, fmt.Errorf("no locktime push before cltv")
			}
			num, numErr := txscript.MakeScriptNum(prevData, false, 5)
			if numErr != nil {
				return nil, 0, fmt.Errorf("bad locktime push: %w", numErr)
			}
			locktime = int64(num)
		default:
			if data := tokenizer.Data(); data != nil {
				if len(data) == 32 && hashlock == nil {
					hashlock = data
				}
				prevData = data
			}
		}
	}
	if err := tokenizer.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to parse redeem script: %w", err)
	}
	if hashlock == nil || locktime == 0 {
		return nil, 0, fmt.Errorf("script is not an htlc redeem script")
	}
	return hashlock, locktime, nil
}
