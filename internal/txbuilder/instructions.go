package txbuilder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// ErrEncoding marks a malformed instruction built locally, as opposed to a
// transaction the network rejected.
var ErrEncoding = errors.New("instruction encoding error")

var (
	SystemProgramID = solana.MustPublicKeyFromBase58("11111111111111111111111111111111")
	TokenProgramID  = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	SysVarRentID    = solana.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")
)

// Account sizes owned by the token program.
const (
	MintAccountSize  = 82
	TokenAccountSize = 165
)

// System program opcodes are u32 little-endian.
const (
	systemCreateAccount uint32 = 0
	systemTransfer      uint32 = 2
)

// Token program opcodes are a single byte.
const (
	tokenInitializeMint    byte = 0
	tokenInitializeAccount byte = 1
	tokenMintTo            byte = 7
)

type encodeFunc func(enc *bin.Encoder) error

func encode(kind string, f encodeFunc) ([]byte, error) {
	var buf bytes.Buffer
	if err := f(bin.NewBinEncoder(&buf)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEncoding, kind, err)
	}
	return buf.Bytes(), nil
}

// EncodeCreateAccount: u32 opcode | lamports u64 | space u64 | owner [32].
func EncodeCreateAccount(lamports, space uint64, owner solana.PublicKey) ([]byte, error) {
	if owner.IsZero() {
		return nil, fmt.Errorf("%w: create_account: zero owner", ErrEncoding)
	}
	return encode("create_account", func(enc *bin.Encoder) error {
		if err := enc.WriteUint32(systemCreateAccount, binary.LittleEndian); err != nil {
			return err
		}
		if err := enc.WriteUint64(lamports, binary.LittleEndian); err != nil {
			return err
		}
		if err := enc.WriteUint64(space, binary.LittleEndian); err != nil {
			return err
		}
		return enc.WriteBytes(owner[:], false)
	})
}

// EncodeTransfer: u32 opcode | lamports u64.
func EncodeTransfer(lamports uint64) ([]byte, error) {
	if lamports == 0 {
		return nil, fmt.Errorf("%w: transfer: zero lamports", ErrEncoding)
	}
	return encode("transfer", func(enc *bin.Encoder) error {
		if err := enc.WriteUint32(systemTransfer, binary.LittleEndian); err != nil {
			return err
		}
		return enc.WriteUint64(lamports, binary.LittleEndian)
	})
}

// EncodeInitializeMint: opcode | decimals u8 | mint authority [32] |
// freeze flag u8 (| freeze authority [32] when the flag is 1).
func EncodeInitializeMint(decimals uint8, mintAuthority solana.PublicKey, freezeAuthority *solana.PublicKey) ([]byte, error) {
	if mintAuthority.IsZero() {
		return nil, fmt.Errorf("%w: initialize_mint: zero mint authority", ErrEncoding)
	}
	return encode("initialize_mint", func(enc *bin.Encoder) error {
		if err := enc.WriteByte(tokenInitializeMint); err != nil {
			return err
		}
		if err := enc.WriteByte(decimals); err != nil {
			return err
		}
		if err := enc.WriteBytes(mintAuthority[:], false); err != nil {
			return err
		}
		if freezeAuthority == nil {
			return enc.WriteByte(0)
		}
		if err := enc.WriteByte(1); err != nil {
			return err
		}
		return enc.WriteBytes(freezeAuthority[:], false)
	})
}

// EncodeInitializeAccount is the bare opcode; mint and owner travel as accounts.
func EncodeInitializeAccount() ([]byte, error) {
	return encode("initialize_account", func(enc *bin.Encoder) error {
		return enc.WriteByte(tokenInitializeAccount)
	})
}

// EncodeMintTo: opcode | amount u64.
func EncodeMintTo(amount uint64) ([]byte, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: mint_to: zero amount", ErrEncoding)
	}
	return encode("mint_to", func(enc *bin.Encoder) error {
		if err := enc.WriteByte(tokenMintTo); err != nil {
			return err
		}
		return enc.WriteUint64(amount, binary.LittleEndian)
	})
}

func CreateAccountInstruction(from, newAccount solana.PublicKey, lamports, space uint64, owner solana.PublicKey) (solana.Instruction, error) {
	data, err := EncodeCreateAccount(lamports, space, owner)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(SystemProgramID, solana.AccountMetaSlice{
		{PublicKey: from, IsSigner: true, IsWritable: true},
		{PublicKey: newAccount, IsSigner: true, IsWritable: true},
	}, data), nil
}

func TransferInstruction(from, to solana.PublicKey, lamports uint64) (solana.Instruction, error) {
	data, err := EncodeTransfer(lamports)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(SystemProgramID, solana.AccountMetaSlice{
		{PublicKey: from, IsSigner: true, IsWritable: true},
		{PublicKey: to, IsSigner: false, IsWritable: true},
	}, data), nil
}

func InitializeMintInstruction(mint solana.PublicKey, decimals uint8, mintAuthority solana.PublicKey, freezeAuthority *solana.PublicKey) (solana.Instruction, error) {
	data, err := EncodeInitializeMint(decimals, mintAuthority, freezeAuthority)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(TokenProgramID, solana.AccountMetaSlice{
		{PublicKey: mint, IsSigner: false, IsWritable: true},
		{PublicKey: SysVarRentID, IsSigner: false, IsWritable: false},
	}, data), nil
}

func InitializeAccountInstruction(account, mint, owner solana.PublicKey) (solana.Instruction, error) {
	data, err := EncodeInitializeAccount()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(TokenProgramID, solana.AccountMetaSlice{
		{PublicKey: account, IsSigner: false, IsWritable: true},
		{PublicKey: mint, IsSigner: false, IsWritable: false},
		{PublicKey: owner, IsSigner: false, IsWritable: false},
		{PublicKey: SysVarRentID, IsSigner: false, IsWritable: false},
	}, data), nil
}

func MintToInstruction(mint, destination, authority solana.PublicKey, amount uint64) (solana.Instruction, error) {
	data, err := EncodeMintTo(amount)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(TokenProgramID, solana.AccountMetaSlice{
		{PublicKey: mint, IsSigner: false, IsWritable: true},
		{PublicKey: destination, IsSigner: false, IsWritable: true},
		{PublicKey: authority, IsSigner: true, IsWritable: false},
	}, data), nil
}
