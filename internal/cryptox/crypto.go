// Package cryptox implements the attachment encryption scheme: AES-256-CBC
// with an HMAC-SHA256 trailer, both keys expanded from a single random
// 64-byte master key via HKDF.
//
// Wire layout of the ciphertext: iv(16) || body || mac(32). The digest
// surfaced alongside the key is SHA-256 over the full ciphertext; a recipient
// holding (key, digest) can verify and decrypt the blob.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/ozolins/attachup/internal/common"
	"golang.org/x/crypto/hkdf"
)

const (
	// MasterKeySize is the size of the random master key handed to recipients.
	MasterKeySize = 64

	ivSize     = aes.BlockSize
	macSize    = sha256.Size
	subKeySize = 32
)

var (
	ErrShortCiphertext = errors.New("ciphertext too short")
	ErrBadMac          = errors.New("mac verification failed")
)

// EncryptedAttachment holds the output of EncryptAttachment. Ciphertext is
// iv||body||mac, Key is the 64-byte master key and Digest is SHA-256 over
// Ciphertext.
type EncryptedAttachment struct {
	Ciphertext []byte
	Key        []byte
	Digest     []byte
}

// hkdfInfo domain-separates attachment subkeys from other HKDF uses.
var hkdfInfo = []byte("attachup/attachment")

func deriveSubKeys(master []byte) (aesKey, macKey []byte, err error) {
	r := hkdf.New(sha256.New, master, nil, hkdfInfo)
	buf := make([]byte, 2*subKeySize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, nil, err
	}
	return buf[:subKeySize], buf[subKeySize:], nil
}

// paddedLength returns the bucketed plaintext length. Buckets grow by 5% so
// the padded size leaks only a coarse bound on the original size.
func paddedLength(n int) int {
	if n <= 541 {
		return 541
	}
	exp := math.Ceil(math.Log(float64(n)) / math.Log(1.05))
	return int(math.Ceil(math.Pow(1.05, exp)))
}

// pkcs7 appends PKCS#7 padding up to the AES block size.
func pkcs7(data []byte) []byte {
	padLen := aes.BlockSize - len(data)%aes.BlockSize
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

// EncryptAttachment encrypts plaintext under a fresh 64-byte master key.
// When pad is true the plaintext is first zero-filled to the bucketed length
// so the ciphertext does not reveal the exact size. PKCS#7 block padding is
// applied in either case, as CBC requires.
func EncryptAttachment(plaintext []byte, pad bool) (*EncryptedAttachment, error) {
	master := common.GenerateRandByteArray(MasterKeySize)

	aesKey, macKey, err := deriveSubKeys(master)
	if err != nil {
		return nil, fmt.Errorf("key derivation: %w", err)
	}

	data := plaintext
	if pad {
		padded := make([]byte, paddedLength(len(plaintext)))
		copy(padded, plaintext)
		data = padded
	}
	data = pkcs7(data)

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, err
	}

	iv := common.GenerateRandByteArray(ivSize)

	body := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(body, data)

	mac := hmac.New(sha256.New, macKey)
	mac.Write(iv)
	mac.Write(body)

	ciphertext := make([]byte, 0, ivSize+len(body)+macSize)
	ciphertext = append(ciphertext, iv...)
	ciphertext = append(ciphertext, body...)
	ciphertext = mac.Sum(ciphertext)

	digest := sha256.Sum256(ciphertext)

	return &EncryptedAttachment{Ciphertext: ciphertext, Key: master, Digest: digest[:]}, nil
}

// DecryptAttachment verifies the HMAC trailer and decrypts the body.
// The returned plaintext still carries any bucket padding; callers are
// expected to track the original length out of band.
func DecryptAttachment(ciphertext, masterKey []byte) ([]byte, error) {
	if len(ciphertext) < ivSize+aes.BlockSize+macSize {
		return nil, ErrShortCiphertext
	}

	aesKey, macKey, err := deriveSubKeys(masterKey)
	if err != nil {
		return nil, fmt.Errorf("key derivation: %w", err)
	}

	iv := ciphertext[:ivSize]
	body := ciphertext[ivSize : len(ciphertext)-macSize]
	theirMac := ciphertext[len(ciphertext)-macSize:]

	mac := hmac.New(sha256.New, macKey)
	mac.Write(iv)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), theirMac) {
		return nil, ErrBadMac
	}

	if len(body)%aes.BlockSize != 0 {
		return nil, ErrShortCiphertext
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, err
	}

	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)

	padLen := int(plain[len(plain)-1])
	if padLen < 1 || padLen > aes.BlockSize || padLen > len(plain) {
		return nil, ErrShortCiphertext
	}

	return plain[:len(plain)-padLen], nil
}
