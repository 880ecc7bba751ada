package attachment

import (
	"fmt"

	"github.com/ozolins/attachup/internal/common"
	"github.com/ozolins/attachup/internal/cryptox"
)

// encryptAttachment is a seam for testing Prepare without real crypto.
var encryptAttachment = cryptox.EncryptAttachment

// Prepare encrypts a source blob for upload. The plaintext is padded per the
// attachment scheme before encryption. The returned key and digest are what a
// recipient needs to verify and decrypt the blob; callers should surface them
// only after a successful upload.
func Prepare(source []byte) (*cryptox.EncryptedAttachment, error) {
	enc, err := encryptAttachment(source, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrEncryptionFailure, err)
	}
	if len(enc.Key) == 0 || len(enc.Digest) == 0 {
		return nil, fmt.Errorf("%w: cipher produced empty key or digest", common.ErrEncryptionFailure)
	}
	return enc, nil
}
