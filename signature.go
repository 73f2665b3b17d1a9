package xil

import (
	"errors"

	"go.mozilla.org/pkcs7"
)

// ErrSignatureInvalid is returned when an image's trailing §3.7 signature
// block fails to verify against the image bytes it is supposed to cover.
var ErrSignatureInvalid = errors.New("xil: image signature does not verify")

// Signed reports whether the image carries a trailing signature block.
func (img *Image) Signed() bool { return len(img.Signature) > 0 }

// VerifyDetachedSignature checks a §3.7 PKCS#7 SignedData block against
// the bytes it was computed over (Image.EncodeUnsigned's output, as
// loader.Load passes it). The SignedData carries no content of its own — the same
// detached-signature shape the corpus's Authenticode handling parses for
// PE certificate directories.
func VerifyDetachedSignature(coveredBytes, sig []byte) error {
	p7, err := pkcs7.Parse(sig)
	if err != nil {
		return err
	}
	p7.Content = coveredBytes
	if err := p7.Verify(); err != nil {
		return ErrSignatureInvalid
	}
	return nil
}

// EncodeUnsigned returns the wire bytes an image's signature would be
// computed over: the image encoded with an empty signature block.
func (img *Image) EncodeUnsigned() []byte {
	sig := img.Signature
	img.Signature = nil
	b := img.Encode()
	img.Signature = sig
	return b
}
