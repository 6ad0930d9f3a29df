package crypto

import (
	"fmt"

	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

// SigningKey represents an ML-DSA-65 attestation keypair.
type SigningKey struct {
	// PublicKey is the raw ML-DSA-65 public key bytes.
	PublicKey []byte
	// SecretKey is the raw ML-DSA-65 secret key bytes.
	SecretKey []byte
}

// GenerateSigningKey creates a new ML-DSA-65 attestation keypair.
func GenerateSigningKey() (*SigningKey, error) {
	pub, priv, err := mldsa65.GenerateKey(randReader)
	if err != nil {
		return nil, err
	}

	// MarshalBinary never fails for valid keys from GenerateKey
	pubBytes, _ := pub.MarshalBinary()
	privBytes, _ := priv.MarshalBinary()

	return &SigningKey{
		PublicKey: pubBytes,
		SecretKey: privBytes,
	}, nil
}

// SigningKeyFromSecretKey reconstructs a signing key from the secret key bytes.
func SigningKeyFromSecretKey(secretKey []byte) (*SigningKey, error) {
	if len(secretKey) != MLDSASecretKeySize {
		return nil, ErrInvalidSecretKeySize
	}

	var priv mldsa65.PrivateKey
	if err := priv.UnmarshalBinary(secretKey); err != nil {
		return nil, fmt.Errorf("unmarshal secret key: %w", err)
	}

	pubBytes, _ := priv.Public().(*mldsa65.PublicKey).MarshalBinary()

	return &SigningKey{
		PublicKey: pubBytes,
		SecretKey: secretKey,
	}, nil
}

// Sign produces an ML-DSA-65 signature over the message.
func (k *SigningKey) Sign(message []byte) ([]byte, error) {
	var priv mldsa65.PrivateKey
	if err := priv.UnmarshalBinary(k.SecretKey); err != nil {
		return nil, fmt.Errorf("unmarshal secret key: %w", err)
	}

	sig := make([]byte, MLDSASignatureSize)
	if err := mldsa65.SignTo(&priv, message, nil, false, sig); err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	return sig, nil
}

// Verify verifies an ML-DSA-65 signature over the message.
func Verify(publicKey, message, signature []byte) error {
	if len(publicKey) != MLDSAPublicKeySize {
		return ErrInvalidPublicKeySize
	}

	var pub mldsa65.PublicKey
	if err := pub.UnmarshalBinary(publicKey); err != nil {
		return fmt.Errorf("unmarshal public key: %w", err)
	}

	if !mldsa65.Verify(&pub, message, nil, signature) {
		return ErrSignatureVerificationFailed
	}

	return nil
}
