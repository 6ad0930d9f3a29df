package crypto

import (
	"io"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
)

// randReader is the random source used for key generation.
// It defaults to nil (which uses crypto/rand) but can be overridden for testing.
var randReader io.Reader

// Keypair represents an ML-KEM-768 keypair for key encapsulation.
type Keypair struct {
	// PublicKey is the raw ML-KEM-768 public key bytes.
	PublicKey []byte
	// SecretKey is the raw ML-KEM-768 secret key bytes.
	SecretKey []byte
}

// GenerateKeypair creates a new ML-KEM-768 keypair.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := mlkem768.GenerateKeyPair(randReader)
	if err != nil {
		return nil, err
	}

	// MarshalBinary never fails for valid keys from GenerateKeyPair
	pubBytes, _ := pub.MarshalBinary()
	privBytes, _ := priv.MarshalBinary()

	return &Keypair{
		PublicKey: pubBytes,
		SecretKey: privBytes,
	}, nil
}

// KeypairFromSecretKey reconstructs a keypair from the secret key.
// The public key is embedded in the secret key at offset 1152.
func KeypairFromSecretKey(secretKey []byte) (*Keypair, error) {
	if len(secretKey) != MLKEMSecretKeySize {
		return nil, ErrInvalidSecretKeySize
	}

	publicKey := make([]byte, MLKEMPublicKeySize)
	copy(publicKey, secretKey[PublicKeyOffset:PublicKeyOffset+MLKEMPublicKeySize])

	return &Keypair{
		PublicKey: publicKey,
		SecretKey: secretKey,
	}, nil
}

// Encapsulate generates a shared secret for the given ML-KEM-768 public key.
// It returns the KEM ciphertext and the shared secret.
func Encapsulate(publicKey []byte) (ctKem, sharedSecret []byte, err error) {
	if len(publicKey) != MLKEMPublicKeySize {
		return nil, nil, ErrInvalidPublicKeySize
	}

	var pub mlkem768.PublicKey
	if err := pub.Unpack(publicKey); err != nil {
		return nil, nil, err
	}

	ctKem = make([]byte, MLKEMCiphertextSize)
	sharedSecret = make([]byte, MLKEMSharedKeySize)
	pub.EncapsulateTo(ctKem, sharedSecret, nil)

	return ctKem, sharedSecret, nil
}

// Decapsulate decapsulates a shared secret from the encapsulated key.
func (k *Keypair) Decapsulate(encapsulatedKey []byte) ([]byte, error) {
	if len(encapsulatedKey) != MLKEMCiphertextSize {
		return nil, ErrInvalidCiphertextSize
	}

	var privKey mlkem768.PrivateKey
	if err := privKey.Unpack(k.SecretKey); err != nil {
		return nil, err
	}

	sharedSecret := make([]byte, MLKEMSharedKeySize)
	privKey.DecapsulateTo(sharedSecret, encapsulatedKey)

	return sharedSecret, nil
}
