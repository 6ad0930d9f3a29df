package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// EnvelopeVersion is the current sealed envelope format version.
const EnvelopeVersion = 1

// Envelope is a sealed risk score: the external ciphertext form submitted
// to the ledger. All byte fields are base64url-encoded without padding.
type Envelope struct {
	// V is the envelope format version number.
	V int `json:"v"`
	// Algs is the canonical algorithm suite string.
	Algs string `json:"algs"`
	// CtKem is the ML-KEM-768 ciphertext.
	CtKem string `json:"ct_kem"`
	// Nonce is the AES-GCM nonce.
	Nonce string `json:"nonce"`
	// AAD is the additional authenticated data binding the encryption
	// context and recipient identity.
	AAD string `json:"aad"`
	// Ciphertext is the AES-GCM encrypted fixed-width plaintext.
	Ciphertext string `json:"ciphertext"`
}

// Seal encrypts a fixed-width plaintext to the given ML-KEM-768 public key.
//
// The sealing process:
//  1. ML-KEM-768 encapsulation to produce a shared secret
//  2. HKDF-SHA-512 key derivation using the shared secret, AAD, and KEM ciphertext
//  3. AES-256-GCM encryption of the plaintext with the AAD
func Seal(publicKey, aad, plaintext []byte) (*Envelope, error) {
	if len(plaintext) != PlaintextSize {
		return nil, fmt.Errorf("%w: plaintext size %d, want %d", ErrInvalidEnvelope, len(plaintext), PlaintextSize)
	}

	ctKem, sharedSecret, err := Encapsulate(publicKey)
	if err != nil {
		return nil, fmt.Errorf("encapsulate: %w", err)
	}

	key, err := deriveKey(sharedSecret, aad, ctKem)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	nonce := make([]byte, AESNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext, err := sealAESGCM(key, nonce, aad, plaintext)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}

	return &Envelope{
		V:          EnvelopeVersion,
		Algs:       AlgsCiphersuite,
		CtKem:      ToBase64URL(ctKem),
		Nonce:      ToBase64URL(nonce),
		AAD:        ToBase64URL(aad),
		Ciphertext: ToBase64URL(ciphertext),
	}, nil
}

// Open decrypts a sealed envelope using the recipient keypair.
//
// Security: Open does NOT verify attestation signatures. Callers MUST check
// the validity transcript signature before decryption.
func Open(env *Envelope, keypair *Keypair) ([]byte, error) {
	ctKem, nonce, aad, ciphertext, err := env.decode()
	if err != nil {
		return nil, err
	}

	sharedSecret, err := keypair.Decapsulate(ctKem)
	if err != nil {
		return nil, fmt.Errorf("decapsulate: %w", err)
	}

	key, err := deriveKey(sharedSecret, aad, ctKem)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	plaintext, err := openAESGCM(key, nonce, aad, ciphertext)
	if err != nil {
		return nil, err
	}

	return plaintext, nil
}

// decode decodes and validates all base64url fields of the envelope.
func (e *Envelope) decode() (ctKem, nonce, aad, ciphertext []byte, err error) {
	if e.V != EnvelopeVersion {
		return nil, nil, nil, nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidEnvelope, e.V)
	}
	if e.Algs != AlgsCiphersuite {
		return nil, nil, nil, nil, fmt.Errorf("%w: unsupported suite %q", ErrInvalidEnvelope, e.Algs)
	}

	if ctKem, err = FromBase64URL(e.CtKem); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("%w: decode ct_kem: %v", ErrInvalidEnvelope, err)
	}
	if nonce, err = FromBase64URL(e.Nonce); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("%w: decode nonce: %v", ErrInvalidEnvelope, err)
	}
	if aad, err = FromBase64URL(e.AAD); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("%w: decode aad: %v", ErrInvalidEnvelope, err)
	}
	if ciphertext, err = FromBase64URL(e.Ciphertext); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("%w: decode ciphertext: %v", ErrInvalidEnvelope, err)
	}

	return ctKem, nonce, aad, ciphertext, nil
}

// Marshal serializes the envelope to its canonical JSON form.
func (e *Envelope) Marshal() []byte {
	// Marshal cannot fail: all fields are strings and ints.
	data, _ := json.Marshal(e)
	return data
}

// ParseEnvelope deserializes an envelope from its canonical JSON form and
// validates the field encodings.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if _, _, _, _, err := env.decode(); err != nil {
		return nil, err
	}
	return &env, nil
}

// Digest returns the SHA-256 digest of the canonical envelope serialization,
// base64url-encoded. This is the ciphertext handle the ledger stores.
func (e *Envelope) Digest() string {
	sum := sha256.Sum256(e.Marshal())
	return ToBase64URL(sum[:])
}

// ValidityTranscript builds the byte transcript signed to attest that an
// envelope was correctly formed for the current context.
func (e *Envelope) ValidityTranscript() ([]byte, error) {
	ctKem, nonce, aad, ciphertext, err := e.decode()
	if err != nil {
		return nil, err
	}

	// version (1 byte)
	transcript := []byte{byte(e.V)}

	// algs ciphersuite string
	transcript = append(transcript, []byte(e.Algs)...)

	// context string
	transcript = append(transcript, []byte(HKDFContext)...)

	// raw bytes
	transcript = append(transcript, ctKem...)
	transcript = append(transcript, nonce...)
	transcript = append(transcript, aad...)
	transcript = append(transcript, ciphertext...)

	return transcript, nil
}

// RevealTranscript builds the byte transcript signed to attest a public
// decryption: it binds the claimed plaintext to the specific ciphertext
// handles it was decrypted from. Handles are length-prefixed so the
// transcript is unambiguous.
func RevealTranscript(handles []string, claimed []byte) []byte {
	transcript := []byte(RevealContext)

	count := make([]byte, 4)
	binary.BigEndian.PutUint32(count, uint32(len(handles)))
	transcript = append(transcript, count...)

	for _, h := range handles {
		hlen := make([]byte, 4)
		binary.BigEndian.PutUint32(hlen, uint32(len(h)))
		transcript = append(transcript, hlen...)
		transcript = append(transcript, []byte(h)...)
	}

	clen := make([]byte, 4)
	binary.BigEndian.PutUint32(clen, uint32(len(claimed)))
	transcript = append(transcript, clen...)
	transcript = append(transcript, claimed...)

	return transcript
}

// deriveKey performs HKDF-SHA-512 key derivation for the envelope scheme.
//
// The key derivation uses:
//   - IKM (input key material): the KEM shared secret
//   - Salt: SHA-256 hash of the KEM ciphertext
//   - Info: context string || AAD length (4 bytes BE) || AAD
func deriveKey(sharedSecret, aad, ctKem []byte) ([]byte, error) {
	saltHash := sha256.Sum256(ctKem)
	salt := saltHash[:]

	contextBytes := []byte(HKDFContext)
	aadLength := make([]byte, 4)
	binary.BigEndian.PutUint32(aadLength, uint32(len(aad)))

	info := make([]byte, 0, len(contextBytes)+4+len(aad))
	info = append(info, contextBytes...)
	info = append(info, aadLength...)
	info = append(info, aad...)

	reader := hkdf.New(sha512.New, sharedSecret, salt, info)
	key := make([]byte, AESKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}

	return key, nil
}

// EncodeScore encodes a score as the fixed-width big-endian plaintext.
func EncodeScore(value uint64) []byte {
	buf := make([]byte, PlaintextSize)
	binary.BigEndian.PutUint64(buf, value)
	return buf
}

// DecodeScore decodes a fixed-width big-endian plaintext back to a score.
func DecodeScore(plaintext []byte) (uint64, error) {
	if len(plaintext) != PlaintextSize {
		return 0, fmt.Errorf("%w: plaintext size %d, want %d", ErrInvalidEnvelope, len(plaintext), PlaintextSize)
	}
	return binary.BigEndian.Uint64(plaintext), nil
}
