// Package crypto provides the compression and encryption capabilities the
// mapper composes around the transcoder. Both capabilities are byte→byte
// transforms with inverses; algorithm choice is deliberately pluggable —
// the core only depends on these two small interfaces.
package crypto

// Compressor compresses and decompresses opaque byte payloads.
type Compressor interface {
	Topic() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// Cipher encrypts and decrypts opaque byte payloads. Decrypt failures
// (authentication mismatch, wrong key) must surface as *CipherError; a
// Cipher must never silently return partial or wrong plaintext.
type Cipher interface {
	Topic() string
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// CipherError wraps a decryption failure: wrong key, tampered ciphertext,
// or any other authentication mismatch. It is always fatal — callers must
// not treat it as a retryable condition.
type CipherError struct {
	Topic string
	Err   error
}

func (e *CipherError) Error() string {
	return "crypto: cipher " + e.Topic + ": " + e.Err.Error()
}

func (e *CipherError) Unwrap() error { return e.Err }
