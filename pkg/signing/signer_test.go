package signing

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provmark/provmark/internal/jsonenc"
	"github.com/provmark/provmark/pkg/keys"
)

func generate(t *testing.T, alg keys.Algorithm) *keys.KeyPair {
	t.Helper()
	kp, err := keys.NewManager().Generate(alg, 2048)
	require.NoError(t, err)
	return kp
}

func TestSignVerify_HelloWorld(t *testing.T) {
	for _, alg := range []keys.Algorithm{keys.RSA, keys.ECDSA} {
		t.Run(alg.String(), func(t *testing.T) {
			kp := generate(t, alg)
			md := decodeMetadata(t, `{"a":1,"b":2}`)

			sig, err := Sign(kp.PrivateKey, alg, []byte("hello world"), md)
			require.NoError(t, err)

			assert.True(t, Verify(kp.PublicKey, alg, []byte("hello world"), sig, md))

			reordered := decodeMetadata(t, `{"b":2,"a":1}`)
			assert.True(t, Verify(kp.PublicKey, alg, []byte("hello world"), sig, reordered))

			assert.False(t, Verify(kp.PublicKey, alg, []byte("hello World"), sig, md))
			assert.False(t, Verify(kp.PublicKey, alg, []byte("hello world"), sig, nil))
		})
	}
}

func TestSignVerify_Tampering(t *testing.T) {
	for _, alg := range []keys.Algorithm{keys.RSA, keys.ECDSA} {
		t.Run(alg.String(), func(t *testing.T) {
			kp := generate(t, alg)
			data := []byte("\x89PNG\r\n\x1a\n synthetic media bytes")
			md := Metadata{"software": "provmark", "user_id": "alice", "frame": 12}

			sig, err := Sign(kp.PrivateKey, alg, data, md)
			require.NoError(t, err)
			require.True(t, Verify(kp.PublicKey, alg, data, sig, md))

			for i := range data {
				tampered := append([]byte(nil), data...)
				tampered[i] ^= 0x01
				assert.False(t, Verify(kp.PublicKey, alg, tampered, sig, md), "byte %d", i)
			}

			for k, v := range map[string]any{"software": "provmark2", "user_id": "mallory", "frame": 13} {
				changed := Metadata{}
				for mk, mv := range md {
					changed[mk] = mv
				}
				changed[k] = v
				assert.False(t, Verify(kp.PublicKey, alg, data, sig, changed), "metadata %s", k)
			}

			extra := Metadata{"extra": true}
			for mk, mv := range md {
				extra[mk] = mv
			}
			assert.False(t, Verify(kp.PublicKey, alg, data, sig, extra))

			for _, bad := range []Metadata{
				{"software": "provmark", "user_id": "alice\xff", "frame": 12},
				{"software": "provmark", "user_id": "alice\xfe", "frame": 12},
				{"software": "provmark", "user_id": "alice", "frame": 12, "\xffkey": 1},
				{"software": "provmark", "user_id": "alice", "frame": 12, "tags": []string{"ok", "\xff"}},
			} {
				assert.False(t, Verify(kp.PublicKey, alg, data, sig, bad), "metadata %v", bad)
			}
		})
	}
}

func TestSign_RejectsInvalidUTF8Metadata(t *testing.T) {
	kp := generate(t, keys.ECDSA)

	_, err := Sign(kp.PrivateKey, keys.ECDSA, []byte("media"), Metadata{"user_id": "alice\xff"})
	assert.True(t, errors.Is(err, jsonenc.ErrInvalidUTF8))

	_, err = Sign(kp.PrivateKey, keys.ECDSA, []byte("media"), Metadata{"user_id": "zo\u00eb"})
	assert.NoError(t, err)

	err = Check(kp.PublicKey, keys.ECDSA, []byte("media"), "c2ln", Metadata{"user_id": "alice\xfe"})
	assert.True(t, errors.Is(err, jsonenc.ErrInvalidUTF8))
}

func TestVerify_WrongKey(t *testing.T) {
	data := []byte("media")
	md := Metadata{"a": 1}

	for i := 0; i < 50; i++ {
		signer, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)
		other, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)

		sig, err := Sign(signer, keys.ECDSA, data, md)
		require.NoError(t, err)
		assert.False(t, Verify(&other.PublicKey, keys.ECDSA, data, sig, md))
	}

	if testing.Short() {
		t.Skip("skipping RSA key pairs in short mode")
	}
	for i := 0; i < 3; i++ {
		signer := generate(t, keys.RSA)
		other := generate(t, keys.RSA)

		sig, err := Sign(signer.PrivateKey, keys.RSA, data, md)
		require.NoError(t, err)
		assert.False(t, Verify(other.PublicKey, keys.RSA, data, sig, md))
	}
}

func TestCheck_Reasons(t *testing.T) {
	rsaKP := generate(t, keys.RSA)
	ecKP := generate(t, keys.ECDSA)
	data := []byte("media")

	sig, err := Sign(rsaKP.PrivateKey, keys.RSA, data, nil)
	require.NoError(t, err)
	p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)

	tests := []struct {
		name string
		pub  any
		alg  keys.Algorithm
		sig  string
		want error
	}{
		{name: "valid", pub: rsaKP.PublicKey, alg: keys.RSA, sig: sig},
		{name: "not base64", pub: rsaKP.PublicKey, alg: keys.RSA, sig: "%%%not-base64%%%", want: ErrMalformedSignature},
		{name: "empty", pub: rsaKP.PublicKey, alg: keys.RSA, sig: "", want: ErrMalformedSignature},
		{name: "garbage bytes", pub: rsaKP.PublicKey, alg: keys.RSA, sig: base64.StdEncoding.EncodeToString([]byte("garbage")), want: ErrSignatureMismatch},
		{name: "wrong key type", pub: ecKP.PublicKey, alg: keys.RSA, sig: sig, want: ErrKeyMismatch},
		{name: "algorithm disagrees with signature", pub: ecKP.PublicKey, alg: keys.ECDSA, sig: sig, want: ErrSignatureMismatch},
		{name: "unknown algorithm", pub: rsaKP.PublicKey, alg: keys.Algorithm("DSA"), sig: sig, want: keys.ErrUnsupportedAlgorithm},
		{name: "nil key", pub: nil, alg: keys.ECDSA, sig: sig, want: ErrKeyMismatch},
		{name: "typed nil rsa key", pub: (*rsa.PublicKey)(nil), alg: keys.RSA, sig: sig, want: ErrKeyMismatch},
		{name: "typed nil ecdsa key", pub: (*ecdsa.PublicKey)(nil), alg: keys.ECDSA, sig: sig, want: ErrKeyMismatch},
		{name: "curve other than P-256", pub: &p384.PublicKey, alg: keys.ECDSA, sig: sig, want: keys.ErrUnsupportedAlgorithm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.pub, tt.alg, data, tt.sig, nil)
			if tt.want == nil {
				assert.NoError(t, err)
				assert.True(t, Verify(tt.pub, tt.alg, data, tt.sig, nil))
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.False(t, Verify(tt.pub, tt.alg, data, tt.sig, nil))
		})
	}
}

func TestSign_Errors(t *testing.T) {
	ecKP := generate(t, keys.ECDSA)

	_, err := Sign(nil, keys.ECDSA, []byte("x"), nil)
	assert.Error(t, err)

	_, err = Sign(ecKP.PrivateKey, keys.RSA, []byte("x"), nil)
	assert.True(t, errors.Is(err, ErrKeyMismatch))

	_, err = Sign(ecKP.PrivateKey, keys.ECDSA, []byte("x"), Metadata{"bad": make(chan int)})
	assert.Error(t, err)

	p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	_, err = Sign(p384, keys.ECDSA, []byte("x"), nil)
	assert.True(t, errors.Is(err, keys.ErrUnsupportedAlgorithm))
}

func TestSign_RSASignatureIsProbabilistic(t *testing.T) {
	kp := generate(t, keys.RSA)

	a, err := Sign(kp.PrivateKey, keys.RSA, []byte("same"), nil)
	require.NoError(t, err)
	b, err := Sign(kp.PrivateKey, keys.RSA, []byte("same"), nil)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, Verify(kp.PublicKey, keys.RSA, []byte("same"), a, nil))
	assert.True(t, Verify(kp.PublicKey, keys.RSA, []byte("same"), b, nil))
}
