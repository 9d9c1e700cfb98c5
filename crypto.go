// Copyright 2024 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Standard security handler: password authentication, file and
// per-object key derivation, and stream/string ciphers for the RC4,
// AESV2 (AES-128), and AESV3 (AES-256) crypt methods.

package pdf

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"io"
)

// A CryptMethod identifies the cipher configuration of an encrypted
// document.
type CryptMethod int

const (
	CryptRC4V2 CryptMethod = iota // V<=2, RC4 with 40..128-bit keys
	CryptAESV2                    // V=4, AES-128-CBC
	CryptAESV3                    // V=5, AES-256-CBC
)

func (m CryptMethod) String() string {
	switch m {
	case CryptRC4V2:
		return "RC4"
	case CryptAESV2:
		return "AESV2"
	case CryptAESV3:
		return "AESV3"
	}
	return fmt.Sprintf("CryptMethod(%d)", int(m))
}

// The password padding constant, ISO 32000-1 algorithm 2 step a.
var passwordPad = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// A SecurityHandler holds the authenticated state of a document's
// standard encryption: the crypt method, the encryption dictionary
// parameters, and the derived file key.
type SecurityHandler struct {
	Method    CryptMethod
	Revision  int
	KeyLength int // bits
	P         Permissions

	O, U   []byte
	OE, UE []byte
	Perms  []byte

	id  []byte // first element of the trailer /ID
	key []byte
}

// openSecurityHandler authenticates password against the document's
// /Encrypt dictionary and returns a handler with the file key derived.
// The empty password is the common case for documents encrypted only to
// restrict permissions.
func openSecurityHandler(encrypt Value, id string, password string) (*SecurityHandler, error) {
	if encrypt.Key("Filter").Name() != "Standard" {
		return nil, fmt.Errorf("%w: encryption filter %v", ErrUnsupportedVersion, encrypt.Key("Filter"))
	}
	v := int(encrypt.Key("V").Int64())
	r := int(encrypt.Key("R").Int64())
	length := int(encrypt.Key("Length").Int64())
	if length == 0 {
		length = 40
	}

	h := &SecurityHandler{
		Revision:  r,
		KeyLength: length,
		P:         permissionsFromP(encrypt.Key("P").Int64()),
		O:         []byte(encrypt.Key("O").RawString()),
		U:         []byte(encrypt.Key("U").RawString()),
		id:        []byte(id),
	}

	switch v {
	case 1:
		h.Method = CryptRC4V2
		h.KeyLength = 40
	case 2:
		h.Method = CryptRC4V2
	case 4:
		m, err := cryptMethodV4(encrypt)
		if err != nil {
			return nil, err
		}
		h.Method = m
	case 5:
		h.Method = CryptAESV3
		h.KeyLength = 256
		h.OE = []byte(encrypt.Key("OE").RawString())
		h.UE = []byte(encrypt.Key("UE").RawString())
		h.Perms = []byte(encrypt.Key("Perms").RawString())
	default:
		return nil, fmt.Errorf("%w: encryption V=%d", ErrUnsupportedVersion, v)
	}

	if h.Method == CryptAESV3 {
		if err := h.authR6(password); err != nil {
			return nil, err
		}
		return h, nil
	}
	if err := h.authLegacy(password); err != nil {
		return nil, err
	}
	return h, nil
}

// cryptMethodV4 inspects the V4 crypt filter dictionary. Only the
// uniform StdCF configuration is supported, with AESV2 or V2 (RC4).
func cryptMethodV4(encrypt Value) (CryptMethod, error) {
	cf := encrypt.Key("CF").Key("StdCF")
	if encrypt.Key("StmF").Name() != "StdCF" || encrypt.Key("StrF").Name() != "StdCF" {
		return 0, fmt.Errorf("%w: non-uniform V4 crypt filters", ErrUnsupportedVersion)
	}
	switch cf.Key("CFM").Name() {
	case "AESV2":
		return CryptAESV2, nil
	case "V2":
		return CryptRC4V2, nil
	}
	return 0, fmt.Errorf("%w: crypt filter method %v", ErrUnsupportedVersion, cf.Key("CFM"))
}

func padPassword(pw string) []byte {
	p := []byte(pw)
	if len(p) > 32 {
		p = p[:32]
	}
	return append(append([]byte{}, p...), passwordPad[:32-len(p)]...)
}

// fileKey runs algorithm 2: the legacy MD5 key derivation shared by the
// RC4 and AESV2 methods.
func (h *SecurityHandler) fileKey(password string) []byte {
	n := h.KeyLength / 8
	if h.Revision == 2 {
		n = 5
	}
	md := md5.New()
	md.Write(padPassword(password))
	md.Write(h.O[:32])
	p := h.P.bytesLE()
	md.Write(p[:])
	md.Write(h.id)
	sum := md.Sum(nil)
	if h.Revision >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5sum(sum[:n])
		}
	}
	return sum[:n]
}

func md5sum(b []byte) []byte {
	s := md5.Sum(b)
	return s[:]
}

// authLegacy tries password first as the user password, then as the
// owner password (algorithms 6 and 7).
func (h *SecurityHandler) authLegacy(password string) error {
	if len(h.O) < 32 || len(h.U) < 32 {
		return fmt.Errorf("malformed PDF: truncated O/U in encryption dictionary")
	}
	if key := h.fileKey(password); h.checkUser(key) {
		h.key = key
		return nil
	}
	// Owner path: recover the padded user password from /O.
	md := md5.New()
	md.Write(padPassword(password))
	sum := md.Sum(nil)
	n := h.KeyLength / 8
	if h.Revision == 2 {
		n = 5
	}
	if h.Revision >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5sum(sum[:n])
		}
	}
	okey := sum[:n]
	user := append([]byte{}, h.O[:32]...)
	if h.Revision == 2 {
		rc4Apply(okey, user)
	} else {
		for i := 19; i >= 0; i-- {
			rc4Apply(xorKey(okey, byte(i)), user)
		}
	}
	if key := h.fileKeyPadded(user); h.checkUser(key) {
		h.key = key
		return nil
	}
	return ErrInvalidPassword
}

// fileKeyPadded is fileKey for an already-padded 32-byte password.
func (h *SecurityHandler) fileKeyPadded(padded []byte) []byte {
	n := h.KeyLength / 8
	if h.Revision == 2 {
		n = 5
	}
	md := md5.New()
	md.Write(padded)
	md.Write(h.O[:32])
	p := h.P.bytesLE()
	md.Write(p[:])
	md.Write(h.id)
	sum := md.Sum(nil)
	if h.Revision >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5sum(sum[:n])
		}
	}
	return sum[:n]
}

// checkUser verifies a candidate file key against /U (algorithms 4/5).
func (h *SecurityHandler) checkUser(key []byte) bool {
	if len(h.U) < 32 || len(h.O) < 32 {
		return false
	}
	if h.Revision == 2 {
		u := append([]byte{}, passwordPad...)
		rc4Apply(key, u)
		return bytes.Equal(u, h.U[:32])
	}
	md := md5.New()
	md.Write(passwordPad)
	md.Write(h.id)
	u := md.Sum(nil)
	rc4Apply(key, u)
	for i := 1; i <= 19; i++ {
		rc4Apply(xorKey(key, byte(i)), u)
	}
	return bytes.Equal(u[:16], h.U[:16])
}

func xorKey(key []byte, x byte) []byte {
	out := make([]byte, len(key))
	for i, b := range key {
		out[i] = b ^ x
	}
	return out
}

func rc4Apply(key, data []byte) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return
	}
	c.XORKeyStream(data, data)
}

// authR6 authenticates against the AES-256 scheme (ISO 32000-2,
// algorithms 2.A/2.B): validate the password hash, unwrap the file key
// from UE or OE, then check the /Perms blob decrypts sanely.
func (h *SecurityHandler) authR6(password string) error {
	if len(h.U) < 48 || len(h.O) < 48 || len(h.UE) < 32 || len(h.OE) < 32 {
		return fmt.Errorf("malformed PDF: truncated U/O/UE/OE in AES-256 encryption")
	}
	pw := []byte(password)
	if len(pw) > 127 {
		pw = pw[:127]
	}
	u48, o48 := h.U[:48], h.O[:48]

	if test := hashR6(pw, u48[32:40], nil); bytes.Equal(test, u48[:32]) {
		ikey := hashR6(pw, u48[40:48], nil)
		key, err := aesCBCNoPad(ikey, h.UE[:32], false)
		if err != nil {
			return err
		}
		h.key = key
	} else if test := hashR6(pw, o48[32:40], u48); bytes.Equal(test, o48[:32]) {
		ikey := hashR6(pw, o48[40:48], u48)
		key, err := aesCBCNoPad(ikey, h.OE[:32], false)
		if err != nil {
			return err
		}
		h.key = key
	} else {
		return ErrInvalidPassword
	}

	if len(h.Perms) >= 16 {
		dec, err := aesECB(h.key, h.Perms[:16], false)
		if err != nil || string(dec[9:12]) != "adb" {
			return fmt.Errorf("malformed PDF: invalid Perms in AES-256 encryption")
		}
	}
	return nil
}

// hashR6 is the iterated hash of ISO 32000-2 algorithm 2.B. udata is
// the 48-byte /U prefix for owner-password hashing, nil otherwise.
func hashR6(password, salt, udata []byte) []byte {
	s := sha256.New()
	s.Write(password)
	s.Write(salt)
	s.Write(udata)
	k := s.Sum(nil)

	for i := 0; ; i++ {
		k1 := make([]byte, 0, 64*(len(password)+len(k)+len(udata)))
		for j := 0; j < 64; j++ {
			k1 = append(k1, password...)
			k1 = append(k1, k...)
			k1 = append(k1, udata...)
		}
		block, _ := aes.NewCipher(k[:16])
		e := make([]byte, len(k1))
		cipher.NewCBCEncrypter(block, k[16:32]).CryptBlocks(e, k1)

		var sum int
		for _, b := range e[:16] {
			sum += int(b)
		}
		switch sum % 3 {
		case 0:
			t := sha256.Sum256(e)
			k = t[:]
		case 1:
			t := sha512.Sum384(e)
			k = t[:]
		case 2:
			t := sha512.Sum512(e)
			k = t[:]
		}
		if i >= 63 && int(e[len(e)-1]) <= i-31 {
			break
		}
	}
	return k[:32]
}

// objectKey derives the per-object cipher key. AES-256 uses the file
// key unchanged; the legacy methods hash in the object identity, with
// the AES salt for AESV2.
func (h *SecurityHandler) objectKey(ptr objptr) []byte {
	if h.Method == CryptAESV3 {
		return h.key
	}
	md := md5.New()
	md.Write(h.key)
	md.Write([]byte{byte(ptr.id), byte(ptr.id >> 8), byte(ptr.id >> 16), byte(ptr.gen), byte(ptr.gen >> 8)})
	if h.Method == CryptAESV2 {
		md.Write([]byte{0x73, 0x41, 0x6c, 0x54}) // "sAlT"
	}
	sum := md.Sum(nil)
	n := len(h.key) + 5
	if n > 16 {
		n = 16
	}
	return sum[:n]
}

// DecryptStream decrypts the stream data of the object identified by id.
func (h *SecurityHandler) DecryptStream(id ObjectID, data []byte) ([]byte, error) {
	out, err := h.crypt(id.ptr(), data, false)
	if err != nil {
		return nil, &EncryptionError{Op: "decrypt", ID: id, Err: err}
	}
	return out, nil
}

// EncryptStream encrypts stream data for the object identified by id.
func (h *SecurityHandler) EncryptStream(id ObjectID, data []byte) ([]byte, error) {
	out, err := h.crypt(id.ptr(), data, true)
	if err != nil {
		return nil, &EncryptionError{Op: "encrypt", ID: id, Err: err}
	}
	return out, nil
}

// DecryptString decrypts a string value belonging to the object
// identified by id. Strings and streams share the per-object key.
func (h *SecurityHandler) DecryptString(id ObjectID, s string) (string, error) {
	out, err := h.crypt(id.ptr(), []byte(s), false)
	if err != nil {
		return "", &EncryptionError{Op: "decrypt", ID: id, Err: err}
	}
	return string(out), nil
}

// EncryptString encrypts a string value for the object identified by id.
func (h *SecurityHandler) EncryptString(id ObjectID, s string) (string, error) {
	out, err := h.crypt(id.ptr(), []byte(s), true)
	if err != nil {
		return "", &EncryptionError{Op: "encrypt", ID: id, Err: err}
	}
	return string(out), nil
}

// decryptStringTolerant is the tokenizer's hook: strings that fail to
// decrypt are passed through undamaged, so one bad string does not take
// down the surrounding object.
func (h *SecurityHandler) decryptStringTolerant(ptr objptr, s string) string {
	out, err := h.crypt(ptr, []byte(s), false)
	if err != nil {
		return s
	}
	return string(out)
}

func (h *SecurityHandler) crypt(ptr objptr, data []byte, encrypt bool) ([]byte, error) {
	key := h.objectKey(ptr)
	if h.Method == CryptRC4V2 {
		out := append([]byte{}, data...)
		rc4Apply(key, out)
		return out, nil
	}
	if encrypt {
		return aesCBCEncrypt(key, data)
	}
	return aesCBCDecrypt(key, data)
}

// aesCBCEncrypt encrypts with a random IV prepended and PKCS#7 padding,
// the AES stream layout of ISO 32000-1 7.6.2.
func aesCBCEncrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	pad := aes.BlockSize - len(data)%aes.BlockSize
	out := make([]byte, aes.BlockSize+len(data)+pad)
	iv := out[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, err
	}
	body := out[aes.BlockSize:]
	copy(body, data)
	for i := len(data); i < len(body); i++ {
		body[i] = byte(pad)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(body, body)
	return out, nil
}

func aesCBCDecrypt(key, data []byte) ([]byte, error) {
	if len(data) < aes.BlockSize || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("AES data length %d not a block multiple", len(data))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data)-aes.BlockSize)
	cipher.NewCBCDecrypter(block, data[:aes.BlockSize]).CryptBlocks(out, data[aes.BlockSize:])
	if len(out) == 0 {
		return out, nil
	}
	pad := int(out[len(out)-1])
	if pad < 1 || pad > aes.BlockSize || pad > len(out) {
		// Bad padding; some producers omit it. Return as is.
		return out, nil
	}
	return out[:len(out)-pad], nil
}

// aesCBCNoPad runs AES-CBC with a zero IV and no padding, the key
// wrapping used by UE and OE.
func aesCBCNoPad(key, data []byte, encrypt bool) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("AES data length %d not a block multiple", len(data))
	}
	iv := make([]byte, aes.BlockSize)
	out := make([]byte, len(data))
	if encrypt {
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	} else {
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	}
	return out, nil
}

// aesECB applies AES block by block, used only for the 16-byte /Perms.
func aesECB(key, data []byte, encrypt bool) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("AES data length %d not a block multiple", len(data))
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += aes.BlockSize {
		if encrypt {
			block.Encrypt(out[i:], data[i:])
		} else {
			block.Decrypt(out[i:], data[i:])
		}
	}
	return out, nil
}

// NewSecurityHandler builds a handler for writing an encrypted
// document. ownerPassword may be empty, in which case it falls back to
// the user password. id is the document ID salt (required for the
// legacy methods, ignored by AESV3 key derivation).
func NewSecurityHandler(method CryptMethod, userPassword, ownerPassword string, perms Permissions, id []byte) (*SecurityHandler, error) {
	if ownerPassword == "" {
		ownerPassword = userPassword
	}
	h := &SecurityHandler{
		Method: method,
		P:      perms.normalize(),
		id:     append([]byte{}, id...),
	}
	switch method {
	case CryptRC4V2:
		h.Revision = 3
		h.KeyLength = 128
	case CryptAESV2:
		h.Revision = 4
		h.KeyLength = 128
	case CryptAESV3:
		h.Revision = 6
		h.KeyLength = 256
		return h, h.generateR6(userPassword, ownerPassword)
	default:
		return nil, fmt.Errorf("%w: crypt method %v", ErrUnsupportedVersion, method)
	}

	// Algorithm 3: the /O entry.
	n := h.KeyLength / 8
	sum := md5sum(padPassword(ownerPassword))
	for i := 0; i < 50; i++ {
		sum = md5sum(sum[:n])
	}
	okey := sum[:n]
	o := padPassword(userPassword)
	for i := 0; i <= 19; i++ {
		rc4Apply(xorKey(okey, byte(i)), o)
	}
	h.O = o

	h.key = h.fileKey(userPassword)

	// Algorithm 5: the /U entry, padded to 32 bytes.
	md := md5.New()
	md.Write(passwordPad)
	md.Write(h.id)
	u := md.Sum(nil)
	rc4Apply(h.key, u)
	for i := 1; i <= 19; i++ {
		rc4Apply(xorKey(h.key, byte(i)), u)
	}
	h.U = append(u, make([]byte, 16)...)
	return h, nil
}

// generateR6 produces the AES-256 entries: a random file key wrapped
// for both passwords, plus the /Perms blob.
func (h *SecurityHandler) generateR6(userPassword, ownerPassword string) error {
	upw, opw := []byte(userPassword), []byte(ownerPassword)
	if len(upw) > 127 {
		upw = upw[:127]
	}
	if len(opw) > 127 {
		opw = opw[:127]
	}

	h.key = make([]byte, 32)
	salts := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, h.key); err != nil {
		return err
	}
	if _, err := io.ReadFull(rand.Reader, salts); err != nil {
		return err
	}
	uvs, uks := salts[:8], salts[8:16]

	h.U = append(append(hashR6(upw, uvs, nil), uvs...), uks...)
	ue, err := aesCBCNoPad(hashR6(upw, uks, nil), h.key, true)
	if err != nil {
		return err
	}
	h.UE = ue

	osalts := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, osalts); err != nil {
		return err
	}
	ovs, oks := osalts[:8], osalts[8:16]
	h.O = append(append(hashR6(opw, ovs, h.U[:48]), ovs...), oks...)
	oe, err := aesCBCNoPad(hashR6(opw, oks, h.U[:48]), h.key, true)
	if err != nil {
		return err
	}
	h.OE = oe

	var blob [16]byte
	p := h.P.bytesLE()
	copy(blob[0:4], p[:])
	blob[4], blob[5], blob[6], blob[7] = 0xff, 0xff, 0xff, 0xff
	blob[8] = 'T' // metadata encrypted
	copy(blob[9:12], "adb")
	if _, err := io.ReadFull(rand.Reader, blob[12:16]); err != nil {
		return err
	}
	perms, err := aesECB(h.key, blob[:], true)
	if err != nil {
		return err
	}
	h.Perms = perms
	return nil
}

// EncryptDict returns the /Encrypt dictionary describing this handler,
// for the writer to place in the trailer.
func (h *SecurityHandler) EncryptDict() Dict {
	d := Dict{
		"Filter": Name("Standard"),
		"R":      int64(h.Revision),
		"O":      string(h.O),
		"U":      string(h.U),
		"P":      h.P.pValue(),
	}
	switch h.Method {
	case CryptRC4V2:
		d["V"] = int64(2)
		d["Length"] = int64(h.KeyLength)
	case CryptAESV2, CryptAESV3:
		cfm, v, length := Name("AESV2"), int64(4), int64(16)
		if h.Method == CryptAESV3 {
			cfm, v, length = Name("AESV3"), int64(5), int64(32)
			d["OE"] = string(h.OE)
			d["UE"] = string(h.UE)
			d["Perms"] = string(h.Perms)
			d["Length"] = int64(256)
		} else {
			d["Length"] = int64(h.KeyLength)
		}
		d["V"] = v
		d["CF"] = Dict{
			"StdCF": Dict{
				"CFM":       cfm,
				"AuthEvent": Name("DocOpen"),
				"Length":    length,
			},
		}
		d["StmF"] = Name("StdCF")
		d["StrF"] = Name("StdCF")
	}
	return d
}
