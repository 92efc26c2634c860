package util

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// A HashWriter wraps an io.Writer and computes the MD5 and SHA256 sums of
// everything written through it. Pack manifests store sums as lowercase
// hex strings, so that is the form the accessors return.
type HashWriter struct {
	io.Writer // the underlying multiwriter
	md5       hash.Hash
	sha256    hash.Hash
}

// NewHashWriter returns a HashWriter wrapping w.
func NewHashWriter(w io.Writer) *HashWriter {
	hw := &HashWriter{
		md5:    md5.New(),
		sha256: sha256.New(),
	}
	hw.Writer = io.MultiWriter(w, hw.md5, hw.sha256)
	return hw
}

// NewHashWriterPlain returns a HashWriter with no output stream. It only
// computes the checksums of the data written to it.
func NewHashWriterPlain() *HashWriter {
	hw := &HashWriter{
		md5:    md5.New(),
		sha256: sha256.New(),
	}
	hw.Writer = io.MultiWriter(hw.md5, hw.sha256)
	return hw
}

// SumMD5 returns the hex encoded MD5 sum of the bytes written so far.
func (hw *HashWriter) SumMD5() string {
	return hex.EncodeToString(hw.md5.Sum(nil))
}

// SumSHA256 returns the hex encoded SHA256 sum of the bytes written so far.
func (hw *HashWriter) SumSHA256() string {
	return hex.EncodeToString(hw.sha256.Sum(nil))
}

// CheckMD5 compares the MD5 sum of the bytes written with the hex encoded
// goal. An empty goal matches anything.
func (hw *HashWriter) CheckMD5(goal string) bool {
	return goal == "" || goal == hw.SumMD5()
}

// CheckSHA256 compares the SHA256 sum of the bytes written with the hex
// encoded goal. An empty goal matches anything.
func (hw *HashWriter) CheckSHA256(goal string) bool {
	return goal == "" || goal == hw.SumSHA256()
}

// VerifyStreamHash checksums the reader and compares the result against
// the provided hex encoded md5 and sha256 sums. Empty sums are not
// checked, so passing two empty strings always succeeds. The reader is
// not closed when finished.
func VerifyStreamHash(r io.Reader, md5sum, sha256sum string) (bool, error) {
	if md5sum == "" && sha256sum == "" {
		return true, nil
	}
	hw := NewHashWriterPlain()
	_, err := io.Copy(hw, r)
	ok := hw.CheckMD5(md5sum) && hw.CheckSHA256(sha256sum)
	return ok, err
}
