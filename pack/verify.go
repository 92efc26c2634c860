package pack

import (
	"fmt"
	"io"

	"github.com/sheafkit/sheaf/store"
	"github.com/sheafkit/sheaf/util"
)

// Verify reads the entire container under the given key and checks every
// member against the sizes and checksums in its manifest. It returns the
// number of bytes read, a list of problems which is empty if everything
// is fine, and an error. The error reports system troubles only, never a
// failed check; those go into the problem list.
//
// Things checked:
// * The container is readable and is a zip file with a manifest
// * Each member matches the size, MD5, and SHA256 in the manifest
// * There are no members missing from the manifest
// * There are no manifest entries without a member
//
// An optional RateCounter limits how fast the content is read. Pass nil
// to go at full speed.
func Verify(s store.ROStore, key string, rate *util.RateCounter) (nb int64, problems []string, err error) {
	r, err := Open(s, key)
	if err != nil {
		if err == ErrNoManifest {
			return 0, []string{fmt.Sprintf("%s: no manifest", key)}, nil
		}
		return 0, nil, err
	}
	defer r.Close()
	man := r.Manifest()
	for name, f := range r.members {
		entry := man.Find(name)
		if entry == nil {
			problems = append(problems,
				fmt.Sprintf("%s: %s is not in the manifest", key, name))
			continue
		}
		var rc io.ReadCloser
		rc, err = f.Open()
		if err != nil {
			return
		}
		var src io.Reader = rc
		if rate != nil {
			src = rate.Wrap(rc)
		}
		hw := util.NewHashWriterPlain()
		var n int64
		n, err = io.Copy(hw, src)
		rc.Close()
		nb += n
		if err != nil {
			return
		}
		if n != entry.Size {
			problems = append(problems,
				fmt.Sprintf("%s: %s has size %d, manifest says %d", key, name, n, entry.Size))
		}
		if !hw.CheckMD5(entry.MD5) {
			problems = append(problems,
				fmt.Sprintf("%s: %s has MD5 mismatch", key, name))
		}
		if !hw.CheckSHA256(entry.SHA256) {
			problems = append(problems,
				fmt.Sprintf("%s: %s has SHA-256 mismatch", key, name))
		}
	}
	for _, entry := range man.Entries {
		if !r.Contains(entry.Name) {
			problems = append(problems,
				fmt.Sprintf("%s: %s is in the manifest but not the container", key, entry.Name))
		}
	}
	return
}
