// Package pack reads and writes pack containers.
//
// A pack container is a zip file holding the member files of one bundle
// along with a manifest named pack-info.json. Members are stored without
// compression so they can be streamed straight out of the container and
// read with random access.
package pack

import (
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"
)

// ManifestName is the name of the manifest entry inside a container.
const ManifestName = "pack-info.json"

// Manifest describes the contents of one pack container.
type Manifest struct {
	ID      string    // the bundle id this container holds
	Created time.Time // when the container was written
	Creator string    // tool or person who wrote it
	Entries []Entry   // member files, in the order written
}

// Entry describes one member file in a container.
type Entry struct {
	Name   string // relative path of the member
	Size   int64  // size in bytes
	MD5    string // hex encoded
	SHA256 string // hex encoded
}

// Find returns the entry with the given name, or nil.
func (m *Manifest) Find(name string) *Entry {
	for i := range m.Entries {
		if m.Entries[i].Name == name {
			return &m.Entries[i]
		}
	}
	return nil
}

// Names returns the member names in manifest order.
func (m *Manifest) Names() []string {
	result := make([]string, 0, len(m.Entries))
	for i := range m.Entries {
		result = append(result, m.Entries[i].Name)
	}
	return result
}

// The manifest is serialized through these mirror structures rather than
// directly, so the in-memory form can change without worrying about being
// able to read containers written previously.

type manifestOnDisk struct {
	Version int           `json:"version"`
	ID      string        `json:"id"`
	Created time.Time     `json:"created"`
	Creator string        `json:"creator,omitempty"`
	Entries []entryOnDisk `json:"entries"`
}

type entryOnDisk struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	MD5    string `json:"md5,omitempty"`
	SHA256 string `json:"sha256,omitempty"`
}

const manifestVersion = 1

func writeManifest(w io.Writer, m *Manifest) error {
	disk := manifestOnDisk{
		Version: manifestVersion,
		ID:      m.ID,
		Created: m.Created,
		Creator: m.Creator,
	}
	for _, e := range m.Entries {
		disk.Entries = append(disk.Entries, entryOnDisk(e))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(disk)
}

func readManifest(r io.Reader) (*Manifest, error) {
	var disk manifestOnDisk
	err := json.NewDecoder(r).Decode(&disk)
	if err != nil {
		return nil, errors.Wrap(err, "decoding pack manifest")
	}
	m := &Manifest{
		ID:      disk.ID,
		Created: disk.Created,
		Creator: disk.Creator,
	}
	for _, e := range disk.Entries {
		m.Entries = append(m.Entries, Entry(e))
	}
	return m, nil
}

// Key returns the store key holding the container for the given bundle id.
func Key(id string) string {
	return id + ".pack"
}
